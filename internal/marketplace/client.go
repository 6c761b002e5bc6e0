package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

// TokenSource supplies the bearer token for each call.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Client is a typed client for the marketplace API. It never retries; failures are
// returned as *upstream.Error, or the token source's error when no token is available.
type Client struct {
	http    *upstream.Client
	baseURL string
	tokens  TokenSource
}

// NewClient returns a marketplace Client.
func NewClient(httpClient *upstream.Client, baseURL string, tokens TokenSource) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
}

// FetchOrder returns the order detail.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.call(ctx, http.MethodGet, "order", "/orders/"+orderID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchBillingInfo returns the buyer billing detail.
func (c *Client) FetchBillingInfo(ctx context.Context, orderID string) (*BillingInfo, error) {
	var out BillingInfo
	header := http.Header{}
	header.Set("x-version", "2")
	if err := c.call(ctx, http.MethodGet, "billing_info", "/orders/"+orderID+"/billing_info", header, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchShipmentLeadTime returns the shipment lead time.
func (c *Client) FetchShipmentLeadTime(ctx context.Context, shipmentID string) (*LeadTime, error) {
	var out LeadTime
	if err := c.call(ctx, http.MethodGet, "lead_time", "/shipments/"+shipmentID+"/lead_time", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPayment returns the payment detail.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.call(ctx, http.MethodGet, "payment", "/v1/payments/"+paymentID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchItem returns the listing detail.
func (c *Client) FetchItem(ctx context.Context, itemID string) (*Item, error) {
	var out Item
	if err := c.call(ctx, http.MethodGet, "item", "/items/"+itemID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddOrderNote attaches a seller note to the order.
func (c *Client) AddOrderNote(ctx context.Context, orderID, note string) error {
	body := map[string]string{"note": note}
	return c.call(ctx, http.MethodPost, "order_note", "/orders/"+orderID+"/notes", nil, body, nil)
}

type messageUser struct {
	UserID string `json:"user_id"`
}

type messageRequest struct {
	From messageUser `json:"from"`
	To   messageUser `json:"to"`
	Text string      `json:"text"`
}

// SendBuyerMessage posts a post-sale message in the order's pack conversation.
// The text is cut to MaxMessageLength runes.
func (c *Client) SendBuyerMessage(ctx context.Context, packID, sellerID, buyerID, text string) error {
	body := messageRequest{
		From: messageUser{UserID: sellerID},
		To:   messageUser{UserID: buyerID},
		Text: truncateRunes(text, MaxMessageLength),
	}
	path := fmt.Sprintf("/messages/packs/%s/sellers/%s?tag=post_sale", packID, sellerID)
	return c.call(ctx, http.MethodPost, "buyer_message", path, nil, body, nil)
}

// UpdateItemStock sets the listing's available quantity.
func (c *Client) UpdateItemStock(ctx context.Context, itemID string, quantity int) error {
	body := map[string]int{"available_quantity": quantity}
	return c.call(ctx, http.MethodPut, "item_stock", "/items/"+itemID, nil, body, nil)
}

func (c *Client) call(ctx context.Context, method, resource, path string, header http.Header, body, out any) error {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", "Bearer "+token)

	return c.http.Do(ctx, upstream.Request{
		Method:   method,
		URL:      c.baseURL + path,
		Resource: resource,
		Header:   header,
		JSON:     body,
	}, out)
}
