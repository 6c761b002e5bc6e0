package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

type staticToken struct {
	token string
	err   error
}

func (s staticToken) GetValidToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(upstream.NewClient(srv.Client(), time.Second), srv.URL, staticToken{token: "tok"})
}

func TestFetchOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/555", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"id": 555, "status": "paid", "total_amount": 1000, "date_closed": "2024-05-02T10:04:05.000-03:00",
			"order_items": [{"item": {"id": "MLA1", "title": "Auriculares", "seller_sku": "B0TEST"}, "quantity": 2, "sale_fee": 60.5}],
			"payments": [{"id": 91, "status": "approved"}],
			"shipping": {"id": 4001}, "buyer": {"id": 77}, "seller": {"id": 88}
		}`))
	})

	o, err := c.FetchOrder(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, int64(555), o.ID)
	assert.Equal(t, "paid", o.Status)
	require.Len(t, o.OrderItems, 1)
	assert.Equal(t, "B0TEST", o.OrderItems[0].Item.SellerSKU)
	assert.Equal(t, 60.5, *o.OrderItems[0].SaleFee)
	assert.Equal(t, int64(4001), *o.Shipping.ID)
	assert.Nil(t, o.PackID)
}

func TestFetchBillingInfo_SendsVersionHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/555/billing_info", r.URL.Path)
		assert.Equal(t, "2", r.Header.Get("x-version"))
		_, _ = w.Write([]byte(`{"buyer":{"billing_info":{"name":"Ana","last_name":"Paz","identification":{"type":"CUIT","number":"20-1"}}}}`))
	})

	b, err := c.FetchBillingInfo(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "CUIT", b.Buyer.BillingInfo.Identification.Type)
	assert.Equal(t, "Paz", b.Buyer.BillingInfo.LastName)
}

func TestNonSuccessIsUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"shipment not found"}`))
	})

	_, err := c.FetchShipmentLeadTime(context.Background(), "4001")
	var ue *upstream.Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "lead_time", ue.Resource)
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
}

func TestTokenErrorPassesThrough(t *testing.T) {
	tokenErr := errors.New("no token")
	c := NewClient(upstream.NewClient(nil, time.Second), "http://127.0.0.1:1", staticToken{err: tokenErr})

	_, err := c.FetchItem(context.Background(), "MLA1")
	assert.ErrorIs(t, err, tokenErr)
}

func TestAddOrderNote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/555/notes", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "FZ-1", body["note"])
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.AddOrderNote(context.Background(), "555", "FZ-1"))
}

func TestSendBuyerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/packs/2000/sellers/88", r.URL.Path)
		assert.Equal(t, "post_sale", r.URL.Query().Get("tag"))
		var body messageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "88", body.From.UserID)
		assert.Equal(t, "77", body.To.UserID)
		assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(body.Text))
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.SendBuyerMessage(context.Background(), "2000", "88", "77", strings.Repeat("ñ", 400)))
}

func TestUpdateItemStock(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/items/MLA1", r.URL.Path)
		var body map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3, body["available_quantity"])
		_, _ = w.Write([]byte(`{"id":"MLA1"}`))
	})

	require.NoError(t, c.UpdateItemStock(context.Background(), "MLA1", 3))
}
