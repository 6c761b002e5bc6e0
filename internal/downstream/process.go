package downstream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imrishuroy/marketplace-orderflow/internal/orders"
	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

// processDateLayout is the date format expected by the process form.
const processDateLayout = "2006/01/02"

// CancelledStatus is written to the ESTADO field of a cancelled instance.
const CancelledStatus = "CANCELADA"

// ErrMissingIdentifier is returned when the process system accepts an instance without returning its id.
var ErrMissingIdentifier = errors.New("process instance created without identifier")

// ProcessClient talks to the business-process system's instance API.
type ProcessClient struct {
	http      *upstream.Client
	baseURL   string
	apiKey    string
	username  string
	processID string
}

// NewProcessClient returns a ProcessClient.
func NewProcessClient(httpClient *upstream.Client, baseURL, apiKey, username, processID string) *ProcessClient {
	return &ProcessClient{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		username:  username,
		processID: processID,
	}
}

type createInstanceRequest struct {
	ProcessID string            `json:"processId"`
	Data      map[string]string `json:"data"`
}

type updateInstanceRequest struct {
	Identifier string            `json:"identifier"`
	Data       map[string]string `json:"data"`
}

type instanceResponse struct {
	Identifier string `json:"identifier"`
}

// CreateInstance starts a process instance and returns its identifier.
func (c *ProcessClient) CreateInstance(ctx context.Context, data map[string]string) (string, error) {
	var out instanceResponse
	err := c.http.Do(ctx, upstream.Request{
		Method:   http.MethodPost,
		URL:      c.baseURL + "/process/instance",
		Resource: "process_instance_create",
		Header:   c.header(),
		JSON:     createInstanceRequest{ProcessID: c.processID, Data: data},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Identifier == "" {
		return "", ErrMissingIdentifier
	}
	return out.Identifier, nil
}

// UpdateInstance overwrites fields of an existing instance.
func (c *ProcessClient) UpdateInstance(ctx context.Context, identifier string, data map[string]string) error {
	return c.http.Do(ctx, upstream.Request{
		Method:   http.MethodPut,
		URL:      c.baseURL + "/process/instance",
		Resource: "process_instance_update",
		Header:   c.header(),
		JSON:     updateInstanceRequest{Identifier: identifier, Data: data},
	}, nil)
}

func (c *ProcessClient) header() http.Header {
	h := http.Header{}
	h.Set("X-Api-Key", c.apiKey)
	h.Set("X-Username", c.username)
	return h
}

// ProcessFields maps an order onto the process form. Missing values are sent as "".
func ProcessFields(o *orders.Order) map[string]string {
	return map[string]string{
		"TIPOVENTA":            o.SaleType,
		"NROVENTA":             o.SaleNumber,
		"FECHAVENTA":           formatDate(o.SoldAt),
		"FECHAENTREGA":         formatDate(o.DeliveryEstimate),
		"NOMBREPRODUCTO":       o.ProductName,
		"SKU":                  o.SKU,
		"LINKML":               o.MarketplaceLink,
		"LINKAMAZON":           o.ExternalLink,
		"Cantidad de Unidades": strconv.Itoa(o.Quantity),
		"PRECIOVENTA":          o.SalePrice.String(),
		"SALDOML":              o.NetProceeds.String(),
		"COMISIONML":           o.MarketplaceFee.String(),
		"COSTOENVIO":           nonZero(o.ShippingCost),
		"Impuestos":            o.Taxes.String(),
		"CUITCOMPRADOR":        o.BuyerTaxID,
		"NOMBREDESTINATARIO":   o.RecipientName,
		"Datos Cliente":        o.Address,
		"CIUDAD":               o.City,
		"PROVINCIA":            o.Province,
		"CODIGO POSTAL":        o.PostalCode,
		"APORTE ML":            o.CouponContribution.String(),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(processDateLayout)
}

func nonZero(m orders.Money) string {
	if !m.Valid || m.Decimal.IsZero() {
		return ""
	}
	return m.String()
}
