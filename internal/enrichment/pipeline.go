package enrichment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
	"github.com/imrishuroy/marketplace-orderflow/internal/orders"
)

// Gateway is the subset of the marketplace client the pipeline reads from.
type Gateway interface {
	FetchOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
	FetchBillingInfo(ctx context.Context, orderID string) (*marketplace.BillingInfo, error)
	FetchShipmentLeadTime(ctx context.Context, shipmentID string) (*marketplace.LeadTime, error)
	FetchPayment(ctx context.Context, paymentID string) (*marketplace.Payment, error)
}

// Config configures a Pipeline.
type Config struct {
	// FeeRetryDelay is how long to wait before re-reading an order whose fee is not yet published.
	FeeRetryDelay time.Duration
	// FeeRetryAttempts bounds the number of re-reads.
	FeeRetryAttempts     int
	SaleType             string
	OrderLinkTemplate    string
	ExternalLinkTemplate string
}

// Stage names reported in StageError.
const (
	StageBilling  = "billing_info"
	StagePayments = "payments"
	StageFee      = "fee"
)

// StageError reports which mandatory enrichment step failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("enrichment stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline assembles a complete order record from the marketplace endpoints.
type Pipeline struct {
	gateway Gateway
	cfg     Config
	logger  *zap.Logger
}

// NewPipeline returns a Pipeline.
func NewPipeline(gateway Gateway, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{gateway: gateway, cfg: cfg, logger: logger.Named("enrichment")}
}

// Enrich builds the paid record for an order already fetched from the marketplace.
// The record is keyed by saleNumber, the id the notification named, whatever
// the upstream body reports. It never persists anything. Context cancellation
// aborts the fee wait.
func (p *Pipeline) Enrich(ctx context.Context, saleNumber string, order *marketplace.Order) (*orders.Order, error) {
	log := p.logger.With(zap.String("sale_number", saleNumber))

	billing, err := p.gateway.FetchBillingInfo(ctx, saleNumber)
	if err != nil {
		return nil, &StageError{Stage: StageBilling, Err: err}
	}

	rec := &orders.Order{
		SaleNumber:      saleNumber,
		State:           orders.StatePaid,
		SaleType:        p.cfg.SaleType,
		Quantity:        1,
		MarketplaceLink: fmt.Sprintf(p.cfg.OrderLinkTemplate, saleNumber),
		BuyerID:         formatID(order.Buyer.ID),
		SellerID:        formatID(order.Seller.ID),
		PackID:          saleNumber,
	}
	if order.PackID != nil {
		rec.PackID = formatID(*order.PackID)
	}
	if order.TotalAmount != nil {
		rec.SalePrice = orders.MoneyFromFloat(*order.TotalAmount)
	}
	if order.ShippingCost != nil && *order.ShippingCost != 0 {
		rec.ShippingCost = orders.MoneyFromFloat(*order.ShippingCost)
	}
	if sold, ok := parseTime(order.DateClosed); ok {
		rec.SoldAt = &sold
	}
	if len(order.OrderItems) > 0 {
		first := order.OrderItems[0]
		rec.ProductName = first.Item.Title
		rec.SKU = first.Item.SellerSKU
		rec.ItemID = first.Item.ID
		if first.Quantity > 0 {
			rec.Quantity = first.Quantity
		}
		if rec.SKU != "" {
			rec.ExternalLink = fmt.Sprintf(p.cfg.ExternalLinkTemplate, rec.SKU)
		}
	}
	applyBilling(rec, billing.Buyer.BillingInfo)

	if order.Shipping.ID != nil {
		rec.DeliveryEstimate = p.deliveryEstimate(ctx, log, formatID(*order.Shipping.ID))
	}

	if err := p.applyPayments(ctx, rec, order.Payments); err != nil {
		return nil, &StageError{Stage: StagePayments, Err: err}
	}

	rec.MarketplaceFee = computeFee(order)
	if !rec.MarketplaceFee.Valid || rec.MarketplaceFee.Decimal.IsZero() {
		fee, err := p.awaitFee(ctx, log, saleNumber)
		if err != nil {
			return nil, &StageError{Stage: StageFee, Err: err}
		}
		if fee.Valid {
			rec.MarketplaceFee = fee
		}
	}

	return rec, nil
}

func (p *Pipeline) deliveryEstimate(ctx context.Context, log *zap.Logger, shipmentID string) *time.Time {
	lt, err := p.gateway.FetchShipmentLeadTime(ctx, shipmentID)
	if err != nil {
		log.Warn("lead time unavailable, delivery estimate left empty",
			zap.String("shipment_id", shipmentID), zap.Error(err))
		return nil
	}
	if t, ok := parseTime(lt.EstimatedDeliveryFinal.Date); ok {
		return &t
	}
	return nil
}

func (p *Pipeline) applyPayments(ctx context.Context, rec *orders.Order, payments []marketplace.OrderPayment) error {
	var net, taxes, coupons decimal.Decimal
	approved := 0
	for _, pay := range payments {
		if pay.Status != marketplace.PaymentApproved {
			continue
		}
		detail, err := p.gateway.FetchPayment(ctx, formatID(pay.ID))
		if err != nil {
			return err
		}
		approved++
		net = net.Add(decimal.NewFromFloat(detail.TransactionDetails.NetReceivedAmount))
		coupons = coupons.Add(decimal.NewFromFloat(detail.CouponAmount))
		for _, ch := range detail.ChargesDetails {
			if ch.Type == marketplace.ChargeTypeTax {
				taxes = taxes.Add(decimal.NewFromFloat(ch.Amounts.Original))
			}
		}
	}
	if approved == 0 {
		return nil
	}
	rec.NetProceeds = orders.NewMoney(net)
	rec.Taxes = orders.NewMoney(taxes)
	rec.CouponContribution = orders.NewMoney(coupons)
	return nil
}

// awaitFee re-reads the order until the fee is published or the retry budget is spent.
// A failed re-read ends the wait without a fee; only cancellation is an error.
func (p *Pipeline) awaitFee(ctx context.Context, log *zap.Logger, saleNumber string) (orders.Money, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.FeeRetryDelay), uint64(p.cfg.FeeRetryAttempts)),
		ctx,
	)
	for attempt := 1; ; attempt++ {
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			if err := ctx.Err(); err != nil {
				return orders.Money{}, err
			}
			log.Warn("marketplace fee still not published", zap.Int("attempts", attempt-1))
			return orders.Money{}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return orders.Money{}, ctx.Err()
		case <-timer.C:
		}

		order, err := p.gateway.FetchOrder(ctx, saleNumber)
		if err != nil {
			if ctx.Err() != nil {
				return orders.Money{}, ctx.Err()
			}
			log.Warn("order re-read for fee failed", zap.Int("attempt", attempt), zap.Error(err))
			return orders.Money{}, nil
		}
		if fee := computeFee(order); fee.Valid && !fee.Decimal.IsZero() {
			log.Info("marketplace fee published after retry", zap.Int("attempt", attempt))
			return fee, nil
		}
	}
}

// computeFee is sale_fee times quantity of the first item; null when the fee is absent.
func computeFee(order *marketplace.Order) orders.Money {
	if len(order.OrderItems) == 0 || order.OrderItems[0].SaleFee == nil {
		return orders.Money{}
	}
	item := order.OrderItems[0]
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	return orders.NewMoney(decimal.NewFromFloat(*item.SaleFee).Mul(decimal.NewFromInt(int64(qty))))
}

func applyBilling(rec *orders.Order, b marketplace.BuyerBilling) {
	if b.Identification.Type == "CUIT" {
		rec.BuyerTaxID = b.Identification.Number
	}
	rec.RecipientName = strings.TrimSpace(b.Name + " " + b.LastName)
	rec.Address = strings.TrimSpace(b.Address.StreetName + " " + b.Address.StreetNumber)
	rec.City = b.Address.CityName
	rec.Province = b.Address.State.Name
	rec.PostalCode = b.Address.ZipCode
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
