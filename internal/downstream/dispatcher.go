package downstream

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
	"github.com/imrishuroy/marketplace-orderflow/internal/orders"
)

// ProcessSystem creates and updates business-process instances.
type ProcessSystem interface {
	CreateInstance(ctx context.Context, data map[string]string) (string, error)
	UpdateInstance(ctx context.Context, identifier string, data map[string]string) error
}

// Sheet receives state change notifications.
type Sheet interface {
	Notify(ctx context.Context, identifier, state string) error
}

// CorrelationStore records the process identifier on the order.
type CorrelationStore interface {
	Get(ctx context.Context, saleNumber string) (*orders.Order, error)
	SetCorrelationID(ctx context.Context, saleNumber, correlationID string) error
}

// Marketplace performs the post-sale marketplace calls.
type Marketplace interface {
	AddOrderNote(ctx context.Context, orderID, note string) error
	SendBuyerMessage(ctx context.Context, packID, sellerID, buyerID, text string) error
}

// InventoryAdjuster applies the stock effect of a sale.
type InventoryAdjuster interface {
	ApplySale(ctx context.Context, itemID string, quantity int) error
}

// Config configures a Dispatcher.
type Config struct {
	MessagingEnabled bool
	MessageTemplate  string
	// SellerID is used for buyer messages when the order does not carry one.
	SellerID string
}

// Dispatcher propagates committed order transitions to downstream systems.
// Sheet and Inventory may be nil.
type Dispatcher struct {
	process     ProcessSystem
	sheet       Sheet
	store       CorrelationStore
	marketplace Marketplace
	inventory   InventoryAdjuster
	cfg         Config
	logger      *zap.Logger
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(process ProcessSystem, sheet Sheet, store CorrelationStore, mp Marketplace, inventory InventoryAdjuster, cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		process:     process,
		sheet:       sheet,
		store:       store,
		marketplace: mp,
		inventory:   inventory,
		cfg:         cfg,
		logger:      logger.Named("dispatcher"),
	}
}

// DispatchNew registers a newly paid order with the process system and stores the
// returned identifier. An order that already has an identifier is not resubmitted.
// Post-sale side effects run only for the call that stored the identifier.
func (d *Dispatcher) DispatchNew(ctx context.Context, order *orders.Order) (string, error) {
	log := d.logger.With(zap.String("sale_number", order.SaleNumber))
	if order.ProcessCorrelationID != "" {
		log.Debug("order already dispatched", zap.String("identifier", order.ProcessCorrelationID))
		return order.ProcessCorrelationID, nil
	}

	identifier, err := d.process.CreateInstance(ctx, ProcessFields(order))
	if err != nil {
		return "", fmt.Errorf("create process instance: %w", err)
	}

	if err := d.store.SetCorrelationID(ctx, order.SaleNumber, identifier); err != nil {
		if !errors.Is(err, orders.ErrCorrelationAlreadySet) {
			return identifier, fmt.Errorf("store process identifier %s: %w", identifier, err)
		}
		stored, getErr := d.store.Get(ctx, order.SaleNumber)
		if getErr != nil {
			return identifier, fmt.Errorf("re-read order after identifier conflict: %w", getErr)
		}
		if stored == nil || stored.ProcessCorrelationID == "" {
			return identifier, fmt.Errorf("order %s missing after identifier conflict", order.SaleNumber)
		}
		log.Warn("process identifier already stored, keeping existing",
			zap.String("existing", stored.ProcessCorrelationID), zap.String("discarded", identifier))
		order.ProcessCorrelationID = stored.ProcessCorrelationID
		return stored.ProcessCorrelationID, nil
	}
	order.ProcessCorrelationID = identifier
	log.Info("order dispatched to process system", zap.String("identifier", identifier))

	d.afterSale(ctx, log, order)
	return identifier, nil
}

func (d *Dispatcher) afterSale(ctx context.Context, log *zap.Logger, order *orders.Order) {
	if err := d.marketplace.AddOrderNote(ctx, order.SaleNumber, order.ProcessCorrelationID); err != nil {
		log.Warn("order note failed", zap.Error(err))
	}

	if d.cfg.MessagingEnabled {
		seller := order.SellerID
		if seller == "" {
			seller = d.cfg.SellerID
		}
		if seller == "" || order.BuyerID == "" {
			log.Warn("buyer message skipped, missing seller or buyer id")
		} else {
			text := marketplace.ComposePostSaleMessage(d.cfg.MessageTemplate, order.ProductName)
			if err := d.marketplace.SendBuyerMessage(ctx, order.PackID, seller, order.BuyerID, text); err != nil {
				log.Warn("buyer message failed", zap.Error(err))
			}
		}
	}

	if d.inventory != nil && order.ItemID != "" {
		if err := d.inventory.ApplySale(ctx, order.ItemID, order.Quantity); err != nil {
			log.Warn("inventory adjustment failed", zap.String("item_id", order.ItemID), zap.Error(err))
		}
	}
}

// NotifyStateChange reports a state change to the spreadsheet. The process system is not touched.
func (d *Dispatcher) NotifyStateChange(ctx context.Context, order *orders.Order, state orders.State) error {
	log := d.logger.With(zap.String("sale_number", order.SaleNumber), zap.String("state", string(state)))
	if d.sheet == nil {
		log.Debug("no sheet webhook configured")
		return nil
	}
	if order.ProcessCorrelationID == "" {
		log.Warn("state change not reported, order has no process identifier")
		return nil
	}
	if err := d.sheet.Notify(ctx, order.ProcessCorrelationID, string(state)); err != nil {
		return fmt.Errorf("notify sheet: %w", err)
	}
	return nil
}

// DispatchCancellation marks the process instance cancelled. No-op without an identifier.
func (d *Dispatcher) DispatchCancellation(ctx context.Context, order *orders.Order) error {
	if order.ProcessCorrelationID == "" {
		d.logger.Warn("cancellation not dispatched, order has no process identifier",
			zap.String("sale_number", order.SaleNumber))
		return nil
	}
	data := map[string]string{"ESTADO": CancelledStatus}
	if err := d.process.UpdateInstance(ctx, order.ProcessCorrelationID, data); err != nil {
		return fmt.Errorf("cancel process instance: %w", err)
	}
	return nil
}
