package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/catalog"
	"github.com/imrishuroy/marketplace-orderflow/internal/metrics"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
)

// DriftSyncer runs the catalog drift check for a listing.
type DriftSyncer interface {
	Sync(ctx context.Context, itemID string) (catalog.SyncResult, error)
}

// Router sends validated notifications to the flow that owns their topic.
type Router struct {
	orders  *Reconciler
	drift   DriftSyncer
	metrics metrics.Recorder
	logger  *zap.Logger
}

// NewRouter returns a Router. drift may be nil when no catalog is configured;
// items notifications are then ignored.
func NewRouter(orders *Reconciler, drift DriftSyncer, recorder metrics.Recorder, logger *zap.Logger) *Router {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Router{orders: orders, drift: drift, metrics: recorder, logger: logger.Named("router")}
}

// Handle processes one notification target.
func (r *Router) Handle(ctx context.Context, target notifications.Target) (Outcome, error) {
	start := time.Now()
	var (
		outcome Outcome
		err     error
	)
	switch target.Topic {
	case notifications.TopicOrders:
		outcome, err = r.orders.Reconcile(ctx, target.ID)
	case notifications.TopicItems:
		outcome, err = r.syncItem(ctx, target.ID)
	default:
		err = &notifications.ValidationError{Field: "topic", Reason: "unsupported " + target.Topic}
		outcome = OutcomeIgnored
		r.logger.Warn("notification dropped", zap.String("topic", target.Topic), zap.Error(err))
	}
	r.metrics.ObserveNotification(ctx, target.Topic, string(outcome), time.Since(start))
	return outcome, err
}

func (r *Router) syncItem(ctx context.Context, itemID string) (Outcome, error) {
	log := r.logger.With(zap.String("item_id", itemID))
	if r.drift == nil {
		log.Debug("items notification ignored, catalog disabled")
		return OutcomeIgnored, nil
	}
	res, err := r.drift.Sync(ctx, itemID)
	if err != nil {
		log.Error("drift check aborted", zap.Error(err))
		return OutcomeFailed, err
	}
	if res == catalog.SyncUpdated {
		return OutcomeUpdated, nil
	}
	return OutcomeIgnored, nil
}
