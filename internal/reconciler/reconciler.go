package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
	"github.com/imrishuroy/marketplace-orderflow/internal/orders"
)

// Store persists order records.
type Store interface {
	Get(ctx context.Context, saleNumber string) (*orders.Order, error)
	Create(ctx context.Context, order orders.Order) error
	UpdateState(ctx context.Context, saleNumber string, expected, next orders.State) error
}

// Fetcher reads the current upstream order.
type Fetcher interface {
	FetchOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
}

// Enricher builds a complete paid record from an upstream order.
type Enricher interface {
	Enrich(ctx context.Context, saleNumber string, order *marketplace.Order) (*orders.Order, error)
}

// Dispatcher propagates committed transitions.
type Dispatcher interface {
	DispatchNew(ctx context.Context, order *orders.Order) (string, error)
	NotifyStateChange(ctx context.Context, order *orders.Order, state orders.State) error
	DispatchCancellation(ctx context.Context, order *orders.Order) error
}

// Outcome is the result of processing one notification.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Stages reported when processing aborts.
const (
	StageLoad    = "load_record"
	StageFetch   = "fetch_order"
	StageEnrich  = "enrich"
	StagePersist = "persist"
)

// Reconciler applies order notifications to the local record.
type Reconciler struct {
	store    Store
	fetcher  Fetcher
	enricher Enricher
	dispatch Dispatcher
	logger   *zap.Logger
}

// New returns a Reconciler.
func New(store Store, fetcher Fetcher, enricher Enricher, dispatch Dispatcher, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		fetcher:  fetcher,
		enricher: enricher,
		dispatch: dispatch,
		logger:   logger.Named("reconciler"),
	}
}

// Reconcile processes one orders_v2 notification for saleNumber.
// Local state is committed before collaborators are told; collaborator
// failures are logged and never undo the commit.
func (r *Reconciler) Reconcile(ctx context.Context, saleNumber string) (Outcome, error) {
	log := r.logger.With(zap.String("sale_number", saleNumber))

	current, err := r.store.Get(ctx, saleNumber)
	if err != nil {
		return r.fail(log, StageLoad, err)
	}
	upstream, err := r.fetcher.FetchOrder(ctx, saleNumber)
	if err != nil {
		return r.fail(log, StageFetch, err)
	}

	currentState := StateAbsent
	if current != nil {
		currentState = current.State
	}
	next := orders.ParseState(upstream.Status)
	action := Decide(currentState, next)
	log.Debug("transition decided",
		zap.String("current", string(currentState)),
		zap.String("upstream", upstream.Status),
		zap.Stringer("action", action))

	switch action {
	case ActionCreate:
		return r.create(ctx, log, saleNumber, upstream)
	case ActionUpdate, ActionCancel:
		return r.transition(ctx, log, current, next, action == ActionCancel)
	default:
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) create(ctx context.Context, log *zap.Logger, saleNumber string, upstream *marketplace.Order) (Outcome, error) {
	rec, err := r.enricher.Enrich(ctx, saleNumber, upstream)
	if err != nil {
		return r.fail(log, StageEnrich, err)
	}

	if err := r.store.Create(ctx, *rec); err != nil {
		if errors.Is(err, orders.ErrAlreadyExists) {
			log.Info("order created concurrently, nothing to do")
			return OutcomeIgnored, nil
		}
		return r.fail(log, StagePersist, err)
	}
	log.Info("order recorded", zap.String("state", string(rec.State)))

	if _, err := r.dispatch.DispatchNew(ctx, rec); err != nil {
		log.Error("process dispatch failed", zap.Error(err))
	}
	return OutcomeCreated, nil
}

func (r *Reconciler) transition(ctx context.Context, log *zap.Logger, current *orders.Order, next orders.State, cancel bool) (Outcome, error) {
	if err := r.store.UpdateState(ctx, current.SaleNumber, current.State, next); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			log.Info("order state changed concurrently, nothing to do")
			return OutcomeIgnored, nil
		}
		return r.fail(log, StagePersist, err)
	}
	previous := current.State
	current.State = next
	log.Info("order state updated", zap.String("from", string(previous)), zap.String("to", string(next)))

	if err := r.dispatch.NotifyStateChange(ctx, current, next); err != nil {
		log.Error("sheet notification failed", zap.Error(err))
	}
	if !cancel {
		return OutcomeUpdated, nil
	}
	if err := r.dispatch.DispatchCancellation(ctx, current); err != nil {
		log.Error("process cancellation failed", zap.Error(err))
	}
	return OutcomeCancelled, nil
}

func (r *Reconciler) fail(log *zap.Logger, stage string, err error) (Outcome, error) {
	log.Error("notification aborted", zap.String("stage", stage), zap.Error(err))
	return OutcomeFailed, fmt.Errorf("%s: %w", stage, err)
}
