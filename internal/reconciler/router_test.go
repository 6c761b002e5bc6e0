package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/catalog"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
)

type fakeDrift struct {
	result catalog.SyncResult
	err    error
	calls  []string
}

func (f *fakeDrift) Sync(ctx context.Context, itemID string) (catalog.SyncResult, error) {
	f.calls = append(f.calls, itemID)
	return f.result, f.err
}

type observation struct{ topic, outcome string }

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeRecorder) ObserveNotification(ctx context.Context, topic, outcome string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{topic, outcome})
}

func (f *fakeRecorder) NotificationDropped(ctx context.Context, reason string) {}

func TestRouter_Orders(t *testing.T) {
	h := newHarness(t)
	recorder := &fakeRecorder{}
	r := NewRouter(h.rec, nil, recorder, zap.NewNop())

	outcome, err := r.Handle(context.Background(), notifications.Target{Topic: notifications.TopicOrders, ID: "555"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, []observation{{"orders_v2", "created"}}, recorder.obs)
}

func TestRouter_Items(t *testing.T) {
	item := notifications.Target{Topic: notifications.TopicItems, ID: "MLA9"}

	t.Run("untracked product is not an error", func(t *testing.T) {
		drift := &fakeDrift{result: catalog.SyncUntracked}
		r := NewRouter(nil, drift, nil, zap.NewNop())
		outcome, err := r.Handle(context.Background(), item)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.Equal(t, []string{"MLA9"}, drift.calls)
	})

	t.Run("changed product", func(t *testing.T) {
		r := NewRouter(nil, &fakeDrift{result: catalog.SyncUpdated}, nil, zap.NewNop())
		outcome, err := r.Handle(context.Background(), item)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)
	})

	t.Run("catalog disabled", func(t *testing.T) {
		r := NewRouter(nil, nil, nil, zap.NewNop())
		outcome, err := r.Handle(context.Background(), item)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
	})

	t.Run("fetch failure", func(t *testing.T) {
		recorder := &fakeRecorder{}
		r := NewRouter(nil, &fakeDrift{err: errors.New("404")}, recorder, zap.NewNop())
		outcome, err := r.Handle(context.Background(), item)
		assert.Error(t, err)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Equal(t, []observation{{"items", "failed"}}, recorder.obs)
	})
}

func TestRouter_UnknownTopic(t *testing.T) {
	r := NewRouter(nil, nil, nil, zap.NewNop())
	outcome, err := r.Handle(context.Background(), notifications.Target{Topic: "questions", ID: "1"})
	var ve *notifications.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, OutcomeIgnored, outcome)
}
