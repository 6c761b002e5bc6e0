package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
	"github.com/imrishuroy/marketplace-orderflow/internal/config"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
	"github.com/imrishuroy/marketplace-orderflow/internal/reconciler"
)

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Env: "test", RunLocal: true},
		Marketplace: config.MarketplaceConfig{BaseURL: "http://marketplace.invalid", RequestTimeout: time.Second, TokenSkew: time.Minute},
		Process:     config.ProcessConfig{BaseURL: "http://process.invalid", RequestTimeout: time.Second},
		Enrichment:  config.EnrichmentConfig{FeeRetryDelay: time.Millisecond, FeeRetryAttempts: 1},
		Worker:      config.WorkerConfig{Concurrency: 2, QueueSize: 4, JobTimeout: time.Second},
		AWS:         config.AWSConfig{OrdersTable: "orders", CredentialsTable: "credentials", LocksTable: "locks"},
		Lock:        config.LockConfig{Backend: "local", TTL: time.Minute, PollInterval: time.Millisecond},
		Metrics:     config.MetricsConfig{Backend: "prometheus", Namespace: "orderflow"},
	}
}

type captureEnqueuer struct{ targets []notifications.Target }

func (c *captureEnqueuer) Enqueue(ctx context.Context, n notifications.Notification, t notifications.Target) error {
	c.targets = append(c.targets, t)
	return nil
}

func TestBuild_Engine(t *testing.T) {
	a, err := Build(testConfig(), Deps{AWS: &aws.AWSClients{}}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a.Prometheus)
	assert.Nil(t, a.Publisher)

	enq := &captureEnqueuer{}
	r := a.Engine(enq)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(`{"topic":"items","resource":"/items/MLA1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []notifications.Target{{Topic: "items", ID: "MLA1"}}, enq.targets)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"topic":"questions","resource":"/questions/1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `orderflow_notifications_dropped_total{reason="invalid"} 1`)
}

func TestBuild_ItemsIgnoredWithoutCatalog(t *testing.T) {
	a, err := Build(testConfig(), Deps{AWS: &aws.AWSClients{}}, zap.NewNop())
	require.NoError(t, err)

	outcome, err := a.Router.Handle(context.Background(), notifications.Target{Topic: notifications.TopicItems, ID: "MLA1"})
	require.NoError(t, err)
	assert.Equal(t, reconciler.OutcomeIgnored, outcome)
}

func TestBuild_WithCatalogAndQueue(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Inventory.AdjustOnSale = true
	cfg.AWS.QueueURL = "https://sqs.us-east-1.amazonaws.com/123/notifications.fifo"
	cfg.Metrics.Backend = "cloudwatch"

	a, err := Build(cfg, Deps{AWS: &aws.AWSClients{}, Catalog: db}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, a.Publisher)
	assert.Nil(t, a.Prometheus)

	pool := a.NewPool()
	require.NotNil(t, pool)
	require.NoError(t, pool.Stop(context.Background()))
}

func TestBuild_LockBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.Backend = "redis"
	_, err := Build(cfg, Deps{AWS: &aws.AWSClients{}}, zap.NewNop())
	assert.Error(t, err)

	cfg.Lock.Backend = "dynamodb"
	_, err = Build(cfg, Deps{AWS: &aws.AWSClients{}}, zap.NewNop())
	assert.NoError(t, err)

	_, err = Build(testConfig(), Deps{}, zap.NewNop())
	assert.Error(t, err)
}
