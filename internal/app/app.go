// Package app builds the object graph shared by the API and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
	"github.com/imrishuroy/marketplace-orderflow/internal/catalog"
	"github.com/imrishuroy/marketplace-orderflow/internal/config"
	"github.com/imrishuroy/marketplace-orderflow/internal/credentials"
	"github.com/imrishuroy/marketplace-orderflow/internal/downstream"
	"github.com/imrishuroy/marketplace-orderflow/internal/enrichment"
	"github.com/imrishuroy/marketplace-orderflow/internal/handlers"
	"github.com/imrishuroy/marketplace-orderflow/internal/lock"
	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
	"github.com/imrishuroy/marketplace-orderflow/internal/metrics"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
	"github.com/imrishuroy/marketplace-orderflow/internal/orders"
	"github.com/imrishuroy/marketplace-orderflow/internal/reconciler"
	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
	"github.com/imrishuroy/marketplace-orderflow/internal/worker"
)

const redisLockPrefix = "orderflow:lock:"

// Deps are the external clients the graph is built on.
// Catalog and Redis are only needed when the config enables them.
type Deps struct {
	AWS        *aws.AWSClients
	HTTPClient *http.Client
	Catalog    *gorm.DB
	Redis      *redis.Client
}

// App is the wired service.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Validator  *notifications.Validator
	Router     *reconciler.Router
	Runner     *worker.Runner
	Metrics    metrics.Recorder
	Prometheus *metrics.Prometheus
	Publisher  *aws.Publisher

	closers []func() error
}

// New connects to AWS, and to the catalog database and Redis when enabled, then builds the graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	clients, err := aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWS.Region, EndpointOverride: cfg.AWS.EndpointOverride})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	deps := Deps{AWS: clients, HTTPClient: &http.Client{}}
	var closers []func() error

	if cfg.Catalog.Enabled {
		db, err := gorm.Open(postgres.Open(cfg.Catalog.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("open catalog database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("catalog sql handle: %w", err)
		}
		closers = append(closers, sqlDB.Close)
		deps.Catalog = db
	}

	if cfg.Lock.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr(), err)
		}
		closers = append(closers, rdb.Close)
		deps.Redis = rdb
	}

	a, err := Build(cfg, deps, logger)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// Build wires every component from cfg and deps.
func Build(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.AWS == nil {
		return nil, errors.New("aws clients are required")
	}

	locker, err := newLocker(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	recorder, prom := newRecorder(cfg, deps, logger)

	marketplaceHTTP := upstream.NewClient(deps.HTTPClient, cfg.Marketplace.RequestTimeout)

	managerCfg := credentials.ManagerConfig{
		BootstrapRefreshToken: cfg.Marketplace.BootstrapRefreshToken,
		Skew:                  cfg.Marketplace.TokenSkew,
	}
	if cfg.Lock.Backend != "local" {
		managerCfg.Locker = locker
	}
	tokens := credentials.NewManager(
		credentials.NewDynamoStore(deps.AWS.DynamoDB, cfg.AWS.CredentialsTable, credentials.DefaultProvider),
		credentials.NewOAuthExchanger(marketplaceHTTP, cfg.Marketplace.BaseURL, cfg.Marketplace.ClientID, cfg.Marketplace.ClientSecret),
		managerCfg,
		logger,
	)
	mp := marketplace.NewClient(marketplaceHTTP, cfg.Marketplace.BaseURL, tokens)

	store := orders.NewStore(deps.AWS.DynamoDB, cfg.AWS.OrdersTable)

	pipeline := enrichment.NewPipeline(mp, enrichment.Config{
		FeeRetryDelay:        cfg.Enrichment.FeeRetryDelay,
		FeeRetryAttempts:     cfg.Enrichment.FeeRetryAttempts,
		SaleType:             cfg.Marketplace.SaleType,
		OrderLinkTemplate:    cfg.Marketplace.OrderLinkTemplate,
		ExternalLinkTemplate: cfg.Marketplace.ExternalLinkTemplate,
	}, logger)

	process := downstream.NewProcessClient(
		upstream.NewClient(deps.HTTPClient, cfg.Process.RequestTimeout),
		cfg.Process.BaseURL, cfg.Process.APIKey, cfg.Process.Username, cfg.Process.ProcessID,
	)
	var sheet downstream.Sheet
	if cfg.Sheet.WebhookURL != "" {
		sheet = downstream.NewSheetClient(upstream.NewClient(deps.HTTPClient, cfg.Sheet.RequestTimeout), cfg.Sheet.WebhookURL)
	}

	var (
		drift     reconciler.DriftSyncer
		inventory downstream.InventoryAdjuster
	)
	if deps.Catalog != nil {
		repo := catalog.NewRepository(deps.Catalog)
		drift = catalog.NewDriftDetector(mp, repo, logger)
		if cfg.Inventory.AdjustOnSale {
			inventory = catalog.NewInventory(repo, mp, logger)
		}
	} else if cfg.Inventory.AdjustOnSale {
		logger.Warn("inventory.adjust_on_sale needs the catalog, stock adjustment disabled")
	}

	dispatcher := downstream.NewDispatcher(process, sheet, store, mp, inventory, downstream.Config{
		MessagingEnabled: cfg.Messaging.Enabled,
		MessageTemplate:  cfg.Messaging.Template,
		SellerID:         cfg.Marketplace.SellerID,
	}, logger)

	rec := reconciler.New(store, mp, pipeline, dispatcher, logger)
	router := reconciler.NewRouter(rec, drift, recorder, logger)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Validator:  notifications.NewValidator(),
		Router:     router,
		Runner:     worker.NewRunner(router, locker, cfg.Worker.JobTimeout, logger),
		Metrics:    recorder,
		Prometheus: prom,
	}
	if cfg.AWS.QueueURL != "" {
		a.Publisher = aws.NewPublisher(deps.AWS.SQS, cfg.AWS.QueueURL)
	}
	return a, nil
}

func newLocker(cfg *config.Config, deps Deps, logger *zap.Logger) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "dynamodb":
		return lock.NewDynamoLocker(deps.AWS.DynamoDB, cfg.AWS.LocksTable, cfg.Lock.TTL, cfg.Lock.PollInterval, logger), nil
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("redis lock backend selected without a redis client")
		}
		return lock.NewRedisLocker(deps.Redis, redisLockPrefix, cfg.Lock.TTL, cfg.Lock.PollInterval, logger), nil
	default:
		return lock.NewLocal(), nil
	}
}

func newRecorder(cfg *config.Config, deps Deps, logger *zap.Logger) (metrics.Recorder, *metrics.Prometheus) {
	switch cfg.Metrics.Backend {
	case "prometheus":
		p := metrics.NewPrometheus(cfg.Metrics.Namespace)
		return p, p
	case "cloudwatch":
		return metrics.NewCloudWatch(deps.AWS.CloudWatch, cfg.Metrics.Namespace, logger), nil
	default:
		return metrics.Nop{}, nil
	}
}

// NewPool returns an in-process worker pool running the app's jobs.
func (a *App) NewPool() *worker.Pool {
	return worker.NewPool(a.Runner, worker.PoolConfig{
		Concurrency: a.Config.Worker.Concurrency,
		QueueSize:   a.Config.Worker.QueueSize,
	}, a.Metrics, a.Logger)
}

// Engine returns the HTTP router: health, metrics when Prometheus is active, and the webhook.
func (a *App) Engine(enqueuer handlers.Enqueuer) *gin.Engine {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if a.Prometheus != nil {
		r.GET("/metrics", gin.WrapH(a.Prometheus.Handler()))
	}

	handlers.RegisterNotificationRoutes(r, handlers.HandlerConfig{
		Enqueuer:  enqueuer,
		Validator: a.Validator,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	})
	return r
}

// Close releases the database and Redis connections opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
