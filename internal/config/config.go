package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	Marketplace MarketplaceConfig
	Process     ProcessConfig
	Sheet       SheetConfig
	Messaging   MessagingConfig
	Inventory   InventoryConfig
	Enrichment  EnrichmentConfig
	Worker      WorkerConfig
	AWS         AWSConfig
	Lock        LockConfig
	Redis       RedisConfig
	Catalog     CatalogConfig
	Metrics     MetricsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name     string
	Env      string
	Port     string
	RunLocal bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// MarketplaceConfig holds the marketplace API and OAuth settings
type MarketplaceConfig struct {
	BaseURL               string
	ClientID              string
	ClientSecret          string
	BootstrapRefreshToken string
	SellerID              string
	RequestTimeout        time.Duration
	TokenSkew             time.Duration
	OrderLinkTemplate     string // %s is replaced with the sale number
	ExternalLinkTemplate  string // %s is replaced with the seller SKU
	SaleType              string
}

// ProcessConfig holds the business-process system settings
type ProcessConfig struct {
	BaseURL        string
	APIKey         string
	Username       string
	ProcessID      string
	RequestTimeout time.Duration
}

// SheetConfig holds the spreadsheet webhook settings
type SheetConfig struct {
	WebhookURL     string
	RequestTimeout time.Duration
}

// MessagingConfig holds post-sale buyer messaging settings
type MessagingConfig struct {
	Enabled  bool
	Template string // {product} is replaced with the product name
}

// InventoryConfig holds post-sale stock adjustment settings
type InventoryConfig struct {
	AdjustOnSale bool
}

// EnrichmentConfig holds enrichment retry settings
type EnrichmentConfig struct {
	FeeRetryDelay    time.Duration
	FeeRetryAttempts int
}

// WorkerConfig holds worker pool settings
type WorkerConfig struct {
	Concurrency int
	QueueSize   int
	JobTimeout  time.Duration
}

// AWSConfig holds AWS resource names
type AWSConfig struct {
	Region           string
	EndpointOverride string
	OrdersTable      string
	CredentialsTable string
	LocksTable       string
	QueueURL         string
}

// LockConfig selects the per-key lock backend
type LockConfig struct {
	Backend      string // local, dynamodb, redis
	TTL          time.Duration
	PollInterval time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CatalogConfig holds the product catalog database settings
type CatalogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MetricsConfig selects the metrics backend
type MetricsConfig struct {
	Backend   string // prometheus, cloudwatch, none
	Namespace string
}

// Load loads configuration from config.toml and environment variables.
// Environment variables use the ORDERFLOW_ prefix, e.g. ORDERFLOW_PROCESS_API_KEY.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ORDERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	// zero is a meaningful attempts value, so the default only applies when unset
	v.SetDefault("enrichment.fee_retry_attempts", 1)

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Port:     v.GetString("app.port"),
			RunLocal: v.GetBool("app.run_local"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:               v.GetString("marketplace.base_url"),
			ClientID:              v.GetString("marketplace.client_id"),
			ClientSecret:          v.GetString("marketplace.client_secret"),
			BootstrapRefreshToken: v.GetString("marketplace.bootstrap_refresh_token"),
			SellerID:              v.GetString("marketplace.seller_id"),
			RequestTimeout:        v.GetDuration("marketplace.request_timeout"),
			TokenSkew:             v.GetDuration("marketplace.token_skew"),
			OrderLinkTemplate:     v.GetString("marketplace.order_link_template"),
			ExternalLinkTemplate:  v.GetString("marketplace.external_link_template"),
			SaleType:              v.GetString("marketplace.sale_type"),
		},
		Process: ProcessConfig{
			BaseURL:        v.GetString("process.base_url"),
			APIKey:         v.GetString("process.api_key"),
			Username:       v.GetString("process.username"),
			ProcessID:      v.GetString("process.process_id"),
			RequestTimeout: v.GetDuration("process.request_timeout"),
		},
		Sheet: SheetConfig{
			WebhookURL:     v.GetString("sheet.webhook_url"),
			RequestTimeout: v.GetDuration("sheet.request_timeout"),
		},
		Messaging: MessagingConfig{
			Enabled:  v.GetBool("messaging.enabled"),
			Template: v.GetString("messaging.template"),
		},
		Inventory: InventoryConfig{
			AdjustOnSale: v.GetBool("inventory.adjust_on_sale"),
		},
		Enrichment: EnrichmentConfig{
			FeeRetryDelay:    v.GetDuration("enrichment.fee_retry_delay"),
			FeeRetryAttempts: v.GetInt("enrichment.fee_retry_attempts"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			QueueSize:   v.GetInt("worker.queue_size"),
			JobTimeout:  v.GetDuration("worker.job_timeout"),
		},
		AWS: AWSConfig{
			Region:           v.GetString("aws.region"),
			EndpointOverride: v.GetString("aws.endpoint_override"),
			OrdersTable:      v.GetString("aws.orders_table"),
			CredentialsTable: v.GetString("aws.credentials_table"),
			LocksTable:       v.GetString("aws.locks_table"),
			QueueURL:         v.GetString("aws.queue_url"),
		},
		Lock: LockConfig{
			Backend:      v.GetString("lock.backend"),
			TTL:          v.GetDuration("lock.ttl"),
			PollInterval: v.GetDuration("lock.poll_interval"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Catalog: CatalogConfig{
			Enabled:  v.GetBool("catalog.enabled"),
			Host:     v.GetString("catalog.host"),
			Port:     v.GetInt("catalog.port"),
			User:     v.GetString("catalog.user"),
			Password: v.GetString("catalog.password"),
			DBName:   v.GetString("catalog.dbname"),
			SSLMode:  v.GetString("catalog.sslmode"),
		},
		Metrics: MetricsConfig{
			Backend:   v.GetString("metrics.backend"),
			Namespace: v.GetString("metrics.namespace"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketplace-orderflow"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Marketplace.BaseURL == "" {
		cfg.Marketplace.BaseURL = "https://api.mercadolibre.com"
	}
	if cfg.Marketplace.RequestTimeout == 0 {
		cfg.Marketplace.RequestTimeout = 10 * time.Second
	}
	if cfg.Marketplace.TokenSkew == 0 {
		cfg.Marketplace.TokenSkew = time.Minute
	}
	if cfg.Marketplace.OrderLinkTemplate == "" {
		cfg.Marketplace.OrderLinkTemplate = "https://www.mercadolibre.com.ar/ventas/%s/detalle"
	}
	if cfg.Marketplace.ExternalLinkTemplate == "" {
		cfg.Marketplace.ExternalLinkTemplate = "https://www.amazon.com/dp/%s"
	}
	if cfg.Marketplace.SaleType == "" {
		cfg.Marketplace.SaleType = "ML"
	}
	if cfg.Process.BaseURL == "" {
		cfg.Process.BaseURL = "https://app.flokzu.com/flokzuopenapi/api/v2"
	}
	if cfg.Process.RequestTimeout == 0 {
		cfg.Process.RequestTimeout = 15 * time.Second
	}
	if cfg.Sheet.RequestTimeout == 0 {
		cfg.Sheet.RequestTimeout = 10 * time.Second
	}
	if cfg.Messaging.Template == "" {
		cfg.Messaging.Template = "Hola! Gracias por tu compra de {product}. Ya estamos preparando tu pedido y te avisaremos cuando sea despachado."
	}
	if cfg.Enrichment.FeeRetryDelay == 0 {
		cfg.Enrichment.FeeRetryDelay = 20 * time.Second
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 256
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 2 * time.Minute
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.AWS.OrdersTable == "" {
		cfg.AWS.OrdersTable = "orders"
	}
	if cfg.AWS.CredentialsTable == "" {
		cfg.AWS.CredentialsTable = "marketplace_credentials"
	}
	if cfg.AWS.LocksTable == "" {
		cfg.AWS.LocksTable = "orderflow_locks"
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "dynamodb"
		if cfg.App.RunLocal {
			cfg.Lock.Backend = "local"
		}
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 5 * time.Minute
	}
	if cfg.Lock.PollInterval == 0 {
		cfg.Lock.PollInterval = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Catalog.Host == "" {
		cfg.Catalog.Host = "localhost"
	}
	if cfg.Catalog.Port == 0 {
		cfg.Catalog.Port = 5432
	}
	if cfg.Catalog.User == "" {
		cfg.Catalog.User = "postgres"
	}
	if cfg.Catalog.DBName == "" {
		cfg.Catalog.DBName = "ventas"
	}
	if cfg.Catalog.SSLMode == "" {
		cfg.Catalog.SSLMode = "disable"
	}
	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = "prometheus"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "orderflow"
	}
}

// validate checks cross-field rules
func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.Marketplace.BaseURL); err != nil {
		return fmt.Errorf("invalid marketplace.base_url: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Process.BaseURL); err != nil {
		return fmt.Errorf("invalid process.base_url: %w", err)
	}
	if c.Sheet.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.Sheet.WebhookURL); err != nil {
			return fmt.Errorf("invalid sheet.webhook_url: %w", err)
		}
	}
	if c.Enrichment.FeeRetryAttempts < 0 {
		return errors.New("enrichment.fee_retry_attempts must not be negative")
	}
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}
	switch c.Lock.Backend {
	case "local", "dynamodb", "redis":
	default:
		return fmt.Errorf("unsupported lock.backend %q", c.Lock.Backend)
	}
	switch c.Metrics.Backend {
	case "prometheus", "cloudwatch", "none":
	default:
		return fmt.Errorf("unsupported metrics.backend %q", c.Metrics.Backend)
	}
	if !c.App.RunLocal && c.AWS.QueueURL == "" && c.App.Env == "production" {
		return errors.New("aws.queue_url is required outside local mode in production")
	}
	return nil
}

// DSN returns the postgres connection string for the product catalog
func (c CatalogConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Addr returns the redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
