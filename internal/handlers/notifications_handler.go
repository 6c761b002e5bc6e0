package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/metrics"
	"github.com/imrishuroy/marketplace-orderflow/internal/notifications"
)

// Enqueuer hands a validated notification to background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, n notifications.Notification, target notifications.Target) error
}

// HandlerConfig groups dependencies for the notification webhook.
type HandlerConfig struct {
	Enqueuer  Enqueuer
	Validator *notifications.Validator
	Metrics   metrics.Recorder
	Logger    *zap.Logger
}

var received = gin.H{"status": "received"}

// RegisterNotificationRoutes registers the marketplace webhook. It answers 200
// whatever happens to the notification.
func RegisterNotificationRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Validator == nil {
		cfg.Validator = notifications.NewValidator()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	log := cfg.Logger.Named("webhook")

	handle := func(c *gin.Context) {
		ctx := c.Request.Context()

		n, target, err := notifications.Bind(c, cfg.Validator)
		if err != nil {
			var ve *notifications.ValidationError
			if errors.As(err, &ve) {
				log.Warn("notification ignored", zap.String("topic", n.Topic),
					zap.String("resource", n.Resource), zap.String("field", ve.Field), zap.String("reason", ve.Reason))
			}
			cfg.Metrics.NotificationDropped(ctx, "invalid")
			c.JSON(http.StatusOK, received)
			return
		}

		if err := cfg.Enqueuer.Enqueue(ctx, n, target); err != nil {
			log.Error("notification not enqueued", zap.String("key", target.Key()), zap.Error(err))
		} else {
			log.Debug("notification enqueued", zap.String("key", target.Key()), zap.Int("attempts", n.Attempts))
		}
		c.JSON(http.StatusOK, received)
	}

	r.POST("/", handle)
	r.POST("/notifications", handle)
}
