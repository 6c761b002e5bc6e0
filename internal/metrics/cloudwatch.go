package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
)

// CloudWatch publishes one datum set per observation. Failures are logged.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewCloudWatch returns a CloudWatch recorder.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, logger: logger.Named("metrics")}
}

func (c *CloudWatch) ObserveNotification(ctx context.Context, topic, outcome string, elapsed time.Duration) {
	topicDim := types.Dimension{Name: awsString("Topic"), Value: awsString(topic)}
	c.put(ctx, []types.MetricDatum{
		{
			MetricName: awsString("NotificationsProcessed"),
			Dimensions: []types.Dimension{topicDim, {Name: awsString("Outcome"), Value: awsString(outcome)}},
			Unit:       types.StandardUnitCount,
			Value:      awsFloat(1),
		},
		{
			MetricName: awsString("NotificationDuration"),
			Dimensions: []types.Dimension{topicDim},
			Unit:       types.StandardUnitMilliseconds,
			Value:      awsFloat(float64(elapsed.Milliseconds())),
		},
	})
}

func (c *CloudWatch) NotificationDropped(ctx context.Context, reason string) {
	c.put(ctx, []types.MetricDatum{{
		MetricName: awsString("NotificationsDropped"),
		Dimensions: []types.Dimension{{Name: awsString("Reason"), Value: awsString(reason)}},
		Unit:       types.StandardUnitCount,
		Value:      awsFloat(1),
	}})
}

func (c *CloudWatch) put(ctx context.Context, data []types.MetricDatum) {
	now := time.Now().UTC()
	for i := range data {
		data[i].Timestamp = &now
	}
	_, err := c.client.PutMetricData(context.WithoutCancel(ctx), &cloudwatch.PutMetricDataInput{
		Namespace:  &c.namespace,
		MetricData: data,
	})
	if err != nil {
		c.logger.Warn("put metric data failed", zap.Error(err))
	}
}

func awsString(s string) *string { return &s }

func awsFloat(f float64) *float64 { return &f }
