package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Message is a single queue message. GroupKey orders messages on FIFO queues;
// DedupID falls back to a random id when empty.
type Message struct {
	Body       string
	GroupKey   string
	DedupID    string
	Attributes map[string]string
}

// Send publishes msg to the queue.
func (p *Publisher) Send(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &msg.Body,
	}
	if p.isFIFO() {
		group := msg.GroupKey
		if group == "" {
			group = "default"
		}
		dedup := msg.DedupID
		if dedup == "" {
			dedup = uuid.NewString()
		}
		input.MessageGroupId = &group
		input.MessageDeduplicationId = &dedup
	}
	if len(msg.Attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range msg.Attributes {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (p *Publisher) isFIFO() bool {
	return strings.HasSuffix(p.QueueURL, ".fifo")
}

func awsString(s string) *string { return &s }
