package aws

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// MaxMessageDelay is the largest per-message delay SQS accepts.
const MaxMessageDelay = 15 * time.Minute

// Message is a single queue message. GroupID and DeduplicationID only apply to FIFO queues.
type Message struct {
	Body            string
	GroupID         string
	DeduplicationID string
	Delay           time.Duration
	Attributes      map[string]string
}

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

// FIFO reports whether the bound queue is a FIFO queue.
func (p *Publisher) FIFO() bool {
	return strings.HasSuffix(p.QueueURL, ".fifo")
}

// Send puts msg on the queue. The delay is clamped to [0, MaxMessageDelay] and rounded up to whole seconds.
// Group and deduplication ids are only sent to FIFO queues.
func (p *Publisher) Send(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.QueueURL),
		MessageBody: sdkaws.String(msg.Body),
	}
	if p.FIFO() {
		if msg.GroupID != "" {
			input.MessageGroupId = sdkaws.String(msg.GroupID)
		}
		if msg.DeduplicationID != "" {
			input.MessageDeduplicationId = sdkaws.String(msg.DeduplicationID)
		}
	}
	if d := DelaySeconds(msg.Delay); d > 0 {
		input.DelaySeconds = d
	}
	if len(msg.Attributes) > 0 {
		msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(msg.Attributes))
		for k, v := range msg.Attributes {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// DelaySeconds converts d into the SQS DelaySeconds value.
func DelaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > MaxMessageDelay {
		d = MaxMessageDelay
	}
	return int32(math.Ceil(d.Seconds()))
}
