package awstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SentMessage is a message accepted by the fake queue.
type SentMessage struct {
	MessageID       string
	QueueURL        string
	Body            string
	GroupID         string
	DeduplicationID string
	DelaySeconds    int32
	Attributes      map[string]string
}

// SQS records sent messages. Messages repeating a deduplication id already seen on
// the same queue are acknowledged but dropped, like a FIFO queue within its window.
type SQS struct {
	mu       sync.Mutex
	sent     []SentMessage
	dedup    map[string]bool
	err      error
	failWhen func(*sqs.SendMessageInput) bool
	calls    int
}

// NewSQS returns an empty fake queue.
func NewSQS() *SQS {
	return &SQS{dedup: map[string]bool{}}
}

// FailWith makes SendMessage return err for inputs matching when (all inputs if when is nil).
func (q *SQS) FailWith(err error, when func(*sqs.SendMessageInput) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
	q.failWhen = when
}

func (q *SQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil && (q.failWhen == nil || q.failWhen(in)) {
		return nil, q.err
	}

	id := fmt.Sprintf("msg-%d", q.calls)
	url := sdkaws.ToString(in.QueueUrl)
	dedupID := sdkaws.ToString(in.MessageDeduplicationId)
	if dedupID != "" {
		if q.dedup[url+"|"+dedupID] {
			return &sqs.SendMessageOutput{MessageId: sdkaws.String(id)}, nil
		}
		q.dedup[url+"|"+dedupID] = true
	}

	attrs := map[string]string{}
	for k, v := range in.MessageAttributes {
		attrs[k] = sdkaws.ToString(v.StringValue)
	}
	q.sent = append(q.sent, SentMessage{
		MessageID:       id,
		QueueURL:        url,
		Body:            sdkaws.ToString(in.MessageBody),
		GroupID:         sdkaws.ToString(in.MessageGroupId),
		DeduplicationID: dedupID,
		DelaySeconds:    in.DelaySeconds,
		Attributes:      attrs,
	})
	return &sqs.SendMessageOutput{MessageId: sdkaws.String(id)}, nil
}

// Sent returns the accepted messages, optionally restricted to one queue URL.
func (q *SQS) Sent(queueURL string) []SentMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []SentMessage
	for _, m := range q.sent {
		if queueURL == "" || m.QueueURL == queueURL {
			out = append(out, m)
		}
	}
	return out
}

// Calls returns the number of SendMessage invocations.
func (q *SQS) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// SQSEvent wraps messages into the event the Lambda SQS poller would deliver.
func SQSEvent(msgs ...SentMessage) events.SQSEvent {
	var ev events.SQSEvent
	for _, m := range msgs {
		ev.Records = append(ev.Records, events.SQSMessage{
			MessageId:      m.MessageID,
			Body:           m.Body,
			EventSource:    "aws:sqs",
			EventSourceARN: "arn:aws:sqs:eu-west-1:000000000000:PnlOrderingQueue.fifo",
			Attributes: map[string]string{
				"MessageGroupId":         m.GroupID,
				"MessageDeduplicationId": m.DeduplicationID,
			},
		})
	}
	return ev
}
