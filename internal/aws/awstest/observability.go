package awstest

import (
	"context"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// Counter is an in-memory metrics counter.
type Counter struct {
	mu     sync.Mutex
	counts map[string]float64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: map[string]float64{}}
}

func (c *Counter) Count(_ context.Context, name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] += value
}

// Get returns the accumulated value of name.
func (c *Counter) Get(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// CloudWatch records PutMetricData calls.
type CloudWatch struct {
	mu     sync.Mutex
	Inputs []*cloudwatch.PutMetricDataInput
	Err    error
}

func (c *CloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.Inputs = append(c.Inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// EventBridge records published entries. Entries for which Reject returns true are
// reported back as failed entries.
type EventBridge struct {
	mu      sync.Mutex
	entries []ebtypes.PutEventsRequestEntry
	Err     error
	Reject  func(ebtypes.PutEventsRequestEntry) bool
	calls   int
}

func (e *EventBridge) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := &eventbridge.PutEventsOutput{}
	for _, entry := range in.Entries {
		if e.Reject != nil && e.Reject(entry) {
			out.FailedEntryCount++
			out.Entries = append(out.Entries, ebtypes.PutEventsResultEntry{
				ErrorCode:    sdkaws.String("InternalFailure"),
				ErrorMessage: sdkaws.String("rejected by fake"),
			})
			continue
		}
		e.entries = append(e.entries, entry)
		out.Entries = append(out.Entries, ebtypes.PutEventsResultEntry{EventId: sdkaws.String("evt")})
	}
	return out, nil
}

// Entries returns the accepted entries.
func (e *EventBridge) Entries() []ebtypes.PutEventsRequestEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ebtypes.PutEventsRequestEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Calls returns the number of PutEvents invocations.
func (e *EventBridge) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
