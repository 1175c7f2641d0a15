package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// MaxEntriesPerPut is the EventBridge limit of entries in one PutEvents call.
const MaxEntriesPerPut = 10

// BusEvent is one event destined for the bus.
type BusEvent struct {
	Source     string
	DetailType string
	Detail     string
	Resources  []string
}

// EventBus publishes events to a single EventBridge bus.
type EventBus struct {
	client  EventBridgeAPI
	busName string
}

// NewEventBus returns an EventBus bound to busName.
func NewEventBus(client EventBridgeAPI, busName string) *EventBus {
	return &EventBus{client: client, busName: busName}
}

// Put sends up to MaxEntriesPerPut events and returns the indexes of the entries
// EventBridge rejected. A non-nil error means the whole call failed.
func (b *EventBus) Put(ctx context.Context, evs []BusEvent) ([]int, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	if len(evs) > MaxEntriesPerPut {
		return nil, fmt.Errorf("put events: %d entries exceeds limit of %d", len(evs), MaxEntriesPerPut)
	}

	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(evs))
	for _, ev := range evs {
		entries = append(entries, ebtypes.PutEventsRequestEntry{
			EventBusName: sdkaws.String(b.busName),
			Source:       sdkaws.String(ev.Source),
			DetailType:   sdkaws.String(ev.DetailType),
			Detail:       sdkaws.String(ev.Detail),
			Resources:    ev.Resources,
		})
	}

	out, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("put events: %w", err)
	}
	if out.FailedEntryCount == 0 {
		return nil, nil
	}

	var failed []int
	for i, res := range out.Entries {
		if res.ErrorCode != nil {
			failed = append(failed, i)
		}
	}
	return failed, nil
}
