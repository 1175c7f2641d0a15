package aws_test

import (
	"context"
	"errors"
	"testing"

	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws/awstest"
)

func TestMetrics_Count(t *testing.T) {
	cw := &awstest.CloudWatch{}
	m := aws.NewMetrics(cw, "PnlOrderingSystem", "OrderService", zap.NewNop())

	m.Count(context.Background(), "ordersAccepted", 2)

	require.Len(t, cw.Inputs, 1)
	in := cw.Inputs[0]
	assert.Equal(t, "PnlOrderingSystem", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	assert.Equal(t, "ordersAccepted", *in.MetricData[0].MetricName)
	assert.Equal(t, 2.0, *in.MetricData[0].Value)
	assert.Equal(t, "OrderService", *in.MetricData[0].Dimensions[0].Value)
}

func TestMetrics_ErrorsAreSwallowed(t *testing.T) {
	cw := &awstest.CloudWatch{Err: errors.New("throttled")}
	m := aws.NewMetrics(cw, "ns", "svc", zap.NewNop())

	assert.NotPanics(t, func() { m.Count(context.Background(), "x", 1) })
	aws.NopCounter{}.Count(context.Background(), "x", 1)
}

func TestEventBus_Put(t *testing.T) {
	eb := &awstest.EventBridge{}
	bus := aws.NewEventBus(eb, "PnlDonutLocketEventBus")

	failed, err := bus.Put(context.Background(), []aws.BusEvent{
		{Source: "dl-system", DetailType: "Event from aws:dynamodb", Detail: `{"a":1}`},
	})
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, eb.Entries(), 1)
	assert.Equal(t, "PnlDonutLocketEventBus", *eb.Entries()[0].EventBusName)

	failed, err = bus.Put(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, failed)
	assert.Equal(t, 1, eb.Calls())
}

func TestEventBus_PutRejectsOversizedBatch(t *testing.T) {
	eb := &awstest.EventBridge{}
	evs := make([]aws.BusEvent, aws.MaxEntriesPerPut+1)

	_, err := aws.NewEventBus(eb, "bus").Put(context.Background(), evs)
	assert.Error(t, err)
	assert.Zero(t, eb.Calls())
}

func TestEventBus_ReportsFailedIndexes(t *testing.T) {
	eb := &awstest.EventBridge{}
	n := 0
	eb.Reject = func(ebtypes.PutEventsRequestEntry) bool { n++; return n == 2 }
	bus := aws.NewEventBus(eb, "bus")

	failed, err := bus.Put(context.Background(), []aws.BusEvent{{Detail: "{}"}, {Detail: "{}"}, {Detail: "{}"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, failed)
}
