package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/generator"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/lockers"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/processor"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/relay"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/routing"
)

const (
	queueURL     = "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingQueue.fifo"
	ordersTable  = "PnlOrderingDataStore"
	lockersTable = "PnlLockerReservations"
)

// An order generated for today flows through the queue, gets a locker, shows up on the bus
// as an accepted change and is acknowledged by the partner's consumer.
func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	db := awstest.NewDynamoDB()
	db.CreateTable(ordersTable, "orderId")
	db.CreateTable(lockersTable, "reservationId")
	queue := awstest.NewSQS()
	metrics := awstest.NewCounter()
	store := orders.NewStore(db, ordersTable)
	publisher := aws.NewPublisher(queue, queueURL)

	gen := generator.New(store, publisher, metrics, zap.NewNop(), generator.Options{
		BatchSize: 3,
		Sources:   []string{"DonutPatrol"},
		Location:  time.UTC,
	})
	require.Equal(t, http.StatusOK, gen.Generate(ctx).StatusCode)

	proc := processor.New(store, lockers.NewTableAllocator(db, lockersTable, 8), publisher, nil, metrics, zap.NewNop(),
		processor.Options{Location: time.UTC})
	sent := queue.Sent(queueURL)
	require.Len(t, sent, 3)
	res := proc.HandleSQS(ctx, awstest.SQSEvent(sent...))
	require.Empty(t, res.BatchItemFailures)

	// redelivery of the same batch changes nothing
	require.Empty(t, proc.HandleSQS(ctx, awstest.SQSEvent(sent...)).BatchItemFailures)

	bus := &awstest.EventBridge{}
	rel := relay.New(aws.NewEventBus(bus, "PnlDonutLocketEventBus"), "dl-system", metrics, zap.NewNop())
	require.Empty(t, rel.Handle(ctx, awstest.StreamEvent(db.Changes(), ordersTable)).BatchItemFailures)

	entries := bus.Entries()
	require.Len(t, entries, 6, "three inserts and three accepts")

	rule := routing.AcceptedOrderRule("dl-system", "DonutPatrol")
	c := New(rule, metrics, zap.NewNop())
	lockersSeen := map[int]bool{}
	for i, e := range entries {
		ev := events.EventBridgeEvent{
			ID:         "evt",
			Source:     sdkaws.ToString(e.Source),
			DetailType: sdkaws.ToString(e.DetailType),
			Detail:     json.RawMessage(sdkaws.ToString(e.Detail)),
		}
		assert.Equal(t, http.StatusOK, c.Handle(ctx, ev).StatusCode, "entry %d", i)

		o, err := Decode(ev)
		require.NoError(t, err)
		if o.OrderStatus == orders.StatusAccepted {
			require.NotNil(t, o.LockerID)
			assert.GreaterOrEqual(t, *o.LockerID, 0)
			assert.Less(t, *o.LockerID, 8)
			lockersSeen[*o.LockerID] = true
		}
	}
	assert.Len(t, lockersSeen, 3)
	assert.Equal(t, float64(3), metrics.Get(MetricAcknowledged))
	assert.Equal(t, float64(3), metrics.Get(processor.MetricAccepted))
	assert.Equal(t, float64(3), metrics.Get(processor.MetricAlreadyAccepted))
}
