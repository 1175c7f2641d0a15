package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
)

const (
	queueURL    = "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingQueue.fifo"
	ordersTable = "PnlOrderingDataStore"
)

type fixture struct {
	gen     *Generator
	db      *awstest.DynamoDB
	queue   *awstest.SQS
	metrics *awstest.Counter
	store   *orders.Store
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := awstest.NewDynamoDB()
	db.CreateTable(ordersTable, "orderId")
	q := awstest.NewSQS()
	m := awstest.NewCounter()
	store := orders.NewStore(db, ordersTable)

	if opts.Sources == nil {
		opts.Sources = []string{"DunkinDonuts", "DonutPatrol"}
	}
	g := New(store, aws.NewPublisher(q, queueURL), m, zap.NewNop(), opts)
	g.nowFunc = func() time.Time { return time.Date(2026, 10, 15, 22, 30, 0, 0, time.UTC) }
	return &fixture{gen: g, db: db, queue: q, metrics: m, store: store}
}

func TestGenerate_BatchIsStoredAndEnqueuedInOrder(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10})
	ctx := context.Background()

	res := f.gen.Generate(ctx)
	require.Equal(t, http.StatusOK, res.StatusCode)

	sent := f.queue.Sent(queueURL)
	require.Len(t, sent, 10)
	assert.Len(t, f.db.Items(ordersTable), 10)

	ids := map[int64]bool{}
	for _, m := range sent {
		var o orders.Order
		require.NoError(t, json.Unmarshal([]byte(m.Body), &o))
		assert.Equal(t, OrderingGroupID, m.GroupID)
		assert.Equal(t, strconv.FormatInt(o.OrderID, 10), m.DeduplicationID)
		assert.Zero(t, m.DelaySeconds)
		assert.Equal(t, orders.StatusSubmitted, o.OrderStatus)
		assert.Contains(t, []string{"DunkinDonuts", "DonutPatrol"}, o.Source)
		ids[o.OrderID] = true

		stored, err := f.store.Get(ctx, o.OrderID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, o, *stored)
	}
	assert.Len(t, ids, 10)
	assert.Zero(t, f.metrics.Get(MetricGenerationFailures))
}

func TestBuild_IDsStrictlyIncreasing(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 25})

	batch := f.gen.Build(25)
	require.Len(t, batch, 25)
	for i := 1; i < len(batch); i++ {
		assert.Equal(t, batch[i-1].OrderID+1, batch[i].OrderID)
	}
	assert.GreaterOrEqual(t, batch[0].OrderID, int64(0))
	assert.Less(t, batch[0].OrderID, int64(maxBaseOrderID))
}

func TestBuild_DeliveryDateUsesLocationAndOffset(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	// 22:30 UTC is already the next day in Amsterdam
	f := newFixture(t, Options{BatchSize: 1, Location: ams})
	assert.Equal(t, "2026-10-16", f.gen.Build(1)[0].DeliveryDate)

	f = newFixture(t, Options{BatchSize: 1, DeliveryOffsetDays: 3})
	o := f.gen.Build(1)[0]
	assert.Equal(t, "2026-10-18", o.DeliveryDate)
	assert.Equal(t, "2026-10-15T22:30:00.000Z", o.Timestamp)
	assert.Regexp(t, `^donut-\d$`, o.Product)
}

func TestGenerate_EnqueueFailureDowngradesResult(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 4})
	f.gen.randN = func(int) int { return 0 } // base id 0, first source, donut-0
	f.queue.FailWith(errors.New("queue unavailable"), func(in *sqs.SendMessageInput) bool {
		return *in.MessageDeduplicationId == "2"
	})

	res := f.gen.Generate(context.Background())
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, float64(1), f.metrics.Get(MetricGenerationFailures))

	// no rollback: every store write and the other enqueues went through
	assert.Len(t, f.db.Items(ordersTable), 4)
	assert.Len(t, f.queue.Sent(queueURL), 3)
}

func TestGenerate_StoreFailure(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 3})
	f.db.FailOn("PutItem", errors.New("throttled"))

	res := f.gen.Generate(context.Background())
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, float64(3), f.metrics.Get(MetricGenerationFailures))
	assert.Len(t, f.queue.Sent(queueURL), 3)
}

func TestGenerateN_RejectsEmptyBatch(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10})
	assert.Equal(t, http.StatusInternalServerError, f.gen.GenerateN(context.Background(), 0).StatusCode)
	assert.Zero(t, f.queue.Calls())
}
