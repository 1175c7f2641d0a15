package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/relay"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/routing"
)

func busEvent(source, detail string) events.EventBridgeEvent {
	return events.EventBridgeEvent{
		Version:    "0",
		ID:         "evt-1",
		DetailType: relay.DetailType,
		Source:     source,
		AccountID:  "000000000000",
		Region:     "eu-west-1",
		Detail:     json.RawMessage(detail),
	}
}

const acceptedDetail = `{
	"eventName": "MODIFY",
	"dynamodb": {"NewImage": {
		"orderId": {"N": "42"},
		"order": {"S": "donut-3"},
		"source": {"S": "DonutPatrol"},
		"deliveryDate": {"S": "2026-10-16"},
		"orderStatus": {"S": "orderAccepted"},
		"lockerId": {"N": "5"},
		"updatedTimestamp": {"S": "2026-10-16T08:00:00.000Z"}
	}}
}`

func TestHandle_AcknowledgesAcceptedOrder(t *testing.T) {
	m := awstest.NewCounter()
	c := New(routing.AcceptedOrderRule("dl-system", "DonutPatrol"), m, zap.NewNop())

	res := c.Handle(context.Background(), busEvent("dl-system", acceptedDetail))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(1), m.Get(MetricAcknowledged))
}

func TestHandle_IgnoresEventsOutsideRule(t *testing.T) {
	m := awstest.NewCounter()
	c := New(routing.AcceptedOrderRule("dl-system", "DunkinDonuts"), m, zap.NewNop())

	res := c.Handle(context.Background(), busEvent("dl-system", acceptedDetail))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Zero(t, m.Get(MetricAcknowledged))
}

func TestHandle_UndecodableDetail(t *testing.T) {
	m := awstest.NewCounter()
	c := New(routing.CrossAccountRule("dl-system"), m, zap.NewNop())

	for _, detail := range []string{`"just a string"`, `{"dynamodb":{}}`} {
		res := c.Handle(context.Background(), busEvent("dl-system", detail))
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode, detail)
	}
	assert.Equal(t, float64(2), m.Get(MetricUndecodable))
}

func TestDecode(t *testing.T) {
	o, err := Decode(busEvent("dl-system", acceptedDetail))
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.OrderID)
	assert.Equal(t, "donut-3", o.Product)
	require.NotNil(t, o.LockerID)
	assert.Equal(t, 5, *o.LockerID)

	_, err = Decode(events.EventBridgeEvent{})
	assert.Error(t, err)
}
