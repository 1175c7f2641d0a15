package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Level(t *testing.T) {
	l, err := New(Options{Service: "OrderService", Environment: "test", Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	l, err = New(Options{Service: "OrderService", Level: "bogus"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
}

func TestFromLambda_AddsInvocationFields(t *testing.T) {
	warm.Store(false)
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{
		AwsRequestID:       "req-1",
		InvokedFunctionArn: "arn:aws:lambda:eu-west-1:000000000000:function:processor",
	})
	FromLambda(ctx, base).Info("first")
	FromLambda(context.Background(), base).Info("second")

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, true, first["coldStart"])
	assert.Equal(t, "req-1", first["awsRequestId"])
	assert.Equal(t, "arn:aws:lambda:eu-west-1:000000000000:function:processor", first["functionArn"])

	second := entries[1].ContextMap()
	assert.Equal(t, false, second["coldStart"])
	assert.NotContains(t, second, "awsRequestId")
}

func TestFromLambda_ColdStartReportedOnce(t *testing.T) {
	warm.Store(false)
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			FromLambda(context.Background(), base).Info("invocation")
		}()
	}
	wg.Wait()

	require.Equal(t, 16, logs.Len())
	assert.Equal(t, 1, logs.FilterField(zap.Bool("coldStart", true)).Len())
}
