package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ORDERING_QUEUE_FIFO", "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingQueue.fifo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "PnlOrderingSystem", cfg.Namespace)
	assert.Equal(t, "PnlOrderingDataStore", cfg.OrdersTable)
	assert.Equal(t, "PnlDonutLocketEventBus", cfg.EventBusName)
	assert.Equal(t, "dl-system", cfg.EventSource)
	assert.Equal(t, []string{"DunkinDonuts", "DonutPatrol"}, cfg.Sources)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 8, cfg.LockerPoolSize)
	assert.Equal(t, StrategyConditional, cfg.Strategy)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "Europe/Amsterdam", cfg.Location().String())

	// the FIFO ordering queue cannot carry the re-enqueue delay
	_, err = cfg.ReenqueueQueueURL()
	assert.ErrorContains(t, err, "DELAY_QUEUE_URL")
}

func TestReenqueueQueueURL(t *testing.T) {
	standard := "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingQueue"

	url, err := (&Config{QueueURL: standard}).ReenqueueQueueURL()
	require.NoError(t, err)
	assert.Equal(t, standard, url)

	_, err = (&Config{}).ReenqueueQueueURL()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ORDER_SOURCES", "DonutPatrol")
	t.Setenv("PROCESSOR_STRATEGY", StrategyQueryThenUpdate)
	t.Setenv("DELAY_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingDelay")
	t.Setenv("DELIVERY_TIMEZONE", "UTC")
	t.Setenv("IDEMPOTENCY_TTL", "24h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"DonutPatrol"}, cfg.Sources)
	assert.Equal(t, StrategyQueryThenUpdate, cfg.Strategy)
	url, err := cfg.ReenqueueQueueURL()
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.eu-west-1.amazonaws.com/000000000000/PnlOrderingDelay", url)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	t.Setenv("PROCESSOR_STRATEGY", "optimistic")
	t.Setenv("DELIVERY_TIMEZONE", "Mars/Olympus")
	t.Setenv("LOCKER_POOL_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "PROCESSOR_STRATEGY")
	assert.ErrorContains(t, err, "DELIVERY_TIMEZONE")
	assert.ErrorContains(t, err, "LOCKER_POOL_SIZE")
}

func TestLoad_MalformedValue(t *testing.T) {
	t.Setenv("GENERATOR_BATCH_SIZE", "many")
	_, err := Load()
	assert.ErrorContains(t, err, "parse environment")
}
