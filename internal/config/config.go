// Package config loads the environment of the order flow lambdas.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
)

// Processor strategies for confirming a same-day order before accepting it.
const (
	StrategyConditional     = "conditional"
	StrategyQueryThenUpdate = "query-then-update"
)

// Config is shared by all entry points; each lambda reads the fields it needs.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"OrderService"`
	Namespace   string `env:"NAMESPACE" envDefault:"PnlOrderingSystem"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	AWSRegion        string `env:"AWS_REGION"`
	EndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`

	OrdersTable      string        `env:"ORDERS_TABLE" envDefault:"PnlOrderingDataStore"`
	LockersTable     string        `env:"LOCKERS_TABLE"`
	IdempotencyTable string        `env:"IDEMPOTENCY_TABLE" envDefault:"PnlIdempotency"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"48h"`

	QueueURL           string `env:"ORDERING_QUEUE_FIFO"`
	DelayQueueURL      string `env:"DELAY_QUEUE_URL"`
	DeadLetterQueueURL string `env:"DEAD_LETTER_QUEUE_URL"`

	EventBusName string `env:"EVENT_BUS_NAME" envDefault:"PnlDonutLocketEventBus"`
	EventSource  string `env:"EVENT_SOURCE" envDefault:"dl-system"`

	Sources            []string `env:"ORDER_SOURCES" envSeparator:"," envDefault:"DunkinDonuts,DonutPatrol"`
	BatchSize          int      `env:"GENERATOR_BATCH_SIZE" envDefault:"10"`
	DeliveryOffsetDays int      `env:"DELIVERY_OFFSET_DAYS" envDefault:"0"`
	LockerPoolSize     int      `env:"LOCKER_POOL_SIZE" envDefault:"8"`
	DeliveryTimezone   string   `env:"DELIVERY_TIMEZONE" envDefault:"Europe/Amsterdam"`

	Strategy             string `env:"PROCESSOR_STRATEGY" envDefault:"conditional"`
	ConsumerSourcePrefix string `env:"CONSUMER_SOURCE_PREFIX" envDefault:"DonutPatrol"`

	RunLocal bool `env:"RUN_LOCAL" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Strategy {
	case StrategyConditional, StrategyQueryThenUpdate:
	default:
		errs = append(errs, fmt.Errorf("unknown PROCESSOR_STRATEGY %q", c.Strategy))
	}
	if _, err := time.LoadLocation(c.DeliveryTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DELIVERY_TIMEZONE %q: %w", c.DeliveryTimezone, err))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("GENERATOR_BATCH_SIZE must be positive"))
	}
	if c.LockerPoolSize <= 0 {
		errs = append(errs, errors.New("LOCKER_POOL_SIZE must be positive"))
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("ORDER_SOURCES must not be empty"))
	}
	return errors.Join(errs...)
}

// Location returns the delivery timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DeliveryTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReenqueueQueueURL is the queue future orders are re-enqueued on. FIFO queues reject
// per-message delays, so a FIFO ordering queue needs DELAY_QUEUE_URL.
func (c *Config) ReenqueueQueueURL() (string, error) {
	if c.DelayQueueURL != "" {
		return c.DelayQueueURL, nil
	}
	if c.QueueURL == "" {
		return "", errors.New("ORDERING_QUEUE_FIFO or DELAY_QUEUE_URL must be set")
	}
	if strings.HasSuffix(c.QueueURL, ".fifo") {
		return "", fmt.Errorf("DELAY_QUEUE_URL must be set: FIFO queue %q does not accept per-message delays", c.QueueURL)
	}
	return c.QueueURL, nil
}
