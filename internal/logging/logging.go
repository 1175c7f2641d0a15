// Package logging builds the zap loggers shared by every lambda of the order flow.
package logging

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options describe the static fields attached to every log entry.
type Options struct {
	Service     string
	Environment string
	Level       string
}

// New returns a JSON logger tagged with the service, environment and region.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "logLevel"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.InitialFields = map[string]interface{}{
		"service":     opts.Service,
		"environment": opts.Environment,
		"awsRegion":   os.Getenv("AWS_REGION"),
	}

	return cfg.Build()
}

// MustNew is New for main packages: it falls back to a no-op logger rather than failing startup.
func MustNew(opts Options) *zap.Logger {
	l, err := New(opts)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// warm is set by the first FromLambda call of the process.
var warm atomic.Bool

// FromLambda returns base enriched with the invocation's request id and function identity.
// The first call in a process is flagged as the cold start.
func FromLambda(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := []zap.Field{
		zap.Bool("coldStart", !warm.Swap(true)),
	}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields = append(fields,
			zap.String("awsRequestId", lc.AwsRequestID),
			zap.String("functionArn", lc.InvokedFunctionArn),
		)
	}
	if lambdacontext.FunctionName != "" {
		fields = append(fields,
			zap.String("functionName", lambdacontext.FunctionName),
			zap.String("functionVersion", lambdacontext.FunctionVersion),
		)
	}
	return base.With(fields...)
}
