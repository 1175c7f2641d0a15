package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/config"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/logging"
	"github.com/imrishuroy/go-donut-locker-orderflow/internal/routing"
)

// rules prints the bus rule definitions of the order flow as JSON. With RULES_FILE it
// reads previously exported definitions instead; with MATCH_EVENT (a file holding one bus
// event) it logs which rules the event would trigger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Options{Service: "rules"}).Fatal("invalid configuration", zap.Error(err))
	}
	logger := logging.MustNew(logging.Options{Service: cfg.ServiceName, Environment: cfg.Environment, Level: cfg.LogLevel})
	defer logger.Sync()

	rules := routing.Rules(cfg.EventSource, cfg.ConsumerSourcePrefix)
	if path := os.Getenv("RULES_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("failed to read rules", zap.String("path", path), zap.Error(err))
		}
		if rules, err = routing.Import(b); err != nil {
			logger.Fatal("invalid rules", zap.String("path", path), zap.Error(err))
		}
	}

	if path := os.Getenv("MATCH_EVENT"); path != "" {
		ev, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("failed to read event", zap.String("path", path), zap.Error(err))
		}
		names, err := routing.Matching(rules, ev)
		if err != nil {
			logger.Fatal("invalid event", zap.Error(err))
		}
		logger.Info("matching rules", zap.Strings("rules", names))
		return
	}

	out, err := routing.Export(rules)
	if err != nil {
		logger.Fatal("failed to export rules", zap.Error(err))
	}
	if _, err := os.Stdout.Write(append(out, '\n')); err != nil {
		logger.Fatal("failed to write rules", zap.Error(err))
	}
}
