package main

import (
	"github.com/septivank/conso-metering/internal/config"
	"github.com/septivank/conso-metering/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
