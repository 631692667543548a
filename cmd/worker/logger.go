package main

import (
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
