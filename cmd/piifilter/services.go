package main

import (
	"fmt"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/ner"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"go.uber.org/zap"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}
	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func nopLogger() *logger.Logger {
	return logger.Wrap(zap.NewNop())
}

// engine bundles the redaction engine with the recognizer it owns
type engine struct {
	*privacy.Engine
	recognizer ner.Recognizer
}

func (e *engine) backend() string {
	if e.recognizer == nil {
		return "none"
	}
	return e.recognizer.Backend()
}

func (e *engine) Close() error {
	if e.recognizer != nil {
		return e.recognizer.Close()
	}
	return nil
}

func buildEngine(cfg *config.Config, log *logger.Logger, m *observability.Metrics) (*engine, error) {
	e := &engine{}
	opts := []privacy.Option{privacy.WithMetrics(m)}

	if cfg.Privacy.NER.Enabled {
		r, err := ner.New(cfg.Privacy.NER, log)
		if err != nil {
			return nil, err
		}
		e.recognizer = r
		opts = append(opts, privacy.WithRecognizer(r))
	}

	pe, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"), opts...)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create redaction engine: %w", err)
	}
	e.Engine = pe
	return e, nil
}
