// Package ner provides person-name recognizers for the redaction engine's
// optional name pass.
package ner

import (
	"context"
	"fmt"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"go.uber.org/zap"
)

// Recognizer finds person names in text and releases its resources on Close
type Recognizer interface {
	RecognizeNames(ctx context.Context, text string) ([]string, error)
	Backend() string
	Close() error
}

// Span is a labelled byte range of the input text
type Span struct {
	Label string
	Start int
	End   int
}

// New creates the recognizer selected by cfg.Backend
func New(cfg config.NERConfig, log *logger.Logger) (Recognizer, error) {
	if log == nil {
		log = logger.Wrap(nil)
	}
	log = log.WithComponent("ner")

	var (
		r   Recognizer
		err error
	)
	switch cfg.Backend {
	case "dictionary", "":
		r, err = LoadDictionary(cfg.DictionaryPath)
	case "onnx":
		r, err = NewONNXRecognizer(cfg, log)
	case "http":
		r = NewHTTPRecognizer(cfg.Endpoint, cfg.Model, nil)
	default:
		err = fmt.Errorf("unsupported ner backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s recognizer: %w", cfg.Backend, err)
	}

	log.Info("Name recognizer ready", zap.String("backend", r.Backend()))
	return r, nil
}

// spanTexts returns the distinct substrings of text covered by spans
func spanTexts(text string, spans []Span) []string {
	seen := make(map[string]bool, len(spans))
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.End <= s.Start {
			continue
		}
		name := text[s.Start:s.End]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
