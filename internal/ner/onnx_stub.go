//go:build !onnx
// +build !onnx

package ner

import (
	"errors"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
)

// ErrONNXUnavailable is returned when the binary was built without the 'onnx' tag
var ErrONNXUnavailable = errors.New("onnx backend not compiled in (build with -tags onnx)")

// Stub implementation used when the 'onnx' build tag is not set.
func NewONNXRecognizer(cfg config.NERConfig, log *logger.Logger) (Recognizer, error) {
	return nil, ErrONNXUnavailable
}
