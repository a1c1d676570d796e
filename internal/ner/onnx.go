//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ONNXRecognizer runs a BERT-style token classification model through ONNX
// Runtime and reports the spans tagged with the person label.
type ONNXRecognizer struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	tokenizer   *WordPieceTokenizer
	labels      []string
	personLabel string
	seqLen      int
	logger      *logger.Logger
	mu          sync.Mutex
}

// NewONNXRecognizer loads the model, its labels and tokenizer. Requires build tag 'onnx'.
func NewONNXRecognizer(cfg config.NERConfig, log *logger.Logger) (Recognizer, error) {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx runtime init: %w", err)
		}
	}

	modelDir := filepath.Dir(cfg.ModelPath)
	tokenizerDir := cfg.TokenizerDir
	if tokenizerDir == "" {
		tokenizerDir = modelDir
	}
	meta, err := LoadModelMeta(modelDir)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizerFromDir(tokenizerDir, meta.LowerCase)
	if err != nil {
		return nil, err
	}
	labels := meta.Labels

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model io: %w", err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("model reports no outputs")
	}

	available := make(map[string]bool, len(inputsInfo))
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range []string{"input_ids", "attention_mask", "token_type_ids"} {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) < 2 {
		return nil, fmt.Errorf("model must accept input_ids and attention_mask")
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputsInfo[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	seqLen := cfg.MaxTokens
	if seqLen <= 0 {
		seqLen = 256
	}
	personLabel := cfg.PersonLabel
	if personLabel == "" {
		personLabel = "PER"
	}

	log.Info("ONNX name recognizer ready",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.Int("labels", len(labels)),
		zap.Int("max_tokens", seqLen),
	)

	return &ONNXRecognizer{
		session:     sess,
		inputNames:  inputNames,
		tokenizer:   tok,
		labels:      labels,
		personLabel: personLabel,
		seqLen:      seqLen,
		logger:      log,
	}, nil
}

func (r *ONNXRecognizer) RecognizeNames(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, attn, offsets := r.tokenizer.EncodeWithOffsets(text, r.seqLen)
	shape := ort.NewShape(1, int64(r.seqLen))

	idsTensor, err := ort.NewTensor[int64](shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attn)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inputs := []ort.Value{idsTensor, maskTensor}
	if len(r.inputNames) == 3 {
		typeTensor, err := ort.NewTensor[int64](shape, make([]int64, r.seqLen))
		if err != nil {
			return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
		}
		defer typeTensor.Destroy()
		inputs = append(inputs, typeTensor)
	}

	outputs := make([]ort.Value, 1)
	r.mu.Lock()
	err = r.session.Run(inputs, outputs)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	outShape := logits.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unsupported output shape %v", outShape)
	}

	labels := argmaxLabels(logits.GetData(), int(outShape[2]), r.labels, len(offsets))
	spans := personSpans(spansFromTokenLabels(labels, offsets), r.personLabel)
	return spanTexts(text, spans), nil
}

func (r *ONNXRecognizer) Backend() string { return "onnx" }

// Close releases the session and the runtime environment
func (r *ONNXRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	return ort.DestroyEnvironment()
}
