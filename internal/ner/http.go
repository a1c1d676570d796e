package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const namePrompt = `List every person name that appears in the text below.
Return ONLY a JSON array of strings with each name exactly as written, or [] if there are none.

Text:
%s`

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// HTTPRecognizer asks a local Ollama-compatible model for the names in a text
type HTTPRecognizer struct {
	url    string
	model  string
	client *http.Client
}

// NewHTTPRecognizer targets endpoint + "/api/generate". A nil client uses
// http.DefaultClient; the engine's context bounds every call.
func NewHTTPRecognizer(endpoint, model string, client *http.Client) *HTTPRecognizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRecognizer{
		url:    strings.TrimRight(endpoint, "/") + "/api/generate",
		model:  model,
		client: client,
	}
}

func (h *HTTPRecognizer) RecognizeNames(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(generateRequest{
		Model:  h.model,
		Prompt: fmt.Sprintf(namePrompt, text),
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var gen generateResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parseNameList(gen.Response)
}

// parseNameList extracts the JSON array from a model reply that may carry
// surrounding prose.
func parseNameList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in recognizer response")
	}

	var names []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &names); err != nil {
		return nil, fmt.Errorf("decode name list: %w", err)
	}
	return names, nil
}

func (h *HTTPRecognizer) Backend() string { return "http" }

func (h *HTTPRecognizer) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
