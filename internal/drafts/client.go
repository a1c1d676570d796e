package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/burnssa/superjective-extension/internal/auth"
	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"go.uber.org/zap"
)

// ErrNoText is returned when there is nothing to generate drafts for
var ErrNoText = errors.New("no text selected")

// APIError is a non-2xx reply from the drafts service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drafts service returned %d: %s", e.StatusCode, e.Message)
}

// Redactor filters text before it leaves the machine
type Redactor interface {
	Process(ctx context.Context, text string) privacy.Result
}

// ID accepts both string and numeric identifiers from the service
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = ID(n.String())
	return nil
}

// GenerateRequest is the text selected by the user plus optional context
type GenerateRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
}

// Draft is one generated reply
type Draft struct {
	ResponseID   ID     `json:"response_id"`
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	Provider     string `json:"provider"`
	ModelName    string `json:"model_name"`
	DisplayOrder int    `json:"display_order"`
}

// DraftSet is the result of GenerateDrafts. Redacted is the number of values
// replaced in the prompt and context before sending.
type DraftSet struct {
	ComparisonID  ID      `json:"comparison_id"`
	Drafts        []Draft `json:"drafts"`
	ResponseCount int     `json:"response_count"`
	Redacted      int     `json:"redacted"`
}

// CompleteRequest records which draft the user picked
type CompleteRequest struct {
	ComparisonID     ID     `json:"comparison_id"`
	BestResponseID   ID     `json:"best_response_id"`
	ResponseFeedback string `json:"response_feedback,omitempty"`
}

type comparison struct {
	ID        ID `json:"id"`
	Responses []struct {
		ID ID `json:"id"`
	} `json:"responses"`
}

type generateResult struct {
	Responses []struct {
		Text     string `json:"text"`
		LLMID    ID     `json:"llm_id"`
		LLMName  string `json:"llm_name"`
		Metadata struct {
			Provider     string `json:"provider"`
			DisplayOrder int    `json:"display_order"`
		} `json:"metadata"`
	} `json:"responses"`
	ResponseCount int `json:"response_count"`
}

type errorBody struct {
	Detail struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	} `json:"detail"`
}

// Client talks to the remote draft-generation service. Every prompt is
// redacted before it is sent.
type Client struct {
	base     string
	http     *http.Client
	tokens   auth.TokenProvider
	redactor Redactor
	logger   *logger.Logger
}

// NewClient creates a drafts client for cfg.APIBase
func NewClient(cfg config.DraftsConfig, tokens auth.TokenProvider, redactor Redactor, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		base:     strings.TrimRight(cfg.APIBase, "/"),
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		redactor: redactor,
		logger:   log.WithComponent("drafts"),
	}
}

// GenerateDrafts creates a comparison for the redacted prompt and asks the
// service to generate replies for it.
func (c *Client) GenerateDrafts(ctx context.Context, req GenerateRequest) (*DraftSet, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrNoText
	}

	prompt := c.redactor.Process(ctx, req.Prompt)
	redacted := prompt.Total
	text := prompt.Text
	if req.Context != "" {
		rc := c.redactor.Process(ctx, req.Context)
		redacted += rc.Total
		text = text + "\n\nContext: " + rc.Text
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var cmp comparison
	if err := c.post(ctx, token, "/api/comparisons", map[string]any{"prompt": text}, &cmp, messageOf, "Failed to create comparison"); err != nil {
		return nil, err
	}

	var gen generateResult
	body := map[string]any{"prompt": text, "comparison_id": cmp.ID}
	if err := c.post(ctx, token, "/api/generate", body, &gen, errorOf, "Failed to generate responses"); err != nil {
		return nil, err
	}

	set := &DraftSet{
		ComparisonID:  cmp.ID,
		Drafts:        make([]Draft, len(gen.Responses)),
		ResponseCount: gen.ResponseCount,
		Redacted:      redacted,
	}
	for i, r := range gen.Responses {
		id := ID(strconv.Itoa(i))
		if i < len(cmp.Responses) && cmp.Responses[i].ID != "" {
			id = cmp.Responses[i].ID
		}
		set.Drafts[i] = Draft{
			ResponseID:   id,
			Text:         r.Text,
			ModelID:      string(r.LLMID),
			Provider:     r.Metadata.Provider,
			ModelName:    r.LLMName,
			DisplayOrder: r.Metadata.DisplayOrder,
		}
	}

	c.logger.Info("Drafts generated",
		zap.String("comparison_id", string(cmp.ID)),
		zap.Int("drafts", len(set.Drafts)),
		zap.Int("redacted", redacted))
	return set, nil
}

// CompleteDrafts reports the chosen draft and returns the service's reply
func (c *Client) CompleteDrafts(ctx context.Context, req CompleteRequest) (map[string]any, error) {
	if req.ComparisonID == "" {
		return nil, fmt.Errorf("comparison id is required")
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"best_response_id":  req.BestResponseID,
		"response_feedback": req.ResponseFeedback,
	}
	var out map[string]any
	path := "/api/comparisons/" + url.PathEscape(string(req.ComparisonID)) + "/complete"
	if err := c.post(ctx, token, path, body, &out, messageOf, "Failed to complete comparison"); err != nil {
		return nil, err
	}
	return out, nil
}

func messageOf(e errorBody) string { return e.Detail.Message }
func errorOf(e errorBody) string   { return e.Detail.Error }

func (c *Client) post(ctx context.Context, token, path string, in, out any, detail func(errorBody) string, fallback string) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: fallback}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && detail(eb) != "" {
			apiErr.Message = detail(eb)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
