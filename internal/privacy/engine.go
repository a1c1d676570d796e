package privacy

import (
	"context"
	"fmt"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/observability"
	"go.uber.org/zap"
)

const defaultNERTimeout = 2 * time.Second

// Engine strips personally identifiable information from free text. It is
// immutable after New and safe for concurrent use.
type Engine struct {
	rules      []DetectionRule
	hard       []DetectionRule
	names      bool
	recognizer NameRecognizer
	nerTimeout time.Duration
	logger     *logger.Logger
	metrics    *observability.Metrics
}

// Option customises an Engine
type Option func(*Engine)

// WithRecognizer enables the general person-name pass
func WithRecognizer(r NameRecognizer) Option {
	return func(e *Engine) { e.recognizer = r }
}

// WithMetrics records redaction counts and recognizer failures
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates a new redaction engine instance
func New(cfg config.PrivacyConfig, log *logger.Logger, opts ...Option) (*Engine, error) {
	if log == nil {
		log = logger.Wrap(nil)
	}

	all := GetDefaultRules()
	enabled, err := configureDetectors(all, cfg.Detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	e := &Engine{
		nerTimeout: cfg.NER.Timeout,
		logger:     log,
	}
	for _, rule := range all {
		if rule.HardIdentifier {
			e.hard = append(e.hard, rule)
		}
		if enabled[rule.Name] {
			e.rules = append(e.rules, rule)
		}
	}
	e.names = enabled[CategoryPersonName]
	if e.nerTimeout <= 0 {
		e.nerTimeout = defaultNERTimeout
	}

	for _, opt := range opts {
		opt(e)
	}

	log.Info("Redaction engine initialized",
		zap.Strings("rules", e.Rules()),
		zap.Bool("name_recognizer", e.recognizer != nil && e.names),
	)

	return e, nil
}

// configureDetectors resolves the configured detector names. Unknown names
// are an error; an empty list means every detector.
func configureDetectors(rules []DetectionRule, detectors []string) (map[Category]bool, error) {
	enabled := make(map[Category]bool, len(rules))
	if len(detectors) == 0 {
		detectors = []string{"all"}
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range rules {
				enabled[rule.Name] = true
			}
			continue
		}

		found := false
		for _, rule := range rules {
			if string(rule.Name) == detector {
				enabled[rule.Name] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return enabled, nil
}

// Rules returns the enabled rule names in pipeline order
func (e *Engine) Rules() []string {
	return RuleNames(e.rules)
}

// Filter returns text with every enabled PII category replaced by its
// placeholder. The empty string is returned unchanged.
func (e *Engine) Filter(ctx context.Context, text string) string {
	return e.Process(ctx, text).Text
}

// Process runs the full pipeline and reports what was replaced. It never
// panics: a failing detector is skipped and the previous output is kept.
func (e *Engine) Process(ctx context.Context, text string) Result {
	result := Result{Text: text, Counts: make(map[Category]int)}
	if text == "" {
		return result
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	for _, rule := range e.rules {
		out, n, ok := e.applyRule(rule, result.Text)
		if !ok {
			result.Degraded = true
			continue
		}
		if n > 0 {
			result.Text = out
			result.Counts[rule.Name] += n
			result.Total += n
		}
	}

	if e.names && e.recognizer != nil {
		out, n, err := e.recognizeNames(ctx, result.Text)
		if err != nil {
			result.Degraded = true
			e.metrics.RecognizerFailure(failureReason(err))
			e.logger.Warn("Name recognizer failed, keeping pattern redactions", zap.Error(err))
		} else if n > 0 {
			result.Text = out
			result.Counts[CategoryPersonName] += n
			result.Total += n
		}
	}

	result.Changed = result.Text != text
	e.metrics.ObserveFilter(result.CountsByName(), time.Since(start))

	if result.Total > 0 {
		e.logger.Debug("PII detected and masked",
			zap.Int("total", result.Total),
			zap.Any("counts", result.Counts),
			zap.Int("input_bytes", len(text)),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return result
}

// applyRule runs one rule, turning a panic into a skipped stage
func (e *Engine) applyRule(rule DetectionRule, text string) (out string, n int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Detector failed, keeping previous output",
				zap.String("detector", string(rule.Name)),
				zap.String("panic_type", fmt.Sprintf("%T", r)),
			)
			out, n, ok = text, 0, false
		}
	}()
	out, n = rule.Apply(text)
	return out, n, true
}

// Summary counts hard identifiers in the original text using the enabled
// patterns. It does not depend on a previous Filter call; filtered is
// accepted so callers can pass both sides of a redaction.
func (e *Engine) Summary(original, filtered string) Summary {
	_ = filtered

	var summary Summary
	for _, rule := range e.rules {
		switch rule.Name {
		case CategoryEmail:
			summary.EmailsRemoved = rule.Count(original)
		case CategoryPhone:
			summary.PhonesRemoved = rule.Count(original)
		case CategoryURL:
			summary.URLsRemoved = rule.Count(original)
		case CategorySSN:
			summary.SSNRemoved = rule.Count(original)
		}
	}

	summary.TotalReplacements = summary.EmailsRemoved +
		summary.PhonesRemoved +
		summary.URLsRemoved +
		summary.SSNRemoved

	return summary
}

// ContainsPII reports whether text contains an email, phone number, SSN or
// credit card number. It checks all four regardless of configuration and
// replaces nothing.
func (e *Engine) ContainsPII(text string) bool {
	if text == "" {
		return false
	}
	for _, rule := range e.hard {
		if rule.Count(text) > 0 {
			return true
		}
	}
	return false
}
