package privacy

import (
	"context"
	"regexp"
)

// Category names a class of personally identifiable information
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategorySSN        Category = "ssn"
	CategoryURL        Category = "url"
	CategoryCreditCard Category = "credit_card"
	CategoryIPAddress  Category = "ip_address"
	CategoryCurrency   Category = "currency_amount"
	CategoryCompany    Category = "company"
	CategoryPersonName Category = "person_name"
)

// DetectionRule represents a single PII detection rule
type DetectionRule struct {
	Name    Category
	Pattern *regexp.Regexp
	// Replacement is expanded with regexp template syntax, so context the
	// pattern captures (a greeting, the word "Family") can be written back.
	Replacement string
	// Token is the placeholder the rule emits, e.g. "[EMAIL]"
	Token string
	// HardIdentifier marks the rules consulted by ContainsPII
	HardIdentifier bool
	// Keep, when set, vetoes individual matches. loc is the submatch index
	// slice returned by FindAllStringSubmatchIndex.
	Keep func(text string, loc []int) bool
}

// NameRecognizer finds person names in free text. Implementations may be slow
// or fail; the engine bounds each call and ignores failures.
type NameRecognizer interface {
	RecognizeNames(ctx context.Context, text string) ([]string, error)
}

// Result contains the outcome of one filtering pass
type Result struct {
	Text   string           `json:"text"`
	Counts map[Category]int `json:"counts"`
	Total  int              `json:"total"`
	// Changed reports whether Text differs from the input
	Changed bool `json:"changed"`
	// Degraded is set when a detector was skipped because it failed
	Degraded bool `json:"degraded,omitempty"`
}

// CountsByName returns the per-category counts keyed by category name
func (r Result) CountsByName() map[string]int {
	out := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		out[string(k)] = v
	}
	return out
}

// Summary reports how many hard identifiers the original text contained
type Summary struct {
	EmailsRemoved     int `json:"emailsRemoved"`
	PhonesRemoved     int `json:"phonesRemoved"`
	URLsRemoved       int `json:"urlsRemoved"`
	SSNRemoved        int `json:"ssnRemoved"`
	TotalReplacements int `json:"totalReplacements"`
}
