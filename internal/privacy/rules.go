package privacy

import "regexp"

// Placeholder tokens emitted by the default rules
const (
	TokenEmail   = "[EMAIL]"
	TokenPhone   = "[PHONE]"
	TokenSSN     = "[SSN]"
	TokenURL     = "[URL]"
	TokenCard    = "[CARD]"
	TokenIP      = "[IP]"
	TokenAmount  = "[AMOUNT]"
	TokenCompany = "[COMPANY]"
	TokenName    = "[NAME]"
)

// placeholderPattern matches any token produced by a rule
var placeholderPattern = regexp.MustCompile(`\[[A-Z]+\]`)

// urlChars excludes whitespace, brackets, quotes and the other characters
// browsers escape in URLs.
const urlChars = "[^\\s<>\"{}|\\\\^`\\[\\]]"

// GetDefaultRules returns the pipeline in execution order. Each rule runs on the
// output of the previous one, so the order is part of the contract.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Name:           CategoryEmail,
			Pattern:        regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Replacement:    TokenEmail,
			Token:          TokenEmail,
			HardIdentifier: true,
		},
		{
			// The leading group stands in for a lookbehind: a number may not
			// start inside a word, and "+1" / "(" belong to the number.
			Name:           CategoryPhone,
			Pattern:        regexp.MustCompile(`(^|[^\w])(?:\+?1[-.\s]?)?(?:\(?[0-9]{3}\)?[-.\s]?)?[0-9]{3}[-.\s]?[0-9]{4}\b`),
			Replacement:    "${1}" + TokenPhone,
			Token:          TokenPhone,
			HardIdentifier: true,
			Keep:           notCardFragment,
		},
		{
			Name:           CategorySSN,
			Pattern:        regexp.MustCompile(`\b[0-9]{3}[-\s]?[0-9]{2}[-\s]?[0-9]{4}\b`),
			Replacement:    TokenSSN,
			Token:          TokenSSN,
			HardIdentifier: true,
		},
		{
			// Placeholders left by earlier rules are part of the URL, so a URL
			// that contained an email collapses into a single [URL].
			Name:        CategoryURL,
			Pattern:     regexp.MustCompile(`(?i)https?://(?:` + urlChars + `|\[[A-Z]+\])+`),
			Replacement: TokenURL,
			Token:       TokenURL,
		},
		{
			Name:           CategoryCreditCard,
			Pattern:        regexp.MustCompile(`\b(?:[0-9]{4}[-\s]?){3}[0-9]{4}\b`),
			Replacement:    TokenCard,
			Token:          TokenCard,
			HardIdentifier: true,
		},
		{
			// No octet range check: 999.999.999.999 is redacted too.
			Name:        CategoryIPAddress,
			Pattern:     regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
			Replacement: TokenIP,
			Token:       TokenIP,
		},
		{
			Name:        CategoryCurrency,
			Pattern:     regexp.MustCompile(`\$(?:[0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)(?:\.[0-9]{2})?\b`),
			Replacement: TokenAmount,
			Token:       TokenAmount,
		},
		{
			Name:        CategoryCompany,
			Pattern:     regexp.MustCompile(`(^|[^\w\[])[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)*\s+(?:Inc\.|Corp\.|Co\.|Ltd\.|(?:LLC|Corporation|Company)\b)`),
			Replacement: "${1}" + TokenCompany,
			Token:       TokenCompany,
		},
		{
			// Title and name are both consumed: "Dr. Jane Smith" -> "[NAME]"
			Name:        CategoryPersonName,
			Pattern:     regexp.MustCompile(`\b(?:Mr\.|Mrs\.|Ms\.|Dr\.|Prof\.)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`),
			Replacement: TokenName,
			Token:       TokenName,
		},
		{
			// The greeting is written back exactly as the user typed it
			Name:        CategoryPersonName,
			Pattern:     regexp.MustCompile(`\b((?i:dear|hi|hello|hey))(\s+)[A-Z][a-z]+\b`),
			Replacement: "${1}${2}" + TokenName,
			Token:       TokenName,
		},
		{
			Name:        CategoryPersonName,
			Pattern:     regexp.MustCompile(`\b([A-Z][a-z]+)(\s+Family)\b`),
			Replacement: TokenName + "${2}",
			Token:       TokenName,
			Keep:        notFamilyWord,
		},
	}
}

var (
	fourByFour  = regexp.MustCompile(`^[0-9]{4}[-\s]?[0-9]{4}$`)
	groupBefore = regexp.MustCompile(`[0-9]{4}[-\s]?$`)
	groupAfter  = regexp.MustCompile(`^[-\s]?[0-9]{4}`)
)

// notFamilyWord rejects "Family Family" so a second pass over
// "[NAME] Family Family" changes nothing.
func notFamilyWord(text string, loc []int) bool {
	return text[loc[2]:loc[3]] != "Family"
}

// notCardFragment rejects phone matches such as "1111 1111" that are two
// groups of a longer card number. Phone runs before the card rule, so without
// this the card would be split and partly leaked.
func notCardFragment(text string, loc []int) bool {
	start, end := loc[3], loc[1]
	if !fourByFour.MatchString(text[start:end]) {
		return true
	}
	return !groupBefore.MatchString(text[:start]) && !groupAfter.MatchString(text[end:])
}

// Apply replaces every kept match and reports how many were replaced
func (r DetectionRule) Apply(text string) (string, int) {
	locs := r.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	out := make([]byte, 0, len(text))
	last, n := 0, 0
	for _, loc := range locs {
		if r.Keep != nil && !r.Keep(text, loc) {
			continue
		}
		out = append(out, text[last:loc[0]]...)
		out = r.Pattern.ExpandString(out, r.Replacement, text, loc)
		last = loc[1]
		n++
	}
	if n == 0 {
		return text, 0
	}
	out = append(out, text[last:]...)
	return string(out), n
}

// Count returns the number of kept matches without replacing anything
func (r DetectionRule) Count(text string) int {
	n := 0
	for _, loc := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
		if r.Keep == nil || r.Keep(text, loc) {
			n++
		}
	}
	return n
}

// RuleNames returns the distinct category names of rules in pipeline order
func RuleNames(rules []DetectionRule) []string {
	seen := make(map[Category]bool, len(rules))
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		if seen[rule.Name] {
			continue
		}
		seen[rule.Name] = true
		names = append(names, string(rule.Name))
	}
	return names
}
