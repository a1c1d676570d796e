package privacy

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var errRecognizerPanic = errors.New("name recognizer panicked")

type recognition struct {
	names []string
	err   error
}

// recognizeNames runs the recognizer under the configured deadline. The call
// happens on its own goroutine so a recognizer that ignores ctx cannot stall
// the filter; its late result is discarded.
func (e *Engine) recognizeNames(ctx context.Context, text string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.nerTimeout)
	defer cancel()

	done := make(chan recognition, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- recognition{err: errRecognizerPanic}
			}
		}()
		names, err := e.recognizer.RecognizeNames(ctx, text)
		done <- recognition{names: names, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return text, 0, res.err
		}
		out, n := replaceNames(text, res.names)
		return out, n, nil
	case <-ctx.Done():
		return text, 0, ctx.Err()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errRecognizerPanic):
		return "panic"
	default:
		return "error"
	}
}

// replaceNames replaces each detected name, longest first, as a whole word
// and case-insensitively. Matches inside existing placeholders are left alone.
func replaceNames(text string, names []string) (string, int) {
	total := 0
	for _, name := range normalizeNames(names) {
		re, err := namePattern(name)
		if err != nil {
			continue
		}
		var n int
		text, n = replaceOutsidePlaceholders(text, re)
		total += n
	}
	return text, total
}

// normalizeNames trims, drops empties and placeholder-like strings, removes
// case-insensitive duplicates and orders the result longest first.
func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, "[]") {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// namePattern builds a case-insensitive matcher for a literal name. Word
// edges are checked on runes by replaceOutsidePlaceholders because \b only
// knows ASCII word characters.
func namePattern(name string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + regexp.QuoteMeta(name))
}

// replaceOutsidePlaceholders replaces whole-word matches of re that do not
// touch an existing placeholder. A rejected match resumes the search one rune
// later so an overlapping whole-word match is still found.
func replaceOutsidePlaceholders(text string, re *regexp.Regexp) (string, int) {
	placeholders := placeholderPattern.FindAllStringIndex(text, -1)

	var b strings.Builder
	last, n := 0, 0
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil || loc[0] == loc[1] {
			break
		}
		m := []int{pos + loc[0], pos + loc[1]}
		if !wholeWord(text, m[0], m[1]) || overlapsAny(m, placeholders) {
			_, size := utf8.DecodeRuneInString(text[m[0]:])
			pos = m[0] + size
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(TokenName)
		last, pos = m[1], m[1]
		n++
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}

// wholeWord reports whether text[start:end] is not glued to a word rune on
// either side. Edges of the match that are themselves not word runes, such
// as "(Bo)", need no boundary.
func wholeWord(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	lastRune, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(lastRune) && end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func overlapsAny(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] < s[1] && s[0] < span[1] {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
