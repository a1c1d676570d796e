package ner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DictionaryFile is the YAML layout of a name list
type DictionaryFile struct {
	Names []string `yaml:"names"`
}

// DictionaryRecognizer reports known names that occur as whole words
type DictionaryRecognizer struct {
	matcher *AhoMatcher
	size    int
}

// LoadDictionary reads a YAML name list from path
func LoadDictionary(path string) (*DictionaryRecognizer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dictionary path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	var file DictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}
	return NewDictionary(file.Names)
}

// NewDictionary builds a recognizer from an in-memory name list
func NewDictionary(names []string) (*DictionaryRecognizer, error) {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	matcher, err := NewAhoMatcher(cleaned)
	if err != nil {
		return nil, fmt.Errorf("build dictionary: %w", err)
	}
	return &DictionaryRecognizer{matcher: matcher, size: len(cleaned)}, nil
}

func (d *DictionaryRecognizer) RecognizeNames(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spans []Span
	for _, m := range d.matcher.FindAll(text) {
		if !wordEdgeBefore(text, m[0]) || !wordEdgeAfter(text, m[1]) {
			continue
		}
		spans = append(spans, Span{Label: "PER", Start: m[0], End: m[1]})
	}
	return spanTexts(text, spans), nil
}

func (d *DictionaryRecognizer) Backend() string { return "dictionary" }

func (d *DictionaryRecognizer) Close() error { return nil }

// Len returns the number of names loaded
func (d *DictionaryRecognizer) Len() int { return d.size }

// wordEdgeBefore reports whether the rune ending at i is not a letter,
// digit, mark or underscore. Start of text counts as an edge.
func wordEdgeBefore(text string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

// wordEdgeAfter is wordEdgeBefore for the rune starting at i
func wordEdgeAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
