package ner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"go.uber.org/zap"
)

func TestAhoMatcherFindAll(t *testing.T) {
	m, err := NewAhoMatcher([]string{"ann", "jo ann", "jo"})
	if err != nil {
		t.Fatalf("Failed to build matcher: %v", err)
	}

	got := m.FindAll("JO ANN")
	want := [][2]int{{0, 2}, {0, 6}, {3, 6}}
	if len(got) != len(want) {
		t.Fatalf("FindAll = %v, want %v", got, want)
	}
	seen := map[[2]int]bool{}
	for _, g := range got {
		seen[g] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("Missing match %v in %v", w, got)
		}
	}

	if _, err := NewAhoMatcher(nil); err == nil {
		t.Error("Expected error for empty pattern list")
	}
	if _, err := NewAhoMatcher([]string{""}); err == nil {
		t.Error("Expected error for only empty patterns")
	}
}

func TestDictionaryRecognizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "names.yaml")
	if err := os.WriteFile(path, []byte("names:\n  - Alice\n  - Jo Ann\n  - \" \"\n"), 0600); err != nil {
		t.Fatalf("Failed to write dictionary: %v", err)
	}

	d, err := LoadDictionary(path)
	if err != nil {
		t.Fatalf("Failed to load dictionary: %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("Expected 2 names, got %d", d.Len())
	}

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"whole words", "alice met Jo Ann", []string{"alice", "Jo Ann"}},
		{"inside word", "Malice and Aliceson", []string{}},
		{"punctuation edges", "(Alice), ALICE.", []string{"Alice", "ALICE"}},
		{"accented neighbours", "Aliceño met Alice’s friend", []string{"Alice"}},
		{"none", "nobody here", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.RecognizeNames(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("RecognizeNames failed: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RecognizeNames(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.RecognizeNames(ctx, "Alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWordPieceOffsets(t *testing.T) {
	vocab := map[string]int64{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"hi": 4, "jo": 5, "##hn": 6, ",": 7, "smith": 8,
	}
	tok := NewWordPieceTokenizer(vocab, true)

	ids, attn, offsets := tok.EncodeWithOffsets("Hi John, Smith", 10)
	wantIDs := []int64{2, 4, 5, 6, 7, 8, 3, 0, 0, 0}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ids = %v, want %v", ids, wantIDs)
	}
	wantAttn := []int64{1, 1, 1, 1, 1, 1, 1, 0, 0, 0}
	if !reflect.DeepEqual(attn, wantAttn) {
		t.Errorf("attn = %v, want %v", attn, wantAttn)
	}
	if offsets[2] != (tokenOffset{3, 5}) || offsets[3] != (tokenOffset{5, 7}) || offsets[4] != (tokenOffset{7, 8}) {
		t.Errorf("unexpected offsets %v", offsets)
	}
	if offsets[0].Start != -1 || offsets[6].Start != -1 {
		t.Errorf("special tokens should have no offset: %v", offsets)
	}

	ids, _, _ = tok.EncodeWithOffsets("hi hi hi hi", 4)
	if len(ids) != 4 || ids[0] != 2 || ids[3] != 3 {
		t.Errorf("truncated ids = %v", ids)
	}
}

func TestSpansFromTokenLabels(t *testing.T) {
	text := "Hi Jo Ann from Acme"
	offsets := []tokenOffset{{-1, -1}, {0, 2}, {3, 5}, {6, 9}, {10, 14}, {15, 19}, {-1, -1}}
	labels := []string{"O", "O", "B-PER", "I-PER", "O", "B-ORG", "O"}

	spans := spansFromTokenLabels(labels, offsets)
	want := []Span{{Label: "PER", Start: 3, End: 9}, {Label: "ORG", Start: 15, End: 19}}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("spans = %v, want %v", spans, want)
	}

	names := spanTexts(text, personSpans(spans, "per"))
	if !reflect.DeepEqual(names, []string{"Jo Ann"}) {
		t.Errorf("names = %v", names)
	}
}

func TestArgmaxLabels(t *testing.T) {
	logits := []float32{
		0.9, 0.1, 0.0,
		0.1, 2.0, 0.3,
		0.0, 0.5, 1.5,
	}
	got := argmaxLabels(logits, 3, []string{"O", "B-PER", "I-PER"}, 4)
	want := []string{"O", "B-PER", "I-PER", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argmaxLabels = %v, want %v", got, want)
	}
}

func TestLoadModelMeta(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"id2label": {"0": "O", "2": "I-PER", "1": "B-PER"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(`{"do_lower_case": false}`), 0600); err != nil {
		t.Fatal(err)
	}

	meta, err := LoadModelMeta(dir)
	if err != nil {
		t.Fatalf("LoadModelMeta failed: %v", err)
	}
	if !reflect.DeepEqual(meta.Labels, []string{"O", "B-PER", "I-PER"}) {
		t.Errorf("labels = %v", meta.Labels)
	}
	if meta.LowerCase {
		t.Error("Expected do_lower_case false to be honoured")
	}

	if _, err := LoadModelMeta(t.TempDir()); err == nil {
		t.Error("Expected error for missing config.json")
	}
}

func TestHTTPRecognizer(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = req.Model
		json.NewEncoder(w).Encode(generateResponse{Response: "Sure! [\"Alice\", \"Bob Stone\"]"})
	}))
	defer srv.Close()

	r := NewHTTPRecognizer(srv.URL+"/", "llama3.2", srv.Client())
	names, err := r.RecognizeNames(context.Background(), "Alice met Bob Stone")
	if err != nil {
		t.Fatalf("RecognizeNames failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Alice", "Bob Stone"}) {
		t.Errorf("names = %v", names)
	}
	if gotModel != "llama3.2" {
		t.Errorf("model = %q", gotModel)
	}

	if _, err := parseNameList("no names here"); err == nil {
		t.Error("Expected error for reply without array")
	}
}

func TestHTTPRecognizerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewHTTPRecognizer(srv.URL, "m", nil)
	if _, err := r.RecognizeNames(context.Background(), "Alice"); err == nil {
		t.Error("Expected error for non-200 status")
	}
}

func TestNewFactory(t *testing.T) {
	log := logger.Wrap(zap.NewNop())

	dir := t.TempDir()
	path := filepath.Join(dir, "names.yaml")
	if err := os.WriteFile(path, []byte("names: [Alice]\n"), 0600); err != nil {
		t.Fatal(err)
	}

	r, err := New(config.NERConfig{Backend: "dictionary", DictionaryPath: path}, log)
	if err != nil {
		t.Fatalf("New dictionary failed: %v", err)
	}
	if r.Backend() != "dictionary" {
		t.Errorf("backend = %s", r.Backend())
	}
	defer r.Close()

	r, err = New(config.NERConfig{Backend: "http", Endpoint: "http://localhost:1"}, log)
	if err != nil || r.Backend() != "http" {
		t.Errorf("New http = %v, %v", r, err)
	}

	if _, err := New(config.NERConfig{Backend: "spacy"}, log); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := New(config.NERConfig{Backend: "dictionary"}, log); err == nil {
		t.Error("Expected error for missing dictionary path")
	}
}
