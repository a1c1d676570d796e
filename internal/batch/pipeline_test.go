package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

type recordingStore struct {
	mu       sync.Mutex
	findings []audit.Finding
}

func (r *recordingStore) Record(_ context.Context, f audit.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, f)
	return nil
}

func newTestPipeline(t *testing.T, cfg config.BatchConfig, rec Recorder) *Pipeline {
	t.Helper()
	log := logger.Wrap(zap.NewNop())
	engine, err := privacy.New(config.PrivacyConfig{}, log)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return NewPipeline(engine, rec, cfg, log, nil)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"in.csv":     FormatCSV,
		"in.PARQUET": FormatParquet,
		"in.jsonl":   FormatJSON,
		"in.ndjson":  FormatJSON,
		"-":          FormatCSV,
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("Expected xml to be rejected")
	}
}

func TestProcessCSVToJSONL(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.jsonl")

	input := "id,text\n1,Email a@b.co now\n2,nothing here\n3,Call 555-123-4567 or mail x@y.org\n"
	if err := os.WriteFile(in, []byte(input), 0600); err != nil {
		t.Fatal(err)
	}

	store := &recordingStore{}
	p := newTestPipeline(t, config.BatchConfig{BatchSize: 2, WorkerCount: 3}, store)

	result, err := p.ProcessFile(context.Background(), in, out, "", "")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.TotalRecords != 3 || result.ProcessedOK != 3 || result.ProcessedFailed != 0 {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.Redactions != 3 || result.Counts["email"] != 2 || result.Counts["phone"] != 1 {
		t.Errorf("Unexpected counts %+v", result)
	}
	if result.RunID == "" {
		t.Error("Expected a run ID")
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []OutputRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec OutputRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Invalid output line %q: %v", scanner.Text(), err)
		}
		got = append(got, rec)
	}

	want := []string{"Email [EMAIL] now", "nothing here", "Call [PHONE] or mail [EMAIL]"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("record %d = %q, want %q", i, got[i].Text, w)
		}
	}
	if got[0].ID != "1" || got[2].ID != "3" {
		t.Errorf("IDs not carried through: %+v", got)
	}

	if len(store.findings) != 2 {
		t.Fatalf("Expected 2 findings, got %d", len(store.findings))
	}
	for _, f := range store.findings {
		if f.Source != "batch" || !strings.HasPrefix(f.RequestID, result.RunID+"#") {
			t.Errorf("Unexpected finding %+v", f)
		}
	}
}

func TestProcessJSONLToCSV(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{BatchSize: 10, WorkerCount: 2}, nil)

	in := strings.NewReader(`{"id":"a","text":"See https://example.com/x"}` + "\n" + `{"text":"plain"}` + "\n")
	var out bytes.Buffer

	result, err := p.Process(context.Background(), in, FormatJSON, &out, FormatCSV)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.ProcessedOK != 2 {
		t.Errorf("Unexpected result %+v", result)
	}

	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV output: %v", err)
	}
	want := [][]string{
		{"id", "text", "redactions"},
		{"a", "See [URL]", "1"},
		{"", "plain", "0"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestProcessSkipsBadRows(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{BatchSize: 10, WorkerCount: 1, MaxTextBytes: 20}, nil)

	in := strings.NewReader(`{"text":"short a@b.co"}` + "\n" +
		`{"text":123}` + "\n" +
		`{"text":"this text is much longer than twenty bytes, ssn 123-45-6789"}` + "\n")
	var out bytes.Buffer

	result, err := p.Process(context.Background(), in, FormatJSON, &out, FormatJSON)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.TotalRecords != 3 || result.ProcessedOK != 1 || result.ProcessedFailed != 2 {
		t.Errorf("Unexpected result %+v", result)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %v", result.Errors)
	}
	if strings.Contains(out.String(), "123-45-6789") {
		t.Error("Oversized row must not be written unredacted")
	}
	if !strings.Contains(out.String(), "[EMAIL]") {
		t.Errorf("Expected the valid row in output, got %q", out.String())
	}
}

func TestProcessCSVMissingTextColumn(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{}, nil)
	var out bytes.Buffer
	if _, err := p.Process(context.Background(), strings.NewReader("id,body\n1,x\n"), FormatCSV, &out, FormatJSON); err == nil {
		t.Error("Expected error for CSV without text column")
	}
}

func TestProcessParquet(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.parquet")
	out := filepath.Join(dir, "out.parquet")

	records := []Record{
		{ID: "1", Text: "Server at 192.168.1.1 is down"},
		{ID: "2", Text: "It cost $50"},
	}
	if err := parquet.WriteFile(in, records); err != nil {
		t.Fatalf("Failed to write parquet input: %v", err)
	}

	p := newTestPipeline(t, config.BatchConfig{BatchSize: 1, WorkerCount: 2}, nil)
	result, err := p.ProcessFile(context.Background(), in, out, "", "")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.ProcessedOK != 2 {
		t.Errorf("Unexpected result %+v", result)
	}

	rows, err := parquet.ReadFile[parquetRow](out)
	if err != nil {
		t.Fatalf("Failed to read parquet output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Text != "Server at [IP] is down" || rows[0].Categories != "ip_address=1" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Text != "It cost [AMOUNT]" || rows[1].Redactions != 1 {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestProcessCanceled(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if _, err := p.Process(ctx, strings.NewReader(`{"text":"x"}`), FormatJSON, &out, FormatJSON); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[string]int{"phone": 1, "email": 2, "ssn": 0})
	if got != "email=2,phone=1" {
		t.Errorf("formatCounts = %q", got)
	}
}
