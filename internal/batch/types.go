package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one input row. Only Text is redacted; ID is carried through.
type Record struct {
	ID   string `csv:"id" parquet:"id,optional" json:"id,omitempty"`
	Text string `csv:"text" parquet:"text" json:"text"`
}

// OutputRecord is the redacted form of a Record
type OutputRecord struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Total    int            `json:"redactions"`
	Counts   map[string]int `json:"counts,omitempty"`
	Degraded bool           `json:"degraded,omitempty"`
}

// parquetRow is the flat Parquet layout of an OutputRecord
type parquetRow struct {
	ID         string `parquet:"id,optional"`
	Text       string `parquet:"text"`
	Redactions int64  `parquet:"redactions"`
	Categories string `parquet:"categories"`
	Degraded   bool   `parquet:"degraded"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	RunID           string         `json:"run_id"`
	TotalRecords    int64          `json:"total_records"`
	ProcessedOK     int64          `json:"processed_ok"`
	ProcessedFailed int64          `json:"processed_failed"`
	Redactions      int64          `json:"redactions"`
	Degraded        int64          `json:"degraded"`
	Counts          map[string]int `json:"counts"`
	Duration        time.Duration  `json:"duration"`
	Errors          []string       `json:"errors,omitempty"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// ParseFormat accepts a user supplied format name
func ParseFormat(name string) (FileFormat, bool) {
	switch strings.ToLower(name) {
	case "csv":
		return FormatCSV, true
	case "parquet":
		return FormatParquet, true
	case "json", "jsonl", "ndjson":
		return FormatJSON, true
	}
	return "", false
}
