package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// errSkip marks a malformed input row that was skipped
var errSkip = errors.New("malformed record")

type source interface {
	Next() (*Record, error)
	Close() error
}

type sink interface {
	Write(OutputRecord) error
	Close() error
}

// openSource opens path for reading; "-" is stdin for row formats
func openSource(path string, format FileFormat) (source, error) {
	if path == "-" {
		if format == FormatParquet {
			return nil, fmt.Errorf("parquet input cannot be read from stdin")
		}
		return newSource(io.NopCloser(os.Stdin), format)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	if format == FormatParquet {
		return &parquetSource{file: file, reader: parquet.NewReader(file)}, nil
	}
	src, err := newSource(file, format)
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

func newSource(r io.ReadCloser, format FileFormat) (source, error) {
	switch format {
	case FormatCSV:
		return newCSVSource(r)
	case FormatJSON:
		return &jsonSource{closer: r, decoder: json.NewDecoder(r)}, nil
	default:
		return nil, fmt.Errorf("unsupported input format: %s", format)
	}
}

// openSink creates path for writing; "-" is stdout for row formats
func openSink(path string, format FileFormat) (sink, error) {
	var w io.WriteCloser
	if path == "-" {
		if format == FormatParquet {
			return nil, fmt.Errorf("parquet output cannot be written to stdout")
		}
		w = nopWriteCloser{os.Stdout}
	} else {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		w = file
	}
	return newSink(w, format)
}

func newSink(w io.WriteCloser, format FileFormat) (sink, error) {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"id", "text", "redactions"}); err != nil {
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvSink{closer: w, writer: cw}, nil
	case FormatJSON:
		return &jsonSink{closer: w, encoder: json.NewEncoder(w)}, nil
	case FormatParquet:
		return &parquetSink{closer: w, writer: parquet.NewGenericWriter[parquetRow](w)}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// csvSource reads a CSV file with a header row containing a "text" column and
// optionally an "id" column.
type csvSource struct {
	closer  io.Closer
	reader  *csv.Reader
	textIdx int
	idIdx   int
}

func newCSVSource(r io.ReadCloser) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	src := &csvSource{closer: r, reader: reader, textIdx: -1, idIdx: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "text":
			src.textIdx = i
		case "id":
			src.idIdx = i
		}
	}
	if src.textIdx < 0 {
		return nil, fmt.Errorf("CSV header has no text column")
	}
	return src, nil
}

func (s *csvSource) Next() (*Record, error) {
	row, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%w: %v", errSkip, err)
		}
		return nil, err
	}
	if s.textIdx >= len(row) {
		return nil, fmt.Errorf("%w: row has %d fields", errSkip, len(row))
	}
	rec := &Record{Text: row[s.textIdx]}
	if s.idIdx >= 0 && s.idIdx < len(row) {
		rec.ID = row[s.idIdx]
	}
	return rec, nil
}

func (s *csvSource) Close() error { return s.closer.Close() }

// jsonSource reads one JSON object per line
type jsonSource struct {
	closer  io.Closer
	decoder *json.Decoder
}

func (s *jsonSource) Next() (*Record, error) {
	var rec Record
	if err := s.decoder.Decode(&rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", errSkip, err)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *jsonSource) Close() error { return s.closer.Close() }

type parquetSource struct {
	file   *os.File
	reader *parquet.Reader
}

func (s *parquetSource) Next() (*Record, error) {
	var rec Record
	if err := s.reader.Read(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}

type csvSink struct {
	closer io.Closer
	writer *csv.Writer
}

func (s *csvSink) Write(rec OutputRecord) error {
	return s.writer.Write([]string{rec.ID, rec.Text, strconv.Itoa(rec.Total)})
}

func (s *csvSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.closer.Close()
		return err
	}
	return s.closer.Close()
}

type jsonSink struct {
	closer  io.Closer
	encoder *json.Encoder
}

func (s *jsonSink) Write(rec OutputRecord) error { return s.encoder.Encode(rec) }

func (s *jsonSink) Close() error { return s.closer.Close() }

type parquetSink struct {
	closer io.Closer
	writer *parquet.GenericWriter[parquetRow]
}

func (s *parquetSink) Write(rec OutputRecord) error {
	_, err := s.writer.Write([]parquetRow{{
		ID:         rec.ID,
		Text:       rec.Text,
		Redactions: int64(rec.Total),
		Categories: formatCounts(rec.Counts),
		Degraded:   rec.Degraded,
	}})
	return err
}

func (s *parquetSink) Close() error {
	if err := s.writer.Close(); err != nil {
		s.closer.Close()
		return err
	}
	return s.closer.Close()
}

// formatCounts renders counts as "email=2,phone=1" in key order
func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Itoa(counts[k])
	}
	return strings.Join(parts, ",")
}
