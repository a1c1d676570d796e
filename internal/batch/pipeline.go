package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor is the part of the redaction engine the pipeline needs
type Processor interface {
	Process(ctx context.Context, text string) privacy.Result
}

// Recorder receives per-record finding counts, e.g. the audit store
type Recorder interface {
	Record(ctx context.Context, f audit.Finding) error
}

// Pipeline redacts every record of a dataset and writes the result in input
// order. Records are redacted concurrently within a batch.
type Pipeline struct {
	engine   Processor
	recorder Recorder
	config   config.BatchConfig
	logger   *logger.Logger
	metrics  *observability.Metrics
}

// NewPipeline creates a new batch pipeline. recorder and metrics may be nil.
func NewPipeline(engine Processor, recorder Recorder, cfg config.BatchConfig, log *logger.Logger, m *observability.Metrics) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Pipeline{
		engine:   engine,
		recorder: recorder,
		config:   cfg,
		logger:   log.WithComponent("batch"),
		metrics:  m,
	}
}

// ProcessFile redacts inPath into outPath. Formats are detected from the
// extensions unless given explicitly; "-" selects stdin or stdout.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string, inFormat, outFormat FileFormat) (*ProcessingResult, error) {
	if inFormat == "" {
		inFormat = DetectFileFormat(inPath)
	}
	if outFormat == "" {
		outFormat = DetectFileFormat(outPath)
	}

	src, err := openSource(inPath, inFormat)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := openSink(outPath, outFormat)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Starting batch redaction",
		zap.String("input_format", string(inFormat)),
		zap.String("output_format", string(outFormat)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	result, runErr := p.run(ctx, src, dst)
	if err := dst.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to finish output: %w", err)
	}
	return result, runErr
}

// Process redacts records read from r into w
func (p *Pipeline) Process(ctx context.Context, r io.Reader, inFormat FileFormat, w io.Writer, outFormat FileFormat) (*ProcessingResult, error) {
	src, err := newSource(io.NopCloser(r), inFormat)
	if err != nil {
		return nil, err
	}
	dst, err := newSink(nopWriteCloser{w}, outFormat)
	if err != nil {
		return nil, err
	}

	result, runErr := p.run(ctx, src, dst)
	if err := dst.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to finish output: %w", err)
	}
	return result, runErr
}

func (p *Pipeline) run(ctx context.Context, src source, dst sink) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{
		RunID:  uuid.NewString(),
		Counts: make(map[string]int),
	}
	log := p.logger.WithRequestID(result.RunID)

	var row, lastReport int64
	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		batch, eof, err := p.readBatch(src, result, &row)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("failed to read batch: %w", err)
		}

		if len(batch) > 0 {
			outputs := p.processBatch(ctx, batch)
			for i, out := range outputs {
				if err := dst.Write(out); err != nil {
					result.Duration = time.Since(start)
					return result, fmt.Errorf("failed to write record: %w", err)
				}
				p.account(ctx, result, batch[i], out)
			}

			if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
				p.reportProgress(log, result, start)
				lastReport = result.TotalRecords
			}
		}

		if eof {
			break
		}
	}

	result.Duration = time.Since(start)
	log.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("redactions", result.Redactions),
		zap.Duration("total_duration", result.Duration))

	return result, nil
}

type indexedRecord struct {
	row    int64
	record *Record
}

// readBatch reads up to BatchSize valid records. Malformed and oversized rows
// are counted as failures and never written, so unredacted text cannot leak
// into the output.
func (p *Pipeline) readBatch(src source, result *ProcessingResult, row *int64) ([]indexedRecord, bool, error) {
	batch := make([]indexedRecord, 0, p.config.BatchSize)
	for len(batch) < p.config.BatchSize {
		rec, err := src.Next()
		if err == io.EOF {
			return batch, true, nil
		}
		*row++
		if errors.Is(err, errSkip) {
			p.fail(result, fmt.Sprintf("row %d: %v", *row, err))
			continue
		}
		if err != nil {
			return batch, false, err
		}
		if p.config.MaxTextBytes > 0 && len(rec.Text) > p.config.MaxTextBytes {
			p.fail(result, fmt.Sprintf("row %d: text exceeds %d bytes", *row, p.config.MaxTextBytes))
			continue
		}
		batch = append(batch, indexedRecord{row: *row, record: rec})
	}
	return batch, false, nil
}

func (p *Pipeline) fail(result *ProcessingResult, msg string) {
	result.TotalRecords++
	result.ProcessedFailed++
	if len(result.Errors) < 100 {
		result.Errors = append(result.Errors, msg)
	}
	p.metrics.BatchRecord("failed")
}

// processBatch redacts a batch with WorkerCount goroutines, keeping order
func (p *Pipeline) processBatch(ctx context.Context, batch []indexedRecord) []OutputRecord {
	outputs := make([]OutputRecord, len(batch))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.config.WorkerCount, len(batch)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec := batch[i].record
				res := p.engine.Process(ctx, rec.Text)
				outputs[i] = OutputRecord{
					ID:       rec.ID,
					Text:     res.Text,
					Total:    res.Total,
					Counts:   res.CountsByName(),
					Degraded: res.Degraded,
				}
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outputs
}

func (p *Pipeline) account(ctx context.Context, result *ProcessingResult, in indexedRecord, out OutputRecord) {
	result.TotalRecords++
	result.ProcessedOK++
	result.Redactions += int64(out.Total)
	for k, v := range out.Counts {
		result.Counts[k] += v
	}
	if out.Degraded {
		result.Degraded++
	}
	p.metrics.BatchRecord("ok")

	if p.recorder == nil || out.Total == 0 {
		return
	}
	finding := audit.Finding{
		RequestID: fmt.Sprintf("%s#%d", result.RunID, in.row),
		Source:    "batch",
		Counts:    out.Counts,
		Degraded:  out.Degraded,
	}
	if err := p.recorder.Record(ctx, finding); err != nil {
		p.logger.Warn("Failed to record batch finding", zap.Error(err), zap.Int64("row", in.row))
	}
}

func (p *Pipeline) reportProgress(log *logger.Logger, result *ProcessingResult, start time.Time) {
	elapsed := time.Since(start)
	log.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", float64(result.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}
