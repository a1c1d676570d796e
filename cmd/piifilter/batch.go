package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/batch"
	"github.com/burnssa/superjective-extension/internal/cache"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBatchCmd(configPath *string) *cobra.Command {
	var (
		output      string
		inFormat    string
		outFormat   string
		batchSize   int
		workers     int
		recordAudit bool
	)

	cmd := &cobra.Command{
		Use:   "batch <input>",
		Short: "Redact a CSV, JSONL or Parquet dataset",
		Example: `  piifilter batch messages.csv -o redacted.jsonl
  piifilter batch export.parquet -o clean.parquet --workers 8
  cat rows.jsonl | piifilter batch - --in-format jsonl -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if batchSize > 0 {
				cfg.Batch.BatchSize = batchSize
			}
			if workers > 0 {
				cfg.Batch.WorkerCount = workers
			}

			var in, out batch.FileFormat
			if inFormat != "" {
				f, ok := batch.ParseFormat(inFormat)
				if !ok {
					return fmt.Errorf("unknown input format: %s", inFormat)
				}
				in = f
			}
			if outFormat != "" {
				f, ok := batch.ParseFormat(outFormat)
				if !ok {
					return fmt.Errorf("unknown output format: %s", outFormat)
				}
				out = f
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := observability.NewMetrics(prometheus.NewRegistry())
			eng, err := buildEngine(cfg, log, metrics)
			if err != nil {
				return err
			}
			defer eng.Close()

			var recorder batch.Recorder
			if recordAudit {
				store, err := audit.NewStore(cfg.Audit, log)
				if err != nil {
					return err
				}
				defer store.Close()
				recorder = store
			}

			pipeline := batch.NewPipeline(eng.Engine, recorder, cfg.Batch, log, metrics)
			result, err := pipeline.ProcessFile(ctx, args[0], output, in, out)
			if result != nil {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				enc.Encode(result)
			}
			if err != nil {
				log.Error("Batch redaction failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, or - for stdout")
	cmd.Flags().StringVar(&inFormat, "in-format", "", "Input format (csv, jsonl, parquet); detected from the extension by default")
	cmd.Flags().StringVar(&outFormat, "out-format", "", "Output format (csv, jsonl, parquet); detected from the extension by default")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override batch.batch_size")
	cmd.Flags().IntVar(&workers, "workers", 0, "Override batch.worker_count")
	cmd.Flags().BoolVar(&recordAudit, "audit", false, "Record finding counts in the audit store")
	return cmd
}

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect or prune the audit store",
	}

	var since time.Duration
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show redaction totals per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAudit(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			totals, err := store.Stats(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			for _, t := range totals {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s requests=%d total=%d\n", t.Category, t.Requests, t.Total)
			}
			return nil
		},
	}
	stats.Flags().DurationVar(&since, "since", 24*time.Hour, "Window to report on")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete findings older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAudit(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d findings\n", n)
			return err
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of findings to delete")

	cmd.AddCommand(stats, prune)
	return cmd
}

func openAudit(configPath string) (*audit.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return audit.NewStore(cfg.Audit, nopLogger())
}

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cached redaction results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rc, err := cache.NewResultCache(cfg.Cache, "", nopLogger(), nil)
			if err != nil {
				return err
			}
			defer rc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := rc.Clear(ctx); err != nil {
				return err
			}

			stats, err := rc.GetStats(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cache cleared, %d keys left in database\n", stats.TotalKeys)
			return err
		},
	})
	return cmd
}
