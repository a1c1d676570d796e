package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
	"github.com/burnssa/superjective-extension/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_findings (
	id          BIGSERIAL PRIMARY KEY,
	request_id  TEXT NOT NULL,
	source      TEXT NOT NULL,
	category    TEXT NOT NULL,
	count       INTEGER NOT NULL,
	degraded    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_redaction_findings_created_at ON redaction_findings (created_at);`

// Store records how many items of each category were redacted per request.
// It never receives the text itself.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// Finding is one filtering pass as seen by the audit log
type Finding struct {
	RequestID string
	Source    string // http, batch or cli
	Counts    map[string]int
	Degraded  bool
}

// CategoryTotal is an aggregated row returned by Stats
type CategoryTotal struct {
	Category string `db:"category" json:"category"`
	Requests int64  `db:"requests" json:"requests"`
	Total    int64  `db:"total" json:"total"`
}

// NewStore connects to PostgreSQL and creates the findings table if needed
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: log.WithComponent("audit"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	store.logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts one row per non-zero category. A finding with no counts is
// not written.
func (s *Store) Record(ctx context.Context, f Finding) error {
	query, args := buildInsert(f)
	if query == "" {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("Failed to record finding",
			zap.Error(err),
			zap.String("request_id", f.RequestID))
		return fmt.Errorf("failed to record finding: %w", err)
	}
	return nil
}

// buildInsert renders a multi-row insert with categories in a stable order
func buildInsert(f Finding) (string, []interface{}) {
	categories := make([]string, 0, len(f.Counts))
	for category, n := range f.Counts {
		if n > 0 {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return "", nil
	}
	sort.Strings(categories)

	valueStrings := make([]string, 0, len(categories))
	args := make([]interface{}, 0, len(categories)*5)
	for i, category := range categories {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		args = append(args, f.RequestID, f.Source, category, f.Counts[category], f.Degraded)
	}

	query := "INSERT INTO redaction_findings (request_id, source, category, count, degraded) VALUES " +
		strings.Join(valueStrings, ", ")
	return query, args
}

// Stats aggregates findings recorded since the given time
func (s *Store) Stats(ctx context.Context, since time.Time) ([]CategoryTotal, error) {
	query := `
		SELECT
			category,
			COUNT(DISTINCT request_id) AS requests,
			SUM(count) AS total
		FROM redaction_findings
		WHERE created_at >= $1
		GROUP BY category
		ORDER BY total DESC, category`

	var totals []CategoryTotal
	if err := s.db.SelectContext(ctx, &totals, query, since); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}
	return totals, nil
}

// Prune deletes findings older than the given time and reports how many went
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM redaction_findings WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune findings: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
