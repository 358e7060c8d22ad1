package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/koelab/koe-sentinel/internal/privacy"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS masking_events (
	id         BIGSERIAL PRIMARY KEY,
	category   TEXT NOT NULL,
	matches    INTEGER NOT NULL,
	action     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS masking_events_created_at_idx ON masking_events (created_at);
`

// Store records anonymous usage statistics in PostgreSQL. Rows carry
// category counts and verdicts only; the schema has nowhere to put text.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the stats database and ensures the schema exists.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize stats store: %w", err)
	}

	logger.Info("Usage-stats store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RecordMasking stores one row per finding of a masking call, plus a
// verdict-only row when the call was blocked or warned without findings.
func (s *Store) RecordMasking(ctx context.Context, findings []privacy.Finding, action string) error {
	if len(findings) == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO masking_events (category, matches, action) VALUES ($1, $2, $3)`,
			"none", 0, action)
		if err != nil {
			return fmt.Errorf("insert masking event: %w", err)
		}
		return nil
	}

	for _, finding := range findings {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO masking_events (category, matches, action) VALUES ($1, $2, $3)`,
			string(finding.Category), finding.Count, action)
		if err != nil {
			return fmt.Errorf("insert masking event: %w", err)
		}
	}
	return nil
}

// Summary aggregates recorded events per category.
func (s *Store) Summary(ctx context.Context) ([]CategorySummary, error) {
	var summaries []CategorySummary
	err := s.db.SelectContext(ctx, &summaries, `
		SELECT category, COUNT(*) AS events, COALESCE(SUM(matches), 0) AS total_counts
		FROM masking_events
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	return summaries, nil
}

// Events returns all recorded events since the cutoff, oldest first.
func (s *Store) Events(ctx context.Context, since time.Time) ([]MaskingEvent, error) {
	var events []MaskingEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, category, matches, action, created_at
		FROM masking_events
		WHERE created_at >= $1
		ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// PruneOlderThan deletes events older than the given number of days and
// returns the number of rows removed. Driven by the user's
// autoDeleteLogsAfterDays setting.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM masking_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read affected rows: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Pruned usage-stats rows",
			zap.Int64("deleted", deleted),
			zap.Int("older_than_days", days))
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// maskDatabaseURL masks credentials in a database URL for logging.
func maskDatabaseURL(url string) string {
	if at := strings.LastIndex(url, "@"); at != -1 {
		if scheme := strings.Index(url, "://"); scheme != -1 {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
