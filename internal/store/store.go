// Package store persists IBI recordings and their evaluation results in
// SQLite or PostgreSQL through database/sql.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/chrissnell/ibimetrics/internal/log"
	"github.com/chrissnell/ibimetrics/pkg/migrate"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a recording does not exist
var ErrNotFound = errors.New("recording not found")

// Sample roles
const (
	RoleReference = "reference"
	RoleCandidate = "candidate"
)

// Metric names stored with each evaluation
const (
	MetricRMSE = "rmse"
	MetricTCR  = "tcr"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Recording pairs the reference and candidate series of one session
type Recording struct {
	Name      string     `json:"name" msgpack:"name"`
	Reference ibi.Series `json:"reference" msgpack:"reference"`
	Candidate ibi.Series `json:"candidate" msgpack:"candidate"`
}

// Evaluation is one metric computed for one recording. Value is NaN when
// the metric failed (Error is set) or the RMSE selection was empty under the
// NaN policy.
type Evaluation struct {
	ID        uuid.UUID `json:"id" msgpack:"id"`
	RunID     uuid.UUID `json:"run_id" msgpack:"run_id"`
	Recording string    `json:"recording" msgpack:"recording"`
	Metric    string    `json:"metric" msgpack:"metric"`
	Value     float64   `json:"value" msgpack:"value"`
	Params    string    `json:"params" msgpack:"params"`
	Diffs     []float64 `json:"diffs,omitempty" msgpack:"diffs,omitempty"`
	Coverage  []bool    `json:"coverage,omitempty" msgpack:"coverage,omitempty"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// Store is a recording and evaluation store
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.SugaredLogger
}

// Open connects to the database and creates the schema if needed.
// driver is "sqlite" (modernc.org/sqlite) or "postgres" (lib/pq).
func Open(ctx context.Context, driver, dsn string, logger *zap.SugaredLogger) (*Store, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, logger: log.OrNop(logger)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	provider := migrate.NewFSProvider(migrations, "migrations", "schema_migrations", s.driver)
	if err := migrate.NewMigrator(s.db, provider, s.logger).MigrateUp(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRecording inserts or replaces a recording and its samples
func (s *Store) SaveRecording(ctx context.Context, rec Recording) error {
	if rec.Name == "" {
		return errors.New("recording name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO recordings (name, created_at) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET created_at = EXCLUDED.created_at`),
		rec.Name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert recording: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM samples WHERE recording = ?`), rec.Name)
	if err != nil {
		return fmt.Errorf("failed to delete previous samples: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO samples (recording, role, seq, t, v) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, part := range []struct {
		role   string
		series ibi.Series
	}{
		{RoleReference, rec.Reference},
		{RoleCandidate, rec.Candidate},
	} {
		if len(part.series.Times) != len(part.series.Values) {
			return fmt.Errorf("%s series: %w: %d times but %d values",
				part.role, ibi.ErrInvalidSeries, len(part.series.Times), len(part.series.Values))
		}
		for i := range part.series.Times {
			_, err = stmt.ExecContext(ctx, rec.Name, part.role, i, part.series.Times[i], part.series.Values[i])
			if err != nil {
				return fmt.Errorf("failed to insert %s sample: %w", part.role, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debugf("Saved recording %s: %d reference and %d candidate samples",
		rec.Name, rec.Reference.Len(), rec.Candidate.Len())
	return nil
}

// LoadRecording reads a recording's series in time order
func (s *Store) LoadRecording(ctx context.Context, name string) (Recording, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM recordings WHERE name = ?`), name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("failed to look up recording: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT role, t, v FROM samples WHERE recording = ? ORDER BY role, seq`), name)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	rec := Recording{Name: name}
	for rows.Next() {
		var role string
		var t, v float64
		if err := rows.Scan(&role, &t, &v); err != nil {
			return Recording{}, fmt.Errorf("failed to scan row: %w", err)
		}
		switch role {
		case RoleReference:
			rec.Reference.Times = append(rec.Reference.Times, t)
			rec.Reference.Values = append(rec.Reference.Values, v)
		case RoleCandidate:
			rec.Candidate.Times = append(rec.Candidate.Times, t)
			rec.Candidate.Values = append(rec.Candidate.Values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return Recording{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return rec, nil
}

// ListRecordings returns recording names in lexical order
func (s *Store) ListRecordings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM recordings ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SaveEvaluations stores evaluation results in one transaction
func (s *Store) SaveEvaluations(ctx context.Context, evals []Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO evaluations (id, run_id, recording, metric, value, params, detail, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range evals {
		detail, err := encodeDetail(e.Diffs, e.Coverage)
		if err != nil {
			return fmt.Errorf("failed to encode %s detail for %s: %w", e.Metric, e.Recording, err)
		}
		// SQLite turns NaN into NULL, so store it as NULL everywhere
		value := sql.NullFloat64{Float64: e.Value, Valid: !math.IsNaN(e.Value)}
		_, err = stmt.ExecContext(ctx, e.ID.String(), e.RunID.String(), e.Recording, e.Metric,
			value, e.Params, detail, e.Error, e.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert evaluation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debugf("Saved %d evaluations", len(evals))
	return nil
}

// Evaluations returns a recording's stored evaluations, oldest first
func (s *Store) Evaluations(ctx context.Context, recording string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, run_id, recording, metric, value, params, detail, error, created_at
		 FROM evaluations WHERE recording = ? ORDER BY created_at, metric`), recording)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var (
			e              Evaluation
			id, runID      string
			value          sql.NullFloat64
			detail         []byte
			createdAtMilli int64
		)
		if err := rows.Scan(&id, &runID, &e.Recording, &e.Metric, &value, &e.Params, &detail, &e.Error, &createdAtMilli); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad evaluation id %q: %w", id, err)
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("bad run id %q: %w", runID, err)
		}
		e.Value = math.NaN()
		if value.Valid {
			e.Value = value.Float64
		}
		if e.Diffs, e.Coverage, err = decodeDetail(detail); err != nil {
			return nil, fmt.Errorf("failed to decode detail for %s: %w", id, err)
		}
		e.CreatedAt = time.UnixMilli(createdAtMilli)
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
