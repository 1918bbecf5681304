package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantfold/signalrun/internal/domain"
)

// Schema for the append-only decision log. id is the generated decision id;
// is_superseded is the only column ever updated after insert.
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id                  TEXT PRIMARY KEY,
	symbol              TEXT NOT NULL,
	ts                  TIMESTAMPTZ NOT NULL,
	bias                TEXT NOT NULL,
	conviction          DOUBLE PRECISION NOT NULL,
	pillar_scores       JSONB NOT NULL,
	pillar_biases       JSONB NOT NULL,
	active_pillars      INTEGER NOT NULL,
	placeholder_pillars INTEGER NOT NULL,
	failed_pillars      JSONB NOT NULL,
	calibration_version TEXT NOT NULL,
	contract_version    TEXT NOT NULL,
	is_superseded       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON decisions (symbol, ts DESC);
`

// PostgresStore implements Store over PostgreSQL. Inserts are transactional
// single-row writes, which gives the single-writer guarantee the append log
// needs; reads run without locks.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore creates a PostgreSQL decision log over an open connection.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

// EnsureSchema creates the decisions table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure decisions schema: %w", err)
	}
	return nil
}

type decisionRow struct {
	ID                 string    `db:"id"`
	Symbol             string    `db:"symbol"`
	Timestamp          time.Time `db:"ts"`
	Bias               string    `db:"bias"`
	Conviction         float64   `db:"conviction"`
	PillarScores       []byte    `db:"pillar_scores"`
	PillarBiases       []byte    `db:"pillar_biases"`
	ActivePillars      int       `db:"active_pillars"`
	PlaceholderPillars int       `db:"placeholder_pillars"`
	FailedPillars      []byte    `db:"failed_pillars"`
	CalibrationVersion string    `db:"calibration_version"`
	ContractVersion    string    `db:"contract_version"`
	IsSuperseded       bool      `db:"is_superseded"`
	CreatedAt          time.Time `db:"created_at"`
}

// Save writes one immutable decision row and returns its generated id.
// Storage failures propagate: the log is an audit trail and silent loss is
// unacceptable.
func (s *PostgresStore) Save(ctx context.Context, decision *domain.Decision) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id := uuid.New().String()
	entry := entryFromDecision(decision, id, time.Now())

	scoresJSON, err := json.Marshal(entry.PillarScores)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pillar scores: %w", err)
	}
	biasesJSON, err := json.Marshal(entry.PillarBiases)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pillar biases: %w", err)
	}
	failed := entry.FailedPillars
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return "", fmt.Errorf("failed to marshal failed pillars: %w", err)
	}

	query := `
		INSERT INTO decisions (id, symbol, ts, bias, conviction, pillar_scores, pillar_biases,
			active_pillars, placeholder_pillars, failed_pillars, calibration_version, contract_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.Symbol, entry.Timestamp, string(entry.Bias), entry.Conviction,
		scoresJSON, biasesJSON, entry.ActivePillars, entry.PlaceholderPillars,
		failedJSON, entry.CalibrationVersion, entry.ContractVersion)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", fmt.Errorf("duplicate decision id %s: %w", id, err)
		}
		return "", fmt.Errorf("failed to insert decision: %w", err)
	}

	return id, nil
}

// History retrieves entries for a symbol, newest first.
func (s *PostgresStore) History(ctx context.Context, symbol string, filter Filter) ([]domain.DecisionHistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	start := filter.Start
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	end := filter.End
	if end.IsZero() {
		end = time.Now().Add(24 * time.Hour)
	}

	query := `
		SELECT id, symbol, ts, bias, conviction, pillar_scores, pillar_biases,
			active_pillars, placeholder_pillars, failed_pillars,
			calibration_version, contract_version, is_superseded, created_at
		FROM decisions
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	var rows []decisionRow
	if err := s.db.SelectContext(ctx, &rows, query, symbol, start, end, limit); err != nil {
		return nil, fmt.Errorf("failed to query decision history: %w", err)
	}

	entries := make([]domain.DecisionHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MarkSuperseded flips the superseded flag on one row.
func (s *PostgresStore) MarkSuperseded(ctx context.Context, decisionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE decisions SET is_superseded = TRUE WHERE id = $1`, decisionID)
	if err != nil {
		return fmt.Errorf("failed to mark decision superseded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check superseded update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("decision %s: %w", decisionID, ErrNotFound)
	}
	return nil
}

func (r decisionRow) toEntry() (domain.DecisionHistoryEntry, error) {
	entry := domain.DecisionHistoryEntry{
		ID:                 r.ID,
		Symbol:             r.Symbol,
		Timestamp:          r.Timestamp,
		Bias:               domain.Bias(r.Bias),
		Conviction:         r.Conviction,
		ActivePillars:      r.ActivePillars,
		PlaceholderPillars: r.PlaceholderPillars,
		CalibrationVersion: r.CalibrationVersion,
		ContractVersion:    r.ContractVersion,
		IsSuperseded:       r.IsSuperseded,
		CreatedAt:          r.CreatedAt,
	}
	if err := json.Unmarshal(r.PillarScores, &entry.PillarScores); err != nil {
		return entry, fmt.Errorf("failed to unmarshal pillar scores for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.PillarBiases, &entry.PillarBiases); err != nil {
		return entry, fmt.Errorf("failed to unmarshal pillar biases for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.FailedPillars, &entry.FailedPillars); err != nil {
		return entry, fmt.Errorf("failed to unmarshal failed pillars for %s: %w", r.ID, err)
	}
	return entry, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
