// Package archive persists audit verdicts so an external penalty mechanism
// can act on them later. The ledger itself never reads this store; losing it
// loses history, not protocol state.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("archive: store path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS audit_verdicts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    envelope_hash   TEXT    NOT NULL,
    transition_idx  INTEGER NOT NULL,
    misbehaved      INTEGER NOT NULL,
    reason          TEXT    NOT NULL,
    recorded_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_verdicts_idx ON audit_verdicts(transition_idx);
CREATE INDEX IF NOT EXISTS idx_audit_verdicts_flagged ON audit_verdicts(misbehaved);
`

// Verdict is one archived audit outcome.
type Verdict struct {
	EnvelopeHash    string
	TransitionIndex uint64
	Misbehaved      bool
	Reason          string
	RecordedAt      time.Time
}

// Archive wraps the sqlite-backed verdict store.
type Archive struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
// ":memory:" is accepted for tests.
func Open(path string) (*Archive, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases database resources.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record persists one verdict.
func (a *Archive) Record(ctx context.Context, v Verdict) error {
	if a == nil || a.db == nil {
		return fmt.Errorf("archive: not configured")
	}
	recorded := v.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO audit_verdicts(envelope_hash, transition_idx, misbehaved, reason, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, v.EnvelopeHash, int64(v.TransitionIndex), boolToInt(v.Misbehaved), v.Reason, recorded)
	if err != nil {
		return fmt.Errorf("archive: record verdict: %w", err)
	}
	return nil
}

// Flagged returns up to limit misbehaviour verdicts, most recent first.
func (a *Archive) Flagged(ctx context.Context, limit int) ([]Verdict, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("archive: not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT envelope_hash, transition_idx, misbehaved, reason, recorded_at
        FROM audit_verdicts
        WHERE misbehaved = 1
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query flagged: %w", err)
	}
	defer rows.Close()
	return scanVerdicts(rows)
}

// ForIndex returns every verdict recorded against a transition index.
func (a *Archive) ForIndex(ctx context.Context, index uint64) ([]Verdict, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("archive: not configured")
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT envelope_hash, transition_idx, misbehaved, reason, recorded_at
        FROM audit_verdicts
        WHERE transition_idx = ?
        ORDER BY id ASC
    `, int64(index))
	if err != nil {
		return nil, fmt.Errorf("archive: query index: %w", err)
	}
	defer rows.Close()
	return scanVerdicts(rows)
}

func scanVerdicts(rows *sql.Rows) ([]Verdict, error) {
	var out []Verdict
	for rows.Next() {
		var (
			v       Verdict
			idx     int64
			flagged int
		)
		if err := rows.Scan(&v.EnvelopeHash, &idx, &flagged, &v.Reason, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("archive: scan verdict: %w", err)
		}
		v.TransitionIndex = uint64(idx)
		v.Misbehaved = flagged == 1
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate verdicts: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
