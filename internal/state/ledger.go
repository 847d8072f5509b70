package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Rollout is one Deployment Executor run.
type Rollout struct {
	ID        int64
	Version   string
	Profile   string
	Action    string
	Namespace string
	ExitCode  int
	CreatedAt time.Time
}

// Ledger is a SQLite-backed history of rollouts. It sits next to the state
// file and is never consulted when reconciling state.
type Ledger struct{ db *sql.DB }

func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := l.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record appends r and fills its ID and CreatedAt.
func (l *Ledger) Record(ctx context.Context, r *Rollout) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO rollouts (version, profile, action, namespace, exit_code, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Version, r.Profile, r.Action, r.Namespace, r.ExitCode, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record rollout: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// Last returns the most recent rollout, or nil when there is none.
func (l *Ledger) Last(ctx context.Context) (*Rollout, error) {
	list, err := l.List(ctx, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// List returns up to limit rollouts, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Rollout, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, version, profile, action, namespace, exit_code, created_at FROM rollouts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollouts: %w", err)
	}
	defer rows.Close()
	var out []Rollout
	for rows.Next() {
		var r Rollout
		var created string
		if err := rows.Scan(&r.ID, &r.Version, &r.Profile, &r.Action, &r.Namespace, &r.ExitCode, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
