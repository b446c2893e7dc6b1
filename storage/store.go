// Package storage persists run checkpoints in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no checkpoint matches.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint kinds.
const (
	KindPopulation = "population"
	KindPredator   = "predator_prey"
	KindComparison = "predation_comparison"
	KindAgents     = "agents"
	KindHybrid     = "hybrid"
	KindScenarios  = "scenario_comparison"
)

// Checkpoint is one persisted run.
type Checkpoint struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Kind      string `db:"kind" json:"kind"`
	Species   string `db:"species" json:"species"`
	Days      int    `db:"days" json:"days"`
	Request   string `db:"request" json:"request"` // JSON
	Result    string `db:"result" json:"result"`   // JSON
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// NewCheckpoint encodes request and result as JSON.
func NewCheckpoint(name, kind, species string, days int, request, result any) (Checkpoint, error) {
	req, err := json.Marshal(request)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("encode request: %w", err)
	}
	res, err := json.Marshal(result)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("encode result: %w", err)
	}
	return Checkpoint{
		Name:    name,
		Kind:    kind,
		Species: species,
		Days:    days,
		Request: string(req),
		Result:  string(res),
	}, nil
}

// Created returns the creation time.
func (c Checkpoint) Created() time.Time { return time.UnixMilli(c.CreatedAt) }

// DecodeRequest unmarshals the stored request into v.
func (c Checkpoint) DecodeRequest(v any) error {
	return json.Unmarshal([]byte(c.Request), v)
}

// DecodeResult unmarshals the stored result into v.
func (c Checkpoint) DecodeResult(v any) error {
	return json.Unmarshal([]byte(c.Result), v)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind    string
	Species string
	Limit   int
}

// Store wraps a SQLite connection.
type Store struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		species TEXT NOT NULL,
		days INTEGER NOT NULL,
		request TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_kind ON checkpoints(kind);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Save stores cp under a fresh id. A taken name gets a numeric suffix.
// The stored checkpoint is returned.
func (s *Store) Save(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	if strings.TrimSpace(cp.Name) == "" {
		return Checkpoint{}, errors.New("checkpoint name is required")
	}

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Checkpoint{}, err
	}
	defer tx.Rollback()

	name, err := uniqueName(ctx, tx, cp.Name)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.ID = uuid.NewString()
	cp.Name = name
	cp.CreatedAt = s.now().UnixMilli()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO checkpoints
		(id, name, kind, species, days, request, result, created_at)
		VALUES (:id, :name, :kind, :species, :days, :request, :result, :created_at)`, cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("insert checkpoint %s: %w", cp.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func uniqueName(ctx context.Context, tx *sqlx.Tx, base string) (string, error) {
	var taken []string
	err := tx.SelectContext(ctx, &taken,
		`SELECT name FROM checkpoints WHERE name = ? OR name LIKE ?`, base, base+"-%")
	if err != nil {
		return "", err
	}
	used := make(map[string]bool, len(taken))
	for _, n := range taken {
		used[n] = true
	}
	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return name, nil
}

// Get returns the checkpoint with the given id or name.
func (s *Store) Get(ctx context.Context, idOrName string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.conn.GetContext(ctx, &cp,
		`SELECT * FROM checkpoints WHERE id = ? OR name = ? LIMIT 1`, idOrName, idOrName)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%q: %w", idOrName, ErrNotFound)
	}
	return cp, err
}

// List returns matching checkpoints, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Checkpoint, error) {
	query := `SELECT * FROM checkpoints`
	var where []string
	var args []any
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Species != "" {
		where = append(where, "species = ?")
		args = append(args, f.Species)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var out []Checkpoint
	if err := s.conn.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the checkpoint with the given id or name.
func (s *Store) Delete(ctx context.Context, idOrName string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id = ? OR name = ?`, idOrName, idOrName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", idOrName, ErrNotFound)
	}
	return nil
}
