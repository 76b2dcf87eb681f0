package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/insightboard/internal/common"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure database dir: %w", err)
		}
	}
	// Busy timeout to avoid SQLITE_BUSY when several dashboards share the file.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS board_records (
		owner TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL,
		persona TEXT NOT NULL,
		summary_snippet TEXT,
		insight_json TEXT,
		source_name TEXT,
		expected_id TEXT,
		missed_polls INTEGER NOT NULL DEFAULT 0,
		stale INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (owner, id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the owner's stored list with records, keeping order.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, owner string, records []Record) error {
	if owner == "" {
		return errors.New("owner is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM board_records WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO board_records
		(owner, position, id, name, created_at, status, persona, summary_snippet, insight_json,
		 source_name, expected_id, missed_polls, stale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if r.ID.IsZero() {
			return fmt.Errorf("record at position %d has no id", i)
		}
		var insight *string
		if r.Insight != nil {
			b, err := json.Marshal(r.Insight)
			if err != nil {
				return fmt.Errorf("marshal insight: %w", err)
			}
			v := string(b)
			insight = &v
		}
		stale := 0
		if r.Stale {
			stale = 1
		}
		if _, err := stmt.ExecContext(ctx,
			owner, i, r.ID.String(), r.DisplayName, r.CreatedAt.UTC().Format(time.RFC3339Nano),
			string(r.Status), string(r.Persona), nullable(r.SummarySnippet), insight,
			nullable(r.SourceName), nullable(r.ExpectedID), r.MissedPolls, stale,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the owner's stored list in saved order. An owner with
// no snapshot yields an empty list.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, status, persona, summary_snippet,
		insight_json, source_name, expected_id, missed_polls, stale
		FROM board_records WHERE owner = ? ORDER BY position`, owner)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			id, name, created, status, persona string
			snippet, insight, source, expected  sql.NullString
			missed, stale                       int
		)
		if err := rows.Scan(&id, &name, &created, &status, &persona, &snippet,
			&insight, &source, &expected, &missed, &stale); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r := Record{
			ID:             ParseID(id),
			DisplayName:    name,
			Status:         Status(status),
			Persona:        Persona(persona),
			SummarySnippet: snippet.String,
			SourceName:     source.String,
			ExpectedID:     expected.String,
			MissedPolls:    missed,
			Stale:          stale != 0,
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = t
		}
		if insight.Valid && insight.String != "" {
			var in Insight
			// Leave Insight nil on error; do not fail retrieval.
			if err := json.Unmarshal([]byte(insight.String), &in); err == nil {
				r.Insight = &in
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
