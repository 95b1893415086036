package spool

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pagepulse/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:pagepulse.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			saved_at TEXT NOT NULL,
			channel TEXT NOT NULL,
			batch_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_saved_at ON pending_batches(saved_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Save(ctx context.Context, channel model.Channel, batch model.Batch) error {
	if s.db == nil || len(batch.Events) == 0 {
		return nil
	}
	data, err := encodeBatch(batch)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_batches (saved_at, channel, batch_json) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(channel),
		data,
	)
	return err
}

func (s *sqliteStore) LoadPending(ctx context.Context) ([]PendingBatch, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, saved_at, channel, batch_json FROM pending_batches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingBatch
	for rows.Next() {
		var (
			p       PendingBatch
			savedAt string
			channel string
			data    string
		)
		if err := rows.Scan(&p.ID, &savedAt, &channel, &data); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
			p.SavedAt = ts
		}
		p.Channel = model.Channel(channel)
		batch, err := decodeBatch(data)
		if err != nil {
			// A corrupt row is dropped, not fatal: recovery must not
			// block the pipeline from starting.
			continue
		}
		p.Batch = batch
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_batches WHERE id = ?`, id)
	return err
}
