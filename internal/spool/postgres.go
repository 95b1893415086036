package spool

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pagepulse/model"
)

// postgresStore spools to a shared database, for fleets of agents whose
// host has no durable local disk.
type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/pagepulse?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_batches (
			id BIGSERIAL PRIMARY KEY,
			saved_at TIMESTAMPTZ NOT NULL,
			channel TEXT NOT NULL,
			batch_json JSONB NOT NULL
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

func (s *postgresStore) Save(ctx context.Context, channel model.Channel, batch model.Batch) error {
	if s.db == nil || len(batch.Events) == 0 {
		return nil
	}
	data, err := encodeBatch(batch)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_batches (saved_at, channel, batch_json) VALUES ($1, $2, $3)`,
		time.Now().UTC(),
		string(channel),
		data,
	)
	return err
}

func (s *postgresStore) LoadPending(ctx context.Context) ([]PendingBatch, error) {
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
			channel string
			data    string
		)
		if err := rows.Scan(&p.ID, &p.SavedAt, &channel, &data); err != nil {
			return nil, err
		}
		p.Channel = model.Channel(channel)
		batch, err := decodeBatch(data)
		if err != nil {
			continue
		}
		p.Batch = batch
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_batches WHERE id = $1`, id)
	return err
}
