// Package spool persists batches that could not be delivered before
// teardown, so a later session can hand them back to the pipeline. It
// stores pending deliveries only, never history.
package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"pagepulse/config"
	"pagepulse/model"
)

type PendingBatch struct {
	ID      int64
	Channel model.Channel
	Batch   model.Batch
	SavedAt time.Time
}

type Store interface {
	Init(ctx context.Context) error
	Close() error
	Save(ctx context.Context, channel model.Channel, batch model.Batch) error
	LoadPending(ctx context.Context) ([]PendingBatch, error)
	Delete(ctx context.Context, id int64) error
}

func NewStore(cfg config.SpoolConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported spool driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeBatch(batch model.Batch) (string, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBatch(data string) (model.Batch, error) {
	var batch model.Batch
	err := json.Unmarshal([]byte(data), &batch)
	return batch, err
}
