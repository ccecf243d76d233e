package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/convoflow/convoflow/runtime"
)

// PostgresConfig configures the postgres history sink.
type PostgresConfig struct {
	ConnectionString  string `yaml:"connection_string" validate:"required"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

const createTable = `
CREATE TABLE IF NOT EXISTS completed_sessions (
	id           BIGSERIAL PRIMARY KEY,
	flow         TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	channel      TEXT NOT NULL,
	variables    JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
)`

const insertRecord = `
INSERT INTO completed_sessions (flow, sender_id, channel, variables, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// PostgresSink writes completed-session snapshots to a postgres table,
// creating it on first use.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(cfg PostgresConfig) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("history: opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: pinging postgres: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: creating table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Append(ctx context.Context, rec runtime.HistoryRecord) error {
	vars, err := json.Marshal(rec.Variables)
	if err != nil {
		return fmt.Errorf("history: encoding variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertRecord,
		rec.Flow, rec.SenderID, rec.Channel, vars, rec.StartedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("history: inserting record: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
