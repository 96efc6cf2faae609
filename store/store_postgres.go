package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultTable = "messages"

type PostgresConfig struct {
	ConnString string
	Table      string
	MaxConns   int32
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres stores records as rows; the table assigns a BIGSERIAL id.
type Postgres struct {
	pool   *pgxpool.Pool
	db     pgExecer
	table  string
	insert string
}

func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.ConnString == "" {
		return nil, errors.New("postgres connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := newPostgres(pool, cfg.Table)
	p.pool = pool
	return p, nil
}

func newPostgres(db pgExecer, table string) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	ident := pgx.Identifier{table}.Sanitize()
	return &Postgres{
		db:     db,
		table:  ident,
		insert: "INSERT INTO " + ident + " (message_type, payload) VALUES ($1, $2)",
	}
}

// EnsureSchema creates the messages table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
	id           BIGSERIAL PRIMARY KEY,
	message_type TEXT        NOT NULL,
	payload      TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) Insert(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, p.insert, rec.MessageType, rec.Payload)
	if err != nil {
		return fmt.Errorf("insert %s message: %w", rec.MessageType, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("insert %s message: %d rows affected", rec.MessageType, tag.RowsAffected())
	}
	return nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
