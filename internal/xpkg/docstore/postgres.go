package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	data       JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection, updated_at DESC);
`

// Postgres stores documents as JSONB rows and runs transactions at
// SERIALIZABLE isolation; serialization failures and deadlocks are reported
// as ErrConflict and retried.
type Postgres struct {
	pool  *pgxpool.Pool
	opts  Options
	mylog logger.Logger
}

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgres(ctx context.Context, dbCfg *config.Postgres, opts Options, mylog logger.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if dbCfg.MaxConns > 0 {
		poolConfig.MaxConns = dbCfg.MaxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{pool: pool, opts: opts.withDefaults(), mylog: mylog}
	if err := p.EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	mylog.Action("db_connected").Info("Connected to PostgreSQL document store")
	return p, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create documents schema: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path string) (Snapshot, error) {
	return get(ctx, p.pool, path)
}

func (p *Postgres) Set(ctx context.Context, path string, v any, opts ...SetOption) error {
	return set(ctx, p.pool, path, v, opts...)
}

func (p *Postgres) List(ctx context.Context, collection string) ([]Snapshot, error) {
	q := `SELECT path, data, version, updated_at FROM documents WHERE collection = $1 ORDER BY updated_at DESC, path`
	rows, err := p.pool.Query(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.Path, &s.Data, &s.Version, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, p.opts, func(ctx context.Context) error {
		err := p.attempt(ctx, fn)
		if isRetryable(err) {
			p.mylog.Action("tx_conflict").Debug("Retrying document transaction", "reason", err.Error())
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return err
	})
}

func (p *Postgres) attempt(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, path string) (Snapshot, error) {
	return get(ctx, t.tx, path)
}

func (t *pgTx) Set(ctx context.Context, path string, v any, opts ...SetOption) error {
	return set(ctx, t.tx, path, v, opts...)
}

func get(ctx context.Context, q querier, path string) (Snapshot, error) {
	if _, _, err := splitPath(path); err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{Path: path}
	err := q.QueryRow(ctx, `SELECT data, version, updated_at FROM documents WHERE path = $1`, path).
		Scan(&s.Data, &s.Version, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return s, nil
}

func set(ctx context.Context, q querier, path string, v any, opts ...SetOption) error {
	collection, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}

	update := `data = EXCLUDED.data`
	if applyOptions(opts).merge {
		update = `data = documents.data || EXCLUDED.data`
	}
	sql := `
		INSERT INTO documents (path, collection, data, version, updated_at)
		VALUES ($1, $2, $3::jsonb, 1, now())
		ON CONFLICT (path) DO UPDATE SET
			` + update + `,
			version = documents.version + 1,
			updated_at = now()`

	if _, err := q.Exec(ctx, sql, path, collection, data); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
