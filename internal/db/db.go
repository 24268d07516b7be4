package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

type DB struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &DB{pool: pool}, nil
}

// FromPool wraps an existing pool, as tests do.
func FromPool(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func (d *DB) Pool() *pgxpool.Pool { return d.pool }

func (d *DB) Close() {
	d.pool.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.pool.Ping(ctx)
}

type txKey struct{}

// WithTx runs fn in a transaction carried by ctx. Nested calls join the
// outer transaction.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Exec, QueryRow and Query use the transaction in ctx when there is one.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) error {
	if tx := txFromContext(ctx); tx != nil {
		_, err := tx.Exec(ctx, sql, args...)
		return err
	}
	_, err := d.pool.Exec(ctx, sql, args...)
	return err
}

// ExecRows is Exec that also reports the affected row count.
func (d *DB) ExecRows(ctx context.Context, sql string, args ...any) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if tx := txFromContext(ctx); tx != nil {
		tag, err = tx.Exec(ctx, sql, args...)
	} else {
		tag, err = d.pool.Exec(ctx, sql, args...)
	}
	return tag.RowsAffected(), err
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return d.pool.QueryRow(ctx, sql, args...)
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return d.pool.Query(ctx, sql, args...)
}

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func WrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("db: %w", err)
}

// IsExclusionViolation reports a rejected overlapping reservation.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
