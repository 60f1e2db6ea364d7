// Package sql implements storage.Store against Dolt accessed over the MySQL
// wire protocol, modeled on the donor project's internal/storage/dolt/store.go
// (connection setup, retry/backoff, otel instrumentation) generalized from a
// single embedded-or-server Dolt handle to the distilled spec's two-pool
// (read-write / read-only) model (§5).
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxroom/timeline/internal/apperror"
)

// dbHandle is the subset of *sql.DB / *sql.Tx the CRUD helpers need, so the
// same code path serves both pooled access and the commit engine's
// transactional access (RunInTransaction).
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config configures the two connection pools described in §5.
type Config struct {
	ReadWriteDSN string
	ReadOnlyDSN  string

	MaxOpenConnsReadWrite int
	MaxOpenConnsReadOnly  int
}

// Store implements storage.Store over two *sql.DB handles: rw for the
// commit engine and writers, ro for readers (state, list, find).
type Store struct {
	rw *sql.DB
	ro *sql.DB
}

var tracer = otel.Tracer("github.com/fluxroom/timeline/storage/sql")

// retryBackoff mirrors the donor's newServerRetryBackoff: transient MySQL
// wire errors (Dolt server restarts, brief network blips) get a bounded
// exponential retry instead of surfacing immediately as db_query_failed.
const retryMaxElapsed = 15 * time.Second

func retryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"driver: bad connection", "invalid connection", "broken pipe",
		"connection reset", "connection refused", "lost connection",
		"gone away", "i/o timeout", "unknown database",
		"database is read only",
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// withRetry executes op, retrying transient errors with backoff and
// aborting immediately on anything classified non-retryable.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(retryBackoff(), ctx))
}

// Open establishes both pools and runs migrations against the read-write
// pool, mirroring the donor's openServerConnection + initSchemaOnDB split.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	rw, err := sql.Open("mysql", cfg.ReadWriteDSN)
	if err != nil {
		return nil, fmt.Errorf("sql: open read-write pool: %w", err)
	}
	maxOpen := cfg.MaxOpenConnsReadWrite
	if maxOpen <= 0 {
		maxOpen = 8
	}
	rw.SetMaxOpenConns(maxOpen)

	roDSN := cfg.ReadOnlyDSN
	if roDSN == "" {
		roDSN = cfg.ReadWriteDSN
	}
	ro, err := sql.Open("mysql", roDSN)
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("sql: open read-only pool: %w", err)
	}
	maxOpenRO := cfg.MaxOpenConnsReadOnly
	if maxOpenRO <= 0 {
		maxOpenRO = 16
	}
	ro.SetMaxOpenConns(maxOpenRO)

	if err := withRetry(ctx, func() error { return rw.PingContext(ctx) }); err != nil {
		rw.Close()
		ro.Close()
		return nil, fmt.Errorf("sql: ping read-write pool: %w", err)
	}

	if err := RunMigrations(ctx, rw); err != nil {
		rw.Close()
		ro.Close()
		return nil, fmt.Errorf("sql: run migrations: %w", err)
	}

	return &Store{rw: rw, ro: ro}, nil
}

// Close closes both pools.
func (s *Store) Close() error {
	err1 := s.rw.Close()
	err2 := s.ro.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// span starts an otel span for a storage-layer SQL operation, the
// generalization of the donor's spanSQL/doltSpanAttrs helpers.
func span(ctx context.Context, op string, query string) (context.Context, trace.Span) {
	ctx, sp := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("db.system", "dolt"),
		attribute.String("db.statement", truncate(query, 300)),
	))
	return ctx, sp
}

func endSpan(sp trace.Span, err error) {
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
	}
	sp.End()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// execRW runs a write statement against the read-write pool with tracing
// and retry.
func (s *Store) execRW(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	ctx, sp := span(ctx, op, query)
	defer func() { endSpan(sp, nil) }()
	var res sql.Result
	err := withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.rw.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		sp.RecordError(err)
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, op, err)
	}
	return res, nil
}

func (s *Store) queryRW(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	ctx, sp := span(ctx, op, query)
	defer func() { endSpan(sp, nil) }()
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var qErr error
		rows, qErr = s.rw.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		sp.RecordError(err)
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, op, err)
	}
	return rows, nil
}

func (s *Store) queryRO(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	ctx, sp := span(ctx, op, query)
	defer func() { endSpan(sp, nil) }()
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var qErr error
		rows, qErr = s.ro.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		sp.RecordError(err)
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, op, err)
	}
	return rows, nil
}
