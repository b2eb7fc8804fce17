package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"inboxpilot/pkg/metrics"
	"inboxpilot/pkg/otel"
)

// DBTX *pgxpool.Pool 和 pgx.Tx 都满足
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// observe 给每次查询加 span 和延迟指标
func observe(ctx context.Context, operation, table, query string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.Traced(ctx, operation, query, fn)
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
	return err
}
