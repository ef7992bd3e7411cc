// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: pooled connections, a partial index over pending jobs for the
// due-job sweep, and inline tracked SQL migrations.
package postgres
