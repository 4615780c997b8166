package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-qbsync/database"
)

// BootstrapSchema creates the target schema (if missing) and applies the
// ledger DDL in a single transaction with search_path pinned to that schema.
// Statements run in dependency order:
//  1. companies.sql
//  2. quickbooks_connections.sql
//  3. quickbooks_ledger_entities.sql
//  4. quickbooks_sync_logs.sql
//
// Every statement is idempotent, so the helper is safe to rerun from the CLI and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return fmt.Errorf("bootstrap schema: schema is required")
	}

	var statements []string
	for _, ddl := range []string{
		sqlassets.CompaniesSQL,
		sqlassets.ConnectionsSQL,
		sqlassets.LedgerEntitiesSQL,
		sqlassets.SyncLogsSQL,
	} {
		statements = append(statements, splitStatements(ddl)...)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func splitStatements(sql string) []string {
	raw := strings.Split(sql, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
