package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultSchema is used when callers do not pick a schema explicitly.
const DefaultSchema = "qbsync"

const (
	companiesTable      = "companies"
	connectionsTable    = "quickbooks_connections"
	ledgerEntitiesTable = "quickbooks_ledger_entities"
	syncLogsTable       = "quickbooks_sync_logs"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// qualifiedTable returns a sanitized schema.table identifier.
func qualifiedTable(schema, table string) string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = DefaultSchema
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
