package sqlassets

import _ "embed"

//go:embed schema/companies.sql
var CompaniesSQL string

//go:embed schema/quickbooks_connections.sql
var ConnectionsSQL string

//go:embed schema/quickbooks_ledger_entities.sql
var LedgerEntitiesSQL string

//go:embed schema/quickbooks_sync_logs.sql
var SyncLogsSQL string
