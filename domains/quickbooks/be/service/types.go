package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Connection is a company's OAuth binding to one QuickBooks realm.
type Connection struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	RealmID        string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	IsActive       bool
	LastSyncedAt   *time.Time
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LedgerEntity is one mirrored remote object. Fields that do not apply to the
// entity type stay nil.
type LedgerEntity struct {
	ConnectionID   uuid.UUID
	Type           EntityType
	RemoteID       string
	SubType        string
	Name           *string
	Email          *string
	AccountType    *string
	AccountSubType *string
	Amount         decimal.Decimal
	Status         *string
	CustomerName   *string
	VendorName     *string
	TxnDate        *time.Time
	Description    *string
	RawData        json.RawMessage
	SyncedAt       time.Time
}

// LedgerKey is the natural key of a LedgerEntity.
type LedgerKey struct {
	ConnectionID uuid.UUID
	Type         EntityType
	RemoteID     string
	SubType      string
}

// Key returns the entity's natural key.
func (e LedgerEntity) Key() LedgerKey {
	return LedgerKey{ConnectionID: e.ConnectionID, Type: e.Type, RemoteID: e.RemoteID, SubType: e.SubType}
}

// Sync log statuses.
const (
	SyncStatusPending    = "pending"
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// SyncLog is the audit record of one sync call.
type SyncLog struct {
	ID            uuid.UUID
	ConnectionID  uuid.UUID
	SyncType      string
	Status        string
	RecordsSynced int
	ErrorMessage  *string
	TriggeredBy   string
	RequestID     *string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Money renders a decimal as a fixed two-place JSON number.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

// EntityResult is the outcome of syncing one entity type.
type EntityResult struct {
	Entity   EntityType
	Upserted int
	Skipped  int
	Err      error
}

// MarshalJSON emits the upserted count, or "Error: <msg>" when the entity failed.
func (r EntityResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal("Error: " + r.Err.Error())
	}
	return json.Marshal(r.Upserted)
}

// SyncResult is returned by the single-entity sync operations.
type SyncResult struct {
	Entity   EntityType `json:"entity"`
	Upserted int        `json:"synced"`
	Skipped  int        `json:"skipped"`
	SyncedAt time.Time  `json:"synced_at"`
}

// SyncAllResult is returned by SyncAll. Per-entity failures live in Entities.
type SyncAllResult struct {
	Entities []EntityResult
	SyncedAt time.Time
}

// Counts maps each entity to its count or error text.
func (r SyncAllResult) Counts() map[string]EntityResult {
	out := make(map[string]EntityResult, len(r.Entities))
	for _, e := range r.Entities {
		out[string(e.Entity)] = e
	}
	return out
}

// Status describes a company's connection for the UI.
type Status struct {
	Connected   bool
	ID          uuid.UUID
	CompanyName string
	RealmID     string
	IsActive    bool
	LastError   *string
	LastSynced  *time.Time
	CreatedAt   time.Time
}

// Read projections.

type AccountView struct {
	QBID    string `json:"qb_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	SubType string `json:"sub_type"`
	Balance Money  `json:"balance"`
}

type PartyView struct {
	QBID    string `json:"qb_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Balance Money  `json:"balance"`
}

type InvoiceView struct {
	QBID     string `json:"qb_id"`
	Customer string `json:"customer"`
	Total    Money  `json:"total"`
	Status   string `json:"status"`
}

type BillView struct {
	QBID   string `json:"qb_id"`
	Vendor string `json:"vendor"`
	Total  Money  `json:"total"`
	Status string `json:"status"`
}

type PaymentView struct {
	QBID     string `json:"qb_id"`
	Customer string `json:"customer"`
	Vendor   string `json:"vendor"`
	Amount   Money  `json:"amount"`
	Date     string `json:"date"`
}

type TransactionView struct {
	QBID         string `json:"qb_id"`
	Date         string `json:"date"`
	Type         string `json:"type"`
	Amount       Money  `json:"amount"`
	CustomerName string `json:"customer_name"`
	VendorName   string `json:"vendor_name"`
	Description  string `json:"description"`
}

// AllData is the combined read of every mirrored entity type.
type AllData struct {
	Accounts     []AccountView     `json:"accounts"`
	Customers    []PartyView       `json:"customers"`
	Vendors      []PartyView       `json:"vendors"`
	Invoices     []InvoiceView     `json:"invoices"`
	Bills        []BillView        `json:"bills"`
	Payments     []PaymentView     `json:"payments"`
	Transactions []TransactionView `json:"transactions"`
}
