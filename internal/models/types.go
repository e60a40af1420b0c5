package models

import (
	"time"

	"github.com/google/uuid"
)

// TreasuryAccountID is the fixed id of the system-owned treasury account.
// The treasury is the counterparty of every transfer: source for top-ups and
// bonuses, destination for spends.
var TreasuryAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// AccountType distinguishes the single treasury account from user accounts.
type AccountType string

const (
	AccountTreasury AccountType = "treasury"
	AccountUser     AccountType = "user"
)

// TransactionType selects which leg of the transfer the named account takes.
type TransactionType string

const (
	TransactionTopUp TransactionType = "top_up"
	TransactionBonus TransactionType = "bonus"
	TransactionSpend TransactionType = "spend"
)

// Valid reports whether t is one of the three supported transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTopUp, TransactionBonus, TransactionSpend:
		return true
	}
	return false
}

// AssetType is immutable reference data naming a fungible asset ("Gold").
type AssetType struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Account is a ledger participant. Created by provisioning, never mutated
// by the transfer engine.
type Account struct {
	ID   uuid.UUID   `json:"id"`
	Type AccountType `json:"type"`
	Name string      `json:"name"`
}

// Balance is the materialized current total for one (account, asset type)
// pair. It must always equal the sum of signed ledger entry amounts for that
// pair; the transfer engine mutates it only in the same atomic unit as the
// entries that justify the change.
type Balance struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	AssetTypeID uuid.UUID `json:"asset_type_id"`
	Amount      int64     `json:"amount"`
}

// Transaction is the immutable record of one transfer. The unique constraint
// on IdempotencyKey is what makes replays detectable.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Type           TransactionType `json:"type"`
	Status         string          `json:"status"`
	Reference      *string         `json:"reference,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LedgerEntry is one leg of a double-entry transaction. Exactly two entries
// exist per transaction and their amounts sum to zero.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	AssetTypeID   uuid.UUID `json:"asset_type_id"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransferRequest is the payload from the client.
type TransferRequest struct {
	AccountID uuid.UUID `json:"accountId"`
	AssetType string    `json:"assetType"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference,omitempty"`
}

// TransferParams is the full input to the transfer engine. The idempotency
// key is caller-supplied; the engine never generates one.
type TransferParams struct {
	AccountID      uuid.UUID
	AssetType      string
	Amount         int64
	Type           TransactionType
	IdempotencyKey string
	Reference      string
}

// TransferResult is the canonical success response. Balance is the named
// account's resulting balance, not the treasury's.
type TransferResult struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	Type          TransactionType `json:"type"`
	AssetType     string          `json:"assetType"`
	Amount        int64           `json:"amount"`
	Balance       int64           `json:"balance"`
}

// AccountBalance is one row of the balance projection for an account.
type AccountBalance struct {
	AssetType string `json:"assetType"`
	Amount    int64  `json:"amount"`
}

// BalancesResponse lists all materialized balances for an account.
type BalancesResponse struct {
	AccountID uuid.UUID        `json:"accountId"`
	Balances  []AccountBalance `json:"balances"`
}

// LedgerEntryView is the read-side shape of a ledger entry, joined with its
// transaction type and asset name.
type LedgerEntryView struct {
	ID              uuid.UUID       `json:"id"`
	TransactionID   uuid.UUID       `json:"transactionId"`
	TransactionType TransactionType `json:"transactionType"`
	AssetType       string          `json:"assetType"`
	Amount          int64           `json:"amount"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// LedgerPage is a paginated slice of an account's ledger.
type LedgerPage struct {
	AccountID uuid.UUID         `json:"accountId"`
	Entries   []LedgerEntryView `json:"entries"`
	Total     int64             `json:"total"`
}
