package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinowallet/walletd/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

// DefaultLedgerLimit and MaxLedgerLimit bound the ledger page size.
const (
	DefaultLedgerLimit = 50
	MaxLedgerLimit     = 100
)

// LedgerStore owns the Postgres pool and the read/provisioning surface of
// the ledger. The transfer engine drives its own writes through the same
// pool's transactional primitive.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(connString string) (*LedgerStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &LedgerStore{db: pool}, nil
}

// NewLedgerStoreFromPool wraps an existing pool; the caller owns its lifecycle.
func NewLedgerStoreFromPool(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: pool}
}

// Pool exposes the underlying pool for the transfer engine and tests.
func (s *LedgerStore) Pool() *pgxpool.Pool {
	return s.db
}

func (s *LedgerStore) Close() {
	s.db.Close()
}

// GetAccount retrieves a single account by id.
func (s *LedgerStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRow(ctx,
		"SELECT id, type, name FROM accounts WHERE id = $1", id,
	).Scan(&a.ID, &a.Type, &a.Name)
	if err == pgx.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount provisions an account with a fixed id, skipping if it
// already exists.
func (s *LedgerStore) CreateAccount(ctx context.Context, id uuid.UUID, accType models.AccountType, name string) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO accounts (id, type, name) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		id, accType, name)
	return err
}

// CreateAssetType provisions an asset type by name, returning its id whether
// it was created now or already existed.
func (s *LedgerStore) CreateAssetType(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx,
		`INSERT INTO asset_types (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name).Scan(&id)
	return id, err
}

// UpsertBalance creates the materialized balance row for a pair if it does
// not exist yet. Existing balances are never overwritten; only the transfer
// engine mutates them.
func (s *LedgerStore) UpsertBalance(ctx context.Context, accountID, assetTypeID uuid.UUID, amount int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balances (account_id, asset_type_id, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, asset_type_id) DO NOTHING`,
		accountID, assetTypeID, amount)
	return err
}

// GetBalances returns all materialized balances for an account.
func (s *LedgerStore) GetBalances(ctx context.Context, accountID uuid.UUID) ([]models.AccountBalance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.name, b.amount
		 FROM balances b
		 JOIN asset_types t ON t.id = b.asset_type_id
		 WHERE b.account_id = $1
		 ORDER BY t.name`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := []models.AccountBalance{}
	for rows.Next() {
		var b models.AccountBalance
		if err := rows.Scan(&b.AssetType, &b.Amount); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetLedgerEntries returns one page of an account's ledger, newest first,
// optionally filtered by asset type name, plus the total matching count.
func (s *LedgerStore) GetLedgerEntries(ctx context.Context, accountID uuid.UUID, assetType string, limit, offset int) ([]models.LedgerEntryView, int64, error) {
	if limit <= 0 {
		limit = DefaultLedgerLimit
	}
	if limit > MaxLedgerLimit {
		limit = MaxLedgerLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.transaction_id, tx.type, t.name, e.amount, e.created_at,
		        COUNT(*) OVER () AS total
		 FROM ledger_entries e
		 JOIN transactions tx ON tx.id = e.transaction_id
		 JOIN asset_types t ON t.id = e.asset_type_id
		 WHERE e.account_id = $1 AND ($2 = '' OR t.name = $2)
		 ORDER BY e.created_at DESC, e.id
		 LIMIT $3 OFFSET $4`,
		accountID, assetType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var total int64
	entries := []models.LedgerEntryView{}
	for rows.Next() {
		var e models.LedgerEntryView
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.TransactionType, &e.AssetType, &e.Amount, &e.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
