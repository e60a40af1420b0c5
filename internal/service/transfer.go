package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dinowallet/walletd/internal/models"
)

// lockBalancesSQL locks both participant balance rows in one request, in
// canonical account-id order, and returns their current post-lock state.
// The locks are held until the enclosing transaction ends.
const lockBalancesSQL = `
	SELECT b.id, b.account_id, b.asset_type_id, b.amount
	FROM balances b
	JOIN asset_types t ON t.id = b.asset_type_id
	WHERE b.account_id IN ($1, $2) AND t.name = $3
	ORDER BY b.account_id
	FOR UPDATE OF b`

type lockedBalance struct {
	id          uuid.UUID
	accountID   uuid.UUID
	assetTypeID uuid.UUID
	amount      int64
}

// TransferService executes atomic double-entry transfers between a user
// account and the treasury. It holds no in-process state; all mutual
// exclusion is delegated to row locks taken inside the store transaction.
type TransferService struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewTransferService(db *pgxpool.Pool, log zerolog.Logger) *TransferService {
	return &TransferService{db: db, log: log}
}

// ExecuteTransfer runs the full transfer algorithm as one atomic unit:
// idempotency check, ordered lock acquisition on the two balance rows,
// sufficiency validation, then the balanced write (transaction record, two
// ledger entries, two balance updates). Business failures abort before any
// write; store failures roll the whole unit back.
func (s *TransferService) ExecuteTransfer(ctx context.Context, p models.TransferParams) (*models.TransferResult, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, p.Type)
	}
	if p.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	if p.AccountID == uuid.Nil || p.AssetType == "" {
		return nil, fmt.Errorf("%w: accountId and assetType are required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Replay check
	var priorID uuid.UUID
	err = tx.QueryRow(ctx,
		"SELECT id FROM transactions WHERE idempotency_key = $1",
		p.IdempotencyKey,
	).Scan(&priorID)
	if err == nil {
		return nil, &IdempotencyConflictError{TransactionID: priorID}
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	// 2. Participant resolution: the treasury is always one leg. Spends
	// debit the named account; top-ups and bonuses debit the treasury.
	sourceID, destID := models.TreasuryAccountID, p.AccountID
	if p.Type == models.TransactionSpend {
		sourceID, destID = p.AccountID, models.TreasuryAccountID
	}

	// 3. Lock both balance rows in canonical order, one round trip.
	lowID, highID := orderAccounts(sourceID, destID)
	rows, err := tx.Query(ctx, lockBalancesSQL, lowID, highID, p.AssetType)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	locked := make(map[uuid.UUID]lockedBalance, 2)
	for rows.Next() {
		var b lockedBalance
		if err := rows.Scan(&b.id, &b.accountID, &b.assetTypeID, &b.amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("balance scan failed: %w", err)
		}
		locked[b.accountID] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	sourceBal, okSrc := locked[sourceID]
	destBal, okDst := locked[destID]
	if !okSrc || !okDst {
		return nil, ErrBalanceNotFound
	}

	// 4. Sufficiency: only the debited leg can go negative.
	if sourceBal.amount < p.Amount {
		return nil, ErrInsufficientFunds
	}

	// 5. Transaction record. A unique violation here means a racing request
	// with the same key won; surface it as a conflict carrying the winner.
	var reference *string
	if p.Reference != "" {
		reference = &p.Reference
	}
	var txID uuid.UUID
	err = tx.QueryRow(ctx,
		"INSERT INTO transactions (idempotency_key, type, status, reference) VALUES ($1, $2, 'completed', $3) RETURNING id",
		p.IdempotencyKey, p.Type, reference,
	).Scan(&txID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, s.conflictWithWinner(ctx, p.IdempotencyKey, err)
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	// Balanced pair: debit the source, credit the destination.
	_, err = tx.Exec(ctx,
		"INSERT INTO ledger_entries (transaction_id, account_id, asset_type_id, amount) VALUES ($1, $2, $3, $4), ($1, $5, $3, $6)",
		txID, sourceID, sourceBal.assetTypeID, -p.Amount, destID, p.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger entry insert failed: %w", err)
	}

	// 6. Materialized balances, computed from the locked values. The rows
	// are exclusively held from the FOR UPDATE read until commit, so the
	// arithmetic cannot drift from a re-read.
	_, err = tx.Exec(ctx, "UPDATE balances SET amount = $1 WHERE id = $2",
		sourceBal.amount-p.Amount, sourceBal.id)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}
	_, err = tx.Exec(ctx, "UPDATE balances SET amount = $1 WHERE id = $2",
		destBal.amount+p.Amount, destBal.id)
	if err != nil {
		return nil, fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	userBalance := destBal.amount + p.Amount
	if p.Type == models.TransactionSpend {
		userBalance = sourceBal.amount - p.Amount
	}

	s.log.Info().
		Str("transaction_id", txID.String()).
		Str("type", string(p.Type)).
		Str("account_id", p.AccountID.String()).
		Str("asset_type", p.AssetType).
		Int64("amount", p.Amount).
		Int64("balance", userBalance).
		Msg("transfer completed")

	return &models.TransferResult{
		TransactionID: txID,
		Type:          p.Type,
		AssetType:     p.AssetType,
		Amount:        p.Amount,
		Balance:       userBalance,
	}, nil
}

// conflictWithWinner resolves the winning transaction id after losing an
// idempotency-key race. The unique violation only fires once the winner has
// committed, so a fresh pool read sees it.
func (s *TransferService) conflictWithWinner(ctx context.Context, key string, cause error) error {
	var winnerID uuid.UUID
	err := s.db.QueryRow(ctx,
		"SELECT id FROM transactions WHERE idempotency_key = $1", key,
	).Scan(&winnerID)
	if err != nil {
		return fmt.Errorf("conflict winner lookup failed: %w (insert: %v)", err, cause)
	}
	return &IdempotencyConflictError{TransactionID: winnerID}
}
