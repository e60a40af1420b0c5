package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dinowallet/walletd/internal/models"
	"github.com/dinowallet/walletd/internal/service"
	"github.com/dinowallet/walletd/internal/testutil"
)

func newService(pool *pgxpool.Pool) *service.TransferService {
	return service.NewTransferService(pool, zerolog.Nop())
}

func TestExecuteTransfer_Spend(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	result, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
		AccountID:      f.AliceID,
		AssetType:      "Gold",
		Amount:         100,
		Type:           models.TransactionSpend,
		IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	if result.Balance != 400 {
		t.Errorf("returned balance = %d, want 400", result.Balance)
	}
	if result.Type != models.TransactionSpend || result.AssetType != "Gold" || result.Amount != 100 {
		t.Errorf("result shape mismatch: %+v", result)
	}
	if got := testutil.BalanceOf(t, pool, f.AliceID, "Gold"); got != 400 {
		t.Errorf("alice gold = %d, want 400", got)
	}
	if got := testutil.BalanceOf(t, pool, f.TreasuryID, "Gold"); got != 1_000_100 {
		t.Errorf("treasury gold = %d, want 1000100", got)
	}

	// Exactly two balanced entries under the one transaction.
	rows, err := pool.Query(context.Background(),
		"SELECT account_id, amount FROM ledger_entries WHERE transaction_id = $1",
		result.TransactionID)
	if err != nil {
		t.Fatalf("query entries: %v", err)
	}
	defer rows.Close()
	amounts := map[uuid.UUID]int64{}
	for rows.Next() {
		var account uuid.UUID
		var amount int64
		if err := rows.Scan(&account, &amount); err != nil {
			t.Fatalf("scan entry: %v", err)
		}
		amounts[account] = amount
	}
	if len(amounts) != 2 {
		t.Fatalf("entry count = %d, want 2", len(amounts))
	}
	if amounts[f.AliceID] != -100 || amounts[f.TreasuryID] != 100 {
		t.Errorf("entries = %v, want alice -100 / treasury +100", amounts)
	}
}

func TestExecuteTransfer_Replay(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	params := models.TransferParams{
		AccountID:      f.AliceID,
		AssetType:      "Gold",
		Amount:         100,
		Type:           models.TransactionSpend,
		IdempotencyKey: "k1",
	}

	first, err := svc.ExecuteTransfer(context.Background(), params)
	if err != nil {
		t.Fatalf("first spend failed: %v", err)
	}

	_, err = svc.ExecuteTransfer(context.Background(), params)
	var conflict *service.IdempotencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("replay error = %v, want IdempotencyConflictError", err)
	}
	if conflict.TransactionID != first.TransactionID {
		t.Errorf("conflict carries %s, want %s", conflict.TransactionID, first.TransactionID)
	}
	if got := testutil.BalanceOf(t, pool, f.AliceID, "Gold"); got != 400 {
		t.Errorf("alice gold after replay = %d, want 400", got)
	}
	if got := testutil.TransactionCount(t, pool, "k1"); got != 1 {
		t.Errorf("transactions for k1 = %d, want 1", got)
	}
}

func TestExecuteTransfer_InsufficientFunds(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	_, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
		AccountID:      f.AliceID,
		AssetType:      "Diamonds",
		Amount:         150,
		Type:           models.TransactionSpend,
		IdempotencyKey: "k2",
	})
	if !errors.Is(err, service.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	if got := testutil.BalanceOf(t, pool, f.AliceID, "Diamonds"); got != 100 {
		t.Errorf("alice diamonds = %d, want 100", got)
	}
	if got := testutil.TransactionCount(t, pool, "k2"); got != 0 {
		t.Errorf("transactions for k2 = %d, want 0", got)
	}
	if got := testutil.EntrySum(t, pool, f.AliceID, "Diamonds"); got != 0 {
		t.Errorf("entry sum = %d, want 0", got)
	}
}

func TestExecuteTransfer_TopUp(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	result, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
		AccountID:      f.BobID,
		AssetType:      "Gold",
		Amount:         200,
		Type:           models.TransactionTopUp,
		IdempotencyKey: "k3",
	})
	if err != nil {
		t.Fatalf("top-up failed: %v", err)
	}

	if result.Balance != 500 {
		t.Errorf("returned balance = %d, want 500", result.Balance)
	}
	if got := testutil.BalanceOf(t, pool, f.BobID, "Gold"); got != 500 {
		t.Errorf("bob gold = %d, want 500", got)
	}
	if got := testutil.BalanceOf(t, pool, f.TreasuryID, "Gold"); got != 999_800 {
		t.Errorf("treasury gold = %d, want 999800", got)
	}
}

func TestExecuteTransfer_Bonus(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	result, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
		AccountID:      f.AliceID,
		AssetType:      "Diamonds",
		Amount:         25,
		Type:           models.TransactionBonus,
		IdempotencyKey: "bonus-1",
		Reference:      "weekly reward",
	})
	if err != nil {
		t.Fatalf("bonus failed: %v", err)
	}
	if result.Balance != 125 {
		t.Errorf("returned balance = %d, want 125", result.Balance)
	}

	var reference string
	err = pool.QueryRow(context.Background(),
		"SELECT reference FROM transactions WHERE id = $1", result.TransactionID).Scan(&reference)
	if err != nil {
		t.Fatalf("read reference: %v", err)
	}
	if reference != "weekly reward" {
		t.Errorf("reference = %q, want %q", reference, "weekly reward")
	}
}

func TestExecuteTransfer_InvalidInput(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	cases := []struct {
		name   string
		params models.TransferParams
	}{
		{"zero amount", models.TransferParams{AccountID: f.AliceID, AssetType: "Gold", Amount: 0, Type: models.TransactionSpend, IdempotencyKey: "x1"}},
		{"negative amount", models.TransferParams{AccountID: f.AliceID, AssetType: "Gold", Amount: -5, Type: models.TransactionSpend, IdempotencyKey: "x2"}},
		{"empty key", models.TransferParams{AccountID: f.AliceID, AssetType: "Gold", Amount: 10, Type: models.TransactionSpend}},
		{"unknown type", models.TransferParams{AccountID: f.AliceID, AssetType: "Gold", Amount: 10, Type: "refund", IdempotencyKey: "x3"}},
		{"nil account", models.TransferParams{AssetType: "Gold", Amount: 10, Type: models.TransactionSpend, IdempotencyKey: "x4"}},
		{"empty asset", models.TransferParams{AccountID: f.AliceID, Amount: 10, Type: models.TransactionSpend, IdempotencyKey: "x5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ExecuteTransfer(context.Background(), tc.params)
			if !errors.Is(err, service.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestExecuteTransfer_BalanceNotFound(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
			AccountID:      uuid.New(),
			AssetType:      "Gold",
			Amount:         10,
			Type:           models.TransactionSpend,
			IdempotencyKey: "nf1",
		})
		if !errors.Is(err, service.ErrBalanceNotFound) {
			t.Errorf("error = %v, want ErrBalanceNotFound", err)
		}
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
			AccountID:      f.AliceID,
			AssetType:      "Silver",
			Amount:         10,
			Type:           models.TransactionTopUp,
			IdempotencyKey: "nf2",
		})
		if !errors.Is(err, service.ErrBalanceNotFound) {
			t.Errorf("error = %v, want ErrBalanceNotFound", err)
		}
	})
}

func TestExecuteTransfer_ConcurrentSameKey(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	const workers = 8
	results := make([]*models.TransferResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ExecuteTransfer(context.Background(), models.TransferParams{
				AccountID:      f.AliceID,
				AssetType:      "Gold",
				Amount:         10,
				Type:           models.TransactionSpend,
				IdempotencyKey: "race-key",
			})
		}(i)
	}
	wg.Wait()

	var winnerID uuid.UUID
	successes, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		if errs[i] == nil {
			successes++
			winnerID = results[i].TransactionID
			continue
		}
		var conflict *service.IdempotencyConflictError
		if !errors.As(errs[i], &conflict) {
			t.Fatalf("worker %d: error = %v, want IdempotencyConflictError", i, errs[i])
		}
		conflicts++
	}
	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, workers-1)
	}
	for i := 0; i < workers; i++ {
		var conflict *service.IdempotencyConflictError
		if errors.As(errs[i], &conflict) && conflict.TransactionID != winnerID {
			t.Errorf("worker %d conflict carries %s, want winner %s", i, conflict.TransactionID, winnerID)
		}
	}

	if got := testutil.TransactionCount(t, pool, "race-key"); got != 1 {
		t.Errorf("transactions for race-key = %d, want 1", got)
	}
	if got := testutil.BalanceOf(t, pool, f.AliceID, "Gold"); got != 490 {
		t.Errorf("alice gold = %d, want 490 (exactly one debit)", got)
	}
}

// Concurrent transfers over overlapping pairs must all complete (the shared
// treasury leg makes every pair overlap) and leave the materialized balances
// equal to the seeded amounts plus the signed entry sums.
func TestExecuteTransfer_ConcurrentContention(t *testing.T) {
	pool, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	f := testutil.SeedFixture(t, pool)
	svc := newService(pool)

	const workers = 6
	const opsPerWorker = 10

	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers*opsPerWorker)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			account := f.AliceID
			if w%2 == 1 {
				account = f.BobID
			}
			for i := 0; i < opsPerWorker; i++ {
				txType := models.TransactionSpend
				if i%2 == 0 {
					txType = models.TransactionTopUp
				}
				_, err := svc.ExecuteTransfer(context.Background(), models.TransferParams{
					AccountID:      account,
					AssetType:      "Gold",
					Amount:         1,
					Type:           txType,
					IdempotencyKey: fmt.Sprintf("load-%d-%d", w, i),
				})
				if err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent transfer failed: %v", err)
	}

	seeded := map[uuid.UUID]int64{
		f.TreasuryID: 1_000_000,
		f.AliceID:    500,
		f.BobID:      300,
	}
	var total int64
	for account, initial := range seeded {
		balance := testutil.BalanceOf(t, pool, account, "Gold")
		entrySum := testutil.EntrySum(t, pool, account, "Gold")
		if balance != initial+entrySum {
			t.Errorf("account %s: balance %d != seeded %d + entry sum %d", account, balance, initial, entrySum)
		}
		total += balance
	}
	if total != 1_000_800 {
		t.Errorf("total gold = %d, want 1000800 (transfers must be zero-sum)", total)
	}

	// Every transaction's two entries cancel out.
	var unbalanced int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM (
			SELECT transaction_id FROM ledger_entries
			GROUP BY transaction_id
			HAVING SUM(amount) <> 0 OR COUNT(*) <> 2
		) bad`).Scan(&unbalanced)
	if err != nil {
		t.Fatalf("zero-sum check: %v", err)
	}
	if unbalanced != 0 {
		t.Errorf("%d transactions violate the zero-sum invariant", unbalanced)
	}
}
