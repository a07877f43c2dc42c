package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"walletledger/internal/adapter/repository/memory"
	"walletledger/internal/domain/entity"
	"walletledger/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Currencies:      []string{"USD", "EUR"},
		PrimaryCurrency: "USD",
		HistoryLimit:    100,
		WriteAttempts:   50,
		RetryDelay:      time.Millisecond,
		Limits: entity.WithdrawalLimits{
			Min:     dec("10"),
			Daily:   dec("1000"),
			Monthly: dec("5000"),
		},
	}
}

func newTestWalletUseCase(t *testing.T) (*WalletUseCase, *memory.WalletStore) {
	t.Helper()
	store := memory.NewWalletStore()
	return NewWalletUseCase(store, testLedgerConfig(), zap.NewNop()), store
}

func TestWalletUseCase_GetOrCreateWallet(t *testing.T) {
	uc, store := newTestWalletUseCase(t)
	ctx := context.Background()

	w, err := uc.GetOrCreateWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", w.UserID)
	assert.Equal(t, "USD", w.PrimaryCurrency)
	assert.True(t, w.Balance("USD").IsZero())
	assert.True(t, w.Balance("EUR").IsZero())
	assert.Empty(t, w.Transactions)

	again, err := uc.GetOrCreateWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, 1, store.Count())

	_, err = uc.GetOrCreateWallet(ctx, "")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestWalletUseCase_GetOrCreateWallet_Concurrent(t *testing.T) {
	uc, store := newTestWalletUseCase(t)

	const callers = 32
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := uc.GetOrCreateWallet(context.Background(), "user-1")
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestWalletUseCase_GetOrCreateWallet_LeaderCancellationIsNotShared(t *testing.T) {
	store := &slowReadStore{
		WalletStore: memory.NewWalletStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	uc := NewWalletUseCase(store, testLedgerConfig(), zap.NewNop())

	leaderCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var leaderErr, followerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, leaderErr = uc.GetOrCreateWallet(leaderCtx, "user-1")
	}()
	<-store.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, followerErr = uc.GetOrCreateWallet(context.Background(), "user-1")
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(store.release)
	wg.Wait()

	assert.NoError(t, leaderErr)
	assert.NoError(t, followerErr)
	assert.Equal(t, 1, store.Count())
}

// slowReadStore holds the first read until released and honors
// cancellation like a network store would.
type slowReadStore struct {
	*memory.WalletStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowReadStore) GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.WalletStore.GetByUserID(ctx, userID)
}

func TestWalletUseCase_GetOrCreateWallet_LosesCreateRace(t *testing.T) {
	store := memory.NewWalletStore()
	// another process created the wallet between our read and our create
	racing := &createRaceStore{WalletStore: store}
	uc := NewWalletUseCase(racing, testLedgerConfig(), zap.NewNop())

	w, err := uc.GetOrCreateWallet(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", w.ID)
	assert.Equal(t, 1, store.Count())
}

type createRaceStore struct {
	*memory.WalletStore
	once sync.Once
}

func (s *createRaceStore) Create(ctx context.Context, wallet *entity.Wallet) error {
	s.once.Do(func() {
		winner := entity.NewWallet("winner", wallet.UserID, "USD", []string{"USD"}, time.Now())
		_ = s.WalletStore.Create(ctx, winner)
	})
	return s.WalletStore.Create(ctx, wallet)
}

func TestWalletUseCase_CreditDebitScenario(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	res, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("100"), Currency: "USD", Description: "sale"})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(res.NewBalance))
	assert.Equal(t, entity.EntryKindCredit, res.Entry.Kind)
	assert.Equal(t, entity.EntryStatusCompleted, res.Entry.Status)
	assert.NotEmpty(t, res.Entry.ID)

	res, err = uc.Debit(ctx, DebitInput{UserID: "user-1", Amount: dec("30.25"), Currency: "USD", Kind: entity.EntryKindFee})
	require.NoError(t, err)
	assert.True(t, dec("69.75").Equal(res.NewBalance))

	_, err = uc.Debit(ctx, DebitInput{UserID: "user-1", Amount: dec("70"), Currency: "USD"})
	assert.True(t, errors.Is(err, errors.CodeInsufficientFunds))

	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, dec("69.75").Equal(w.Balance("USD")))
	assert.Len(t, w.Transactions, 2)
	assert.Equal(t, entity.EntryKindFee, w.Transactions[0].Kind)
}

func TestWalletUseCase_Credit_Validation(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreditInput
		code  string
	}{
		{"zero amount", CreditInput{UserID: "u", Amount: decimal.Zero, Currency: "USD"}, errors.CodeBadRequest},
		{"negative amount", CreditInput{UserID: "u", Amount: dec("-1"), Currency: "USD"}, errors.CodeBadRequest},
		{"unsupported currency", CreditInput{UserID: "u", Amount: dec("1"), Currency: "JPY"}, errors.CodeBadRequest},
		{"debit kind", CreditInput{UserID: "u", Amount: dec("1"), Currency: "USD", Kind: entity.EntryKindWithdrawal}, errors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Credit(ctx, tt.input)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestWalletUseCase_Credit_RelatedRefAppliesOnce(t *testing.T) {
	uc, store := newTestWalletUseCase(t)
	ctx := context.Background()

	input := CreditInput{UserID: "seller-1", Amount: dec("95"), Currency: "USD", RelatedRef: "ESC-1"}
	_, err := uc.Credit(ctx, input)
	require.NoError(t, err)

	_, err = uc.Credit(ctx, input)
	assert.True(t, errors.Is(err, errors.CodeDuplicateCredit))

	w, err := uc.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, dec("95").Equal(w.Balance("USD")))
	assert.Len(t, w.Transactions, 1)

	claimed, err := store.HasClaim(ctx, "seller-1", entity.CreditRef("ESC-1"))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestWalletUseCase_ConcurrentCreditsAreNotLost(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("1.5"), Currency: "USD"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, dec("24").Equal(w.Balance("USD")), "got %s", w.Balance("USD"))
	assert.Len(t, w.Transactions, writers)
	assert.Equal(t, int64(writers), w.Statistics.TransactionCount)
}

func TestWalletUseCase_ConcurrentCreditsWithDefaultConfig(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.WriteAttempts = 0
	cfg.RetryDelay = 0
	uc := NewWalletUseCase(memory.NewWalletStore(), cfg, zap.NewNop())
	require.Equal(t, 5, uc.cfg.WriteAttempts)
	ctx := context.Background()

	// a writer only loses a round to another writer's success, so as many
	// writers as attempts always get through
	writers := uc.cfg.WriteAttempts
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("2.25"), Currency: "USD"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, dec("11.25").Equal(w.Balance("USD")), "got %s", w.Balance("USD"))
	assert.Len(t, w.Transactions, writers)
}

func TestWalletUseCase_GivesUpAfterConflicts(t *testing.T) {
	store := memory.NewWalletStore()
	cfg := testLedgerConfig()
	cfg.WriteAttempts = 3
	uc := NewWalletUseCase(&conflictingStore{WalletStore: store}, cfg, zap.NewNop())

	_, err := uc.Credit(context.Background(), CreditInput{UserID: "user-1", Amount: dec("1"), Currency: "USD"})
	assert.True(t, errors.Is(err, errors.CodeVersionConflict))
}

type conflictingStore struct {
	*memory.WalletStore
}

func (s *conflictingStore) Save(ctx context.Context, wallet *entity.Wallet, expectedVersion int64, claimKey string) error {
	return errors.VersionConflict(nil)
}

func TestWalletUseCase_HistoryTrim(t *testing.T) {
	store := memory.NewWalletStore()
	cfg := testLedgerConfig()
	cfg.HistoryLimit = 3
	uc := NewWalletUseCase(store, cfg, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("2"), Currency: "USD"})
		require.NoError(t, err)
	}

	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, w.Transactions, 3)
	assert.True(t, dec("10").Equal(w.Balance("USD")))
}

func TestWalletUseCase_GetTransactionHistory(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("10"), Currency: "USD"})
		require.NoError(t, err)
	}
	_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("3"), Currency: "EUR", Kind: entity.EntryKindBonus})
	require.NoError(t, err)
	_, err = uc.Debit(ctx, DebitInput{UserID: "user-1", Amount: dec("1"), Currency: "USD", Kind: entity.EntryKindFee})
	require.NoError(t, err)

	entries, total, err := uc.GetTransactionHistory(ctx, HistoryInput{UserID: "user-1", Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Len(t, entries, 4)
	assert.Equal(t, entity.EntryKindFee, entries[0].Kind)

	entries, total, err = uc.GetTransactionHistory(ctx, HistoryInput{UserID: "user-1", Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	assert.Len(t, entries, 3)

	entries, total, err = uc.GetTransactionHistory(ctx, HistoryInput{UserID: "user-1", Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, entity.EntryKindBonus, entries[0].Kind)

	_, total, err = uc.GetTransactionHistory(ctx, HistoryInput{UserID: "user-1", Kind: entity.EntryKindCredit})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	_, _, err = uc.GetTransactionHistory(ctx, HistoryInput{UserID: "user-1", Kind: "gift"})
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestWalletUseCase_WithdrawalDebitAndReversal(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("100"), Currency: "USD"})
	require.NoError(t, err)

	res, err := uc.DebitForWithdrawal(ctx, WithdrawalDebitInput{UserID: "user-1", Amount: dec("40"), Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(res.NewBalance))
	assert.Equal(t, entity.EntryStatusPending, res.Entry.Status)
	assert.True(t, dec("40").Equal(res.Wallet.WithdrawalTracking.Daily["USD"]))

	rev, err := uc.ReverseWithdrawal(ctx, ReversalInput{
		UserID: "user-1",
		Entry:  res.Entry,
		Status: entity.EntryStatusFailed,
		Reason: "gateway rejected",
	})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(rev.NewBalance))
	assert.True(t, rev.Wallet.WithdrawalTracking.Daily["USD"].IsZero())

	_, err = uc.ReverseWithdrawal(ctx, ReversalInput{UserID: "user-1", Entry: res.Entry, Status: entity.EntryStatusFailed})
	assert.True(t, errors.Is(err, errors.CodeDuplicateCredit))

	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(w.Balance("USD")))
	e, err := uc.GetEntry(ctx, "user-1", res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EntryStatusFailed, e.Status)
}

func TestWalletUseCase_UpdateEntry(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	res, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("5"), Currency: "USD"})
	require.NoError(t, err)

	updated, err := uc.UpdateEntry(ctx, "user-1", res.Entry.ID, func(e *entity.LedgerEntry) {
		e.Metadata["note"] = "checked"
		e.Amount = dec("500")
	})
	require.NoError(t, err)
	assert.Equal(t, "checked", updated.Metadata["note"])
	assert.True(t, dec("5").Equal(updated.Amount))

	_, err = uc.UpdateEntry(ctx, "user-1", "TXN-missing", func(e *entity.LedgerEntry) {})
	assert.True(t, errors.Is(err, errors.CodeEntryNotFound))
}

func TestWalletUseCase_CanWithdraw(t *testing.T) {
	uc, _ := newTestWalletUseCase(t)
	ctx := context.Background()

	_, err := uc.Credit(ctx, CreditInput{UserID: "user-1", Amount: dec("50"), Currency: "USD"})
	require.NoError(t, err)
	w, err := uc.GetWallet(ctx, "user-1")
	require.NoError(t, err)

	assert.True(t, uc.CanWithdraw(w, dec("50"), "USD").OK)

	check := uc.CanWithdraw(w, dec("51"), "USD")
	assert.False(t, check.OK)
	assert.Equal(t, errors.CodeInsufficientFunds, check.Code)
	assert.NotEmpty(t, check.Reason)
}
