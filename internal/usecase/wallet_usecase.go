package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/errors"
	"walletledger/pkg/idgen"
	"walletledger/pkg/logger"
	"walletledger/pkg/retry"
	"walletledger/pkg/utils"
)

type LedgerConfig struct {
	Currencies      []string
	PrimaryCurrency string
	HistoryLimit    int
	WriteAttempts   int
	RetryDelay      time.Duration
	Limits          entity.WithdrawalLimits
}

// WalletUseCase owns every wallet balance. All writes go through
// applyMutation, which re-reads the wallet and writes it back conditionally
// on the version it read.
type WalletUseCase struct {
	walletRepo repository.WalletRepository
	cfg        LedgerConfig
	logger     *zap.Logger
	creates    singleflight.Group
	now        func() time.Time
}

func NewWalletUseCase(walletRepo repository.WalletRepository, cfg LedgerConfig, log *zap.Logger) *WalletUseCase {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 20 * time.Millisecond
	}
	return &WalletUseCase{
		walletRepo: walletRepo,
		cfg:        cfg,
		logger:     logger.OrNop(log).Named("ledger"),
		now:        time.Now,
	}
}

type CreditInput struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Description string
	RelatedRef  string
	Kind        entity.EntryKind
	Metadata    map[string]string
}

type DebitInput struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Description string
	RelatedRef  string
	Kind        entity.EntryKind
	Metadata    map[string]string
}

type MutationResult struct {
	Entry      entity.LedgerEntry `json:"entry"`
	NewBalance decimal.Decimal    `json:"new_balance"`
	Wallet     *entity.Wallet     `json:"-"`
}

type HistoryInput struct {
	UserID   string
	Page     int
	Limit    int
	Kind     entity.EntryKind
	Currency string
}

type WithdrawalCheck struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Wallet

// GetOrCreateWallet returns the user's wallet, creating it on first use.
// Concurrent first calls in this process share one creation; a creation race
// with another process is resolved by reading the winner's wallet.
func (uc *WalletUseCase) GetOrCreateWallet(ctx context.Context, userID string) (*entity.Wallet, error) {
	if userID == "" {
		return nil, errors.BadRequest("user id is required", nil)
	}

	// the shared call outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, _ := uc.creates.Do(userID, func() (interface{}, error) {
		return uc.getOrCreate(shared, userID)
	})
	if err != nil {
		return nil, err
	}
	// callers mutate what they get back
	return v.(*entity.Wallet).Clone(), nil
}

func (uc *WalletUseCase) getOrCreate(ctx context.Context, userID string) (*entity.Wallet, error) {
	wallet, err := uc.walletRepo.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.IsNotFound(err) {
		return nil, errors.InternalServer("Failed to load wallet", err)
	}

	wallet = entity.NewWallet(idgen.RecordID(), userID, uc.cfg.PrimaryCurrency, uc.cfg.Currencies, uc.now().UTC())
	err = uc.walletRepo.Create(ctx, wallet)
	switch {
	case err == nil:
		metrics.WalletsCreated.Inc()
		uc.logger.Info("wallet created", zap.String("user_id", userID))
		return wallet, nil
	case errors.Is(err, errors.CodeAlreadyExists):
		uc.logger.Debug("wallet creation raced, reading existing", zap.String("user_id", userID))
		wallet, err = uc.walletRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, errors.InternalServer("Failed to load wallet", err)
		}
		return wallet, nil
	default:
		return nil, errors.InternalServer("Failed to create wallet", err)
	}
}

func (uc *WalletUseCase) GetWallet(ctx context.Context, userID string) (*entity.Wallet, error) {
	return uc.GetOrCreateWallet(ctx, userID)
}

// Credit and debit

func (uc *WalletUseCase) Credit(ctx context.Context, input CreditInput) (*MutationResult, error) {
	kind := input.Kind
	if kind == "" {
		kind = entity.EntryKindCredit
	}
	if !kind.IncreasesBalance() {
		return nil, errors.BadRequest("entry kind "+string(kind)+" cannot credit a wallet", nil)
	}

	claim := ""
	if input.RelatedRef != "" {
		claim = entity.CreditRef(input.RelatedRef)
	}

	return uc.AppendEntry(ctx, input.UserID, entity.LedgerEntry{
		Kind:        kind,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Description: input.Description,
		RelatedRef:  input.RelatedRef,
		Status:      entity.EntryStatusCompleted,
		Metadata:    input.Metadata,
	}, claim)
}

func (uc *WalletUseCase) Debit(ctx context.Context, input DebitInput) (*MutationResult, error) {
	kind := input.Kind
	if kind == "" {
		kind = entity.EntryKindDebit
	}
	if kind.IncreasesBalance() {
		return nil, errors.BadRequest("entry kind "+string(kind)+" cannot debit a wallet", nil)
	}

	return uc.AppendEntry(ctx, input.UserID, entity.LedgerEntry{
		Kind:        kind,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Description: input.Description,
		RelatedRef:  input.RelatedRef,
		Status:      entity.EntryStatusCompleted,
		Metadata:    input.Metadata,
	}, "")
}

// AppendEntry stamps a fresh id on entry and applies it. A non-empty claimKey
// makes the write apply at most once per wallet.
func (uc *WalletUseCase) AppendEntry(ctx context.Context, userID string, entry entity.LedgerEntry, claimKey string) (*MutationResult, error) {
	if err := uc.validateCurrency(entry.Currency); err != nil {
		return nil, err
	}

	result, err := uc.applyMutation(ctx, userID, claimKey, func(w *entity.Wallet, now time.Time) (entity.LedgerEntry, error) {
		e := entry
		e.ID = idgen.EntryID(now, userID)
		e.CreatedAt = now
		e.UpdatedAt = now
		e.Metadata = copyMetadata(entry.Metadata)
		return w.AppendEntry(e, uc.cfg.HistoryLimit)
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(result.Entry.Kind), result.Entry.Currency).Inc()
	return result, nil
}

// Withdrawals

type WithdrawalDebitInput struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

// DebitForWithdrawal re-checks limits against the wallet it is about to
// write, appends a pending withdrawal entry and counts it against the daily
// and monthly totals in the same write.
func (uc *WalletUseCase) DebitForWithdrawal(ctx context.Context, input WithdrawalDebitInput) (*MutationResult, error) {
	if err := uc.validateCurrency(input.Currency); err != nil {
		return nil, err
	}

	result, err := uc.applyMutation(ctx, input.UserID, "", func(w *entity.Wallet, now time.Time) (entity.LedgerEntry, error) {
		if err := w.CheckWithdrawal(input.Amount, input.Currency, uc.cfg.Limits, now); err != nil {
			return entity.LedgerEntry{}, err
		}
		e, err := w.AppendEntry(entity.LedgerEntry{
			ID:          idgen.EntryID(now, input.UserID),
			Kind:        entity.EntryKindWithdrawal,
			Amount:      input.Amount,
			Currency:    input.Currency,
			Description: input.Description,
			Status:      entity.EntryStatusPending,
			Metadata:    copyMetadata(input.Metadata),
			CreatedAt:   now,
		}, uc.cfg.HistoryLimit)
		if err != nil {
			return entity.LedgerEntry{}, err
		}
		w.WithdrawalTracking.Add(input.Currency, input.Amount, now)
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(entity.EntryKindWithdrawal), input.Currency).Inc()
	return result, nil
}

type ReversalInput struct {
	UserID   string
	Entry    entity.LedgerEntry
	Status   entity.EntryStatus
	Reason   string
	Metadata map[string]string
}

// ReverseWithdrawal gives back the funds of a withdrawal entry. It applies at
// most once per entry.
func (uc *WalletUseCase) ReverseWithdrawal(ctx context.Context, input ReversalInput) (*MutationResult, error) {
	if input.Entry.Kind != entity.EntryKindWithdrawal {
		return nil, errors.BadRequest("only withdrawals can be reversed", nil)
	}

	result, err := uc.applyMutation(ctx, input.UserID, entity.ReversalRef(input.Entry.ID), func(w *entity.Wallet, now time.Time) (entity.LedgerEntry, error) {
		return w.ReverseWithdrawal(entity.Reversal{
			EntryID:    input.Entry.ID,
			RefundID:   idgen.EntryID(now, input.UserID),
			Amount:     input.Entry.Amount,
			Currency:   input.Entry.Currency,
			Status:     input.Status,
			Reason:     input.Reason,
			Metadata:   input.Metadata,
			WithdrawAt: input.Entry.CreatedAt,
			Now:        now,
		}, uc.cfg.HistoryLimit)
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(entity.EntryKindRefund), input.Entry.Currency).Inc()
	return result, nil
}

// UpdateEntry changes status or metadata of a retained entry in place.
// Amounts are not editable.
func (uc *WalletUseCase) UpdateEntry(ctx context.Context, userID, entryID string, update func(e *entity.LedgerEntry)) (*entity.LedgerEntry, error) {
	result, err := uc.applyMutation(ctx, userID, "", func(w *entity.Wallet, now time.Time) (entity.LedgerEntry, error) {
		idx := w.FindEntry(entryID)
		if idx < 0 {
			return entity.LedgerEntry{}, errors.EntryNotFound(entryID)
		}
		e := &w.Transactions[idx]
		amount, currency, kind := e.Amount, e.Currency, e.Kind
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		update(e)
		e.Amount, e.Currency, e.Kind = amount, currency, kind
		e.UpdatedAt = now
		w.UpdatedAt = now
		return *e, nil
	})
	if err != nil {
		return nil, err
	}
	return &result.Entry, nil
}

// GetEntry returns a retained entry of the user's wallet.
func (uc *WalletUseCase) GetEntry(ctx context.Context, userID, entryID string) (*entity.LedgerEntry, error) {
	wallet, err := uc.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := wallet.FindEntry(entryID)
	if idx < 0 {
		return nil, errors.EntryNotFound(entryID)
	}
	e := wallet.Transactions[idx]
	return &e, nil
}

// HasCredit reports whether a credit referencing ref has already been
// applied to the user's wallet.
func (uc *WalletUseCase) HasCredit(ctx context.Context, userID, ref string) (bool, error) {
	claimed, err := uc.walletRepo.HasClaim(ctx, userID, entity.CreditRef(ref))
	if err != nil {
		return false, errors.InternalServer("Failed to check credit claim", err)
	}
	return claimed, nil
}

// CanWithdraw evaluates a withdrawal against wallet without writing
// anything. The wallet's counters are rolled forward in place.
func (uc *WalletUseCase) CanWithdraw(wallet *entity.Wallet, amount decimal.Decimal, currency string) WithdrawalCheck {
	err := wallet.CheckWithdrawal(amount, currency, uc.cfg.Limits, uc.now().UTC())
	if err == nil {
		return WithdrawalCheck{OK: true}
	}
	check := WithdrawalCheck{Reason: err.Error()}
	if appErr, ok := err.(*errors.AppError); ok {
		check.Code = appErr.Code
		check.Reason = appErr.Message
	}
	return check
}

// History

func (uc *WalletUseCase) GetTransactionHistory(ctx context.Context, input HistoryInput) ([]entity.LedgerEntry, int64, error) {
	if input.Kind != "" && !input.Kind.Valid() {
		return nil, 0, errors.BadRequest("unknown transaction type "+string(input.Kind), nil)
	}

	wallet, err := uc.GetOrCreateWallet(ctx, input.UserID)
	if err != nil {
		return nil, 0, err
	}

	filtered := make([]entity.LedgerEntry, 0, len(wallet.Transactions))
	for _, e := range wallet.Transactions {
		if input.Kind != "" && e.Kind != input.Kind {
			continue
		}
		if input.Currency != "" && e.Currency != input.Currency {
			continue
		}
		filtered = append(filtered, e)
	}

	page := utils.NewPaginationParams(input.Page, input.Limit)
	start, end := page.Window(len(filtered))
	return filtered[start:end], int64(len(filtered)), nil
}

func (uc *WalletUseCase) SupportsCurrency(currency string) bool {
	for _, c := range uc.cfg.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

func (uc *WalletUseCase) validateCurrency(currency string) error {
	if !uc.SupportsCurrency(currency) {
		return errors.BadRequest("unsupported currency "+currency, nil)
	}
	return nil
}

// applyMutation runs mutate against a fresh copy of the wallet and writes the
// result back if nobody else wrote in between. On a version conflict the
// whole read-mutate-write cycle is repeated.
func (uc *WalletUseCase) applyMutation(
	ctx context.Context,
	userID string,
	claimKey string,
	mutate func(w *entity.Wallet, now time.Time) (entity.LedgerEntry, error),
) (*MutationResult, error) {
	var result *MutationResult

	err := retry.Do(ctx, uc.cfg.WriteAttempts, uc.cfg.RetryDelay, func() error {
		wallet, err := uc.GetOrCreateWallet(ctx, userID)
		if err != nil {
			return retry.Permanent(err)
		}

		expected := wallet.Version
		entry, err := mutate(wallet, uc.now().UTC())
		if err != nil {
			return retry.Permanent(err)
		}

		err = uc.walletRepo.Save(ctx, wallet, expected, claimKey)
		switch {
		case err == nil:
		case errors.Is(err, errors.CodeVersionConflict):
			metrics.LedgerWriteConflicts.Inc()
			return err
		case errors.Is(err, errors.CodeDuplicateCredit):
			metrics.LedgerDuplicateClaims.Inc()
			return retry.Permanent(err)
		default:
			return retry.Permanent(errors.InternalServer("Failed to save wallet", err))
		}

		result = &MutationResult{
			Entry:      entry,
			NewBalance: wallet.Balance(entry.Currency),
			Wallet:     wallet,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.CodeVersionConflict) {
			uc.logger.Warn("wallet write gave up after conflicts",
				zap.String("user_id", userID),
				zap.Int("attempts", uc.cfg.WriteAttempts))
		}
		return nil, err
	}
	return result, nil
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
