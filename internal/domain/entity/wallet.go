package entity

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "walletledger/pkg/errors"
)

type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusSuspended WalletStatus = "suspended"
	WalletStatusFrozen    WalletStatus = "frozen"
)

type Wallet struct {
	ID                 string                     `json:"id"`
	UserID             string                     `json:"user_id"`
	Balances           map[string]decimal.Decimal `json:"balances"`
	PrimaryCurrency    string                     `json:"primary_currency"`
	Status             WalletStatus               `json:"status"`
	Transactions       []LedgerEntry              `json:"transactions"`
	WithdrawalTracking WithdrawalTracking         `json:"withdrawal_tracking"`
	Statistics         WalletStatistics           `json:"statistics"`
	Version            int64                      `json:"version"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

type WalletStatistics struct {
	TotalEarned       map[string]decimal.Decimal `json:"total_earned"`
	TotalWithdrawn    map[string]decimal.Decimal `json:"total_withdrawn"`
	TransactionCount  int64                      `json:"transaction_count"`
	LastTransactionAt *time.Time                 `json:"last_transaction_at,omitempty"`
}

// NewWallet returns an empty active wallet with a zero balance for every
// supported currency.
func NewWallet(id, userID, primaryCurrency string, currencies []string, now time.Time) *Wallet {
	balances := make(map[string]decimal.Decimal, len(currencies))
	for _, c := range currencies {
		balances[c] = decimal.Zero
	}
	return &Wallet{
		ID:              id,
		UserID:          userID,
		Balances:        balances,
		PrimaryCurrency: primaryCurrency,
		Status:          WalletStatusActive,
		Transactions:    []LedgerEntry{},
		WithdrawalTracking: WithdrawalTracking{
			Daily:          map[string]decimal.Decimal{},
			Monthly:        map[string]decimal.Decimal{},
			DailyResetAt:   startOfDay(now),
			MonthlyResetAt: startOfMonth(now),
		},
		Statistics: WalletStatistics{
			TotalEarned:    map[string]decimal.Decimal{},
			TotalWithdrawn: map[string]decimal.Decimal{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (w *Wallet) Balance(currency string) decimal.Decimal {
	if b, ok := w.Balances[currency]; ok {
		return b
	}
	return decimal.Zero
}

func (w *Wallet) IsActive() bool {
	return w.Status == "" || w.Status == WalletStatusActive
}

// AppendEntry applies entry to the balance of its currency, prepends it to
// the history and trims the history to historyLimit. It is the only place a
// balance changes. A debit-like entry that would leave a negative balance is
// rejected and the wallet is left untouched.
func (w *Wallet) AppendEntry(entry LedgerEntry, historyLimit int) (LedgerEntry, error) {
	if !entry.Amount.IsPositive() {
		return LedgerEntry{}, apperrors.BadRequest("amount must be greater than zero", nil)
	}
	if !ValidAmountScale(entry.Amount) {
		return LedgerEntry{}, apperrors.BadRequest("amount has more than 2 decimal places", nil)
	}
	if !entry.Kind.Valid() {
		return LedgerEntry{}, apperrors.BadRequest("unknown entry kind "+string(entry.Kind), nil)
	}

	current := w.Balance(entry.Currency)
	var next decimal.Decimal
	if entry.Kind.IncreasesBalance() {
		next = current.Add(entry.Amount)
	} else {
		next = current.Sub(entry.Amount)
		if next.IsNegative() {
			return LedgerEntry{}, apperrors.InsufficientFunds(entry.Currency)
		}
	}

	if w.Balances == nil {
		w.Balances = map[string]decimal.Decimal{}
	}
	w.Balances[entry.Currency] = next

	entry.BalanceAfter = next
	if entry.Status == "" {
		entry.Status = EntryStatusCompleted
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	w.Transactions = append([]LedgerEntry{entry}, w.Transactions...)
	if historyLimit > 0 && len(w.Transactions) > historyLimit {
		w.Transactions = w.Transactions[:historyLimit]
	}

	w.Statistics.record(entry)
	w.UpdatedAt = entry.CreatedAt
	return entry, nil
}

// FindEntry returns the index of the retained entry with the given id, or -1.
func (w *Wallet) FindEntry(entryID string) int {
	for i := range w.Transactions {
		if w.Transactions[i].ID == entryID {
			return i
		}
	}
	return -1
}

// Reversal restores the funds of a withdrawal that did not go through.
type Reversal struct {
	EntryID    string
	RefundID   string
	Amount     decimal.Decimal
	Currency   string
	Status     EntryStatus
	Reason     string
	Metadata   map[string]string
	WithdrawAt time.Time
	Now        time.Time
}

// ReverseWithdrawal marks the withdrawal entry (when still retained) with the
// terminal status, appends a refund entry for the same amount and rolls back
// the withdrawal counters and statistics.
func (w *Wallet) ReverseWithdrawal(r Reversal, historyLimit int) (LedgerEntry, error) {
	if !r.Amount.IsPositive() {
		return LedgerEntry{}, apperrors.BadRequest("reversal amount must be greater than zero", nil)
	}

	if idx := w.FindEntry(r.EntryID); idx >= 0 {
		e := &w.Transactions[idx]
		if e.Kind != EntryKindWithdrawal {
			return LedgerEntry{}, apperrors.BadRequest("entry is not a withdrawal", nil)
		}
		if e.Metadata[MetaReversalEntryID] != "" {
			return LedgerEntry{}, apperrors.DuplicateCredit(ReversalRef(r.EntryID))
		}

		e.Status = r.Status
		e.UpdatedAt = r.Now
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
		for k, v := range r.Metadata {
			e.Metadata[k] = v
		}
		if r.Reason != "" {
			e.Metadata[MetaFailureReason] = r.Reason
		}
		e.Metadata[MetaReversalEntryID] = r.RefundID
	}

	refund, err := w.AppendEntry(LedgerEntry{
		ID:          r.RefundID,
		Kind:        EntryKindRefund,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: "Withdrawal reversal",
		RelatedRef:  r.EntryID,
		Status:      EntryStatusCompleted,
		Metadata:    map[string]string{MetaReversedEntryID: r.EntryID},
		CreatedAt:   r.Now,
	}, historyLimit)
	if err != nil {
		return LedgerEntry{}, err
	}

	w.WithdrawalTracking.Subtract(r.Currency, r.Amount, r.WithdrawAt)
	if w.Statistics.TotalWithdrawn != nil {
		w.Statistics.TotalWithdrawn[r.Currency] = floorZero(w.Statistics.TotalWithdrawn[r.Currency].Sub(r.Amount))
	}
	return refund, nil
}

// CheckWithdrawal evaluates balance, status and rolling limits for a
// withdrawal. Counters are rolled to now first.
func (w *Wallet) CheckWithdrawal(amount decimal.Decimal, currency string, limits WithdrawalLimits, now time.Time) error {
	if !w.IsActive() {
		return apperrors.WalletBlocked(string(w.Status))
	}
	if !amount.IsPositive() {
		return apperrors.BadRequest("amount must be greater than zero", nil)
	}
	if w.Balance(currency).LessThan(amount) {
		return apperrors.InsufficientFunds(currency)
	}

	w.WithdrawalTracking.Roll(now)

	if limits.Daily.IsPositive() && w.WithdrawalTracking.Daily[currency].Add(amount).GreaterThan(limits.Daily) {
		return apperrors.WithdrawalLimitExceeded("daily withdrawal limit of " + limits.Daily.String() + " " + currency + " exceeded")
	}
	if limits.Monthly.IsPositive() && w.WithdrawalTracking.Monthly[currency].Add(amount).GreaterThan(limits.Monthly) {
		return apperrors.WithdrawalLimitExceeded("monthly withdrawal limit of " + limits.Monthly.String() + " " + currency + " exceeded")
	}
	return nil
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Balances = cloneAmounts(w.Balances)
	c.Transactions = make([]LedgerEntry, len(w.Transactions))
	for i, e := range w.Transactions {
		c.Transactions[i] = e.clone()
	}
	c.WithdrawalTracking.Daily = cloneAmounts(w.WithdrawalTracking.Daily)
	c.WithdrawalTracking.Monthly = cloneAmounts(w.WithdrawalTracking.Monthly)
	c.Statistics.TotalEarned = cloneAmounts(w.Statistics.TotalEarned)
	c.Statistics.TotalWithdrawn = cloneAmounts(w.Statistics.TotalWithdrawn)
	if w.Statistics.LastTransactionAt != nil {
		t := *w.Statistics.LastTransactionAt
		c.Statistics.LastTransactionAt = &t
	}
	return &c
}

func (s *WalletStatistics) record(e LedgerEntry) {
	if s.TotalEarned == nil {
		s.TotalEarned = map[string]decimal.Decimal{}
	}
	if s.TotalWithdrawn == nil {
		s.TotalWithdrawn = map[string]decimal.Decimal{}
	}
	switch e.Kind {
	case EntryKindCredit, EntryKindBonus:
		s.TotalEarned[e.Currency] = s.TotalEarned[e.Currency].Add(e.Amount)
	case EntryKindWithdrawal:
		s.TotalWithdrawn[e.Currency] = s.TotalWithdrawn[e.Currency].Add(e.Amount)
	}
	s.TransactionCount++
	at := e.CreatedAt
	s.LastTransactionAt = &at
}

func cloneAmounts(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
