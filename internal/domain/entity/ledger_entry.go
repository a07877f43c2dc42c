package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryKindCredit     EntryKind = "credit"
	EntryKindDebit      EntryKind = "debit"
	EntryKindRefund     EntryKind = "refund"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindFee        EntryKind = "fee"
	EntryKindBonus      EntryKind = "bonus"
	EntryKindTransfer   EntryKind = "transfer"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindCredit, EntryKindDebit, EntryKindRefund, EntryKindWithdrawal,
		EntryKindFee, EntryKindBonus, EntryKindTransfer:
		return true
	}
	return false
}

// IncreasesBalance reports the direction of the entry. Transfers are
// outgoing.
func (k EntryKind) IncreasesBalance() bool {
	switch k {
	case EntryKindCredit, EntryKindRefund, EntryKindBonus:
		return true
	}
	return false
}

// AmountScale is the number of decimal places the ledger and the payout
// rails agree on. Amounts finer than a cent are rejected rather than rounded.
const AmountScale = 2

// ValidAmountScale reports whether amount fits in AmountScale decimals.
// Trailing zeros do not count.
func ValidAmountScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusInTransit EntryStatus = "in_transit"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusFailed || s == EntryStatusCancelled
}

// Reserved metadata keys. The ledger reads these back; every other key is
// carried through untouched.
const (
	MetaPayoutID         = "payoutId"
	MetaPayoutStatus     = "payoutStatus"
	MetaPayoutProvider   = "payoutProvider"
	MetaEstimatedArrival = "estimatedArrival"
	MetaFailureReason    = "failureReason"
	MetaFailureCode      = "failureCode"
	MetaAccountRef       = "accountRef"
	MetaMethod           = "method"
	MetaReversalEntryID  = "reversalEntryId"
	MetaReversedEntryID  = "reversedEntryId"
)

type LedgerEntry struct {
	ID           string            `json:"id"`
	Kind         EntryKind         `json:"kind"`
	Amount       decimal.Decimal   `json:"amount"`
	Currency     string            `json:"currency"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Description  string            `json:"description"`
	RelatedRef   string            `json:"related_ref,omitempty"`
	Status       EntryStatus       `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (e LedgerEntry) clone() LedgerEntry {
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

// CreditRef is the claim key that makes a credit against ref apply once.
func CreditRef(ref string) string {
	return "credit:" + ref
}

// ReversalRef is the claim key that makes a withdrawal reversal apply once.
func ReversalRef(entryID string) string {
	return "reversal:" + entryID
}
