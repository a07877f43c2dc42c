package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindAuto     PaymentKind = "auto"
	PaymentKindEscrow   PaymentKind = "escrow"
	PaymentKindStandard PaymentKind = "standard"
)

// PaymentSource names the collection a resolved payment was read from.
type PaymentSource string

const (
	SourceEscrow      PaymentSource = "escrow"
	SourceStandard    PaymentSource = "standard"
	SourceTransaction PaymentSource = "transaction"
	SourceOrder       PaymentSource = "order"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusReleased   = "released"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
)

// PaymentRecord holds the fields every payment representation shares.
type PaymentRecord struct {
	ID             string          `json:"id"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	OrderNumber    string          `json:"order_number,omitempty"`
	BuyerID        string          `json:"buyer_id"`
	SellerID       string          `json:"seller_id"`
	ProductID      string          `json:"product_id"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// MatchesRef reports whether ref is this record's internal, gateway or
// human-readable reference.
func (p PaymentRecord) MatchesRef(ref string) bool {
	if ref == "" {
		return false
	}
	return p.TransactionRef == ref || p.ExternalRef == ref || p.OrderNumber == ref
}

// IsSettled treats an escrow release the same as a completion.
func (p PaymentRecord) IsSettled() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusReleased
}

// SellerAmount is gross minus platform fee.
func (p PaymentRecord) SellerAmount() decimal.Decimal {
	return p.GrossAmount.Sub(p.PlatformFee)
}

type EscrowTransaction struct {
	PaymentRecord
	ReleaseAt *time.Time `json:"release_at,omitempty"`
}

type StandardPayment struct {
	PaymentRecord
	PaymentMethod string `json:"payment_method,omitempty"`
}

// PaymentTransaction is an entry of the generic cross-cutting transaction
// collection. EscrowRef is set when it stands for an escrow payment.
type PaymentTransaction struct {
	PaymentRecord
	EscrowRef string `json:"escrow_ref,omitempty"`
}

func (t PaymentTransaction) Kind() PaymentKind {
	if t.EscrowRef != "" {
		return PaymentKindEscrow
	}
	return PaymentKindStandard
}

const OrderPaymentTypeEscrow = "escrow"

// Order embeds enough of the payment to rebuild it when no dedicated
// payment record exists.
type Order struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	PaymentRef  string          `json:"payment_ref,omitempty"`
	PaymentType string          `json:"payment_type"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	ProductID   string          `json:"product_id"`
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (o Order) References(ref string) bool {
	return ref != "" && (o.OrderNumber == ref || o.PaymentRef == ref)
}

// ResolvedPayment is the single shape the resolver hands out, whatever
// collection the data came from.
type ResolvedPayment struct {
	PaymentRecord
	Kind      PaymentKind   `json:"kind"`
	Source    PaymentSource `json:"source"`
	IsVirtual bool          `json:"is_virtual"`
	OrderID   string        `json:"order_id,omitempty"`
}

func ResolvedFromEscrow(e *EscrowTransaction) *ResolvedPayment {
	return &ResolvedPayment{PaymentRecord: e.PaymentRecord, Kind: PaymentKindEscrow, Source: SourceEscrow}
}

func ResolvedFromStandard(p *StandardPayment) *ResolvedPayment {
	return &ResolvedPayment{PaymentRecord: p.PaymentRecord, Kind: PaymentKindStandard, Source: SourceStandard}
}

func ResolvedFromTransaction(t *PaymentTransaction) *ResolvedPayment {
	return &ResolvedPayment{PaymentRecord: t.PaymentRecord, Kind: t.Kind(), Source: SourceTransaction}
}

// VirtualFromOrder projects an escrow order with no backing escrow record.
// The result is read-only and must never be written back as an escrow.
func VirtualFromOrder(o *Order) *ResolvedPayment {
	return &ResolvedPayment{
		PaymentRecord: PaymentRecord{
			ID:          o.ID,
			ExternalRef: o.PaymentRef,
			OrderNumber: o.OrderNumber,
			BuyerID:     o.BuyerID,
			SellerID:    o.SellerID,
			ProductID:   o.ProductID,
			GrossAmount: o.Amount,
			PlatformFee: o.PlatformFee,
			Currency:    o.Currency,
			Status:      o.Status,
			CreatedAt:   o.CreatedAt,
			UpdatedAt:   o.UpdatedAt,
		},
		Kind:      PaymentKindEscrow,
		Source:    SourceOrder,
		IsVirtual: true,
		OrderID:   o.ID,
	}
}
