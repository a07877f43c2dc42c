package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"walletledger/internal/domain/entity"
)

//go:generate mockgen -destination=mock_payout_gateway.go -package=service walletledger/internal/domain/service PayoutGateway

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusInTransit PayoutStatus = "in_transit"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusCanceled  PayoutStatus = "canceled"
)

// EntryStatus maps a provider payout status onto the withdrawal entry
// lifecycle.
func (s PayoutStatus) EntryStatus() entity.EntryStatus {
	switch s {
	case PayoutStatusPaid:
		return entity.EntryStatusCompleted
	case PayoutStatusInTransit:
		return entity.EntryStatusInTransit
	case PayoutStatusFailed:
		return entity.EntryStatusFailed
	case PayoutStatusCanceled:
		return entity.EntryStatusCancelled
	default:
		return entity.EntryStatusPending
	}
}

// PayoutRequest asks a rail to move Amount out to Account. Reference is the
// withdrawal entry id and doubles as the idempotency key.
type PayoutRequest struct {
	Reference   string
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Account     *entity.PayoutAccount
	Description string
}

// PayoutResult is what a rail reports. A provider that refuses the payout
// returns Success=false with ErrorCode set and a nil error; a nil result with
// an error means the provider could not be reached.
type PayoutResult struct {
	Success          bool
	PayoutID         string
	Status           PayoutStatus
	EstimatedArrival *time.Time
	ErrorCode        string
	ErrorMessage     string
}

// PayoutGateway is one payout rail.
type PayoutGateway interface {
	Name() string
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	RetrievePayout(ctx context.Context, payoutID string, account *entity.PayoutAccount) (*PayoutResult, error)
}
