package repository

import (
	"context"
	"time"

	"walletledger/internal/domain/entity"
)

// Lookups return a NotFound AppError when nothing matches. FindByRef matches
// the internal transaction ref, the gateway ref or the order number.

type EscrowRepository interface {
	GetByID(ctx context.Context, id string) (*entity.EscrowTransaction, error)
	FindByRef(ctx context.Context, ref string) (*entity.EscrowTransaction, error)
	// FindByParties returns the newest escrow for the buyer, seller and product.
	FindByParties(ctx context.Context, buyerID, sellerID, productID string) (*entity.EscrowTransaction, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

type StandardPaymentRepository interface {
	GetByID(ctx context.Context, id string) (*entity.StandardPayment, error)
	FindByRef(ctx context.Context, ref string) (*entity.StandardPayment, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

type PaymentTransactionRepository interface {
	GetByID(ctx context.Context, id string) (*entity.PaymentTransaction, error)
	FindByRef(ctx context.Context, ref string) (*entity.PaymentTransaction, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	// FindEscrowOrderByRef finds an escrow-type order whose order number or
	// embedded payment ref equals ref.
	FindEscrowOrderByRef(ctx context.Context, ref string) (*entity.Order, error)
	// UpsertForPayment creates the order for a payment, or updates its status
	// when one already exists.
	UpsertForPayment(ctx context.Context, payment *entity.ResolvedPayment, status string) (*entity.Order, error)
}
