package service

import (
	"context"

	"walletledger/internal/domain/entity"
)

//go:generate mockgen -destination=mock_notifier.go -package=service walletledger/internal/domain/service Notifier

// Notifier tells a seller that money arrived. Delivery is fire-and-forget;
// buyer and product may be nil when they could not be looked up.
type Notifier interface {
	NotifyPaymentReceived(ctx context.Context, payment *entity.ResolvedPayment, buyer, seller *entity.User, product *entity.Product) error
}
