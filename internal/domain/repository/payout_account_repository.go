package repository

import (
	"context"

	"walletledger/internal/domain/entity"
)

type PayoutAccountRepository interface {
	GetByID(ctx context.Context, id string) (*entity.PayoutAccount, error)
	ListByUserID(ctx context.Context, userID string) ([]*entity.PayoutAccount, error)
}
