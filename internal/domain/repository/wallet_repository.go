package repository

import (
	"context"

	"walletledger/internal/domain/entity"
)

// WalletRepository stores one wallet document per user.
type WalletRepository interface {
	// GetByUserID returns a NotFound AppError when the user has no wallet.
	GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error)
	// Create fails with an AlreadyExists AppError when the user already has a wallet.
	Create(ctx context.Context, wallet *entity.Wallet) error
	// Save replaces the stored wallet only if its version still equals
	// expectedVersion, and bumps the version. A non-empty claimKey is recorded
	// in the same write; if it was already claimed nothing is written and a
	// DuplicateCredit AppError is returned. A stale version yields VersionConflict.
	Save(ctx context.Context, wallet *entity.Wallet, expectedVersion int64, claimKey string) error
	HasClaim(ctx context.Context, userID, claimKey string) (bool, error)
}
