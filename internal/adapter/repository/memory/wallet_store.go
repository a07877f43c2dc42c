// Package memory holds in-process implementations of the domain repositories.
// They back the use case tests and STORAGE_DRIVER=memory local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
)

type WalletStore struct {
	mu      sync.RWMutex
	wallets map[string]*entity.Wallet
	claims  map[string]bool // "userID|claimKey"
}

var _ repository.WalletRepository = (*WalletStore)(nil)

func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets: make(map[string]*entity.Wallet),
		claims:  make(map[string]bool),
	}
}

func (s *WalletStore) GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, apperrors.WalletNotFound(userID, nil)
	}
	return w.Clone(), nil
}

func (s *WalletStore) Create(ctx context.Context, wallet *entity.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.UserID]; ok {
		return apperrors.AlreadyExists("Wallet", nil)
	}
	wallet.Version = 1
	s.wallets[wallet.UserID] = wallet.Clone()
	return nil
}

func (s *WalletStore) Save(ctx context.Context, wallet *entity.Wallet, expectedVersion int64, claimKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.wallets[wallet.UserID]
	if !ok {
		return apperrors.WalletNotFound(wallet.UserID, nil)
	}
	if current.Version != expectedVersion {
		return apperrors.VersionConflict(nil)
	}
	if claimKey != "" {
		key := wallet.UserID + "|" + claimKey
		if s.claims[key] {
			return apperrors.DuplicateCredit(claimKey)
		}
		s.claims[key] = true
	}

	wallet.Version = expectedVersion + 1
	wallet.UpdatedAt = time.Now()
	s.wallets[wallet.UserID] = wallet.Clone()
	return nil
}

func (s *WalletStore) HasClaim(ctx context.Context, userID, claimKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims[userID+"|"+claimKey], nil
}

// Count returns the number of stored wallets.
func (s *WalletStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wallets)
}
