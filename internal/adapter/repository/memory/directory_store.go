package memory

import (
	"context"
	"sort"
	"sync"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
)

// DirectoryStore serves users, products and payout accounts.
type DirectoryStore struct {
	mu       sync.RWMutex
	users    map[string]*entity.User
	products map[string]*entity.Product
	accounts map[string]*entity.PayoutAccount
}

var (
	_ repository.UserRepository          = (*DirectoryStore)(nil)
	_ repository.ProductRepository       = productView{}
	_ repository.PayoutAccountRepository = accountView{}
)

func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		users:    make(map[string]*entity.User),
		products: make(map[string]*entity.Product),
		accounts: make(map[string]*entity.PayoutAccount),
	}
}

func (s *DirectoryStore) Products() repository.ProductRepository { return productView{s} }

func (s *DirectoryStore) Accounts() repository.PayoutAccountRepository { return accountView{s} }

func (s *DirectoryStore) AddUser(u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *DirectoryStore) AddProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *DirectoryStore) AddAccount(a entity.PayoutAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = &a
}

func (s *DirectoryStore) GetByID(ctx context.Context, id string) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, apperrors.NotFound("User", nil)
}

type productView struct{ s *DirectoryStore }

func (v productView) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if p, ok := v.s.products[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, apperrors.NotFound("Product", nil)
}

type accountView struct{ s *DirectoryStore }

func (v accountView) GetByID(ctx context.Context, id string) (*entity.PayoutAccount, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if a, ok := v.s.accounts[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, apperrors.NotFound("Payout account", nil)
}

func (v accountView) ListByUserID(ctx context.Context, userID string) ([]*entity.PayoutAccount, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []*entity.PayoutAccount
	for _, a := range v.s.accounts {
		if a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
