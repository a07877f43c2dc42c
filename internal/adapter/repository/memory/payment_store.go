package memory

import (
	"context"
	"sync"
	"time"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
	"walletledger/pkg/idgen"
)

// PaymentStore keeps every payment-like collection in one place so a test
// can seed the overlapping views the resolver has to untangle.
type PaymentStore struct {
	mu           sync.RWMutex
	escrows      map[string]*entity.EscrowTransaction
	standard     map[string]*entity.StandardPayment
	transactions map[string]*entity.PaymentTransaction
	orders       map[string]*entity.Order
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		escrows:      make(map[string]*entity.EscrowTransaction),
		standard:     make(map[string]*entity.StandardPayment),
		transactions: make(map[string]*entity.PaymentTransaction),
		orders:       make(map[string]*entity.Order),
	}
}

func (s *PaymentStore) Escrows() repository.EscrowRepository { return escrowView{s} }

func (s *PaymentStore) Standard() repository.StandardPaymentRepository { return standardView{s} }

func (s *PaymentStore) Transactions() repository.PaymentTransactionRepository {
	return transactionView{s}
}

func (s *PaymentStore) Orders() repository.OrderRepository { return orderView{s} }

func (s *PaymentStore) AddEscrow(e entity.EscrowTransaction) *entity.EscrowTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = idgen.RecordID()
	}
	s.escrows[e.ID] = &e
	c := e
	return &c
}

func (s *PaymentStore) AddStandard(p entity.StandardPayment) *entity.StandardPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = idgen.RecordID()
	}
	s.standard[p.ID] = &p
	c := p
	return &c
}

func (s *PaymentStore) AddTransaction(t entity.PaymentTransaction) *entity.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = idgen.RecordID()
	}
	s.transactions[t.ID] = &t
	c := t
	return &c
}

func (s *PaymentStore) AddOrder(o entity.Order) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = idgen.RecordID()
	}
	s.orders[o.ID] = &o
	c := o
	return &c
}

// Escrow returns a copy of the stored escrow, or nil.
func (s *PaymentStore) Escrow(id string) *entity.EscrowTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.escrows[id]; ok {
		c := *e
		return &c
	}
	return nil
}

func (s *PaymentStore) StandardPayment(id string) *entity.StandardPayment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.standard[id]; ok {
		c := *p
		return &c
	}
	return nil
}

func (s *PaymentStore) OrderList() []entity.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func markCompleted(r *entity.PaymentRecord, at time.Time) {
	r.Status = entity.PaymentStatusCompleted
	r.UpdatedAt = at
	r.CompletedAt = &at
}

type escrowView struct{ s *PaymentStore }

func (v escrowView) GetByID(ctx context.Context, id string) (*entity.EscrowTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if e, ok := v.s.escrows[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, apperrors.NotFound("Escrow transaction", nil)
}

func (v escrowView) FindByRef(ctx context.Context, ref string) (*entity.EscrowTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, e := range v.s.escrows {
		if e.MatchesRef(ref) {
			c := *e
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("Escrow transaction", nil)
}

func (v escrowView) FindByParties(ctx context.Context, buyerID, sellerID, productID string) (*entity.EscrowTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var newest *entity.EscrowTransaction
	for _, e := range v.s.escrows {
		if e.BuyerID != buyerID || e.SellerID != sellerID || e.ProductID != productID {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, apperrors.NotFound("Escrow transaction", nil)
	}
	c := *newest
	return &c, nil
}

func (v escrowView) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.escrows[id]
	if !ok {
		return apperrors.NotFound("Escrow transaction", nil)
	}
	markCompleted(&e.PaymentRecord, at)
	return nil
}

type standardView struct{ s *PaymentStore }

func (v standardView) GetByID(ctx context.Context, id string) (*entity.StandardPayment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if p, ok := v.s.standard[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, apperrors.NotFound("Payment", nil)
}

func (v standardView) FindByRef(ctx context.Context, ref string) (*entity.StandardPayment, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, p := range v.s.standard {
		if p.MatchesRef(ref) {
			c := *p
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("Payment", nil)
}

func (v standardView) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.standard[id]
	if !ok {
		return apperrors.NotFound("Payment", nil)
	}
	markCompleted(&p.PaymentRecord, at)
	return nil
}

type transactionView struct{ s *PaymentStore }

func (v transactionView) GetByID(ctx context.Context, id string) (*entity.PaymentTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if t, ok := v.s.transactions[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, apperrors.NotFound("Transaction", nil)
}

func (v transactionView) FindByRef(ctx context.Context, ref string) (*entity.PaymentTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, t := range v.s.transactions {
		if t.MatchesRef(ref) {
			c := *t
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("Transaction", nil)
}

func (v transactionView) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.transactions[id]
	if !ok {
		return apperrors.NotFound("Transaction", nil)
	}
	markCompleted(&t.PaymentRecord, at)
	return nil
}

type orderView struct{ s *PaymentStore }

func (v orderView) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if o, ok := v.s.orders[id]; ok {
		c := *o
		return &c, nil
	}
	return nil, apperrors.NotFound("Order", nil)
}

func (v orderView) FindEscrowOrderByRef(ctx context.Context, ref string) (*entity.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, o := range v.s.orders {
		if o.PaymentType == entity.OrderPaymentTypeEscrow && o.References(ref) {
			c := *o
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("Order", nil)
}

func (v orderView) UpsertForPayment(ctx context.Context, p *entity.ResolvedPayment, status string) (*entity.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	now := time.Now()
	for _, o := range v.s.orders {
		if o.ID == p.OrderID || (p.OrderNumber != "" && o.OrderNumber == p.OrderNumber) || o.PaymentRef == p.ID {
			o.Status = status
			o.UpdatedAt = now
			c := *o
			return &c, nil
		}
	}

	o := &entity.Order{
		ID:          idgen.RecordID(),
		OrderNumber: p.OrderNumber,
		PaymentRef:  p.ID,
		PaymentType: string(p.Kind),
		BuyerID:     p.BuyerID,
		SellerID:    p.SellerID,
		ProductID:   p.ProductID,
		Amount:      p.GrossAmount,
		PlatformFee: p.PlatformFee,
		Currency:    p.Currency,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	v.s.orders[o.ID] = o
	c := *o
	return &c, nil
}
