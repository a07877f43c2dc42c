package usecase

import (
	"context"
	"time"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/errors"
	"walletledger/pkg/idgen"
	"walletledger/pkg/retry"
)

const (
	StrategyEscrowRef      = "escrow_ref"
	StrategyEscrowOrder    = "escrow_order"
	StrategyStandardRef    = "standard_ref"
	StrategyTransactionRef = "transaction_ref"
	StrategyEscrowID       = "escrow_id"
	StrategyStandardID     = "standard_id"
	StrategyOrderID        = "order_id"
)

// lookupAttempts covers the single silent retry of a transient read.
const lookupAttempts = 2

type lookup struct {
	name string
	find func(ctx context.Context, identifier string) (*entity.ResolvedPayment, error)
}

// TransactionResolver turns a client-supplied identifier into one
// ResolvedPayment, searching the payment collections in a fixed order.
type TransactionResolver struct {
	escrows      repository.EscrowRepository
	standard     repository.StandardPaymentRepository
	transactions repository.PaymentTransactionRepository
	orders       repository.OrderRepository
	retryDelay   time.Duration
}

func NewTransactionResolver(
	escrows repository.EscrowRepository,
	standard repository.StandardPaymentRepository,
	transactions repository.PaymentTransactionRepository,
	orders repository.OrderRepository,
	retryDelay time.Duration,
) *TransactionResolver {
	return &TransactionResolver{
		escrows:      escrows,
		standard:     standard,
		transactions: transactions,
		orders:       orders,
		retryDelay:   retryDelay,
	}
}

// Resolve runs the lookups in order and returns the first hit. The trace is
// returned in every case, including failures. A miss everywhere yields
// TransactionNotFound; a lookup that fails twice aborts with an internal error.
func (r *TransactionResolver) Resolve(ctx context.Context, identifier string, hint entity.PaymentKind) (*entity.ResolvedPayment, *entity.ResolutionTrace, error) {
	trace := &entity.ResolutionTrace{Identifier: identifier, Hint: hint}
	if identifier == "" {
		return nil, trace, errors.BadRequest("transaction id is required", nil)
	}

	for _, l := range r.plan(identifier, hint) {
		payment, err := r.run(ctx, trace, l, identifier)
		if err != nil {
			return nil, trace, err
		}
		if payment != nil {
			trace.Resolved = true
			trace.Source = payment.Source
			trace.Virtual = payment.IsVirtual
			return payment, trace, nil
		}
	}

	return nil, trace, errors.TransactionNotFound(identifier)
}

func (r *TransactionResolver) plan(identifier string, hint entity.PaymentKind) []lookup {
	escrowRef := lookup{StrategyEscrowRef, r.findEscrowByRef}
	escrowOrder := lookup{StrategyEscrowOrder, r.findEscrowOrder}
	standardRef := lookup{StrategyStandardRef, r.findStandardByRef}
	transactionRef := lookup{StrategyTransactionRef, r.findTransactionByRef}

	var steps []lookup
	if hint == entity.PaymentKindStandard {
		steps = []lookup{standardRef, escrowRef, escrowOrder, transactionRef}
	} else {
		steps = []lookup{escrowRef, escrowOrder, standardRef, transactionRef}
	}

	if !idgen.IsRecordID(identifier) {
		return steps
	}

	escrowID := lookup{StrategyEscrowID, r.findEscrowByID}
	standardID := lookup{StrategyStandardID, r.findStandardByID}
	if hint == entity.PaymentKindStandard {
		steps = append(steps, standardID, escrowID)
	} else {
		steps = append(steps, escrowID, standardID)
	}
	return append(steps, lookup{StrategyOrderID, r.findOrderByID})
}

// run executes one lookup with a single retry. NotFound is a miss, not an
// error.
func (r *TransactionResolver) run(ctx context.Context, trace *entity.ResolutionTrace, l lookup, identifier string) (*entity.ResolvedPayment, error) {
	step := entity.TraceStep{Strategy: l.name}
	start := time.Now()

	var found *entity.ResolvedPayment
	err := retry.Do(ctx, lookupAttempts, r.retryDelay, func() error {
		step.Attempts++
		p, err := l.find(ctx, identifier)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil
			}
			return err
		}
		found = p
		return nil
	})

	step.Duration = time.Since(start)
	switch {
	case err != nil:
		step.Outcome = entity.TraceError
		step.Error = err.Error()
	case found != nil:
		step.Outcome = entity.TraceHit
	default:
		step.Outcome = entity.TraceMiss
	}
	trace.Add(step)
	metrics.ResolverLookups.WithLabelValues(l.name, string(step.Outcome)).Inc()

	if err != nil {
		return nil, errors.InternalServer("Failed to resolve transaction", err)
	}
	return found, nil
}

// Lookups

func (r *TransactionResolver) findEscrowByRef(ctx context.Context, ref string) (*entity.ResolvedPayment, error) {
	e, err := r.escrows.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return entity.ResolvedFromEscrow(e), nil
}

func (r *TransactionResolver) findEscrowOrder(ctx context.Context, ref string) (*entity.ResolvedPayment, error) {
	order, err := r.orders.FindEscrowOrderByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.fromEscrowOrder(ctx, order)
}

func (r *TransactionResolver) findStandardByRef(ctx context.Context, ref string) (*entity.ResolvedPayment, error) {
	p, err := r.standard.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return entity.ResolvedFromStandard(p), nil
}

func (r *TransactionResolver) findTransactionByRef(ctx context.Context, ref string) (*entity.ResolvedPayment, error) {
	t, err := r.transactions.FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return entity.ResolvedFromTransaction(t), nil
}

func (r *TransactionResolver) findEscrowByID(ctx context.Context, id string) (*entity.ResolvedPayment, error) {
	e, err := r.escrows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return entity.ResolvedFromEscrow(e), nil
}

func (r *TransactionResolver) findStandardByID(ctx context.Context, id string) (*entity.ResolvedPayment, error) {
	p, err := r.standard.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return entity.ResolvedFromStandard(p), nil
}

func (r *TransactionResolver) findOrderByID(ctx context.Context, id string) (*entity.ResolvedPayment, error) {
	order, err := r.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentType == entity.OrderPaymentTypeEscrow {
		return r.fromEscrowOrder(ctx, order)
	}
	return r.fromStandardOrder(ctx, order)
}

// fromEscrowOrder finds the escrow record behind an escrow order by order
// number, payment ref, then parties. Orders that predate the escrow
// collection have none and come back as a virtual record.
func (r *TransactionResolver) fromEscrowOrder(ctx context.Context, order *entity.Order) (*entity.ResolvedPayment, error) {
	for _, ref := range []string{order.OrderNumber, order.PaymentRef} {
		if ref == "" {
			continue
		}
		e, err := r.escrows.FindByRef(ctx, ref)
		if err == nil {
			p := entity.ResolvedFromEscrow(e)
			p.OrderID = order.ID
			return p, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	if order.BuyerID != "" && order.SellerID != "" && order.ProductID != "" {
		e, err := r.escrows.FindByParties(ctx, order.BuyerID, order.SellerID, order.ProductID)
		if err == nil {
			p := entity.ResolvedFromEscrow(e)
			p.OrderID = order.ID
			return p, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	return entity.VirtualFromOrder(order), nil
}

func (r *TransactionResolver) fromStandardOrder(ctx context.Context, order *entity.Order) (*entity.ResolvedPayment, error) {
	for _, ref := range []string{order.PaymentRef, order.OrderNumber} {
		if ref == "" {
			continue
		}
		p, err := r.standard.FindByRef(ctx, ref)
		if err == nil {
			resolved := entity.ResolvedFromStandard(p)
			resolved.OrderID = order.ID
			return resolved, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	virtual := entity.VirtualFromOrder(order)
	virtual.Kind = entity.PaymentKindStandard
	return virtual, nil
}
