package service

import (
	"context"
	"time"

	"walletledger/internal/domain/entity"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/circuitbreaker"
	"walletledger/pkg/errors"
)

// GuardedGateway puts a circuit breaker and metrics in front of a rail.
// Only transport failures trip the breaker; a provider refusing a payout is a
// healthy answer.
type GuardedGateway struct {
	next    PayoutGateway
	breaker *circuitbreaker.Breaker
}

func NewGuardedGateway(next PayoutGateway, breaker *circuitbreaker.Breaker) *GuardedGateway {
	return &GuardedGateway{next: next, breaker: breaker}
}

func (g *GuardedGateway) Name() string {
	return g.next.Name()
}

func (g *GuardedGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return g.call("create", func() (*PayoutResult, error) {
		return g.next.CreatePayout(ctx, req)
	})
}

func (g *GuardedGateway) RetrievePayout(ctx context.Context, payoutID string, account *entity.PayoutAccount) (*PayoutResult, error) {
	return g.call("retrieve", func() (*PayoutResult, error) {
		return g.next.RetrievePayout(ctx, payoutID, account)
	})
}

func (g *GuardedGateway) call(operation string, fn func() (*PayoutResult, error)) (*PayoutResult, error) {
	name := g.next.Name()
	if !g.breaker.Allow(name) {
		metrics.PayoutsTotal.WithLabelValues(name, operation, "circuit_open").Inc()
		return nil, errors.PayoutGatewayUnavailable(name, circuitbreaker.ErrOpen)
	}

	start := time.Now()
	result, err := fn()
	if err != nil {
		appErr, ok := err.(*errors.AppError)
		if ok && !appErr.Retryable() {
			// bad input, the rail itself is fine
			g.breaker.RecordSuccess(name)
			metrics.ObservePayout(name, operation, "rejected", start)
			return nil, err
		}
		g.breaker.RecordFailure(name)
		metrics.ObservePayout(name, operation, "error", start)
		if ok {
			return nil, err
		}
		return nil, errors.PayoutGatewayUnavailable(name, err)
	}

	g.breaker.RecordSuccess(name)
	outcome := "ok"
	if !result.Success {
		outcome = "rejected"
	}
	metrics.ObservePayout(name, operation, outcome, start)
	return result, nil
}
