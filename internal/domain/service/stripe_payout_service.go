package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/payout"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
)

const StripeProviderName = "stripe"

// stripePayouts is the part of the Stripe payout API this rail uses.
// *payout.Client satisfies it.
type stripePayouts interface {
	New(params *stripe.PayoutParams) (*stripe.Payout, error)
	Get(id string, params *stripe.PayoutParams) (*stripe.Payout, error)
}

// StripePayoutService is the bank-transfer rail. Each bank account is a
// Stripe connected account; payouts move funds from that account's Stripe
// balance to its external bank account.
type StripePayoutService struct {
	payouts stripePayouts
	logger  *zap.Logger
}

func NewStripePayoutService(secretKey string, log *zap.Logger) *StripePayoutService {
	return newStripePayoutService(&payout.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}, log)
}

func newStripePayoutService(payouts stripePayouts, log *zap.Logger) *StripePayoutService {
	return &StripePayoutService{
		payouts: payouts,
		logger:  logger.OrNop(log).Named("stripe"),
	}
}

func (s *StripePayoutService) Name() string {
	return StripeProviderName
}

func (s *StripePayoutService) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Account == nil || req.Account.ProviderRef == "" {
		return nil, errors.InvalidAccount("bank account is not linked to a Stripe account")
	}

	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(minorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetStripeAccount(req.Account.ProviderRef)
	params.SetIdempotencyKey("payout-" + req.Reference)
	params.AddMetadata("entry_id", req.Reference)
	params.AddMetadata("user_id", req.UserID)
	if req.Account.Destination != "" {
		params.Destination = stripe.String(req.Account.Destination)
	}

	po, err := s.payouts.New(params)
	if err != nil {
		return s.classify(err)
	}

	s.logger.Info("payout created",
		zap.String("payout_id", po.ID),
		zap.String("entry_id", req.Reference),
		zap.String("status", string(po.Status)))
	return stripeResult(po), nil
}

func (s *StripePayoutService) RetrievePayout(ctx context.Context, payoutID string, account *entity.PayoutAccount) (*PayoutResult, error) {
	params := &stripe.PayoutParams{}
	params.Context = ctx
	if account != nil && account.ProviderRef != "" {
		params.SetStripeAccount(account.ProviderRef)
	}

	po, err := s.payouts.Get(payoutID, params)
	if err != nil {
		return s.classify(err)
	}
	return stripeResult(po), nil
}

// classify splits Stripe errors into refusals, reported as an unsuccessful
// result, and outages, reported as an error.
func (s *StripePayoutService) classify(err error) (*PayoutResult, error) {
	var stripeErr *stripe.Error
	if !stderrors.As(err, &stripeErr) {
		return nil, errors.PayoutGatewayUnavailable(StripeProviderName, err)
	}

	if stripeErr.HTTPStatusCode == 0 ||
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.Type == stripe.ErrorTypeAPI {
		s.logger.Warn("stripe unavailable", zap.Int("status", stripeErr.HTTPStatusCode), zap.Error(err))
		return nil, errors.PayoutGatewayUnavailable(StripeProviderName, err)
	}

	code := string(stripeErr.Code)
	if code == "" {
		code = string(stripeErr.Type)
	}
	s.logger.Info("payout refused", zap.String("code", code), zap.String("message", stripeErr.Msg))
	return &PayoutResult{
		Success:      false,
		Status:       PayoutStatusFailed,
		ErrorCode:    code,
		ErrorMessage: stripeErr.Msg,
	}, nil
}

func stripeResult(po *stripe.Payout) *PayoutResult {
	result := &PayoutResult{
		Success:  true,
		PayoutID: po.ID,
		Status:   stripeStatus(po.Status),
	}
	if po.ArrivalDate > 0 {
		arrival := time.Unix(po.ArrivalDate, 0).UTC()
		result.EstimatedArrival = &arrival
	}
	if po.FailureCode != "" {
		result.ErrorCode = string(po.FailureCode)
		result.ErrorMessage = po.FailureMessage
	}
	return result
}

func stripeStatus(s stripe.PayoutStatus) PayoutStatus {
	switch s {
	case stripe.PayoutStatusPaid:
		return PayoutStatusPaid
	case stripe.PayoutStatusInTransit:
		return PayoutStatusInTransit
	case stripe.PayoutStatusFailed:
		return PayoutStatusFailed
	case stripe.PayoutStatusCanceled:
		return PayoutStatusCanceled
	default:
		return PayoutStatusPending
	}
}

// minorUnits converts a two-decimal currency amount to cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.New(100, 0)).Round(0).IntPart()
}
