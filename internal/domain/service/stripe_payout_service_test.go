package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/pkg/errors"
)

type fakeStripePayouts struct {
	created *stripe.PayoutParams
	payout  *stripe.Payout
	err     error
}

func (f *fakeStripePayouts) New(params *stripe.PayoutParams) (*stripe.Payout, error) {
	f.created = params
	return f.payout, f.err
}

func (f *fakeStripePayouts) Get(id string, params *stripe.PayoutParams) (*stripe.Payout, error) {
	if f.err != nil {
		return nil, f.err
	}
	po := *f.payout
	po.ID = id
	return &po, nil
}

func bankAccount() *entity.PayoutAccount {
	return &entity.PayoutAccount{
		ID:          "acc-bank",
		UserID:      "user-1",
		Type:        entity.PayoutMethodBankTransfer,
		ProviderRef: "acct_123",
		Destination: "ba_456",
		IsActive:    true,
	}
}

func TestStripePayoutService_CreatePayout(t *testing.T) {
	arrival := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	fake := &fakeStripePayouts{payout: &stripe.Payout{
		ID:          "po_1",
		Status:      stripe.PayoutStatusInTransit,
		ArrivalDate: arrival.Unix(),
	}}
	svc := newStripePayoutService(fake, zap.NewNop())

	result, err := svc.CreatePayout(context.Background(), PayoutRequest{
		Reference: "TXN-9",
		UserID:    "user-1",
		Amount:    decimal.RequireFromString("12.34"),
		Currency:  "EUR",
		Account:   bankAccount(),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "po_1", result.PayoutID)
	assert.Equal(t, PayoutStatusInTransit, result.Status)
	require.NotNil(t, result.EstimatedArrival)
	assert.True(t, arrival.Equal(*result.EstimatedArrival))

	require.NotNil(t, fake.created)
	assert.Equal(t, int64(1234), *fake.created.Amount)
	assert.Equal(t, "eur", *fake.created.Currency)
	assert.Equal(t, "ba_456", *fake.created.Destination)
	assert.Equal(t, "acct_123", *fake.created.StripeAccount)
	assert.Equal(t, "payout-TXN-9", *fake.created.IdempotencyKey)
	assert.Equal(t, "TXN-9", fake.created.Metadata["entry_id"])
}

func TestStripePayoutService_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantErrCode string
		wantRefusal string
	}{
		{
			name:        "invalid request is a refusal",
			err:         &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeBalanceInsufficient, Msg: "insufficient"},
			wantRefusal: string(stripe.ErrorCodeBalanceInsufficient),
		},
		{
			name:        "api error is an outage",
			err:         &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable, Type: stripe.ErrorTypeAPI},
			wantErrCode: errors.CodePayoutGatewayUnavailable,
		},
		{
			name:        "rate limit is an outage",
			err:         &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests, Type: stripe.ErrorTypeInvalidRequest},
			wantErrCode: errors.CodePayoutGatewayUnavailable,
		},
		{
			name:        "network error is an outage",
			err:         stderrors.New("dial tcp: connection refused"),
			wantErrCode: errors.CodePayoutGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStripePayoutService(&fakeStripePayouts{err: tt.err}, zap.NewNop())
			result, err := svc.CreatePayout(context.Background(), PayoutRequest{
				Reference: "TXN-1",
				Amount:    decimal.NewFromInt(5),
				Currency:  "USD",
				Account:   bankAccount(),
			})

			if tt.wantErrCode != "" {
				assert.Nil(t, result)
				assert.True(t, errors.Is(err, tt.wantErrCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, PayoutStatusFailed, result.Status)
			assert.Equal(t, tt.wantRefusal, result.ErrorCode)
		})
	}
}

func TestStripePayoutService_RetrievePayout(t *testing.T) {
	fake := &fakeStripePayouts{payout: &stripe.Payout{
		Status:         stripe.PayoutStatusFailed,
		FailureCode:    "account_closed",
		FailureMessage: "The bank account has been closed",
	}}
	svc := newStripePayoutService(fake, zap.NewNop())

	result, err := svc.RetrievePayout(context.Background(), "po_7", bankAccount())
	require.NoError(t, err)
	assert.Equal(t, "po_7", result.PayoutID)
	assert.Equal(t, PayoutStatusFailed, result.Status)
	assert.Equal(t, "account_closed", result.ErrorCode)
}

func TestStripePayoutService_RequiresLinkedAccount(t *testing.T) {
	svc := newStripePayoutService(&fakeStripePayouts{}, zap.NewNop())
	_, err := svc.CreatePayout(context.Background(), PayoutRequest{Account: &entity.PayoutAccount{}})
	assert.True(t, errors.Is(err, errors.CodeInvalidAccount))
}

func TestPayoutStatus_EntryStatus(t *testing.T) {
	tests := map[PayoutStatus]entity.EntryStatus{
		PayoutStatusPaid:      entity.EntryStatusCompleted,
		PayoutStatusInTransit: entity.EntryStatusInTransit,
		PayoutStatusPending:   entity.EntryStatusPending,
		PayoutStatusFailed:    entity.EntryStatusFailed,
		PayoutStatusCanceled:  entity.EntryStatusCancelled,
		PayoutStatus("weird"): entity.EntryStatusPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, in.EntryStatus(), string(in))
	}
}
