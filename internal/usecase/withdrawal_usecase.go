package usecase

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/internal/domain/service"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
	"walletledger/pkg/retry"
)

const (
	reversalAttempts = 3
	recordAttempts   = 3

	// defaultPayoutTimeout bounds one create call to a rail. The call does
	// not inherit the request's deadline.
	defaultPayoutTimeout = 30 * time.Second

	// payoutStatusUnknown marks a withdrawal whose create call ended without
	// an answer from the rail.
	payoutStatusUnknown = "unknown"
)

type WithdrawInput struct {
	Amount      decimal.Decimal
	Currency    string
	Method      entity.PayoutMethod
	AccountRef  string
	Description string
}

type WithdrawalResult struct {
	EntryID          string             `json:"entry_id"`
	PayoutID         string             `json:"payout_id,omitempty"`
	Status           entity.EntryStatus `json:"status"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency"`
	NewBalance       decimal.Decimal    `json:"new_balance"`
	EstimatedArrival *time.Time         `json:"estimated_arrival,omitempty"`
}

type WithdrawalStatus struct {
	EntryID          string             `json:"entry_id"`
	Status           entity.EntryStatus `json:"status"`
	PayoutID         string             `json:"payout_id,omitempty"`
	EstimatedArrival *time.Time         `json:"estimated_arrival,omitempty"`
	FailureReason    string             `json:"failure_reason,omitempty"`
	FailureCode      string             `json:"failure_code,omitempty"`
}

// WithdrawalUseCase moves wallet funds out through a payout rail. Funds are
// debited before the rail is called and explicitly given back when the
// payout does not go through.
type WithdrawalUseCase struct {
	walletUseCase *WalletUseCase
	accountRepo   repository.PayoutAccountRepository
	userRepo      repository.UserRepository
	gateways      map[entity.PayoutMethod]service.PayoutGateway
	minAmount     decimal.Decimal
	payoutTimeout time.Duration
	logger        *zap.Logger
}

func NewWithdrawalUseCase(
	walletUseCase *WalletUseCase,
	accountRepo repository.PayoutAccountRepository,
	userRepo repository.UserRepository,
	gateways map[entity.PayoutMethod]service.PayoutGateway,
	minAmount decimal.Decimal,
	log *zap.Logger,
) *WithdrawalUseCase {
	return &WithdrawalUseCase{
		walletUseCase: walletUseCase,
		accountRepo:   accountRepo,
		userRepo:      userRepo,
		gateways:      gateways,
		minAmount:     minAmount,
		payoutTimeout: defaultPayoutTimeout,
		logger:        logger.OrNop(log).Named("withdrawal"),
	}
}

// Withdraw

func (uc *WithdrawalUseCase) InitiateWithdrawal(ctx context.Context, userID string, input WithdrawInput) (*WithdrawalResult, error) {
	gateway, account, err := uc.validate(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	description := input.Description
	if description == "" {
		description = "Withdrawal to " + string(input.Method)
	}

	debit, err := uc.walletUseCase.DebitForWithdrawal(ctx, WithdrawalDebitInput{
		UserID:      userID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Description: description,
		Metadata: map[string]string{
			entity.MetaMethod:     string(input.Method),
			entity.MetaAccountRef: account.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	entry := debit.Entry

	uc.logger.Info("withdrawal debited",
		zap.String("user_id", userID),
		zap.String("entry_id", entry.ID),
		zap.String("amount", input.Amount.String()),
		zap.String("currency", input.Currency),
		zap.String("method", string(input.Method)))

	payout, err := uc.createPayout(ctx, gateway, service.PayoutRequest{
		Reference:   entry.ID,
		UserID:      userID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Account:     account,
		Description: description,
	})
	if err != nil {
		if outcomeUnknown(err) {
			// the rail may have taken it: keep the debit and let a status
			// check replay the create under the same idempotency key
			uc.logger.Warn("payout outcome unknown, withdrawal held",
				zap.String("user_id", userID),
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			if err := uc.record(ctx, userID, entry.ID, func(e *entity.LedgerEntry) {
				e.Metadata[entity.MetaPayoutProvider] = gateway.Name()
				e.Metadata[entity.MetaPayoutStatus] = payoutStatusUnknown
			}); err != nil {
				uc.logger.Error("failed to mark withdrawal outcome unknown",
					zap.String("entry_id", entry.ID),
					zap.Error(err))
			}
			return &WithdrawalResult{
				EntryID:    entry.ID,
				Status:     entity.EntryStatusPending,
				Amount:     input.Amount,
				Currency:   input.Currency,
				NewBalance: debit.NewBalance,
			}, nil
		}
		if _, rerr := uc.reverse(ctx, userID, entry, entity.EntryStatusFailed, "payout gateway unavailable", "unavailable", nil); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	if !payout.Success {
		if _, rerr := uc.reverse(ctx, userID, entry, entity.EntryStatusFailed, payout.ErrorMessage, "rejected", rejectionMetadata(gateway.Name(), payout)); rerr != nil {
			return nil, rerr
		}
		return nil, errors.PayoutRejected(gateway.Name(), payout.ErrorCode, payout.ErrorMessage)
	}

	status := payout.Status.EntryStatus()
	result := &WithdrawalResult{
		EntryID:          entry.ID,
		PayoutID:         payout.PayoutID,
		Status:           status,
		Amount:           input.Amount,
		Currency:         input.Currency,
		NewBalance:       debit.NewBalance,
		EstimatedArrival: payout.EstimatedArrival,
	}

	if status == entity.EntryStatusFailed || status == entity.EntryStatusCancelled {
		// accepted, then failed right away
		rev, err := uc.reverse(ctx, userID, entry, status, payout.ErrorMessage, "provider_failed", payoutMetadata(gateway.Name(), payout))
		if err != nil {
			return nil, err
		}
		if rev != nil {
			result.NewBalance = rev.NewBalance
		}
		return result, nil
	}

	if err := uc.record(ctx, userID, entry.ID, func(e *entity.LedgerEntry) {
		e.Status = status
		for k, v := range payoutMetadata(gateway.Name(), payout) {
			e.Metadata[k] = v
		}
	}); err != nil {
		// the payout exists, a later status check finds it by reference
		uc.logger.Error("failed to record payout on withdrawal entry",
			zap.String("user_id", userID),
			zap.String("entry_id", entry.ID),
			zap.String("payout_id", payout.PayoutID),
			zap.Error(err))
	}

	uc.logger.Info("payout created",
		zap.String("user_id", userID),
		zap.String("entry_id", entry.ID),
		zap.String("payout_id", payout.PayoutID),
		zap.String("status", string(status)))
	return result, nil
}

// createPayout calls the rail detached from the caller's context. Once the
// request may have left, a client hanging up must not turn it into a
// failure.
func (uc *WithdrawalUseCase) createPayout(ctx context.Context, gateway service.PayoutGateway, req service.PayoutRequest) (*service.PayoutResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.payoutTimeout)
	defer cancel()
	return gateway.CreatePayout(ctx, req)
}

// outcomeUnknown reports whether a failed create call may still have reached
// the rail. A timeout leaves that open; every other error is an answer.
func outcomeUnknown(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func (uc *WithdrawalUseCase) validate(ctx context.Context, userID string, input WithdrawInput) (service.PayoutGateway, *entity.PayoutAccount, error) {
	if !input.Amount.IsPositive() {
		return nil, nil, errors.BadRequest("amount must be greater than zero", nil)
	}
	if !entity.ValidAmountScale(input.Amount) {
		return nil, nil, errors.BadRequest("amount has more than 2 decimal places", nil)
	}
	if uc.minAmount.IsPositive() && input.Amount.LessThan(uc.minAmount) {
		return nil, nil, errors.BadRequest("minimum withdrawal amount is "+uc.minAmount.String(), nil)
	}
	if !uc.walletUseCase.SupportsCurrency(input.Currency) {
		return nil, nil, errors.BadRequest("unsupported currency "+input.Currency, nil)
	}
	if !input.Method.Valid() {
		return nil, nil, errors.BadRequest("unsupported withdrawal method "+string(input.Method), nil)
	}
	gateway, ok := uc.gateways[input.Method]
	if !ok {
		return nil, nil, errors.BadRequest("withdrawal method "+string(input.Method)+" is not available", nil)
	}

	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.NotFound("User", err)
		}
		return nil, nil, errors.InternalServer("Failed to load user", err)
	}
	if !user.IsActive() {
		return nil, nil, errors.Forbidden("User account is not active", nil)
	}

	if input.AccountRef == "" {
		return nil, nil, errors.InvalidAccount("payout account is required")
	}
	account, err := uc.accountRepo.GetByID(ctx, input.AccountRef)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.InvalidAccount("payout account not found")
		}
		return nil, nil, errors.InternalServer("Failed to load payout account", err)
	}
	switch {
	case account.UserID != userID:
		return nil, nil, errors.InvalidAccount("payout account does not belong to user")
	case account.Type != input.Method:
		return nil, nil, errors.InvalidAccount("payout account is not a " + string(input.Method) + " account")
	case !account.IsActive:
		return nil, nil, errors.InvalidAccount("payout account is not active")
	case account.Type == entity.PayoutMethodPayPal && !account.Verified:
		return nil, nil, errors.InvalidAccount("PayPal account is not verified")
	}

	return gateway, account, nil
}

// reverse gives the debited funds back. It runs detached from the caller's
// context: a client hanging up must not leave the balance debited. When the
// refund cannot be written the entry is still marked with its terminal status
// so a status check can finish the job, and ReversalPending is returned.
func (uc *WithdrawalUseCase) reverse(
	ctx context.Context,
	userID string,
	entry entity.LedgerEntry,
	status entity.EntryStatus,
	reason string,
	cause string,
	metadata map[string]string,
) (*MutationResult, error) {
	ctx = context.WithoutCancel(ctx)

	var result *MutationResult
	err := retry.Do(ctx, reversalAttempts, 50*time.Millisecond, func() error {
		r, err := uc.walletUseCase.ReverseWithdrawal(ctx, ReversalInput{
			UserID:   userID,
			Entry:    entry,
			Status:   status,
			Reason:   reason,
			Metadata: metadata,
		})
		if err != nil {
			if errors.Is(err, errors.CodeDuplicateCredit) {
				return retry.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	})

	switch {
	case err == nil:
		metrics.WithdrawalReversals.WithLabelValues(cause).Inc()
		uc.logger.Info("withdrawal reversed",
			zap.String("user_id", userID),
			zap.String("entry_id", entry.ID),
			zap.String("cause", cause),
			zap.String("reason", reason))
		return result, nil
	case errors.Is(err, errors.CodeDuplicateCredit):
		uc.logger.Debug("withdrawal already reversed", zap.String("entry_id", entry.ID))
		return nil, nil
	}

	uc.logger.Error("withdrawal reversal failed, balance still debited",
		zap.String("user_id", userID),
		zap.String("entry_id", entry.ID),
		zap.String("amount", entry.Amount.String()),
		zap.String("currency", entry.Currency),
		zap.Error(err))

	if merr := uc.record(ctx, userID, entry.ID, func(e *entity.LedgerEntry) {
		e.Status = status
		for k, v := range metadata {
			e.Metadata[k] = v
		}
		if reason != "" {
			e.Metadata[entity.MetaFailureReason] = reason
		}
	}); merr != nil {
		uc.logger.Error("failed to mark withdrawal for reversal",
			zap.String("entry_id", entry.ID),
			zap.Error(merr))
	}
	return nil, errors.ReversalPending(entry.ID, err)
}

// record writes payout progress onto the withdrawal entry, detached from the
// caller and retried.
func (uc *WithdrawalUseCase) record(ctx context.Context, userID, entryID string, update func(e *entity.LedgerEntry)) error {
	ctx = context.WithoutCancel(ctx)
	return retry.Do(ctx, recordAttempts, 50*time.Millisecond, func() error {
		_, err := uc.walletUseCase.UpdateEntry(ctx, userID, entryID, update)
		if errors.Is(err, errors.CodeEntryNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
}

// Status

// CheckStatus polls the rail for a withdrawal that is still in flight and
// records any change on the entry. A payout that failed or was canceled is
// reversed, once. A withdrawal whose create call never got an answer is
// settled by replaying the create under the same idempotency key.
func (uc *WithdrawalUseCase) CheckStatus(ctx context.Context, userID, entryID string) (*WithdrawalStatus, error) {
	entry, err := uc.walletUseCase.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Kind != entity.EntryKindWithdrawal {
		return nil, errors.EntryNotFound(entryID)
	}

	switch {
	case needsReversal(entry):
		uc.logger.Warn("finishing withdrawal reversal",
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		if _, err := uc.reverse(ctx, userID, *entry, entry.Status, entry.Metadata[entity.MetaFailureReason], "recovered", nil); err != nil {
			return nil, err
		}
		return uc.currentStatus(ctx, userID, entryID)
	case entry.Status.IsTerminal():
		return statusFromEntry(entry), nil
	}

	payoutID := entry.Metadata[entity.MetaPayoutID]
	if payoutID == "" && uc.mayBeInFlight(entry) {
		return statusFromEntry(entry), nil
	}

	gateway := uc.gatewayFor(entry)
	if gateway == nil {
		return nil, errors.InternalServer("No payout gateway for "+entry.Metadata[entity.MetaPayoutProvider], nil)
	}

	var account *entity.PayoutAccount
	if ref := entry.Metadata[entity.MetaAccountRef]; ref != "" {
		if a, err := uc.accountRepo.GetByID(ctx, ref); err == nil {
			account = a
		}
	}

	var payout *service.PayoutResult
	if payoutID != "" {
		payout, err = gateway.RetrievePayout(ctx, payoutID, account)
	} else {
		uc.logger.Info("replaying payout create",
			zap.String("user_id", userID),
			zap.String("entry_id", entryID))
		payout, err = uc.createPayout(ctx, gateway, service.PayoutRequest{
			Reference:   entry.ID,
			UserID:      userID,
			Amount:      entry.Amount,
			Currency:    entry.Currency,
			Account:     account,
			Description: entry.Description,
		})
	}
	if err != nil {
		return nil, err
	}
	if !payout.Success {
		if payoutID != "" {
			return nil, errors.PayoutRejected(gateway.Name(), payout.ErrorCode, payout.ErrorMessage)
		}
		// the replay returns the rail's original answer: it refused
		if _, err := uc.reverse(ctx, userID, *entry, entity.EntryStatusFailed, payout.ErrorMessage, "rejected", rejectionMetadata(gateway.Name(), payout)); err != nil {
			return nil, err
		}
		return uc.currentStatus(ctx, userID, entryID)
	}

	next := payout.Status.EntryStatus()
	if next == entry.Status && entry.Metadata[entity.MetaPayoutStatus] == string(payout.Status) {
		return statusFromEntry(entry), nil
	}

	uc.logger.Info("payout status changed",
		zap.String("user_id", userID),
		zap.String("entry_id", entryID),
		zap.String("payout_id", payout.PayoutID),
		zap.String("from", string(entry.Status)),
		zap.String("to", string(next)))

	if next == entity.EntryStatusFailed || next == entity.EntryStatusCancelled {
		reason := payout.ErrorMessage
		if reason == "" {
			reason = "payout " + string(payout.Status)
		}
		if _, err := uc.reverse(ctx, userID, *entry, next, reason, "provider_failed", payoutMetadata(gateway.Name(), payout)); err != nil {
			return nil, err
		}
	} else {
		_, err := uc.walletUseCase.UpdateEntry(ctx, userID, entryID, func(e *entity.LedgerEntry) {
			e.Status = next
			for k, v := range payoutMetadata(gateway.Name(), payout) {
				e.Metadata[k] = v
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return uc.currentStatus(ctx, userID, entryID)
}

func (uc *WithdrawalUseCase) currentStatus(ctx context.Context, userID, entryID string) (*WithdrawalStatus, error) {
	entry, err := uc.walletUseCase.GetEntry(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	return statusFromEntry(entry), nil
}

// mayBeInFlight reports whether the create call that debited entry could
// still be running. Past the call timeout it has ended one way or another.
func (uc *WithdrawalUseCase) mayBeInFlight(entry *entity.LedgerEntry) bool {
	if entry.Metadata[entity.MetaPayoutStatus] == payoutStatusUnknown {
		return false
	}
	return uc.walletUseCase.now().Sub(entry.CreatedAt) < uc.payoutTimeout
}

// needsReversal matches a withdrawal that ended without payout whose refund
// was never written.
func needsReversal(e *entity.LedgerEntry) bool {
	return (e.Status == entity.EntryStatusFailed || e.Status == entity.EntryStatusCancelled) &&
		e.Metadata[entity.MetaReversalEntryID] == ""
}

func (uc *WithdrawalUseCase) gatewayFor(entry *entity.LedgerEntry) service.PayoutGateway {
	if provider := entry.Metadata[entity.MetaPayoutProvider]; provider != "" {
		for _, g := range uc.gateways {
			if g.Name() == provider {
				return g
			}
		}
	}
	return uc.gateways[entity.PayoutMethod(entry.Metadata[entity.MetaMethod])]
}

func payoutMetadata(provider string, payout *service.PayoutResult) map[string]string {
	m := map[string]string{
		entity.MetaPayoutProvider: provider,
		entity.MetaPayoutStatus:   string(payout.Status),
	}
	if payout.PayoutID != "" {
		m[entity.MetaPayoutID] = payout.PayoutID
	}
	if payout.EstimatedArrival != nil {
		m[entity.MetaEstimatedArrival] = payout.EstimatedArrival.UTC().Format(time.RFC3339)
	}
	if payout.ErrorCode != "" {
		m[entity.MetaFailureCode] = payout.ErrorCode
	}
	return m
}

func rejectionMetadata(provider string, payout *service.PayoutResult) map[string]string {
	return map[string]string{
		entity.MetaFailureCode:    payout.ErrorCode,
		entity.MetaPayoutProvider: provider,
	}
}

func statusFromEntry(e *entity.LedgerEntry) *WithdrawalStatus {
	s := &WithdrawalStatus{
		EntryID:       e.ID,
		Status:        e.Status,
		PayoutID:      e.Metadata[entity.MetaPayoutID],
		FailureReason: e.Metadata[entity.MetaFailureReason],
		FailureCode:   e.Metadata[entity.MetaFailureCode],
	}
	if v := e.Metadata[entity.MetaEstimatedArrival]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			s.EstimatedArrival = &t
		}
	}
	return s
}
