package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound                 = "NOT_FOUND"
	CodeBadRequest               = "BAD_REQUEST"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeConflict                 = "CONFLICT"
	CodeInternal                 = "INTERNAL_SERVER_ERROR"
	CodeTooManyRequests          = "TOO_MANY_REQUESTS"
	CodeWalletNotFound           = "WALLET_NOT_FOUND"
	CodeWalletBlocked            = "WALLET_BLOCKED"
	CodeInsufficientFunds        = "INSUFFICIENT_FUNDS"
	CodeWithdrawalLimitExceeded  = "WITHDRAWAL_LIMIT_EXCEEDED"
	CodeTransactionNotFound      = "TRANSACTION_NOT_FOUND"
	CodeEntryNotFound            = "ENTRY_NOT_FOUND"
	CodePayoutGatewayUnavailable = "PAYOUT_GATEWAY_UNAVAILABLE"
	CodePayoutRejected           = "PAYOUT_REJECTED"
	CodeInvalidAccount           = "INVALID_ACCOUNT"
	CodeDuplicateCredit          = "DUPLICATE_CREDIT"
	CodeVersionConflict          = "VERSION_CONFLICT"
	CodeAlreadyExists            = "ALREADY_EXISTS"
	CodeReversalPending          = "REVERSAL_PENDING"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error

	// ProviderCode is the payout provider's own error code, when there is one.
	ProviderCode string
}

func (e *AppError) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.ProviderCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodePayoutGatewayUnavailable, CodeVersionConflict, CodeTooManyRequests:
		return true
	}
	return false
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func InternalServer(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// Ledger

func WalletNotFound(userID string, err error) *AppError {
	return &AppError{
		Code:    CodeWalletNotFound,
		Message: fmt.Sprintf("wallet for user %s not found", userID),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func WalletBlocked(status string) *AppError {
	return &AppError{
		Code:    CodeWalletBlocked,
		Message: fmt.Sprintf("wallet is %s", status),
		Status:  http.StatusForbidden,
	}
}

func InsufficientFunds(currency string) *AppError {
	return &AppError{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("insufficient %s balance", currency),
		Status:  http.StatusBadRequest,
	}
}

func WithdrawalLimitExceeded(message string) *AppError {
	return &AppError{
		Code:    CodeWithdrawalLimitExceeded,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func EntryNotFound(entryID string) *AppError {
	return &AppError{
		Code:    CodeEntryNotFound,
		Message: fmt.Sprintf("ledger entry %s not found", entryID),
		Status:  http.StatusNotFound,
	}
}

func DuplicateCredit(ref string) *AppError {
	return &AppError{
		Code:    CodeDuplicateCredit,
		Message: fmt.Sprintf("reference %s already applied", ref),
		Status:  http.StatusConflict,
	}
}

func VersionConflict(err error) *AppError {
	return &AppError{
		Code:    CodeVersionConflict,
		Message: "wallet was modified concurrently",
		Status:  http.StatusConflict,
		Err:     err,
	}
}

func AlreadyExists(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// Payments

func TransactionNotFound(identifier string) *AppError {
	return &AppError{
		Code:    CodeTransactionNotFound,
		Message: fmt.Sprintf("transaction %s not found", identifier),
		Status:  http.StatusNotFound,
	}
}

func PayoutGatewayUnavailable(provider string, err error) *AppError {
	return &AppError{
		Code:    CodePayoutGatewayUnavailable,
		Message: fmt.Sprintf("%s payouts are temporarily unavailable", provider),
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func PayoutRejected(provider, providerCode, message string) *AppError {
	if message == "" {
		message = "payout rejected"
	}
	return &AppError{
		Code:         CodePayoutRejected,
		Message:      fmt.Sprintf("%s: %s", provider, message),
		Status:       http.StatusUnprocessableEntity,
		ProviderCode: providerCode,
	}
}

// ReversalPending means the payout did not go through but giving the funds
// back failed. Polling the entry's status finishes the reversal; submitting
// the withdrawal again would debit twice.
func ReversalPending(entryID string, err error) *AppError {
	return &AppError{
		Code:    CodeReversalPending,
		Message: fmt.Sprintf("withdrawal %s failed and its refund is pending", entryID),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func InvalidAccount(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidAccount,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound matches every not-found flavor.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status == http.StatusNotFound
	}
	return false
}
