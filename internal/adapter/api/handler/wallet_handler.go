package handler

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletledger/internal/adapter/api/middleware"
	"walletledger/internal/domain/entity"
	"walletledger/internal/usecase"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
	"walletledger/pkg/response"
	"walletledger/pkg/utils"
)

type WalletHandler struct {
	walletUseCase     *usecase.WalletUseCase
	withdrawalUseCase *usecase.WithdrawalUseCase
	logger            *zap.Logger
}

func NewWalletHandler(walletUseCase *usecase.WalletUseCase, withdrawalUseCase *usecase.WithdrawalUseCase, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		walletUseCase:     walletUseCase,
		withdrawalUseCase: withdrawalUseCase,
		logger:            logger.OrNop(log).Named("wallet_handler"),
	}
}

func getUserID(c echo.Context) (string, error) {
	userID := middleware.UserID(c)
	if userID == "" {
		return "", errors.Unauthorized("Invalid session", nil)
	}
	return userID, nil
}

type withdrawRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"positive_amount"`
	Currency    string          `json:"currency" validate:"required,iso4217"`
	Method      string          `json:"method" validate:"required,oneof=bank_transfer paypal"`
	AccountID   string          `json:"account_id" validate:"required"`
	Description string          `json:"description" validate:"max=200"`
}

func (h *WalletHandler) GetWallet(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}

	wallet, err := h.walletUseCase.GetOrCreateWallet(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("get wallet failed", zap.String("user_id", userID), zap.Error(err))
		return response.Error(c, err)
	}

	return response.Success(c, wallet)
}

func (h *WalletHandler) GetTransactions(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}

	page := utils.GetPaginationParams(c)
	entries, total, err := h.walletUseCase.GetTransactionHistory(c.Request().Context(), usecase.HistoryInput{
		UserID:   userID,
		Page:     page.Page,
		Limit:    page.PageSize,
		Kind:     entity.EntryKind(c.QueryParam("type")),
		Currency: strings.ToUpper(c.QueryParam("currency")),
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, entries, total, page.Page, page.PageSize)
}

func (h *WalletHandler) Withdraw(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}

	var req withdrawRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.withdrawalUseCase.InitiateWithdrawal(c.Request().Context(), userID, usecase.WithdrawInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      entity.PayoutMethod(req.Method),
		AccountRef:  req.AccountID,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("withdrawal failed",
			zap.String("user_id", userID),
			zap.String("amount", req.Amount.String()),
			zap.String("currency", req.Currency),
			zap.Error(err))
		return response.Error(c, err)
	}

	return response.Created(c, result)
}

func (h *WalletHandler) GetWithdrawalStatus(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}

	status, err := h.withdrawalUseCase.CheckStatus(c.Request().Context(), userID, c.Param("entryId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, status)
}
