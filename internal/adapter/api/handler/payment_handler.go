package handler

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/internal/usecase"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
	"walletledger/pkg/response"
)

type PaymentHandler struct {
	completionUseCase *usecase.PaymentCompletionUseCase
	logger            *zap.Logger
}

func NewPaymentHandler(completionUseCase *usecase.PaymentCompletionUseCase, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		completionUseCase: completionUseCase,
		logger:            logger.OrNop(log).Named("payment_handler"),
	}
}

type completePaymentRequest struct {
	TransactionType string `json:"transaction_type" validate:"omitempty,oneof=auto escrow standard"`
}

func (h *PaymentHandler) CompletePayment(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return err
	}

	var req completePaymentRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.completionUseCase.CompletePayment(c.Request().Context(), usecase.CompletePaymentInput{
		TransactionID:   c.Param("transactionId"),
		TransactionType: entity.PaymentKind(req.TransactionType),
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}
