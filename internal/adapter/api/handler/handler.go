package handler

import (
	"go.uber.org/zap"

	"walletledger/internal/infrastructure/websocket"
	"walletledger/internal/usecase"
)

var (
	walletHandler    *WalletHandler
	paymentHandler   *PaymentHandler
	webSocketHandler *WebSocketHandler
	healthHandler    *HealthHandler
)

func Setup(
	walletUseCase *usecase.WalletUseCase,
	withdrawalUseCase *usecase.WithdrawalUseCase,
	completionUseCase *usecase.PaymentCompletionUseCase,
	wsManager *websocket.Manager,
	log *zap.Logger,
) {
	walletHandler = NewWalletHandler(walletUseCase, withdrawalUseCase, log)
	paymentHandler = NewPaymentHandler(completionUseCase, log)
	webSocketHandler = NewWebSocketHandler(wsManager, log)
	healthHandler = NewHealthHandler()
}

func GetWalletHandler() *WalletHandler {
	return walletHandler
}

func GetPaymentHandler() *PaymentHandler {
	return paymentHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}
