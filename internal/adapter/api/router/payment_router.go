package router

import (
	"github.com/labstack/echo/v4"

	"walletledger/internal/adapter/api/handler"
	"walletledger/internal/adapter/api/middleware"
)

func SetupPaymentRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	paymentGroup := e.Group("/v1/payments")
	paymentGroup.Use(authMiddleware.Authenticate)

	paymentGroup.POST("/:transactionId/complete", handler.GetPaymentHandler().CompletePayment)
}
