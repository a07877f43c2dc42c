package router

import (
	"github.com/labstack/echo/v4"

	"walletledger/internal/adapter/api/middleware"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/internal/infrastructure/ratelimit"
	"walletledger/pkg/response"
)

// Setup registers every route. handler.Setup must have run first.
func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	e.HTTPErrorHandler = response.ErrorHandler

	SetupHealthRouter(e)
	e.GET("/metrics", metrics.Handler())

	SetupWalletRouter(e, authMiddleware, limiter)
	SetupPaymentRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware)
}
