package router

import (
	"github.com/labstack/echo/v4"

	"walletledger/internal/adapter/api/handler"
	"walletledger/internal/adapter/api/middleware"
	"walletledger/internal/infrastructure/ratelimit"
)

func SetupWalletRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	walletHandler := handler.GetWalletHandler()

	walletGroup := e.Group("/v1/wallet")
	walletGroup.Use(authMiddleware.Authenticate)

	walletGroup.GET("", walletHandler.GetWallet)
	walletGroup.GET("/transactions", walletHandler.GetTransactions)
	walletGroup.POST("/withdraw", walletHandler.Withdraw, middleware.RateLimit(limiter, ratelimit.ActionWithdraw))
	walletGroup.GET("/withdrawals/:entryId", walletHandler.GetWithdrawalStatus)
}
