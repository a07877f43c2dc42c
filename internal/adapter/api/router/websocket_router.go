package router

import (
	"github.com/labstack/echo/v4"

	"walletledger/internal/adapter/api/handler"
	"walletledger/internal/adapter/api/middleware"
)

func SetupWebSocketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/v1/ws", handler.GetWebSocketHandler().HandleWebSocket, authMiddleware.Authenticate)
}
