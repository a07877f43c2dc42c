package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"walletledger/internal/infrastructure/ratelimit"
	"walletledger/pkg/errors"
)

// RateLimit throttles action per authenticated user. It must run after
// Authenticate.
func RateLimit(rl *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := UserID(c)
			if uid == "" {
				return errors.Unauthorized("Authentication required", nil)
			}

			if ok, wait := rl.Allow(uid, action); !ok {
				seconds := int(wait.Round(time.Second) / time.Second)
				if seconds < 1 {
					seconds = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
				return errors.TooManyRequests("Too many " + action + " requests, retry later")
			}

			return next(c)
		}
	}
}
