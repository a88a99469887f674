package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"tsu-loot/internal/pkg/response"
	"tsu-loot/internal/pkg/xerrors"
)

// RateLimitMiddleware 按客户端 IP 限流，超限时返回统一错误响应
func RateLimitMiddleware(respWriter response.Writer, perSecond float64) echo.MiddlewareFunc {
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			appErr := xerrors.NewWithError(xerrors.CodeInvalidRequest, "无法识别客户端", err)
			return response.EchoError(c, respWriter, appErr)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			appErr := xerrors.FromCode(xerrors.CodeRateLimitExceeded).
				WithService("loot-admin", "rate_limiter").
				WithMetadata("client_ip", identifier)
			return response.EchoError(c, respWriter, appErr)
		},
	}

	return middleware.RateLimiterWithConfig(config)
}
