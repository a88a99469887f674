package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tsu-loot/internal/pkg/log"
)

// HeaderRequestID 请求关联 ID 的请求头
const HeaderRequestID = "X-Request-ID"

// TraceID 确保每个请求都有关联 ID
// 优先沿用调用方的 X-Request-ID，没有时生成 UUID；写入日志上下文并回写到响应头
func TraceID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}

			ctx := log.WithEventID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderRequestID, id)

			return next(c)
		}
	}
}
