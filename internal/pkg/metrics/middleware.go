// File: internal/pkg/metrics/middleware.go
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
)

// Middleware Echo 中间件，按路由模板记录请求数、延迟与并发数
func Middleware(m *HTTPMetrics, service string) echo.MiddlewareFunc {
	if m == nil {
		m = DefaultHTTPMetrics
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsHealthCheckEndpoint(c.Request().URL.Path) {
				return next(c)
			}

			m.IncInProgress(service)
			start := time.Now()
			err := next(c)
			if err != nil {
				// 让 echo 的错误处理器先写出状态码
				c.Error(err)
			}
			m.DecInProgress(service)
			m.RecordRequest(service, c.Path(), c.Request().Method, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

// EchoHandler Echo 框架的 Prometheus metrics 处理器
func EchoHandler() echo.HandlerFunc {
	return echo.WrapHandler(Handler())
}
