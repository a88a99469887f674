package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"tsu-loot/internal/pkg/log"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// SkipPaths 跳过日志记录的路径前缀
	SkipPaths []string

	// LogQuery 是否记录查询参数
	LogQuery bool
}

// DefaultLoggingConfig 默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/favicon.ico",
		},
		LogQuery: true,
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware(logger log.Logger) echo.MiddlewareFunc {
	return LoggingMiddlewareWithConfig(logger, DefaultLoggingConfig())
}

// LoggingMiddlewareWithConfig 带配置的日志中间件
func LoggingMiddlewareWithConfig(logger log.Logger, config *LoggingConfig) echo.MiddlewareFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if shouldSkip(c.Request().URL.Path, config.SkipPaths) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			statusCode := c.Response().Status
			fields := []any{
				log.String("method", c.Request().Method),
				log.String("path", c.Request().URL.Path),
				log.String("route", c.Path()),
				log.Int("status_code", statusCode),
				log.Duration("duration", time.Since(start).Milliseconds()),
				log.Int64("response_size", c.Response().Size),
				log.String("client_ip", c.RealIP()),
			}
			if config.LogQuery && c.Request().URL.RawQuery != "" {
				fields = append(fields, log.String("query", c.Request().URL.RawQuery))
			}

			switch {
			case err != nil:
				fields = append(fields, log.Any("error", err))
				logger.ErrorContext(ctx, "请求处理出错", fields...)
			case statusCode >= 500:
				logger.ErrorContext(ctx, "请求完成（服务器错误）", fields...)
			case statusCode >= 400:
				logger.WarnContext(ctx, "请求完成（客户端错误）", fields...)
			default:
				logger.InfoContext(ctx, "请求完成", fields...)
			}
			return nil
		}
	}
}

// shouldSkip 检查是否应该跳过日志记录
func shouldSkip(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
