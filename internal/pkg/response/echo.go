// File: internal/pkg/response/echo.go
package response

import (
	"context"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
)

// Echo 框架适配器 - 简化 Echo Handler 中的响应处理

type languageKey struct{}

// WithLanguage 在 context 中记录客户端语言
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, languageKey{}, tag)
}

// LanguageFrom 读取客户端语言，未设置时返回 language.Und
func LanguageFrom(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(languageKey{}).(language.Tag); ok {
		return tag
	}
	return language.Und
}

// EchoOK Echo 成功响应
func EchoOK[T any](c echo.Context, h Writer, data T) error {
	return h.WriteSuccess(c.Request().Context(), c.Response().Writer, data)
}

// EchoError Echo 错误响应，错误消息按 Accept-Language 本地化
func EchoError(c echo.Context, h Writer, err error) error {
	ctx := c.Request().Context()
	if header := c.Request().Header.Get("Accept-Language"); header != "" {
		if tags, _, perr := language.ParseAcceptLanguage(header); perr == nil && len(tags) > 0 {
			ctx = WithLanguage(ctx, tags[0])
		}
	}
	return h.WriteError(ctx, c.Response().Writer, err)
}
