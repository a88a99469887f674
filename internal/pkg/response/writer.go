package response

import (
	"context"
	"net/http"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
)

// Writer 统一的 HTTP 响应写入
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
}

// ResponseHandler Writer 的默认实现
type ResponseHandler struct {
	logger      log.Logger
	environment string
}

// NewResponseHandler 创建响应处理器，生产环境不返回底层错误详情
func NewResponseHandler(logger log.Logger, environment string) *ResponseHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ResponseHandler{logger: logger, environment: environment}
}

// DefaultResponseHandler 测试与工具使用的开发环境处理器
func DefaultResponseHandler() *ResponseHandler {
	return NewResponseHandler(log.NewNopLogger(), "development")
}

// WriteSuccess 写入成功响应
func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := Success(&data)
	resp.EventID = log.EventID(ctx)
	JSON(w, http.StatusOK, resp)
	return nil
}

// WriteError 写入错误响应，非 AppError 按内部错误处理
func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	appErr, ok := xerrors.As(err)
	if !ok {
		appErr = xerrors.NewWithError(xerrors.CodeInternalError, xerrors.CodeInternalError.Message(), err)
	}

	status := xerrors.GetHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.LogAppError(ctx, h.logger, "请求处理失败", appErr)
	}

	detail := ""
	if h.environment != "production" {
		detail = appErr.Error()
	}

	resp := Error[EmptyData](int(appErr.Code), appErr.GetLocalizedMessage(LanguageFrom(ctx)), detail)
	resp.EventID = log.EventID(ctx)
	JSON(w, status, resp)
	return nil
}
