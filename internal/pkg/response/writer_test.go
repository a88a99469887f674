package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/xerrors"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
	EventID string `json:"event_id"`
}

func serveError(t *testing.T, h Writer, err error, header map[string]string) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/loot/9", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	req = req.WithContext(log.WithEventID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, EchoError(c, h, err))

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   xerrors.ErrorCode
	}{
		{"容器不存在", xerrors.NewContainerNotFoundError(9), http.StatusNotFound, xerrors.CodeLootContainerNotFound},
		{"容器状态冲突", xerrors.NewContainerStateError(9, "removed"), http.StatusConflict, xerrors.CodeLootContainerState},
		{"参数错误", xerrors.FromCode(xerrors.CodeInvalidParams), http.StatusBadRequest, xerrors.CodeInvalidParams},
		{"请求过于频繁", xerrors.FromCode(xerrors.CodeRateLimitExceeded), http.StatusTooManyRequests, xerrors.CodeRateLimitExceeded},
		{"外部依赖失败", xerrors.NewDatabaseError("select", "loot_drop_records", errors.New("conn refused")), http.StatusServiceUnavailable, xerrors.CodeDatabaseError},
		{"普通错误按内部错误处理", errors.New("boom"), http.StatusInternalServerError, xerrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serveError(t, DefaultResponseHandler(), tt.err, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, int(tt.code), body.Code)
			assert.Equal(t, "req-1", body.EventID)
		})
	}
}

func TestWriteError_ProductionHidesDetail(t *testing.T) {
	h := NewResponseHandler(log.NewNopLogger(), "production")
	_, body := serveError(t, h, xerrors.NewDatabaseError("select", "loot_drop_records", errors.New("conn refused")), nil)
	assert.Empty(t, body.Error)

	_, body = serveError(t, DefaultResponseHandler(), errors.New("boom"), nil)
	assert.Contains(t, body.Error, "boom")
}

func TestWriteError_LocalizedMessage(t *testing.T) {
	err := xerrors.NewContainerNotFoundError(9)

	_, body := serveError(t, DefaultResponseHandler(), err, nil)
	assert.Equal(t, "掉落容器不存在", body.Message)

	_, body = serveError(t, DefaultResponseHandler(), err, map[string]string{"Accept-Language": "zh-CN,zh;q=0.9"})
	assert.Equal(t, "掉落容器不存在", body.Message)

	_, body = serveError(t, DefaultResponseHandler(), err, map[string]string{"Accept-Language": "en-US,en;q=0.8"})
	assert.Equal(t, "error 900004", body.Message)
}

func TestWriteSuccess(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/loot", nil)
	req = req.WithContext(log.WithEventID(req.Context(), "req-2"))
	rec := httptest.NewRecorder()

	require.NoError(t, EchoOK(e.NewContext(req, rec), DefaultResponseHandler(), map[string]int{"total": 3}))

	var body struct {
		Code    int            `json:"code"`
		Data    map[string]int `json:"data"`
		EventID string         `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int(xerrors.CodeSuccess), body.Code)
	assert.Equal(t, 3, body.Data["total"])
	assert.Equal(t, "req-2", body.EventID)
}
