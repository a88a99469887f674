package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsu-loot/internal/pkg/log"
	"tsu-loot/internal/pkg/response"
	"tsu-loot/internal/pkg/xerrors"
)

func TestTraceID_GeneratesAndPropagates(t *testing.T) {
	e := echo.New()
	e.Use(TraceID())

	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = log.EventID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestRecoveryMiddleware_WritesInternalError(t *testing.T) {
	e := echo.New()
	e.Use(TraceID())
	e.Use(RecoveryMiddleware(response.DefaultResponseHandler(), log.NewNopLogger()))
	e.GET("/boom", func(c echo.Context) error { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Code    int    `json:"code"`
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int(xerrors.CodeInternalError), body.Code)
	assert.Equal(t, "req-7", body.EventID)
}

func TestLoggingMiddleware_LevelsAndSkip(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := echo.New()
	e.Use(LoggingMiddleware(logger))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/api/v1/admin/loot/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, buf.Len(), "健康检查不记录")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/loot/3?x=1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "/api/v1/admin/loot/:id", entry["route"])
	assert.Equal(t, "x=1", entry["query"])
	assert.EqualValues(t, http.StatusNotFound, entry["status_code"])
}

func TestRateLimitMiddleware_DeniesOverLimit(t *testing.T) {
	e := echo.New()
	e.Use(RateLimitMiddleware(response.DefaultResponseHandler(), 1))
	e.GET("/loot", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/loot", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)

	req := httptest.NewRequest(http.MethodGet, "/loot", nil)
	req.RemoteAddr = "10.0.0.10:5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "不同客户端独立计数")
}
