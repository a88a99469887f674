package response

import (
	"encoding/json"
	"net/http"
	"time"

	"tsu-loot/internal/pkg/log"
)

// EmptyData 是一个用于在 API 成功响应中表示“无数据”的结构体。
type EmptyData struct{}

// ResponseResult 是一个通用的API响应结构体
type ResponseResult[T any] struct {
	Code      int    `json:"code"`               // 业务响应码
	Message   string `json:"message"`            // 响应消息
	Data      *T     `json:"data,omitempty"`     // 响应数据，成功时返回
	Error     string `json:"error,omitempty"`    // 错误详情，失败时返回
	Timestamp int64  `json:"timestamp"`          // Unix时间戳
	EventID   string `json:"event_id,omitempty"` // 关联的事件 ID
}

// Success 创建一个成功的响应
func Success[T any](data *T) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      100000,
		Message:   "操作成功",
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// Error 创建一个失败的响应
// 注意：对于失败响应，泛型 T 的具体类型不重要，所以 Data 字段将为 nil
func Error[T any](code int, message string, err string) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      code,
		Message:   message,
		Error:     err,
		Timestamp: time.Now().Unix(),
	}
}

// JSON 将响应以JSON格式写入 http.ResponseWriter
func JSON[T any](w http.ResponseWriter, statusCode int, resp *ResponseResult[T]) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	// header 已经写入，序列化失败只能记录日志
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("写入JSON响应失败", err)
	}
}
