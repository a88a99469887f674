// File: internal/pkg/xerrors/codes.go
package xerrors

import "fmt"

// ErrorCode 错误码类型（类型安全）
type ErrorCode int

// IsValid 检查错误码是否在预定义列表中
func (c ErrorCode) IsValid() bool {
	_, exists := codeMessages[c]
	return exists
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (未定义的错误码)", c)
}

// Message 返回错误码对应的消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "未知错误"
}

// ToInt 转换为 int（用于 JSON 序列化等场景）
func (c ErrorCode) ToInt() int {
	return int(c)
}

// -----------------------------------------------------------------------------
// 错误码按领域分段
// -----------------------------------------------------------------------------
const (
	// 系统级 (10xxxx)
	CodeSuccess           ErrorCode = 100000 // 操作成功
	CodeInternalError     ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams     ErrorCode = 100002 // 参数错误
	CodeInvalidRequest    ErrorCode = 100003 // 请求格式错误
	CodeResourceNotFound  ErrorCode = 100404 // 资源不存在
	CodeRateLimitExceeded ErrorCode = 100429 // 请求过于频繁

	// 业务通用 (60xxxx)
	CodeBusinessLogicError  ErrorCode = 600001 // 业务逻辑错误
	CodeDataIntegrityError  ErrorCode = 600002 // 数据完整性错误
	CodeOperationNotAllowed ErrorCode = 600003 // 操作不被允许

	// 外部依赖 (70xxxx)
	CodeExternalServiceError ErrorCode = 700001 // 外部服务错误
	CodeDatabaseError        ErrorCode = 700003 // 数据库错误
	CodeCacheError           ErrorCode = 700004 // 缓存服务错误
	CodeMessageQueueError    ErrorCode = 700005 // 消息队列错误

	// 掉落 (90xxxx)
	CodeLootNoContributors     ErrorCode = 900001 // 死亡事件没有参与者
	CodeLootNoEligibleOwner    ErrorCode = 900002 // 参与者中没有可拥有掉落的玩家
	CodeLootTableNotFound      ErrorCode = 900003 // 掉落表不存在
	CodeLootContainerNotFound  ErrorCode = 900004 // 掉落容器不存在
	CodeLootContainerState     ErrorCode = 900005 // 掉落容器状态不允许该操作
	CodeLootPrototypeNotFound  ErrorCode = 900006 // NPC 原型不存在
	CodeLootInvalidContributor ErrorCode = 900007 // 参与者 ID 不合法

	// 标识符池 (91xxxx)
	CodeIdentifierExhausted ErrorCode = 910001 // 标识符已耗尽
	CodeIdentifierNotHeld   ErrorCode = 910002 // 释放了未被持有的标识符
)

// -----------------------------------------------------------------------------
// HTTP 状态码常量定义
// -----------------------------------------------------------------------------
const (
	HTTPStatusOK                  = 200
	HTTPStatusBadRequest          = 400
	HTTPStatusNotFound            = 404
	HTTPStatusConflict            = 409
	HTTPStatusTooManyRequests     = 429
	HTTPStatusInternalServerError = 500
	HTTPStatusServiceUnavailable  = 503
)

// -----------------------------------------------------------------------------
// 错误消息映射
// -----------------------------------------------------------------------------
var codeMessages = map[ErrorCode]string{
	CodeSuccess:           "操作成功",
	CodeInternalError:     "内部服务错误",
	CodeInvalidParams:     "参数错误",
	CodeInvalidRequest:    "请求格式错误",
	CodeResourceNotFound:  "资源不存在",
	CodeRateLimitExceeded: "请求过于频繁，请稍后再试",

	CodeBusinessLogicError:  "业务逻辑错误",
	CodeDataIntegrityError:  "数据完整性错误",
	CodeOperationNotAllowed: "操作不被允许",

	CodeExternalServiceError: "外部服务错误",
	CodeDatabaseError:        "数据库错误",
	CodeCacheError:           "缓存服务错误",
	CodeMessageQueueError:    "消息队列错误",

	CodeLootNoContributors:     "死亡事件没有记录参与者",
	CodeLootNoEligibleOwner:    "没有可拥有掉落的玩家",
	CodeLootTableNotFound:      "掉落表不存在",
	CodeLootContainerNotFound:  "掉落容器不存在",
	CodeLootContainerState:     "掉落容器状态不允许该操作",
	CodeLootPrototypeNotFound:  "NPC 原型不存在",
	CodeLootInvalidContributor: "参与者 ID 不合法",

	CodeIdentifierExhausted: "标识符已耗尽",
	CodeIdentifierNotHeld:   "释放了未被持有的标识符",
}

// GetHTTPStatus 根据业务错误码获取HTTP状态码
func GetHTTPStatus(code ErrorCode) int {
	switch {
	case code == CodeSuccess:
		return HTTPStatusOK
	case code == CodeResourceNotFound, code == CodeLootContainerNotFound,
		code == CodeLootTableNotFound, code == CodeLootPrototypeNotFound:
		return HTTPStatusNotFound
	case code == CodeLootContainerState:
		return HTTPStatusConflict
	case code == CodeRateLimitExceeded:
		return HTTPStatusTooManyRequests
	case code == CodeInvalidParams || code == CodeInvalidRequest:
		return HTTPStatusBadRequest
	case code >= 600000 && code < 700000:
		return HTTPStatusBadRequest
	case code >= 700000 && code < 800000:
		return HTTPStatusServiceUnavailable
	default:
		return HTTPStatusInternalServerError
	}
}

// getCategoryByCode 根据错误码获取分类
func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 600000 && code < 700000:
		return "business"
	case code >= 700000 && code < 800000:
		return "external"
	case code >= 900000 && code < 910000:
		return "loot"
	case code >= 910000 && code < 920000:
		return "identifier"
	default:
		return "unknown"
	}
}

// getLevelByCode 根据错误码获取级别
func getLevelByCode(code ErrorCode) ErrorLevel {
	switch {
	case code == CodeSuccess:
		return LevelInfo
	case code >= 100001 && code <= 100003:
		return LevelWarn
	case code == CodeLootNoContributors, code == CodeLootNoEligibleOwner,
		code == CodeLootTableNotFound, code == CodeLootPrototypeNotFound,
		code == CodeLootInvalidContributor:
		// 可恢复的异常：记录并跳过
		return LevelWarn
	case code == CodeIdentifierNotHeld, code == CodeDataIntegrityError:
		// 标识符空间损坏
		return LevelCritical
	case code >= 700001 && code < 800000:
		return LevelCritical
	default:
		return LevelError
	}
}

// isRecoverableByCode 可恢复错误只影响当前事件
func isRecoverableByCode(code ErrorCode) bool {
	switch code {
	case CodeLootNoContributors, CodeLootNoEligibleOwner, CodeLootTableNotFound,
		CodeLootPrototypeNotFound, CodeLootContainerNotFound, CodeLootInvalidContributor:
		return true
	default:
		return false
	}
}

// isRetryableByCode 根据错误码判断是否可重试
func isRetryableByCode(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		CodeExternalServiceError: true,
		CodeDatabaseError:        true,
		CodeCacheError:           true,
		CodeMessageQueueError:    true,
	}
	return retryableCodes[code]
}
