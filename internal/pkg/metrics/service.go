package metrics

import (
	"strings"
	"sync/atomic"
)

const defaultServiceName = "loot"

var globalServiceName atomic.Pointer[string]

// SetServiceName 设置所有指标 service 标签的默认值
//
// 名称统一转为小写，空白替换为 "-"，空字符串恢复为 loot。
func SetServiceName(name string) {
	name = strings.Join(strings.Fields(strings.ToLower(name)), "-")
	if name == "" {
		globalServiceName.Store(nil)
		return
	}
	globalServiceName.Store(&name)
}

// GetServiceName 当前的 service 标签
func GetServiceName() string {
	if p := globalServiceName.Load(); p != nil {
		return *p
	}
	return defaultServiceName
}

func normalizeServiceName(name string) string {
	if name == "" {
		return GetServiceName()
	}
	return name
}
