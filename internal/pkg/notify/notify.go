// Package notify 持有进程内共享的 NATS 连接，并负责掉落生命周期事件的封装与发布。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"tsu-loot/internal/pkg/log"
)

var (
	ncMu sync.RWMutex
	nc   *nats.Conn
)

// SetNatsConn 设置全局 NATS 连接（由 main 提供）
func SetNatsConn(conn *nats.Conn) {
	ncMu.Lock()
	defer ncMu.Unlock()
	nc = conn
}

// Conn 返回全局 NATS 连接，未设置时为 nil
func Conn() *nats.Conn {
	ncMu.RLock()
	defer ncMu.RUnlock()
	return nc
}

// 生命周期事件主题
const (
	SubjectLootSpawned   = "loot.spawned"
	SubjectLootDespawned = "loot.despawned"
)

// 事件消息头
const (
	// HeaderRequestID 触发本次事件的请求或死亡事件 ID
	HeaderRequestID = "Loot-Request-Id"
	// HeaderSubject 原始主题，经过 JetStream 转存后仍可识别事件类型
	HeaderSubject = "Loot-Event"
)

// Identified 带有唯一 ID 的事件，ID 写入 Nats-Msg-Id 供下游去重
type Identified interface {
	MessageID() string
}

// MsgPublisher 发布 NATS 消息，*nats.Conn 满足该接口
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NewLootMsg 把事件编码为带头部的 NATS 消息
func NewLootMsg(ctx context.Context, subject string, payload interface{}) (*nats.Msg, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("编码掉落事件失败: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderSubject, subject)
	if ev, ok := payload.(Identified); ok && ev.MessageID() != "" {
		msg.Header.Set(nats.MsgIdHdr, ev.MessageID())
	}
	if id := log.EventID(ctx); id != "" {
		msg.Header.Set(HeaderRequestID, id)
	}
	return msg, nil
}

// Publish 经由指定连接发布掉落事件
func Publish(ctx context.Context, pub MsgPublisher, subject string, payload interface{}) error {
	msg, err := NewLootMsg(ctx, subject, payload)
	if err != nil {
		return err
	}
	return pub.PublishMsg(msg)
}

// PublishLootEvent 经由全局连接发布掉落事件，未连接时静默跳过
func PublishLootEvent(ctx context.Context, subject string, payload interface{}) error {
	conn := Conn()
	if conn == nil {
		return nil
	}
	return Publish(ctx, conn, subject, payload)
}
