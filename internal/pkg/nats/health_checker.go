// Package nats NATS 连接相关的辅助工具
package nats

import (
	"context"
	"sync"
	"time"
)

// Conn 健康检查需要的连接状态，*nats.Conn 满足该接口
type Conn interface {
	IsConnected() bool
	IsClosed() bool
}

// HealthChecker NATS连接健康检查器
// 死亡事件订阅与会话推送都依赖同一个连接，/health 通过它报告状态
type HealthChecker struct {
	conn      Conn
	isHealthy bool
	lastCheck time.Time
	mutex     sync.RWMutex
	stopOnce  sync.Once
	stopCh    chan struct{}
	interval  time.Duration
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(conn Conn, checkInterval time.Duration) *HealthChecker {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second // 默认10秒检查一次
	}

	hc := &HealthChecker{
		conn:     conn,
		stopCh:   make(chan struct{}),
		interval: checkInterval,
	}
	hc.checkHealth()
	return hc
}

// Start 启动健康检查，阻塞直到 ctx 结束或 Stop
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.checkHealth()
		}
	}
}

// Stop 停止健康检查，可重复调用
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}

// IsHealthy 检查连接是否健康
func (hc *HealthChecker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	return hc.isHealthy
}

// Status 返回 /health 使用的状态字符串
func (hc *HealthChecker) Status() string {
	if hc == nil {
		return "disabled"
	}
	if hc.IsHealthy() {
		return "ok"
	}
	return "down"
}

// LastCheck 最近一次检查时间
func (hc *HealthChecker) LastCheck() time.Time {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	return hc.lastCheck
}

// checkHealth 执行健康检查
func (hc *HealthChecker) checkHealth() {
	healthy := hc.conn != nil && hc.conn.IsConnected() && !hc.conn.IsClosed()

	hc.mutex.Lock()
	hc.isHealthy = healthy
	hc.lastCheck = time.Now()
	hc.mutex.Unlock()
}

// WaitForHealthy 等待连接恢复健康
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, maxWait time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		hc.checkHealth()
		if hc.IsHealthy() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
