// Package scheduler 提供一次性延迟回调。
package scheduler

import (
	"sync"
	"time"
)

// Handle 已安排的一次性回调
type Handle interface {
	// Cancel 取消尚未触发的回调，返回是否真正阻止了触发。
	// 触发之后或重复调用都是安全的空操作。
	Cancel() bool
}

// Scheduler 一次性定时器
type Scheduler interface {
	ScheduleOnce(fn func(), delay time.Duration) Handle
}

// TimerScheduler 基于 time.AfterFunc 的实现，每个回调在自己的 goroutine 中执行
type TimerScheduler struct{}

// New 创建调度器
func New() *TimerScheduler {
	return &TimerScheduler{}
}

// ScheduleOnce 在 delay 之后执行 fn
func (s *TimerScheduler) ScheduleOnce(fn func(), delay time.Duration) Handle {
	h := &timerHandle{}
	h.mu.Lock()
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.cancelled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
	})
	h.mu.Unlock()
	return h
}

type timerHandle struct {
	mu        sync.Mutex
	timer     *time.Timer
	fired     bool
	cancelled bool
}

func (h *timerHandle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fired || h.cancelled {
		return false
	}
	h.cancelled = true
	h.timer.Stop()
	return true
}
