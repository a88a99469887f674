package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerScheduler_Fires(t *testing.T) {
	s := New()
	done := make(chan struct{})

	s.ScheduleOnce(func() { close(done) }, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("回调未触发")
	}
}

func TestTimerScheduler_CancelBeforeFire(t *testing.T) {
	s := New()
	var calls atomic.Int32

	h := s.ScheduleOnce(func() { calls.Add(1) }, 50*time.Millisecond)

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel(), "重复取消应为空操作")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTimerScheduler_CancelAfterFire(t *testing.T) {
	s := New()
	done := make(chan struct{})

	h := s.ScheduleOnce(func() { close(done) }, time.Millisecond)
	<-done

	assert.False(t, h.Cancel())
}
