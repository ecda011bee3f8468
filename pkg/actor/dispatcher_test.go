package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestDispatcherTypeString(t *testing.T) {
	assert.Equal(t, "default", DispatcherDefault.String())
	assert.Equal(t, "shared", DispatcherShared.String())
	assert.Equal(t, "unknown", DispatcherType(9).String())
}

func TestGoroutineDispatcher(t *testing.T) {
	d := newGoroutineDispatcher()

	var n atomic.Int32
	for i := 0; i < 100; i++ {
		d.Schedule(func() { n.Inc() })
	}
	d.Shutdown()
	assert.Equal(t, int32(100), n.Load())
}

func TestPoolDispatcher(t *testing.T) {
	d := newPoolDispatcher(2, 4)

	var (
		n       atomic.Int32
		running atomic.Int32
		peak    atomic.Int32
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		d.Schedule(func() {
			cur := running.Inc()
			mu.Lock()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			running.Dec()
			n.Inc()
		})
	}
	d.Shutdown()

	assert.Equal(t, int32(50), n.Load())
	assert.Positive(t, peak.Load())
}

func TestPoolDispatcherAfterShutdown(t *testing.T) {
	d := newPoolDispatcher(1, 1)
	d.Shutdown()

	// 关闭后提交的任务仍然执行，不会向已关闭的队列发送
	done := make(chan struct{})
	d.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task scheduled after shutdown did not run")
	}
}

func TestSharedDispatcherActors(t *testing.T) {
	cfg := quietConfig()
	cfg.SharedPoolSize = 2
	sys := NewSystemWithConfig("test", cfg)
	t.Cleanup(sys.Shutdown)

	var handled atomic.Int32
	props := func() *Props {
		return PropsFromFunc(func(_ *Context, msg Message) {
			if _, ok := msg.(*CountMessage); ok {
				handled.Inc()
			}
		}).WithDispatcher(DispatcherShared).WithMailbox(-1, OverflowDropNew)
	}

	pids := make([]*PID, 0, 10)
	for i := 0; i < 10; i++ {
		pid, err := sys.ActorOf(props(), "")
		assert.NoError(t, err)
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		for i := 0; i < 100; i++ {
			pid.Tell(&CountMessage{Value: i}, nil)
		}
	}

	assert.Eventually(t, func() bool { return handled.Load() == 1000 }, 5*time.Second, 5*time.Millisecond)
}
