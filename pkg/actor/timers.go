package actor

import (
	"sync"
	"time"
)

// timerKey 定时器按 (actor 路径, key) 唯一
type timerKey struct {
	path string
	key  string
}

// scheduledTimer 一个已调度的定时器
// gen 用于丢弃替换或取消之后才触发的回调
type scheduledTimer struct {
	timer *time.Timer
	gen   uint64
}

// timerScheduler 系统级定时器调度
//
// 定时器到期后向所属 Actor 投递消息，从不直接调用 Actor 代码。
type timerScheduler struct {
	mu      sync.Mutex
	timers  map[timerKey]*scheduledTimer
	nextGen uint64
	stopped bool
}

func newTimerScheduler() *timerScheduler {
	return &timerScheduler{
		timers: make(map[timerKey]*scheduledTimer),
	}
}

// scheduleOnce delay 后投递一次，相同 key 替换旧定时器
func (s *timerScheduler) scheduleOnce(c *actorCell, key string, delay time.Duration, msg Message) {
	s.schedule(c, key, delay, 0, msg)
}

// scheduleRepeatedly initialDelay 后开始按 interval 重复投递
func (s *timerScheduler) scheduleRepeatedly(c *actorCell, key string, initialDelay, interval time.Duration, msg Message) {
	if interval <= 0 {
		c.logger.Warn("repeating timer needs a positive interval", "key", key, "interval", interval)
		return
	}
	s.schedule(c, key, initialDelay, interval, msg)
}

func (s *timerScheduler) schedule(c *actorCell, key string, delay, interval time.Duration, msg Message) {
	if msg == nil || c.state.Terminal() {
		return
	}
	if delay < 0 {
		delay = 0
	}
	tk := timerKey{path: c.path, key: key}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[tk]; ok {
		old.timer.Stop()
	}
	s.nextGen++
	st := &scheduledTimer{gen: s.nextGen}
	st.timer = time.AfterFunc(delay, func() { s.fire(c, tk, st.gen, interval, msg) })
	s.timers[tk] = st
}

// fire 定时器到期：确认仍是当前定时器后投递
func (s *timerScheduler) fire(c *actorCell, tk timerKey, gen uint64, interval time.Duration, msg Message) {
	s.mu.Lock()
	st, ok := s.timers[tk]
	if !ok || st.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	if interval > 0 {
		st.timer.Reset(interval)
	} else {
		delete(s.timers, tk)
	}
	s.mu.Unlock()

	c.self.Tell(msg, nil)
}

// cancel 取消单个定时器
func (s *timerScheduler) cancel(c *actorCell, key string) {
	tk := timerKey{path: c.path, key: key}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.timers[tk]; ok {
		st.timer.Stop()
		delete(s.timers, tk)
	}
}

// cancelAll 取消某个 Actor 的所有定时器，重启和停止时调用
func (s *timerScheduler) cancelAll(c *actorCell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tk, st := range s.timers {
		if tk.path == c.path {
			st.timer.Stop()
			delete(s.timers, tk)
		}
	}
}

// active 当前有效的定时器数量
func (s *timerScheduler) active(c *actorCell) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tk := range s.timers {
		if tk.path == c.path {
			n++
		}
	}
	return n
}

// stop 停止所有定时器，之后的调度请求被忽略
func (s *timerScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for tk, st := range s.timers {
		st.timer.Stop()
		delete(s.timers, tk)
	}
}
