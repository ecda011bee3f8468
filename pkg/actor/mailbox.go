package actor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// OverflowPolicy 邮箱溢出策略
type OverflowPolicy int

const (
	// OverflowDefault 使用系统配置的默认策略
	OverflowDefault OverflowPolicy = iota
	// OverflowDropNew 丢弃新消息（进入死信，不报错）
	OverflowDropNew
	// OverflowDropOldest 丢弃最旧的普通消息
	OverflowDropOldest
	// OverflowDropAll 清空已排队的普通消息后接收新消息
	OverflowDropAll
	// OverflowBlock 阻塞发送方直到有空间或超时
	OverflowBlock
	// OverflowReject 拒收并返回 MailboxOverflowError
	OverflowReject
)

var overflowNames = map[OverflowPolicy]string{
	OverflowDefault:    "default",
	OverflowDropNew:    "drop_new",
	OverflowDropOldest: "drop_oldest",
	OverflowDropAll:    "drop_all",
	OverflowBlock:      "block",
	OverflowReject:     "reject",
}

// String 返回策略名称
func (p OverflowPolicy) String() string {
	if name, ok := overflowNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 实现 encoding.TextMarshaler
func (p OverflowPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler，用于配置文件
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	s = strings.ReplaceAll(s, "-", "_")
	for policy, name := range overflowNames {
		if name == s {
			*p = policy
			return nil
		}
	}
	return fmt.Errorf("unknown overflow policy %q", string(text))
}

// Mailbox 每个 Actor 独占的优先级邮箱
//
// 多生产者并发入队，单消费者出队。按类别排序：
// System(High) > System > Signal(High) > Signal > Normal > Normal(Low)，
// 同类别内 FIFO。挂起时只接受并处理高优先级信号。
type Mailbox struct {
	mu           sync.Mutex
	queues       [envelopeClasses][]*Envelope
	size         int // 受容量限制的信封数量（不含 System）
	total        int
	capacity     int
	policy       OverflowPolicy
	blockTimeout time.Duration
	notFull      chan struct{}

	suspended atomic.Bool
	closed    atomic.Bool
	scheduled atomic.Bool
	dropped   atomic.Int64
}

// NewMailbox 创建邮箱
// capacity <= 0 表示无界
func NewMailbox(capacity int, policy OverflowPolicy, blockTimeout time.Duration) *Mailbox {
	if policy == OverflowDefault {
		policy = OverflowDropNew
	}
	if blockTimeout <= 0 {
		blockTimeout = time.Second
	}
	return &Mailbox{
		capacity:     capacity,
		policy:       policy,
		blockTimeout: blockTimeout,
		notFull:      make(chan struct{}),
	}
}

// Enqueue 按优先级入队
//
// 返回被溢出策略丢弃的信封（可能包含 env 本身），调用方负责送入死信。
// DropNew/DropOldest/DropAll 不返回错误；Reject 和 Block 超时返回 MailboxOverflowError。
func (m *Mailbox) Enqueue(env *Envelope) (dropped []*Envelope, err error) {
	if m.closed.Load() {
		return nil, ErrMailboxClosed
	}
	if m.suspended.Load() && !env.IsHighPriority() {
		return nil, ErrMailboxSuspended
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if env.Type != EnvelopeSystem && m.capacity > 0 && m.size >= m.capacity {
		switch m.policy {
		case OverflowDropNew:
			m.dropped.Inc()
			return []*Envelope{env}, nil
		case OverflowDropOldest:
			if old := m.evictOldestLocked(); old != nil {
				dropped = append(dropped, old)
			}
		case OverflowDropAll:
			dropped = m.evictAllLocked()
		case OverflowBlock:
			if err := m.waitNotFullLocked(); err != nil {
				return nil, err
			}
		default:
			return nil, &MailboxOverflowError{Capacity: m.capacity, Policy: m.policy}
		}
	}

	// waitNotFullLocked 期间可能被关闭
	if m.closed.Load() {
		return dropped, ErrMailboxClosed
	}

	c := env.class()
	m.queues[c] = append(m.queues[c], env)
	m.total++
	if env.Type != EnvelopeSystem {
		m.size++
	}
	return dropped, nil
}

// waitNotFullLocked 在持有锁时等待空间，等待期间释放锁
func (m *Mailbox) waitNotFullLocked() error {
	deadline := time.NewTimer(m.blockTimeout)
	defer deadline.Stop()

	for m.size >= m.capacity {
		ch := m.notFull
		m.mu.Unlock()
		select {
		case <-ch:
			m.mu.Lock()
		case <-deadline.C:
			m.mu.Lock()
			if m.size < m.capacity {
				return nil
			}
			return &MailboxOverflowError{Capacity: m.capacity, Policy: m.policy}
		}
		if m.closed.Load() {
			return ErrMailboxClosed
		}
	}
	return nil
}

// evictOldestLocked 从最低类别开始移除最旧的非 System 信封
func (m *Mailbox) evictOldestLocked() *Envelope {
	for c := 0; c < envelopeClasses; c++ {
		q := m.queues[c]
		for i, env := range q {
			if env.Type == EnvelopeSystem {
				continue
			}
			m.queues[c] = append(q[:i:i], q[i+1:]...)
			m.total--
			m.size--
			m.dropped.Inc()
			return env
		}
	}
	return nil
}

// evictAllLocked 移除所有非 System 信封
func (m *Mailbox) evictAllLocked() []*Envelope {
	var out []*Envelope
	for c := 0; c < envelopeClasses; c++ {
		kept := m.queues[c][:0]
		for _, env := range m.queues[c] {
			if env.Type == EnvelopeSystem {
				kept = append(kept, env)
				continue
			}
			out = append(out, env)
		}
		m.queues[c] = kept
	}
	m.total -= len(out)
	m.size -= len(out)
	m.dropped.Add(int64(len(out)))
	return out
}

// Dequeue 取出下一个可处理的信封
// 挂起时只返回高优先级信封；没有可处理信封时返回 nil
func (m *Mailbox) Dequeue() *Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	suspended := m.suspended.Load()
	for c := envelopeClasses - 1; c >= 0; c-- {
		q := m.queues[c]
		if len(q) == 0 {
			continue
		}
		env := q[0]
		// 挂起时跳过非高优先级类别，低类别中可能还有高优先级信号
		if suspended && !env.IsHighPriority() {
			continue
		}
		q[0] = nil
		m.queues[c] = q[1:]
		m.total--
		if env.Type != EnvelopeSystem {
			m.size--
			m.signalNotFullLocked()
		}
		return env
	}
	return nil
}

func (m *Mailbox) signalNotFullLocked() {
	if m.policy != OverflowBlock {
		return
	}
	close(m.notFull)
	m.notFull = make(chan struct{})
}

// HasEligible 是否有当前可处理的信封
func (m *Mailbox) HasEligible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	suspended := m.suspended.Load()
	for c := envelopeClasses - 1; c >= 0; c-- {
		if len(m.queues[c]) == 0 {
			continue
		}
		if !suspended || m.queues[c][0].IsHighPriority() {
			return true
		}
	}
	return false
}

// Suspend 挂起邮箱（幂等）
func (m *Mailbox) Suspend() {
	m.suspended.Store(true)
}

// Resume 恢复邮箱（幂等）
func (m *Mailbox) Resume() {
	m.suspended.Store(false)
}

// IsSuspended 是否挂起
func (m *Mailbox) IsSuspended() bool {
	return m.suspended.Load()
}

// Len 当前排队的信封数量
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Dropped 被溢出策略丢弃的信封数量
func (m *Mailbox) Dropped() int64 {
	return m.dropped.Load()
}

// Close 关闭邮箱并返回剩余信封
// 关闭后 Enqueue 返回 ErrMailboxClosed，Dequeue 返回 nil
func (m *Mailbox) Close() []*Envelope {
	m.closed.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	var rest []*Envelope
	for c := envelopeClasses - 1; c >= 0; c-- {
		rest = append(rest, m.queues[c]...)
		m.queues[c] = nil
	}
	m.total = 0
	m.size = 0
	if m.policy == OverflowBlock {
		close(m.notFull)
		m.notFull = make(chan struct{})
	}
	return rest
}

// IsClosed 是否已关闭
func (m *Mailbox) IsClosed() bool {
	return m.closed.Load()
}

// setScheduled 尝试占用调度权，成功返回 true
func (m *Mailbox) setScheduled() bool {
	return m.scheduled.CompareAndSwap(false, true)
}

// setIdle 释放调度权
func (m *Mailbox) setIdle() {
	m.scheduled.Store(false)
}
