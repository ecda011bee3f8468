package actor

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ═══════════════════════════════════════════════════════════════════════════
// Actor 统计信息
// ═══════════════════════════════════════════════════════════════════════════

// ActorStats Actor 运行时统计信息
type ActorStats struct {
	// 身份与状态
	Path        string
	State       State
	Restarts    int64
	MailboxSize int   // 当前排队的信封数
	Dropped     int64 // 溢出丢弃的信封数
	Children    int

	// 消息计数
	MessagesReceived int64 // 接收的消息总数
	MessagesHandled  int64 // 成功处理的消息数
	Errors           int64 // 错误数

	// 延迟统计
	TotalLatency   time.Duration // 总延迟（用于计算平均值）
	AverageLatency time.Duration // 平均延迟
	MaxLatency     time.Duration // 最大延迟
	MinLatency     time.Duration // 最小延迟

	// 时间戳
	StartedAt     time.Time // 启动时间
	LastMessageAt time.Time // 最后消息时间
	LastErrorAt   time.Time // 最后错误时间

	// 错误信息
	LastError error // 最后一个错误
}

// Clone 克隆统计信息
func (s *ActorStats) Clone() *ActorStats {
	out := *s
	return &out
}

// ═══════════════════════════════════════════════════════════════════════════
// StatsCollector 统计收集器
// ═══════════════════════════════════════════════════════════════════════════

// StatsCollector 线程安全的统计收集器
// 每个 Actor 一个，重启后继续累计
type StatsCollector struct {
	mu    sync.RWMutex
	stats ActorStats
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats: ActorStats{
			StartedAt:  time.Now(),
			MinLatency: time.Duration(1<<63 - 1), // 最大值，确保第一次会被更新
		},
	}
}

// RecordReceived 记录接收消息
func (c *StatsCollector) RecordReceived() {
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastMessageAt = time.Now()
	c.mu.Unlock()
}

// RecordHandled 记录成功处理消息
func (c *StatsCollector) RecordHandled(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.MessagesHandled++
	c.stats.TotalLatency += latency
	c.stats.AverageLatency = c.stats.TotalLatency / time.Duration(c.stats.MessagesHandled)

	if latency > c.stats.MaxLatency {
		c.stats.MaxLatency = latency
	}
	if latency < c.stats.MinLatency {
		c.stats.MinLatency = latency
	}
}

// RecordError 记录错误
func (c *StatsCollector) RecordError(err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.LastError = err
	c.stats.LastErrorAt = time.Now()
	c.mu.Unlock()
}

// Stats 获取统计快照
func (c *StatsCollector) Stats() *ActorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.stats.Clone()
	if out.MessagesHandled == 0 {
		out.MinLatency = 0
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 系统统计
// ═══════════════════════════════════════════════════════════════════════════

// SystemStats 系统统计快照
type SystemStats struct {
	TotalActors   int64
	TotalMessages int64
	DeadLetters   int64
	ProcessedMsgs int64
	StartTime     time.Time
	Uptime        time.Duration
}

// systemCounters 系统级计数器，热路径上只做原子加减
type systemCounters struct {
	totalActors   atomic.Int64
	totalMessages atomic.Int64
	deadLetters   atomic.Int64
	processedMsgs atomic.Int64
	startTime     time.Time
}

func (c *systemCounters) snapshot() *SystemStats {
	return &SystemStats{
		TotalActors:   c.totalActors.Load(),
		TotalMessages: c.totalMessages.Load(),
		DeadLetters:   c.deadLetters.Load(),
		ProcessedMsgs: c.processedMsgs.Load(),
		StartTime:     c.startTime,
		Uptime:        time.Since(c.startTime),
	}
}
