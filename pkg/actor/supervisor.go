package actor

import (
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Directive 监督指令
type Directive int

const (
	// DirectiveResume 恢复 Actor，继续处理消息
	DirectiveResume Directive = iota
	// DirectiveRestart 重启 Actor
	DirectiveRestart
	// DirectiveRestartAll 重启同一监督者下的所有子 Actor
	DirectiveRestartAll
	// DirectiveStop 停止 Actor
	DirectiveStop
	// DirectiveEscalate 上报给父 Actor 处理
	DirectiveEscalate
)

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case DirectiveResume:
		return "Resume"
	case DirectiveRestart:
		return "Restart"
	case DirectiveRestartAll:
		return "RestartAll"
	case DirectiveStop:
		return "Stop"
	case DirectiveEscalate:
		return "Escalate"
	default:
		return "Unknown"
	}
}

// SupervisorStrategy 监督策略接口
// 由父 Actor 持有，决定子 Actor 失败时的处理方式
type SupervisorStrategy interface {
	// HandleFailure 处理子 Actor 失败，返回应该采取的指令
	HandleFailure(child ActorRef, cause error) Directive
}

// Decider 决策函数类型
type Decider func(cause error) Directive

// retryTracker 重启计数
// 窗口从第一次记录的失败开始计算，窗口过期后计数归零
type retryTracker struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	now         func() time.Time
}

// allowRestart 记录一次重启决定，超过 maxRetries 时返回 false
// maxRetries < 0 表示不限次数
func (t *retryTracker) allowRestart(maxRetries int, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.now != nil {
		now = t.now()
	}
	if t.count == 0 || (window > 0 && now.Sub(t.windowStart) > window) {
		t.count = 0
		t.windowStart = now
	}
	t.count++

	return maxRetries < 0 || t.count <= maxRetries
}

// RetryCount 当前窗口内的重启次数
func (t *retryTracker) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// ============== 内置监督策略 ==============

// OneForOneStrategy 一对一策略
// 只处理失败的 Actor，不影响其他子 Actor
type OneForOneStrategy struct {
	MaxRetries  int           // 最大重启次数
	RetryWindow time.Duration // 时间窗口
	Decider     Decider       // 决策函数

	retryTracker
}

// NewOneForOneStrategy 创建一对一策略
func NewOneForOneStrategy(maxRetries int, window time.Duration, decider Decider) *OneForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &OneForOneStrategy{
		MaxRetries:  maxRetries,
		RetryWindow: window,
		Decider:     decider,
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *OneForOneStrategy) HandleFailure(_ ActorRef, cause error) Directive {
	directive := s.Decider(cause)
	if directive == DirectiveRestart || directive == DirectiveRestartAll {
		if !s.allowRestart(s.MaxRetries, s.RetryWindow) {
			return DirectiveStop
		}
		return DirectiveRestart
	}
	return directive
}

// AllForOneStrategy 全部重启策略
// 当一个子 Actor 需要重启时，重启同一监督者下的所有子 Actor
type AllForOneStrategy struct {
	MaxRetries  int
	RetryWindow time.Duration
	Decider     Decider

	retryTracker
}

// NewAllForOneStrategy 创建全部重启策略
func NewAllForOneStrategy(maxRetries int, window time.Duration, decider Decider) *AllForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &AllForOneStrategy{
		MaxRetries:  maxRetries,
		RetryWindow: window,
		Decider:     decider,
	}
}

// HandleFailure 实现 SupervisorStrategy
func (s *AllForOneStrategy) HandleFailure(_ ActorRef, cause error) Directive {
	directive := s.Decider(cause)
	if directive == DirectiveRestart || directive == DirectiveRestartAll {
		if !s.allowRestart(s.MaxRetries, s.RetryWindow) {
			return DirectiveStop
		}
		return DirectiveRestartAll
	}
	return directive
}

// ============== 默认策略和决策器 ==============

// DefaultDecider 默认决策器
//   - runtime.Error 或 FatalError：停止
//   - 非 error 类型的 panic 值：上报
//   - 其他 error：重启
func DefaultDecider(cause error) Directive {
	var fatal *FatalError
	if errors.As(cause, &fatal) {
		return DirectiveStop
	}
	var rtErr runtime.Error
	if errors.As(cause, &rtErr) {
		return DirectiveStop
	}
	var pe *PanicError
	if errors.As(cause, &pe) {
		if _, ok := pe.Value.(error); !ok {
			return DirectiveEscalate
		}
	}
	if cause == nil {
		return DirectiveEscalate
	}
	return DirectiveRestart
}

// RestartingDecider 对所有错误采取重启策略
func RestartingDecider(_ error) Directive {
	return DirectiveRestart
}

// StoppingDecider 停止决策器
// 对所有错误采取停止策略
func StoppingDecider(_ error) Directive {
	return DirectiveStop
}

// EscalatingDecider 上报决策器
// 对所有错误采取上报策略
func EscalatingDecider(_ error) Directive {
	return DirectiveEscalate
}

// ResumingDecider 恢复决策器
// 对所有错误采取恢复策略（忽略错误继续运行）
func ResumingDecider(_ error) Directive {
	return DirectiveResume
}

// DefaultSupervisorStrategy 默认监督策略
// 1 分钟内允许 10 次重启
func DefaultSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(10, time.Minute, DefaultDecider)
}

// StrictSupervisorStrategy 严格监督策略
// 任何失败都停止 Actor
func StrictSupervisorStrategy() SupervisorStrategy {
	return NewOneForOneStrategy(0, time.Second, StoppingDecider)
}

// ============== 监督树辅助 ==============

// ChildSpec 子 Actor 规格
type ChildSpec struct {
	Name  string
	Props *Props
}

// Supervisor 监督者 Actor
// 启动时按规格创建子 Actor，用于声明式构建监督树
type Supervisor struct {
	specs []ChildSpec
}

// NewSupervisorProps 创建监督者的 Props
func NewSupervisorProps(strategy SupervisorStrategy, specs ...ChildSpec) *Props {
	return NewProps(func() Actor {
		return &Supervisor{specs: specs}
	}).WithSupervisor(strategy)
}

// PreStart 启动所有子 Actor；重启时子 Actor 保留，已存在的名称会跳过
func (s *Supervisor) PreStart(ctx *Context) error {
	for _, spec := range s.specs {
		if _, ok := ctx.Child(spec.Name); ok {
			continue
		}
		if _, err := ctx.Spawn(spec.Props, spec.Name); err != nil {
			return errors.Wrapf(err, "spawn child %s", spec.Name)
		}
	}
	return nil
}

// Receive 处理消息
func (s *Supervisor) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *ChildTerminated:
		ctx.Logger().Debug("supervised child terminated", "child", m.Child.Path())
	}
}
