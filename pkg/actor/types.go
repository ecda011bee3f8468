package actor

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message Actor 消息接口
// 所有 Actor 间传递的消息都必须实现此接口
type Message interface {
	// Kind 返回消息类型标识，用于路由和监控
	Kind() string
}

// ActorRef Actor 引用
//
// 位置透明的句柄：本地 Actor 由 [PID] 实现，远程传输层可以提供
// 另一个实现。终止后的引用仍然有效，但消息会被路由到死信。
type ActorRef interface {
	// Path 返回 Actor 的完整路径，如 /user/parent/child
	Path() string
	// Tell 异步发送消息（fire-and-forget），sender 可以为 nil
	Tell(msg Message, sender ActorRef)
	// IsTerminated 目标 Actor 是否已终止
	IsTerminated() bool
	// String 返回可读表示
	String() string
}

// PID (Process ID) 本地 Actor 引用
// 多个 PID 可以指向同一个 Actor；PID 绑定创建时的 Actor 实例，
// 同路径重新创建的 Actor 不会复用旧 PID。
type PID struct {
	path   string
	cell   *actorCell
	system *System
}

var _ ActorRef = (*PID)(nil)

// Path 返回 Actor 路径
func (p *PID) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Name 返回路径的最后一段
func (p *PID) Name() string {
	path := p.Path()
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// String 返回 PID 的字符串表示
func (p *PID) String() string {
	return p.Path()
}

// Tell 发送消息（fire-and-forget）
// 目标已终止或邮箱拒收时消息进入死信，调用方不会看到错误
func (p *PID) Tell(msg Message, sender ActorRef) {
	if p == nil || p.cell == nil {
		return
	}
	_ = p.cell.deliver(msg, sender)
}

// TrySend 尝试发送消息
// 与 Tell 相同，但会把拒收原因返回给调用方
func (p *PID) TrySend(msg Message, sender ActorRef) error {
	if p == nil || p.cell == nil {
		return ErrActorTerminated
	}
	return p.cell.deliver(msg, sender)
}

// IsTerminated 检查 Actor 是否已终止
func (p *PID) IsTerminated() bool {
	if p == nil || p.cell == nil {
		return true
	}
	return p.cell.state.Terminal()
}

// Ask 发送请求并返回 Future
func (p *PID) Ask(msg Message, timeout time.Duration) *Future {
	if p == nil || p.system == nil {
		f := newFuture()
		f.complete(nil, errors.Wrap(ErrSystemNotRunning, "ask on detached reference"))
		return f
	}
	return p.system.Ask(p, msg, timeout)
}

// Request 发送请求并等待响应（同步调用）
func (p *PID) Request(msg Message, timeout time.Duration) (Message, error) {
	if p == nil || p.system == nil {
		return nil, errors.Wrap(ErrSystemNotRunning, "request on detached reference")
	}
	return p.system.Request(p, msg, timeout)
}

// Equals 比较两个引用是否指向同一个 Actor 实例
func (p *PID) Equals(other ActorRef) bool {
	o, ok := other.(*PID)
	if !ok || p == nil || o == nil {
		return false
	}
	return p.cell == o.cell
}

// Actor Actor 接口
// 实现此接口即可成为 Actor
type Actor interface {
	// Receive 处理接收到的消息
	// 处理过程中 panic 会被捕获并交给监督策略
	Receive(ctx *Context, msg Message)
}

// ActorFunc 函数式 Actor，便于快速创建简单 Actor
type ActorFunc func(ctx *Context, msg Message)

// Receive 实现 Actor 接口
func (f ActorFunc) Receive(ctx *Context, msg Message) {
	f(ctx, msg)
}

// BaseActor 基础 Actor 实现
// 提供默认的空实现，方便嵌入
type BaseActor struct{}

// Receive 默认实现，不处理任何消息
func (b *BaseActor) Receive(_ *Context, _ Message) {}

// ============== 生命周期回调（可选实现） ==============

// PreStarter 启动回调，返回错误会使 Actor 进入 Failed 状态
type PreStarter interface {
	PreStart(ctx *Context) error
}

// PostStopper 停止回调，错误只记录日志
type PostStopper interface {
	PostStop(ctx *Context) error
}

// PreRestarter 重启前在旧实例上调用，未实现时退化为 PostStop
type PreRestarter interface {
	PreRestart(ctx *Context, cause error) error
}

// PostRestarter 重启后在新实例上调用，未实现时退化为 PreStart
type PostRestarter interface {
	PostRestart(ctx *Context, cause error) error
}

// ============== Props ==============

// Props Actor 属性配置
type Props struct {
	// Producer Actor 实例工厂，重启时会再次调用
	Producer func() Actor
	// MailboxCapacity 邮箱容量，0 表示使用系统默认值，负数表示无界
	MailboxCapacity int
	// OverflowPolicy 邮箱溢出策略
	OverflowPolicy OverflowPolicy
	// BlockTimeout Block 策略下的最长等待时间
	BlockTimeout time.Duration
	// Dispatcher 调度器类型
	Dispatcher DispatcherType
	// SupervisorStrategy 监督子 Actor 的策略
	SupervisorStrategy SupervisorStrategy
	// StopTimeout 停止子 Actor 时的等待时间，超时后强制终止
	StopTimeout time.Duration
}

// NewProps 使用工厂函数创建属性
func NewProps(producer func() Actor) *Props {
	return &Props{
		Producer:       producer,
		OverflowPolicy: OverflowDefault,
		Dispatcher:     DispatcherDefault,
	}
}

// PropsFromFunc 使用函数式 Actor 创建属性
func PropsFromFunc(fn ActorFunc) *Props {
	return NewProps(func() Actor { return fn })
}

// PropsFromInstance 使用已有实例创建属性
// 重启时复用同一实例，实例需要自行在 PostRestart 中重置状态
func PropsFromInstance(a Actor) *Props {
	return NewProps(func() Actor { return a })
}

// WithMailbox 设置邮箱容量和溢出策略
func (p *Props) WithMailbox(capacity int, policy OverflowPolicy) *Props {
	p.MailboxCapacity = capacity
	p.OverflowPolicy = policy
	return p
}

// WithBlockTimeout 设置 Block 策略的等待时间
func (p *Props) WithBlockTimeout(d time.Duration) *Props {
	p.BlockTimeout = d
	return p
}

// WithSupervisor 设置监督策略
func (p *Props) WithSupervisor(strategy SupervisorStrategy) *Props {
	p.SupervisorStrategy = strategy
	return p
}

// WithDispatcher 设置调度器
func (p *Props) WithDispatcher(d DispatcherType) *Props {
	p.Dispatcher = d
	return p
}

// WithStopTimeout 设置子 Actor 停止超时
func (p *Props) WithStopTimeout(d time.Duration) *Props {
	p.StopTimeout = d
	return p
}

func (p *Props) validate() error {
	if p == nil {
		return &ValidationError{Field: "props", Reason: "must not be nil"}
	}
	if p.Producer == nil {
		return &ValidationError{Field: "props.Producer", Reason: "must not be nil"}
	}
	return nil
}

// ============== 通用消息类型 ==============

// SimpleMessage 简单消息，用于快速创建消息
type SimpleMessage struct {
	kind    string
	Payload any
}

// NewSimpleMessage 创建简单消息
func NewSimpleMessage(kind string, payload any) *SimpleMessage {
	return &SimpleMessage{kind: kind, Payload: payload}
}

// Kind 实现 Message 接口
func (m *SimpleMessage) Kind() string { return m.kind }
