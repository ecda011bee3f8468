package actor

import (
	"context"
	"log/slog"
	"time"
)

// Context Actor 执行上下文
//
// 每个 Actor 一个 Context，在重启之间保持不变。
// 只能在 Actor 自己的消息处理过程中使用，不要传给其他 goroutine。
type Context struct {
	cell *actorCell

	// 当前消息
	sender  ActorRef
	message Message
}

func newContext(cell *actorCell) *Context {
	return &Context{cell: cell}
}

func (c *Context) setCurrent(env *Envelope) {
	if env == nil {
		c.sender = nil
		c.message = nil
		return
	}
	c.sender = env.Sender
	c.message = env.Payload
}

// Self 当前 Actor 的引用
func (c *Context) Self() *PID {
	return c.cell.self
}

// Parent 父 Actor 的引用，根 Actor 返回 nil
func (c *Context) Parent() *PID {
	if c.cell.parent == nil {
		return nil
	}
	return c.cell.parent.self
}

// Sender 当前消息的发送者，可能为 nil
func (c *Context) Sender() ActorRef {
	return c.sender
}

// Message 获取当前正在处理的消息
func (c *Context) Message() Message {
	return c.message
}

// System 获取 Actor 系统引用
func (c *Context) System() *System {
	return c.cell.system
}

// Logger 带 actor 路径的日志器
func (c *Context) Logger() *slog.Logger {
	return c.cell.logger
}

// Context 获取 Go context，Actor 停止时取消
func (c *Context) Context() context.Context {
	return c.cell.goctx
}

// ============== 子 Actor ==============

// Spawn 创建子 Actor
// name 为空时自动生成；同一父 Actor 下重名返回 DuplicateNameError
func (c *Context) Spawn(props *Props, name string) (*PID, error) {
	child, err := c.cell.spawnChild(props, name)
	if err != nil {
		return nil, err
	}
	return child.self, nil
}

// Children 子 Actor 列表
func (c *Context) Children() []*PID {
	return c.cell.childRefs()
}

// Child 按名称查找子 Actor
func (c *Context) Child(name string) (*PID, bool) {
	child, ok := c.cell.child(name)
	if !ok {
		return nil, false
	}
	return child.self, true
}

// Stop 停止指定 Actor
func (c *Context) Stop(ref ActorRef) {
	c.cell.system.Stop(ref)
}

// StopSelf 停止当前 Actor
func (c *Context) StopSelf() {
	c.cell.requestStop()
}

// ============== 消息 ==============

// Tell 以当前 Actor 作为发送者发送消息
func (c *Context) Tell(target ActorRef, msg Message) {
	if target != nil {
		target.Tell(msg, c.cell.self)
	}
}

// Reply 回复消息给发送者
// 发送者是 Ask 的应答地址时会完成对应的 Future
func (c *Context) Reply(msg Message) {
	if c.sender != nil {
		c.sender.Tell(msg, c.cell.self)
	}
}

// Forward 转发当前消息到另一个 Actor，保留原发送者
func (c *Context) Forward(target ActorRef) {
	if c.message != nil && target != nil {
		target.Tell(c.message, c.sender)
	}
}

// ============== 监控 ==============

// Watch 监控另一个 Actor
// 被监控的 Actor 终止时，当前 Actor 会收到 Terminated 消息；
// 目标已终止时立即收到
func (c *Context) Watch(ref ActorRef) {
	self := c.cell.self
	c.cell.system.watches.watch(self, ref, func(watched ActorRef) {
		self.Tell(&Terminated{Ref: watched}, nil)
	})
}

// Unwatch 取消监控
func (c *Context) Unwatch(ref ActorRef) {
	c.cell.system.watches.unwatch(c.cell.self, ref)
}

// ============== 定时器 ==============

// ScheduleOnce delay 后向自己发送一次消息，相同 key 会替换旧定时器
func (c *Context) ScheduleOnce(key string, delay time.Duration, msg Message) {
	c.cell.system.timers.scheduleOnce(c.cell, key, delay, msg)
}

// ScheduleRepeatedly initialDelay 后开始每隔 interval 向自己发送消息
func (c *Context) ScheduleRepeatedly(key string, initialDelay, interval time.Duration, msg Message) {
	c.cell.system.timers.scheduleRepeatedly(c.cell, key, initialDelay, interval, msg)
}

// CancelTimer 取消定时器
func (c *Context) CancelTimer(key string) {
	c.cell.system.timers.cancel(c.cell, key)
}

// ============== 监督 ==============

// Escalate 主动把失败上报给父 Actor，当前 Actor 挂起直到父 Actor 处理完毕
func (c *Context) Escalate(cause error) {
	c.cell.escalate(cause)
}
