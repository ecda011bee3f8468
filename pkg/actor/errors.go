package actor

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ============== 哨兵错误 ==============

var (
	// ErrSystemNotRunning Actor 系统已关闭
	ErrSystemNotRunning = errors.New("actor system is not running")
	// ErrMailboxClosed 邮箱已关闭（Actor 正在停止或已停止）
	ErrMailboxClosed = errors.New("mailbox is closed")
	// ErrMailboxSuspended 邮箱挂起中，只接受高优先级信号
	ErrMailboxSuspended = errors.New("mailbox is suspended")
	// ErrActorTerminated 目标 Actor 已终止
	ErrActorTerminated = errors.New("actor is terminated")
)

// ============== 错误类型 ==============

// ValidationError 信封或 Props 校验失败，永远不会入队
type ValidationError struct {
	Field  string
	Reason string
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateNameError 同一父 Actor 下名称重复
type DuplicateNameError struct {
	Parent string
	Name   string
}

// Error 实现 error 接口
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("actor name %q is already taken under %s", e.Name, e.Parent)
}

// InvalidNameError 名称包含非法字符或保留前缀
type InvalidNameError struct {
	Name   string
	Reason string
}

// Error 实现 error 接口
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid actor name %q: %s", e.Name, e.Reason)
}

// ActorInitializationError 启动或重启回调失败
type ActorInitializationError struct {
	Path  string
	Cause error
}

// Error 实现 error 接口
func (e *ActorInitializationError) Error() string {
	return fmt.Sprintf("actor %s failed to initialize: %v", e.Path, e.Cause)
}

// Unwrap 返回底层原因
func (e *ActorInitializationError) Unwrap() error { return e.Cause }

// AskTimeoutError Ask 超时，只对调用方可见
type AskTimeoutError struct {
	Target  string
	Timeout time.Duration
}

// Error 实现 error 接口
func (e *AskTimeoutError) Error() string {
	return fmt.Sprintf("ask to %s timed out after %v", e.Target, e.Timeout)
}

// MailboxOverflowError 邮箱容量已满
type MailboxOverflowError struct {
	Capacity int
	Policy   OverflowPolicy
}

// Error 实现 error 接口
func (e *MailboxOverflowError) Error() string {
	return fmt.Sprintf("mailbox overflow (capacity=%d, policy=%s)", e.Capacity, e.Policy)
}

// ActorStopError 停止流程中出现的错误，Actor 仍会被强制置为 Stopped
type ActorStopError struct {
	Path  string
	Cause error
}

// Error 实现 error 接口
func (e *ActorStopError) Error() string {
	return fmt.Sprintf("actor %s stop failed: %v", e.Path, e.Cause)
}

// Unwrap 返回底层原因
func (e *ActorStopError) Unwrap() error { return e.Cause }

// PanicError 从 Actor 代码中恢复的 panic
type PanicError struct {
	Value any
	Stack []byte
}

// Error 实现 error 接口
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 当 panic 值本身是 error 时返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FatalError 标记严重错误，DefaultDecider 会直接停止 Actor
type FatalError struct {
	Cause error
}

// Error 实现 error 接口
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Cause)
}

// Unwrap 返回底层原因
func (e *FatalError) Unwrap() error { return e.Cause }

// Fatal 包装一个错误为 FatalError
func Fatal(err error) error {
	return &FatalError{Cause: err}
}

// toError 将 recover() 得到的值转换为 error
func toError(r any, stack []byte) error {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: stack}
}
