package actor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Future Ask 的结果
// 只会完成一次：要么收到回复，要么超时或失败
type Future struct {
	completed atomic.Bool
	done      chan struct{}

	result Message
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// complete 第一次调用生效，返回是否由本次调用完成
func (f *Future) complete(result Message, err error) bool {
	if !f.completed.CompareAndSwap(false, true) {
		return false
	}
	f.result = result
	f.err = err
	close(f.done)
	return true
}

// Done 完成时关闭的通道
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsCompleted 是否已完成
func (f *Future) IsCompleted() bool {
	return f.completed.Load()
}

// Result 阻塞等待结果
func (f *Future) Result() (Message, error) {
	<-f.done
	return f.result, f.err
}

// Await 等待结果或 ctx 结束
// ctx 结束只放弃等待，Future 本身仍会按超时完成
func (f *Future) Await(ctx context.Context) (Message, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// promiseRef Ask 的一次性应答地址
type promiseRef struct {
	path   string
	future *Future
	timer  *time.Timer
	system *System
}

var _ ActorRef = (*promiseRef)(nil)

func (r *promiseRef) Path() string   { return r.path }
func (r *promiseRef) String() string { return r.path }

// IsTerminated Future 完成后应答地址失效
func (r *promiseRef) IsTerminated() bool {
	return r.future.IsCompleted()
}

// Tell 第一条消息完成 Future，之后的消息进入死信
func (r *promiseRef) Tell(msg Message, sender ActorRef) {
	if msg == nil {
		return
	}
	if r.future.complete(msg, nil) {
		r.timer.Stop()
		return
	}
	env, err := NewEnvelope(msg, sender, r, EnvelopeNormal, PriorityNormal)
	if err != nil {
		return
	}
	r.system.deadLetter(env, "late reply to completed ask")
}

// ============== Ask ==============

// Ask 发送请求并返回 Future
// 以一次性应答地址作为发送者，目标用 ctx.Reply 回复即可完成 Future。
// timeout 到期时 Future 以 AskTimeoutError 失败；超时不会中断目标正在进行的处理。
func (s *System) Ask(target ActorRef, msg Message, timeout time.Duration) *Future {
	future := newFuture()
	if !s.IsRunning() {
		future.complete(nil, ErrSystemNotRunning)
		return future
	}
	if isNil(target) {
		future.complete(nil, &ValidationError{Field: "recipient", Reason: "must not be nil"})
		return future
	}
	if msg == nil {
		future.complete(nil, &ValidationError{Field: "payload", Reason: "must not be nil"})
		return future
	}
	if timeout <= 0 {
		timeout = s.config.AskTimeout
	}

	promise := &promiseRef{
		path:   "/temp/" + uuid.NewString(),
		future: future,
		system: s,
	}
	targetPath := target.Path()
	promise.timer = time.AfterFunc(timeout, func() {
		future.complete(nil, &AskTimeoutError{Target: targetPath, Timeout: timeout})
	})

	if pid, ok := target.(*PID); ok {
		if err := pid.TrySend(msg, promise); err != nil {
			if future.complete(nil, errors.Wrapf(err, "ask %s", targetPath)) {
				promise.timer.Stop()
			}
		}
		return future
	}
	target.Tell(msg, promise)
	return future
}

// Request 发送请求并等待响应（同步调用）
// timeout <= 0 时使用 SystemConfig.AskTimeout
func (s *System) Request(target ActorRef, msg Message, timeout time.Duration) (Message, error) {
	return s.Ask(target, msg, timeout).Result()
}

// Ask 泛型请求-回复，回复类型不是 T 时返回错误
//
// 用法示例:
//
//	status, err := actor.Ask[*Status](pid, &GetStatus{}, 5*time.Second)
func Ask[T Message](ref ActorRef, msg Message, timeout time.Duration) (T, error) {
	var zero T
	if isNil(ref) {
		return zero, &ValidationError{Field: "recipient", Reason: "must not be nil"}
	}
	sys := systemOf(ref)
	if sys == nil {
		return zero, errors.Wrapf(ErrSystemNotRunning, "ask %s", ref.Path())
	}
	reply, err := sys.Request(ref, msg, timeout)
	if err != nil {
		return zero, err
	}
	typed, ok := reply.(T)
	if !ok {
		return zero, errors.Errorf("ask %s: unexpected reply %T (%s)", ref.Path(), reply, reply.Kind())
	}
	return typed, nil
}

// AskWithContext 带 context 的请求-回复，ctx 结束时放弃等待
func AskWithContext[T Message](ctx context.Context, ref ActorRef, msg Message) (T, error) {
	var zero T
	if isNil(ref) {
		return zero, &ValidationError{Field: "recipient", Reason: "must not be nil"}
	}
	sys := systemOf(ref)
	if sys == nil {
		return zero, errors.Wrapf(ErrSystemNotRunning, "ask %s", ref.Path())
	}

	timeout := sys.config.AskTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return zero, context.DeadlineExceeded
		}
	}

	reply, err := sys.Ask(ref, msg, timeout).Await(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := reply.(T)
	if !ok {
		return zero, errors.Errorf("ask %s: unexpected reply %T (%s)", ref.Path(), reply, reply.Kind())
	}
	return typed, nil
}

// systemOf 取引用所属的系统
func systemOf(ref ActorRef) *System {
	switch r := ref.(type) {
	case *PID:
		if r != nil {
			return r.system
		}
	case *promiseRef:
		return r.system
	}
	return nil
}
