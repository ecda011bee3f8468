package router

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/lwmacct/251019-go-pkg-actor/pkg/actor"
)

// Router 路由 Actor
//
// 收到的普通消息按 [Logic] 转发给 routee，保留原发送者，
// 因此通过路由发起的 Ask 由 routee 直接回复。
// routee 被监控，终止后自动移除。
type Router struct {
	logic   Logic
	routees []actor.ActorRef

	// group 模式的初始 routee
	initial []actor.ActorRef

	// pool 模式：routee 是自己的子 Actor
	pool     *actor.Props
	poolSize int
}

var _ actor.PreStarter = (*Router)(nil)

// NewGroup 创建路由到已有 Actor 的路由器
// logic 为 nil 时使用轮询
func NewGroup(logic Logic, routees ...actor.ActorRef) *actor.Props {
	if logic == nil {
		logic = NewRoundRobin()
	}
	return actor.NewProps(func() actor.Actor {
		return &Router{logic: logic, initial: routees}
	})
}

// NewPool 创建路由器，并以 props 创建 size 个子 Actor 作为 routee
// routee 命名为 routee-0 ... routee-(size-1)，失败时按路由器的监督策略处理
func NewPool(props *actor.Props, size int, logic Logic) *actor.Props {
	if logic == nil {
		logic = NewRoundRobin()
	}
	return actor.NewProps(func() actor.Actor {
		return &Router{logic: logic, pool: props, poolSize: size}
	})
}

// PreStart 创建或收回 routee；重启时已存在的子 Actor 直接复用
func (r *Router) PreStart(ctx *actor.Context) error {
	if r.pool != nil {
		if r.poolSize <= 0 {
			return &actor.ValidationError{Field: "pool.size", Reason: "must be positive"}
		}
		for i := 0; i < r.poolSize; i++ {
			name := fmt.Sprintf("routee-%d", i)
			child, ok := ctx.Child(name)
			if !ok {
				var err error
				if child, err = ctx.Spawn(r.pool, name); err != nil {
					return errors.Wrapf(err, "spawn routee %s", name)
				}
			}
			r.add(ctx, child)
		}
	}
	for _, ref := range r.initial {
		if ref != nil && !ref.IsTerminated() {
			r.add(ctx, ref)
		}
	}
	ctx.Logger().Debug("router started", "routees", len(r.routees))
	return nil
}

// Receive 处理管理消息，其余消息路由给 routee
func (r *Router) Receive(ctx *actor.Context, msg actor.Message) {
	switch m := msg.(type) {
	case *AddRoutee:
		if m.Ref != nil {
			r.add(ctx, m.Ref)
		}
		ctx.Reply(r.snapshot())

	case *RemoveRoutee:
		if m.Ref != nil && r.remove(m.Ref.Path()) {
			ctx.Unwatch(m.Ref)
		}
		ctx.Reply(r.snapshot())

	case *GetRoutees:
		ctx.Reply(r.snapshot())

	case *actor.Terminated:
		if r.remove(m.Ref.Path()) {
			ctx.Logger().Debug("routee terminated", "routee", m.Ref.Path(), "remaining", len(r.routees))
		}

	case *actor.ChildTerminated:
		// 由 Terminated 处理

	case *BroadcastMessage:
		r.route(ctx, m.Message, r.routees)

	default:
		r.route(ctx, msg, r.logic.Select(msg, r.routees))
	}
}

// ============== 内部方法 ==============

func (r *Router) add(ctx *actor.Context, ref actor.ActorRef) {
	for _, existing := range r.routees {
		if existing.Path() == ref.Path() {
			return
		}
	}
	r.routees = append(r.routees, ref)
	ctx.Watch(ref)
}

func (r *Router) remove(path string) bool {
	for i, ref := range r.routees {
		if ref.Path() == path {
			r.routees = append(r.routees[:i], r.routees[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Router) snapshot() *Routees {
	refs := make([]actor.ActorRef, len(r.routees))
	copy(refs, r.routees)
	return &Routees{Refs: refs}
}

// route 转发给 targets，没有目标时进入死信
func (r *Router) route(ctx *actor.Context, msg actor.Message, targets []actor.ActorRef) {
	if msg == nil {
		return
	}
	if len(targets) == 0 {
		ctx.Logger().Debug("no routee available", "kind", msg.Kind())
		if dl := ctx.System().DeadLetters(); dl != nil {
			dl.Tell(&actor.DeadLetter{
				Message:           msg,
				OriginalSender:    ctx.Sender(),
				OriginalRecipient: ctx.Self(),
				Reason:            "no routees",
				Timestamp:         time.Now(),
			}, nil)
		}
		return
	}
	for _, target := range targets {
		target.Tell(msg, ctx.Sender())
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 同步辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// List 查询路由器当前的 routee
func List(router actor.ActorRef, timeout time.Duration) ([]actor.ActorRef, error) {
	reply, err := actor.Ask[*Routees](router, &GetRoutees{}, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "list routees")
	}
	return reply.Refs, nil
}

// Add 添加 routee 并等待路由器确认
func Add(router, routee actor.ActorRef, timeout time.Duration) error {
	if routee == nil {
		return &actor.ValidationError{Field: "routee", Reason: "must not be nil"}
	}
	_, err := actor.Ask[*Routees](router, &AddRoutee{Ref: routee}, timeout)
	return errors.Wrap(err, "add routee")
}

// Remove 移除 routee 并等待路由器确认
func Remove(router, routee actor.ActorRef, timeout time.Duration) error {
	if routee == nil {
		return &actor.ValidationError{Field: "routee", Reason: "must not be nil"}
	}
	_, err := actor.Ask[*Routees](router, &RemoveRoutee{Ref: routee}, timeout)
	return errors.Wrap(err, "remove routee")
}
