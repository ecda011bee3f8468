package router

import (
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/lwmacct/251019-go-pkg-actor/pkg/actor"
)

// Logic 路由选择逻辑
//
// Select 在路由 Actor 的消息处理中调用，同一时刻只有一个调用者。
// 返回空切片表示没有可用的 routee，消息进入死信。
type Logic interface {
	Select(msg actor.Message, routees []actor.ActorRef) []actor.ActorRef
}

// ============== 内置逻辑 ==============

// RoundRobin 轮询
type RoundRobin struct {
	next atomic.Uint64
}

// NewRoundRobin 创建轮询逻辑
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select 实现 Logic
func (r *RoundRobin) Select(_ actor.Message, routees []actor.ActorRef) []actor.ActorRef {
	if len(routees) == 0 {
		return nil
	}
	i := (r.next.Inc() - 1) % uint64(len(routees))
	return routees[i : i+1]
}

// Random 随机选择一个
type Random struct{}

// Select 实现 Logic
func (Random) Select(_ actor.Message, routees []actor.ActorRef) []actor.ActorRef {
	if len(routees) == 0 {
		return nil
	}
	i := rand.IntN(len(routees))
	return routees[i : i+1]
}

// Broadcast 发送给所有 routee
type Broadcast struct{}

// Select 实现 Logic
func (Broadcast) Select(_ actor.Message, routees []actor.ActorRef) []actor.ActorRef {
	return routees
}

// ParseLogic 按名称创建逻辑：round_robin、random、broadcast
func ParseLogic(name string) (Logic, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_") {
	case "", "round_robin", "roundrobin":
		return NewRoundRobin(), nil
	case "random":
		return Random{}, nil
	case "broadcast":
		return Broadcast{}, nil
	}
	return nil, errors.Errorf("unknown routing logic %q", name)
}
