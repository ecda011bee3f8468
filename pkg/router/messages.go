package router

import "github.com/lwmacct/251019-go-pkg-actor/pkg/actor"

// ═══════════════════════════════════════════════════════════════════════════
// Routee 管理消息
// ═══════════════════════════════════════════════════════════════════════════

// AddRoutee 添加 routee，已存在的路径会被忽略
//
// 路由 Actor 回复当前的 [Routees]。
type AddRoutee struct {
	Ref actor.ActorRef
}

// Kind 实现 actor.Message 接口
func (m *AddRoutee) Kind() string { return "router.add_routee" }

// RemoveRoutee 移除 routee，不会停止它
type RemoveRoutee struct {
	Ref actor.ActorRef
}

// Kind 实现 actor.Message 接口
func (m *RemoveRoutee) Kind() string { return "router.remove_routee" }

// GetRoutees 查询当前 routee
type GetRoutees struct{}

// Kind 实现 actor.Message 接口
func (m *GetRoutees) Kind() string { return "router.get_routees" }

// Routees routee 列表，按加入顺序
type Routees struct {
	Refs []actor.ActorRef
}

// Kind 实现 actor.Message 接口
func (m *Routees) Kind() string { return "router.routees" }

// Paths routee 路径列表
func (m *Routees) Paths() []string {
	paths := make([]string, 0, len(m.Refs))
	for _, ref := range m.Refs {
		paths = append(paths, ref.Path())
	}
	return paths
}

// ═══════════════════════════════════════════════════════════════════════════
// 路由消息
// ═══════════════════════════════════════════════════════════════════════════

// BroadcastMessage 无论路由逻辑如何，都发送给所有 routee
type BroadcastMessage struct {
	Message actor.Message
}

// Kind 实现 actor.Message 接口
func (m *BroadcastMessage) Kind() string { return "router.broadcast" }
