package actor

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// watchRegistration 一条监控关系
type watchRegistration struct {
	watcher  ActorRef
	watched  ActorRef
	callback func(watched ActorRef)
}

// watchKey 监控关系的键
// target 是被监控者的实例标识，同路径重新创建的 Actor 不会覆盖旧实例的监控
type watchKey struct {
	watcher string
	watched string
	target  any
}

// identity 本地 PID 以单元区分实例，其他引用只有路径
func identity(ref ActorRef) any {
	if pid, ok := ref.(*PID); ok && pid.cell != nil {
		return pid.cell
	}
	return ref.Path()
}

func keyOf(watcher, watched ActorRef) watchKey {
	return watchKey{watcher: watcher.Path(), watched: watched.Path(), target: identity(watched)}
}

// watchRegistry 监控关系索引
//
// 同时按被监控者路径和监控者路径建索引，两侧都是 O(1) 查找。
// 被监控者的终止标志在持锁时检查，watch 和 signalTermination 不会漏掉通知。
type watchRegistry struct {
	mu        sync.RWMutex
	byWatched map[string]map[watchKey]*watchRegistration
	byWatcher map[string]map[watchKey]*watchRegistration
	logger    *slog.Logger
}

func newWatchRegistry(logger *slog.Logger) *watchRegistry {
	return &watchRegistry{
		byWatched: make(map[string]map[watchKey]*watchRegistration),
		byWatcher: make(map[string]map[watchKey]*watchRegistration),
		logger:    logger,
	}
}

// watch 注册监控；被监控者已终止时同步触发回调且不保存
func (r *watchRegistry) watch(watcher, watched ActorRef, callback func(ActorRef)) {
	if isNil(watcher) || isNil(watched) || callback == nil {
		return
	}

	reg := &watchRegistration{watcher: watcher, watched: watched, callback: callback}
	r.mu.Lock()
	if watched.IsTerminated() {
		r.mu.Unlock()
		r.fire(reg)
		return
	}

	key := keyOf(watcher, watched)
	if r.byWatched[key.watched] == nil {
		r.byWatched[key.watched] = make(map[watchKey]*watchRegistration)
	}
	if r.byWatcher[key.watcher] == nil {
		r.byWatcher[key.watcher] = make(map[watchKey]*watchRegistration)
	}
	r.byWatched[key.watched][key] = reg
	r.byWatcher[key.watcher][key] = reg
	r.mu.Unlock()
}

// unwatch 移除一条监控关系，不触发回调
func (r *watchRegistry) unwatch(watcher, watched ActorRef) {
	if isNil(watcher) || isNil(watched) {
		return
	}
	key := keyOf(watcher, watched)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key)
}

func (r *watchRegistry) removeLocked(key watchKey) {
	if m := r.byWatched[key.watched]; m != nil {
		delete(m, key)
		if len(m) == 0 {
			delete(r.byWatched, key.watched)
		}
	}
	if m := r.byWatcher[key.watcher]; m != nil {
		delete(m, key)
		if len(m) == 0 {
			delete(r.byWatcher, key.watcher)
		}
	}
}

// removeWatcher 监控者终止时清理它发起的所有监控
func (r *watchRegistry) removeWatcher(watcher ActorRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.byWatcher[watcher.Path()] {
		r.removeLocked(key)
	}
}

// signalTermination 原子地取出并触发所有监控该实例的回调
// 调用前 actor 必须已经处于终态
func (r *watchRegistry) signalTermination(actor ActorRef) {
	target := identity(actor)

	r.mu.Lock()
	var regs []*watchRegistration
	for key, reg := range r.byWatched[actor.Path()] {
		// 只按路径注册的监控匹配任何实例；同路径的新实例不受影响
		if _, byPath := key.target.(string); !byPath && key.target != target {
			continue
		}
		regs = append(regs, reg)
		r.removeLocked(key)
	}
	r.mu.Unlock()

	for _, reg := range regs {
		r.fire(reg)
	}
}

// fire 触发回调，单个回调的 panic 不影响其他监控者
func (r *watchRegistry) fire(reg *watchRegistration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("watch callback panicked",
				"watcher", reg.watcher.Path(),
				"watched", reg.watched.Path(),
				"error", rec,
				"stack", string(debug.Stack()))
		}
	}()
	reg.callback(reg.watched)
}

// watching 监控者当前监控的路径数量
func (r *watchRegistry) watching(watcher ActorRef) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byWatcher[watcher.Path()])
}

// watchers 监控该实例的监控者数量
func (r *watchRegistry) watchers(watched ActorRef) int {
	target := identity(watched)

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for key := range r.byWatched[watched.Path()] {
		if key.target == target {
			n++
		}
	}
	return n
}
