package actor

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// System Actor 系统
// 管理所有 Actor 的生命周期、消息路由和监督
//
// Actor 树固定有三个守护 Actor：根 "/"、用户 "/user"、系统 "/system"。
// ActorOf 创建的 Actor 都在 /user 下，死信 Actor 位于 /system/deadLetters。
type System struct {
	// 基本信息
	name string

	// 路径 -> Actor 注册表（分片读写锁）
	registry cmap.ConcurrentMap[string, *actorCell]

	// 守护 Actor
	root           *actorCell
	userGuardian   *actorCell
	systemGuardian *actorCell
	deadLetters    *actorCell

	watches *watchRegistry
	timers  *timerScheduler

	defaultDispatcher Dispatcher
	sharedDispatcher  Dispatcher

	// 生命周期控制
	ctx           context.Context
	cancel        context.CancelFunc
	isRunning     atomic.Bool
	terminateOnce sync.Once
	done          chan struct{}

	// 配置
	config *SystemConfig

	// 统计信息
	stats systemCounters

	// 日志
	logger *slog.Logger
}

// NewSystem 创建新的 Actor 系统
func NewSystem(name string) *System {
	return NewSystemWithConfig(name, DefaultSystemConfig())
}

// NewSystemWithConfig 使用配置创建 Actor 系统
func NewSystemWithConfig(name string, config *SystemConfig) *System {
	if config == nil {
		config = DefaultSystemConfig()
	}
	config = config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	s := &System{
		name:              name,
		registry:          cmap.New[*actorCell](),
		ctx:               ctx,
		cancel:            cancel,
		config:            config,
		logger:            config.Logger.With("system", name),
		defaultDispatcher: newGoroutineDispatcher(),
		sharedDispatcher:  newPoolDispatcher(config.SharedPoolSize, 0),
		timers:            newTimerScheduler(),
		done:              make(chan struct{}),
	}
	s.stats.startTime = time.Now()
	s.watches = newWatchRegistry(s.logger)
	s.isRunning.Store(true)

	s.bootstrap()

	s.logger.Info("actor system started", "name", name)
	return s
}

// bootstrap 创建根 Actor 和守护 Actor
func (s *System) bootstrap() {
	rootProps := NewProps(func() Actor { return &guardian{} }).
		WithMailbox(-1, OverflowDropNew).
		WithSupervisor(NewOneForOneStrategy(-1, 0, ResumingDecider))
	s.root = newCell(s, nil, rootProps, "")
	s.register(s.root)
	_ = s.root.sendSystem(&Start{}, PriorityHigh)

	userStrategy := s.config.GuardianStrategy
	if userStrategy == nil {
		userStrategy = NewOneForOneStrategy(10, time.Minute, guardianDecider)
	}
	userProps := NewProps(func() Actor { return &guardian{} }).
		WithMailbox(-1, OverflowDropNew).
		WithSupervisor(userStrategy)
	s.userGuardian = s.mustSpawn(s.root, userProps, "user")

	systemProps := NewProps(func() Actor { return &guardian{} }).
		WithMailbox(-1, OverflowDropNew).
		WithSupervisor(NewOneForOneStrategy(-1, 0, RestartingDecider))
	s.systemGuardian = s.mustSpawn(s.root, systemProps, "system")

	sinkProps := NewProps(func() Actor { return newDeadLetterSink(s.config.EnableDeadLetterLogging) }).
		WithMailbox(-1, OverflowDropNew)
	s.deadLetters = s.mustSpawn(s.systemGuardian, sinkProps, "deadLetters")
}

func (s *System) mustSpawn(parent *actorCell, props *Props, name string) *actorCell {
	cell, err := parent.spawnChild(props, name)
	if err != nil {
		panic(errors.Wrapf(err, "bootstrap %s", name))
	}
	return cell
}

// guardianDecider 顶层 Actor 的上报改为停止，避免失败扩散到整个系统
func guardianDecider(cause error) Directive {
	if d := DefaultDecider(cause); d != DirectiveEscalate {
		return d
	}
	return DirectiveStop
}

// guardian 守护 Actor，只记录子 Actor 的终止
type guardian struct{}

func (g *guardian) Receive(ctx *Context, msg Message) {
	if m, ok := msg.(*ChildTerminated); ok {
		ctx.Logger().Debug("child terminated", "child", m.Child.Path())
	}
}

// Name 返回系统名称
func (s *System) Name() string {
	return s.name
}

// Config 返回生效的配置
func (s *System) Config() SystemConfig {
	return *s.config
}

// Logger 系统日志器
func (s *System) Logger() *slog.Logger {
	return s.logger
}

// ============== 注册表 ==============

// register 注册 Actor，路径已被占用时返回 false
func (s *System) register(c *actorCell) bool {
	if !s.registry.SetIfAbsent(c.path, c) {
		return false
	}
	s.stats.totalActors.Inc()
	return true
}

// unregister 从注册表和父 Actor 中移除
func (s *System) unregister(c *actorCell) {
	s.registry.RemoveCb(c.path, func(_ string, v *actorCell, exists bool) bool {
		return exists && v == c
	})
	if c.parent != nil {
		c.parent.removeChild(c)
	}
}

// dispatcherFor 按类型返回调度器
func (s *System) dispatcherFor(t DispatcherType) Dispatcher {
	if t == DispatcherShared {
		return s.sharedDispatcher
	}
	return s.defaultDispatcher
}

// ============== 创建 Actor ==============

// ActorOf 在 /user 下创建 Actor
// name 为空时自动生成；重名返回 DuplicateNameError，非法名称返回 InvalidNameError
func (s *System) ActorOf(props *Props, name string) (*PID, error) {
	if !s.IsRunning() {
		return nil, ErrSystemNotRunning
	}
	cell, err := s.userGuardian.spawnChild(props, name)
	if err != nil {
		return nil, err
	}
	return cell.self, nil
}

// Spawn 使用已有实例创建 Actor
func (s *System) Spawn(actor Actor, name string) (*PID, error) {
	if actor == nil {
		return nil, &ValidationError{Field: "actor", Reason: "must not be nil"}
	}
	return s.ActorOf(PropsFromInstance(actor), name)
}

// ============== 查询 ==============

// Lookup 按完整路径查找 Actor，如 /user/parent/child
func (s *System) Lookup(path string) (*PID, bool) {
	if cell, ok := s.registry.Get(path); ok {
		return cell.self, true
	}
	return nil, false
}

// ListActors 列出 /user 下所有存活的 Actor，按路径排序
func (s *System) ListActors() []*PID {
	pids := make([]*PID, 0, s.registry.Count())
	for path, cell := range s.registry.Items() {
		if strings.HasPrefix(path, "/user/") && !cell.state.Terminal() {
			pids = append(pids, cell.self)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i].path < pids[j].path })
	return pids
}

// Count 返回 /user 下的 Actor 数量
func (s *System) Count() int {
	return len(s.ListActors())
}

// Stats 获取统计信息
// TotalActors 包含守护 Actor 和死信 Actor
func (s *System) Stats() *SystemStats {
	return s.stats.snapshot()
}

// ActorStats 获取单个 Actor 的统计信息
func (s *System) ActorStats(ref ActorRef) (*ActorStats, bool) {
	cell := s.cellOf(ref)
	if cell == nil {
		return nil, false
	}
	st := cell.stats.Stats()
	st.Path = cell.path
	st.State = cell.state.Load()
	st.Restarts = cell.restarts.Load()
	st.MailboxSize = cell.mailbox.Len()
	st.Dropped = cell.mailbox.Dropped()
	st.Children = len(cell.childCells())
	return st, true
}

// cellOf 本地引用直接取单元，其他引用按路径查找
func (s *System) cellOf(ref ActorRef) *actorCell {
	if isNil(ref) {
		return nil
	}
	if pid, ok := ref.(*PID); ok && pid.cell != nil && pid.system == s {
		return pid.cell
	}
	cell, _ := s.registry.Get(ref.Path())
	return cell
}

// ============== 消息 ==============

// Broadcast 广播消息到 /user 下的所有 Actor
func (s *System) Broadcast(msg Message) {
	for _, pid := range s.ListActors() {
		pid.Tell(msg, nil)
	}
}

// BroadcastWithFilter 带过滤条件的广播
func (s *System) BroadcastWithFilter(msg Message, filter func(*PID) bool) {
	for _, pid := range s.ListActors() {
		if filter(pid) {
			pid.Tell(msg, nil)
		}
	}
}

// ============== 停止 ==============

// Stop 停止 Actor
// 停止请求越过已排队的普通消息；子 Actor 先于自己停止
func (s *System) Stop(ref ActorRef) {
	if cell := s.cellOf(ref); cell != nil {
		cell.requestStop()
	}
}

// StopGracefully 优雅停止 Actor（先处理完已排队的消息）
// 超时返回 ActorStopError，Actor 仍会继续停止
func (s *System) StopGracefully(ref ActorRef, timeout time.Duration) error {
	cell := s.cellOf(ref)
	if cell == nil {
		return nil
	}
	cell.self.Tell(&PoisonPill{}, nil)

	if timeout <= 0 {
		<-cell.terminated
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-cell.terminated:
		return nil
	case <-timer.C:
		return &ActorStopError{Path: cell.path, Cause: errors.Errorf("did not stop within %v", timeout)}
	}
}

// ============== 监控 ==============

// externalWatcher 系统外部的监控者
type externalWatcher struct {
	path string
}

func (w *externalWatcher) Path() string               { return w.path }
func (w *externalWatcher) String() string             { return w.path }
func (w *externalWatcher) Tell(_ Message, _ ActorRef) {}
func (w *externalWatcher) IsTerminated() bool         { return false }

// Watch 在 Actor 外部监控 ref 的终止
// ref 已终止时 fn 同步调用；返回的函数取消监控
func (s *System) Watch(ref ActorRef, fn func(ActorRef)) (unwatch func()) {
	w := &externalWatcher{path: "/temp/watch-" + uuid.NewString()}
	s.watches.watch(w, ref, fn)
	return func() { s.watches.unwatch(w, ref) }
}

// ============== 关闭 ==============

// IsRunning 检查系统是否运行中
func (s *System) IsRunning() bool {
	return s.isRunning.Load()
}

// Terminate 开始关闭系统，返回关闭完成时关闭的通道
// 先停止 /user 下的 Actor，再停止根 Actor，最后释放调度器和定时器
func (s *System) Terminate() <-chan struct{} {
	s.terminateOnce.Do(func() {
		s.isRunning.Store(false)
		s.logger.Info("actor system shutting down", "name", s.name)
		go s.terminate()
	})
	return s.done
}

func (s *System) terminate() {
	timeout := s.config.ShutdownTimeout

	if err := s.userGuardian.stopAndWait(timeout); err != nil {
		s.logger.Warn("user actors did not stop in time", "error", err)
	}
	if err := s.root.stopAndWait(timeout); err != nil {
		s.logger.Warn("system actors did not stop in time", "error", err)
	}

	s.timers.stop()
	s.cancel()
	s.sharedDispatcher.Shutdown()
	s.defaultDispatcher.Shutdown()

	s.logger.Info("actor system shutdown complete", "name", s.name)
	close(s.done)
}

// AwaitTermination 阻塞等待系统关闭完成，timeout <= 0 表示一直等待
// 只等待，不会触发关闭
func (s *System) AwaitTermination(timeout time.Duration) error {
	if timeout <= 0 {
		<-s.done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		return errors.Errorf("actor system %s did not terminate within %v", s.name, timeout)
	}
}

// Shutdown 关闭整个 Actor 系统
func (s *System) Shutdown() {
	s.ShutdownWithTimeout(s.config.ShutdownTimeout)
}

// ShutdownWithTimeout 带超时的关闭
func (s *System) ShutdownWithTimeout(timeout time.Duration) {
	s.Terminate()
	if err := s.AwaitTermination(timeout); err != nil {
		s.logger.Warn("actor system shutdown timeout, forcing exit", "name", s.name, "error", err)
	}
}
