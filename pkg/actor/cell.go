package actor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// actorCell Actor 单元，包含 Actor 及其运行时状态
//
// 所有权从根到叶：父 Actor 按名称持有子 Actor，子 Actor 只保留父 Actor 的回指。
type actorCell struct {
	system *System
	name   string
	path   string
	self   *PID
	parent *actorCell
	props  *Props

	// 只在排空任务中访问
	actor Actor
	ctx   *Context

	mailbox    *Mailbox
	state      lifecycle
	dispatcher Dispatcher
	throughput int

	// 监督子 Actor 的策略
	strategy    SupervisorStrategy
	stopTimeout time.Duration

	childrenMu sync.RWMutex
	children   map[string]*actorCell

	stats    *StatsCollector
	restarts atomic.Int64
	started  atomic.Bool
	logger   *slog.Logger

	goctx  context.Context
	cancel context.CancelFunc

	terminated    chan struct{}
	terminateOnce sync.Once
}

func newCell(system *System, parent *actorCell, props *Props, name string) *actorCell {
	cfg := system.config

	path := childPath(parent, name)
	capacity := props.MailboxCapacity
	if capacity == 0 {
		capacity = cfg.MailboxCapacity
	}
	policy := props.OverflowPolicy
	if policy == OverflowDefault {
		policy = cfg.OverflowPolicy
	}
	blockTimeout := props.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = cfg.BlockTimeout
	}
	strategy := props.SupervisorStrategy
	if strategy == nil {
		strategy = DefaultSupervisorStrategy()
	}
	stopTimeout := props.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = cfg.StopTimeout
	}

	goctx, cancel := context.WithCancel(system.ctx)

	c := &actorCell{
		system:      system,
		name:        name,
		path:        path,
		parent:      parent,
		props:       props,
		mailbox:     NewMailbox(capacity, policy, blockTimeout),
		dispatcher:  system.dispatcherFor(props.Dispatcher),
		throughput:  cfg.Throughput,
		strategy:    strategy,
		stopTimeout: stopTimeout,
		children:    make(map[string]*actorCell),
		stats:       NewStatsCollector(),
		logger:      system.logger.With("actor", path),
		goctx:       goctx,
		cancel:      cancel,
		terminated:  make(chan struct{}),
	}
	if c.throughput <= 0 {
		c.throughput = 1
	}
	c.self = &PID{path: path, cell: c, system: system}
	c.ctx = newContext(c)
	return c
}

// childPath 父路径 + "/" + 名称，根路径为 "/"
func childPath(parent *actorCell, name string) string {
	if parent == nil {
		return "/"
	}
	if parent.path == "/" {
		return "/" + name
	}
	return parent.path + "/" + name
}

// validateName 校验子 Actor 名称
func validateName(name string) error {
	switch {
	case name == "." || name == "..":
		return &InvalidNameError{Name: name, Reason: "reserved name"}
	case strings.HasPrefix(name, "$"):
		return &InvalidNameError{Name: name, Reason: "names starting with '$' are reserved"}
	case strings.ContainsAny(name, "/#@ \t\r\n"):
		return &InvalidNameError{Name: name, Reason: "must not contain '/', '#', '@' or whitespace"}
	}
	return nil
}

// ============== 投递 ==============

// deliver 构建信封并投递
func (c *actorCell) deliver(msg Message, sender ActorRef) error {
	env, err := envelopeFor(msg, sender, c.self)
	if err != nil {
		c.logger.Warn("rejected invalid envelope", "error", err)
		return err
	}
	return c.send(env)
}

// send 投递信封，失败的信封进入死信
func (c *actorCell) send(env *Envelope) error {
	err := c.trySend(env)
	if err != nil {
		c.system.deadLetter(env, err.Error())
	}
	return err
}

// trySend 投递信封，失败时只返回错误
func (c *actorCell) trySend(env *Envelope) error {
	if c.state.Terminal() {
		return ErrActorTerminated
	}

	switch env.Payload.(type) {
	case *Suspend:
		c.suspend()
		return nil
	case *Resume:
		c.resume()
		return nil
	}

	dropped, err := c.mailbox.Enqueue(env)
	for _, d := range dropped {
		if d == env {
			// DropNew：静默丢弃，只留下死信
			c.system.deadLetter(d, "mailbox overflow")
			return nil
		}
		c.system.deadLetter(d, "mailbox overflow")
	}
	if err != nil {
		return err
	}

	c.stats.RecordReceived()
	c.system.stats.totalMessages.Inc()
	c.schedule()
	return nil
}

// sendSystem 发送运行时内部信号
func (c *actorCell) sendSystem(msg Message, priority Priority) error {
	env, err := NewEnvelope(msg, nil, c.self, EnvelopeSystem, priority)
	if err != nil {
		return err
	}
	return c.trySend(env)
}

// enqueueStart 放入 Start 信号但不调度
func (c *actorCell) enqueueStart() error {
	env, err := NewEnvelope(&Start{}, nil, c.self, EnvelopeSystem, PriorityHigh)
	if err != nil {
		return err
	}
	_, err = c.mailbox.Enqueue(env)
	return err
}

// schedule 邮箱有可处理消息且没有排空任务在运行时提交一个
func (c *actorCell) schedule() {
	if c.mailbox.HasEligible() && c.mailbox.setScheduled() {
		c.dispatcher.Schedule(c.run)
	}
}

// ============== 消息处理循环 ==============

// run 排空任务：一次最多处理 throughput 条消息
// 调度标志保证同一 Actor 同时只有一个排空任务
func (c *actorCell) run() {
	for i := 0; i < c.throughput; i++ {
		if c.stoppingOrDone() {
			break
		}
		env := c.mailbox.Dequeue()
		if env == nil {
			break
		}
		c.invoke(env)
	}

	c.mailbox.setIdle()
	if !c.stoppingOrDone() {
		c.schedule()
	}
}

// invoke 处理单条信封
func (c *actorCell) invoke(env *Envelope) {
	c.ctx.setCurrent(env)
	startTime := time.Now()

	// panic 恢复
	defer func() {
		c.ctx.setCurrent(nil)
		if r := recover(); r != nil {
			stack := debug.Stack()
			if handler := c.system.config.PanicHandler; handler != nil {
				handler(c.self, env.Payload, r)
			} else {
				c.logger.Error("panic in actor",
					"message", env.Payload.Kind(),
					"error", r,
					"stack", string(stack))
			}
			cause := toError(r, stack)
			c.stats.RecordError(cause)
			// 触发监督策略
			c.handleFailure(cause)
		}
	}()

	switch m := env.Payload.(type) {
	case *Start:
		c.start()
	case *Stop, *Kill, *PoisonPill:
		c.beginStop()
	case *Restart:
		c.restart(m.Cause)
	case *Escalate:
		c.handleEscalation(m)
	case *SystemFailure:
		c.handleFailure(m.Cause)
	case *Suspend:
		c.suspend()
	case *Resume:
		c.resume()
	default:
		c.actor.Receive(c.ctx, env.Payload)
		c.stats.RecordHandled(time.Since(startTime))
		c.system.stats.processedMsgs.Inc()
	}
}

// safeCall 调用生命周期回调，panic 转换为错误
func (c *actorCell) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = toError(r, debug.Stack())
		}
	}()
	return fn()
}

// ============== 生命周期 ==============

// start New -> Starting -> Running，失败进入 Failed
func (c *actorCell) start() {
	if !c.state.Transition(StateNew, StateStarting) {
		return
	}

	err := c.safeCall(func() error {
		instance := c.props.Producer()
		if instance == nil {
			return errors.New("producer returned nil actor")
		}
		c.actor = instance
		if ps, ok := instance.(PreStarter); ok {
			return ps.PreStart(c.ctx)
		}
		return nil
	})
	if err != nil {
		if c.state.Transition(StateStarting, StateFailed) {
			c.fail(&ActorInitializationError{Path: c.path, Cause: err})
		}
		return
	}

	c.started.Store(true)
	c.state.Transition(StateStarting, StateRunning)
	c.logger.Debug("actor started")
}

// restart 保留路径、子 Actor 和引用，替换实例
// 挂起中的 Actor 同样重启，完成后恢复邮箱
func (c *actorCell) restart(cause error) {
	prev, ok := c.state.TransitionAny(StateRestarting, StateRunning, StateSuspended)
	if !ok {
		c.logger.Debug("restart ignored", "state", prev)
		return
	}

	old := c.actor
	if err := c.safeCall(func() error {
		if pr, ok := old.(PreRestarter); ok {
			return pr.PreRestart(c.ctx, cause)
		}
		if ps, ok := old.(PostStopper); ok {
			return ps.PostStop(c.ctx)
		}
		return nil
	}); err != nil {
		c.logger.Warn("preRestart failed", "error", err)
	}
	c.system.timers.cancelAll(c)

	err := c.safeCall(func() error {
		instance := c.props.Producer()
		if instance == nil {
			return errors.New("producer returned nil actor")
		}
		c.actor = instance
		if pr, ok := instance.(PostRestarter); ok {
			return pr.PostRestart(c.ctx, cause)
		}
		if ps, ok := instance.(PreStarter); ok {
			return ps.PreStart(c.ctx)
		}
		return nil
	})
	if err != nil {
		if c.state.Transition(StateRestarting, StateFailed) {
			c.fail(&ActorInitializationError{Path: c.path, Cause: err})
		}
		return
	}

	c.state.Transition(StateRestarting, StateRunning)
	if prev == StateSuspended {
		c.mailbox.Resume()
		c.schedule()
	}
	restarts := c.restarts.Inc()
	c.logger.Info("actor restarted", "restarts", restarts, "cause", cause)
}

// suspend Running -> Suspended
func (c *actorCell) suspend() {
	if c.state.Transition(StateRunning, StateSuspended) {
		c.mailbox.Suspend()
	}
}

// resume Suspended -> Running
func (c *actorCell) resume() {
	if c.state.Transition(StateSuspended, StateRunning) {
		c.mailbox.Resume()
		c.schedule()
	}
}

func (c *actorCell) stoppingOrDone() bool {
	switch c.state.Load() {
	case StateStopping, StateStopped, StateFailed:
		return true
	}
	return false
}

// requestStop 请求停止，高优先级越过排队消息
func (c *actorCell) requestStop() {
	_ = c.sendSystem(&Stop{}, PriorityHigh)
}

// beginStop Running|Suspended -> Stopping，停止流程在独立 goroutine 中完成
func (c *actorCell) beginStop() {
	if _, ok := c.state.TransitionAny(StateStopping, StateRunning, StateSuspended); !ok {
		return
	}
	c.mailbox.Suspend()
	c.system.timers.cancelAll(c)
	go c.finishStop(true)
}

// fail 进入 Failed 后上报父 Actor 并终止
func (c *actorCell) fail(cause error) {
	c.logger.Error("actor failed", "error", cause)
	c.mailbox.Suspend()
	c.system.timers.cancelAll(c)
	if c.parent != nil {
		_ = c.parent.sendSystem(&Escalate{Cause: cause, Child: c.self}, PriorityHigh)
	}
	go c.finishStop(false)
}

// finishStop 子 Actor 先停，然后 PostStop，最后注销
func (c *actorCell) finishStop(runPostStop bool) {
	c.stopChildren()

	if runPostStop && c.started.Load() {
		if err := c.safeCall(func() error {
			if ps, ok := c.actor.(PostStopper); ok {
				return ps.PostStop(c.ctx)
			}
			return nil
		}); err != nil {
			c.logger.Error("postStop failed", "error", &ActorStopError{Path: c.path, Cause: err})
		}
	}

	c.terminate()
}

// stopChildren 并发停止所有子 Actor，每个子 Actor 独立超时
func (c *actorCell) stopChildren() {
	children := c.childCells()
	if len(children) == 0 {
		return
	}

	var eg errgroup.Group
	for _, child := range children {
		eg.Go(func() error {
			return child.stopAndWait(c.stopTimeout)
		})
	}
	if err := eg.Wait(); err != nil {
		c.logger.Warn("child did not stop in time, forced", "error", err)
	}
}

// stopAndWait 请求停止并等待终止，超时后强制终止
func (c *actorCell) stopAndWait(timeout time.Duration) error {
	c.requestStop()
	if timeout <= 0 {
		<-c.terminated
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.terminated:
		return nil
	case <-timer.C:
		c.forceStop()
		return &ActorStopError{Path: c.path, Cause: errors.Errorf("did not stop within %v", timeout)}
	}
}

// forceStop 强制终止：丢弃邮箱，不再调用 Actor 代码
func (c *actorCell) forceStop() {
	if !c.state.ForceStop() {
		return
	}
	c.logger.Warn("actor force-stopped")
	for _, child := range c.childCells() {
		child.forceStop()
	}
	c.terminate()
}

// terminate 注销并通知，只执行一次
func (c *actorCell) terminate() {
	c.terminateOnce.Do(func() {
		c.cancel()
		c.system.timers.cancelAll(c)

		for _, env := range c.mailbox.Close() {
			if env.Type != EnvelopeSystem {
				c.system.deadLetter(env, "recipient terminated")
			}
		}

		// 先注销，再进入终态
		c.system.unregister(c)
		c.state.ForceStop()

		c.system.watches.removeWatcher(c.self)
		close(c.terminated)
		c.system.watches.signalTermination(c.self)

		if c.parent != nil && !c.parent.stoppingOrDone() {
			_ = c.parent.sendSystem(&ChildTerminated{Child: c.self}, PriorityNormal)
		}

		c.system.stats.totalActors.Dec()
		c.logger.Debug("actor stopped", "state", c.state.Load())
	})
}

// ============== 监督 ==============

// handleFailure 按父 Actor 的策略处理失败
func (c *actorCell) handleFailure(cause error) {
	if c.stoppingOrDone() {
		return
	}
	if c.parent == nil {
		c.logger.Error("failure in root actor is fatal, stopping", "error", cause)
		c.beginStop()
		return
	}

	directive := c.parent.decide(c.self, cause)
	c.logger.Warn("actor failed", "error", cause, "directive", directive)

	switch directive {
	case DirectiveResume:
	case DirectiveRestart:
		c.restart(cause)
	case DirectiveRestartAll:
		c.restart(cause)
		for _, sibling := range c.parent.childCells() {
			if sibling == c {
				continue
			}
			// 高优先级才能进入挂起中的兄弟邮箱
			if err := sibling.sendSystem(&Restart{Cause: cause}, PriorityHigh); err != nil {
				c.logger.Warn("sibling restart not delivered", "sibling", sibling.path, "error", err)
			}
		}
	case DirectiveStop:
		c.beginStop()
	case DirectiveEscalate:
		c.escalate(cause)
	}
}

// decide 调用监督策略，策略本身 panic 时上报
func (c *actorCell) decide(child ActorRef, cause error) (directive Directive) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("supervisor strategy panicked", "error", r)
			directive = DirectiveEscalate
		}
	}()
	return c.strategy.HandleFailure(child, cause)
}

// escalate 挂起自己并把失败交给父 Actor
func (c *actorCell) escalate(cause error) {
	if c.parent == nil {
		c.logger.Error("escalation reached the root, stopping", "error", cause)
		c.beginStop()
		return
	}
	c.suspend()
	if err := c.parent.sendSystem(&Escalate{Cause: cause, Child: c.self}, PriorityHigh); err != nil {
		c.logger.Warn("escalation not delivered", "error", err)
	}
}

// handleEscalation 父 Actor 把子 Actor 上报的失败当作自己的失败处理
func (c *actorCell) handleEscalation(m *Escalate) {
	c.handleFailure(m.Cause)
	if c.stoppingOrDone() {
		return
	}
	if pid, ok := m.Child.(*PID); ok && pid != nil && pid.cell != nil {
		pid.cell.resume()
	}
}

// ============== 子 Actor 管理 ==============

// spawnChild 创建并注册子 Actor
func (c *actorCell) spawnChild(props *Props, name string) (*actorCell, error) {
	if err := props.validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = "$" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	} else if err := validateName(name); err != nil {
		return nil, err
	}

	c.childrenMu.Lock()
	if c.stoppingOrDone() {
		c.childrenMu.Unlock()
		return nil, errors.Wrapf(ErrActorTerminated, "cannot spawn %q under %s", name, c.path)
	}
	if _, exists := c.children[name]; exists {
		c.childrenMu.Unlock()
		return nil, &DuplicateNameError{Parent: c.path, Name: name}
	}
	child := newCell(c.system, c, props, name)
	// Start 在注册前入队，之后到达的消息都排在它后面
	if err := child.enqueueStart(); err != nil {
		c.childrenMu.Unlock()
		child.cancel()
		return nil, err
	}
	if !c.system.register(child) {
		c.childrenMu.Unlock()
		child.cancel()
		return nil, &DuplicateNameError{Parent: c.path, Name: name}
	}
	c.children[name] = child
	c.childrenMu.Unlock()

	child.schedule()
	c.logger.Debug("spawned actor", "child", child.path)
	return child, nil
}

func (c *actorCell) child(name string) (*actorCell, bool) {
	c.childrenMu.RLock()
	defer c.childrenMu.RUnlock()
	child, ok := c.children[name]
	return child, ok
}

func (c *actorCell) childCells() []*actorCell {
	c.childrenMu.RLock()
	defer c.childrenMu.RUnlock()
	out := make([]*actorCell, 0, len(c.children))
	for _, child := range c.children {
		out = append(out, child)
	}
	return out
}

func (c *actorCell) childRefs() []*PID {
	cells := c.childCells()
	pids := make([]*PID, 0, len(cells))
	for _, child := range cells {
		pids = append(pids, child.self)
	}
	return pids
}

func (c *actorCell) removeChild(child *actorCell) {
	c.childrenMu.Lock()
	defer c.childrenMu.Unlock()
	if cur, ok := c.children[child.name]; ok && cur == child {
		delete(c.children, child.name)
	}
}
