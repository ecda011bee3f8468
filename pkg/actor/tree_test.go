package actor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// eventLog 记录生命周期事件的顺序
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// treeActor 在 PreStart 中创建 children 指定的子 Actor
type treeActor struct {
	name     string
	children []string
	log      *eventLog
	stopWait time.Duration
}

func (a *treeActor) PreStart(ctx *Context) error {
	for _, child := range a.children {
		name := child
		if _, err := ctx.Spawn(NewProps(func() Actor {
			return &treeActor{name: name, log: a.log}
		}), name); err != nil {
			return err
		}
	}
	return nil
}

func (a *treeActor) PostStop(_ *Context) error {
	time.Sleep(a.stopWait)
	a.log.add("postStop:" + a.name)
	return nil
}

func (a *treeActor) Receive(ctx *Context, msg Message) {
	switch msg.(type) {
	case *PingMessage:
		ctx.Reply(&PongMessage{})
	}
}

func spawnTree(t *testing.T, sys *System, log *eventLog, children ...string) *PID {
	t.Helper()
	pid, err := sys.ActorOf(NewProps(func() Actor {
		return &treeActor{name: "parent", children: children, log: log}
	}), "parent")
	require.NoError(t, err)

	// PreStart 完成后子 Actor 已经注册
	_, err = pid.Request(&PingMessage{}, time.Second)
	require.NoError(t, err)
	return pid
}

func TestChildPaths(t *testing.T) {
	sys := newTestSystem(t)

	parent := spawnTree(t, sys, &eventLog{}, "child")
	assert.Equal(t, "/user/parent", parent.Path())

	child, ok := sys.Lookup("/user/parent/child")
	require.True(t, ok)
	assert.Equal(t, "/user/parent/child", child.Path())
	assert.False(t, child.IsTerminated())

	require.Len(t, parent.cell.childRefs(), 1)
	assert.True(t, parent.cell.childRefs()[0].Equals(child))
}

func TestKillChild(t *testing.T) {
	sys := newTestSystem(t)
	log := &eventLog{}

	parent := spawnTree(t, sys, log, "child")
	child, ok := sys.Lookup("/user/parent/child")
	require.True(t, ok)

	child.Tell(&Kill{}, nil)
	waitTerminated(t, child)

	assert.Eventually(t, func() bool {
		_, exists := parent.cell.child("child")
		return !exists
	}, time.Second, 5*time.Millisecond)
	_, ok = sys.Lookup("/user/parent/child")
	assert.False(t, ok)
	assert.False(t, parent.IsTerminated())
	assert.Equal(t, []string{"postStop:child"}, log.snapshot())
}

func TestKillParentStopsChildrenFirst(t *testing.T) {
	sys := newTestSystem(t)
	log := &eventLog{}

	parent := spawnTree(t, sys, log, "a", "b")
	a, _ := sys.Lookup("/user/parent/a")
	b, _ := sys.Lookup("/user/parent/b")

	parent.Tell(&Kill{}, nil)
	waitTerminated(t, parent)

	assert.True(t, a.IsTerminated())
	assert.True(t, b.IsTerminated())

	events := log.snapshot()
	require.Len(t, events, 3)
	assert.ElementsMatch(t, []string{"postStop:a", "postStop:b"}, events[:2])
	assert.Equal(t, "postStop:parent", events[2])
}

func TestChildTerminatedNotification(t *testing.T) {
	sys := newTestSystem(t)

	notified := make(chan string, 1)
	parent, err := sys.ActorOf(PropsFromFunc(func(ctx *Context, msg Message) {
		switch m := msg.(type) {
		case *PingMessage:
			child, err := ctx.Spawn(PropsFromInstance(&EchoActor{}), "child")
			if err == nil {
				ctx.Stop(child)
			}
		case *ChildTerminated:
			notified <- m.Child.Path()
		}
	}), "parent")
	require.NoError(t, err)

	parent.Tell(&PingMessage{}, nil)

	select {
	case path := <-notified:
		assert.Equal(t, "/user/parent/child", path)
	case <-time.After(2 * time.Second):
		t.Fatal("parent did not receive ChildTerminated")
	}
}

func TestStopTimeoutForcesChild(t *testing.T) {
	sys := newTestSystem(t)

	blocked := make(chan struct{})
	t.Cleanup(func() { close(blocked) })

	parent, err := sys.ActorOf(NewProps(func() Actor {
		return ActorFunc(func(ctx *Context, msg Message) {
			if _, ok := msg.(*PingMessage); ok {
				child, _ := ctx.Spawn(PropsFromFunc(func(_ *Context, msg Message) {
					if _, ok := msg.(*CountMessage); ok {
						<-blocked
					}
				}), "stuck")
				child.Tell(&CountMessage{}, nil)
				ctx.Reply(&PongMessage{})
			}
		})
	}).WithStopTimeout(100*time.Millisecond), "parent")
	require.NoError(t, err)

	_, err = parent.Request(&PingMessage{}, time.Second)
	require.NoError(t, err)
	stuck, ok := sys.Lookup("/user/parent/stuck")
	require.True(t, ok)

	// 等子 Actor 进入阻塞的消息处理
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	sys.Stop(parent)
	waitTerminated(t, parent)
	assert.True(t, stuck.IsTerminated(), "stuck child is force-stopped")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSpawnUnderStoppingParent(t *testing.T) {
	sys := newTestSystem(t)

	var spawnErr atomic.Error
	done := make(chan struct{})
	parent, err := sys.ActorOf(NewProps(func() Actor {
		return &hookActor{
			postStop: func(ctx *Context) error {
				_, err := ctx.Spawn(PropsFromInstance(&EchoActor{}), "late")
				spawnErr.Store(err)
				close(done)
				return nil
			},
		}
	}), "parent")
	require.NoError(t, err)

	sys.Stop(parent)
	<-done
	assert.ErrorIs(t, spawnErr.Load(), ErrActorTerminated)
}

// ============== 顺序与隔离 ==============

func TestMessageOrderPerSender(t *testing.T) {
	sys := newTestSystem(t)

	var (
		mu   sync.Mutex
		seen = make(map[int][]int)
	)
	pid, err := sys.ActorOf(PropsFromFunc(func(_ *Context, msg Message) {
		if m, ok := msg.(*orderedMessage); ok {
			mu.Lock()
			seen[m.sender] = append(seen[m.sender], m.seq)
			mu.Unlock()
		}
	}).WithMailbox(-1, OverflowDropNew), "ordered")
	require.NoError(t, err)

	const senders, perSender = 4, 500
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				pid.Tell(&orderedMessage{sender: sender, seq: i}, nil)
			}
		}(s)
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, seqs := range seen {
			total += len(seqs)
		}
		return total == senders*perSender
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for sender, seqs := range seen {
		for i, seq := range seqs {
			require.Equal(t, i, seq, "sender %d out of order", sender)
		}
	}
}

type orderedMessage struct {
	sender int
	seq    int
}

func (*orderedMessage) Kind() string { return "ordered" }

func TestSingleThreadedProcessing(t *testing.T) {
	for _, dispatcher := range []DispatcherType{DispatcherDefault, DispatcherShared} {
		t.Run(dispatcher.String(), func(t *testing.T) {
			sys := newTestSystem(t)

			var (
				inFlight   atomic.Int32
				overlapped atomic.Bool
				handled    atomic.Int32
			)
			props := PropsFromFunc(func(_ *Context, msg Message) {
				if _, ok := msg.(*CountMessage); !ok {
					return
				}
				if inFlight.Inc() > 1 {
					overlapped.Store(true)
				}
				time.Sleep(10 * time.Microsecond)
				inFlight.Dec()
				handled.Inc()
			}).WithMailbox(-1, OverflowDropNew).WithDispatcher(dispatcher)

			pid, err := sys.ActorOf(props, "isolated")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						pid.Tell(&CountMessage{Value: i}, nil)
					}
				}()
			}
			wg.Wait()

			assert.Eventually(t, func() bool { return handled.Load() == 800 }, 5*time.Second, 5*time.Millisecond)
			assert.False(t, overlapped.Load(), "two messages processed concurrently")
		})
	}
}

func TestMailboxOverflowToDeadLetters(t *testing.T) {
	sys := newTestSystem(t)

	release := make(chan struct{})
	var handled atomic.Int32
	props := PropsFromFunc(func(_ *Context, msg Message) {
		switch msg.(type) {
		case *PingMessage:
			<-release
		case *CountMessage:
			handled.Inc()
		}
	}).WithMailbox(2, OverflowDropNew)

	pid, err := sys.ActorOf(props, "small")
	require.NoError(t, err)

	// 第一条消息占住 Actor，之后的消息排队
	pid.Tell(&PingMessage{}, nil)
	assert.Eventually(t, func() bool { return pid.cell.mailbox.Len() == 0 }, time.Second, time.Millisecond)

	before := sys.Stats().DeadLetters
	for i := 0; i < 3; i++ {
		assert.NoError(t, pid.TrySend(&CountMessage{Value: i}, nil), "DropNew is silent")
	}
	close(release)

	assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), handled.Load())
	assert.Equal(t, before+1, sys.Stats().DeadLetters)

	as, _ := sys.ActorStats(pid)
	assert.Equal(t, int64(1), as.Dropped)
}

// ============== 生命周期回调 ==============

// hookActor 生命周期回调由函数提供
type hookActor struct {
	preStart    func(ctx *Context) error
	postStop    func(ctx *Context) error
	preRestart  func(ctx *Context, cause error) error
	postRestart func(ctx *Context, cause error) error
	receive     func(ctx *Context, msg Message)
}

func (a *hookActor) PreStart(ctx *Context) error {
	if a.preStart != nil {
		return a.preStart(ctx)
	}
	return nil
}

func (a *hookActor) PostStop(ctx *Context) error {
	if a.postStop != nil {
		return a.postStop(ctx)
	}
	return nil
}

func (a *hookActor) PreRestart(ctx *Context, cause error) error {
	if a.preRestart != nil {
		return a.preRestart(ctx, cause)
	}
	return nil
}

func (a *hookActor) PostRestart(ctx *Context, cause error) error {
	if a.postRestart != nil {
		return a.postRestart(ctx, cause)
	}
	return nil
}

func (a *hookActor) Receive(ctx *Context, msg Message) {
	if a.receive != nil {
		a.receive(ctx, msg)
	}
}

func TestRestartHooks(t *testing.T) {
	sys := newTestSystem(t)
	log := &eventLog{}
	cause := errors.New("boom")

	pid, err := sys.ActorOf(NewProps(func() Actor {
		return &hookActor{
			preStart: func(_ *Context) error { log.add("preStart"); return nil },
			postStop: func(_ *Context) error { log.add("postStop"); return nil },
			preRestart: func(_ *Context, c error) error {
				log.add("preRestart:" + c.Error())
				return nil
			},
			postRestart: func(_ *Context, c error) error {
				log.add("postRestart:" + c.Error())
				return nil
			},
			receive: func(_ *Context, msg Message) {
				if _, ok := msg.(*PanicMessage); ok {
					panic(cause)
				}
			},
		}
	}), "hooks")
	require.NoError(t, err)

	pid.Tell(&PanicMessage{}, nil)
	assert.Eventually(t, func() bool { return len(log.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	sys.Stop(pid)
	waitTerminated(t, pid)

	assert.Equal(t, []string{
		"preStart",
		"preRestart:panic: boom",
		"postRestart:panic: boom",
		"postStop",
	}, log.snapshot())
}

func TestPreStartFailure(t *testing.T) {
	sys := newTestSystem(t)

	var postStopped atomic.Bool
	pid, err := sys.ActorOf(NewProps(func() Actor {
		return &hookActor{
			preStart: func(_ *Context) error { return errors.New("no database") },
			postStop: func(_ *Context) error { postStopped.Store(true); return nil },
		}
	}), "broken")
	require.NoError(t, err, "start failures are asynchronous")

	waitTerminated(t, pid)
	assert.Equal(t, StateFailed, pid.cell.state.Load())
	assert.False(t, postStopped.Load(), "postStop does not run for an actor that never started")

	_, ok := sys.Lookup("/user/broken")
	assert.False(t, ok)
}

func TestPostStopErrorStillStops(t *testing.T) {
	sys := newTestSystem(t)

	pid, err := sys.ActorOf(NewProps(func() Actor {
		return &hookActor{
			postStop: func(_ *Context) error { panic("cleanup exploded") },
		}
	}), "messy")
	require.NoError(t, err)

	sys.Stop(pid)
	waitTerminated(t, pid)
	assert.Equal(t, StateStopped, pid.cell.state.Load())
}

func TestContextCancelledOnStop(t *testing.T) {
	sys := newTestSystem(t)

	ctxCh := make(chan *Context, 1)
	pid, err := sys.ActorOf(NewProps(func() Actor {
		return &hookActor{
			preStart: func(ctx *Context) error { ctxCh <- ctx; return nil },
		}
	}), "ctx")
	require.NoError(t, err)

	actx := <-ctxCh
	assert.NoError(t, actx.Context().Err())
	assert.Equal(t, "/user", actx.Parent().Path())
	assert.True(t, actx.Self().Equals(pid))
	assert.Equal(t, "test", actx.System().Name())

	sys.Stop(pid)
	waitTerminated(t, pid)
	assert.Error(t, actx.Context().Err())
}

func TestFirstMessageAfterPreStart(t *testing.T) {
	sys := newTestSystem(t)

	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("early-%d", i)
		path := "/user/" + name

		var started atomic.Bool
		replied := make(chan bool, 1)
		props := NewProps(func() Actor {
			return &hookActor{
				preStart: func(*Context) error {
					started.Store(true)
					return nil
				},
				receive: func(_ *Context, msg Message) {
					if _, ok := msg.(*PingMessage); ok {
						replied <- started.Load()
					}
				},
			}
		})

		found := make(chan *PID, 1)
		go func() {
			for {
				if pid, ok := sys.Lookup(path); ok {
					// 注册一可见就发送，消息必须排在 Start 之后
					pid.Tell(&PingMessage{}, nil)
					found <- pid
					return
				}
			}
		}()

		_, err := sys.ActorOf(props, name)
		require.NoError(t, err)

		select {
		case <-found:
		case <-time.After(time.Second):
			t.Fatal("spawned actor never became visible")
		}
		select {
		case ok := <-replied:
			assert.True(t, ok, "message handled before PreStart")
		case <-time.After(time.Second):
			t.Fatal("first message was not handled")
		}
	}
}
