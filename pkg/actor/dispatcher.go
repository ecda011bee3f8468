package actor

import (
	"sync"

	"go.uber.org/atomic"
)

// DispatcherType 调度器类型
type DispatcherType int

const (
	// DispatcherDefault 默认调度器（每次排空邮箱使用一个新 goroutine）
	DispatcherDefault DispatcherType = iota
	// DispatcherShared 共享调度器（多个 Actor 共享 goroutine 池）
	DispatcherShared
)

// String 返回调度器名称
func (d DispatcherType) String() string {
	switch d {
	case DispatcherDefault:
		return "default"
	case DispatcherShared:
		return "shared"
	default:
		return "unknown"
	}
}

// Dispatcher 把“有消息到达”与“何时执行”解耦
// 邮箱从空闲变为有可处理消息时提交一个排空任务
type Dispatcher interface {
	// Schedule 提交任务，不阻塞
	Schedule(task func())
	// Shutdown 等待已提交任务结束并释放资源
	Shutdown()
}

// goroutineDispatcher 每个任务一个 goroutine
type goroutineDispatcher struct {
	wg sync.WaitGroup
}

func newGoroutineDispatcher() *goroutineDispatcher {
	return &goroutineDispatcher{}
}

func (d *goroutineDispatcher) Schedule(task func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		task()
	}()
}

func (d *goroutineDispatcher) Shutdown() {
	d.wg.Wait()
}

// poolDispatcher 固定数量的 worker 从任务队列取任务
// 队列满时退化为临时 goroutine，调度永不阻塞
type poolDispatcher struct {
	tasks   chan func()
	wg      sync.WaitGroup
	extra   sync.WaitGroup
	closed  atomic.Bool
	closeMu sync.RWMutex
}

func newPoolDispatcher(workers, queueSize int) *poolDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 64
	}
	d := &poolDispatcher{
		tasks: make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *poolDispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		task()
	}
}

func (d *poolDispatcher) Schedule(task func()) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if !d.closed.Load() {
		select {
		case d.tasks <- task:
			return
		default:
		}
	}
	d.extra.Add(1)
	go func() {
		defer d.extra.Done()
		task()
	}()
}

func (d *poolDispatcher) Shutdown() {
	d.closeMu.Lock()
	if d.closed.CompareAndSwap(false, true) {
		close(d.tasks)
	}
	d.closeMu.Unlock()

	d.wg.Wait()
	d.extra.Wait()
}
