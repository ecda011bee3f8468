package actor

import "go.uber.org/atomic"

// State Actor 生命周期状态
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateSuspended
	StateRestarting
	StateStopping
	StateStopped
	StateFailed
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateRestarting:
		return "Restarting"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal Stopped 和 Failed 是终态
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// legalTransitions 合法的状态迁移
var legalTransitions = map[State][]State{
	StateNew:        {StateStarting},
	StateStarting:   {StateRunning, StateFailed},
	StateRunning:    {StateSuspended, StateRestarting, StateStopping},
	StateSuspended:  {StateRunning, StateRestarting, StateStopping},
	StateRestarting: {StateRunning, StateFailed},
	StateStopping:   {StateStopped},
}

// CanTransition 检查 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// lifecycle 原子状态机
// 所有迁移都是 compare-and-set，两个并发迁移不会同时成功
type lifecycle struct {
	state atomic.Int32
}

// Load 当前状态
func (l *lifecycle) Load() State {
	return State(l.state.Load())
}

// Terminal 是否处于终态
func (l *lifecycle) Terminal() bool {
	return l.Load().Terminal()
}

// Transition 当前状态为 from 时迁移到 to
// 迁移不合法或前置条件不满足时返回 false，不产生任何效果
func (l *lifecycle) Transition(from, to State) bool {
	if !CanTransition(from, to) {
		return false
	}
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// TransitionAny 当前状态为 froms 之一时迁移到 to，返回迁移前的状态
func (l *lifecycle) TransitionAny(to State, froms ...State) (State, bool) {
	for {
		cur := l.Load()
		matched := false
		for _, from := range froms {
			if cur == from {
				matched = true
				break
			}
		}
		if !matched || !CanTransition(cur, to) {
			return cur, false
		}
		if l.state.CompareAndSwap(int32(cur), int32(to)) {
			return cur, true
		}
	}
}

// ForceStop 把任意非终态强制置为 Stopped，返回是否发生了迁移
func (l *lifecycle) ForceStop() bool {
	for {
		cur := l.Load()
		if cur.Terminal() {
			return false
		}
		if l.state.CompareAndSwap(int32(cur), int32(StateStopped)) {
			return true
		}
	}
}
