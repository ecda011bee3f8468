package actor

// ============== 系统信号 ==============
//
// 信号是封闭集合，只能由本包定义。它们总是以 System 类别入队，
// Kill 和 Escalate 为高优先级，不受邮箱挂起影响。

// Signal 系统信号接口
type Signal interface {
	Message
	isSignal()
}

// Start 启动 Actor，由运行时在创建后发送
type Start struct{}

// Kind 实现 Message 接口
func (*Start) Kind() string { return "system.start" }
func (*Start) isSignal()    {}

// Stop 优雅停止：处理完当前消息后进入停止流程
type Stop struct{}

// Kind 实现 Message 接口
func (*Stop) Kind() string { return "system.stop" }
func (*Stop) isSignal()    {}

// Restart 要求 Actor 重启，AllForOne 策略用它通知兄弟 Actor
type Restart struct {
	Cause error
}

// Kind 实现 Message 接口
func (*Restart) Kind() string { return "system.restart" }
func (*Restart) isSignal()    {}

// Suspend 挂起邮箱，投递时立即生效
type Suspend struct{}

// Kind 实现 Message 接口
func (*Suspend) Kind() string { return "system.suspend" }
func (*Suspend) isSignal()    {}

// Resume 恢复邮箱，投递时立即生效
type Resume struct{}

// Kind 实现 Message 接口
func (*Resume) Kind() string { return "system.resume" }
func (*Resume) isSignal()    {}

// Kill 立即停止（高优先级，越过已排队的普通消息）
type Kill struct{}

// Kind 实现 Message 接口
func (*Kill) Kind() string { return "system.kill" }
func (*Kill) isSignal()    {}

// PoisonPill 毒丸消息，排在已发送的消息之后，处理到时停止 Actor
type PoisonPill struct{}

// Kind 实现 Message 接口
func (*PoisonPill) Kind() string { return "system.poison_pill" }
func (*PoisonPill) isSignal()    {}

// Escalate 子 Actor 把无法处理的失败上报给父 Actor
type Escalate struct {
	Cause error
	Child ActorRef
}

// Kind 实现 Message 接口
func (*Escalate) Kind() string { return "system.escalate" }
func (*Escalate) isSignal()    {}

// ChildTerminated 子 Actor 已终止，父 Actor 的 Receive 会收到此信号
type ChildTerminated struct {
	Child ActorRef
}

// Kind 实现 Message 接口
func (*ChildTerminated) Kind() string { return "system.child_terminated" }
func (*ChildTerminated) isSignal()    {}

// SystemFailure 外部协作者注入的失败，按普通失败交给监督策略
type SystemFailure struct {
	Cause error
}

// Kind 实现 Message 接口
func (*SystemFailure) Kind() string { return "system.failure" }
func (*SystemFailure) isSignal()    {}

// ============== 运行时通知 ==============

// Terminated 被监控的 Actor 终止通知
type Terminated struct {
	Ref ActorRef
}

// Kind 实现 Message 接口
func (*Terminated) Kind() string { return "system.terminated" }

// classify 推导消息的信封类别和优先级
func classify(msg Message) (EnvelopeType, Priority) {
	switch msg.(type) {
	case *Kill, *Escalate, *Start:
		return EnvelopeSystem, PriorityHigh
	case *PoisonPill:
		return EnvelopeSystem, PriorityLow
	case Signal:
		return EnvelopeSystem, PriorityNormal
	case *Terminated:
		return EnvelopeSignal, PriorityNormal
	case *DeadLetter:
		return EnvelopeNormal, PriorityLow
	default:
		return EnvelopeNormal, PriorityNormal
	}
}
