package actor

import (
	"time"
)

// DeadLetter 无法投递的消息
// 发布到 /system/deadLetters，订阅者收到的就是它
type DeadLetter struct {
	Message           Message
	OriginalSender    ActorRef
	OriginalRecipient ActorRef
	Reason            string
	RetryCount        int
	Timestamp         time.Time
}

// Kind 实现 Message 接口
func (*DeadLetter) Kind() string { return "system.dead_letter" }

// deadLetterFrom 由投递失败的信封构建死信
func deadLetterFrom(env *Envelope, reason string) *DeadLetter {
	return &DeadLetter{
		Message:           env.Payload,
		OriginalSender:    env.Sender,
		OriginalRecipient: env.Recipient,
		Reason:            reason,
		RetryCount:        env.RetryCount,
		Timestamp:         time.Now(),
	}
}

type subscribeDeadLetters struct{ ref ActorRef }

func (*subscribeDeadLetters) Kind() string { return "system.dead_letters.subscribe" }

type unsubscribeDeadLetters struct{ ref ActorRef }

func (*unsubscribeDeadLetters) Kind() string { return "system.dead_letters.unsubscribe" }

type deadLettersAck struct{}

func (*deadLettersAck) Kind() string { return "system.dead_letters.ack" }

// deadLetterSink 死信汇聚 Actor
// 记录死信日志并转发给订阅者；订阅者被监控，终止后自动移除
type deadLetterSink struct {
	logging     bool
	subscribers map[string]ActorRef
}

func newDeadLetterSink(logging bool) *deadLetterSink {
	return &deadLetterSink{
		logging:     logging,
		subscribers: make(map[string]ActorRef),
	}
}

func (d *deadLetterSink) Receive(ctx *Context, msg Message) {
	switch m := msg.(type) {
	case *DeadLetter:
		if d.logging {
			ctx.Logger().Warn("dead letter",
				"kind", m.Message.Kind(),
				"recipient", refPath(m.OriginalRecipient),
				"sender", refPath(m.OriginalSender),
				"reason", m.Reason)
		}
		for _, sub := range d.subscribers {
			sub.Tell(m, nil)
		}

	case *subscribeDeadLetters:
		if _, ok := d.subscribers[m.ref.Path()]; !ok {
			d.subscribers[m.ref.Path()] = m.ref
			ctx.Watch(m.ref)
		}
		ctx.Reply(&deadLettersAck{})

	case *unsubscribeDeadLetters:
		if _, ok := d.subscribers[m.ref.Path()]; ok {
			delete(d.subscribers, m.ref.Path())
			ctx.Unwatch(m.ref)
		}
		ctx.Reply(&deadLettersAck{})

	case *Terminated:
		delete(d.subscribers, m.Ref.Path())
	}
}

func refPath(ref ActorRef) string {
	if isNil(ref) {
		return ""
	}
	return ref.Path()
}

// ============== System 死信接口 ==============

// deadLetter 把投递失败的信封发布到死信 Actor
// 死信本身投递失败时只记录日志
func (s *System) deadLetter(env *Envelope, reason string) {
	s.stats.deadLetters.Inc()

	if dl, ok := env.Payload.(*DeadLetter); ok {
		if s.config.EnableDeadLetterLogging {
			s.logger.Warn("dead letter dropped",
				"kind", dl.Message.Kind(),
				"recipient", refPath(dl.OriginalRecipient),
				"reason", reason)
		}
		return
	}

	sink := s.deadLetters
	if sink == nil || sink.state.Terminal() {
		if s.config.EnableDeadLetterLogging {
			s.logger.Warn("dead letter",
				"kind", env.Payload.Kind(),
				"recipient", refPath(env.Recipient),
				"reason", reason)
		}
		return
	}
	sink.self.Tell(deadLetterFrom(env, reason), nil)
}

// DeadLetters 死信 Actor 的引用
func (s *System) DeadLetters() *PID {
	if s.deadLetters == nil {
		return nil
	}
	return s.deadLetters.self
}

// SubscribeDeadLetters 订阅死信，订阅者收到 *DeadLetter 消息
// 订阅者终止后自动取消订阅
func (s *System) SubscribeDeadLetters(ref ActorRef) error {
	if isNil(ref) {
		return &ValidationError{Field: "subscriber", Reason: "must not be nil"}
	}
	_, err := s.Request(s.DeadLetters(), &subscribeDeadLetters{ref: ref}, 0)
	return err
}

// UnsubscribeDeadLetters 取消订阅
func (s *System) UnsubscribeDeadLetters(ref ActorRef) error {
	if isNil(ref) {
		return &ValidationError{Field: "subscriber", Reason: "must not be nil"}
	}
	_, err := s.Request(s.DeadLetters(), &unsubscribeDeadLetters{ref: ref}, 0)
	return err
}
