package actor

import (
	"time"

	"github.com/google/uuid"
)

// EnvelopeType 信封类别
type EnvelopeType int

const (
	// EnvelopeNormal 普通用户消息
	EnvelopeNormal EnvelopeType = iota
	// EnvelopeSignal 运行时发给 Actor 的通知（如 Terminated），由 Receive 处理
	EnvelopeSignal
	// EnvelopeSystem 生命周期信号，由运行时处理
	EnvelopeSystem
)

// String 返回类别名称
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeNormal:
		return "Normal"
	case EnvelopeSignal:
		return "Signal"
	case EnvelopeSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// Priority 信封优先级
type Priority int

const (
	// PriorityLow 低优先级，排在同类别消息之后（死信、PoisonPill）
	PriorityLow Priority = iota
	// PriorityNormal 默认优先级
	PriorityNormal
	// PriorityHigh 高优先级，挂起时仍可入队和处理
	PriorityHigh
)

// String 返回优先级名称
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Envelope 消息信封
// 构建后不可修改，重试通过 WithRetry 生成新信封
type Envelope struct {
	ID         string
	Payload    Message
	Sender     ActorRef
	Recipient  ActorRef
	Type       EnvelopeType
	Priority   Priority
	RetryCount int
	Timestamp  time.Time
}

// NewEnvelope 构建信封
// payload 和 recipient 不能为空
func NewEnvelope(payload Message, sender, recipient ActorRef, typ EnvelopeType, priority Priority) (*Envelope, error) {
	if isNil(payload) {
		return nil, &ValidationError{Field: "envelope.payload", Reason: "must not be nil"}
	}
	if isNil(recipient) {
		return nil, &ValidationError{Field: "envelope.recipient", Reason: "must not be nil"}
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Payload:   payload,
		Sender:    sender,
		Recipient: recipient,
		Type:      typ,
		Priority:  priority,
		Timestamp: time.Now(),
	}, nil
}

// envelopeFor 按消息类型推导信封类别和优先级
func envelopeFor(payload Message, sender, recipient ActorRef) (*Envelope, error) {
	typ, prio := classify(payload)
	return NewEnvelope(payload, sender, recipient, typ, prio)
}

// WithRetry 返回 RetryCount+1 的新信封
func (e *Envelope) WithRetry() *Envelope {
	next := *e
	next.ID = uuid.NewString()
	next.RetryCount = e.RetryCount + 1
	next.Timestamp = time.Now()
	return &next
}

// IsHighPriority 是否可以绕过挂起
func (e *Envelope) IsHighPriority() bool {
	return e.Priority == PriorityHigh && e.Type != EnvelopeNormal
}

// class 邮箱内的排队类别，数值越大越先处理
//
//	System(High) > System > Signal(High) > Signal > Normal > Normal(Low)
func (e *Envelope) class() int {
	switch e.Type {
	case EnvelopeSystem:
		if e.Priority == PriorityHigh {
			return 5
		}
		if e.Priority == PriorityLow {
			// PoisonPill 与普通消息一起按 FIFO 排队
			return 1
		}
		return 4
	case EnvelopeSignal:
		if e.Priority == PriorityHigh {
			return 3
		}
		return 2
	default:
		if e.Priority == PriorityLow {
			return 0
		}
		return 1
	}
}

const envelopeClasses = 6

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case *PID:
		return x == nil
	case *promiseRef:
		return x == nil
	}
	return false
}
