package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterCollector 把收到的死信写入通道
func letterCollector(t *testing.T, sys *System, name string) (*PID, chan *DeadLetter) {
	t.Helper()
	letters := make(chan *DeadLetter, 16)
	pid := mustSpawn(t, sys, ActorFunc(func(_ *Context, msg Message) {
		if dl, ok := msg.(*DeadLetter); ok {
			select {
			case letters <- dl:
			default:
			}
		}
	}), name)
	return pid, letters
}

func nextLetter(t *testing.T, letters <-chan *DeadLetter) *DeadLetter {
	t.Helper()
	select {
	case dl := <-letters:
		return dl
	case <-time.After(2 * time.Second):
		t.Fatal("no dead letter received")
		return nil
	}
}

func TestDeadLettersPath(t *testing.T) {
	sys := newTestSystem(t)
	require.NotNil(t, sys.DeadLetters())
	assert.Equal(t, "/system/deadLetters", sys.DeadLetters().Path())
}

func TestDeadLetterForTerminatedActor(t *testing.T) {
	sys := newTestSystem(t)

	sub, letters := letterCollector(t, sys, "collector")
	require.NoError(t, sys.SubscribeDeadLetters(sub))

	target := mustSpawn(t, sys, &EchoActor{}, "target")
	sys.Stop(target)
	waitTerminated(t, target)

	sender := mustSpawn(t, sys, &EchoActor{}, "sender")
	target.Tell(&EchoMessage{Text: "hello"}, sender)

	dl := nextLetter(t, letters)
	assert.Equal(t, &EchoMessage{Text: "hello"}, dl.Message)
	assert.Equal(t, "/user/target", dl.OriginalRecipient.Path())
	assert.Equal(t, "/user/sender", dl.OriginalSender.Path())
	assert.NotEmpty(t, dl.Reason)
	assert.False(t, dl.Timestamp.IsZero())
}

func TestDeadLetterOnDropNew(t *testing.T) {
	sys := newTestSystem(t)

	sub, letters := letterCollector(t, sys, "collector")
	require.NoError(t, sys.SubscribeDeadLetters(sub))

	release := make(chan struct{})
	pid, err := sys.ActorOf(PropsFromFunc(func(_ *Context, msg Message) {
		if _, ok := msg.(*PingMessage); ok {
			<-release
		}
	}).WithMailbox(2, OverflowDropNew), "small")
	require.NoError(t, err)
	defer close(release)

	pid.Tell(&PingMessage{}, nil)
	assert.Eventually(t, func() bool { return pid.cell.mailbox.Len() == 0 }, time.Second, time.Millisecond)

	for i := 1; i <= 3; i++ {
		pid.Tell(&CountMessage{Value: i}, nil)
	}

	dl := nextLetter(t, letters)
	assert.Equal(t, &CountMessage{Value: 3}, dl.Message)
	assert.Equal(t, "mailbox overflow", dl.Reason)

	select {
	case extra := <-letters:
		t.Fatalf("unexpected dead letter %v", extra.Message)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestUnsubscribeDeadLetters(t *testing.T) {
	sys := newTestSystem(t)

	sub, letters := letterCollector(t, sys, "collector")
	require.NoError(t, sys.SubscribeDeadLetters(sub))
	require.NoError(t, sys.UnsubscribeDeadLetters(sub))

	target := mustSpawn(t, sys, &EchoActor{}, "target")
	sys.Stop(target)
	waitTerminated(t, target)
	target.Tell(&PingMessage{}, nil)

	select {
	case dl := <-letters:
		t.Fatalf("unsubscribed collector received %v", dl.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeadLetterSubscriberTerminated(t *testing.T) {
	sys := newTestSystem(t)

	sub, _ := letterCollector(t, sys, "collector")
	require.NoError(t, sys.SubscribeDeadLetters(sub))

	sink := sys.deadLetters
	assert.Equal(t, 1, sys.watches.watching(sink.self))

	sys.Stop(sub)
	waitTerminated(t, sub)
	assert.Eventually(t, func() bool { return sys.watches.watching(sink.self) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeDeadLettersValidation(t *testing.T) {
	sys := newTestSystem(t)

	var ve *ValidationError
	assert.ErrorAs(t, sys.SubscribeDeadLetters(nil), &ve)
	assert.ErrorAs(t, sys.UnsubscribeDeadLetters(nil), &ve)
}

func TestDeadLetterCounter(t *testing.T) {
	sys := newTestSystem(t)

	target := mustSpawn(t, sys, &EchoActor{}, "target")
	sys.Stop(target)
	waitTerminated(t, target)

	before := sys.Stats().DeadLetters
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, target.TrySend(&PingMessage{}, nil), ErrActorTerminated)
	}
	assert.Equal(t, before+5, sys.Stats().DeadLetters)
}

func TestDeadLetterOfDeadLetterIsDropped(t *testing.T) {
	sys := newTestSystem(t)

	env, err := NewEnvelope(&DeadLetter{Message: &PingMessage{}}, nil, sys.DeadLetters(), EnvelopeNormal, PriorityLow)
	require.NoError(t, err)

	before := sys.Stats().DeadLetters
	sys.deadLetter(env, "test")
	assert.Equal(t, before+1, sys.Stats().DeadLetters)
}
