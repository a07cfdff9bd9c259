package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// EventMask enumerates the listener event kinds (§3, §6).
type EventMask uint32

const (
	EventTopicPublish EventMask = 1 << iota
	EventTopicUnpublish
	EventTopicProperties
	EventValueLocal
	EventValueRemote
	EventImmediate
	EventConnected
	EventDisconnected
	EventLog

	// EventTopic is the convenience union of the three topic-class
	// events, mirroring the "topic" mask group user code typically asks
	// for together.
	EventTopic = EventTopicPublish | EventTopicUnpublish | EventTopicProperties

	// EventValue is the convenience union of both value-origin events.
	EventValue = EventValueLocal | EventValueRemote
)

// TopicInfo is an immutable snapshot of a topic's network-visible state,
// handed to listeners instead of a live *Topic so dispatch never races a
// concurrent mutation once the instance mutex is released.
type TopicInfo struct {
	Handle     handle.Handle
	Name       string
	Type       value.Type
	TypeString string
	Properties map[string]any
	Flags      Flags
	LastValue  value.Value
}

func snapshotTopic(t *Topic) TopicInfo {
	props := make(map[string]any, len(t.Properties))
	for k, v := range t.Properties {
		props[k] = v
	}
	return TopicInfo{
		Handle:     t.Handle,
		Name:       t.Name,
		Type:       t.Type,
		TypeString: t.TypeString,
		Properties: props,
		Flags:      t.Flags,
		LastValue:  t.LastValue,
	}
}

// Event is what a listener receives. Which fields are meaningful depends
// on Kind.
type Event struct {
	Kind           EventMask
	Topic          TopicInfo
	Value          value.Value
	PropertyUpdate map[string]any
	Message        string // EventLog
	ClientName     string // EventConnected / EventDisconnected
}

// Listener is (handle, mask, target) (§3). Delivery always goes through
// Events, a per-listener buffered channel: AddListenerFunc additionally
// spawns a goroutine draining it serially into a callback (the "Thread"
// delivery target from Design Notes §9); AddListenerPoll leaves it for the
// caller to drain via ReadListenerQueue (the "Poller"
// delivery target). Both modes share one mechanism, so ordering and
// backpressure behave identically either way.
type Listener struct {
	Handle handle.Handle
	Mask   EventMask

	// Target identifies what this listener watches: a single topic
	// handle, a subscriber/multi-subscriber handle, or (if both are
	// Invalid) a set of prefixes matched the same way a multi-subscriber
	// would be.
	TopicTarget handle.Handle
	SubTarget   handle.Handle
	Prefixes    []string

	Events chan Event

	stopDispatch chan struct{}
}

func newListener(h handle.Handle, mask EventMask, bufSize int) *Listener {
	if bufSize < 1 {
		bufSize = 64
	}
	return &Listener{Handle: h, Mask: mask, Events: make(chan Event, bufSize)}
}

// enqueue is best-effort: a listener that never drains its queue stalls
// its own events only, never the instance mutex (the send happens after
// the lock is released, per §4.3's external-callback discipline) — but to
// avoid an unbounded goroutine leak we drop the oldest queued event rather
// than block forever.
func (l *Listener) enqueue(e Event) {
	select {
	case l.Events <- e:
		return
	default:
	}
	select {
	case <-l.Events:
	default:
	}
	select {
	case l.Events <- e:
	default:
	}
}

func (l *Listener) matchesMask(kind EventMask) bool {
	return l.Mask&kind != 0
}
