package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// Publisher is (topic, type, type_string, properties_at_publish, options,
// active?) plus the monotonically increasing per-publisher sequence count
// used for periodic emission (§3).
type Publisher struct {
	Handle     handle.Handle
	Topic      *Topic
	Type       value.Type
	TypeString string

	// PropertiesAtPublish are the properties supplied to Publish, sent on
	// the wire `publish` control message.
	PropertiesAtPublish map[string]any
	Options             Options

	// Active is false when the publish was disabled due to a type
	// conflict (§4.3 rule 2).
	Active bool

	// Advertised is true once a `publish` control message has been
	// emitted for this publisher (suppressed while disabled).
	Advertised bool

	seq uint64

	// ClientUID is a slot for the owning connection's identity. No package
	// in this module sets or reads it; excludePublisher/excludeSelf
	// matching uses publisher and subscriber handles only.
	ClientUID string
}

// NextSeq increments and returns the publisher's sequence counter, used for
// periodic emission scheduling, not for ordering (§3).
func (p *Publisher) NextSeq() uint64 {
	p.seq++
	return p.seq
}
