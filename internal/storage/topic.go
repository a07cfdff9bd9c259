package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// Flags is the bitset derived from a topic's properties (§3).
type Flags uint8

const (
	FlagPersistent Flags = 1 << iota
	FlagRetained
	FlagUncached
)

// Topic is server-unique by name; the name is the primary key (§3).
type Topic struct {
	Handle handle.Handle
	Name   string

	Type       value.Type
	TypeString string

	// Properties is the JSON object backing this topic; unrecognized keys
	// are preserved verbatim alongside the recognized persistent/
	// retained/cached keys.
	Properties map[string]any
	Flags      Flags

	LastValue value.Value

	Publishers  map[handle.Handle]*Publisher
	Subscribers map[handle.Handle]*Subscriber

	// ID is the server-assigned 32-bit topic id (0 until announced).
	ID uint32

	// announced is true once a network identity exists for this topic,
	// either because a local publish was advertised or because a remote
	// announce (§4.3 server_announce) established one.
	announced bool

	// disabledPublisher holds a publisher that lost a type race and is
	// suppressed (§4.3 rule 2) until it can be promoted back.
	disabledPublisher *Publisher
}

func newTopic(h handle.Handle, name string) *Topic {
	return &Topic{
		Handle:      h,
		Name:        name,
		Properties:  map[string]any{},
		Publishers:  map[handle.Handle]*Publisher{},
		Subscribers: map[handle.Handle]*Subscriber{},
	}
}

// Exists reports whether the topic is visible to GetTopics: it has a
// published type, or a retained/persistent value (§3 lifecycle rule).
func (t *Topic) Exists() bool {
	if len(t.Publishers) > 0 || t.announced {
		return true
	}
	if t.Type == value.Unassigned {
		return false
	}
	if t.Flags&(FlagPersistent|FlagRetained) != 0 && !t.LastValue.Empty() {
		return true
	}
	return false
}

// IsSpecial reports whether the topic name begins with '$' (§4.4 special
// namespace rule).
func IsSpecial(name string) bool {
	return len(name) > 0 && name[0] == '$'
}

// recognizedPropertyKeys that drive Flags computation; all others pass
// through Properties verbatim.
const (
	propPersistent = "persistent"
	propRetained   = "retained"
	propCached     = "cached"
)

// computeFlags derives Flags from Properties. cached defaults to true, so
// FlagUncached is set only when the property is explicitly false.
func computeFlags(props map[string]any) Flags {
	var f Flags
	if b, ok := props[propPersistent].(bool); ok && b {
		f |= FlagPersistent
	}
	if b, ok := props[propRetained].(bool); ok && b {
		f |= FlagRetained
	}
	if b, ok := props[propCached].(bool); ok && !b {
		f |= FlagUncached
	}
	return f
}

func (t *Topic) recomputeFlags() {
	t.Flags = computeFlags(t.Properties)
}

// mergeProperties applies update on top of Properties: JSON null deletes
// the key, anything else sets it (§4.3 server_properties_update).
func (t *Topic) mergeProperties(update map[string]any) {
	for k, v := range update {
		if v == nil {
			delete(t.Properties, k)
			continue
		}
		t.Properties[k] = v
	}
	t.recomputeFlags()
}
