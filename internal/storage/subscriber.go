package storage

import (
	"strings"

	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// Subscriber is (topic, type, type_string, options, poll storage) (§3). A
// single-topic subscriber always has Topic set; MultiSubscriber (below)
// covers the prefix-matching case instead of overloading this type, since
// the two have materially different matching and storage needs.
type Subscriber struct {
	Handle     handle.Handle
	Topic      *Topic
	Type       value.Type
	TypeString string
	Options    Options
	Poll       *Poll

	// Disabled is true when the subscriber's requested type doesn't match
	// the topic's current type (§4.3 subscribe rule); it still exists but
	// delivers nothing until types align.
	Disabled bool
}

// MultiSubscriber holds prefix patterns instead of a single topic and
// matches many topics at once (§3, §4.4).
type MultiSubscriber struct {
	Handle   handle.Handle
	Prefixes []string
	Type     value.Type // Unassigned for multi-subscribers (untyped by construction)
	Options  Options
	Poll     *Poll
}

// Matches reports whether name is matched by one of ms's prefixes,
// honoring the special-namespace rule: a name starting with '$' is only
// matched by a prefix that itself starts with '$' (§4.4).
func (ms *MultiSubscriber) Matches(name string) bool {
	special := IsSpecial(name)
	for _, p := range ms.Prefixes {
		if special && !IsSpecial(p) {
			continue
		}
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
