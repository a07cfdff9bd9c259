package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// Entry is a convenience pairing of a publisher and a subscriber on one
// topic, addressed by a single handle (§3). The subscriber side is created
// eagerly (so a reader can see the current value immediately); the
// publisher side is deferred until the first successful set_entry_value,
// per §4.3 get_entry.
type Entry struct {
	Handle     handle.Handle
	Topic      *Topic
	Type       value.Type // may be Unassigned: the first set determines it
	TypeString string
	Options    Options

	SubHandle handle.Handle
	PubHandle handle.Handle // handle.Invalid until the first successful set
}
