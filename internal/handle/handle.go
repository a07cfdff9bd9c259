// Package handle implements the opaque 32-bit handle table (§4.2): stable
// integer identities for topics, publishers, subscribers, entries,
// listeners, pollers and data-loggers, allocated from a per-instance arena.
package handle

// Subtype tags the kind of object a Handle refers to.
type Subtype uint8

const (
	_ Subtype = iota // 0 reserved so the zero Handle is always invalid
	Topic
	Publisher
	Subscriber
	MultiSubscriber
	Entry
	Listener
	ListenerPoller
	DataLogger
)

// Handle is an opaque identity encoding (instance_index:8, subtype:8,
// object_index:16). The zero Handle is always invalid.
type Handle uint32

// Invalid is the always-invalid handle (zero value).
const Invalid Handle = 0

// Make builds a Handle from its three fields.
func Make(instance uint8, subtype Subtype, index uint16) Handle {
	return Handle(uint32(instance)<<24 | uint32(subtype)<<16 | uint32(index))
}

func (h Handle) Instance() uint8  { return uint8(h >> 24) }
func (h Handle) Subtype() Subtype { return Subtype(uint8(h >> 16)) }
func (h Handle) Index() uint16    { return uint16(h) }
func (h Handle) Valid() bool      { return h != Invalid }

type slot[T any] struct {
	live   bool
	object T
}

// Table is a per-instance, per-subtype arena. It is not safe for concurrent
// use on its own: every NT instance serializes access behind its own single
// mutex (§5), and Table relies on that discipline rather than locking
// itself, the way the teacher's connection pool (sync.Pool-backed) assumes
// its own single-owner access pattern.
type Table[T any] struct {
	instance uint8
	subtype  Subtype
	slots    []slot[T]
	free     []uint16
}

// NewTable creates an empty arena for the given instance and subtype.
func NewTable[T any](instance uint8, subtype Subtype) *Table[T] {
	return &Table[T]{instance: instance, subtype: subtype}
}

// Create allocates a new live slot and returns its handle. Released slots
// are reused before growing the arena, so object_index values are recycled
// only once the prior handle has been explicitly released by its owner —
// never while it might still be referenced.
func (t *Table[T]) Create(obj T) Handle {
	var idx uint16
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx] = slot[T]{live: true, object: obj}
	} else {
		idx = uint16(len(t.slots))
		t.slots = append(t.slots, slot[T]{live: true, object: obj})
	}
	return Make(t.instance, t.subtype, idx)
}

// Get returns the live object for h. ok is false for a dead handle, a
// handle of the wrong subtype/instance, or an out-of-range index — all
// silent-no-op conditions per §4.2.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	if !t.owns(h) {
		return zero, false
	}
	idx := h.Index()
	if int(idx) >= len(t.slots) || !t.slots[idx].live {
		return zero, false
	}
	return t.slots[idx].object, true
}

// Set overwrites the object stored at h's slot, returning false if h is
// dead or foreign.
func (t *Table[T]) Set(h Handle, obj T) bool {
	if !t.owns(h) {
		return false
	}
	idx := h.Index()
	if int(idx) >= len(t.slots) || !t.slots[idx].live {
		return false
	}
	t.slots[idx].object = obj
	return true
}

// Release frees h's slot for reuse. Returns false if h was already dead or
// foreign.
func (t *Table[T]) Release(h Handle) bool {
	if !t.owns(h) {
		return false
	}
	idx := h.Index()
	if int(idx) >= len(t.slots) || !t.slots[idx].live {
		return false
	}
	var zero T
	t.slots[idx] = slot[T]{live: false, object: zero}
	t.free = append(t.free, idx)
	return true
}

// Range iterates live entries in arena (creation) order — the order
// Design Question 3 in SPEC_FULL.md resolves multi-subscriber immediate-fire
// enumeration to. Stop iteration early by returning false.
func (t *Table[T]) Range(fn func(Handle, T) bool) {
	for idx := range t.slots {
		s := &t.slots[idx]
		if !s.live {
			continue
		}
		if !fn(Make(t.instance, t.subtype, uint16(idx)), s.object) {
			return
		}
	}
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].live {
			n++
		}
	}
	return n
}

func (t *Table[T]) owns(h Handle) bool {
	return h.Valid() && h.Instance() == t.instance && h.Subtype() == t.subtype
}
