package storage

import "github.com/jabolina/networktables/internal/handle"

// Options holds the pub/sub options enumerated in §4.4. Not every field
// applies to every caller (e.g. SendAll is publisher-only, DisableRemote is
// subscriber-only); callers set only the fields relevant to the operation
// they're performing.
type Options struct {
	// PeriodicMs is the minimum interval, in milliseconds, at which the
	// network layer should flush pending sends for this publisher or
	// subscriber. Default 100.
	PeriodicMs int

	// PollStorage is the subscriber's ring size. Default 1.
	PollStorage int

	// SendAll: publisher-only. Every set, even a duplicate, is sent.
	SendAll bool

	// KeepDuplicates disables duplicate suppression (§4.3).
	KeepDuplicates bool

	// DisableRemote: subscriber-only. Ignore remote-originated values.
	DisableRemote bool

	// DisableLocal: subscriber-only. Ignore local-originated values.
	DisableLocal bool

	// ExcludePublisher: subscriber-only. Drop values whose originating
	// publisher matches this handle.
	ExcludePublisher handle.Handle

	// ExcludeSelf: entry-only. The entry's own publisher never delivers
	// back to its own subscriber.
	ExcludeSelf bool

	// TopicsOnly: subscriber-only. Don't request value frames, only
	// announcements.
	TopicsOnly bool

	// PrefixMatch: multi-subscriber-only. Match any topic whose name
	// begins with any of the prefixes.
	PrefixMatch bool

	// All mirrors the wire `subscribe.options.all` flag (§6). internal/client
	// forwards it on the subscribe message; local storage and the server
	// core do not read it.
	All bool
}

// DefaultOptions returns the default option set (periodic=100ms,
// pollStorage=1, every boolean false).
func DefaultOptions() Options {
	return Options{PeriodicMs: 100, PollStorage: 1}
}

func (o Options) pollSize() int {
	if o.PollStorage < 1 {
		return 1
	}
	return o.PollStorage
}
