// Package storage implements the local storage engine (§4.3): the topic
// registry, publisher/subscriber lifecycle, value propagation, listener
// dispatch, and data-log fanout, all behind a single per-instance mutex
// (§5). Every public method here acquires the mutex, mutates state, and
// releases it before invoking any external callback (a NetSink method, a
// DataLogObserver, or a listener's channel send) — mirroring the way the
// teacher's Server keeps its connection-table mutations and its
// logger/metrics side effects on separate sides of a lock boundary.
package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
	"github.com/rs/zerolog"
)

// Instance is one NetworkTables core: one topic graph, one handle arena
// set, one mutex. The host creates and drops it; there is no global state
// (Design Notes §9).
type Instance struct {
	mu sync.Mutex

	logger zerolog.Logger
	clock  func() int64
	sink   NetSink

	topics     map[string]*Topic
	topicTable *handle.Table[*Topic]

	pubTable     *handle.Table[*Publisher]
	subTable     *handle.Table[*Subscriber]
	multiTable   *handle.Table[*MultiSubscriber]
	entryTable   *handle.Table[*Entry]
	dataLogTable *handle.Table[*dataLogBinding]

	listenerTable *handle.Table[*Listener] // callback-mode
	pollerTable   *handle.Table[*Listener] // poll-mode
	listeners     map[handle.Handle]*Listener

	// excludeSelfPairs tracks (pubHandle, subHandle) pairs belonging to
	// the same Entry with ExcludeSelf set, so value delivery can skip an
	// entry's subscriber when its own publisher writes.
	excludeSelfPairs map[[2]handle.Handle]struct{}
}

type dataLogBinding struct {
	observer   DataLogObserver
	pathPrefix string
	logPrefix  string
}

// New creates a fresh Instance. instanceIdx distinguishes this instance's
// handles from any other Instance's in the same process (§4.2); clock
// supplies the host's monotonic microsecond counter (§3). A nil clock
// defaults to a wall-clock-derived counter, fine for tests and examples.
func New(instanceIdx uint8, logger zerolog.Logger, clock func() int64) *Instance {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMicro() }
	}
	return &Instance{
		logger: logger,
		clock:  clock,
		sink:   NopSink{},

		topics:     map[string]*Topic{},
		topicTable: handle.NewTable[*Topic](instanceIdx, handle.Topic),

		pubTable:     handle.NewTable[*Publisher](instanceIdx, handle.Publisher),
		subTable:     handle.NewTable[*Subscriber](instanceIdx, handle.Subscriber),
		multiTable:   handle.NewTable[*MultiSubscriber](instanceIdx, handle.MultiSubscriber),
		entryTable:   handle.NewTable[*Entry](instanceIdx, handle.Entry),
		dataLogTable: handle.NewTable[*dataLogBinding](instanceIdx, handle.DataLogger),

		listenerTable: handle.NewTable[*Listener](instanceIdx, handle.Listener),
		pollerTable:   handle.NewTable[*Listener](instanceIdx, handle.ListenerPoller),
		listeners:     map[handle.Handle]*Listener{},

		excludeSelfPairs: map[[2]handle.Handle]struct{}{},
	}
}

// AttachSink wires the network layer's outbound hook. Called once by the
// host after constructing both the Instance and its network layer (the two
// have a circular dependency that a setter breaks cleanly).
func (s *Instance) AttachSink(sink NetSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sink == nil {
		sink = NopSink{}
	}
	s.sink = sink
}

// Now returns the host clock's current reading.
func (s *Instance) Now() int64 { return s.clock() }

func run(actions []func()) {
	for _, a := range actions {
		a()
	}
}

// ---- topic lifecycle -------------------------------------------------

// GetOrCreateTopic is idempotent; an empty name returns Invalid (§4.3).
func (s *Instance) GetOrCreateTopic(name string) handle.Handle {
	if name == "" {
		return handle.Invalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateTopicLocked(name).Handle
}

func (s *Instance) getOrCreateTopicLocked(name string) *Topic {
	if t, ok := s.topics[name]; ok {
		return t
	}
	h := s.topicTable.Create(nil)
	t := newTopic(h, name)
	s.topicTable.Set(h, t)
	s.topics[name] = t
	return t
}

// GetTopicType returns the topic's current effective type, or
// value.Unassigned for an invalid handle.
func (s *Instance) GetTopicType(h handle.Handle) value.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topicTable.Get(h)
	if !ok {
		return value.Unassigned
	}
	return t.Type
}

// GetTopicInfo returns a snapshot of the topic, or false for an invalid
// handle or a topic that no longer Exists().
func (s *Instance) GetTopicInfo(h handle.Handle) (TopicInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topicTable.Get(h)
	if !ok || !t.Exists() {
		return TopicInfo{}, false
	}
	return snapshotTopic(t), true
}

// GetTopics returns snapshots of every existing topic whose name matches
// one of prefixes (an empty prefixes list matches everything).
func (s *Instance) GetTopics(prefixes []string) []TopicInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TopicInfo
	s.topicTable.Range(func(_ handle.Handle, t *Topic) bool {
		if !t.Exists() {
			return true
		}
		if len(prefixes) == 0 || matchesAnyPrefix(t.Name, prefixes) {
			out = append(out, snapshotTopic(t))
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func matchesAnyPrefix(name string, prefixes []string) bool {
	special := IsSpecial(name)
	for _, p := range prefixes {
		if special && !IsSpecial(p) {
			continue
		}
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
