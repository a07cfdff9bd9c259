package storage

import "github.com/jabolina/networktables/internal/value"

// NetSink is the boundary between local storage and the network layer
// (§2 "Data flow, local value set"). Local storage calls these hooks
// synchronously but only after releasing its mutex (§4.3 "release before
// invoking any external callback"); the network layer (internal/net,
// internal/server, internal/client) implements NetSink and translates
// these calls into wire control/value messages. Local storage never
// constructs a wire message itself.
type NetSink interface {
	// OnPublish is called when a new, assigned-type publisher is created
	// (or an existing disabled publisher is promoted after its rival
	// departs). It is NOT called while the publisher remains disabled.
	OnPublish(pub *Publisher)

	// OnUnpublish is called when a publisher is removed, whether or not
	// it had ever been advertised. remaining is the count of still-active
	// publishers left on pub.Topic, captured under the storage lock before
	// the sink is invoked, so implementations never need to read
	// pub.Topic.Publishers themselves (it is mutated by the storage
	// goroutine with no synchronization visible outside the lock).
	OnUnpublish(pub *Publisher, remaining int)

	// OnSetProperties is called after a local property mutation.
	OnSetProperties(topic *Topic, update map[string]any)

	// OnSubscribe / OnUnsubscribe / OnSubscribeMulti / OnUnsubscribeMulti
	// mirror the corresponding local storage operations.
	OnSubscribe(sub *Subscriber)
	OnUnsubscribe(sub *Subscriber)
	OnSubscribeMulti(ms *MultiSubscriber)
	OnUnsubscribeMulti(ms *MultiSubscriber)

	// OnValue is called for a successful, non-suppressed set_entry_value,
	// unless the local options (excludeSelf/excludePublisher, handled by
	// the caller-side network layer) say otherwise.
	OnValue(pub *Publisher, v value.Value)
}

// NopSink is a NetSink that does nothing, used when an Instance runs in
// pure local-only mode (no network layer attached).
type NopSink struct{}

func (NopSink) OnPublish(*Publisher)                   {}
func (NopSink) OnUnpublish(*Publisher, int)            {}
func (NopSink) OnSetProperties(*Topic, map[string]any) {}
func (NopSink) OnSubscribe(*Subscriber)                {}
func (NopSink) OnUnsubscribe(*Subscriber)              {}
func (NopSink) OnSubscribeMulti(*MultiSubscriber)      {}
func (NopSink) OnUnsubscribeMulti(*MultiSubscriber)    {}
func (NopSink) OnValue(*Publisher, value.Value)        {}

// DataLogObserver is the write-through sink attached by start_data_log
// (§4.3). A concrete implementation lives in internal/datalog, backed by a
// Kafka producer (see SPEC_FULL.md's DOMAIN STACK).
type DataLogObserver interface {
	// LogValue is called for every accepted value on a matching topic.
	LogValue(topic *Topic, v value.Value)
	// LogTopic is called when a matching topic's metadata (type,
	// properties) changes, including first creation.
	LogTopic(topic *Topic)
	Close() error
}
