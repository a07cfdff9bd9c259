package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// Publish implements §4.3 publish. An unassigned or empty type is rejected
// outright (rule 3); otherwise the topic either adopts this type (rule 1),
// matches it (fast path), or the publisher is created disabled pending a
// conflicting type (rule 2).
func (s *Instance) Publish(topicHandle handle.Handle, typ value.Type, typeStr string, properties map[string]any, opts Options) handle.Handle {
	if typ == value.Unassigned || typeStr == "" {
		s.logger.Error().Str("topic_handle", "invalid").Msg("local publish rejected: type is unassigned or empty")
		return handle.Invalid
	}
	s.mu.Lock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		s.mu.Unlock()
		return handle.Invalid
	}
	pub, actions := s.publishLocked(t, typ, typeStr, properties, opts)
	s.mu.Unlock()
	run(actions)
	return pub.Handle
}

// publishLocked creates the Publisher object and decides whether it starts
// active or disabled. Caller holds s.mu.
func (s *Instance) publishLocked(t *Topic, typ value.Type, typeStr string, properties map[string]any, opts Options) (*Publisher, []func()) {
	h := s.pubTable.Create(nil)
	pub := &Publisher{
		Handle:              h,
		Topic:               t,
		Type:                typ,
		TypeString:          typeStr,
		PropertiesAtPublish: cloneProps(properties),
		Options:             opts,
	}
	s.pubTable.Set(h, pub)
	t.Publishers[h] = pub

	var actions []func()
	switch {
	case t.Type == value.Unassigned:
		t.Type = typ
		t.TypeString = typeStr
		t.announced = true
		pub.Active = true
		pub.Advertised = true
		if len(properties) > 0 {
			t.mergeProperties(properties)
		}
		actions = append(actions, func() { s.sink.OnPublish(pub) })
		actions = append(actions, s.topicEventActionsLocked(EventTopicPublish, t)...)
	case t.Type == typ:
		pub.Active = true
		pub.Advertised = true
		if len(properties) > 0 {
			t.mergeProperties(properties)
		}
		actions = append(actions, func() { s.sink.OnPublish(pub) })
	default:
		pub.Active = false
		t.disabledPublisher = pub
		s.logger.Info().
			Str("topic", t.Name).
			Str("wanted", typeStr).
			Str("have", t.TypeString).
			Msg("local publish disabled due to type mismatch")
	}
	return pub, actions
}

// Unpublish implements §4.3 unpublish: the publisher is removed; if it was
// the topic's last publisher and no retained/persistent value survives it,
// the topic returns to unassigned and any disabled rival is promoted.
func (s *Instance) Unpublish(pubHandle handle.Handle) {
	s.mu.Lock()
	pub, ok := s.pubTable.Get(pubHandle)
	if !ok {
		s.mu.Unlock()
		return
	}
	t := pub.Topic
	delete(t.Publishers, pubHandle)
	if t.disabledPublisher == pub {
		t.disabledPublisher = nil
	}
	s.pubTable.Release(pubHandle)

	activeRemaining := 0
	for _, p := range t.Publishers {
		if p.Active {
			activeRemaining++
		}
	}
	actions := []func(){func() { s.sink.OnUnpublish(pub, activeRemaining) }}
	if activeRemaining == 0 && (t.Flags&(FlagPersistent|FlagRetained) == 0 || t.LastValue.Empty()) {
		t.Type = value.Unassigned
		t.TypeString = ""
		t.announced = false
		actions = append(actions, s.topicEventActionsLocked(EventTopicUnpublish, t)...)
		actions = append(actions, s.promoteDisabledLocked(t)...)
	}
	s.mu.Unlock()
	run(actions)
}

// promoteDisabledLocked re-activates t's parked disabled publisher, if any,
// giving it the topic's type back. Caller holds s.mu.
func (s *Instance) promoteDisabledLocked(t *Topic) []func() {
	dp := t.disabledPublisher
	if dp == nil {
		return nil
	}
	t.disabledPublisher = nil
	t.Type = dp.Type
	t.TypeString = dp.TypeString
	t.announced = true
	dp.Active = true
	dp.Advertised = true
	actions := []func(){func() { s.sink.OnPublish(dp) }}
	actions = append(actions, s.topicEventActionsLocked(EventTopicPublish, t)...)
	return actions
}

// Subscribe implements §4.3 subscribe: a subscriber whose requested type
// doesn't match the topic's current type is created disabled rather than
// rejected, so it can start delivering once the mismatch resolves.
func (s *Instance) Subscribe(topicHandle handle.Handle, typ value.Type, typeStr string, opts Options) handle.Handle {
	s.mu.Lock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		s.mu.Unlock()
		return handle.Invalid
	}
	sub, actions := s.subscribeLocked(t, typ, typeStr, opts)
	s.mu.Unlock()
	run(actions)
	return sub.Handle
}

func (s *Instance) subscribeLocked(t *Topic, typ value.Type, typeStr string, opts Options) (*Subscriber, []func()) {
	h := s.subTable.Create(nil)
	sub := &Subscriber{Handle: h, Topic: t, Type: typ, TypeString: typeStr, Options: opts, Poll: NewPoll(opts.pollSize())}
	s.subTable.Set(h, sub)
	t.Subscribers[h] = sub

	if t.Type != value.Unassigned && t.Type != typ {
		sub.Disabled = true
		s.logger.Info().
			Str("topic", t.Name).
			Str("wanted", typeStr).
			Str("published_as", t.TypeString).
			Msg("local subscribe disabled due to type mismatch")
	}
	return sub, []func(){func() { s.sink.OnSubscribe(sub) }}
}

// SubscribeMultiple implements §4.4 subscribe_multiple: an untyped,
// prefix-matching subscriber.
func (s *Instance) SubscribeMultiple(prefixes []string, opts Options) handle.Handle {
	s.mu.Lock()
	h := s.multiTable.Create(nil)
	ms := &MultiSubscriber{Handle: h, Prefixes: append([]string(nil), prefixes...), Options: opts, Poll: NewPoll(opts.pollSize())}
	s.multiTable.Set(h, ms)
	s.mu.Unlock()
	s.sink.OnSubscribeMulti(ms)
	return h
}

// Unsubscribe releases a single-topic subscriber.
func (s *Instance) Unsubscribe(subHandle handle.Handle) {
	s.mu.Lock()
	sub, ok := s.subTable.Get(subHandle)
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(sub.Topic.Subscribers, subHandle)
	s.subTable.Release(subHandle)
	s.mu.Unlock()
	s.sink.OnUnsubscribe(sub)
}

// UnsubscribeMultiple releases a prefix-matching subscriber.
func (s *Instance) UnsubscribeMultiple(msHandle handle.Handle) {
	s.mu.Lock()
	ms, ok := s.multiTable.Get(msHandle)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.multiTable.Release(msHandle)
	s.mu.Unlock()
	s.sink.OnUnsubscribeMulti(ms)
}

// GetEntry implements §4.3 get_entry: an eager subscriber paired with a
// publisher deferred until the first successful set_entry_value.
func (s *Instance) GetEntry(topicHandle handle.Handle, typ value.Type, typeStr string, opts Options) handle.Handle {
	s.mu.Lock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		s.mu.Unlock()
		return handle.Invalid
	}
	sub, actions := s.subscribeLocked(t, typ, typeStr, opts)
	eh := s.entryTable.Create(nil)
	entry := &Entry{Handle: eh, Topic: t, Type: typ, TypeString: typeStr, Options: opts, SubHandle: sub.Handle, PubHandle: handle.Invalid}
	s.entryTable.Set(eh, entry)
	if opts.ExcludeSelf {
		// no publisher yet; recorded once SetEntryValue creates one.
	}
	s.mu.Unlock()
	run(actions)
	return eh
}

// ReleaseEntry tears down both halves of an entry.
func (s *Instance) ReleaseEntry(entryHandle handle.Handle) {
	s.mu.Lock()
	entry, ok := s.entryTable.Get(entryHandle)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.entryTable.Release(entryHandle)
	if entry.Options.ExcludeSelf && entry.PubHandle.Valid() {
		delete(s.excludeSelfPairs, [2]handle.Handle{entry.PubHandle, entry.SubHandle})
	}
	s.mu.Unlock()
	if entry.PubHandle.Valid() {
		s.Unpublish(entry.PubHandle)
	}
	s.Unsubscribe(entry.SubHandle)
}

func cloneProps(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
