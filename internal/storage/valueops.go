package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// SetEntryValue implements §4.3 set_entry_value against either a publisher
// handle or an entry handle. An entry's publisher side is created lazily on
// its first successful set, adopting the value's type if the entry itself
// was untyped.
func (s *Instance) SetEntryValue(h handle.Handle, v value.Value) bool {
	if v.Empty() {
		return false
	}
	s.mu.Lock()

	var pub *Publisher
	var actions []func()

	switch h.Subtype() {
	case handle.Publisher:
		p, ok := s.pubTable.Get(h)
		if !ok {
			s.mu.Unlock()
			return false
		}
		pub = p
	case handle.Entry:
		entry, ok := s.entryTable.Get(h)
		if !ok {
			s.mu.Unlock()
			return false
		}
		if entry.PubHandle.Valid() {
			p, ok := s.pubTable.Get(entry.PubHandle)
			if !ok {
				s.mu.Unlock()
				return false
			}
			pub = p
		} else {
			typ, typeStr := entry.Type, entry.TypeString
			if typ == value.Unassigned {
				typ, typeStr = v.Type, v.Type.TypeString()
			}
			if v.Type != typ {
				s.mu.Unlock()
				return false
			}
			created, pubActions := s.publishLocked(entry.Topic, typ, typeStr, nil, entry.Options)
			entry.PubHandle = created.Handle
			entry.Type = typ
			entry.TypeString = typeStr
			if entry.Options.ExcludeSelf {
				s.excludeSelfPairs[[2]handle.Handle{created.Handle, entry.SubHandle}] = struct{}{}
			}
			actions = append(actions, pubActions...)
			pub = created
		}
	default:
		s.mu.Unlock()
		return false
	}

	if !pub.Active || v.Type != pub.Type {
		s.mu.Unlock()
		return false
	}

	deliverActions := s.deliverValueLocked(pub.Topic, pub, v, false)
	actions = append(actions, deliverActions...)
	s.mu.Unlock()
	run(actions)
	return true
}

// SetDefaultEntryValue implements §4.3 set_default_entry_value: it only
// takes effect if the topic currently has no value at all.
func (s *Instance) SetDefaultEntryValue(h handle.Handle, v value.Value) bool {
	if v.Empty() {
		return false
	}
	s.mu.Lock()
	entry, ok := s.entryTable.Get(h)
	if !ok || !entry.Topic.LastValue.Empty() {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.SetEntryValue(h, v)
}

// GetEntryValue implements §4.3 get_entry_value: the topic's last value,
// numerically converted to the entry's declared type when possible.
func (s *Instance) GetEntryValue(entryHandle handle.Handle) value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entryTable.Get(entryHandle)
	if !ok {
		return value.Value{}
	}
	v := entry.Topic.LastValue
	if v.Empty() || entry.Type == value.Unassigned || v.Type == entry.Type {
		return v
	}
	converted, err := v.ConvertTo(entry.Type)
	if err != nil {
		return value.Value{}
	}
	return converted
}

// ReadQueue implements §4.3 read_queue: it atomically drains the
// subscriber's poll storage and converts each item to want, dropping any
// that can't convert. want is supplied by the caller at read time and need
// not match the subscriber's declared type (§8 scenario: reading a double
// queue as i64 after it has already been drained as double yields nothing
// new, not a type error).
func (s *Instance) ReadQueue(subHandle handle.Handle, want value.Type) []value.Value {
	s.mu.Lock()
	var raw []value.Value
	switch subHandle.Subtype() {
	case handle.Subscriber:
		if sub, ok := s.subTable.Get(subHandle); ok {
			raw = sub.Poll.Drain()
		}
	case handle.MultiSubscriber:
		if ms, ok := s.multiTable.Get(subHandle); ok {
			raw = ms.Poll.Drain()
		}
	}
	s.mu.Unlock()

	if want == value.Unassigned {
		return raw
	}
	out := make([]value.Value, 0, len(raw))
	for _, v := range raw {
		if v.Type == want {
			out = append(out, v)
			continue
		}
		if converted, err := v.ConvertTo(want); err == nil {
			out = append(out, converted)
		}
	}
	return out
}

// deliverValueLocked is the value-propagation core shared by local
// set_entry_value and the server_set_value network-inbound handler.
// Caller holds s.mu.
func (s *Instance) deliverValueLocked(t *Topic, pub *Publisher, v value.Value, remote bool) []func() {
	prev := t.LastValue
	dup := !prev.Empty() && prev.Equal(v)
	t.LastValue = v

	var actions []func()

	if !remote {
		networkSuppressed := dup && !pub.Options.KeepDuplicates && !pub.Options.SendAll
		if !networkSuppressed {
			p := pub
			val := v
			actions = append(actions, func() { s.sink.OnValue(p, val) })
		}
	}

	var originPub handle.Handle
	if pub != nil {
		originPub = pub.Handle
	}

	valueKind := EventValueLocal
	if remote {
		valueKind = EventValueRemote
	}

	for subHandle, sub := range t.Subscribers {
		if !s.subscriberAcceptsLocked(sub.Disabled, sub.Options, originPub, subHandle, remote) {
			continue
		}
		subDup := dup && !sub.Options.KeepDuplicates
		if subDup {
			continue
		}
		sub.Poll.Push(v)
	}

	listenerDup := dup && (pub == nil || !pub.Options.KeepDuplicates)
	if !listenerDup {
		actions = append(actions, s.dispatchLocked(Event{Kind: valueKind, Topic: snapshotTopic(t), Value: v})...)
	}

	s.multiTable.Range(func(msHandle handle.Handle, ms *MultiSubscriber) bool {
		if !ms.Matches(t.Name) {
			return true
		}
		if !s.subscriberAcceptsLocked(false, ms.Options, originPub, msHandle, remote) {
			return true
		}
		if dup && !ms.Options.KeepDuplicates {
			return true
		}
		ms.Poll.Push(v)
		return true
	})

	for _, binding := range s.dataLogBindingsLocked(t.Name) {
		b := binding
		val := v
		actions = append(actions, func() { b.observer.LogValue(t, val) })
	}

	return actions
}

// subscriberAcceptsLocked applies the exclude/disable filters common to
// single-topic and multi-subscribers (§4.4 options). originPub is
// handle.Invalid for network-originated values, which never match a local
// ExcludePublisher/ExcludeSelf filter. Caller holds s.mu.
func (s *Instance) subscriberAcceptsLocked(disabled bool, opts Options, originPub handle.Handle, subHandle handle.Handle, remote bool) bool {
	if disabled {
		return false
	}
	if remote && opts.DisableRemote {
		return false
	}
	if !remote && opts.DisableLocal {
		return false
	}
	if !originPub.Valid() {
		return true
	}
	if opts.ExcludePublisher.Valid() && opts.ExcludePublisher == originPub {
		return false
	}
	if _, excluded := s.excludeSelfPairs[[2]handle.Handle{originPub, subHandle}]; excluded {
		return false
	}
	return true
}
