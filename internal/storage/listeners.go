package storage

import (
	"strings"

	"github.com/jabolina/networktables/internal/handle"
)

// AddListenerFunc registers a callback-mode listener: a background
// goroutine drains Events and invokes fn serially, in delivery order, until
// RemoveListener closes the listener down. This is the "Thread" delivery
// target from Design Notes §9.
func (s *Instance) AddListenerFunc(mask EventMask, target handle.Handle, prefixes []string, fn func(Event)) handle.Handle {
	l, immediate := s.addListenerLocked(s.listenerTable, mask, target, prefixes)
	l.stopDispatch = make(chan struct{})
	go func() {
		for {
			select {
			case e := <-l.Events:
				fn(e)
			case <-l.stopDispatch:
				return
			}
		}
	}()
	run(immediate)
	return l.Handle
}

// AddListenerPoll registers a poll-mode listener: the caller drains it with
// ReadListenerQueue, which does not block. This is the "Poller" delivery
// target from Design Notes §9.
func (s *Instance) AddListenerPoll(mask EventMask, target handle.Handle, prefixes []string) handle.Handle {
	l, immediate := s.addListenerLocked(s.pollerTable, mask, target, prefixes)
	run(immediate)
	return l.Handle
}

func (s *Instance) addListenerLocked(table *handle.Table[*Listener], mask EventMask, target handle.Handle, prefixes []string) (*Listener, []func()) {
	s.mu.Lock()
	h := table.Create(nil)
	l := newListener(h, mask, 64)
	switch target.Subtype() {
	case handle.Topic:
		l.TopicTarget = target
	case handle.Subscriber, handle.MultiSubscriber:
		l.SubTarget = target
	default:
		l.Prefixes = append([]string(nil), prefixes...)
	}
	table.Set(h, l)
	s.listeners[h] = l

	var immediate []func()
	if mask&EventImmediate != 0 {
		for _, e := range s.immediateEventsLocked(l) {
			ee := e
			immediate = append(immediate, func() { l.enqueue(ee) })
		}
	}
	s.mu.Unlock()
	return l, immediate
}

// RemoveListener releases a listener handle, whichever table it lives in,
// and stops its dispatch goroutine if it has one.
func (s *Instance) RemoveListener(h handle.Handle) {
	s.mu.Lock()
	l, ok := s.listeners[h]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.listeners, h)
	switch h.Subtype() {
	case handle.Listener:
		s.listenerTable.Release(h)
	case handle.ListenerPoller:
		s.pollerTable.Release(h)
	}
	s.mu.Unlock()
	if l.stopDispatch != nil {
		close(l.stopDispatch)
	}
}

// ReadListenerQueue atomically drains a poll-mode listener's queue.
func (s *Instance) ReadListenerQueue(h handle.Handle) []Event {
	var out []Event
	for {
		select {
		case e := <-eventsOf(s, h):
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsOf(s *Instance, h handle.Handle) chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listeners[h]; ok {
		return l.Events
	}
	return nil
}

// immediateEventsLocked synthesizes the one-time events an IMMEDIATE
// listener receives for every already-matching topic, enumerated in arena
// (creation) order (SPEC_FULL.md Open Question 3). Caller holds s.mu.
func (s *Instance) immediateEventsLocked(l *Listener) []Event {
	var out []Event
	s.topicTable.Range(func(_ handle.Handle, t *Topic) bool {
		if !t.Exists() {
			return true
		}
		info := snapshotTopic(t)
		if !s.listenerTargetMatchesLocked(l, info) {
			return true
		}
		out = append(out, Event{Kind: EventTopicPublish | EventImmediate, Topic: info})
		if !t.LastValue.Empty() {
			out = append(out, Event{Kind: EventValueLocal | EventImmediate, Topic: info, Value: t.LastValue})
		}
		return true
	})
	return out
}

// topicEventActionsLocked builds the dispatch thunks for a topic-class
// event against every currently registered listener. Caller holds s.mu.
func (s *Instance) topicEventActionsLocked(kind EventMask, t *Topic) []func() {
	info := snapshotTopic(t)
	actions := s.dispatchLocked(Event{Kind: kind, Topic: info})
	for _, binding := range s.dataLogBindingsLocked(t.Name) {
		b := binding
		actions = append(actions, func() { b.observer.LogTopic(t) })
	}
	return actions
}

func (s *Instance) dispatchLocked(e Event) []func() {
	var actions []func()
	for _, l := range s.listeners {
		if !l.matchesMask(e.Kind) {
			continue
		}
		if !s.listenerTargetMatchesLocked(l, e.Topic) {
			continue
		}
		ll, ee := l, e
		actions = append(actions, func() { ll.enqueue(ee) })
	}
	return actions
}

func (s *Instance) listenerTargetMatchesLocked(l *Listener, info TopicInfo) bool {
	if l.TopicTarget.Valid() {
		return info.Handle == l.TopicTarget
	}
	if l.SubTarget.Valid() {
		switch l.SubTarget.Subtype() {
		case handle.Subscriber:
			sub, ok := s.subTable.Get(l.SubTarget)
			return ok && sub.Topic != nil && sub.Topic.Handle == info.Handle
		case handle.MultiSubscriber:
			ms, ok := s.multiTable.Get(l.SubTarget)
			return ok && ms.Matches(info.Name)
		}
		return false
	}
	if len(l.Prefixes) == 0 {
		return false
	}
	special := IsSpecial(info.Name)
	for _, p := range l.Prefixes {
		if special && !IsSpecial(p) {
			continue
		}
		if strings.HasPrefix(info.Name, p) {
			return true
		}
	}
	return false
}

// dispatchConnectionEvent fires an EventConnected/EventDisconnected event to
// every listener whose mask includes it, regardless of target (§3).
func (s *Instance) dispatchConnectionEvent(connected bool, clientName string) {
	s.mu.Lock()
	kind := EventDisconnected
	if connected {
		kind = EventConnected
	}
	var actions []func()
	for _, l := range s.listeners {
		if !l.matchesMask(kind) {
			continue
		}
		ll := l
		ee := Event{Kind: kind, ClientName: clientName}
		actions = append(actions, func() { ll.enqueue(ee) })
	}
	s.mu.Unlock()
	run(actions)
}

// DispatchLogEvent fires an EventLog event to every listener whose mask
// includes it (§3), through the same listener mechanism as data events.
// No package in this module calls it; log lines written through the
// logger do not produce EventLog events.
func (s *Instance) DispatchLogEvent(message string) {
	s.mu.Lock()
	var actions []func()
	for _, l := range s.listeners {
		if !l.matchesMask(EventLog) {
			continue
		}
		ll := l
		ee := Event{Kind: EventLog, Message: message}
		actions = append(actions, func() { ll.enqueue(ee) })
	}
	s.mu.Unlock()
	run(actions)
}

// DispatchConnected and DispatchDisconnected let the network layer surface
// connection lifecycle through the listener mechanism (§3).
func (s *Instance) DispatchConnected(clientName string) { s.dispatchConnectionEvent(true, clientName) }
func (s *Instance) DispatchDisconnected(clientName string) {
	s.dispatchConnectionEvent(false, clientName)
}
