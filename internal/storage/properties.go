package storage

import (
	"github.com/jabolina/networktables/internal/handle"
)

// SetProperty implements §4.3 set_property: a single key/value merge.
func (s *Instance) SetProperty(topicHandle handle.Handle, key string, val any) bool {
	return s.SetProperties(topicHandle, map[string]any{key: val})
}

// DeleteProperty removes a property key (JSON null semantics, §4.3).
func (s *Instance) DeleteProperty(topicHandle handle.Handle, key string) bool {
	return s.SetProperties(topicHandle, map[string]any{key: nil})
}

// SetProperties implements §4.3 set_properties: a batched merge where a nil
// value deletes the key.
func (s *Instance) SetProperties(topicHandle handle.Handle, update map[string]any) bool {
	s.mu.Lock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		s.mu.Unlock()
		return false
	}
	t.mergeProperties(update)
	actions := []func(){func() { s.sink.OnSetProperties(t, update) }}
	actions = append(actions, s.topicEventActionsLocked(EventTopicProperties, t)...)
	s.mu.Unlock()
	run(actions)
	return true
}

// GetProperty returns a single property value.
func (s *Instance) GetProperty(topicHandle handle.Handle, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		return nil, false
	}
	v, ok := t.Properties[key]
	return v, ok
}

// GetProperties returns a snapshot of every property on the topic.
func (s *Instance) GetProperties(topicHandle handle.Handle) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topicTable.Get(topicHandle)
	if !ok {
		return nil
	}
	return cloneProps(t.Properties)
}
