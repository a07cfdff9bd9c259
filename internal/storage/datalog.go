package storage

import (
	"strings"

	"github.com/jabolina/networktables/internal/handle"
)

// StartDataLog implements §4.3 start_data_log: every topic whose name
// begins with pathPrefix is mirrored into observer. logPrefix is stored on
// the binding but not applied: the observer receives each topic under its
// own name. A snapshot
// LogTopic call is made for every topic that already matches, so the log
// starts with a complete picture rather than only future changes.
func (s *Instance) StartDataLog(observer DataLogObserver, pathPrefix, logPrefix string) handle.Handle {
	s.mu.Lock()
	h := s.dataLogTable.Create(nil)
	binding := &dataLogBinding{observer: observer, pathPrefix: pathPrefix, logPrefix: logPrefix}
	s.dataLogTable.Set(h, binding)

	var snapshot []*Topic
	s.topicTable.Range(func(_ handle.Handle, t *Topic) bool {
		if t.Exists() && strings.HasPrefix(t.Name, pathPrefix) {
			snapshot = append(snapshot, t)
		}
		return true
	})
	s.mu.Unlock()

	for _, t := range snapshot {
		observer.LogTopic(t)
		if !t.LastValue.Empty() {
			observer.LogValue(t, t.LastValue)
		}
	}
	return h
}

// StopDataLog implements §4.3 stop_data_log: detaches the observer and
// closes it.
func (s *Instance) StopDataLog(h handle.Handle) {
	s.mu.Lock()
	binding, ok := s.dataLogTable.Get(h)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.dataLogTable.Release(h)
	s.mu.Unlock()
	_ = binding.observer.Close()
}

// dataLogBindingsLocked returns the bindings whose pathPrefix matches name.
// Caller holds s.mu.
func (s *Instance) dataLogBindingsLocked(name string) []*dataLogBinding {
	var out []*dataLogBinding
	s.dataLogTable.Range(func(_ handle.Handle, b *dataLogBinding) bool {
		if strings.HasPrefix(name, b.pathPrefix) {
			out = append(out, b)
		}
		return true
	})
	return out
}
