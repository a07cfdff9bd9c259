package storage

import (
	"testing"

	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
	"github.com/rs/zerolog"
)

func testInstance() *Instance {
	clock := int64(0)
	return New(1, zerolog.Nop(), func() int64 {
		clock++
		return clock
	})
}

func TestLocalPubSubSameType(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	if !pub.Valid() {
		t.Fatalf("expected valid publisher handle")
	}
	sub := s.Subscribe(topic, value.Double, "double", DefaultOptions())
	if !sub.Valid() {
		t.Fatalf("expected valid subscriber handle")
	}
	if ok := s.SetEntryValue(pub, value.MakeDouble(1.5, 50)); !ok {
		t.Fatalf("expected set to succeed")
	}
	got := s.ReadQueue(sub, value.Double)
	if len(got) != 1 || got[0].F64 != 1.5 {
		t.Fatalf("expected one queued value of 1.5, got %+v", got)
	}
}

func TestPublishDisabledOnTypeConflict(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub1 := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	pub2 := s.Publish(topic, value.String, "string", nil, DefaultOptions())

	if ok := s.SetEntryValue(pub2, value.MakeString("hi", 1)); ok {
		t.Fatalf("expected disabled publisher's set to fail")
	}
	if ok := s.SetEntryValue(pub1, value.MakeDouble(2, 1)); !ok {
		t.Fatalf("expected active publisher's set to succeed")
	}

	s.Unpublish(pub1)
	if ok := s.SetEntryValue(pub2, value.MakeString("now", 2)); !ok {
		t.Fatalf("expected promoted publisher's set to succeed after rival departs")
	}
	if got := s.GetTopicType(topic); got != value.String {
		t.Fatalf("expected topic type to become string after promotion, got %v", got)
	}
}

func TestSubscribeDisabledOnTypeConflict(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	sub := s.Subscribe(topic, value.String, "string", DefaultOptions())

	s.SetEntryValue(pub, value.MakeDouble(1, 1))
	if got := s.ReadQueue(sub, value.String); len(got) != 0 {
		t.Fatalf("expected disabled subscriber to receive nothing, got %+v", got)
	}
}

func TestServerAnnounceOverridesLocalPublish(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	s.SetEntryValue(pub, value.MakeDouble(1, 1))

	s.ServerAnnounce("/foo", 7, "string", nil)
	if got := s.GetTopicType(topic); got != value.String {
		t.Fatalf("expected network announce to win the type, got %v", got)
	}
	if ok := s.SetEntryValue(pub, value.MakeDouble(2, 2)); ok {
		t.Fatalf("expected demoted local publisher's set to fail")
	}

	s.ServerUnannounce("/foo")
	if ok := s.SetEntryValue(pub, value.MakeDouble(3, 3)); !ok {
		t.Fatalf("expected local publisher promoted back after unannounce")
	}
}

func TestDuplicateSuppressionDoesNotEnqueue(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Integer, "int", nil, DefaultOptions())
	sub := s.Subscribe(topic, value.Integer, "int", DefaultOptions())

	s.SetEntryValue(pub, value.MakeInteger(5, 1))
	s.SetEntryValue(pub, value.MakeInteger(5, 2))
	got := s.ReadQueue(sub, value.Integer)
	if len(got) != 1 {
		t.Fatalf("expected duplicate set to be suppressed, got %d items", len(got))
	}
}

func TestKeepDuplicatesOverride(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	opts := DefaultOptions()
	opts.KeepDuplicates = true
	opts.PollStorage = 2
	pub := s.Publish(topic, value.Integer, "int", nil, DefaultOptions())
	sub := s.Subscribe(topic, value.Integer, "int", opts)

	s.SetEntryValue(pub, value.MakeInteger(5, 1))
	s.SetEntryValue(pub, value.MakeInteger(5, 2))
	got := s.ReadQueue(sub, value.Integer)
	if len(got) != 2 {
		t.Fatalf("expected both duplicates to be kept, got %d items", len(got))
	}
}

func TestReadQueueGenericTypeConversion(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	sub := s.Subscribe(topic, value.Double, "double", DefaultOptions())

	s.SetEntryValue(pub, value.MakeDouble(1, 50))
	asDouble := s.ReadQueue(sub, value.Double)
	if len(asDouble) != 1 {
		t.Fatalf("expected one double item, got %d", len(asDouble))
	}
	asInt := s.ReadQueue(sub, value.Integer)
	if len(asInt) != 0 {
		t.Fatalf("expected the queue to already be drained, got %+v", asInt)
	}
}

func TestMultiSubscribePrefixMatchAndSpecialNamespace(t *testing.T) {
	s := testInstance()
	sub := s.SubscribeMultiple([]string{"/robot/"}, DefaultOptions())
	special := s.SubscribeMultiple([]string{"$"}, DefaultOptions())

	topic := s.GetOrCreateTopic("/robot/speed")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	s.SetEntryValue(pub, value.MakeDouble(3, 1))

	got := s.ReadQueue(sub, value.Double)
	if len(got) != 1 {
		t.Fatalf("expected the prefix-matching multi-subscriber to receive the value, got %+v", got)
	}

	specialTopic := s.GetOrCreateTopic("$meta")
	specialPub := s.Publish(specialTopic, value.String, "string", nil, DefaultOptions())
	s.SetEntryValue(specialPub, value.MakeString("x", 1))
	if got := s.ReadQueue(special, value.String); len(got) != 1 {
		t.Fatalf("expected the special-namespace multi-subscriber to match $meta, got %+v", got)
	}
	if got := s.ReadQueue(sub, value.String); len(got) != 0 {
		t.Fatalf("expected the ordinary prefix subscriber NOT to match $meta, got %+v", got)
	}
}

func TestGetEntryDeferredPublishAndExcludeSelf(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	opts := DefaultOptions()
	opts.ExcludeSelf = true
	entry := s.GetEntry(topic, value.Double, "double", opts)

	if v := s.GetEntryValue(entry); !v.Empty() {
		t.Fatalf("expected no value before first set")
	}
	if ok := s.SetEntryValue(entry, value.MakeDouble(9, 1)); !ok {
		t.Fatalf("expected deferred publish to succeed on first set")
	}
	if v := s.GetEntryValue(entry); v.F64 != 9 {
		t.Fatalf("expected entry to read back its own value, got %+v", v)
	}
	e, ok := s.entryTable.Get(entry)
	if !ok {
		t.Fatalf("expected entry to still be live")
	}
	if got := s.ReadQueue(e.SubHandle, value.Double); len(got) != 0 {
		t.Fatalf("expected ExcludeSelf to suppress the entry's own subscriber side, got %+v", got)
	}
}

func TestImmediateListenerFiresForExistingTopics(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	s.SetEntryValue(pub, value.MakeDouble(4, 1))

	l := s.AddListenerPoll(EventTopic|EventValue|EventImmediate, handle.Invalid, []string{""})
	events := s.ReadListenerQueue(l)
	if len(events) < 2 {
		t.Fatalf("expected at least a topic-publish and a value-local immediate event, got %d", len(events))
	}
	for _, e := range events {
		if e.Kind&EventImmediate == 0 {
			t.Fatalf("expected all synthesized events to carry EventImmediate, got %+v", e)
		}
	}
}

func TestRemoveListenerStopsDelivery(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	l := s.AddListenerPoll(EventValue, topic, nil)
	s.RemoveListener(l)
	s.SetEntryValue(pub, value.MakeDouble(1, 1))
	if got := s.ReadListenerQueue(l); len(got) != 0 {
		t.Fatalf("expected no events after removal, got %+v", got)
	}
}

func TestPropertiesSetDeleteAndFlags(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/foo")
	s.SetProperty(topic, "persistent", true)
	props := s.GetProperties(topic)
	if v, _ := props["persistent"]; v != true {
		t.Fatalf("expected persistent=true, got %+v", props)
	}
	if tp, _ := s.topicTable.Get(topic); tp.Flags&FlagPersistent == 0 {
		t.Fatalf("expected persistent flag to be set, got %v", tp.Flags)
	}
	s.DeleteProperty(topic, "persistent")
	props = s.GetProperties(topic)
	if _, ok := props["persistent"]; ok {
		t.Fatalf("expected persistent to be deleted, got %+v", props)
	}
	if tp, _ := s.topicTable.Get(topic); tp.Flags&FlagPersistent != 0 {
		t.Fatalf("expected persistent flag to be cleared, got %v", tp.Flags)
	}
}

type recordingDataLog struct {
	values []value.Value
	closed bool
}

func (r *recordingDataLog) LogValue(_ *Topic, v value.Value) { r.values = append(r.values, v) }
func (r *recordingDataLog) LogTopic(*Topic)                  {}
func (r *recordingDataLog) Close() error                     { r.closed = true; return nil }

func TestDataLogCapturesMatchingValues(t *testing.T) {
	s := testInstance()
	topic := s.GetOrCreateTopic("/robot/speed")
	rec := &recordingDataLog{}
	dl := s.StartDataLog(rec, "/robot/", "robot_")
	pub := s.Publish(topic, value.Double, "double", nil, DefaultOptions())
	s.SetEntryValue(pub, value.MakeDouble(2, 1))
	if len(rec.values) != 1 {
		t.Fatalf("expected one logged value, got %d", len(rec.values))
	}
	s.StopDataLog(dl)
	if !rec.closed {
		t.Fatalf("expected StopDataLog to close the observer")
	}
	s.SetEntryValue(pub, value.MakeDouble(3, 2))
	if len(rec.values) != 1 {
		t.Fatalf("expected no further logging after StopDataLog, got %d", len(rec.values))
	}
}
