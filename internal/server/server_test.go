package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

// memWire is an in-memory Wire double, the server-package analog of
// internal/net's pipeWire, used so these tests never touch a real socket.
type memWire struct {
	name string
	out  chan ntnet.Frame
	in   chan ntnet.Frame
	mu   sync.Mutex
	shut bool
}

func newMemPipe(nameA, nameB string) (a, b *memWire) {
	ab := make(chan ntnet.Frame, 64)
	ba := make(chan ntnet.Frame, 64)
	a = &memWire{name: nameA, out: ab, in: ba}
	b = &memWire{name: nameB, out: ba, in: ab}
	return a, b
}

func (w *memWire) ReadFrame() (ntnet.Frame, error) {
	f, ok := <-w.in
	if !ok {
		return ntnet.Frame{}, errors.New("closed")
	}
	return f, nil
}

func (w *memWire) WriteFrame(f ntnet.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.shut {
		return errors.New("closed")
	}
	w.out <- f
	return nil
}

func (w *memWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.shut {
		return nil
	}
	w.shut = true
	close(w.out)
	return nil
}

func (w *memWire) RemoteName() string { return w.name }

func testServer() (*Server, *storage.Instance) {
	clock := int64(0)
	inst := storage.New(1, zerolog.Nop(), func() int64 {
		clock++
		return clock
	})
	cfg := DefaultConfig()
	cfg.MinFlushMs = 20
	srv := New(cfg, inst, zerolog.Nop())
	inst.AttachSink(srv)
	return srv, inst
}

// clientSide wraps the test's end of a memWire with a tiny collector of
// decoded control messages, standing in for an actual NT client library.
type clientSide struct {
	wire *memWire
	conn *ntnet.Connection

	mu       sync.Mutex
	announce []ntnet.AnnounceParams
	values   []ntnet.ValueFrame
}

func newClientSide(wire *memWire) *clientSide {
	cs := &clientSide{wire: wire}
	cs.conn = ntnet.NewConnection(wire, zerolog.Nop(), ntnet.Handlers{
		OnText: func(data []byte) {
			cm, err := ntnet.DecodeControl(data)
			if err != nil || cm.Method != ntnet.MethodAnnounce {
				return
			}
			var ann ntnet.AnnounceParams
			if ntnet.DecodeParams(cm, &ann) == nil {
				cs.mu.Lock()
				cs.announce = append(cs.announce, ann)
				cs.mu.Unlock()
			}
		},
		OnBinary: func(data []byte) {
			vf, err := ntnet.DecodeValue(data)
			if err != nil {
				return
			}
			cs.mu.Lock()
			cs.values = append(cs.values, vf)
			cs.mu.Unlock()
		},
	}, 16)
	cs.conn.Start()
	return cs
}

func (cs *clientSide) send(method string, params any) {
	b, _ := ntnet.EncodeControl(method, params)
	cs.conn.SendText(b)
}

func (cs *clientSide) sendValue(id uint32, v value.Value) {
	b, _ := ntnet.EncodeValue(id, v)
	cs.conn.SendBinary(b)
}

func (cs *clientSide) announceCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.announce)
}

func (cs *clientSide) valueCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.values)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestServerPublishSubscribeBroadcast(t *testing.T) {
	srv, _ := testServer()

	wireA, serverSideA := newMemPipe("publisher", "server")
	wireB, serverSideB := newMemPipe("subscriber", "server")

	pub := newClientSide(wireA)
	sub := newClientSide(wireB)

	cA, err := srv.AddClient("publisher", serverSideA, false)
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	cB, err := srv.AddClient("subscriber", serverSideB, false)
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	defer cA.conn.Close()
	defer cB.conn.Close()

	sub.send(ntnet.MethodSubscribe, ntnet.SubscribeParams{
		SubUID: 1,
		Topics: []string{"/robot/"},
		Options: &ntnet.WireOptions{
			PrefixMatch: true,
			SendAll:     true,
		},
	})
	time.Sleep(20 * time.Millisecond)

	pub.send(ntnet.MethodPublish, ntnet.PublishParams{
		Name:   "/robot/speed",
		PubUID: 7,
		Type:   "double",
	})

	waitUntil(t, time.Second, func() bool { return sub.announceCount() > 0 })

	pub.sendValue(7, value.MakeDouble(3.5, 1))
	waitUntil(t, time.Second, func() bool { return sub.valueCount() > 0 })

	sub.mu.Lock()
	got := sub.values[0]
	sub.mu.Unlock()
	if got.Value.F64 != 3.5 {
		t.Fatalf("expected forwarded value 3.5, got %+v", got)
	}
}

func TestServerRemoveClientRetractsAnnounce(t *testing.T) {
	srv, _ := testServer()

	wireA, serverSideA := newMemPipe("publisher", "server")
	wireB, serverSideB := newMemPipe("subscriber", "server")

	pub := newClientSide(wireA)
	sub := newClientSide(wireB)

	cA, _ := srv.AddClient("publisher", serverSideA, false)
	cB, _ := srv.AddClient("subscriber", serverSideB, false)
	defer cB.conn.Close()

	sub.send(ntnet.MethodSubscribe, ntnet.SubscribeParams{SubUID: 1, Topics: []string{""}, Options: &ntnet.WireOptions{PrefixMatch: true}})
	time.Sleep(20 * time.Millisecond)

	pub.send(ntnet.MethodPublish, ntnet.PublishParams{Name: "/x", PubUID: 1, Type: "boolean"})
	waitUntil(t, time.Second, func() bool { return sub.announceCount() > 0 })

	cA.conn.Close()
	waitUntil(t, time.Second, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		_, stillThere := srv.topicsByName["/x"]
		return !stillThere
	})
}
