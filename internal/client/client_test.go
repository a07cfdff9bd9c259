package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/server"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

// memWire is the client-package analog of internal/server's memWire and
// internal/net's pipeWire: an in-memory Wire double so these tests never
// touch a real socket.
type memWire struct {
	name string
	out  chan ntnet.Frame
	in   chan ntnet.Frame
	mu   sync.Mutex
	shut bool
}

func newMemPipe(nameClient, nameServer string) (clientSide, serverSide *memWire) {
	cs := make(chan ntnet.Frame, 64)
	sc := make(chan ntnet.Frame, 64)
	clientSide = &memWire{name: nameClient, out: cs, in: sc}
	serverSide = &memWire{name: nameServer, out: sc, in: cs}
	return
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

func testServer() *server.Server {
	clock := int64(0)
	inst := storage.New(1, zerolog.Nop(), func() int64 {
		clock++
		return clock
	})
	cfg := server.DefaultConfig()
	cfg.MinFlushMs = 20
	srv := server.New(cfg, inst, zerolog.Nop())
	inst.AttachSink(srv)
	return srv
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

func TestClientPublishReachesServer(t *testing.T) {
	srv := testServer()

	clientWire, serverWire := newMemPipe("nt-client", "server")
	clientInst := storage.New(2, zerolog.Nop(), func() int64 { return 1 })
	c := New(DefaultConfig(), clientInst, zerolog.Nop())

	if _, err := srv.AddClient("nt-client", serverWire, false); err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	c.Connect(clientWire, false)
	defer c.Close()

	topic := c.Store().GetOrCreateTopic("/robot/speed")
	pub := c.Store().Publish(topic, value.Double, "double", nil, storage.DefaultOptions())
	c.Store().SetEntryValue(pub, value.MakeDouble(2.5, 10))

	waitUntil(t, time.Second, func() bool {
		infos := srv.Store().GetTopics([]string{"/robot/speed"})
		return len(infos) == 1 && !infos[0].LastValue.Empty()
	})
}

func TestClientRefusesValueForUnannouncedID(t *testing.T) {
	clientWire, _ := newMemPipe("nt-client", "server")
	clientInst := storage.New(3, zerolog.Nop(), func() int64 { return 1 })
	c := New(DefaultConfig(), clientInst, zerolog.Nop())
	c.Connect(clientWire, false)
	defer c.Close()

	b, err := ntnet.EncodeValue(999, value.MakeDouble(1.0, 1))
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	c.handleBinary(b)

	if infos := clientInst.GetTopics(nil); len(infos) != 0 {
		t.Fatalf("unexpected topic created from an unannounced id: %+v", infos)
	}
}

func TestClientReconnectReemitsState(t *testing.T) {
	clientWire, serverWire := newMemPipe("nt-client", "server")
	clientInst := storage.New(4, zerolog.Nop(), func() int64 { return 1 })
	c := New(DefaultConfig(), clientInst, zerolog.Nop())
	c.Connect(clientWire, false)

	topic := c.Store().GetOrCreateTopic("/x")
	pub := c.Store().Publish(topic, value.Boolean, "boolean", nil, storage.DefaultOptions())
	c.Store().SetEntryValue(pub, value.MakeBoolean(true, 1))

	_ = serverWire.Close()
	c.Close()

	newClientWire, newServerWire := newMemPipe("nt-client", "server")

	received := make(chan ntnet.Frame, 8)
	go func() {
		for {
			f, err := newServerWire.ReadFrame()
			if err != nil {
				return
			}
			received <- f
		}
	}()

	c.Connect(newClientWire, false)
	defer c.Close()

	waitUntil(t, time.Second, func() bool { return len(received) >= 2 })
}
