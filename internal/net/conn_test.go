package net

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// pipeWire is an in-memory Wire double connecting two Connections without
// a real socket, used to exercise Connection's pump/keepalive logic.
type pipeWire struct {
	name string
	out  chan Frame
	in   chan Frame

	mu     sync.Mutex
	closed bool
}

func newPipe() (a, b *pipeWire) {
	ab := make(chan Frame, 16)
	ba := make(chan Frame, 16)
	a = &pipeWire{name: "a", out: ab, in: ba}
	b = &pipeWire{name: "b", out: ba, in: ab}
	return a, b
}

func (p *pipeWire) ReadFrame() (Frame, error) {
	f, ok := <-p.in
	if !ok {
		return Frame{}, errors.New("pipe closed")
	}
	return f, nil
}

func (p *pipeWire) WriteFrame(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("pipe closed")
	}
	p.out <- f
	return nil
}

func (p *pipeWire) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}

func (p *pipeWire) RemoteName() string { return p.name }

func TestConnectionDeliversTextAndBinary(t *testing.T) {
	wa, wb := newPipe()

	var mu sync.Mutex
	var gotText, gotBinary []byte
	textCh := make(chan struct{}, 1)
	binCh := make(chan struct{}, 1)

	b := NewConnection(wb, zerolog.Nop(), Handlers{
		OnText: func(data []byte) {
			mu.Lock()
			gotText = data
			mu.Unlock()
			textCh <- struct{}{}
		},
		OnBinary: func(data []byte) {
			mu.Lock()
			gotBinary = data
			mu.Unlock()
			binCh <- struct{}{}
		},
	}, 4)
	b.Start()

	a := NewConnection(wa, zerolog.Nop(), Handlers{}, 4)
	a.Start()
	defer a.Close()
	defer b.Close()

	if !a.SendText([]byte(`{"method":"ping"}`)) {
		t.Fatalf("expected SendText to succeed")
	}
	if !a.SendBinary([]byte{1, 2, 3}) {
		t.Fatalf("expected SendBinary to succeed")
	}

	select {
	case <-textCh:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for text frame")
	}
	select {
	case <-binCh:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for binary frame")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(gotText) != `{"method":"ping"}` {
		t.Fatalf("unexpected text payload: %q", gotText)
	}
	if len(gotBinary) != 3 {
		t.Fatalf("unexpected binary payload: %+v", gotBinary)
	}
}

func TestConnectionCloseInvokesOnClose(t *testing.T) {
	wa, wb := newPipe()
	closed := make(chan error, 1)

	b := NewConnection(wb, zerolog.Nop(), Handlers{
		OnClose: func(reason error) { closed <- reason },
	}, 4)
	b.Start()

	a := NewConnection(wa, zerolog.Nop(), Handlers{}, 4)
	a.Start()
	a.Close()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for OnClose")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	wa, _ := newPipe()
	a := NewConnection(wa, zerolog.Nop(), Handlers{}, 4)
	a.Start()
	a.Close()
	time.Sleep(10 * time.Millisecond)
	if a.SendText([]byte("x")) {
		t.Fatalf("expected SendText to fail after close")
	}
}
