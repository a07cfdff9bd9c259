// Package transport provides the concrete gobwas/ws-backed Wire
// implementation internal/net.Connection runs its pumps over, for both
// server-accepted and client-dialed connections.
//
// Grounded on the teacher's own gobwas/ws usage (ws/server.go's
// handleWebSocket/readPump/writePump): ws.UpgradeHTTP for the server side,
// wsutil.ReadClientData/WriteServerMessage and their Read.../WriteServer...
// counterparts for framing, ws.OpText/OpBinary/OpPing/OpClose mapped onto
// internal/net.FrameKind.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	ntnet "github.com/jabolina/networktables/internal/net"
)

// ServerSubprotocol and LegacySubprotocol are the NT wire subprotocol
// tokens a client's upgrade request selects between (§4.7).
const (
	ServerSubprotocol = "networktables.first.wpi.edu"
	LegacySubprotocol = "networktables.first.wpi.edu.v3"
)

// wsWire adapts a raw net.Conn speaking the WebSocket framing gobwas/ws
// parses into an internal/net.Wire. side controls which of
// wsutil's client/server read/write helpers apply (gobwas/ws requires
// the two directions use different masking rules).
type wsWire struct {
	conn       net.Conn
	remoteName string
	isServer   bool
}

func (w *wsWire) RemoteName() string { return w.remoteName }

func (w *wsWire) Close() error { return w.conn.Close() }

func (w *wsWire) ReadFrame() (ntnet.Frame, error) {
	w.conn.SetReadDeadline(time.Now().Add(ntnet.PongTimeout))

	var (
		data []byte
		op   ws.OpCode
		err  error
	)
	if w.isServer {
		data, op, err = wsutil.ReadClientData(w.conn)
	} else {
		data, op, err = wsutil.ReadServerData(w.conn)
	}
	if err != nil {
		return ntnet.Frame{}, err
	}
	switch op {
	case ws.OpText:
		return ntnet.Frame{Kind: ntnet.FrameText, Data: data}, nil
	case ws.OpBinary:
		return ntnet.Frame{Kind: ntnet.FrameBinary, Data: data}, nil
	case ws.OpPing:
		return ntnet.Frame{Kind: ntnet.FramePing}, nil
	case ws.OpClose:
		return ntnet.Frame{Kind: ntnet.FrameClose}, nil
	default:
		// Pongs and anything else unrecognized: treat as a no-op ping so
		// the read pump loops without acting on it.
		return ntnet.Frame{Kind: ntnet.FramePing}, nil
	}
}

func (w *wsWire) WriteFrame(f ntnet.Frame) error {
	w.conn.SetWriteDeadline(time.Now().Add(ntnet.WriteWait))

	var op ws.OpCode
	switch f.Kind {
	case ntnet.FrameText:
		op = ws.OpText
	case ntnet.FrameBinary:
		op = ws.OpBinary
	case ntnet.FramePing:
		op = ws.OpPing
	case ntnet.FrameClose:
		op = ws.OpClose
	}
	if w.isServer {
		return wsutil.WriteServerMessage(w.conn, op, f.Data)
	}
	return wsutil.WriteClientMessage(w.conn, op, f.Data)
}

// Upgrade accepts an incoming HTTP request as a WebSocket connection,
// mirroring the teacher's handleWebSocket's ws.UpgradeHTTP call. It
// reports which subprotocol the peer selected so the caller can route to
// the modern or legacy wire path (§4.7).
func Upgrade(w http.ResponseWriter, r *http.Request) (wire ntnet.Wire, legacy bool, err error) {
	var negotiated string
	u := ws.HTTPUpgrader{
		Protocol: func(proto string) bool {
			if proto == ServerSubprotocol || proto == LegacySubprotocol {
				negotiated = proto
				return true
			}
			return false
		},
	}
	conn, _, _, err := u.Upgrade(r, w)
	if err != nil {
		return nil, false, fmt.Errorf("transport: upgrade: %w", err)
	}
	return &wsWire{conn: conn, remoteName: r.RemoteAddr, isServer: true}, negotiated == LegacySubprotocol, nil
}

// Dial opens an outbound WebSocket connection to a NetworkTables server,
// the client-side counterpart the teacher has no equivalent of (ws/ is
// server-only); built from gobwas/ws's own Dialer rather than reaching for
// a second WebSocket library, keeping both directions on the same stack.
func Dial(ctx context.Context, addr string, legacy bool) (ntnet.Wire, error) {
	protocol := ServerSubprotocol
	if legacy {
		protocol = LegacySubprotocol
	}
	dialer := ws.Dialer{
		Protocols: []string{protocol},
	}
	conn, _, _, err := dialer.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &wsWire{conn: conn, remoteName: addr, isServer: false}, nil
}
