package net

import (
	"github.com/jabolina/networktables/internal/value"
)

// Legacy (NT3) message types, preserved byte-for-byte from the original
// Message::MsgType enum (§4.7). The core only speaks protocol 3.0: every
// message below that required 3.0 on the wire is always sent/expected,
// since this implementation has no older peer to step down for.
type LegacyMsgType byte

const (
	LegacyKeepAlive       LegacyMsgType = 0x00
	LegacyClientHello     LegacyMsgType = 0x01
	LegacyProtoUnsup      LegacyMsgType = 0x02
	LegacyServerHelloDone LegacyMsgType = 0x03
	LegacyServerHello     LegacyMsgType = 0x04
	LegacyClientHelloDone LegacyMsgType = 0x05
	LegacyEntryAssign     LegacyMsgType = 0x10
	LegacyEntryUpdate     LegacyMsgType = 0x11
	LegacyFlagsUpdate     LegacyMsgType = 0x12
	LegacyEntryDelete     LegacyMsgType = 0x13
	LegacyClearEntries    LegacyMsgType = 0x14
)

// LegacyProtoRev is the only protocol revision this core offers during the
// legacy hello exchange (§4.7: "compares client_version to its own").
const LegacyProtoRev = 0x0300

// legacyClearMagic is ClearEntries' fixed payload (§4.7); a clear-entries
// message with any other value is decoded as a zero (keep-alive) message,
// so it is ignored without disconnecting the peer and without a warning.
const legacyClearMagic = 0xD06CB27A

// LegacyMessage is the flat union of every NT3 message this core sends or
// accepts. Fields are populated according to Type; unused fields are zero.
// RPC execution is out of scope (§4.7 only calls out entry assign/update/
// flags/delete/clear and the hello handshake as the legacy semantics the
// core must interoperate on).
type LegacyMessage struct {
	Type LegacyMsgType

	ProtoRev uint16 // ClientHello, ProtoUnsup
	SelfID   string // ClientHello, ServerHello

	Name       string // EntryAssign
	ID         uint16 // EntryAssign, EntryUpdate, FlagsUpdate, EntryDelete
	SeqNum     uint16 // EntryAssign, EntryUpdate
	EntryFlags uint8  // EntryAssign, FlagsUpdate
	Value      value.Value
}

func putUint16BE(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func getUint16BE(buf []byte, off int) (uint16, bool) {
	if off+2 > len(buf) {
		return 0, false
	}
	return uint16(buf[off])<<8 | uint16(buf[off+1]), true
}

func getUint32BE(buf []byte, off int) (uint32, bool) {
	if off+4 > len(buf) {
		return 0, false
	}
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3]), true
}

func putLegacyString(buf []byte, s string) []byte {
	n := len(s)
	if n > 0xffff {
		n = 0xffff
	}
	buf = putUint16BE(buf, uint16(n))
	return append(buf, s[:n]...)
}

func getLegacyString(buf []byte, off int) (string, int, bool) {
	n, ok := getUint16BE(buf, off)
	if !ok {
		return "", 0, false
	}
	off += 2
	if off+int(n) > len(buf) {
		return "", 0, false
	}
	return string(buf[off : off+int(n)]), off + int(n), true
}

// EncodeLegacyMessage serializes one message, grounded on Message::Write
// (original's WireEncoder-driven switch): a one-byte type tag followed by
// the type's fixed layout.
func EncodeLegacyMessage(m LegacyMessage) ([]byte, error) {
	buf := []byte{byte(m.Type)}
	switch m.Type {
	case LegacyKeepAlive, LegacyServerHelloDone, LegacyClientHelloDone:
		// no payload
	case LegacyClientHello:
		buf = putUint16BE(buf, LegacyProtoRev)
		buf = putLegacyString(buf, m.SelfID)
	case LegacyProtoUnsup:
		buf = putUint16BE(buf, m.ProtoRev)
	case LegacyServerHello:
		buf = append(buf, m.EntryFlags)
		buf = putLegacyString(buf, m.SelfID)
	case LegacyEntryAssign:
		buf = putLegacyString(buf, m.Name)
		typeByte, err := value.EncodeLegacyType(m.Value.Type)
		if err != nil {
			return nil, err
		}
		buf = append(buf, typeByte...)
		buf = putUint16BE(buf, m.ID)
		buf = putUint16BE(buf, m.SeqNum)
		buf = append(buf, m.EntryFlags)
		vb, err := value.EncodeLegacyValue(m.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	case LegacyEntryUpdate:
		buf = putUint16BE(buf, m.ID)
		buf = putUint16BE(buf, m.SeqNum)
		typeByte, err := value.EncodeLegacyType(m.Value.Type)
		if err != nil {
			return nil, err
		}
		buf = append(buf, typeByte...)
		vb, err := value.EncodeLegacyValue(m.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	case LegacyFlagsUpdate:
		buf = putUint16BE(buf, m.ID)
		buf = append(buf, m.EntryFlags)
	case LegacyEntryDelete:
		buf = putUint16BE(buf, m.ID)
	case LegacyClearEntries:
		buf = append(buf, byte(legacyClearMagic>>24), byte(legacyClearMagic>>16), byte(legacyClearMagic>>8), byte(legacyClearMagic))
	default:
		return nil, value.ErrUnknownType
	}
	return buf, nil
}

// DecodeLegacyMessages parses as many complete messages as buf holds,
// returning the unconsumed trailing bytes (a message split across two WS
// binary frames) for the caller to prepend to the next read.
func DecodeLegacyMessages(buf []byte) ([]LegacyMessage, []byte, error) {
	var msgs []LegacyMessage
	off := 0
	for off < len(buf) {
		m, next, ok, err := decodeOneLegacyMessage(buf, off)
		if err != nil {
			return msgs, nil, err
		}
		if !ok {
			break // incomplete trailing message, wait for more data
		}
		msgs = append(msgs, m)
		off = next
	}
	return msgs, buf[off:], nil
}

func decodeOneLegacyMessage(buf []byte, off int) (LegacyMessage, int, bool, error) {
	if off >= len(buf) {
		return LegacyMessage{}, 0, false, nil
	}
	typ := LegacyMsgType(buf[off])
	off++
	m := LegacyMessage{Type: typ}
	switch typ {
	case LegacyKeepAlive, LegacyServerHelloDone, LegacyClientHelloDone:
		return m, off, true, nil
	case LegacyClientHello:
		rev, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		if rev < LegacyProtoRev {
			m.ProtoRev = rev
			return m, off, true, nil
		}
		s, next, ok := getLegacyString(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		m.ProtoRev = rev
		m.SelfID = s
		return m, next, true, nil
	case LegacyProtoUnsup:
		rev, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		m.ProtoRev = rev
		return m, off + 2, true, nil
	case LegacyServerHello:
		if off >= len(buf) {
			return m, 0, false, nil
		}
		m.EntryFlags = buf[off]
		off++
		s, next, ok := getLegacyString(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		m.SelfID = s
		return m, next, true, nil
	case LegacyEntryAssign:
		name, next, ok := getLegacyString(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off = next
		typ2, next, err := value.DecodeLegacyType(buf, off)
		if err != nil {
			return LegacyMessage{}, 0, false, err
		}
		off = next
		id, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		seq, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		if off >= len(buf) {
			return m, 0, false, nil
		}
		flags := buf[off]
		off++
		v, next, err := value.DecodeLegacyValue(buf, off, typ2)
		if err != nil {
			return LegacyMessage{}, 0, false, err
		}
		m.Name = name
		m.ID = id
		m.SeqNum = seq
		m.EntryFlags = flags
		m.Value = v
		return m, next, true, nil
	case LegacyEntryUpdate:
		id, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		seq, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		typ2, next, err := value.DecodeLegacyType(buf, off)
		if err != nil {
			return LegacyMessage{}, 0, false, err
		}
		off = next
		v, next, err := value.DecodeLegacyValue(buf, off, typ2)
		if err != nil {
			return LegacyMessage{}, 0, false, err
		}
		m.ID = id
		m.SeqNum = seq
		m.Value = v
		return m, next, true, nil
	case LegacyFlagsUpdate:
		id, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 2
		if off >= len(buf) {
			return m, 0, false, nil
		}
		m.ID = id
		m.EntryFlags = buf[off]
		return m, off + 1, true, nil
	case LegacyEntryDelete:
		id, ok := getUint16BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		m.ID = id
		return m, off + 2, true, nil
	case LegacyClearEntries:
		magic, ok := getUint32BE(buf, off)
		if !ok {
			return m, 0, false, nil
		}
		off += 4
		if magic != legacyClearMagic {
			return LegacyMessage{}, off, true, nil // zero message: callers treat it as a keep-alive
		}
		return m, off, true, nil
	default:
		return LegacyMessage{}, 0, false, value.ErrUnknownType
	}
}
