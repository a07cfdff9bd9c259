// Package net implements the wire-facing control/value message shapes and
// the connection plumbing shared by the server and client cores (§6).
// Local storage never sees this package; it talks through the
// storage.NetSink boundary instead.
package net

import (
	"encoding/json"

	"github.com/jabolina/networktables/internal/value"
)

// Control message method names (§6).
const (
	MethodPublish       = "publish"
	MethodUnpublish     = "unpublish"
	MethodSetProperties = "setproperties"
	MethodSubscribe     = "subscribe"
	MethodUnsubscribe   = "unsubscribe"
	MethodAnnounce      = "announce"
	MethodUnannounce    = "unannounce"
	MethodProperties    = "properties"
)

// PublishParams is a client->server `publish` message.
type PublishParams struct {
	Name       string         `json:"name"`
	PubUID     uint32         `json:"pubuid"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Options    *WireOptions   `json:"options,omitempty"`
}

// UnpublishParams is a client->server `unpublish` message.
type UnpublishParams struct {
	PubUID uint32 `json:"pubuid"`
}

// SetPropertiesParams is a client->server `setproperties` message.
type SetPropertiesParams struct {
	Name   string         `json:"name"`
	Update map[string]any `json:"update"`
}

// SubscribeParams is a client->server `subscribe` message. Topics holds
// either exact topic names or prefixes, discriminated by Options.PrefixMatch.
type SubscribeParams struct {
	SubUID  uint32       `json:"subuid"`
	Topics  []string     `json:"topics"`
	Options *WireOptions `json:"options,omitempty"`
}

// UnsubscribeParams is a client->server `unsubscribe` message.
type UnsubscribeParams struct {
	SubUID uint32 `json:"subuid"`
}

// AnnounceParams is a server->client `announce` message. PubUID is only
// populated when echoed back to the publishing client (§4.5 rule 5).
type AnnounceParams struct {
	Name       string         `json:"name"`
	ID         uint32         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	PubUID     *uint32        `json:"pubuid,omitempty"`
}

// UnannounceParams is a server->client `unannounce` message.
type UnannounceParams struct {
	Name string `json:"name"`
	ID   uint32 `json:"id"`
}

// PropertiesParams is a server->client `properties` message, also reused
// client->server for setproperties acknowledgement (Ack true) when the
// caller wants one (§6).
type PropertiesParams struct {
	Name   string         `json:"name"`
	Update map[string]any `json:"update"`
	Ack    bool           `json:"ack,omitempty"`
}

// WireOptions mirrors the subset of storage.Options the wire exposes
// (§4.4, §6); fields absent from a given control message are left zero.
type WireOptions struct {
	PeriodicMs     int  `json:"periodic,omitempty"`
	SendAll        bool `json:"sendAll,omitempty"`
	KeepDuplicates bool `json:"keepDuplicates,omitempty"`
	DisableRemote  bool `json:"disableRemote,omitempty"`
	DisableLocal   bool `json:"disableLocal,omitempty"`
	TopicsOnly     bool `json:"topicsOnly,omitempty"`
	PrefixMatch    bool `json:"prefixMatch,omitempty"`
	All            bool `json:"all,omitempty"`
}

// EncodeControl wraps a params value into a framed JSON control message
// for the given method (§4.1).
func EncodeControl(method string, params any) ([]byte, error) {
	return value.EncodeText(method, params)
}

// DecodeControl parses the method envelope; the caller then unmarshals
// Params into the concrete struct for that method.
func DecodeControl(b []byte) (value.ControlMessage, error) {
	return value.DecodeText(b)
}

// DecodeParams is a convenience wrapper unmarshaling a ControlMessage's raw
// params into dst.
func DecodeParams(cm value.ControlMessage, dst any) error {
	return json.Unmarshal(cm.Params, dst)
}

// ValueFrame is one decoded binary value frame (§6): id is the publisher's
// pubuid on egress from a client and the topic's id on egress from the
// server.
type ValueFrame struct {
	ID    uint32
	Value value.Value
}

// EncodeValue encodes one binary value frame.
func EncodeValue(id uint32, v value.Value) ([]byte, error) {
	return value.EncodeBinary(id, v.ClientTime, v)
}

// DecodeValue decodes one binary value frame.
func DecodeValue(b []byte) (ValueFrame, error) {
	id, clientTime, v, err := value.DecodeBinary(b)
	if err != nil {
		return ValueFrame{}, err
	}
	v.ClientTime = clientTime
	return ValueFrame{ID: id, Value: v}, nil
}

// ToWireOptions projects the fields of storage.Options the wire carries.
// Declared here (not in internal/storage) to keep storage free of any wire
// awareness, per the NetSink boundary doc comment.
func ToWireOptions(periodicMs int, sendAll, keepDuplicates, disableRemote, disableLocal, topicsOnly, prefixMatch, all bool) *WireOptions {
	return &WireOptions{
		PeriodicMs:     periodicMs,
		SendAll:        sendAll,
		KeepDuplicates: keepDuplicates,
		DisableRemote:  disableRemote,
		DisableLocal:   disableLocal,
		TopicsOnly:     topicsOnly,
		PrefixMatch:    prefixMatch,
		All:            all,
	}
}

// ClientID identifies the owning connection for excludeSelf/excludePublisher
// bookkeeping against handle.Handle-addressed local state; PubUID and SubUID
// are only meaningful for the lifetime of one connection.
type ClientID = string
