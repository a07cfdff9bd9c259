package client

import (
	"github.com/jabolina/networktables/internal/handle"
	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

func wireOptions(o storage.Options) *ntnet.WireOptions {
	return ntnet.ToWireOptions(o.PeriodicMs, o.SendAll, o.KeepDuplicates, o.DisableRemote, o.DisableLocal, o.TopicsOnly, o.PrefixMatch, o.All)
}

// OnPublish implements storage.NetSink: a new local publisher is
// registered under a fresh pubuid and announced (or queued, if not yet
// connected). Under the legacy path (§4.7) there is no separate publish
// step — an entry and its type only come into existence together, on the
// first OnValue — so this is a no-op there.
func (c *Client) OnPublish(pub *storage.Publisher) {
	c.mu.Lock()
	if c.isLegacy {
		c.mu.Unlock()
		return
	}
	c.nextPubUID++
	pubuid := c.nextPubUID
	c.pubUIDByName[pub.Topic.Name] = pubuid
	params := ntnet.PublishParams{
		Name:       pub.Topic.Name,
		PubUID:     pubuid,
		Type:       pub.TypeString,
		Properties: pub.PropertiesAtPublish,
		Options:    wireOptions(pub.Options),
	}
	c.publishers[pubuid] = params
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if b, err := ntnet.EncodeControl(ntnet.MethodPublish, params); err == nil {
		conn.SendText(b)
	}
}

func (c *Client) OnUnpublish(pub *storage.Publisher, _ int) {
	c.mu.Lock()
	if c.isLegacy {
		id, known := c.legacyNameToID[pub.Topic.Name]
		delete(c.legacyNameToID, pub.Topic.Name)
		delete(c.legacyIDToName, id)
		delete(c.legacyOwnSeq, pub.Topic.Name)
		c.mu.Unlock()
		if known {
			c.sendLegacy(ntnet.LegacyMessage{Type: ntnet.LegacyEntryDelete, ID: id})
		}
		return
	}
	pubuid, ok := c.pubUIDByName[pub.Topic.Name]
	if ok {
		delete(c.pubUIDByName, pub.Topic.Name)
		delete(c.publishers, pubuid)
		delete(c.lastValue, pubuid)
	}
	conn := c.conn
	c.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	if b, err := ntnet.EncodeControl(ntnet.MethodUnpublish, ntnet.UnpublishParams{PubUID: pubuid}); err == nil {
		conn.SendText(b)
	}
}

func (c *Client) OnSetProperties(topic *storage.Topic, update map[string]any) {
	c.mu.Lock()
	if c.isLegacy {
		id, known := c.legacyNameToID[topic.Name]
		c.mu.Unlock()
		if !known {
			return
		}
		var flags uint8
		if persistent, _ := update["persistent"].(bool); persistent {
			flags = 0x01
		}
		c.sendLegacy(ntnet.LegacyMessage{Type: ntnet.LegacyFlagsUpdate, ID: id, EntryFlags: flags})
		return
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if b, err := ntnet.EncodeControl(ntnet.MethodSetProperties, ntnet.SetPropertiesParams{Name: topic.Name, Update: update}); err == nil {
		conn.SendText(b)
	}
}

// OnSubscribe/OnSubscribeMulti are no-ops under the legacy path (§4.7):
// every peer implicitly subscribes to the whole flat keyspace, so
// handleLegacyAssign/Update already deliver everything regardless of any
// local subscription.
func (c *Client) OnSubscribe(sub *storage.Subscriber) {
	if c.isLegacy {
		return
	}
	params := ntnet.SubscribeParams{Topics: []string{sub.Topic.Name}, Options: wireOptions(sub.Options)}
	c.registerSubscription(sub.Handle, params)
}

func (c *Client) OnSubscribeMulti(ms *storage.MultiSubscriber) {
	if c.isLegacy {
		return
	}
	opts := ms.Options
	opts.PrefixMatch = true
	params := ntnet.SubscribeParams{Topics: append([]string(nil), ms.Prefixes...), Options: wireOptions(opts)}
	c.registerSubscription(ms.Handle, params)
}

func (c *Client) registerSubscription(h handle.Handle, params ntnet.SubscribeParams) {
	c.mu.Lock()
	c.nextSubUID++
	subuid := c.nextSubUID
	params.SubUID = subuid
	c.subUIDByHandle[h] = subuid
	c.subscriptions[subuid] = params
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if b, err := ntnet.EncodeControl(ntnet.MethodSubscribe, params); err == nil {
		conn.SendText(b)
	}
}

func (c *Client) OnUnsubscribe(sub *storage.Subscriber) { c.unregisterSubscription(sub.Handle) }
func (c *Client) OnUnsubscribeMulti(ms *storage.MultiSubscriber) {
	c.unregisterSubscription(ms.Handle)
}

func (c *Client) unregisterSubscription(h handle.Handle) {
	c.mu.Lock()
	subuid, ok := c.subUIDByHandle[h]
	if ok {
		delete(c.subUIDByHandle, h)
		delete(c.subscriptions, subuid)
	}
	conn := c.conn
	c.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	if b, err := ntnet.EncodeControl(ntnet.MethodUnsubscribe, ntnet.UnsubscribeParams{SubUID: subuid}); err == nil {
		conn.SendText(b)
	}
}

// OnValue implements storage.NetSink: every accepted local value is sent
// immediately (tagged with this publisher's pubuid) and latched as the
// last-known value for reconnect re-emission (§4.6). Under the legacy
// path (§4.7), the first value for a name sends an entry-assign (the
// type/value and the "publish" all happen at once there); every value
// after that is an entry-update carrying this client's own seq_num
// counter for the name.
func (c *Client) OnValue(pub *storage.Publisher, v value.Value) {
	if c.isLegacy {
		nv := value.NarrowForLegacy(v)
		name := pub.Topic.Name
		c.mu.Lock()
		seq := c.legacyOwnSeq[name] + 1
		c.legacyOwnSeq[name] = seq
		id, known := c.legacyNameToID[name]
		c.mu.Unlock()
		if known {
			c.sendLegacy(ntnet.LegacyMessage{Type: ntnet.LegacyEntryUpdate, ID: id, SeqNum: seq, Value: nv})
		} else {
			c.sendLegacy(ntnet.LegacyMessage{Type: ntnet.LegacyEntryAssign, Name: name, SeqNum: seq, Value: nv})
		}
		return
	}

	c.mu.Lock()
	pubuid, ok := c.pubUIDByName[pub.Topic.Name]
	if !ok {
		c.mu.Unlock()
		return
	}
	b, err := ntnet.EncodeValue(pubuid, v)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.lastValue[pubuid] = b
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.SendBinary(b)
	}
}
