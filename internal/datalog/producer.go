// Package datalog implements storage.DataLogObserver over a twmb/franz-go
// producer: every matching topic/value mutation is mirrored onto a Kafka
// (or Redpanda) topic instead of the local disk .wpilog files the
// original used, so an external consumer (a fleet dashboard, a replay
// service) gets the same data_log stream ntcore produces.
//
// Grounded on ws/kafka/consumer.go's franz-go client construction,
// adapted from the teacher's consumer direction to a producer: this
// module is the one writing data log events onto the bus, not reading
// them off of it.
package datalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

// Config mirrors the teacher's ConsumerConfig, narrowed to what a
// producer needs.
type Config struct {
	Brokers []string
	Topic   string
	Logger  *zerolog.Logger
}

// entry is the JSON shape written for both topic-metadata and value
// records; Value is omitted for a metadata-only record.
type entry struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Value      any            `json:"value,omitempty"`
	Timestamp  int64          `json:"timestamp_us,omitempty"`
}

// Producer implements storage.DataLogObserver over a Kafka topic.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *zerolog.Logger

	mu              sync.Mutex
	recordsWritten  uint64
	recordsFailed   uint64
	pauseUntilAfter func() bool // optional backpressure hook, e.g. resourceguard.Guard.ShouldPauseDataLog
}

// NewProducer builds a franz-go producer client, the same SeedBrokers
// construction ws/kafka/consumer.go uses on the consuming side.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("datalog: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("datalog: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchMaxBytes(1024*1024),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("datalog: create kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic, logger: cfg.Logger}, nil
}

// SetPauseHook installs a callback consulted before every record write;
// when it returns true the record is dropped rather than blocking the
// caller (the storage mutex holder), the producer-side analog of the
// teacher's consumer pausing under CPU pressure.
func (p *Producer) SetPauseHook(fn func() bool) { p.pauseUntilAfter = fn }

// LogTopic implements storage.DataLogObserver: a metadata-only record
// whenever a matching topic's type/properties change.
func (p *Producer) LogTopic(topic *storage.Topic) {
	p.produce(topic.Name, entry{
		Name:       topic.Name,
		Type:       topic.TypeString,
		Properties: topic.Properties,
	})
}

// LogValue implements storage.DataLogObserver: one record per accepted
// value on a matching topic.
func (p *Producer) LogValue(topic *storage.Topic, v value.Value) {
	p.produce(topic.Name, entry{
		Name:      topic.Name,
		Type:      topic.TypeString,
		Value:     valuePayload(v),
		Timestamp: v.ServerTime,
	})
}

func (p *Producer) produce(key string, e entry) {
	if p.pauseUntilAfter != nil && p.pauseUntilAfter() {
		p.incrementFailed()
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logFor("marshal").Err(err).Str("topic", key).Msg("datalog: failed to marshal entry")
		p.incrementFailed()
		return
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: payload}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logFor("produce").Err(err).Str("topic", key).Msg("datalog: produce failed")
			p.incrementFailed()
			return
		}
		p.incrementWritten()
	})
}

func valuePayload(v value.Value) any {
	switch v.Type {
	case value.Boolean:
		return v.Bool
	case value.Integer:
		return v.Int
	case value.Float:
		return v.F32
	case value.Double:
		return v.F64
	case value.String:
		return v.Str
	case value.Raw, value.RPC:
		return v.Raw
	case value.BooleanArray:
		return v.BoolArray
	case value.IntegerArray:
		return v.IntArray
	case value.FloatArray:
		return v.F32Array
	case value.DoubleArray:
		return v.F64Array
	case value.StringArray:
		return v.StrArray
	default:
		return nil
	}
}

// Close implements storage.DataLogObserver: flushes outstanding records
// and closes the client.
func (p *Producer) Close() error {
	if err := p.client.Flush(context.Background()); err != nil {
		return fmt.Errorf("datalog: flush: %w", err)
	}
	p.client.Close()
	if p.logger != nil {
		written, failed := p.Metrics()
		p.logger.Info().
			Uint64("records_written", written).
			Uint64("records_failed", failed).
			Msg("datalog producer stopped")
	}
	return nil
}

// Metrics returns the running write/failure counts.
func (p *Producer) Metrics() (written, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordsWritten, p.recordsFailed
}

func (p *Producer) incrementWritten() {
	p.mu.Lock()
	p.recordsWritten++
	p.mu.Unlock()
}

func (p *Producer) incrementFailed() {
	p.mu.Lock()
	p.recordsFailed++
	p.mu.Unlock()
}

func (p *Producer) logFor(op string) *zerolog.Event {
	if p.logger == nil {
		nop := zerolog.Nop()
		return nop.Error()
	}
	return p.logger.Error().Str("op", op)
}
