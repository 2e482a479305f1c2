package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

// SignalEvent is the wire payload for both topics.
type SignalEvent struct {
	Type           string     `json:"type"` // "signal" or "status"
	Ref            string     `json:"ref"`
	Symbol         string     `json:"symbol"`
	Direction      string     `json:"direction"`
	Entry          float64    `json:"entry"`
	StopLoss       float64    `json:"stop_loss"`
	TakeProfits    []float64  `json:"take_profits"`
	Confidence     int        `json:"confidence"`
	Timeframe      string     `json:"timeframe"`
	Priority       string     `json:"priority"`
	MinTier        string     `json:"min_tier"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	ResultPips     *float64   `json:"result_pips,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stream implements ports.SignalStream over a Kafka writer.
// Messages are keyed by signal ref so one signal's events stay ordered on a partition.
type Stream struct {
	writer      messageWriter
	signalTopic string
	statusTopic string
	now         func() time.Time
}

// NewStream creates a Kafka-backed signal stream.
func NewStream(opts ...ProducerOption) (*Stream, error) {
	cfg := &ProducerConfig{
		SignalTopic:  "signals",
		StatusTopic:  "signal-status",
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newStream(writer, cfg.SignalTopic, cfg.StatusTopic), nil
}

func newStream(w messageWriter, signalTopic, statusTopic string) *Stream {
	return &Stream{writer: w, signalTopic: signalTopic, statusTopic: statusTopic, now: time.Now}
}

// PublishSignal emits a newly published signal.
func (s *Stream) PublishSignal(ctx context.Context, sig *domain.Signal) error {
	return s.publish(ctx, s.signalTopic, eventFor("signal", sig, ""))
}

// PublishStatus emits a lifecycle transition.
func (s *Stream) PublishStatus(ctx context.Context, sig *domain.Signal, previous domain.SignalStatus) error {
	return s.publish(ctx, s.statusTopic, eventFor("status", sig, previous))
}

func (s *Stream) publish(ctx context.Context, topic string, ev SignalEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(ev.Ref),
		Value: value,
		Time:  s.now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w: %w", topic, ports.ErrConnectionFailed, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Stream) Close() error {
	return s.writer.Close()
}

func eventFor(kind string, sig *domain.Signal, previous domain.SignalStatus) SignalEvent {
	return SignalEvent{
		Type:           kind,
		Ref:            sig.Ref,
		Symbol:         sig.Symbol,
		Direction:      string(sig.Direction),
		Entry:          sig.Entry,
		StopLoss:       sig.StopLoss,
		TakeProfits:    sig.TakeProfits,
		Confidence:     sig.Confidence,
		Timeframe:      sig.Timeframe,
		Priority:       string(sig.Priority),
		MinTier:        sig.MinTier,
		Source:         string(sig.Source),
		Status:         string(sig.Status),
		PreviousStatus: string(previous),
		ResultPips:     sig.ResultPips,
		CreatedAt:      sig.CreatedAt,
		ClosedAt:       sig.ClosedAt,
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
