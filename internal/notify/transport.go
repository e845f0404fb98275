package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var now = time.Now

// ============================================================================
// NATS
// ============================================================================

// Publisher is the subset of *nats.Conn used to publish.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each notification on "<prefix>.<kind>".
type NATSNotifier struct {
	conn   Publisher
	prefix string
}

// NewNATSNotifier creates a NATS-backed notifier.
func NewNATSNotifier(conn Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = "postershop.notify"
	}
	return &NATSNotifier{conn: conn, prefix: prefix}
}

// DialNATS connects to a NATS server.
func DialNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	payload, err := json.Marshal(Message{Kind: kind, Recipient: recipient, Data: data, SentAt: now()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.conn.Publish(n.prefix+"."+string(kind), payload); err != nil {
		return fmt.Errorf("publish %s notification: %w", kind, err)
	}
	return nil
}

// ============================================================================
// Kafka
// ============================================================================

// MessageWriter is the subset of *kafka.Writer used to publish.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes each notification to one topic, keyed by recipient so
// a recipient's notifications stay ordered.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter creates a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (k *KafkaNotifier) Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	payload, err := json.Marshal(Message{Kind: kind, Recipient: recipient, Data: data, SentAt: now()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s notification: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// ============================================================================
// Log
// ============================================================================

// LogNotifier only logs. Used when no transport is configured.
type LogNotifier struct {
	logger *otelzap.Logger
}

// NewLogNotifier creates a notifier that writes to the log.
func NewLogNotifier(logger *otelzap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	l.logger.Info("Sending notification",
		zap.String("kind", string(kind)),
		zap.String("recipient", recipient),
		zap.Int("fields", len(data)),
	)
	return nil
}

var (
	_ Notifier = (*NATSNotifier)(nil)
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
