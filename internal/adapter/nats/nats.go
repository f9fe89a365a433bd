// Package nats implements the message queue port using NATS JetStream,
// plus the KV bucket used by the shared job status cache tier.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/formulab/desbank/internal/port/messagequeue"
)

const (
	streamName    = "DESBANK"
	reconnectWait = 2 * time.Second
)

// streamSubjects covers every lifecycle subject the engine publishes.
var streamSubjects = []string{"feedback.>", "recommendations.>"}

// Queue implements messagequeue.Queue on a JetStream-enabled NATS
// connection.
type Queue struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials NATS and ensures the lifecycle event stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	conn, err := nats.Connect(url,
		nats.Name("desbank"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: streamSubjects,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{conn: conn, js: js}, nil
}

// KeyValue creates or opens the named JetStream KV bucket. Entries
// expire after ttl; job status records rely on this for their bounded
// lifetime.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Publish sends data on subject through JetStream.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches an explicit-ack consumer for subject. Handler
// errors Nak the message so JetStream redelivers it.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(context.Background(), msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cons.Stop, nil
}

// Drain flushes pending messages and subscriptions before closing.
func (q *Queue) Drain() error {
	return q.conn.Drain()
}

// Close tears the connection down immediately.
func (q *Queue) Close() error {
	q.conn.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.conn.IsConnected()
}
