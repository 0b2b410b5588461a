// Package jetstream provides a NATS JetStream transport for mpiflow. Rank
// inboxes are durable pull consumers on one stream, so envelopes published
// before a rank subscribes are kept for it.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/mpiflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultStreamName is the stream every rank subject lives in.
	DefaultStreamName = "MPIFLOW"

	// DefaultMaxDeliver is the default max delivery attempts.
	DefaultMaxDeliver = 3

	// DefaultAckWait is the default ack wait timeout.
	DefaultAckWait = 30 * time.Second

	// DefaultMaxAge bounds how long an unconsumed envelope is kept.
	DefaultMaxAge = time.Hour

	// FetchBatch is the number of messages pulled per request.
	FetchBatch = 64
)

func init() {
	Register()
}

// Register registers the JetStream transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a new NATS JetStream transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{URL: cfg.GetNATSURL()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Config holds NATS JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the name of the JetStream stream to use.
	// If empty, defaults to DefaultStreamName.
	StreamName string

	// MaxDeliver is the maximum number of delivery attempts.
	MaxDeliver int

	// AckWait is the duration to wait for acknowledgment.
	AckWait time.Duration

	// MaxAge is how long the stream keeps envelopes.
	MaxAge time.Duration

	// Replicas is the number of stream replicas (for clustering).
	Replicas int

	// RetentionPolicy: "limits" (default), "interest", or "workqueue"
	RetentionPolicy string
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

func (c Config) streamConfig() *nats.StreamConfig {
	streamCfg := &nats.StreamConfig{
		Name:     c.StreamName,
		Subjects: []string{c.StreamName + ".>"},
		MaxAge:   c.MaxAge,
		Replicas: c.Replicas,
	}

	switch c.RetentionPolicy {
	case "interest":
		streamCfg.Retention = nats.InterestPolicy
	case "workqueue":
		streamCfg.Retention = nats.WorkQueuePolicy
	default:
		streamCfg.Retention = nats.LimitsPolicy
	}
	return streamCfg
}

func (c Config) consumerConfig(topic string) *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Durable:       consumerName(topic),
		FilterSubject: subject(c.StreamName, topic),
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    c.MaxDeliver,
		AckWait:       c.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
}

func subject(stream, topic string) string {
	return stream + "." + topic
}

// consumerName turns a topic into a legal durable name. Durable names may
// not contain dots.
func consumerName(topic string) string {
	return "inbox_" + strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(topic)
}

// Transport implements Publisher and Subscriber for NATS JetStream.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subscriptions map[string]*nats.Subscription
	subMu         sync.RWMutex

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
}

// New creates a new NATS JetStream transport.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("mpiflow-jetstream"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	t := &Transport{
		nc:            nc,
		js:            js,
		config:        cfg,
		logger:        logger,
		subscriptions: make(map[string]*nats.Subscription),
		closedChan:    make(chan struct{}),
	}

	if err := t.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return t, nil
}

func (t *Transport) ensureStream() error {
	streamCfg := t.config.streamConfig()
	if _, err := t.js.AddStream(streamCfg); err != nil {
		if _, err := t.js.UpdateStream(streamCfg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.closedMu.RLock()
	defer t.closedMu.RUnlock()
	return t.closed
}

// Publish publishes messages to the JetStream stream. The message UUID is
// used as the JetStream message id, so a retried publish is deduplicated.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return fmt.Errorf("transport is closed")
	}

	subj := subject(t.config.StreamName, topic)
	for _, msg := range messages {
		headers := nats.Header{}
		for k, v := range msg.Metadata {
			headers.Set(k, v)
		}
		headers.Set(nats.MsgIdHdr, msg.UUID)

		natsMsg := &nats.Msg{
			Subject: subj,
			Data:    msg.Payload,
			Header:  headers,
		}
		if _, err := t.js.PublishMsg(natsMsg); err != nil {
			return fmt.Errorf("failed to publish to JetStream: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to a topic and returns a channel of messages.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("transport is closed")
	}

	consumerCfg := t.config.consumerConfig(topic)
	if _, err := t.js.AddConsumer(t.config.StreamName, consumerCfg); err != nil {
		if _, err := t.js.UpdateConsumer(t.config.StreamName, consumerCfg); err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := t.js.PullSubscribe(consumerCfg.FilterSubject, consumerCfg.Durable, nats.Bind(t.config.StreamName, consumerCfg.Durable))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	t.subMu.Lock()
	t.subscriptions[topic] = sub
	t.subMu.Unlock()

	output := make(chan *message.Message)
	go t.fetchMessages(ctx, sub, output, topic)

	return output, nil
}

func (t *Transport) fetchMessages(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closedChan:
			return
		default:
		}

		msgs, err := sub.Fetch(FetchBatch, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			t.logger.Error("Failed to fetch messages", err, watermill.LogFields{"topic": topic})
			continue
		}

		for _, natsMsg := range msgs {
			if !t.deliver(ctx, natsMsg, output) {
				return
			}
		}
	}
}

// deliver hands one message to the subscriber and settles it with the
// server once the subscriber acks or nacks.
func (t *Transport) deliver(ctx context.Context, natsMsg *nats.Msg, output chan<- *message.Message) bool {
	wmMsg := toWatermill(natsMsg)
	wmMsg.SetContext(ctx)

	select {
	case output <- wmMsg:
	case <-ctx.Done():
		return false
	}

	select {
	case <-wmMsg.Acked():
		if err := natsMsg.Ack(); err != nil {
			t.logger.Error("Failed to ack", err, nil)
		}
	case <-wmMsg.Nacked():
		if err := natsMsg.Nak(); err != nil {
			t.logger.Error("Failed to nak", err, nil)
		}
	case <-ctx.Done():
		return false
	}
	return true
}

func toWatermill(natsMsg *nats.Msg) *message.Message {
	msgID := natsMsg.Header.Get(nats.MsgIdHdr)
	if msgID == "" {
		msgID = watermill.NewULID()
	}

	wmMsg := message.NewMessage(msgID, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if len(v) > 0 && k != nats.MsgIdHdr {
			wmMsg.Metadata.Set(k, v[0])
		}
	}
	return wmMsg
}

// Close closes the JetStream transport. Durable consumers stay on the
// server.
func (t *Transport) Close() error {
	t.closedMu.Lock()
	if t.closed {
		t.closedMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closedChan)
	t.closedMu.Unlock()

	t.subMu.Lock()
	for _, sub := range t.subscriptions {
		_ = sub.Unsubscribe()
	}
	t.subscriptions = make(map[string]*nats.Subscription)
	t.subMu.Unlock()

	t.nc.Close()
	return nil
}

// Capabilities returns the JetStream transport capabilities.
func (t *Transport) Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}
