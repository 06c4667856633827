package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventTypeHeader carries the event name on every pushed message.
const EventTypeHeader = "event_type"

// Handler receives the raw body of one pushed event.
type Handler func(raw []byte)

// PushSource is a long-lived subscription to change events.
type PushSource interface {
	// Listen blocks while the subscription is healthy. onOpen is called
	// once the connection is established. Listen returns when ctx is
	// cancelled or the connection is lost.
	Listen(ctx context.Context, onOpen func()) error
	Subscribe(eventName string, h Handler) (unsubscribe func())
}

// MessageReader is the part of *kafka.Reader the source uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	DialTimeout time.Duration
}

// KafkaSource delivers store change events published to a Kafka topic.
type KafkaSource struct {
	cfg       KafkaConfig
	log       *slog.Logger
	newReader func() MessageReader
	dial      func(ctx context.Context) error

	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
}

func NewKafkaSource(cfg KafkaConfig, log *slog.Logger) *KafkaSource {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	k := &KafkaSource{
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]map[int]Handler),
	}
	k.newReader = func() MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafka.LastOffset,
			MaxBytes:    10e6, // 10MB
		})
	}
	k.dial = k.dialBroker
	return k
}

func (k *KafkaSource) Listen(ctx context.Context, onOpen func()) error {
	if err := k.dial(ctx); err != nil {
		return fmt.Errorf("kafka connect: %w", err)
	}

	r := k.newReader()
	defer func() {
		if err := r.Close(); err != nil {
			k.log.Warn("error closing kafka reader", "error", err)
		}
	}()

	if onOpen != nil {
		onOpen()
	}

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		k.dispatch(m)
	}
}

func (k *KafkaSource) Subscribe(eventName string, h Handler) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.nextID
	k.nextID++
	if k.handlers[eventName] == nil {
		k.handlers[eventName] = make(map[int]Handler)
	}
	k.handlers[eventName][id] = h

	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.handlers[eventName], id)
		if len(k.handlers[eventName]) == 0 {
			delete(k.handlers, eventName)
		}
	}
}

func (k *KafkaSource) dispatch(m kafka.Message) {
	name := headerValue(m.Headers, EventTypeHeader)
	if name == "" {
		k.log.Warn("dropping message without event type", "topic", m.Topic, "offset", m.Offset)
		return
	}

	k.mu.RLock()
	hs := make([]Handler, 0, len(k.handlers[name]))
	for _, h := range k.handlers[name] {
		hs = append(hs, h)
	}
	k.mu.RUnlock()

	for _, h := range hs {
		h(m.Value)
	}
}

func (k *KafkaSource) dialBroker(ctx context.Context) error {
	if len(k.cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}
	d := &kafka.Dialer{Timeout: k.cfg.DialTimeout}
	var errs error
	for _, b := range k.cfg.Brokers {
		conn, err := d.DialContext(ctx, "tcp", b)
		if err == nil {
			return conn.Close()
		}
		errs = errors.Join(errs, err)
	}
	return errs
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
