package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type staticHandler struct {
	topic string
}

func (h staticHandler) Topic() string                        { return h.topic }
func (h staticHandler) Handle(context.Context, []byte) error { return nil }

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestRegisterHandlerFirstWins(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	first := staticHandler{topic: "price-events"}
	second := staticHandler{topic: "price-events"}
	c.RegisterHandler(first)
	c.RegisterHandler(second)

	if got := c.handlers["price-events"]; got != first {
		t.Fatalf("expected first handler to stay registered, got %v", got)
	}
}

func TestWithConsumerHookIgnoresNil(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	c.WithConsumerHook(LoggingHook{})
	c.WithConsumerHook(nil)
	if _, ok := c.hook.(LoggingHook); !ok {
		t.Fatalf("nil hook must not replace the current one, got %T", c.hook)
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min := 50 * time.Millisecond
	max := 2 * time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 20; i++ {
			d := backoffWithJitter(min, max, attempt)
			if d < 0 || d > max {
				t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, d, max)
			}
		}
	}

	// Degenerate configuration still yields a usable delay.
	if d := backoffWithJitter(0, 0, 1); d < 0 {
		t.Fatalf("unexpected negative delay %v", d)
	}
}

func TestTraceIDFromHeaders(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "trace_id", Value: []byte("abc-123")},
	}}
	if got := traceID(km); got != "abc-123" {
		t.Fatalf("unexpected trace id %q", got)
	}
	if got := traceID(kafka.Message{}); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
}

func TestEncodeValue(t *testing.T) {
	if v, err := encodeValue([]byte("raw")); err != nil || string(v) != "raw" {
		t.Fatalf("bytes passthrough: %q %v", v, err)
	}
	if v, err := encodeValue("text"); err != nil || string(v) != "text" {
		t.Fatalf("string passthrough: %q %v", v, err)
	}
	v, err := encodeValue(map[string]int{"n": 1})
	if err != nil || string(v) != `{"n":1}` {
		t.Fatalf("json encoding: %q %v", v, err)
	}
}
