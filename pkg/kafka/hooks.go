package kafka

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may rewrite
// the context and payload; a non-nil error skips the handler and
// routes the message through error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook observes nothing. It is the consumer's default.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// LoggingHook emits a structured line for every failed handling
// attempt, carrying the trace id when the message has one.
type LoggingHook struct{}

func (LoggingHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (LoggingHook) AfterHandle(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
	if err == nil {
		return
	}
	log.Warn().
		Str("topic", topic).
		Int("partition", km.Partition).
		Int64("offset", km.Offset).
		Str("trace_id", traceID(km)).
		Err(err).
		Msg("kafka message handling failed")
}

func (LoggingHook) OnError(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
	log.Error().
		Str("topic", topic).
		Int("partition", km.Partition).
		Int64("offset", km.Offset).
		Str("trace_id", traceID(km)).
		Err(err).
		Msg("kafka message handling gave up")
}

func traceID(km kafka.Message) string {
	for _, h := range km.Headers {
		if h.Key == "trace_id" {
			return string(h.Value)
		}
	}
	return ""
}
