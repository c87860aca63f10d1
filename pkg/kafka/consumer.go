package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds reader and worker pool settings.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
}

// WithConsumerBrokers sets the broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerWorkers sets the worker goroutine count.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.WorkerCount = count
	}
}

// WithConsumerRetry sets the retry budget and backoff window per
// message.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to the
// given topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerFetch sets reader fetch min and max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the internal queue length between
// readers and workers.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// Consumer reads registered topics and dispatches messages to a
// worker pool. Handling is serialized per partition so offsets stay
// ordered.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	queue    chan *queuedMessage
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	lockMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type queuedMessage struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a consumer. At least one broker is required;
// readers are opened by Start once handlers are registered.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		queue:     make(chan *queuedMessage, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		partLocks: make(map[string]map[int]*sync.Mutex),
	}

	consumerMetricsInit.Do(registerConsumerMetrics)

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	return c, nil
}

// WithConsumerHook replaces the lifecycle hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. The first handler per
// topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Warn().Str("topic", topic).Msg("kafka handler already registered")
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and launches the worker
// pool.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		log.Info().Str("topic", topic).Msg("kafka consumer subscribed")
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}

	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Info().Int("workers", c.cfg.WorkerCount).Msg("kafka consumer started")
	return nil
}

// Stop drains readers and workers, then closes the readers and the
// DLQ writer.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stopChan)
		close(c.queue)

		stopErr = c.waitStopped(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				log.Error().Str("topic", topic).Err(err).Msg("close kafka reader")
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				log.Error().Err(err).Msg("close kafka dlq writer")
			}
		}

		if stopErr == nil {
			log.Info().Msg("kafka consumer stopped")
		}
	})

	return stopErr
}

func (c *Consumer) waitStopped(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for consumer stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Error().Str("topic", topic).Err(err).Msg("kafka read")
			}
			continue
		}

		if !c.enqueue(&queuedMessage{topic: topic, km: km}) {
			return
		}
	}
}

// enqueue pushes a message to the worker queue, yielding instead of
// dropping while the queue is full. Returns false when the consumer
// is stopping.
func (c *Consumer) enqueue(msg *queuedMessage) bool {
	for {
		select {
		case c.queue <- msg:
			consumerQueueDepth.WithLabelValues(msg.topic).Set(float64(len(c.queue)))
			consumerQueueFullness.WithLabelValues(msg.topic).Set(float64(len(c.queue)) / float64(cap(c.queue)))
			return true
		case <-c.stopChan:
			return false
		default:
			fullness := float64(len(c.queue)) / float64(cap(c.queue))
			consumerQueueFullness.WithLabelValues(msg.topic).Set(fullness)
			if fullness > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()

	for msg := range c.queue {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}
		c.process(handler, msg)
	}
}

func (c *Consumer) process(handler MessageHandler, msg *queuedMessage) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("topic", msg.topic).Interface("panic", r).Msg("kafka handler panic")
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	// One in-flight message per partition keeps commits ordered.
	lock := c.partitionLock(msg.topic, msg.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	var err error
	for attempt := 1; ; attempt++ {
		hctx, hkm, hdata, berr := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			err = berr
			break
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.topic, hkm, hdata, err)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.km.Value, err)
		c.sendToDLQ(msg)
	}

	// Commit on success, or after DLQ routing to break poison loops.
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
}

func (c *Consumer) sendToDLQ(msg *queuedMessage) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	})
	if err != nil {
		log.Error().Str("dlq", c.cfg.DLQTopic).Err(err).Msg("kafka dlq write")
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Error().Int("attempts", max).Err(err).Msg("kafka commit")
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	byPart, ok := c.partLocks[topic]
	if !ok {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	lock, ok := byPart[partition]
	if !ok {
		lock = &sync.Mutex{}
		byPart[partition] = lock
	}
	return lock
}

// backoffWithJitter grows exponentially from min toward max and
// subtracts up to half the delay so retries desynchronize.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	delay := min * time.Duration(1<<uint(attempt-1))
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay - jitter
}

var (
	consumerMetricsInit   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "coincast_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
		[]string{"topic"},
	)
	consumerQueueFullness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "coincast_kafka_consumer_queue_fullness", Help: "Queue utilization ratio (len/cap)"},
		[]string{"topic"},
	)
	consumerHandleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Name: "coincast_kafka_consumer_handle_seconds", Help: "Handling time per message"},
		[]string{"topic"},
	)
}
