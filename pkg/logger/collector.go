package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Publisher ships aggregated log batches to a message topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls how log lines are deduplicated before
// they are shipped.
type CollectionConfig struct {
	TimeInterval   time.Duration
	CountThreshold int
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one deduplicated log line with its occurrence
// window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector batches identical log lines and flushes them either on
// a timer or when the number of distinct lines crosses the threshold.
type LogCollector struct {
	cfg     *CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*AggregatedLogEntry),
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.flushLoop(ctx)

	return c
}

// AddLog records one occurrence of a log line.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Close flushes pending entries and stops the timer goroutine.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *LogCollector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-ctx.Done():
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked hands the current batch to the publisher. Callers hold
// c.mu.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}

	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		batch = append(batch, *entry)
	}
	c.entries = make(map[string]*AggregatedLogEntry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			log.Error().Err(err).Str("topic", c.cfg.Topic).Msg("publish aggregated logs")
		}
	}()
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	payload, _ := json.Marshal(struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller})
	return fmt.Sprintf("%x", sha256.Sum256(payload))
}
