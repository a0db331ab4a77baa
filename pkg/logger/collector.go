package logger

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships aggregated logs; the Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period, default 30s
	CountThreshold int           // distinct entries that force an early flush, default 100
	Topic          string
	Publisher      Publisher
	PublishTimeout time.Duration // default 10s
}

// AggregatedLogEntry counts repeats of one log line between flushes.
// Fields holds the most recent occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector groups error logs by level, call site and message, so a
// failing training loop yields one counted entry per flush. Fields such as
// run IDs differ per occurrence and are not part of the key.
type LogCollector struct {
	cfg      CollectionConfig
	mu       sync.Mutex
	entries  map[string]*AggregatedLogEntry
	closed   bool
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	fallback zerolog.Logger
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	c := &LogCollector{
		cfg:      cfg,
		entries:  make(map[string]*AggregatedLogEntry),
		stop:     make(chan struct{}),
		fallback: zerolog.New(os.Stderr).With().Timestamp().Str("component", "log_collector").Logger(),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// AddLog records one occurrence. Logs arriving after Close are dropped.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := level + "|" + caller + "|" + message

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e, ok := c.entries[key]
	if !ok {
		e = &AggregatedLogEntry{Level: level, Message: message, Caller: caller, FirstSeen: now}
		c.entries[key] = e
	}
	e.Count++
	e.LastSeen = now
	e.Fields = fields

	var batch []AggregatedLogEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drainLocked()
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if batch != nil {
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if len(batch) > 0 {
		c.publish(batch)
	}
}

// drainLocked empties the map, oldest entry first.
func (c *LogCollector) drainLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PublishTimeout)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		c.fallback.Error().Err(err).Int("entries", len(batch)).Msg("failed to send aggregated logs")
	}
}

// Close publishes what is pending and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
		c.wg.Wait()
	})
}
