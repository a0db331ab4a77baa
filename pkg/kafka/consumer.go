package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	applogger "ModelHub/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerConfig mirrors the kafka.consumer config section. Zero values take defaults.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Workers    int
	BufferSize int
	// DLQTopic receives failed messages with source_topic and error headers. Empty disables it.
	DLQTopic string
	MinBytes int
	MaxBytes int
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.GroupID == "" {
		c.GroupID = "modelhub"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 10
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
	return c
}

type message struct {
	topic string
	km    kafka.Message
}

// Consumer fans messages from one reader per topic out to a worker pool.
// Each message is handled once, then committed; a failure goes to the DLQ
// and is never redelivered here.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	hooks    []Hook
	dlq      *Producer

	queue    chan *message
	stop     chan struct{}
	stopOnce sync.Once
	workers  sync.WaitGroup

	partMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

func NewConsumer(cfg ConsumerConfig, log *applogger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = applogger.NewNop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log,
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		queue:     make(chan *message, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		dlq, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers, MaxAttempts: 1})
		if err != nil {
			return nil, fmt.Errorf("dlq producer: %w", err)
		}
		c.dlq = dlq
	}
	initMetricsOnce()
	return c, nil
}

// RegisterHandler binds handler to its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// AddHook appends h; hooks run in registration order. Call before Start.
func (c *Consumer) AddHook(h Hook) {
	c.hooks = append(c.hooks, h)
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			for msg := range c.queue {
				c.process(msg)
			}
		}()
	}

	var fetchers sync.WaitGroup
	for topic, r := range c.readers {
		fetchers.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer fetchers.Done()
			c.fetch(topic, r)
		}(topic, r)
	}
	// workers drain the queue once every fetcher has stopped feeding it
	go func() {
		fetchers.Wait()
		close(c.queue)
	}()

	c.log.Info("kafka consumer started",
		applogger.Int("workers", c.cfg.Workers),
		applogger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop cancels fetches, waits for buffered messages to finish until ctx ends,
// then closes readers and the DLQ producer.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)

		done := make(chan struct{})
		go func() {
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer workers: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if cerr := c.dlq.Close(); cerr != nil {
			c.log.Warn("kafka dlq close failed", applogger.Error(cerr))
		}
		if err == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-c.stop:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// a full queue blocks the fetcher, which is the backpressure
		select {
		case c.queue <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.stop:
			return
		}
	}
}

// process handles msg exactly once and commits it whatever the outcome.
func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()

	// one in-flight message per partition keeps commits ordered
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	result := "ok"
	if err := c.invoke(handler, msg); err != nil {
		result = "error"
		c.log.Error("kafka message handling failed",
			applogger.String("topic", msg.topic),
			applogger.Int("partition", msg.km.Partition),
			applogger.Int64("offset", msg.km.Offset),
			applogger.Error(err),
		)
		c.deadLetter(msg, err)
	}

	if r := c.readers[msg.topic]; r != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.CommitMessages(ctx, msg.km); err != nil {
			c.log.Warn("kafka commit failed", applogger.String("topic", msg.topic), applogger.Error(err))
		}
		cancel()
	}
	consumerHandled.WithLabelValues(msg.topic, result).Inc()
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) invoke(handler MessageHandler, msg *message) (err error) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		for _, h := range c.hooks {
			if h.After != nil {
				h.After(ctx, msg.km, err)
			}
		}
	}()

	for _, h := range c.hooks {
		if h.Before == nil {
			continue
		}
		if ctx, err = h.Before(ctx, msg.km); err != nil {
			return err
		}
	}
	return handler.Handle(ctx, msg.km.Value)
}

func (c *Consumer) deadLetter(msg *message, cause error) {
	if c.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.Publish(ctx, c.cfg.DLQTopic, msg.km.Key, msg.km.Value,
		kafka.Header{Key: "source_topic", Value: []byte(msg.topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(err))
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.partMu.Lock()
	defer c.partMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}
