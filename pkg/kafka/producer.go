package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig mirrors the kafka section of the service config.
// Zero values fall back to the defaults in withDefaults.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int(kafka.RequireAll)
	}
	if c.Compression == "" {
		c.Compression = "gzip"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1 << 20
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	return c
}

// ProducerOption tweaks the writer beyond what ProducerConfig carries.
type ProducerOption func(*kafka.Writer)

// WithKeyHashing routes equal keys to one partition, so all events of a run stay ordered.
func WithKeyHashing() ProducerOption {
	return func(w *kafka.Writer) {
		w.Balancer = &kafka.Hash{}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON payloads. It is shared by run events, the log
// collector and the consumer's dead-letter path.
type Producer struct {
	w messageWriter
}

func NewProducer(cfg ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	cfg = cfg.withDefaults()

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	for _, opt := range opts {
		opt(w)
	}

	initMetricsOnce()
	return &Producer{w: w}, nil
}

// Publish writes one message. []byte and string values are sent as is,
// anything else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error {
	payload, err := encode(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   payload,
		Headers: headers,
		Time:    start,
	})
	observePublish(topic, len(payload), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishMessage satisfies logger.Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerPublished *prometheus.CounterVec
	producerBytes     *prometheus.CounterVec
	producerLatency   *prometheus.HistogramVec

	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandled       *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec

	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

// SetMetricsRegisterer redirects producer and consumer metrics, e.g. to an
// isolated registry in tests. It must run before the first client is built.
func SetMetricsRegisterer(reg prometheus.Registerer) { metricsRegisterer = reg }

func initMetricsOnce() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)
		producerPublished = f.NewCounterVec(
			prometheus.CounterOpts{Name: "modelhub_kafka_producer_messages_total", Help: "Messages published by result"},
			[]string{"topic", "result"},
		)
		producerBytes = f.NewCounterVec(
			prometheus.CounterOpts{Name: "modelhub_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic"},
		)
		producerLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "modelhub_kafka_producer_publish_seconds", Help: "Publish latency"},
			[]string{"topic"},
		)
		consumerQueueDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "modelhub_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandled = f.NewCounterVec(
			prometheus.CounterOpts{Name: "modelhub_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "modelhub_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}

func observePublish(topic string, size int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerPublished.WithLabelValues(topic, result).Inc()
	producerBytes.WithLabelValues(topic).Add(float64(size))
	producerLatency.WithLabelValues(topic).Observe(d.Seconds())
}
