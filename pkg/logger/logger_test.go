package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu    sync.Mutex
	calls chan []AggregatedLogEntry
	topic string
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	p.topic = topic
	p.mu.Unlock()
	p.calls <- payload.([]AggregatedLogEntry)
	return nil
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{calls: make(chan []AggregatedLogEntry, 1)}
	l := NewNop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "modelhub.logs",
		Publisher:      pub,
	})
	defer l.RemoveCollector()

	// same call site, so both land on one aggregated entry
	for i := 0; i < 2; i++ {
		l.Error("fit failed", String("family", "arima"), Error(errors.New("boom")))
	}
	l.Error("store failed", Float64("seconds", 1.5))

	select {
	case logs := <-pub.calls:
		require.Len(t, logs, 2)
		counts := map[string]int{}
		for _, e := range logs {
			counts[e.Message] = e.Count
		}
		assert.Equal(t, 2, counts["fit failed"])
		assert.Equal(t, 1, counts["store failed"])
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}
	pub.mu.Lock()
	assert.Equal(t, "modelhub.logs", pub.topic)
	pub.mu.Unlock()
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestFieldKeyValues(t *testing.T) {
	k, v := Float64("rmse", 0.5).GetKeyValue()
	assert.Equal(t, "rmse", k)
	assert.Equal(t, 0.5, v)

	k, v = Duration("took", 1500*time.Millisecond).GetKeyValue()
	assert.Equal(t, "took", k)
	assert.Equal(t, 1500, v)

	child := NewNop().With(String("run_id", "r1"))
	assert.NotNil(t, child)
}

func TestLevelAndWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "warn", Format: "json", Writer: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.With(String("run_id", "r1")).Warn("slow fit", Duration("took", 2*time.Second), Strings("families", []string{"arima", "sarima"}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &got))
	assert.Equal(t, "slow fit", got["message"])
	assert.Equal(t, "r1", got["run_id"])
	assert.EqualValues(t, 2000, got["took"])
	assert.Contains(t, got["caller"], "logger_test.go")
}

func TestCollectorGroupsAcrossFieldsAndFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{calls: make(chan []AggregatedLogEntry, 1)}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for _, id := range []string{"r1", "r2", "r3"} {
		l.Error("training failed", String("run_id", id), Error(nil))
	}
	l.RemoveCollector()

	select {
	case logs := <-pub.calls:
		require.Len(t, logs, 1)
		assert.Equal(t, 3, logs[0].Count)
		assert.Equal(t, "r3", logs[0].Fields["run_id"], "latest fields kept")
		assert.Contains(t, logs[0].Caller, "logger/logger_test.go")
	default:
		t.Fatal("close did not flush pending logs")
	}

	// dropped after close
	l.Error("late")
	assert.Empty(t, pub.calls)
}
