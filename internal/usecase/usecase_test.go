package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/services/forecast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type memStore struct {
	mu      sync.Mutex
	recs    map[string]*models.ModelRecord
	saveErr error
}

func newMemStore() *memStore { return &memStore{recs: make(map[string]*models.ModelRecord)} }

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Save(_ context.Context, rec *models.ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", id, models.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) List(_ context.Context, f models.ModelFilter) ([]*models.ModelRecord, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ModelRecord
	for _, r := range s.recs {
		if f.Family == "" || r.Family == f.Family {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.recs, id)
	return nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type memBlobs struct {
	mu   sync.Mutex
	m    map[string][]byte
	gets int
}

func (b *memBlobs) GetBlob(_ context.Context, id string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	v, ok := b.m[id]
	return v, ok, nil
}

func (b *memBlobs) SetBlob(_ context.Context, id string, blob []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[id] = blob
	return nil
}

func (b *memBlobs) DeleteBlob(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, id)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.RunEvent
	err    error
}

func (r *recordingEvents) PublishRunEvent(_ context.Context, ev models.RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) states(runID string) []models.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RunState
	for _, ev := range r.events {
		if ev.RunID == runID {
			out = append(out, ev.State)
		}
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	runs   map[string]int
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{runs: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) RecordRun(family, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[family+"/"+result]++
}
func (m *countingMetrics) RecordPhase(string, string, float64)                {}
func (m *countingMetrics) RecordEvaluation(string, *models.EvaluationMetrics) {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *countingMetrics) RecordLatency(string, float64) {}

type fixture struct {
	uc      *TrainingUseCase
	store   *memStore
	blobs   *memBlobs
	events  *recordingEvents
	metrics *countingMetrics
	hub     *RunHub
}

func newFixture(t *testing.T, cfg TrainingConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		blobs:   &memBlobs{m: map[string][]byte{}},
		events:  &recordingEvents{},
		metrics: newCountingMetrics(),
		hub:     NewRunHub(),
	}
	f.uc = NewTrainingUseCase(forecast.NewEngine(), f.store, f.blobs, f.events, f.hub, f.metrics, nil, cfg)
	return f
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func linear(n int) models.TimeSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + 2*float64(i)
	}
	return models.RegularSeries(epoch, 24*time.Hour, values)
}

// --- TrainingUseCase ---

func TestTrainWalksStateMachineAndPersists(t *testing.T) {
	f := newFixture(t, TrainingConfig{MaxWorkers: 2, DefaultHorizon: 7})
	sub, cancel := f.hub.Subscribe(16)
	defer cancel()

	res, err := f.uc.Train(context.Background(), TrainCommand{
		Name:   "daily",
		Family: "prophet",
		Train:  linear(60),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunEvaluated, res.State)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, 12, res.Metrics.Points, "20% of 60 points held out")
	assert.Len(t, res.Plot.Dates, 12)
	assert.Len(t, res.Plot.Predicted, 12)

	assert.Equal(t, []models.RunState{
		models.RunRequested, models.RunFitting, models.RunFitted, models.RunEvaluating, models.RunEvaluated,
	}, f.events.states(res.RunID))
	assert.Len(t, sub, 5, "hub saw every transition")

	rec, err := f.store.Get(context.Background(), res.ModelID)
	require.NoError(t, err)
	assert.Equal(t, models.RunEvaluated, rec.Status)
	assert.Equal(t, 7, rec.ForecastHorizon, "default horizon applied")
	assert.NotEmpty(t, rec.Blob)
	assert.Contains(t, f.blobs.m, res.ModelID)
	assert.Equal(t, 1, f.metrics.runs["prophet/evaluated"])
}

func TestTrainRejectsUnsupportedFamilyWithoutRun(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	_, err := f.uc.Train(context.Background(), TrainCommand{Family: "xgboost"})
	assert.ErrorIs(t, err, models.ErrUnsupportedFamily)
	assert.Empty(t, f.events.events)
	assert.Empty(t, f.store.recs)
	assert.Equal(t, 1, f.metrics.errors["unsupported_family"])
}

func TestTrainRejectsOversizedInput(t *testing.T) {
	f := newFixture(t, TrainingConfig{MaxPoints: 10})
	_, err := f.uc.Train(context.Background(), TrainCommand{Family: "arima", Train: linear(11)})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestTrainFailureIsRecorded(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	// sequence_length longer than the training data cannot form a single window
	_, err := f.uc.Train(context.Background(), TrainCommand{
		Family:     "lstm",
		Parameters: json.RawMessage(`{"sequence_length":40,"epochs":1,"units":4}`),
		Train:      linear(30),
	})
	require.Error(t, err)

	require.Len(t, f.store.recs, 1)
	for _, rec := range f.store.recs {
		assert.Equal(t, models.RunFailed, rec.Status)
		assert.NotEmpty(t, rec.Error)
		assert.Empty(t, rec.Blob)
	}
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, models.RunFailed, last.State)
	assert.Equal(t, models.ErrorKind(err), last.ErrorKind)
}

func TestTrainStoreFailureEndsRunFailed(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	f.store.saveErr = errors.New("disk full")
	_, err := f.uc.Train(context.Background(), TrainCommand{Family: "prophet", Train: linear(40)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.NotEmpty(t, f.events.events)
	runID := f.events.events[0].RunID
	states := f.events.states(runID)
	assert.Equal(t, models.RunFailed, states[len(states)-1], "subscribers see a terminal state")
	assert.NotContains(t, states, models.RunEvaluated)
	assert.Equal(t, 1, f.metrics.errors["store"])
	assert.Equal(t, 1, f.metrics.runs["prophet/internal"])
	assert.Empty(t, f.blobs.m, "nothing cached for an unsaved model")
}

func TestTrainSurvivesPublisherErrors(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	f.events.err = errors.New("broker down")
	res, err := f.uc.Train(context.Background(), TrainCommand{Family: "prophet", Train: linear(40)})
	require.NoError(t, err)
	assert.Equal(t, models.RunEvaluated, res.State)
	assert.Equal(t, 5, f.metrics.errors["publish"])
}

func TestTrainDeadlineFailsRun(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.uc.Train(ctx, TrainCommand{Family: "arima", Train: linear(40)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, models.RunFailed, last.State)
	assert.Equal(t, "canceled", last.ErrorKind)
}

func TestWithDefaultSeed(t *testing.T) {
	raw, err := withDefaultSeed(nil, 42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":42}`, string(raw))

	raw, err = withDefaultSeed(json.RawMessage(`{"seed":7,"epochs":3}`), 42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":7,"epochs":3}`, string(raw))

	_, err = withDefaultSeed(json.RawMessage(`[1]`), 42)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestTrainBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, TrainingConfig{MaxWorkers: 2})
	items := f.uc.TrainBatch(context.Background(), []TrainCommand{
		{Family: "prophet", Train: linear(40)},
		{Family: "xgboost", Train: linear(40)},
		{Family: "prophet", Train: linear(50)},
	})
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, i, it.Index)
	}
	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, models.ErrUnsupportedFamily)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, 10, items[2].Result.Metrics.Points)
}

func TestForecastUsesCacheThenStore(t *testing.T) {
	f := newFixture(t, TrainingConfig{DefaultHorizon: 3})
	res, err := f.uc.Train(context.Background(), TrainCommand{Family: "prophet", Train: linear(40), ForecastHorizon: 5})
	require.NoError(t, err)

	// stored horizon when none is given
	out, err := f.uc.Forecast(context.Background(), res.ModelID, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Horizon)
	assert.Len(t, out.Points, 5)
	assert.Equal(t, models.FamilyProphet, out.Family)

	// cold cache falls back to the store and refills
	delete(f.blobs.m, res.ModelID)
	out, err = f.uc.Forecast(context.Background(), res.ModelID, 2)
	require.NoError(t, err)
	assert.Len(t, out.Points, 2)
	assert.Contains(t, f.blobs.m, res.ModelID)
	assert.True(t, out.Points[1].Timestamp.After(out.Points[0].Timestamp))

	_, err = f.uc.Forecast(context.Background(), "missing", 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestForecastRejectsFailedModel(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	require.NoError(t, f.store.Save(context.Background(), &models.ModelRecord{ID: "bad", Status: models.RunFailed}))
	_, err := f.uc.Forecast(context.Background(), "bad", 3)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestDeleteDropsCachedBlob(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	res, err := f.uc.Train(context.Background(), TrainCommand{Family: "prophet", Train: linear(40)})
	require.NoError(t, err)

	require.NoError(t, f.uc.Delete(context.Background(), res.ModelID))
	assert.NotContains(t, f.blobs.m, res.ModelID)
	assert.ErrorIs(t, f.uc.Delete(context.Background(), res.ModelID), models.ErrNotFound)
}

func TestListParsesFamily(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	_, _, err := f.uc.List(context.Background(), "xgboost", 10, 0)
	assert.ErrorIs(t, err, models.ErrUnsupportedFamily)
	_, total, err := f.uc.List(context.Background(), "lstm", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

// --- RunHub ---

func TestRunHubDropsForSlowSubscribers(t *testing.T) {
	h := NewRunHub()
	fast, cancelFast := h.Subscribe(4)
	_, cancelSlow := h.Subscribe(1)
	defer cancelFast()

	ev := models.RunEvent{RunID: "r"}
	assert.Equal(t, 2, h.Broadcast(ev))
	assert.Equal(t, 1, h.Broadcast(ev), "slow buffer is full")
	assert.Len(t, fast, 2)

	cancelSlow()
	cancelSlow()
	assert.Equal(t, 1, h.Len())
}

// --- KafkaTrainHandler ---

func TestKafkaTrainHandler(t *testing.T) {
	f := newFixture(t, TrainingConfig{})
	h := NewKafkaTrainHandler("train", f.uc, f.metrics, nil)
	assert.Equal(t, "train", h.Topic())

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"type":"arima"}`)), "data is required")

	body, err := json.Marshal(models.TrainHTTPRequest{Type: "prophet", Data: linear(40).Points})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), body))
	assert.Len(t, f.store.recs, 1)

	// training failures are absorbed, not redelivered
	body, err = json.Marshal(models.TrainHTTPRequest{Type: "xgboost", Data: linear(40).Points})
	require.NoError(t, err)
	assert.NoError(t, h.Handle(context.Background(), body))
}

// --- RegistryUseCase ---

type memRegistry struct {
	m map[string]*models.RegistryEntry
}

func (r *memRegistry) Create(_ context.Context, e *models.RegistryEntry) error {
	cp := *e
	r.m[e.ID] = &cp
	return nil
}

func (r *memRegistry) Get(_ context.Context, id string) (*models.RegistryEntry, error) {
	e, ok := r.m[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memRegistry) List(context.Context, models.RegistryFilter) ([]*models.RegistryEntry, int64, error) {
	out := make([]*models.RegistryEntry, 0, len(r.m))
	for _, e := range r.m {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *memRegistry) Update(ctx context.Context, e *models.RegistryEntry) error { return r.Create(ctx, e) }

func (r *memRegistry) Delete(_ context.Context, id string) error {
	delete(r.m, id)
	return nil
}

func TestRegistryUseCase(t *testing.T) {
	ctx := context.Background()
	reg := &memRegistry{m: map[string]*models.RegistryEntry{}}
	u := NewRegistryUseCase(reg, newCountingMetrics())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return t0 }

	e, err := u.Create(ctx, &models.CreateRegistryHTTPRequest{Name: "m", Type: "regressor", Framework: "gonum"})
	require.NoError(t, err)
	assert.Equal(t, "draft", e.Status)
	assert.NotEmpty(t, e.ID)

	u.now = func() time.Time { return t0.Add(time.Hour) }
	acc := 0.93
	status := "active"
	got, err := u.Update(ctx, e.ID, models.RegistryPatch{Accuracy: &acc, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 0.93, got.Accuracy)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "m", got.Name)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	_, err = u.Update(ctx, "missing", models.RegistryPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
