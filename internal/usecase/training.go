package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ModelHub/internal/domain/models"
	drepo "ModelHub/internal/domain/repository"
	"ModelHub/internal/services/forecast"
	applogger "ModelHub/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TrainingConfig holds the host-level training limits.
type TrainingConfig struct {
	Timeout         time.Duration
	MaxWorkers      int
	DefaultSeed     int64
	ValidationSplit float64
	MaxPoints       int
	DefaultHorizon  int
	BlobCacheTTL    time.Duration
	SideEffectLimit time.Duration // bound on event publishing and failure bookkeeping
}

// TrainCommand is one training request as the host receives it.
// HeldOut may be empty; the trailing ValidationSplit of Train is held out instead.
type TrainCommand struct {
	Name            string
	Family          string
	Parameters      json.RawMessage
	Train           models.TimeSeries
	HeldOut         models.TimeSeries
	ForecastHorizon int
	ValidationSplit float64
}

// CommandFromRequest maps the HTTP and Kafka request shape onto a TrainCommand.
func CommandFromRequest(r *models.TrainHTTPRequest) TrainCommand {
	return TrainCommand{
		Name:            r.Name,
		Family:          r.FamilyTag(),
		Parameters:      r.Parameters,
		Train:           models.TimeSeries{Points: r.Data},
		HeldOut:         models.TimeSeries{Points: r.TestData},
		ForecastHorizon: r.ForecastHorizon,
		ValidationSplit: r.ValidationSplit,
	}
}

type TrainResult struct {
	ModelID string                    `json:"model_id"`
	RunID   string                    `json:"run_id"`
	Family  models.Family             `json:"family"`
	State   models.RunState           `json:"state"`
	Metrics *models.EvaluationMetrics `json:"metrics"`
	Plot    models.PlotSeries         `json:"plot"`
}

// BatchItem pairs a batch entry with its own outcome; entries fail independently.
type BatchItem struct {
	Index  int
	Result *TrainResult
	Err    error
}

type ForecastResult struct {
	ModelID string         `json:"model_id"`
	Family  models.Family  `json:"family"`
	Horizon int            `json:"horizon"`
	Points  []models.Point `json:"forecast"`
}

// TrainingUseCase drives training runs through the state machine and owns
// persistence, caching and event fan-out around the forecast engine.
type TrainingUseCase struct {
	engine  *forecast.Engine
	store   drepo.ModelStore
	blobs   drepo.BlobCache
	events  drepo.EventPublisher
	hub     *RunHub
	metrics drepo.Metrics
	log     *applogger.Logger
	cfg     TrainingConfig
	now     func() time.Time
	newID   func() string
}

func NewTrainingUseCase(
	engine *forecast.Engine,
	store drepo.ModelStore,
	blobs drepo.BlobCache,
	events drepo.EventPublisher,
	hub *RunHub,
	metrics drepo.Metrics,
	log *applogger.Logger,
	cfg TrainingConfig,
) *TrainingUseCase {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.ValidationSplit <= 0 || cfg.ValidationSplit >= 1 {
		cfg.ValidationSplit = 0.2
	}
	if cfg.SideEffectLimit <= 0 {
		cfg.SideEffectLimit = 5 * time.Second
	}
	if log == nil {
		log = applogger.NewNop()
	}
	return &TrainingUseCase{
		engine:  engine,
		store:   store,
		blobs:   blobs,
		events:  events,
		hub:     hub,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// prepared is a validated command ready for the engine.
type prepared struct {
	name   string
	req    *models.TrainingRequest
	params json.RawMessage
}

// prepare validates cmd without creating a run. Unknown families fail before data is touched.
func (u *TrainingUseCase) prepare(cmd TrainCommand) (*prepared, error) {
	family, err := models.ParseFamily(cmd.Family)
	if err != nil {
		return nil, err
	}
	if n := cmd.Train.Len() + cmd.HeldOut.Len(); u.cfg.MaxPoints > 0 && n > u.cfg.MaxPoints {
		return nil, fmt.Errorf("%w: %d points exceeds the limit of %d", models.ErrInvalidParameter, n, u.cfg.MaxPoints)
	}

	raw := cmd.Parameters
	if family == models.FamilySequence {
		if raw, err = withDefaultSeed(raw, u.cfg.DefaultSeed); err != nil {
			return nil, err
		}
	}
	params, err := models.DecodeParams(family, raw)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	split := cmd.ValidationSplit
	if split <= 0 {
		split = u.cfg.ValidationSplit
	}
	horizon := cmd.ForecastHorizon
	if horizon <= 0 {
		horizon = u.cfg.DefaultHorizon
	}

	train, heldOut := cmd.Train, cmd.HeldOut
	if heldOut.Len() == 0 {
		if err := train.Validate(); err != nil {
			return nil, fmt.Errorf("training data: %w", err)
		}
		if train, heldOut, err = cmd.Train.Split(split); err != nil {
			return nil, err
		}
	}

	req := &models.TrainingRequest{
		Family:          family,
		Params:          params,
		Train:           train,
		HeldOut:         heldOut,
		ValidationSplit: split,
		ForecastHorizon: horizon,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := cmd.Name
	if name == "" {
		name = family.String() + "_model"
	}
	return &prepared{name: name, req: req, params: normalized}, nil
}

// withDefaultSeed injects seed unless the caller set one, keeping sequence runs reproducible.
func withDefaultSeed(raw json.RawMessage, seed int64) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: sequence parameters: %v", models.ErrInvalidParameter, err)
		}
	}
	if _, ok := fields["seed"]; ok {
		return raw, nil
	}
	fields["seed"] = json.RawMessage(fmt.Sprintf("%d", seed))
	return json.Marshal(fields)
}

// Train runs one request to a terminal state. Validation failures return before a run exists;
// once a run exists every outcome, including deadline expiry, is persisted and published.
func (u *TrainingUseCase) Train(ctx context.Context, cmd TrainCommand) (*TrainResult, error) {
	start := time.Now()
	p, err := u.prepare(cmd)
	if err != nil {
		u.metrics.RecordError(models.ErrorKind(err))
		return nil, err
	}
	family := p.req.Family

	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	run := models.NewTrainingRun(u.newID(), u.newID(), family, u.now())
	rec := &models.ModelRecord{
		ID:              run.ModelID,
		Name:            p.name,
		Family:          family,
		Parameters:      p.params,
		ForecastHorizon: p.req.ForecastHorizon,
		ValidationSplit: p.req.ValidationSplit,
		CreatedAt:       run.StartedAt,
	}
	log := u.log.With(
		applogger.String("run_id", run.ID),
		applogger.String("model_id", run.ModelID),
		applogger.String("family", family.String()),
	)
	u.emit(ctx, run, nil)

	// fit
	if err := u.advance(ctx, run, models.RunFitting); err != nil {
		return nil, err
	}
	fitStart := time.Now()
	fitted, err := u.engine.Train(ctx, p.req)
	u.metrics.RecordPhase(family.String(), "fit", time.Since(fitStart).Seconds())
	if err != nil {
		return nil, u.fail(ctx, log, run, rec, err)
	}
	if err := u.advance(ctx, run, models.RunFitted); err != nil {
		return nil, err
	}

	// evaluate
	if err := u.advance(ctx, run, models.RunEvaluating); err != nil {
		return nil, err
	}
	evalStart := time.Now()
	predicted, err := u.engine.Predict(ctx, fitted, p.req.HeldOut)
	var metrics *models.EvaluationMetrics
	if err == nil {
		metrics, err = forecast.Score(p.req.HeldOut.Values(), predicted)
	}
	u.metrics.RecordPhase(family.String(), "evaluate", time.Since(evalStart).Seconds())
	if err != nil {
		return nil, u.fail(ctx, log, run, rec, err)
	}

	blob, err := fitted.MarshalBinary()
	if err != nil {
		return nil, u.fail(ctx, log, run, rec, fmt.Errorf("serialize model: %w", err))
	}
	// the record is stored as EVALUATED before the run moves there, so a failed
	// write still leaves the run free to end in FAILED
	rec.Blob = blob
	rec.Metrics = metrics
	rec.Status = models.RunEvaluated
	if err := u.store.Save(ctx, rec); err != nil {
		u.metrics.RecordError("store")
		rec.Blob, rec.Metrics = nil, nil
		return nil, u.fail(ctx, log, run, rec, fmt.Errorf("persist model %s: %w", rec.ID, err))
	}
	if err := run.Transition(models.RunEvaluated, u.now()); err != nil {
		return nil, err
	}
	if err := u.blobs.SetBlob(ctx, rec.ID, blob, u.cfg.BlobCacheTTL); err != nil {
		log.Warn("blob cache write failed", applogger.Error(err))
	}
	u.emit(ctx, run, metrics)

	u.metrics.RecordEvaluation(family.String(), metrics)
	u.metrics.RecordRun(family.String(), "evaluated")
	u.metrics.RecordLatency("train", time.Since(start).Seconds())
	log.Info("training run evaluated",
		applogger.Float64("rmse", metrics.RMSE),
		applogger.Float64("mae", metrics.MAE),
		applogger.Int("held_out", metrics.Points),
		applogger.Duration("duration_ms", time.Since(start)),
	)

	return &TrainResult{
		ModelID: rec.ID,
		RunID:   run.ID,
		Family:  family,
		State:   run.State,
		Metrics: metrics,
		Plot: models.PlotSeries{
			Dates:     p.req.HeldOut.Timestamps(),
			Actual:    p.req.HeldOut.Values(),
			Predicted: predicted,
		},
	}, nil
}

func (u *TrainingUseCase) advance(ctx context.Context, run *models.TrainingRun, next models.RunState) error {
	if err := run.Transition(next, u.now()); err != nil {
		return err
	}
	u.emit(ctx, run, nil)
	return nil
}

// fail moves the run to FAILED, persists the failed record and publishes the event.
// Bookkeeping runs detached from ctx so an expired deadline is still recorded.
func (u *TrainingUseCase) fail(ctx context.Context, log *applogger.Logger, run *models.TrainingRun, rec *models.ModelRecord, cause error) error {
	if err := run.Fail(cause, u.now()); err != nil {
		log.Error("run transition", applogger.Error(err))
		return cause
	}
	kind := run.ErrorKind
	u.metrics.RecordError(kind)
	u.metrics.RecordRun(run.Family.String(), kind)

	rec.Status = run.State
	rec.Error = run.Error
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.SideEffectLimit)
	defer cancel()
	if err := u.store.Save(sctx, rec); err != nil {
		log.Error("persist failed run", applogger.Error(err))
	}
	u.emit(ctx, run, nil)

	log.Warn("training run failed", applogger.String("kind", kind), applogger.Error(cause))
	return cause
}

// emit publishes the run's current state. Publishing errors never fail the run.
func (u *TrainingUseCase) emit(ctx context.Context, run *models.TrainingRun, m *models.EvaluationMetrics) {
	ev := run.Event(m)
	u.hub.Broadcast(ev)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.SideEffectLimit)
	defer cancel()
	if err := u.events.PublishRunEvent(pctx, ev); err != nil {
		u.metrics.RecordError("publish")
		u.log.Warn("publish run event",
			applogger.String("run_id", run.ID),
			applogger.String("state", string(run.State)),
			applogger.Error(err),
		)
	}
}

// TrainBatch trains every command with at most MaxWorkers running at once.
// Results keep input order and one failure does not cancel the others.
func (u *TrainingUseCase) TrainBatch(ctx context.Context, cmds []TrainCommand) []BatchItem {
	items := make([]BatchItem, len(cmds))
	var g errgroup.Group
	g.SetLimit(u.cfg.MaxWorkers)
	for i := range cmds {
		g.Go(func() error {
			res, err := u.Train(ctx, cmds[i])
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// Forecast loads a fitted model (cache first, then store) and predicts horizon points
// past its training window. A zero horizon uses the one stored with the model.
func (u *TrainingUseCase) Forecast(ctx context.Context, id string, horizon int) (*ForecastResult, error) {
	start := time.Now()
	blob, hit, err := u.blobs.GetBlob(ctx, id)
	if err != nil {
		u.log.Warn("blob cache read failed", applogger.String("model_id", id), applogger.Error(err))
	}
	if !hit || horizon <= 0 {
		rec, err := u.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Status != models.RunEvaluated || len(rec.Blob) == 0 {
			return nil, fmt.Errorf("%w: model %s has no fitted state (status %s)", models.ErrInvalidParameter, id, rec.Status)
		}
		if horizon <= 0 {
			horizon = rec.ForecastHorizon
		}
		if !hit {
			blob = rec.Blob
			if err := u.blobs.SetBlob(ctx, id, blob, u.cfg.BlobCacheTTL); err != nil {
				u.log.Warn("blob cache write failed", applogger.String("model_id", id), applogger.Error(err))
			}
		}
	}
	if horizon <= 0 {
		horizon = u.cfg.DefaultHorizon
	}

	fitted, err := forecast.UnmarshalModel(blob)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}
	points, err := fitted.Forecast(ctx, horizon)
	if err != nil {
		u.metrics.RecordError(models.ErrorKind(err))
		return nil, fmt.Errorf("forecast %s: %w", id, err)
	}
	u.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	return &ForecastResult{ModelID: id, Family: fitted.Family(), Horizon: horizon, Points: points}, nil
}

func (u *TrainingUseCase) Get(ctx context.Context, id string) (*models.ModelRecord, error) {
	return u.store.Get(ctx, id)
}

// List filters by family tag; an empty tag lists every family.
func (u *TrainingUseCase) List(ctx context.Context, family string, limit, offset int) ([]*models.ModelRecord, int64, error) {
	f := models.ModelFilter{Limit: limit, Offset: offset}
	if family != "" {
		fam, err := models.ParseFamily(family)
		if err != nil {
			return nil, 0, err
		}
		f.Family = fam
	}
	return u.store.List(ctx, f)
}

func (u *TrainingUseCase) Delete(ctx context.Context, id string) error {
	if err := u.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := u.blobs.DeleteBlob(ctx, id); err != nil {
		u.log.Warn("blob cache delete failed", applogger.String("model_id", id), applogger.Error(err))
	}
	return nil
}
