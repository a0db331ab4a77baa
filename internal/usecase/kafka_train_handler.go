package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"ModelHub/internal/domain/models"
	drepo "ModelHub/internal/domain/repository"
	pkgkafka "ModelHub/pkg/kafka"
	applogger "ModelHub/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// KafkaTrainHandler consumes asynchronous training requests. Each message is
// trained once: malformed payloads go back to the consumer (and its DLQ),
// training failures are already recorded as FAILED runs and are only logged.
type KafkaTrainHandler struct {
	topic    string
	training *TrainingUseCase
	metrics  drepo.Metrics
	log      *applogger.Logger
	validate *validator.Validate
}

func NewKafkaTrainHandler(topic string, training *TrainingUseCase, metrics drepo.Metrics, log *applogger.Logger) *KafkaTrainHandler {
	if log == nil {
		log = applogger.NewNop()
	}
	return &KafkaTrainHandler{
		topic:    topic,
		training: training,
		metrics:  metrics,
		log:      log,
		validate: validator.New(),
	}
}

func (h *KafkaTrainHandler) Topic() string { return h.topic }

// incoming message schema matches POST /api/v1/timeseries/train
func (h *KafkaTrainHandler) Handle(ctx context.Context, b []byte) error {
	var req models.TrainHTTPRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode train request: %w", err)
	}
	if err := defaults.Set(&req); err != nil {
		return fmt.Errorf("train request defaults: %w", err)
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		h.metrics.RecordError("consumer_validate")
		return fmt.Errorf("validate train request: %w", err)
	}

	res, err := h.training.Train(ctx, CommandFromRequest(&req))
	if err != nil {
		h.log.Warn("async training failed",
			applogger.String("request_id", pkgkafka.RequestID(ctx)),
			applogger.String("family", req.FamilyTag()),
			applogger.String("kind", models.ErrorKind(err)),
			applogger.Error(err),
		)
		return nil
	}
	h.log.Info("async training evaluated",
		applogger.String("request_id", pkgkafka.RequestID(ctx)),
		applogger.String("model_id", res.ModelID),
		applogger.String("run_id", res.RunID),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTrainHandler)(nil)
