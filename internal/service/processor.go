package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/conso-metering/internal/anomaly"
	"github.com/septivank/conso-metering/internal/config"
	"github.com/septivank/conso-metering/internal/logging"
	"github.com/septivank/conso-metering/internal/mq"
	"github.com/septivank/conso-metering/metering"
	"github.com/septivank/conso-metering/tools/timeparser"
	"go.uber.org/zap"
)

// ErrInvalidRequest marks fetch requests that can never succeed
var ErrInvalidRequest = errors.New("invalid fetch request")

// FetchRequest is the message consumed from the request queue
type FetchRequest struct {
	RequestID string `json:"request_id"`
	DataType  string `json:"data_type"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
}

// Fetcher is the part of the Conso client the processor needs
type Fetcher interface {
	PRM() string
	Fetch(ctx context.Context, dataType metering.DataType, start, end time.Time) (*metering.MeteringData, error)
}

// EventPublisher sends fetched data downstream
type EventPublisher interface {
	PublishReadingEvent(ctx context.Context, event mq.ReadingEvent, routingKey string) error
	PublishRecordSummary(ctx context.Context, summary mq.RecordSummary, routingKey string) error
}

// ProcessorService turns fetch requests into published reading events
type ProcessorService struct {
	fetcher   Fetcher
	publisher EventPublisher
	detector  *anomaly.Detector
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	fetcher Fetcher,
	publisher EventPublisher,
	detector *anomaly.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		fetcher:   fetcher,
		publisher: publisher,
		detector:  detector,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage fetches the requested record and publishes its readings and summary
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var req FetchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: failed to unmarshal message: %v", ErrInvalidRequest, err)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	reqLogger := logging.WithRequestID(s.logger, req.RequestID)

	dataType, start, end, err := parseRequest(req)
	if err != nil {
		reqLogger.Warn("rejecting fetch request", zap.Error(err))
		return err
	}

	reqLogger.Info("processing fetch request",
		zap.String("data_type", string(dataType)),
		zap.String("prm", s.fetcher.PRM()),
		zap.String("start", req.Start),
		zap.String("end", req.End),
	)

	data, err := s.fetcher.Fetch(ctx, dataType, start, end)
	if err != nil {
		reqLogger.Error("failed to fetch metering data", zap.Error(err))
		return fmt.Errorf("failed to fetch %s: %w", dataType, err)
	}

	reasons := make(map[int]string)
	for _, f := range s.detector.Scan(data) {
		reasons[f.Index] = f.Reason
		reqLogger.Debug("anomaly detected", zap.Int("index", f.Index), zap.String("reason", f.Reason))
	}

	for i, r := range data.Readings() {
		reason, anomalous := reasons[i]
		event := mq.ReadingEvent{
			EventID:        uuid.NewString(),
			RequestID:      req.RequestID,
			UsagePointID:   data.UsagePointID,
			DataType:       string(dataType),
			Unit:           data.ReadingType.Unit,
			Value:          r.Value,
			Date:           r.Date.String(),
			DateOnly:       r.Date.IsDateOnly(),
			IntervalLength: r.IntervalLength,
			MeasureType:    r.MeasureType,
			Anomalous:      anomalous,
			AnomalyReason:  reason,
		}
		if err := s.publisher.PublishReadingEvent(ctx, event, s.cfg.RabbitMQ.ReadingRoutingKey); err != nil {
			reqLogger.Error("failed to publish reading event", zap.Error(err), zap.Int("index", i))
			return fmt.Errorf("failed to publish reading %d: %w", i, err)
		}
	}

	summary := mq.RecordSummary{
		EventID:      uuid.NewString(),
		RequestID:    req.RequestID,
		UsagePointID: data.UsagePointID,
		DataType:     string(dataType),
		Start:        timeparser.FormatDate(data.Start),
		End:          timeparser.FormatDate(data.End),
		Quality:      data.Quality,
		Unit:         data.ReadingType.Unit,
		ReadingCount: data.Len(),
		Total:        data.Total(),
		Average:      data.Average(),
		AnomalyCount: len(reasons),
		FetchedAt:    s.now().UTC(),
	}
	if err := s.publisher.PublishRecordSummary(ctx, summary, s.cfg.RabbitMQ.SummaryRoutingKey); err != nil {
		reqLogger.Error("failed to publish record summary", zap.Error(err))
		return fmt.Errorf("failed to publish summary: %w", err)
	}

	reqLogger.Info("fetch request processed",
		zap.Int("readings_count", summary.ReadingCount),
		zap.Int64("total", summary.Total),
		zap.Int("anomalies", summary.AnomalyCount),
	)

	return nil
}

func parseRequest(req FetchRequest) (metering.DataType, time.Time, time.Time, error) {
	dataType, err := metering.ParseDataType(req.DataType)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var start, end time.Time
	if req.Start != "" {
		if start, err = timeparser.ParseCalendarDate(req.Start); err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrInvalidRequest, err)
		}
	}
	if req.End != "" {
		if end, err = timeparser.ParseCalendarDate(req.End); err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrInvalidRequest, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRequest, req.End, req.Start)
	}

	return dataType, start, end, nil
}
