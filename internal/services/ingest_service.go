package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"firewatch/internal/errors"
	"firewatch/internal/history"
	"firewatch/internal/metrics"
	"firewatch/internal/ml"
	"firewatch/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Ingestion paths, used as metric and log labels
const (
	PathPredict = "predict"
	PathSave    = "save"
)

// Sink is a durable destination for readings. Failures are reported to the
// pipeline and never reach the caller.
type Sink interface {
	Name() string
	Append(ctx context.Context, r models.Reading) error
}

// SinkResult is the outcome of one sink write
type SinkResult struct {
	Sink     string
	Err      error
	Duration time.Duration
}

// OK reports whether the write succeeded
func (r SinkResult) OK() bool {
	return r.Err == nil
}

// IngestResult is the accepted reading plus the outcome of every sink
type IngestResult struct {
	Reading models.Reading
	Sinks   []SinkResult
}

// Persisted reports whether every sink stored the reading
func (r IngestResult) Persisted() bool {
	for _, s := range r.Sinks {
		if !s.OK() {
			return false
		}
	}
	return true
}

// IngestServiceConfig holds configuration for the ingest service
type IngestServiceConfig struct {
	SinkTimeout time.Duration    // Upper bound for each sink write
	Clock       func() time.Time // Source of ingestion timestamps
}

// DefaultIngestServiceConfig returns default configuration
func DefaultIngestServiceConfig() IngestServiceConfig {
	return IngestServiceConfig{
		SinkTimeout: 5 * time.Second,
		Clock:       time.Now,
	}
}

// IngestService validates readings, classifies them when needed, keeps
// them in the history ring and fans them out to the sinks in order.
type IngestService struct {
	classifier ml.Classifier
	history    *history.Ring
	sinks      []Sink
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	sinkTimeout time.Duration
	now         func() time.Time
}

// NewIngestService creates a new ingest service. Sinks are written in the
// order given.
func NewIngestService(
	classifier ml.Classifier,
	ring *history.Ring,
	sinks []Sink,
	m *metrics.Metrics,
	log zerolog.Logger,
	config IngestServiceConfig,
) *IngestService {
	defaults := DefaultIngestServiceConfig()
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = defaults.SinkTimeout
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	return &IngestService{
		classifier:  classifier,
		history:     ring,
		sinks:       sinks,
		metrics:     m,
		logger:      log.With().Str("component", "ingest").Logger(),
		sinkTimeout: config.SinkTimeout,
		now:         config.Clock,
	}
}

// Predict parses raw values, derives the status with the classifier and
// records the reading
func (s *IngestService) Predict(ctx context.Context, raw models.RawInput) (IngestResult, error) {
	r, err := parseReading(raw)
	if err != nil {
		s.reject(PathPredict, err)
		return IngestResult{}, err
	}

	status, err := s.classifier.Classify(ml.FeaturesOf(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("Classifier failed on a valid vector")
		return IngestResult{}, errors.New().Wrap(errors.ErrClassification, err)
	}
	r.Status = models.NormalizeStatus(status)
	if r.Status == "" {
		return IngestResult{}, errors.New().WithData(errors.ErrClassification, "empty label")
	}

	return s.record(ctx, PathPredict, r), nil
}

// Save parses raw values and records the reading with the supplied status;
// the classifier is not consulted
func (s *IngestService) Save(ctx context.Context, raw models.RawInput, status string) (IngestResult, error) {
	r, err := parseReading(raw)
	if err != nil {
		s.reject(PathSave, err)
		return IngestResult{}, err
	}

	r.Status = models.NormalizeStatus(status)
	if r.Status == "" {
		err := errors.New().WithData(errors.ErrInvalidInput, "missing field status")
		s.reject(PathSave, err)
		return IngestResult{}, err
	}

	return s.record(ctx, PathSave, r), nil
}

// Latest returns the most recent reading, if any
func (s *IngestService) Latest() (models.Reading, bool) {
	return s.history.Latest()
}

// Snapshot returns the latest reading and the retained readings from one
// consistent view of the history
func (s *IngestService) Snapshot() (models.Reading, bool, []models.Reading) {
	return s.history.Snapshot()
}

// History returns the retained readings, oldest first
func (s *IngestService) History() []models.Reading {
	return s.history.All()
}

// record stamps r, appends it to history and writes every sink. Sink
// failures are logged and counted only.
func (s *IngestService) record(ctx context.Context, path string, r models.Reading) IngestResult {
	r.Timestamp = models.NewTimestamp(s.now())

	s.history.Append(r)
	s.metrics.HistorySize.Set(float64(s.history.Len()))

	result := IngestResult{
		Reading: r,
		Sinks:   make([]SinkResult, 0, len(s.sinks)),
	}

	// a client going away must not abort persistence; only the timeout bounds it
	base := context.WithoutCancel(ctx)
	for _, sink := range s.sinks {
		res := s.write(base, sink, r)
		result.Sinks = append(result.Sinks, res)

		outcome := "ok"
		if !res.OK() {
			outcome = "error"
			s.logger.Error().
				Str("sink", res.Sink).
				Str("error_code", string(errors.CodeOf(res.Err))).
				Err(res.Err).
				Dur("duration", res.Duration).
				Str("status", r.Status).
				Str("timestamp", r.Timestamp.String()).
				Msg("Sink write failed")
		}
		s.metrics.SinkWrites.WithLabelValues(res.Sink, outcome).Inc()
		s.metrics.SinkWriteDuration.WithLabelValues(res.Sink).Observe(res.Duration.Seconds())
	}

	s.metrics.ReadingsIngested.WithLabelValues(path).Inc()
	s.logger.Debug().
		Str("path", path).
		Str("status", r.Status).
		Float64("temp", r.Temp).
		Float64("hum", r.Hum).
		Float64("gas", r.Gas).
		Float64("flame", r.Flame).
		Bool("persisted", result.Persisted()).
		Msg("Reading ingested")

	return result
}

func (s *IngestService) write(ctx context.Context, sink Sink, r models.Reading) (res SinkResult) {
	res.Sink = sink.Name()

	ctx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Err = errors.New().WithData(errors.ErrSinkWrite, fmt.Sprintf("panic: %v", p))
		}
	}()

	if err := sink.Append(ctx, r); err != nil {
		if !errors.HasCode(err, errors.ErrSinkWrite) {
			err = errors.New().Wrap(errors.ErrSinkWrite, err)
		}
		res.Err = err
	}
	return res
}

func (s *IngestService) reject(path string, err error) {
	s.metrics.ReadingsRejected.WithLabelValues(path).Inc()
	s.logger.Debug().Str("path", path).Err(err).Msg("Reading rejected")
}

// parseReading validates the four sensor values. Values must be present and
// parse as finite floats.
func parseReading(raw models.RawInput) (models.Reading, error) {
	fields := []struct {
		name string
		raw  *string
	}{
		{"temp", raw.Temp},
		{"hum", raw.Hum},
		{"gas", raw.Gas},
		{"flame", raw.Flame},
	}

	var vals [4]float64
	for i, f := range fields {
		v, err := parseValue(f.name, f.raw)
		if err != nil {
			return models.Reading{}, err
		}
		vals[i] = v
	}

	return models.Reading{
		Temp:  vals[0],
		Hum:   vals[1],
		Gas:   vals[2],
		Flame: vals[3],
	}, nil
}

func parseValue(name string, raw *string) (float64, error) {
	errFactory := errors.New()

	if raw == nil {
		return 0, errFactory.WithData(errors.ErrInvalidInput, "missing field "+name)
	}

	text := strings.TrimSpace(*raw)
	// hex floats parse in Go but are not decimal sensor values
	if strings.ContainsAny(text, "xX") {
		return 0, errFactory.WithData(errors.ErrInvalidInput, fmt.Sprintf("field %s is not a number", name))
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errFactory.WithData(errors.ErrInvalidInput, fmt.Sprintf("field %s is not a number", name))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errFactory.WithData(errors.ErrInvalidInput, fmt.Sprintf("field %s is not finite", name))
	}

	return v, nil
}
