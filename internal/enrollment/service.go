// Package enrollment orchestrates template enrollment: capture validation,
// feature extraction, the quality gate, and handoff to the template service
// for sealing and persistence. Either a new active template becomes visible
// or nothing does; no partial state is observable.
package enrollment

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veriprint/internal/enrollment/metrics"
	"veriprint/internal/feature"
	"veriprint/internal/template/models"
	dErrors "veriprint/pkg/domain-errors"
)

// Enroller persists a quality-checked capture. The template service
// satisfies it.
type Enroller interface {
	Enroll(ctx context.Context, ownerID string, slot models.FingerSlot, capture models.Capture, quality int, meta models.EnrollMetadata) (*models.Template, error)
}

// Service runs the enrollment flow.
type Service struct {
	templates  Enroller
	extractor  feature.Extractor
	minQuality int
	minBytes   int
	maxBytes   int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. minQuality is the enrollment quality gate;
// minBytes and maxBytes bound accepted capture sizes.
func New(templates Enroller, extractor feature.Extractor, minQuality, minBytes, maxBytes int, opts ...Option) *Service {
	s := &Service{
		templates:  templates,
		extractor:  extractor,
		minQuality: minQuality,
		minBytes:   minBytes,
		maxBytes:   maxBytes,
		logger:     slog.Default(),
		tracer:     otel.Tracer("veriprint/enrollment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll validates and scores a capture, then persists it as an active
// template. Captures scoring below the quality gate are rejected with
// CodeLowQuality so the caller can recapture.
func (s *Service) Enroll(ctx context.Context, ownerID string, slot models.FingerSlot, capture models.Capture, meta models.EnrollMetadata) (*models.Template, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.Enroll")
	defer span.End()

	if !capture.Format.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported capture format %q", capture.Format)
	}
	if len(capture.Data) < s.minBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "capture below minimum size of %d bytes", s.minBytes)
	}
	if len(capture.Data) > s.maxBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "capture exceeds maximum size of %d bytes", s.maxBytes)
	}

	fs, err := s.extractor.Extract(capture.Data, capture.Format)
	if err != nil {
		return nil, err
	}

	quality := int(fs.QualityScore)
	if s.metrics != nil {
		s.metrics.CaptureQuality.Observe(float64(quality))
	}
	span.SetAttributes(attribute.Int("enrollment.quality", quality))

	if quality < s.minQuality {
		if s.metrics != nil {
			s.metrics.RejectedLowQuality.Inc()
		}
		s.logger.InfoContext(ctx, "enrollment rejected for low quality",
			"owner_id", ownerID, "quality", quality, "min_quality", s.minQuality)
		return nil, dErrors.Newf(dErrors.CodeLowQuality, "capture quality %d below minimum %d", quality, s.minQuality)
	}

	t, err := s.templates.Enroll(ctx, ownerID, slot, capture, quality, meta)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Accepted.Inc()
	}
	s.logger.InfoContext(ctx, "template enrolled",
		"owner_id", ownerID, "template_id", t.ID, "finger_slot", slot, "quality", quality)
	return t, nil
}
