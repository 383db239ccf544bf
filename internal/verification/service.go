package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"veriprint/internal/audit"
	"veriprint/internal/feature"
	"veriprint/internal/matcher"
	"veriprint/internal/ratelimit"
	"veriprint/internal/template/codec"
	"veriprint/internal/template/models"
	tmplservice "veriprint/internal/template/service"
	"veriprint/internal/verification/metrics"
	dErrors "veriprint/pkg/domain-errors"
	"veriprint/pkg/requestcontext"
)

// TemplateProvider supplies decrypted candidates and absorbs usage stats.
// The template service satisfies it.
type TemplateProvider interface {
	ActiveCandidates(ctx context.Context, ownerID string) ([]tmplservice.Candidate, error)
	RecordVerification(ctx context.Context, id uuid.UUID, verified bool, durationMs float64)
}

// RateLimiter guards the verification path per (client, owner) pair.
type RateLimiter interface {
	Allow(ctx context.Context, clientID, ownerID string) (*ratelimit.Result, error)
}

// Matcher scores a probe against one candidate feature set.
type Matcher interface {
	Match(a, b *feature.FeatureSet) matcher.Score
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service runs the verification flow end to end.
type Service struct {
	limiter   RateLimiter
	templates TemplateProvider
	extractor feature.Extractor
	matcher   Matcher
	minBytes  int
	maxBytes  int
	logger    *slog.Logger
	audit     AuditPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. minBytes and maxBytes bound accepted capture
// sizes; anything outside is rejected before extraction.
func New(limiter RateLimiter, templates TemplateProvider, extractor feature.Extractor, m Matcher, minBytes, maxBytes int, opts ...Option) *Service {
	s := &Service{
		limiter:   limiter,
		templates: templates,
		extractor: extractor,
		matcher:   m,
		minBytes:  minBytes,
		maxBytes:  maxBytes,
		logger:    slog.Default(),
		tracer:    otel.Tracer("veriprint/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify compares a live capture against every active template for the
// owner and returns the best-match outcome. Per-candidate failures are
// skipped; the call only fails outright when rate limited, on invalid
// input, or when no candidate could be compared at all.
func (s *Service) Verify(ctx context.Context, ownerID string, capture models.Capture) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify")
	defer span.End()

	start := time.Now()
	clientID := requestcontext.ClientID(ctx)

	if _, err := s.limiter.Allow(ctx, clientID, ownerID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			if s.metrics != nil {
				s.metrics.RateLimited.Inc()
			}
			s.emit(ctx, audit.Event{
				Kind:    audit.EventVerificationRateLimited,
				OwnerID: ownerID,
			})
		}
		return nil, err
	}

	if err := s.validateCapture(capture); err != nil {
		return nil, err
	}

	candidates, err := s.templates.ActiveCandidates(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	probe, err := s.extractor.Extract(capture.Data, capture.Format)
	if err != nil {
		return nil, err
	}

	results, compared := s.matchCandidates(ctx, probe, candidates)

	best := bestResult(results)
	if best == nil {
		return nil, dErrors.New(dErrors.CodeExtraction, "no candidate template could be compared")
	}

	elapsed := time.Since(start)
	outcome := &Outcome{
		Verified:          best.Verified,
		Similarity:        best.Similarity,
		Confidence:        best.Confidence,
		BestMatch:         best,
		TemplatesCompared: compared,
		ProcessingTimeMs:  elapsed.Milliseconds(),
	}

	s.templates.RecordVerification(ctx, best.TemplateID, best.Verified, float64(elapsed.Microseconds())/1000)

	span.SetAttributes(
		attribute.Bool("verification.verified", outcome.Verified),
		attribute.Int("verification.similarity", outcome.Similarity),
		attribute.Int("verification.templates_compared", compared),
	)
	s.observeOutcome(ctx, ownerID, outcome, start)
	return outcome, nil
}

// matchCandidates extracts and scores every candidate concurrently. Result
// order mirrors candidate order so the best pick stays deterministic no
// matter which goroutine finishes first. Sample buffers are wiped as soon
// as their extraction completes.
func (s *Service) matchCandidates(ctx context.Context, probe *feature.FeatureSet, candidates []tmplservice.Candidate) ([]*MatchResult, int) {
	results := make([]*MatchResult, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		g.Go(func() error {
			defer codec.Wipe(cand.Sample)

			fs, err := s.extractor.Extract(cand.Sample, cand.Format)
			if err != nil {
				s.logger.WarnContext(ctx, "candidate extraction failed",
					"template_id", cand.Template.ID, "error", err)
				return nil
			}
			score := s.matcher.Match(probe, fs)
			results[i] = &MatchResult{
				TemplateID: cand.Template.ID,
				FingerSlot: cand.Template.FingerSlot,
				Similarity: score.Similarity,
				Verified:   score.Verified,
				Confidence: score.Confidence,
			}
			return nil
		})
	}
	_ = g.Wait()

	compared := 0
	for _, r := range results {
		if r != nil {
			compared++
		}
	}
	return results, compared
}

// bestResult scans in candidate order; strictly higher similarity wins, so
// the earliest candidate takes any tie.
func bestResult(results []*MatchResult) *MatchResult {
	var best *MatchResult
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.Similarity > best.Similarity {
			best = r
		}
	}
	return best
}

func (s *Service) validateCapture(capture models.Capture) error {
	if !capture.Format.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported capture format %q", capture.Format)
	}
	if len(capture.Data) < s.minBytes {
		return dErrors.Newf(dErrors.CodeValidation, "capture below minimum size of %d bytes", s.minBytes)
	}
	if len(capture.Data) > s.maxBytes {
		return dErrors.Newf(dErrors.CodeValidation, "capture exceeds maximum size of %d bytes", s.maxBytes)
	}
	return nil
}

func (s *Service) observeOutcome(ctx context.Context, ownerID string, outcome *Outcome, start time.Time) {
	if s.metrics != nil {
		s.metrics.Similarity.Observe(float64(outcome.Similarity))
		if outcome.Verified {
			s.metrics.Succeeded.Inc()
		} else {
			s.metrics.Failed.Inc()
		}
		s.metrics.ObserveVerify(start)
	}

	s.logger.InfoContext(ctx, "verification completed",
		"owner_id", ownerID,
		"verified", outcome.Verified,
		"similarity", outcome.Similarity,
		"templates_compared", outcome.TemplatesCompared,
		"processing_ms", outcome.ProcessingTimeMs,
	)

	kind := audit.EventVerificationFailed
	if outcome.Verified {
		kind = audit.EventVerificationSucceeded
	}
	s.emit(ctx, audit.Event{
		Kind:       kind,
		OwnerID:    ownerID,
		TemplateID: outcome.BestMatch.TemplateID.String(),
		Similarity: outcome.Similarity,
		Verified:   outcome.Verified,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}
