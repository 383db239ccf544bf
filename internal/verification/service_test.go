package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriprint/internal/audit"
	"veriprint/internal/feature"
	"veriprint/internal/matcher"
	"veriprint/internal/ratelimit"
	rlstore "veriprint/internal/ratelimit/store"
	"veriprint/internal/template/codec"
	"veriprint/internal/template/models"
	tmplservice "veriprint/internal/template/service"
	"veriprint/internal/template/store"
	dErrors "veriprint/pkg/domain-errors"
	"veriprint/pkg/requestcontext"
)

const failMarker = 0xFF

// scriptedExtractor encodes the desired similarity in the first sample byte
// so tests can stage exact match outcomes. A failMarker byte simulates a
// degenerate capture.
type scriptedExtractor struct{}

func (scriptedExtractor) Extract(data []byte, format models.CaptureFormat) (*feature.FeatureSet, error) {
	if len(data) == 0 || data[0] == failMarker {
		return nil, dErrors.New(dErrors.CodeExtraction, "degenerate capture")
	}
	return &feature.FeatureSet{QualityScore: float64(data[0])}, nil
}

// scriptedMatcher reports the candidate's staged similarity.
type scriptedMatcher struct {
	threshold int
}

func (m scriptedMatcher) Match(a, b *feature.FeatureSet) matcher.Score {
	sim := int(b.QualityScore)
	return matcher.Score{
		Similarity: sim,
		Verified:   sim >= m.threshold,
		Confidence: sim,
	}
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, clientID, ownerID string) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: true}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, clientID, ownerID string) (*ratelimit.Result, error) {
	return &ratelimit.Result{}, dErrors.New(dErrors.CodeRateLimited, "too many attempts")
}

type recordedVerification struct {
	id       uuid.UUID
	verified bool
}

type fakeProvider struct {
	mu         sync.Mutex
	candidates []tmplservice.Candidate
	err        error
	recorded   []recordedVerification
}

func (p *fakeProvider) ActiveCandidates(ctx context.Context, ownerID string) ([]tmplservice.Candidate, error) {
	if p.err != nil {
		return nil, p.err
	}
	// Hand out fresh sample copies; the orchestrator wipes them.
	out := make([]tmplservice.Candidate, len(p.candidates))
	for i, c := range p.candidates {
		sample := make([]byte, len(c.Sample))
		copy(sample, c.Sample)
		out[i] = tmplservice.Candidate{Template: c.Template, Sample: sample, Format: c.Format}
	}
	return out, nil
}

func (p *fakeProvider) RecordVerification(ctx context.Context, id uuid.UUID, verified bool, durationMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, recordedVerification{id: id, verified: verified})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Emit(ctx context.Context, event audit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) kinds() []audit.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []audit.EventKind
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func stagedCandidate(similarity byte) tmplservice.Candidate {
	return tmplservice.Candidate{
		Template: &models.Template{ID: uuid.New(), FingerSlot: 0},
		Sample:   []byte{similarity},
		Format:   models.FormatRaw,
	}
}

func probeCapture() models.Capture {
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte((i % 200) + 1)
	}
	return models.Capture{Data: data, Format: models.FormatRaw}
}

func newStagedService(provider *fakeProvider, opts ...Option) *Service {
	return New(allowAllLimiter{}, provider, scriptedExtractor{}, scriptedMatcher{threshold: 80}, 100, 1<<20, opts...)
}

func TestVerifyRateLimited(t *testing.T) {
	provider := &fakeProvider{candidates: []tmplservice.Candidate{stagedCandidate(90)}}
	sink := &recordingPublisher{}
	svc := New(denyLimiter{}, provider, scriptedExtractor{}, scriptedMatcher{threshold: 80}, 100, 1<<20, WithAuditPublisher(sink))

	_, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
	assert.Contains(t, sink.kinds(), audit.EventVerificationRateLimited)
	assert.Empty(t, provider.recorded)
}

func TestVerifyCaptureValidation(t *testing.T) {
	svc := newStagedService(&fakeProvider{})

	tests := []struct {
		name    string
		capture models.Capture
	}{
		{"unknown format", models.Capture{Data: make([]byte, 200), Format: "JPEG"}},
		{"below minimum size", models.Capture{Data: make([]byte, 10), Format: models.FormatRaw}},
		{"above maximum size", models.Capture{Data: make([]byte, 1<<21), Format: models.FormatRaw}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Verify(context.Background(), "emp-1", tc.capture)
			require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestVerifyNoActiveTemplates(t *testing.T) {
	provider := &fakeProvider{err: dErrors.New(dErrors.CodeNotFound, "no active templates for owner")}
	svc := newStagedService(provider)

	_, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestVerifyProbeExtractionFailureAborts(t *testing.T) {
	provider := &fakeProvider{candidates: []tmplservice.Candidate{stagedCandidate(90)}}
	svc := newStagedService(provider)

	data := make([]byte, 200)
	data[0] = failMarker
	_, err := svc.Verify(context.Background(), "emp-1", models.Capture{Data: data, Format: models.FormatRaw})
	require.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
	assert.Empty(t, provider.recorded)
}

func TestVerifyBestMatchDeterminism(t *testing.T) {
	candidates := []tmplservice.Candidate{
		stagedCandidate(61),
		stagedCandidate(95),
		stagedCandidate(95),
	}
	provider := &fakeProvider{candidates: candidates}
	svc := newStagedService(provider)

	first, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.NoError(t, err)
	second, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.NoError(t, err)

	// Highest similarity wins; the earlier of the two 95s takes the tie on
	// every run.
	wantID := candidates[1].Template.ID
	assert.Equal(t, wantID, first.BestMatch.TemplateID)
	assert.Equal(t, wantID, second.BestMatch.TemplateID)
	assert.Equal(t, 95, first.Similarity)
	assert.Equal(t, 3, first.TemplatesCompared)
	assert.True(t, first.Verified)
}

func TestVerifySkipsFailedCandidates(t *testing.T) {
	good := stagedCandidate(70)
	provider := &fakeProvider{candidates: []tmplservice.Candidate{stagedCandidate(failMarker), good}}
	svc := newStagedService(provider)

	outcome, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.TemplatesCompared)
	assert.Equal(t, good.Template.ID, outcome.BestMatch.TemplateID)
	assert.False(t, outcome.Verified)
}

func TestVerifyAllCandidatesFail(t *testing.T) {
	provider := &fakeProvider{candidates: []tmplservice.Candidate{
		stagedCandidate(failMarker),
		stagedCandidate(failMarker),
	}}
	svc := newStagedService(provider)

	_, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
}

func TestVerifyRecordsStatsOnBestOnly(t *testing.T) {
	candidates := []tmplservice.Candidate{stagedCandidate(50), stagedCandidate(90)}
	provider := &fakeProvider{candidates: candidates}
	sink := &recordingPublisher{}
	svc := newStagedService(provider, WithAuditPublisher(sink))

	outcome, err := svc.Verify(context.Background(), "emp-1", probeCapture())
	require.NoError(t, err)
	require.True(t, outcome.Verified)

	require.Len(t, provider.recorded, 1)
	assert.Equal(t, candidates[1].Template.ID, provider.recorded[0].id)
	assert.True(t, provider.recorded[0].verified)
	assert.Contains(t, sink.kinds(), audit.EventVerificationSucceeded)
}

// TestVerifyEndToEnd exercises the real extractor, matcher, codec, store,
// and rate limiter together: enrolling a capture and verifying with the
// same capture must clear any threshold.
func TestVerifyEndToEnd(t *testing.T) {
	keyring, err := codec.NewStaticKeyring("e2e-master-secret", 1)
	require.NoError(t, err)

	sealer := codec.New(keyring)
	templates := tmplservice.New(store.NewInMemoryStore(), sealer, 0)

	counter := rlstore.NewInMemoryCounterStore()
	limiter, err := ratelimit.New(counter, 5, time.Minute)
	require.NoError(t, err)

	svc := New(limiter, templates, feature.NewExtractor(), matcher.New(80), 100, 1<<20)

	ctx := requestcontext.WithClientID(context.Background(), "scanner-1")

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte((i*37)%251) ^ byte(i%64)
	}
	capture := models.Capture{Data: data, Format: models.FormatRaw}

	enrolled, err := templates.Enroll(ctx, "emp-1", 1, capture, 80, models.EnrollMetadata{})
	require.NoError(t, err)

	outcome, err := svc.Verify(ctx, "emp-1", capture)
	require.NoError(t, err)
	assert.True(t, outcome.Verified)
	assert.Equal(t, 100, outcome.Similarity)
	require.NotNil(t, outcome.BestMatch)
	assert.Equal(t, enrolled.ID, outcome.BestMatch.TemplateID)
	assert.Equal(t, 1, outcome.TemplatesCompared)
}
