package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriprint/internal/enrollment"
	"veriprint/internal/feature"
	"veriprint/internal/matcher"
	"veriprint/internal/ratelimit"
	rlstore "veriprint/internal/ratelimit/store"
	"veriprint/internal/template/codec"
	tmplservice "veriprint/internal/template/service"
	"veriprint/internal/template/store"
	"veriprint/internal/verification"
	"veriprint/pkg/platform/sentinel"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	keyring, err := codec.NewStaticKeyring("handler-test-secret", 1)
	require.NoError(t, err)
	templates := tmplservice.New(store.NewInMemoryStore(), codec.New(keyring), 24*time.Hour)

	limiter, err := ratelimit.New(rlstore.NewInMemoryCounterStore(), 100, time.Minute)
	require.NoError(t, err)

	extractor := feature.NewExtractor()
	verifier := verification.New(limiter, templates, extractor, matcher.New(80), 100, 1<<20)
	enroller := enrollment.New(templates, extractor, 40, 100, 1<<20)

	h := New(verifier, enroller, templates, slog.New(slog.DiscardHandler))
	return NewRouter(h, nil)
}

func sampleData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*37)%251) ^ byte(i%64)
	}
	return data
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", "scanner-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func enrollOwner(t *testing.T, router http.Handler, ownerID string, slot int) EnrollResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/enroll", EnrollRequest{
		OwnerID:    ownerID,
		FingerSlot: slot,
		Capture:    sampleData(512),
		Format:     "RAW",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp EnrollResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestEnrollThenVerify(t *testing.T) {
	router := newTestRouter(t)

	enrolled := enrollOwner(t, router, "emp-1", 2)
	assert.NotEmpty(t, enrolled.TemplateID)
	assert.Equal(t, 2, enrolled.FingerSlot)
	assert.GreaterOrEqual(t, enrolled.Quality, 40)

	rec := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
		OwnerID: "emp-1",
		Capture: sampleData(512),
		Format:  "RAW",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp VerifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, 100, resp.Similarity)
	require.NotNil(t, resp.BestMatch)
	assert.Equal(t, enrolled.TemplateID, resp.BestMatch.TemplateID)
	assert.Equal(t, 1, resp.TemplatesCompared)
}

func TestVerifyUnknownOwner(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
		OwnerID: "emp-unknown",
		Capture: sampleData(512),
		Format:  "RAW",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name    string
		payload VerifyRequest
	}{
		{"missing owner", VerifyRequest{Capture: sampleData(512), Format: "RAW"}},
		{"bad format", VerifyRequest{OwnerID: "emp-1", Capture: sampleData(512), Format: "JPEG"}},
		{"tiny capture", VerifyRequest{OwnerID: "emp-1", Capture: sampleData(10), Format: "RAW"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/v1/verify", tc.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestVerifyMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollDuplicateSlot(t *testing.T) {
	router := newTestRouter(t)
	enrollOwner(t, router, "emp-1", 0)

	rec := doJSON(t, router, http.MethodPost, "/v1/enroll", EnrollRequest{
		OwnerID:    "emp-1",
		FingerSlot: 0,
		Capture:    sampleData(512),
		Format:     "RAW",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "duplicate_finger", resp["error"])
}

func TestEnrollLowQuality(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/enroll", EnrollRequest{
		OwnerID:    "emp-1",
		FingerSlot: 0,
		Capture:    make([]byte, 512),
		Format:     "RAW",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEnrollSlotOutOfRange(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/enroll", EnrollRequest{
		OwnerID:    "emp-1",
		FingerSlot: 10,
		Capture:    sampleData(512),
		Format:     "RAW",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeTemplate(t *testing.T) {
	router := newTestRouter(t)
	enrolled := enrollOwner(t, router, "emp-1", 1)

	rec := doJSON(t, router, http.MethodDelete, "/v1/templates/"+enrolled.TemplateID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent.
	rec = doJSON(t, router, http.MethodDelete, "/v1/templates/"+enrolled.TemplateID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	verify := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
		OwnerID: "emp-1",
		Capture: sampleData(512),
		Format:  "RAW",
	})
	assert.Equal(t, http.StatusNotFound, verify.Code)
}

func TestRevokeBadID(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodDelete, "/v1/templates/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisableOwnerCascade(t *testing.T) {
	router := newTestRouter(t)
	enrollOwner(t, router, "emp-1", 0)
	enrollOwner(t, router, "emp-1", 1)

	rec := doJSON(t, router, http.MethodPost, "/v1/owners/emp-1/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OwnerCascadeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)

	verify := doJSON(t, router, http.MethodPost, "/v1/verify", VerifyRequest{
		OwnerID: "emp-1",
		Capture: sampleData(512),
		Format:  "RAW",
	})
	assert.Equal(t, http.StatusNotFound, verify.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type staticHealth struct{ err error }

func (h staticHealth) Health(context.Context) error { return h.err }

func TestHealthzDegraded(t *testing.T) {
	keyring, err := codec.NewStaticKeyring("handler-test-secret", 1)
	require.NoError(t, err)
	templates := tmplservice.New(store.NewInMemoryStore(), codec.New(keyring), 24*time.Hour)

	limiter, err := ratelimit.New(rlstore.NewInMemoryCounterStore(), 100, time.Minute)
	require.NoError(t, err)

	extractor := feature.NewExtractor()
	verifier := verification.New(limiter, templates, extractor, matcher.New(80), 100, 1<<20)
	enroller := enrollment.New(templates, extractor, 40, 100, 1<<20)
	h := New(verifier, enroller, templates, slog.New(slog.DiscardHandler))

	router := NewRouter(h, map[string]HealthChecker{
		"postgres": staticHealth{},
		"redis":    staticHealth{err: fmt.Errorf("%w: connection refused", sentinel.ErrUnavailable)},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["redis"], "unavailable")
	assert.NotContains(t, body, "postgres")
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
