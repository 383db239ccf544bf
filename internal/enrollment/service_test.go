package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriprint/internal/feature"
	"veriprint/internal/template/codec"
	"veriprint/internal/template/models"
	tmplservice "veriprint/internal/template/service"
	"veriprint/internal/template/store"
	dErrors "veriprint/pkg/domain-errors"
)

func newEnrollmentService(t *testing.T, minQuality int) *Service {
	t.Helper()
	keyring, err := codec.NewStaticKeyring("test-master-secret", 1)
	require.NoError(t, err)
	templates := tmplservice.New(store.NewInMemoryStore(), codec.New(keyring), 24*time.Hour)
	return New(templates, feature.NewExtractor(), minQuality, 100, 1<<20)
}

// variedCapture produces a sample with enough byte diversity and structure
// to clear a moderate quality gate.
func variedCapture(n int) models.Capture {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*37)%251) ^ byte(i%64)
	}
	return models.Capture{Data: data, Format: models.FormatRaw}
}

func flatCapture(n int) models.Capture {
	return models.Capture{Data: make([]byte, n), Format: models.FormatRaw}
}

func TestEnrollAcceptsGoodCapture(t *testing.T) {
	svc := newEnrollmentService(t, 40)

	tpl, err := svc.Enroll(context.Background(), "emp-1", 2, variedCapture(512), models.EnrollMetadata{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, tpl.Status)
	assert.Equal(t, models.FingerSlot(2), tpl.FingerSlot)
	assert.GreaterOrEqual(t, tpl.QualityScore, 40)
}

func TestEnrollRejectsLowQuality(t *testing.T) {
	svc := newEnrollmentService(t, 40)

	_, err := svc.Enroll(context.Background(), "emp-1", 0, flatCapture(512), models.EnrollMetadata{})
	require.True(t, dErrors.HasCode(err, dErrors.CodeLowQuality))
}

func TestEnrollValidatesCapture(t *testing.T) {
	svc := newEnrollmentService(t, 40)

	tests := []struct {
		name    string
		capture models.Capture
	}{
		{"unknown format", models.Capture{Data: make([]byte, 512), Format: "BMP"}},
		{"too small", variedCapture(10)},
		{"too large", models.Capture{Data: make([]byte, 1<<21), Format: models.FormatRaw}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Enroll(context.Background(), "emp-1", 0, tc.capture, models.EnrollMetadata{})
			require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestEnrollDuplicateSlotThenRevokeFreesIt(t *testing.T) {
	keyring, err := codec.NewStaticKeyring("test-master-secret", 1)
	require.NoError(t, err)
	templates := tmplservice.New(store.NewInMemoryStore(), codec.New(keyring), 24*time.Hour)
	svc := New(templates, feature.NewExtractor(), 40, 100, 1<<20)

	ctx := context.Background()
	first, err := svc.Enroll(ctx, "emp-1", 3, variedCapture(512), models.EnrollMetadata{})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "emp-1", 3, variedCapture(512), models.EnrollMetadata{})
	require.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateFinger))

	require.NoError(t, templates.Revoke(ctx, first.ID))

	_, err = svc.Enroll(ctx, "emp-1", 3, variedCapture(512), models.EnrollMetadata{})
	require.NoError(t, err)
}
