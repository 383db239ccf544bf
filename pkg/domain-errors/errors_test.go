package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code", func(t *testing.T) {
		err := New(CodeDuplicateFinger, "slot 3 already enrolled")
		assert.True(t, HasCode(err, CodeDuplicateFinger))
		assert.False(t, HasCode(err, CodeValidation))
	})

	t.Run("wrapped chain", func(t *testing.T) {
		inner := New(CodeIntegrity, "checksum mismatch")
		outer := Wrap(inner, CodeInternal, "candidate skipped")
		assert.True(t, HasCode(outer, CodeIntegrity))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("non-domain error", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeRateLimited, CodeOf(New(CodeRateLimited, "backoff")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeValidation, CodeOf(fmt.Errorf("handler: %w", New(CodeValidation, "bad slot"))))
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestUnwrapKeepsSentinels(t *testing.T) {
	sentinel := errors.New("not found")
	err := Wrap(sentinel, CodeNotFound, "no active templates")
	assert.True(t, errors.Is(err, sentinel))
}
