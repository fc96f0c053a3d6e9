package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "document not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("matches inner code through wrapping", func(t *testing.T) {
		inner := New(CodeIntegrity, "authentication tag mismatch")
		outer := Wrap(fmt.Errorf("retrieve: %w", inner), CodeStorage, "retrieve failed")
		assert.True(t, HasCode(outer, CodeStorage))
		assert.True(t, HasCode(outer, CodeIntegrity))
		assert.True(t, Is(outer, CodeIntegrity))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeStorage, "put object")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "put object: connection refused", err.Error())
	})
}

func TestDetails(t *testing.T) {
	err := WithDetails(CodeValidation, "document failed validation", []string{"format mismatch", "size too small"})
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Equal(t, []string{"format mismatch", "size too small"}, DetailsOf(err))
	assert.Equal(t, "document failed validation: format mismatch; size too small", Summary(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
