package models

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("Keeps kind and cause", func(t *testing.T) {
		err := Wrap(ErrIO, "create index folder", os.ErrPermission)

		assert.True(t, errors.Is(err, ErrIO))
		assert.True(t, errors.Is(err, os.ErrPermission))
		assert.False(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, "create index folder: io error: permission denied", err.Error())
	})

	t.Run("Nil cause", func(t *testing.T) {
		err := Wrap(ErrService, "embed", nil)

		assert.True(t, errors.Is(err, ErrService))
		assert.Equal(t, "embed: service error", err.Error())
	})
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrValidation, "chunk size must be positive, got %d", 0)

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation error: chunk size must be positive, got 0", err.Error())
}

func TestPromptCarriesSentinelAndDisclaimer(t *testing.T) {
	assert.Contains(t, MedicalSystemPrompt, CannotAnswer)
	assert.Contains(t, MedicalSystemPrompt, Disclaimer)
}

func TestCheckQuery(t *testing.T) {
	assert.NoError(t, CheckQuery([]float32{0, 0.5, 0}))

	for name, q := range map[string][]float32{
		"empty":    nil,
		"zero":     {0, 0, 0},
		"nan":      {1, float32(math.NaN())},
		"infinite": {float32(math.Inf(-1)), 1},
	} {
		assert.ErrorIs(t, CheckQuery(q), ErrValidation, name)
	}
}
