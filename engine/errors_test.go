package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	assert.False(t, IsPermanent(Transient(base)))
	assert.False(t, IsTimeout(Transient(base)))

	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsTimeout(Permanent(base)))

	timeout := &TimeoutError{Err: base}
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsPermanent(timeout))

	// Untagged errors carry no classification.
	assert.False(t, IsPermanent(base))
	assert.False(t, IsTimeout(base))
}

func TestErrorClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("composing plan: %w", Permanent(errors.New("invalid model")))
	assert.True(t, IsPermanent(err))

	err = fmt.Errorf("attempt 3: %w", &TimeoutError{Err: errors.New("deadline")})
	assert.True(t, IsTimeout(err))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")

	assert.ErrorIs(t, Transient(base), base)
	assert.ErrorIs(t, Permanent(base), base)
	assert.ErrorIs(t, &TimeoutError{Err: base}, base)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "transient: boom", Transientf("boom").Error())
	assert.Equal(t, "permanent: no recipes match", Permanentf("no recipes match").Error())
	assert.Equal(t, "timeout: slow", (&TimeoutError{Err: errors.New("slow")}).Error())
}
