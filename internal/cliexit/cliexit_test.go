package cliexit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeNilIsZero(t *testing.T) {
	assert.Equal(t, 0, Code(nil))
}

func TestCodeMisconfigurationIsOne(t *testing.T) {
	assert.Equal(t, 1, Code(errors.New("--pipeline is required")))
}

func TestCodeBackendIsTwo(t *testing.T) {
	assert.Equal(t, 2, Code(Backend(errors.New("withdraw: connection refused"))))
}

func TestCodeBackendSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("run: %w", Backend(errors.New("update failed")))
	assert.Equal(t, 2, Code(err))
}

func TestBackendNilIsNil(t *testing.T) {
	assert.NoError(t, Backend(nil))
}

func TestBackendUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := Backend(inner)
	assert.ErrorIs(t, err, inner)
}
