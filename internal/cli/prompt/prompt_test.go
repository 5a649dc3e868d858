package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	assert.ErrorIs(t, wrapError(promptui.ErrInterrupt), ErrAborted)
	assert.ErrorIs(t, wrapError(fmt.Errorf("read: %w", promptui.ErrAbort)), ErrAborted)
	assert.ErrorIs(t, wrapError(promptui.ErrEOF), ErrAborted)

	other := errors.New("tty closed")
	assert.Equal(t, other, wrapError(other))
}

func TestMinLength(t *testing.T) {
	validate := MinLength(8)
	assert.Error(t, validate("short"))
	assert.NoError(t, validate("long enough"))
}
