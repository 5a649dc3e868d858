// Package prompt reads passwords from the terminal for hash-password and
// users verify.
package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

var (
	// ErrAborted is returned when the user interrupts a prompt with Ctrl+C
	// or Ctrl+D.
	ErrAborted = errors.New("aborted")

	// ErrPasswordMismatch is returned by NewPassword when the confirmation
	// differs.
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// IsAborted reports whether err means the user left the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrEOF)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Password prompts for a password input with masking.
func Password(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}

// NewPassword prompts for a password of at least minLength characters,
// then for its confirmation.
func NewPassword(minLength int) (string, error) {
	prompt := promptui.Prompt{
		Label:    "Password",
		Mask:     '*',
		Validate: MinLength(minLength),
	}
	password, err := prompt.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm, err := Password("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

// MinLength returns a promptui validator rejecting shorter inputs.
func MinLength(n int) promptui.ValidateFunc {
	return func(input string) error {
		if len(input) < n {
			return fmt.Errorf("password must be at least %d characters", n)
		}
		return nil
	}
}
