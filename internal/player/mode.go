package player

import (
	"errors"
	"fmt"
)

// Mode is the listener instruction consumed on the next advance
type Mode int

const (
	// ModeSkip ends the current track on the next tick
	ModeSkip Mode = -1
	// ModeContinue advances normally when the track ends
	ModeContinue Mode = 0
	// ModeLoop replays the current track when it ends
	ModeLoop Mode = 1
)

// ErrInvalidMode is returned for wire values outside -1..1
var ErrInvalidMode = errors.New("invalid mode")

// String returns the string representation of Mode
func (m Mode) String() string {
	switch m {
	case ModeSkip:
		return "skip"
	case ModeContinue:
		return "continue"
	case ModeLoop:
		return "loop"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a wire value into a Mode
func ParseMode(v int) (Mode, error) {
	switch m := Mode(v); m {
	case ModeSkip, ModeContinue, ModeLoop:
		return m, nil
	default:
		return ModeContinue, fmt.Errorf("%w: %d", ErrInvalidMode, v)
	}
}
