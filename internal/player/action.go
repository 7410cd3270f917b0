package player

import (
	"fmt"
	"strings"
	"time"
)

type ActionKind int

const (
	// ActionOff fades the playing note out with the action's FadeOut.
	ActionOff ActionKind = iota
	// ActionStop stops the playing note before starting a new one.
	ActionStop
	// ActionContinue keeps the old note playing and starts a new one.
	ActionContinue
)

const defaultFadeOut = 100 * time.Millisecond

// NewNoteAction is what happens to a sounding note when a new note arrives
// on the same voice.
type NewNoteAction struct {
	Kind    ActionKind
	FadeOut time.Duration
}

var DefaultNewNoteAction = Off(defaultFadeOut)

func Continue() NewNoteAction              { return NewNoteAction{Kind: ActionContinue} }
func Stop() NewNoteAction                  { return NewNoteAction{Kind: ActionStop} }
func Off(fade time.Duration) NewNoteAction { return NewNoteAction{Kind: ActionOff, FadeOut: fade} }

// fadeOut is the fade applied when a voice started under this action stops.
func (a NewNoteAction) fadeOut() time.Duration {
	if a.Kind == ActionOff {
		return a.FadeOut
	}
	return defaultFadeOut
}

func (a NewNoteAction) String() string {
	switch a.Kind {
	case ActionContinue:
		return "continue"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("off(%s)", a.FadeOut)
	}
}

// ParseNewNoteAction parses "continue", "stop" or "off". fade is used for "off".
func ParseNewNoteAction(name string, fade time.Duration) (NewNoteAction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "continue":
		return Continue(), nil
	case "stop":
		return Stop(), nil
	case "", "off":
		return Off(fade), nil
	default:
		return NewNoteAction{}, fmt.Errorf("invalid new note action %q (expected continue|stop|off)", name)
	}
}
