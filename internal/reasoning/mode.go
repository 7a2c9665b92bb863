// Package reasoning defines the reasoning compatibility modes that control
// how upstream chain-of-thought deltas are packed into chat-completion output.
package reasoning

import (
	"fmt"
	"strings"
)

// Mode selects the output shape for reasoning text.
type Mode string

const (
	// ModeTagged embeds reasoning in the visible content inside a
	// <think>...</think> wrapper. Default for unrecognized input.
	ModeTagged Mode = "tagged"
	// ModeOpenAI emits reasoning as delta.reasoning_content.
	ModeOpenAI Mode = "openai"
	// ModeO3 emits reasoning as delta.reasoning.content[{type:"text",text}].
	ModeO3 Mode = "o3"
	// ModeR1 emits reasoning as delta.reasoning_content (DeepSeek R1 style).
	ModeR1 Mode = "r1"
	// ModeHidden drops reasoning deltas entirely.
	ModeHidden Mode = "hidden"
)

// legacyReplacements maps retired mode names to their supported successors.
// These are rejected outright rather than silently normalized so callers
// migrate their configuration.
var legacyReplacements = map[string]Mode{
	"legacy":  ModeTagged,
	"current": ModeOpenAI,
}

// Normalize resolves a raw compatibility string to a Mode. It trims and
// lowercases, maps the "hide" alias to hidden, and falls back to tagged for
// anything unrecognized. Normalize is pure and total; rejection of legacy
// names is a separate pre-check (CheckRejected).
func Normalize(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeTagged:
		return ModeTagged
	case ModeOpenAI:
		return ModeOpenAI
	case ModeO3:
		return ModeO3
	case ModeR1:
		return ModeR1
	case ModeHidden, "hide":
		return ModeHidden
	default:
		return ModeTagged
	}
}

// CheckRejected returns an error for explicitly retired mode names. The error
// message names the supported replacement so clients can self-serve the fix.
func CheckRejected(raw string) error {
	name := strings.ToLower(strings.TrimSpace(raw))
	if replacement, ok := legacyReplacements[name]; ok {
		return fmt.Errorf("reasoning compat mode %q is no longer supported; use %q instead", name, replacement)
	}
	return nil
}
