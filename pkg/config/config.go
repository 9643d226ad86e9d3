package config

import (
	"fmt"
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// CheckTimeoutGetter resolves the effective timeout for a check type from
// the host daemon's configuration subsystem (spec.md §4.5 step 4:
// "Resolve per-check-type timeouts via an external config getter; on
// failure record rule error").
type CheckTimeoutGetter interface {
	CheckTimeout(t types.CheckType) (time.Duration, error)
}

// UserMacroResolver expands any user macro embedded in a Rule's delay
// field (spec.md §1 Non-goals: "resolving configuration macros" is
// delegated here).
type UserMacroResolver interface {
	ResolveMacro(druleid, raw string) (string, error)
}

// StaticTimeouts is a CheckTimeoutGetter backed by a fixed map, falling
// back to Default for any check type not present. Used standalone and in
// tests; a real deployment wires in the host daemon's live config cache.
type StaticTimeouts struct {
	Default time.Duration
	ByType  map[types.CheckType]time.Duration
}

// NewStaticTimeouts builds a StaticTimeouts with a 3 second default.
func NewStaticTimeouts() *StaticTimeouts {
	return &StaticTimeouts{Default: 3 * time.Second, ByType: map[types.CheckType]time.Duration{}}
}

// CheckTimeout implements CheckTimeoutGetter.
func (s *StaticTimeouts) CheckTimeout(t types.CheckType) (time.Duration, error) {
	if d, ok := s.ByType[t]; ok {
		if d <= 0 {
			return 0, fmt.Errorf("configured timeout for %s must be positive", t)
		}
		return d, nil
	}
	return s.Default, nil
}

// NoopMacroResolver returns the raw string unchanged: it is the
// UserMacroResolver used when the rule's delay field never contains a
// macro (the common case in tests and in the standalone binary).
type NoopMacroResolver struct{}

// ResolveMacro implements UserMacroResolver.
func (NoopMacroResolver) ResolveMacro(_, raw string) (string, error) {
	return raw, nil
}
