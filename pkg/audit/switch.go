package audit

import "sync/atomic"

// Switch is the process-wide on/off flag for auditing.
// It is safe for concurrent use and may be shared between engines.
type Switch struct {
	enabled atomic.Bool
}

// NewSwitch creates a switch in the given state.
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.enabled.Store(enabled)
	return s
}

func (s *Switch) SetEnabled(enabled bool) { s.enabled.Store(enabled) }

func (s *Switch) Enable() { s.enabled.Store(true) }

func (s *Switch) Disable() { s.enabled.Store(false) }

func (s *Switch) IsEnabled() bool { return s.enabled.Load() }
