package authflow

import "time"

// State is a single-use correlation record for an in-flight provider
// authorization. DeviceSessionID and ServiceName stay empty until bound.
type State struct {
	State           string
	DeviceSessionID string
	ServiceName     string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the state is past its window at now.
func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Binding is what a valid state resolves to.
type Binding struct {
	DeviceSessionID string
	ServiceName     string
}

// Bound reports whether the flow already knows its session and service.
func (b *Binding) Bound() bool {
	return b != nil && b.DeviceSessionID != "" && b.ServiceName != ""
}
