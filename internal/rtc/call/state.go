package call

type State string

const (
	StateIdle           State = "idle"
	StateAcquiringMedia State = "acquiring-media"
	StateNegotiating    State = "negotiating"
	StateConnected      State = "connected"
	StateReconnecting   State = "reconnecting"
	StateClosed         State = "closed"
	StateFailed         State = "failed"
)

// live states hold resources that finalize must release.
func (s State) live() bool {
	switch s {
	case StateAcquiringMedia, StateNegotiating, StateConnected, StateReconnecting:
		return true
	}
	return false
}

func (s State) startable() bool {
	return s == StateIdle || s == StateClosed || s == StateFailed
}
