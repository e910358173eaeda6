package session

// State is the lifecycle tag of a session.
type State string

const (
	Created      State = "CREATED"
	SrcConnected State = "SRC_CONNECTED"
	DstConnected State = "DST_CONNECTED"
	Streaming    State = "STREAMING"
	Finished     State = "FINISHED"

	TimeoutNoSrc      State = "TIMEOUT_NO_SRC"
	TimeoutNoDst      State = "TIMEOUT_NO_DST"
	TimeoutNoSrcNoDst State = "TIMEOUT_NO_SRC_NO_DST"
	SrcError          State = "SRC_ERROR"
	DstError          State = "DST_ERROR"
	SrcDisconnected   State = "SRC_DISCONNECTED"
	DstDisconnected   State = "DST_DISCONNECTED"
	ClientErrored     State = "CLIENT_ERROR"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case Created, SrcConnected, DstConnected, Streaming:
		return false
	}
	return true
}

func timeoutState(hasSrc, hasDst bool) State {
	switch {
	case hasSrc:
		return TimeoutNoDst
	case hasDst:
		return TimeoutNoSrc
	default:
		return TimeoutNoSrcNoDst
	}
}

func failureState(side Side, disconnected bool) State {
	switch {
	case side == SideSource && disconnected:
		return SrcDisconnected
	case side == SideSource:
		return SrcError
	case disconnected:
		return DstDisconnected
	default:
		return DstError
	}
}
