package webrtc

// LinkStatus represents the lifecycle state of a peer link.
//
// The machine is new → negotiating → connected → closed, with failure edges
// negotiating → closed (negotiation abandoned) and connected → closed (remote
// disconnect or local hang-up). Closed is absorbing.
type LinkStatus int

const (
	// StatusNew indicates the link exists but negotiation has not started
	StatusNew LinkStatus = iota
	// StatusNegotiating indicates SDP/ICE exchange is in flight
	StatusNegotiating
	// StatusConnected indicates the link is usable end to end
	StatusConnected
	// StatusClosed indicates the link has been torn down; terminal
	StatusClosed
)

// String returns a human-readable representation of the link status
func (s LinkStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusNegotiating:
		return "negotiating"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is final
func (s LinkStatus) IsTerminal() bool {
	return s == StatusClosed
}

// CanTransitionTo checks if a status transition is valid
func (s LinkStatus) CanTransitionTo(next LinkStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusNew:
		return next == StatusNegotiating || next == StatusClosed
	case StatusNegotiating:
		return next == StatusConnected || next == StatusClosed
	case StatusConnected:
		return next == StatusClosed
	default:
		return false
	}
}

// DataChannelState mirrors the lifecycle of the link's data channel.
type DataChannelState int

const (
	// DataChannelNone indicates no data channel has been created yet
	DataChannelNone DataChannelState = iota
	// DataChannelConnecting indicates the channel is being established
	DataChannelConnecting
	// DataChannelOpen indicates the channel is usable
	DataChannelOpen
	// DataChannelClosing indicates a close is in flight
	DataChannelClosing
	// DataChannelClosed indicates the channel is gone
	DataChannelClosed
)

// String returns a human-readable representation of the data channel state
func (s DataChannelState) String() string {
	switch s {
	case DataChannelNone:
		return "none"
	case DataChannelConnecting:
		return "connecting"
	case DataChannelOpen:
		return "open"
	case DataChannelClosing:
		return "closing"
	case DataChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}
