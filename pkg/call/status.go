package call

// Status tracks where the local side stands in the call handshake.
type Status int

const (
	// StatusNotInited means no call session exists.
	StatusNotInited Status = iota
	// StatusSentOffer means the local side started a call and is waiting for
	// opponents to answer.
	StatusSentOffer
	// StatusReceivedOffer means an offer arrived but the local side has not
	// captured media and accepted yet.
	StatusReceivedOffer
	// StatusAccepted means the local side is in the call with media attached.
	StatusAccepted
)

func (s Status) String() string {
	switch s {
	case StatusNotInited:
		return "not_inited"
	case StatusSentOffer:
		return "sent_offer"
	case StatusReceivedOffer:
		return "received_offer"
	case StatusAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}
