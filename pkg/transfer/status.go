package transfer

import "errors"

// Status tracks one opponent's view of a file transfer, from the moment the
// offer goes out until a terminal outcome.
type Status int

const (
	// StatusNotDecided indicates the offer is out but the opponent has not
	// answered yet.
	StatusNotDecided Status = iota
	// StatusDeclinedByOpponent indicates the remote side refused the offer.
	StatusDeclinedByOpponent
	// StatusDeclinedByYou indicates the local side refused the offer.
	StatusDeclinedByYou
	// StatusInProgress indicates chunks are flowing.
	StatusInProgress
	// StatusFinished indicates every chunk arrived and the checksum matched.
	StatusFinished
	// StatusError indicates the transfer broke before finishing.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNotDecided:
		return "not_decided"
	case StatusDeclinedByOpponent:
		return "declined_by_opponent"
	case StatusDeclinedByYou:
		return "declined_by_you"
	case StatusInProgress:
		return "in_progress"
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status is final. Declines, completion and
// errors all end the transfer for that opponent.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDeclinedByOpponent, StatusDeclinedByYou, StatusFinished, StatusError:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusNotDecided:
		return next == StatusInProgress || next == StatusDeclinedByOpponent ||
			next == StatusDeclinedByYou || next == StatusError
	case StatusInProgress:
		return next == StatusFinished || next == StatusError
	default:
		return false
	}
}

var (
	// ErrInvalidTransition is returned when a status change would skip or
	// reverse the transfer lifecycle.
	ErrInvalidTransition = errors.New("invalid transfer status transition")

	// ErrUnknownOpponent is returned when a record has no sub-record for the
	// requested opponent.
	ErrUnknownOpponent = errors.New("no transfer for this opponent")

	// ErrNotInProgress is returned when progress is reported for a transfer
	// that is not running.
	ErrNotInProgress = errors.New("transfer is not in progress")

	// ErrChecksumMismatch is returned when the assembled file does not hash
	// to the offered checksum.
	ErrChecksumMismatch = errors.New("file checksum mismatch")

	// ErrChunkCorrupted is returned when a chunk fails its own hash check.
	ErrChunkCorrupted = errors.New("chunk hash mismatch")

	// ErrNotEnoughSpace is returned by the pre-accept disk check.
	ErrNotEnoughSpace = errors.New("not enough free disk space")

	// ErrDeclined is returned to a sender whose offer was refused.
	ErrDeclined = errors.New("transfer declined")
)
