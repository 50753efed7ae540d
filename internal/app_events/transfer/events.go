package transfer

import (
	appevents "github.com/okarpov/peerLink/internal/app_events"
	"github.com/okarpov/peerLink/pkg/transfer"
)

// --- Frontend to controller events ---

// AcceptFileEvent is sent when the user agrees to receive the offered file.
type AcceptFileEvent struct {
	appevents.Event
}

// RejectFileEvent is sent when the user refuses the offered file.
type RejectFileEvent struct {
	appevents.Event
	Reason string
}

var (
	_ appevents.AppEvent = (*AcceptFileEvent)(nil)
	_ appevents.AppEvent = (*RejectFileEvent)(nil)
)

// --- Controller to frontend messages ---

// FileOfferedMsg announces an incoming signed file offer.
type FileOfferedMsg struct {
	appevents.UIMessage
	FileName string
	FileSize int64
	MimeType string
}

// ProgressMsg carries one progress snapshot.
type ProgressMsg struct {
	appevents.UIMessage
	Progress transfer.Progress
}

// TransferDoneMsg announces a terminal outcome.
type TransferDoneMsg struct {
	appevents.UIMessage
	Status transfer.Status
	Err    error
}
