package call

import (
	appevents "github.com/okarpov/peerLink/internal/app_events"
)

// --- Frontend to controller events ---

// AnswerCallEvent is sent when the user accepts an incoming call.
type AnswerCallEvent struct {
	appevents.Event
	ConnID string
}

// DeclineCallEvent is sent when the user refuses an incoming call.
type DeclineCallEvent struct {
	appevents.Event
	ConnID string
}

// ToggleDeviceEvent is sent when the user flips a device on or off.
type ToggleDeviceEvent struct {
	appevents.Event
	Device string // "mic", "video" or "screen"
}

// HangUpEvent is sent when the user ends the call.
type HangUpEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*AnswerCallEvent)(nil)
	_ appevents.AppEvent = (*DeclineCallEvent)(nil)
	_ appevents.AppEvent = (*ToggleDeviceEvent)(nil)
	_ appevents.AppEvent = (*HangUpEvent)(nil)
)

// --- Controller to frontend messages ---

// IncomingCallMsg announces an offer from another room member.
type IncomingCallMsg struct {
	appevents.UIMessage
	ConnID string
	RoomID string
}

// PeerJoinedMsg announces a newly connected opponent.
type PeerJoinedMsg struct {
	appevents.UIMessage
	OpponentWsID string
}

// PeerLeftMsg announces a departed opponent.
type PeerLeftMsg struct {
	appevents.UIMessage
	OpponentWsID string
	Reason       string
}

// CallEndedMsg announces the teardown of the whole session.
type CallEndedMsg struct {
	appevents.UIMessage
	Reason string
}

// AudioLevelMsg carries the local microphone level for volume meters.
type AudioLevelMsg struct {
	appevents.UIMessage
	Level float64 // 0..1
}
