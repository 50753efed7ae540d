package appevents

// AppEvent is a marker interface for events flowing from the user-facing
// frontend into the application controller. The unexported method ensures
// only types embedding Event can satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event is embedded by event types to satisfy AppEvent.
type Event struct{}

func (Event) isAppEvent() {}

// AppUIMessage is a marker interface for messages flowing from the
// application controller back to the frontend.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is embedded by message types to satisfy AppUIMessage.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// UIErrorEvent reports a frontend-side failure to the controller.
type UIErrorEvent struct {
	Event
	Err error
}

// AppErrorMsg reports a controller-side failure to the frontend.
type AppErrorMsg struct {
	UIMessage
	Err error
}
