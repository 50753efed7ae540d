package call

import (
	"sync"
)

// StreamConsumer is anything holding a reference to the shared local stream.
// Every peer link of a session is one.
type StreamConsumer interface {
	StreamChanged(newStream, oldStream *Stream)
}

// LocalMedia holds the captured stream, the user's device toggles and the
// call status. The stream is shared by reference across all peer links;
// replacing it notifies every consumer before the old tracks stop, so no
// link is left holding dead tracks.
type LocalMedia struct {
	mu sync.Mutex

	stream *Stream
	status Status

	showMic     bool
	showVideo   bool
	shareScreen bool

	currentMic     string
	currentSpeaker string
	currentWebcam  string

	consumers []StreamConsumer
}

func NewLocalMedia() *LocalMedia {
	return &LocalMedia{status: StatusNotInited}
}

// Stream returns the current shared stream, nil before the first capture.
func (m *LocalMedia) Stream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Status returns the call status.
func (m *LocalMedia) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetStatus records where the call handshake stands.
func (m *LocalMedia) SetStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Toggles returns the current device flags as a capture request.
func (m *LocalMedia) Toggles() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Request{
		Mic:      m.showMic,
		Video:    m.showVideo,
		Screen:   m.shareScreen,
		MicID:    m.currentMic,
		WebcamID: m.currentWebcam,
	}
}

// SetToggles records the user's device flags.
func (m *LocalMedia) SetToggles(mic, video, screen bool) {
	m.mu.Lock()
	m.showMic = mic
	m.showVideo = video
	m.shareScreen = screen
	m.mu.Unlock()
}

// SelectDevices records the preferred device ids. Empty ids keep the
// previous selection.
func (m *LocalMedia) SelectDevices(micID, speakerID, webcamID string) {
	m.mu.Lock()
	if micID != "" {
		m.currentMic = micID
	}
	if speakerID != "" {
		m.currentSpeaker = speakerID
	}
	if webcamID != "" {
		m.currentWebcam = webcamID
	}
	m.mu.Unlock()
}

// AddConsumer registers a stream consumer. Consumers added after a capture
// pick the stream up themselves via Stream.
func (m *LocalMedia) AddConsumer(c StreamConsumer) {
	m.mu.Lock()
	m.consumers = append(m.consumers, c)
	m.mu.Unlock()
}

// RemoveConsumer drops a consumer, typically a closed link.
func (m *LocalMedia) RemoveConsumer(c StreamConsumer) {
	m.mu.Lock()
	for i, got := range m.consumers {
		if got == c {
			m.consumers = append(m.consumers[:i], m.consumers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

// Replace swaps in a freshly captured stream. Every consumer is notified
// with both references before the old tracks stop; stopping first would
// leave links sending from dead tracks.
func (m *LocalMedia) Replace(newStream *Stream) {
	m.mu.Lock()
	oldStream := m.stream
	m.stream = newStream
	consumers := make([]StreamConsumer, len(m.consumers))
	copy(consumers, m.consumers)
	m.mu.Unlock()

	for _, c := range consumers {
		c.StreamChanged(newStream, oldStream)
	}

	if oldStream != nil {
		oldStream.Stop()
	}
}

// Clear stops the stream and resets the state for the next call.
func (m *LocalMedia) Clear() {
	m.mu.Lock()
	oldStream := m.stream
	m.stream = nil
	m.status = StatusNotInited
	m.consumers = nil
	m.mu.Unlock()

	if oldStream != nil {
		oldStream.Stop()
	}
}
