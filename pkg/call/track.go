package call

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Track kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Track is one local media track with a mute switch. Camera and screen video
// are both KindVideo; screen tracks report Shared so toggling logic can tell
// them apart.
type Track interface {
	ID() string
	Kind() string
	Shared() bool
	Enabled() bool
	SetEnabled(enabled bool)
	Local() webrtc.TrackLocal
	Stop() error
}

// SampleSource is implemented by audio tracks that can hand out their raw
// PCM chunks. The handler subscribes the local volume meter through it.
type SampleSource interface {
	StartSampleFeed(push func([]int16)) (stop func(), err error)
}

// Stream is the local media stream shared read-only across every peer link
// of a call session.
type Stream struct {
	mu     sync.Mutex
	tracks []Track
}

func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns a snapshot of the stream's tracks.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Add appends tracks, for merging a screen capture into a camera stream.
func (s *Stream) Add(tracks ...Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, tracks...)
	s.mu.Unlock()
}

// Find returns the first live track of the given kind and share tag.
func (s *Stream) Find(kind string, shared bool) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind && t.Shared() == shared {
			return t, true
		}
	}
	return nil, false
}

// Stop stops every track. Safe on an empty stream.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// baseTrack carries the switchable state shared by all track flavors.
type baseTrack struct {
	id     string
	kind   string
	shared bool

	mu      sync.Mutex
	enabled bool
}

func (b *baseTrack) ID() string   { return b.id }
func (b *baseTrack) Kind() string { return b.kind }
func (b *baseTrack) Shared() bool { return b.shared }

func (b *baseTrack) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *baseTrack) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}
