package call

import (
	"context"
	"strings"
)

// Request describes which inputs to capture and which devices to prefer.
type Request struct {
	Mic    bool
	Video  bool
	Screen bool

	MicID    string
	WebcamID string
}

// Empty reports whether nothing was requested.
func (r Request) Empty() bool {
	return !r.Mic && !r.Video && !r.Screen
}

// DeviceInfo identifies one capturable device.
type DeviceInfo struct {
	ID    string
	Label string
	Kind  string // KindAudio or KindVideo
}

// Capturer acquires local media. Implementations live per platform; tests use
// a fake.
type Capturer interface {
	// Capture acquires the requested inputs. It returns the stream it could
	// build plus a CaptureError describing any sources that failed; both may
	// be non-nil at once when capture partially succeeded. A nil stream with
	// a non-nil error means nothing could be captured.
	Capture(ctx context.Context, req Request) (*Stream, *CaptureError)

	// Devices enumerates the capturable devices.
	Devices() []DeviceInfo
}

// CaptureError aggregates per-source capture failures so the user learns
// exactly which of mic, video and screen share went wrong.
type CaptureError struct {
	Mic    error
	Video  error
	Screen error
}

func (e *CaptureError) Error() string {
	var failed []string
	if e.Mic != nil {
		failed = append(failed, "mic: "+e.Mic.Error())
	}
	if e.Video != nil {
		failed = append(failed, "video: "+e.Video.Error())
	}
	if e.Screen != nil {
		failed = append(failed, "screen: "+e.Screen.Error())
	}
	if len(failed) == 0 {
		return "capture failed"
	}
	return "capture failed (" + strings.Join(failed, "; ") + ")"
}

// IsEmpty reports whether no source failed.
func (e *CaptureError) IsEmpty() bool {
	return e == nil || (e.Mic == nil && e.Video == nil && e.Screen == nil)
}
