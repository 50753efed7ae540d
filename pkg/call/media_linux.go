//go:build linux

package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
)

// deviceTrack wraps a captured mediadevices track.
type deviceTrack struct {
	baseTrack
	md mediadevices.Track
}

func (t *deviceTrack) Local() webrtc.TrackLocal { return t.md }
func (t *deviceTrack) Stop() error              { return t.md.Close() }

// StartSampleFeed implements SampleSource for microphone tracks: a broadcast
// reader pumps PCM chunks to push until stop is called or the track closes.
func (t *deviceTrack) StartSampleFeed(push func([]int16)) (func(), error) {
	at, ok := t.md.(*mediadevices.AudioTrack)
	if !ok {
		return nil, errors.New("track carries no raw audio")
	}
	reader := at.NewReader(false)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			chunk, release, err := reader.Read()
			if err != nil {
				return
			}
			push(pcmSamples(chunk))
			release()
		}
	}()
	return func() { close(done) }, nil
}

func pcmSamples(chunk wave.Audio) []int16 {
	if in, ok := chunk.(*wave.Int16Interleaved); ok {
		out := make([]int16, len(in.Data))
		copy(out, in.Data)
		return out
	}
	info := chunk.ChunkInfo()
	out := make([]int16, 0, info.Len*info.Channels)
	for i := 0; i < info.Len; i++ {
		for ch := 0; ch < info.Channels; ch++ {
			out = append(out, int16(chunk.At(i, ch).Int()>>16))
		}
	}
	return out
}

// DeviceCapturer acquires camera, microphone and screen via pion/mediadevices
// (V4L2, malgo and X11 on Linux), encoding VP8 and Opus. Screen capture falls
// back to the helper process when the native path fails.
type DeviceCapturer struct {
	selector *mediadevices.CodecSelector
	helper   *ScreenHelper
	logger   *slog.Logger
}

func NewDeviceCapturer(helper *ScreenHelper) (*DeviceCapturer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &DeviceCapturer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		helper: helper,
		logger: slog.Default().With("component", "capturer"),
	}, nil
}

// APIOptions builds the native API options matching the capturer's codecs.
// Links negotiating captured tracks must come from an API built with these.
func (c *DeviceCapturer) APIOptions() ([]func(*webrtc.API), error) {
	mediaEngine := &webrtc.MediaEngine{}
	c.selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	// Generous ICE timeouts; a brief relay hiccup must not end the call.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	return []func(*webrtc.API){
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	}, nil
}

// Devices enumerates capturable microphones and cameras.
func (c *DeviceCapturer) Devices() []DeviceInfo {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		kind := KindVideo
		if d.Kind == mediadevices.AudioInput {
			kind = KindAudio
		}
		out = append(out, DeviceInfo{ID: d.DeviceID, Label: d.Label, Kind: kind})
	}
	return out
}

// Capture acquires the requested inputs, degrading gracefully: a busy camera
// must not take the microphone down with it, and vice versa.
func (c *DeviceCapturer) Capture(ctx context.Context, req Request) (*Stream, *CaptureError) {
	capErr := &CaptureError{}
	stream := NewStream()

	if req.Mic || req.Video {
		c.captureUserMedia(req, stream, capErr)
	}
	if req.Screen {
		c.captureScreen(ctx, stream, capErr)
	}

	if len(stream.Tracks()) == 0 {
		if capErr.IsEmpty() {
			none := errors.New("no media captured")
			if req.Mic {
				capErr.Mic = none
			}
			if req.Video {
				capErr.Video = none
			}
		}
		return nil, capErr
	}
	if capErr.IsEmpty() {
		return stream, nil
	}
	return stream, capErr
}

func (c *DeviceCapturer) captureUserMedia(req Request, stream *Stream, capErr *CaptureError) {
	// GetUserMedia fails as a unit when either source cannot open, so try
	// combined first and then each source alone.
	type attempt struct{ video, audio bool }
	var attempts []attempt
	if req.Video && req.Mic {
		attempts = append(attempts, attempt{true, true})
	}
	if req.Video {
		attempts = append(attempts, attempt{true, false})
	}
	if req.Mic {
		attempts = append(attempts, attempt{false, true})
	}

	var lastErr error
	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
		if a.video {
			constraints.Video = func(mtc *mediadevices.MediaTrackConstraints) {
				if req.WebcamID != "" {
					mtc.DeviceID = prop.String(req.WebcamID)
				}
				// Raw formats only; some cameras expose MJPEG nodes that
				// poison the VP8 encoder.
				mtc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				mtc.Width = prop.IntRanged{Max: 640}
				mtc.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(mtc *mediadevices.MediaTrackConstraints) {
				if req.MicID != "" {
					mtc.DeviceID = prop.String(req.MicID)
				}
			}
		}

		s, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			c.logger.Warn("GetUserMedia attempt failed",
				"video", a.video, "audio", a.audio, "error", err)
			lastErr = err
			continue
		}

		for _, track := range s.GetTracks() {
			kind := KindAudio
			if track.Kind() == webrtc.RTPCodecTypeVideo {
				kind = KindVideo
			}
			stream.Add(&deviceTrack{
				baseTrack: baseTrack{id: track.ID(), kind: kind, enabled: true},
				md:        track,
			})
		}
		break
	}

	if req.Video {
		if _, ok := stream.Find(KindVideo, false); !ok {
			capErr.Video = lastErr
		}
	}
	if req.Mic {
		if _, ok := stream.Find(KindAudio, false); !ok {
			capErr.Mic = lastErr
		}
	}
}

func (c *DeviceCapturer) captureScreen(ctx context.Context, stream *Stream, capErr *CaptureError) {
	s, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: c.selector,
		Video: func(*mediadevices.MediaTrackConstraints) {},
	})
	if err == nil {
		for _, track := range s.GetTracks() {
			stream.Add(&deviceTrack{
				baseTrack: baseTrack{id: track.ID(), kind: KindVideo, shared: true, enabled: true},
				md:        track,
			})
		}
		return
	}

	c.logger.Warn("Native screen capture failed, trying helper", "error", err)
	if c.helper == nil {
		capErr.Screen = err
		return
	}
	t, helperErr := c.helper.Capture(ctx)
	if helperErr != nil {
		capErr.Screen = helperErr
		return
	}
	stream.Add(t)
}
