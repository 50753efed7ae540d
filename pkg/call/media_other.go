//go:build !linux

package call

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var errNoCaptureBackend = errors.New("device capture is not supported on this platform")

// DeviceCapturer on platforms without mediadevices drivers: calls are
// receive-only, screen share still works through the helper process.
type DeviceCapturer struct {
	helper *ScreenHelper
	logger *slog.Logger
}

func NewDeviceCapturer(helper *ScreenHelper) (*DeviceCapturer, error) {
	return &DeviceCapturer{
		helper: helper,
		logger: slog.Default().With("component", "capturer"),
	}, nil
}

// APIOptions builds default codec options; no capture-side codecs exist here.
func (c *DeviceCapturer) APIOptions() ([]func(*webrtc.API), error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}
	return []func(*webrtc.API){
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	}, nil
}

func (c *DeviceCapturer) Devices() []DeviceInfo { return nil }

func (c *DeviceCapturer) Capture(ctx context.Context, req Request) (*Stream, *CaptureError) {
	capErr := &CaptureError{}
	if req.Mic {
		capErr.Mic = errNoCaptureBackend
	}
	if req.Video {
		capErr.Video = errNoCaptureBackend
	}

	stream := NewStream()
	if req.Screen {
		if c.helper == nil {
			capErr.Screen = ErrHelperUnavailable
		} else if t, err := c.helper.Capture(ctx); err != nil {
			capErr.Screen = err
		} else {
			stream.Add(t)
		}
	}

	if len(stream.Tracks()) == 0 {
		return nil, capErr
	}
	if capErr.IsEmpty() {
		return stream, nil
	}
	return stream, capErr
}
