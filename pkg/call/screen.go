package call

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// helperPingTimeout bounds the reachability probe of the screen helper.
const helperPingTimeout = 500 * time.Millisecond

// ErrHelperUnavailable tells the user the screen-share helper process is not
// running, so they can install or start it.
var ErrHelperUnavailable = errors.New("screen share helper is not reachable, install or start the helper")

// ScreenHelper reaches the out-of-process screen capturer used where no
// native capture backend exists. The helper listens on a local socket and
// streams length-prefixed VP8 frames on request.
type ScreenHelper struct {
	addr   string
	logger *slog.Logger
}

func NewScreenHelper(addr string) *ScreenHelper {
	return &ScreenHelper{
		addr:   addr,
		logger: slog.Default().With("component", "screenhelper", "addr", addr),
	}
}

// Ping probes the helper. A helper that does not answer within the ping
// window counts as absent.
func (h *ScreenHelper) Ping(ctx context.Context) error {
	dialer := net.Dialer{Timeout: helperPingTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}
	return conn.Close()
}

// Capture pings the helper and, when it answers, starts a screen track fed
// from the helper's frame stream.
func (h *ScreenHelper) Capture(ctx context.Context) (Track, error) {
	if err := h.Ping(ctx); err != nil {
		return nil, err
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}
	if _, err := conn.Write([]byte("CAPTURE\n")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}

	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"screen", "peerlink-screen",
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	t := &helperScreenTrack{
		baseTrack: baseTrack{id: "screen-helper", kind: KindVideo, shared: true, enabled: true},
		local:     local,
		conn:      conn,
		logger:    h.logger,
		done:      make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

// helperScreenTrack forwards helper frames into a local sample track.
type helperScreenTrack struct {
	baseTrack
	local  *webrtc.TrackLocalStaticSample
	conn   net.Conn
	logger *slog.Logger
	done   chan struct{}
}

func (t *helperScreenTrack) Local() webrtc.TrackLocal { return t.local }

func (t *helperScreenTrack) Stop() error {
	select {
	case <-t.done:
		return nil
	default:
	}
	close(t.done)
	return t.conn.Close()
}

func (t *helperScreenTrack) pump() {
	var header [4]byte
	for {
		select {
		case <-t.done:
			return
		default:
		}

		if _, err := io.ReadFull(t.conn, header[:]); err != nil {
			t.logger.Debug("Helper stream ended", "error", err)
			return
		}
		frame := make([]byte, binary.BigEndian.Uint32(header[:]))
		if _, err := io.ReadFull(t.conn, frame); err != nil {
			t.logger.Debug("Helper stream ended mid frame", "error", err)
			return
		}
		if !t.Enabled() {
			continue
		}
		if err := t.local.WriteSample(media.Sample{Data: frame, Duration: 33 * time.Millisecond}); err != nil {
			t.logger.Warn("Failed to forward screen frame", "error", err)
			return
		}
	}
}
