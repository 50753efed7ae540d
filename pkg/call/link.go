package call

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

// CallLink is one opponent's leg of a call: a peer link that carries the
// shared local stream and renegotiates whenever that stream is replaced.
type CallLink struct {
	link   *rtc.PeerLink
	logger *slog.Logger

	mu      sync.Mutex
	senders []*webrtc.RTPSender
}

// NewCallLink creates the peer link for one opponent. Call links become
// connected on ICE, not on a data channel.
func NewCallLink(webrtcAPI *rtc.WebrtcAPI, cfg rtc.Config) (*CallLink, error) {
	cfg.ConnectOn = rtc.ConnectOnICE
	if cfg.BandwidthKbps == 0 {
		cfg.BandwidthKbps = rtc.VideoBandwidthKbps
	}
	link, err := webrtcAPI.NewPeerLink(cfg)
	if err != nil {
		return nil, err
	}
	return &CallLink{
		link: link,
		logger: slog.Default().With(
			"component", "calllink",
			"connId", cfg.ConnID,
			"opponentWsId", cfg.OpponentWsID,
		),
	}, nil
}

// Link exposes the underlying peer link.
func (c *CallLink) Link() *rtc.PeerLink { return c.link }

// OpponentID returns the opponent this leg connects to.
func (c *CallLink) OpponentID() string { return c.link.OpponentID() }

// Close tears the leg down.
func (c *CallLink) Close(reason string) { c.link.Close(reason) }

// AttachStream adds every track of the shared stream to the link. It does
// not negotiate; the caller decides when to offer.
func (c *CallLink) AttachStream(s *Stream) error {
	if s == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range s.Tracks() {
		sender, err := c.link.AddTrack(t.Local())
		if err != nil {
			return err
		}
		c.senders = append(c.senders, sender)
	}
	return nil
}

// Negotiate sends a fresh offer when this side is the offerer.
func (c *CallLink) Negotiate() error {
	return c.link.CreateOffer()
}

// StreamChanged implements StreamConsumer: the shared stream was replaced,
// so swap the senders over and renegotiate. Runs before the old stream's
// tracks stop.
//
// The first capture on a link that has not negotiated yet is attach-only.
// Offering there would race the accept handshake: the remote side has not
// subscribed its link yet, so the offer would be dropped and the connection
// stuck in have-local-offer. The offerer drives the initial offer; the
// tracks ride along in the first exchange.
func (c *CallLink) StreamChanged(newStream, oldStream *Stream) {
	c.mu.Lock()
	old := c.senders
	c.senders = nil
	c.mu.Unlock()

	for _, sender := range old {
		if err := c.link.RemoveTrack(sender); err != nil {
			c.logger.Warn("Failed to detach old track", "error", err)
		}
	}
	if err := c.AttachStream(newStream); err != nil {
		c.logger.Error("Failed to attach replacement stream", "error", err)
		return
	}
	if oldStream == nil && c.link.Status() == rtc.StatusNew {
		return
	}
	if err := c.Negotiate(); err != nil {
		c.logger.Error("Renegotiation after stream change failed", "error", err)
	}
}
