package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/okarpov/peerLink/pkg/concurrency"
	"github.com/okarpov/peerLink/pkg/crypto"
	"github.com/okarpov/peerLink/pkg/fileInfo"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

// ErrNoDataChannel is returned when chunk streaming starts before the data
// channel exists.
var ErrNoDataChannel = errors.New("data channel is not open")

// ErrDecisionTimeout is returned when the opponent never answers an offer.
var ErrDecisionTimeout = errors.New("timed out waiting for accept or decline")

// SenderLink drives the sending side of a file link: it offers the signed
// manifest, waits for the opponent's decision and then streams ordered
// chunks, pausing whenever the data channel's send buffer backs up.
type SenderLink struct {
	link   *rtc.PeerLink
	node   fileInfo.FileNode
	record *Record
	cfg    *Config
	ser    MessageSerializer
	guard  *concurrency.ConcurrencyGuard
	logger *slog.Logger

	decision chan Status
	drained  chan struct{}
}

// NewSenderLink wires a sender onto a peer link. The link must have been
// created with ConnectOnDataChannel; the sender installs the channel hooks,
// so nothing else may claim them. Senders fanning the same file out to
// several opponents pass one shared record so progress lands in a single
// place; a nil record gets a fresh one.
func NewSenderLink(link *rtc.PeerLink, node fileInfo.FileNode, record *Record, cfg *Config, ser MessageSerializer) (*SenderLink, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ser == nil {
		ser = NewJSONSerializer()
	}
	if record == nil {
		record = NewSendingRecord(node)
	}

	s := &SenderLink{
		link:     link,
		node:     node,
		record:   record,
		cfg:      cfg,
		ser:      ser,
		guard:    concurrency.NewConcurrencyGuard(),
		decision: make(chan Status, 1),
		drained:  make(chan struct{}, 1),
		logger: slog.Default().With(
			"component", "filesender",
			"connId", link.ConnID(),
			"opponentWsId", link.OpponentID(),
		),
	}
	s.record.AddOpponent(link.OpponentID())

	link.SetOnChannelMessage(s.handleMessage)
	link.SetOnChannelClose(func() { s.CloseEvents("data channel closed") })
	link.SetOnICEDisconnect(func(reason string) { s.CloseEvents(reason) })
	return s, nil
}

// Record exposes the transfer record for progress subscribers.
func (s *SenderLink) Record() *Record { return s.record }

// Offer sends the signed manifest and blocks until the opponent accepts,
// declines, the decision window closes or ctx ends. The offer rides the
// link's pending queue, so it may be called before the link is connected.
func (s *SenderLink) Offer(ctx context.Context, signer *crypto.ManifestSigner) error {
	if signer == nil {
		var err error
		signer, err = crypto.NewManifestSigner()
		if err != nil {
			return err
		}
	}

	signed, err := signer.SignManifest(s.node)
	if err != nil {
		return err
	}
	payload, err := s.ser.Marshal(&Message{Type: MsgOffer, Manifest: signed})
	if err != nil {
		return fmt.Errorf("failed to marshal offer: %w", err)
	}
	if err := s.link.Send(payload); err != nil {
		return err
	}
	s.logger.Info("File offered", "file", s.node.Name, "size", s.node.Size)

	timer := time.NewTimer(s.cfg.DecisionTimeout)
	defer timer.Stop()
	select {
	case st := <-s.decision:
		if st != StatusInProgress {
			return fmt.Errorf("%w by %s", ErrDeclined, s.link.OpponentID())
		}
		return nil
	case <-timer.C:
		s.record.Fail(s.link.OpponentID())
		return ErrDecisionTimeout
	case <-ctx.Done():
		s.record.Fail(s.link.OpponentID())
		return ctx.Err()
	}
}

// Transfer streams the file. Only one transfer may run on the link at a
// time; a concurrent call fails with concurrency.ErrBusy.
func (s *SenderLink) Transfer(ctx context.Context) error {
	return s.guard.Execute(func() error {
		return s.stream(ctx)
	})
}

func (s *SenderLink) stream(ctx context.Context) error {
	opponent := s.link.OpponentID()
	if st, _ := s.record.StatusOf(opponent); st != StatusInProgress {
		return ErrNotInProgress
	}

	dc := s.link.DataChannel()
	if dc == nil {
		return ErrNoDataChannel
	}
	dc.SetBufferedAmountLowThreshold(s.cfg.BufferedAmountLowThreshold)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	})

	chunker, err := NewChunker(s.node, s.cfg.ChunkSize)
	if err != nil {
		s.record.Fail(opponent)
		return err
	}
	defer chunker.Close()

	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.record.Fail(opponent)
			return fmt.Errorf("failed to read chunk: %w", err)
		}

		// Backpressure: never let the channel buffer grow without bound.
		for dc.BufferedAmount() > s.cfg.MaxBufferedAmount {
			select {
			case <-s.drained:
			case <-ctx.Done():
				s.record.Fail(opponent)
				return ctx.Err()
			}
		}

		payload, err := s.ser.Marshal(&Message{
			Type:       MsgChunk,
			SequenceNo: chunk.SequenceNo,
			Offset:     chunk.Offset,
			Data:       chunk.Data,
			ChunkHash:  chunk.Hash,
			IsLast:     chunk.IsLast,
		})
		if err != nil {
			s.record.Fail(opponent)
			return fmt.Errorf("failed to marshal chunk: %w", err)
		}
		if err := s.link.Send(payload); err != nil {
			s.record.Fail(opponent)
			return err
		}
		if err := s.record.AddBytes(opponent, int64(chunk.Size)); err != nil {
			return err
		}
	}

	endPayload, err := s.ser.Marshal(&Message{Type: MsgEnd})
	if err != nil {
		s.record.Fail(opponent)
		return fmt.Errorf("failed to marshal end marker: %w", err)
	}
	if err := s.link.Send(endPayload); err != nil {
		s.record.Fail(opponent)
		return err
	}

	s.logger.Info("File sent", "file", s.node.Name)
	return s.record.SetStatus(opponent, StatusFinished)
}

func (s *SenderLink) handleMessage(data []byte) {
	msg, err := s.ser.Unmarshal(data)
	if err != nil {
		s.logger.Warn("Dropping undecodable frame", "error", err)
		return
	}

	opponent := s.link.OpponentID()
	switch msg.Type {
	case MsgAccept:
		if err := s.record.SetStatus(opponent, StatusInProgress); err != nil {
			s.logger.Warn("Ignoring late accept", "error", err)
			return
		}
		select {
		case s.decision <- StatusInProgress:
		default:
		}
	case MsgDecline:
		if err := s.record.SetStatus(opponent, StatusDeclinedByOpponent); err != nil {
			s.logger.Warn("Ignoring late decline", "error", err)
			return
		}
		s.logger.Info("Offer declined", "reason", msg.Reason)
		select {
		case s.decision <- StatusDeclinedByOpponent:
		default:
		}
	default:
		s.logger.Warn("Unexpected frame on sender side", "type", msg.Type)
	}
}

// CloseEvents fails a still-running transfer and then closes the underlying
// link. A transfer that already ended keeps its outcome, so declines stay
// declines. ICE loss and data-channel closure both land here.
func (s *SenderLink) CloseEvents(reason string) {
	s.record.Fail(s.link.OpponentID())
	s.link.Close(reason)
}
