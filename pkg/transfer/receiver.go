package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/okarpov/peerLink/internal/util"
	"github.com/okarpov/peerLink/pkg/crypto"
	rtc "github.com/okarpov/peerLink/pkg/webrtc"
)

// ErrNoPendingOffer is returned when Accept or Decline runs before an offer
// arrived.
var ErrNoPendingOffer = errors.New("no pending file offer")

// ReceiverLink drives the receiving side of a file link: it validates the
// offered manifest, lets the application accept or decline, writes chunks in
// arrival order and verifies the file checksum at the end.
type ReceiverLink struct {
	link    *rtc.PeerLink
	cfg     *Config
	ser     MessageSerializer
	destDir string
	onOffer func(*Record)
	logger  *slog.Logger

	mu       sync.Mutex
	record   *Record
	manifest *crypto.SignedManifest
	file     *os.File
	hasher   hash.Hash
	nextSeq  uint32

	done     chan error
	doneOnce sync.Once
}

// NewReceiverLink wires a receiver onto a peer link. onOffer runs once per
// link when a valid signed offer arrives; the application answers it by
// calling Accept or Decline.
func NewReceiverLink(link *rtc.PeerLink, destDir string, cfg *Config, ser MessageSerializer, onOffer func(*Record)) (*ReceiverLink, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ser == nil {
		ser = NewJSONSerializer()
	}
	exists, isDir, err := util.CheckDirectory(destDir)
	if err != nil {
		return nil, err
	}
	if !exists || !isDir {
		return nil, fmt.Errorf("destination %s is not a directory", destDir)
	}

	r := &ReceiverLink{
		link:    link,
		cfg:     cfg,
		ser:     ser,
		destDir: destDir,
		onOffer: onOffer,
		done:    make(chan error, 1),
		logger: slog.Default().With(
			"component", "filereceiver",
			"connId", link.ConnID(),
			"opponentWsId", link.OpponentID(),
		),
	}

	link.SetOnChannelMessage(r.handleMessage)
	link.SetOnChannelClose(func() { r.CloseEvents("data channel closed") })
	link.SetOnICEDisconnect(func(reason string) { r.CloseEvents(reason) })
	return r, nil
}

// Record returns the transfer record, nil before an offer arrived.
func (r *ReceiverLink) Record() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Accept answers a pending offer: it checks free disk space, opens the
// destination file and tells the sender to start streaming.
func (r *ReceiverLink) Accept() error {
	r.mu.Lock()
	if r.manifest == nil {
		r.mu.Unlock()
		return ErrNoPendingOffer
	}
	manifest := r.manifest
	record := r.record
	r.mu.Unlock()

	if err := util.EnsureFreeSpace(r.destDir, manifest.File.Size); err != nil {
		r.logger.Warn("Declining offer, disk precheck failed", "error", err)
		if declineErr := r.Decline("not enough disk space"); declineErr != nil {
			return declineErr
		}
		return fmt.Errorf("%w: %v", ErrNotEnoughSpace, err)
	}

	dest := filepath.Join(r.destDir, util.SafeFileName(manifest.File.Name))
	file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}

	r.mu.Lock()
	r.file = file
	r.hasher = sha256.New()
	r.mu.Unlock()

	if err := record.SetStatus(r.link.OpponentID(), StatusInProgress); err != nil {
		file.Close()
		return err
	}

	payload, err := r.ser.Marshal(&Message{Type: MsgAccept})
	if err != nil {
		return fmt.Errorf("failed to marshal accept: %w", err)
	}
	if err := r.link.Send(payload); err != nil {
		return err
	}
	r.logger.Info("Offer accepted", "file", manifest.File.Name, "dest", dest)
	return nil
}

// Decline refuses a pending offer.
func (r *ReceiverLink) Decline(reason string) error {
	r.mu.Lock()
	record := r.record
	r.mu.Unlock()
	if record == nil {
		return ErrNoPendingOffer
	}

	if err := record.SetStatus(r.link.OpponentID(), StatusDeclinedByYou); err != nil {
		return err
	}
	payload, err := r.ser.Marshal(&Message{Type: MsgDecline, Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal decline: %w", err)
	}
	if err := r.link.Send(payload); err != nil {
		return err
	}
	r.finish(fmt.Errorf("%w: %s", ErrDeclined, reason))
	return nil
}

// Wait blocks until the transfer ends one way or the other.
func (r *ReceiverLink) Wait(ctx context.Context) error {
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ReceiverLink) handleMessage(data []byte) {
	msg, err := r.ser.Unmarshal(data)
	if err != nil {
		r.logger.Warn("Dropping undecodable frame", "error", err)
		return
	}

	switch msg.Type {
	case MsgOffer:
		r.handleOffer(msg)
	case MsgChunk:
		r.handleChunk(msg)
	case MsgEnd:
		r.handleEnd(msg)
	default:
		r.logger.Warn("Unexpected frame on receiver side", "type", msg.Type)
	}
}

func (r *ReceiverLink) handleOffer(msg *Message) {
	if msg.Manifest == nil {
		r.logger.Warn("Offer frame without manifest")
		return
	}
	if err := crypto.VerifyManifest(msg.Manifest); err != nil {
		r.logger.Error("Rejecting offer with bad signature", "error", err)
		return
	}

	r.mu.Lock()
	if r.manifest != nil {
		r.mu.Unlock()
		r.logger.Warn("Ignoring second offer on the same link")
		return
	}
	r.manifest = msg.Manifest
	file := msg.Manifest.File
	r.record = NewReceivingRecord(file.Name, file.Size, file.MimeType, file.Checksum)
	r.record.AddOpponent(r.link.OpponentID())
	record := r.record
	r.mu.Unlock()

	r.logger.Info("File offered", "file", file.Name, "size", file.Size)
	if r.onOffer != nil {
		r.onOffer(record)
	}
}

func (r *ReceiverLink) handleChunk(msg *Message) {
	r.mu.Lock()
	file := r.file
	hasher := r.hasher
	record := r.record
	expected := r.nextSeq + 1
	r.mu.Unlock()

	if file == nil || record == nil {
		r.logger.Warn("Chunk before accept, dropping", "seq", msg.SequenceNo)
		return
	}
	if msg.SequenceNo != expected {
		r.fail(fmt.Errorf("chunk out of order: got %d, want %d", msg.SequenceNo, expected))
		return
	}

	sum := sha256.Sum256(msg.Data)
	if hex.EncodeToString(sum[:]) != msg.ChunkHash {
		r.fail(fmt.Errorf("%w at seq %d", ErrChunkCorrupted, msg.SequenceNo))
		return
	}

	// The channel is ordered, so chunks are written as they arrive.
	if _, err := file.Write(msg.Data); err != nil {
		r.fail(fmt.Errorf("failed to write chunk: %w", err))
		return
	}
	hasher.Write(msg.Data)

	r.mu.Lock()
	r.nextSeq = msg.SequenceNo
	r.mu.Unlock()

	if err := record.AddBytes(r.link.OpponentID(), int64(len(msg.Data))); err != nil {
		r.logger.Warn("Progress update rejected", "error", err)
	}
}

func (r *ReceiverLink) handleEnd(msg *Message) {
	r.mu.Lock()
	file := r.file
	hasher := r.hasher
	record := r.record
	manifest := r.manifest
	r.file = nil
	r.mu.Unlock()

	if file == nil || record == nil {
		r.logger.Warn("End marker before accept, dropping")
		return
	}
	if err := file.Close(); err != nil {
		r.fail(fmt.Errorf("failed to close destination: %w", err))
		return
	}
	if msg.Reason != "" {
		r.fail(fmt.Errorf("sender aborted: %s", msg.Reason))
		return
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != manifest.File.Checksum {
		r.fail(fmt.Errorf("%w: got %s", ErrChecksumMismatch, actual))
		return
	}

	if err := record.SetStatus(r.link.OpponentID(), StatusFinished); err != nil {
		r.fail(err)
		return
	}
	r.logger.Info("File received", "file", manifest.File.Name)
	r.finish(nil)
}

func (r *ReceiverLink) fail(err error) {
	r.logger.Error("Transfer failed", "error", err)
	r.mu.Lock()
	record := r.record
	file := r.file
	r.file = nil
	r.mu.Unlock()

	if file != nil {
		file.Close()
	}
	if record != nil {
		record.Fail(r.link.OpponentID())
	}
	r.finish(err)
}

func (r *ReceiverLink) finish(err error) {
	r.doneOnce.Do(func() {
		r.done <- err
	})
}

// CloseEvents fails a still-running transfer and then closes the underlying
// link. A finished or declined transfer keeps its outcome. ICE loss and
// data-channel closure both land here.
func (r *ReceiverLink) CloseEvents(reason string) {
	r.mu.Lock()
	record := r.record
	file := r.file
	r.file = nil
	r.mu.Unlock()

	if file != nil {
		file.Close()
	}
	if record != nil {
		record.Fail(r.link.OpponentID())
	}
	r.finish(fmt.Errorf("link closed: %s", reason))
	r.link.Close(reason)
}
