package transfer

import (
	"sync"

	"github.com/okarpov/peerLink/pkg/fileInfo"
)

// Progress is the snapshot delivered to listeners on every record change.
type Progress struct {
	Opponent   string
	Status     Status
	BytesDone  int64
	TotalBytes int64
}

// ProgressListener receives progress snapshots. Listeners must not block;
// they run on the transfer goroutine.
type ProgressListener func(Progress)

type peerTransfer struct {
	status    Status
	bytesDone int64
}

// Record tracks one offered file across its opponents: who has decided, how
// many bytes each side has moved and how each transfer ended. Created when a
// transfer is offered, mutated by chunk progress, terminal on
// finished/declined/error.
type Record struct {
	fileName string
	fileSize int64
	mimeType string
	checksum string
	sending  bool

	mu        sync.Mutex
	peers     map[string]*peerTransfer
	listeners []ProgressListener
}

// NewSendingRecord builds the sender-side record for a local file.
func NewSendingRecord(node fileInfo.FileNode) *Record {
	return &Record{
		fileName: node.Name,
		fileSize: node.Size,
		mimeType: node.MimeType,
		checksum: node.Checksum,
		sending:  true,
		peers:    make(map[string]*peerTransfer),
	}
}

// NewReceivingRecord builds the receiver-side record from an offer manifest.
func NewReceivingRecord(name string, size int64, mimeType, checksum string) *Record {
	return &Record{
		fileName: name,
		fileSize: size,
		mimeType: mimeType,
		checksum: checksum,
		peers:    make(map[string]*peerTransfer),
	}
}

func (r *Record) FileName() string { return r.fileName }
func (r *Record) FileSize() int64  { return r.fileSize }
func (r *Record) MimeType() string { return r.mimeType }
func (r *Record) Checksum() string { return r.checksum }
func (r *Record) Sending() bool    { return r.sending }

// Subscribe adds a progress listener. Every subsequent status or byte change
// is delivered to it.
func (r *Record) Subscribe(l ProgressListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// AddOpponent registers a sub-record in status not_decided. Adding the same
// opponent twice is a no-op.
func (r *Record) AddOpponent(opponentID string) {
	r.mu.Lock()
	if _, exists := r.peers[opponentID]; exists {
		r.mu.Unlock()
		return
	}
	r.peers[opponentID] = &peerTransfer{status: StatusNotDecided}
	r.mu.Unlock()

	r.notify(Progress{Opponent: opponentID, Status: StatusNotDecided, TotalBytes: r.fileSize})
}

// SetStatus moves an opponent's transfer to the next status, validating the
// transition. Terminal statuses never change again.
func (r *Record) SetStatus(opponentID string, next Status) error {
	r.mu.Lock()
	pt, ok := r.peers[opponentID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownOpponent
	}
	if !pt.status.CanTransitionTo(next) {
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	pt.status = next
	snapshot := Progress{
		Opponent:   opponentID,
		Status:     next,
		BytesDone:  pt.bytesDone,
		TotalBytes: r.fileSize,
	}
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// AddBytes advances an opponent's byte counter. Only valid while the
// transfer is in progress.
func (r *Record) AddBytes(opponentID string, n int64) error {
	r.mu.Lock()
	pt, ok := r.peers[opponentID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownOpponent
	}
	if pt.status != StatusInProgress {
		r.mu.Unlock()
		return ErrNotInProgress
	}
	pt.bytesDone += n
	snapshot := Progress{
		Opponent:   opponentID,
		Status:     pt.status,
		BytesDone:  pt.bytesDone,
		TotalBytes: r.fileSize,
	}
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// StatusOf returns the current status for an opponent.
func (r *Record) StatusOf(opponentID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pt, ok := r.peers[opponentID]
	if !ok {
		return StatusNotDecided, false
	}
	return pt.status, true
}

// ProgressOf returns the full snapshot for an opponent.
func (r *Record) ProgressOf(opponentID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pt, ok := r.peers[opponentID]
	if !ok {
		return Progress{}, false
	}
	return Progress{
		Opponent:   opponentID,
		Status:     pt.status,
		BytesDone:  pt.bytesDone,
		TotalBytes: r.fileSize,
	}, true
}

// AllTerminal reports whether every registered opponent has reached a
// terminal status. False while the record has no opponents yet.
func (r *Record) AllTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) == 0 {
		return false
	}
	for _, pt := range r.peers {
		if !pt.status.IsTerminal() {
			return false
		}
	}
	return true
}

// Fail moves a non-terminal transfer to error. A transfer that already ended
// keeps its outcome; this makes it safe to call from channel-close and ICE
// teardown paths that may both fire.
func (r *Record) Fail(opponentID string) {
	r.mu.Lock()
	pt, ok := r.peers[opponentID]
	if !ok || pt.status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	pt.status = StatusError
	snapshot := Progress{
		Opponent:   opponentID,
		Status:     StatusError,
		BytesDone:  pt.bytesDone,
		TotalBytes: r.fileSize,
	}
	r.mu.Unlock()

	r.notify(snapshot)
}

func (r *Record) notify(p Progress) {
	r.mu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l(p)
	}
}
