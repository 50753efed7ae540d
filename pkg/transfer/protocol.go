package transfer

import "github.com/okarpov/peerLink/pkg/crypto"

// MessageType names the data-channel frames of the transfer handshake:
// offer, then accept or decline, then ordered chunks closed by an end marker.
type MessageType string

const (
	MsgOffer   MessageType = "offer"
	MsgAccept  MessageType = "accept"
	MsgDecline MessageType = "decline"
	MsgChunk   MessageType = "chunk"
	MsgEnd     MessageType = "end"
)

// Message is one frame of the transfer protocol. Only the fields relevant
// to the frame's type are populated.
type Message struct {
	Type MessageType

	// Offer carries the signed manifest.
	Manifest *crypto.SignedManifest

	// Chunk payload.
	SequenceNo uint32
	Offset     int64
	Data       []byte
	ChunkHash  string
	IsLast     bool

	// Decline reason or end-of-transfer error, empty on success.
	Reason string
}

type MessageSerializer interface {
	Marshal(message *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
	Name() string
	IsBinary() bool
}
