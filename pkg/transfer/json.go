package transfer

import (
	"encoding/json"

	"github.com/okarpov/peerLink/pkg/crypto"
)

type JSONSerializer struct{}

func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

type jsonMessage struct {
	Type       MessageType            `json:"type"`
	Manifest   *crypto.SignedManifest `json:"manifest,omitempty"`
	SequenceNo uint32                 `json:"sequence_no,omitempty"`
	Offset     int64                  `json:"offset,omitempty"`
	Data       []byte                 `json:"data,omitempty"`
	ChunkHash  string                 `json:"chunk_hash,omitempty"`
	IsLast     bool                   `json:"is_last,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

func (j *JSONSerializer) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(jsonMessage{
		Type:       msg.Type,
		Manifest:   msg.Manifest,
		SequenceNo: msg.SequenceNo,
		Offset:     msg.Offset,
		Data:       msg.Data,
		ChunkHash:  msg.ChunkHash,
		IsLast:     msg.IsLast,
		Reason:     msg.Reason,
	})
}

func (j *JSONSerializer) Unmarshal(data []byte) (*Message, error) {
	var wire jsonMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return &Message{
		Type:       wire.Type,
		Manifest:   wire.Manifest,
		SequenceNo: wire.SequenceNo,
		Offset:     wire.Offset,
		Data:       wire.Data,
		ChunkHash:  wire.ChunkHash,
		IsLast:     wire.IsLast,
		Reason:     wire.Reason,
	}, nil
}

func (j *JSONSerializer) Name() string {
	return "json"
}

func (j *JSONSerializer) IsBinary() bool {
	return false
}
