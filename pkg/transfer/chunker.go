package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/okarpov/peerLink/pkg/fileInfo"
)

// Chunk is one file slice ready to go on the wire. SequenceNo starts at 1;
// IsLast marks the chunk that reaches the end of the file.
type Chunk struct {
	SequenceNo uint32
	Offset     int64
	Data       []byte
	Hash       string
	IsLast     bool
	Size       int32
}

// Chunker reads a file front to back and emits hashed chunks in sequence
// order. It is not safe for concurrent use; one transfer owns one chunker.
type Chunker struct {
	file   *os.File
	buf    []byte
	total  int64
	offset int64
	seq    uint32
}

// NewChunker opens the file behind node. The chunk size must fall inside the
// protocol bounds.
func NewChunker(node fileInfo.FileNode, chunkSize int32) (*Chunker, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d outside [%d, %d]", chunkSize, MinChunkSize, MaxChunkSize)
	}
	file, err := os.Open(node.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", node.Path, err)
	}
	return &Chunker{
		file:  file,
		buf:   make([]byte, chunkSize),
		total: node.Size,
	}, nil
}

// Next returns the next chunk, or io.EOF once the whole file has been
// emitted. An empty file yields io.EOF immediately.
func (c *Chunker) Next() (*Chunk, error) {
	if c.offset >= c.total {
		return nil, io.EOF
	}

	n, err := c.file.Read(c.buf)
	if n == 0 {
		if err == nil || err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}

	c.seq++
	start := c.offset
	c.offset += int64(n)

	sum := sha256.Sum256(c.buf[:n])

	// The read buffer is reused on the next call.
	data := make([]byte, n)
	copy(data, c.buf[:n])

	return &Chunk{
		SequenceNo: c.seq,
		Offset:     start,
		Data:       data,
		Hash:       hex.EncodeToString(sum[:]),
		IsLast:     c.offset >= c.total,
		Size:       int32(n),
	}, nil
}

// Close releases the underlying file.
func (c *Chunker) Close() error {
	return c.file.Close()
}
