package transfer

import (
	"errors"
	"time"
)

// Chunk size bounds.
const (
	DefaultChunkSize = 16 * 1024 // fits comfortably under the SCTP message limit
	MaxChunkSize     = 64 * 1024
	MinChunkSize     = 4 * 1024
)

// Config holds the tunables of one file link.
type Config struct {
	// ChunkSize is the payload size per chunk frame.
	ChunkSize int32 `json:"chunk_size"`

	// MaxBufferedAmount pauses the sender while the data channel holds more
	// than this many unsent bytes.
	MaxBufferedAmount uint64 `json:"max_buffered_amount"`

	// BufferedAmountLowThreshold resumes the sender once the backlog drains
	// below it.
	BufferedAmountLowThreshold uint64 `json:"buffered_amount_low_threshold"`

	// DecisionTimeout bounds how long a sender waits for accept/decline.
	DecisionTimeout time.Duration `json:"decision_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:                  DefaultChunkSize,
		MaxBufferedAmount:          1 * 1024 * 1024,
		BufferedAmountLowThreshold: 256 * 1024,
		DecisionTimeout:            60 * time.Second,
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return errors.New("chunk_size out of bounds")
	}
	if c.MaxBufferedAmount == 0 {
		return errors.New("max_buffered_amount must be positive")
	}
	if c.BufferedAmountLowThreshold >= c.MaxBufferedAmount {
		return errors.New("buffered_amount_low_threshold must be below max_buffered_amount")
	}
	if c.DecisionTimeout <= 0 {
		return errors.New("decision_timeout must be positive")
	}
	return nil
}
