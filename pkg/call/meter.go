package call

import (
	"math"
	"sync"
)

// Meter tracks the local microphone level for a volume indicator. Feed it
// PCM sample blocks; it keeps an exponentially smoothed RMS in 0..1.
type Meter struct {
	mu      sync.Mutex
	level   float64
	alpha   float64
	onLevel func(float64)
}

// NewMeter creates a meter. onLevel, when set, fires after every block with
// the smoothed level.
func NewMeter(onLevel func(float64)) *Meter {
	return &Meter{alpha: 0.3, onLevel: onLevel}
}

// Push feeds one block of 16-bit PCM samples.
func (m *Meter) Push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	m.mu.Lock()
	m.level = m.alpha*rms + (1-m.alpha)*m.level
	level := m.level
	onLevel := m.onLevel
	m.mu.Unlock()

	if onLevel != nil {
		onLevel(level)
	}
}

// Level returns the current smoothed level.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}
