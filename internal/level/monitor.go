// Package level samples microphone energy and publishes a normalized
// amplitude stream for display.
package level

import (
	"math"
	"sync/atomic"
)

// Monitor converts PCM16LE frames into [0,1] amplitude levels. It keeps only
// the most recent sample.
type Monitor struct {
	levels  chan float64
	current atomic.Uint64
}

// NewMonitor returns a Monitor whose Levels channel buffers up to depth samples.
func NewMonitor(depth int) *Monitor {
	if depth <= 0 {
		depth = 8
	}
	return &Monitor{levels: make(chan float64, depth)}
}

// Feed computes the level of one PCM16LE frame and publishes it. Samples are
// dropped when the consumer is slow.
func (m *Monitor) Feed(pcm []byte) float64 {
	lv := Normalize(RMS(pcm))
	m.current.Store(math.Float64bits(lv))
	select {
	case m.levels <- lv:
	default:
	}
	return lv
}

// Current returns the last computed level.
func (m *Monitor) Current() float64 { return math.Float64frombits(m.current.Load()) }

// Levels is the amplitude stream.
func (m *Monitor) Levels() <-chan float64 { return m.levels }

// RMS computes the root mean square of PCM16LE audio.
func RMS(b []byte) float64 {
	if len(b) < 2 {
		return 0
	}
	var sum float64
	n := len(b) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}

// Normalize maps an int16 RMS onto [0,1]. A square-root curve keeps quiet
// speech visible on a meter.
func Normalize(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	v := math.Sqrt(rms / math.MaxInt16)
	if v > 1 {
		return 1
	}
	return v
}
