package level

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Fatal("empty frame should be silent")
	}
	got := RMS(pcm(1000, -1000, 1000, -1000))
	if math.Abs(got-1000) > 1e-9 {
		t.Fatalf("expected 1000, got %f", got)
	}
}

func TestNormalizeBounds(t *testing.T) {
	if Normalize(0) != 0 {
		t.Fatal("zero rms must map to zero")
	}
	if v := Normalize(math.MaxInt16); math.Abs(v-1) > 1e-9 {
		t.Fatalf("full scale should map to 1, got %f", v)
	}
	if v := Normalize(1e9); v != 1 {
		t.Fatalf("overflow must clamp to 1, got %f", v)
	}
	if Normalize(100) >= Normalize(1000) {
		t.Fatal("normalize must be monotonic")
	}
}

func TestMonitorDropsWhenFull(t *testing.T) {
	m := NewMonitor(1)
	m.Feed(pcm(100, 100))
	lv := m.Feed(pcm(20000, 20000))
	if got := <-m.Levels(); got >= lv {
		t.Fatalf("expected the first sample to be kept, got %f", got)
	}
	if m.Current() != lv {
		t.Fatalf("current should track the latest sample")
	}
	select {
	case v := <-m.Levels():
		t.Fatalf("unexpected extra sample %f", v)
	default:
	}
}
