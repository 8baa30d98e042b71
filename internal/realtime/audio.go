package realtime

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/pion/webrtc/v4"
)

// AudioSource provides the local audio track attached to the peer
// connection. Capture itself is an environment capability (a hardware
// capture pipeline, or a sample-fed track in tests); the client only
// needs something it can attach and later stop.
type AudioSource interface {
	Track(ctx context.Context) (webrtc.TrackLocal, error)
	Stop() error
}

// LevelMeter is an optional AudioSource capability. Sources that meter
// their input expose a level stream; the client forwards it to the sink
// as AudioLevel events for the session's lifetime. The channel must be
// closed when the source stops.
type LevelMeter interface {
	Levels() <-chan float64
}

// PCMLevel reports the normalized RMS level of little-endian pcm16
// samples, clamped to [0,1]. Sources feeding raw capture buffers can use
// it to drive their level stream.
func PCMLevel(samples []byte) float64 {
	n := len(samples) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*2; i += 2 {
		v := int16(binary.LittleEndian.Uint16(samples[i:]))
		f := float64(v) / 32768
		sum += f * f
	}
	level := math.Sqrt(sum / float64(n))
	if level > 1 {
		return 1
	}
	return level
}

// StaticTrackSource wraps an already-built local track. Stop is a no-op
// beyond the optional close hook.
type StaticTrackSource struct {
	T       webrtc.TrackLocal
	OnStop  func() error
	stopped bool
}

func (s *StaticTrackSource) Track(context.Context) (webrtc.TrackLocal, error) {
	return s.T, nil
}

func (s *StaticTrackSource) Stop() error {
	if s.stopped || s.OnStop == nil {
		s.stopped = true
		return nil
	}
	s.stopped = true
	return s.OnStop()
}
