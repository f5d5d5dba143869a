package audio

import (
	"fmt"

	"github.com/jfreymuth/pulse"
)

// PulseHost plays the graph through a PulseAudio stereo playback stream.
type PulseHost struct {
	Client *pulse.Client
	// Sink is optional; nil selects the server default.
	Sink    *pulse.Sink
	Latency float64
}

func (h PulseHost) Open(render func([]float32) (int, error)) (Stream, error) {
	if h.Client == nil {
		return nil, fmt.Errorf("%w: no pulse client", ErrHostUnavailable)
	}
	latency := h.Latency
	if latency <= 0 {
		latency = 0.05
	}
	opts := []pulse.PlaybackOption{
		pulse.PlaybackStereo,
		pulse.PlaybackLatency(latency),
		pulse.PlaybackSampleRate(SampleRate),
	}
	if h.Sink != nil {
		opts = append(opts, pulse.PlaybackSink(h.Sink))
	}
	playback, err := h.Client.NewPlayback(pulse.Float32Reader(render), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: pulse.NewPlayback failed: %v", ErrHostUnavailable, err)
	}
	return playback, nil
}

// PulseMicrophone records mono float32 from the default PulseAudio source.
type PulseMicrophone struct {
	Client *pulse.Client
}

func (m PulseMicrophone) Open(write func([]float32)) (Stream, error) {
	if m.Client == nil {
		return nil, fmt.Errorf("%w: no pulse client", ErrHostUnavailable)
	}
	record, err := m.Client.NewRecord(pulse.Float32Writer(func(p []float32) (int, error) {
		write(p)
		return len(p), nil
	}),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse.NewRecord failed: %w", err)
	}
	return record, nil
}
