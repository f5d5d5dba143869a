// Package audio is a small render graph: oscillators, noise, gains and
// filters summed onto a stereo bus, tapped by an analyser and scaled by a
// master gain before reaching the host stream.
package audio

import "errors"

const (
	SampleRate = 48000
	Channels   = 2
	// Quantum is the number of frames rendered per graph pass. Parameter
	// automation is evaluated per frame, filter coefficients per quantum.
	Quantum = 128
)

type Channel int

const (
	ChannelBoth Channel = iota
	ChannelLeft
	ChannelRight
)

func (c Channel) String() string {
	switch c {
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	default:
		return "both"
	}
}

type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Square
	Sawtooth
)

var (
	ErrHostUnavailable = errors.New("host audio unavailable")
	ErrClosed          = errors.New("audio context closed")
	ErrAlreadyStopped  = errors.New("node already stopped")
	ErrNotConnected    = errors.New("node not connected")
)
