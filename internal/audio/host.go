package audio

// Host opens the output stream a Context renders into. The render function
// fills interleaved stereo float32 samples.
type Host interface {
	Open(render func(out []float32) (int, error)) (Stream, error)
}

type Stream interface {
	Start()
	Stop()
	Close()
}

// Microphone opens a mono capture stream at SampleRate. The write function
// may be called from another goroutine and must not retain the slice.
type Microphone interface {
	Open(write func(samples []float32)) (Stream, error)
}

// NullHost accepts a render function and never calls it. The graph is
// driven by calling Context.Render directly, which is how tests and the
// headless mode pull samples.
type NullHost struct{}

func (NullHost) Open(func([]float32) (int, error)) (Stream, error) {
	return nullStream{}, nil
}

type nullStream struct{}

func (nullStream) Start() {}
func (nullStream) Stop()  {}
func (nullStream) Close() {}
