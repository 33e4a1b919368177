package audio

// FrameCutter slices an incoming sample stream into fixed-size frames.
// Capture reads arrive in arbitrary lengths; the streaming transport
// sends whole frames only, so samples accumulate here until a frame
// fills.
type FrameCutter struct {
	size int
	buf  []float32
}

func NewFrameCutter(size int) *FrameCutter {
	if size <= 0 {
		size = 4096
	}
	return &FrameCutter{size: size}
}

// Push appends samples and returns every frame completed by them, in
// capture order. Returned frames are independent copies.
func (f *FrameCutter) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)

	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Flush returns the buffered partial frame, if any, and resets the
// cutter. Called once when a turn finalizes so trailing audio is not
// dropped.
func (f *FrameCutter) Flush() []float32 {
	if len(f.buf) == 0 {
		return nil
	}
	tail := make([]float32, len(f.buf))
	copy(tail, f.buf)
	f.buf = f.buf[:0]
	return tail
}

// Pending reports how many samples are buffered awaiting a full frame.
func (f *FrameCutter) Pending() int {
	return len(f.buf)
}
