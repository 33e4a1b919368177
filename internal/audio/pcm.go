package audio

import (
	"encoding/binary"
	"math"
)

// pcmScale is the maximum positive 16-bit sample value. Encoding scales
// by this rather than 32768 so the output range stays symmetric in
// [-32767, 32767].
const pcmScale = 32767

// EncodePCM16 converts float samples in [-1.0, 1.0] to signed 16-bit
// linear PCM, clamping out-of-range input to the valid range first.
func EncodePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = int16(clamp(v) * pcmScale)
	}
	return out
}

// DecodePCM16 converts signed 16-bit PCM back to float samples. A value
// produced by EncodePCM16 recovers its source within one quantization
// step (1/32767).
func DecodePCM16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / pcmScale
	}
	return out
}

// PCM16Bytes renders samples as little-endian bytes, two per sample.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodeFloat32LE interprets raw little-endian 32-bit float bytes as
// samples, the format the capture device emits. Trailing bytes that do
// not complete a sample are dropped.
func DecodeFloat32LE(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
