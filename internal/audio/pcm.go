// Package audio captures microphone audio and plays assistant audio through PortAudio.
// The microphone is an exclusive resource: at most one capture is open at a time, and
// StopAll sweeps every stream the process has opened but not yet released.
package audio

import "encoding/binary"

const (
	// DefaultSampleRate is the PCM16 rate the realtime service expects.
	DefaultSampleRate = 24000
	// framesPerSecond yields 20 ms frames.
	framesPerSecond = 50
)

// FrameSize returns the number of samples in a 20 ms frame at sampleRate.
func FrameSize(sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return sampleRate / framesPerSecond
}

// EncodePCM16 packs samples as little-endian bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// DecodePCM16 unpacks little-endian bytes into samples. A trailing odd byte is ignored.
func DecodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
