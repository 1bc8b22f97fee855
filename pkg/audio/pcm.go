package audio

import (
	"encoding/binary"
	"math"
)

// Samples decodes little-endian PCM16 bytes. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Bytes encodes samples as little-endian PCM16.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square level of PCM16 bytes with samples scaled
// to [-1, 1]. Empty input is silent.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Tone fills n samples with a constant amplitude square wave. Used to build
// synthetic speech in tests and the loopback check.
func Tone(n int, amplitude float64) []int16 {
	if amplitude > 1 {
		amplitude = 1
	}
	level := int16(amplitude * 32767)
	out := make([]int16, n)
	for i := range out {
		if (i/8)%2 == 0 {
			out[i] = level
		} else {
			out[i] = -level
		}
	}
	return out
}
