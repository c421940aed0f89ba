package audio

import "encoding/binary"

// EncodePCM16 converts float samples to signed 16-bit little-endian PCM.
// Samples are clamped to [-1, 1]; positive values scale by 0x7fff and
// negative values by 0x8000 so that -1.0 maps to -32768 and 1.0 to 32767.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7fff)
		}
		binary.LittleEndian.PutUint16(out[i*2:(i+1)*2], uint16(v))
	}
	return out
}

// FloatFromPCM16 converts int16 samples to float32 in [-1, 1). Used by the
// ingress path to turn decoded opus frames into capture blocks.
func FloatFromPCM16(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 0x8000
	}
	return out
}
