package device

// encodeS16 writes float samples as little-endian signed 16-bit PCM. Values
// outside [-1, 1] are clipped.
func encodeS16(dst []byte, src []float32) int {
	n := len(dst) / 2
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		s := src[i]
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
	return n
}

func decodeS16(dst []float32, src []byte) int {
	n := len(src) / 2
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		sample := int16(src[2*i]) | int16(src[2*i+1])<<8
		dst[i] = float32(sample) / 32768.0
	}
	return n
}
