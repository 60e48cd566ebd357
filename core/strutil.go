package core

// itoa formats an integer without pulling fmt into firmware builds
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	pos := len(buf)
	u := uint64(n)
	if n < 0 {
		u = uint64(-n)
	}
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if n < 0 {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

const hexDigits = "0123456789ABCDEF"

// hex8 formats a byte as two hex digits
func hex8(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
}
