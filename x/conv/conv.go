// Package conv formats integers without fmt or strconv so MCU builds stay
// small.
package conv

const hexd = "0123456789ABCDEF"

// AppendUint appends the base-10 form of n to dst.
func AppendUint(dst []byte, n uint64) []byte {
	var b [20]byte
	i := len(b)
	for {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, b[i:]...)
}

// AppendInt appends the base-10 form of n to dst.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		dst = append(dst, '-')
		return AppendUint(dst, uint64(-n))
	}
	return AppendUint(dst, uint64(n))
}

// AppendPadded appends n zero-padded to at least width digits. Negative
// values are clamped to zero.
func AppendPadded(dst []byte, n, width int) []byte {
	if n < 0 {
		n = 0
	}
	var b [20]byte
	digits := AppendUint(b[:0], uint64(n))
	for i := len(digits); i < width; i++ {
		dst = append(dst, '0')
	}
	return append(dst, digits...)
}

// AppendHex8 appends b as two uppercase hex digits.
func AppendHex8(dst []byte, b byte) []byte {
	return append(dst, hexd[b>>4], hexd[b&0x0F])
}

// AppendHex16 appends v as four uppercase hex digits.
func AppendHex16(dst []byte, v uint16) []byte {
	return AppendHex8(AppendHex8(dst, byte(v>>8)), byte(v))
}

// Itoa is AppendInt into a new string.
func Itoa(n int) string { return string(AppendInt(nil, int64(n))) }

// Hex8 is AppendHex8 into a new string.
func Hex8(b byte) string { return string(AppendHex8(nil, b)) }

// Hex16 is AppendHex16 into a new string.
func Hex16(v uint16) string { return string(AppendHex16(nil, v)) }
