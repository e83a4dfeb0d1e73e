package transaction

import (
	"encoding/base64"
	"math"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// FloatToHex renders x in base 16: integer digits most significant first,
// then, only when x has a fractional part, a literal '.' followed by the
// fractional digits. Zero renders as the empty string. The output is not a
// conventional hex float and must not be normalized.
func FloatToHex(x float64) string {
	var intPart []byte
	quotient := math.Floor(x)
	fraction := x - quotient
	for quotient > 0 {
		rem := int(math.Mod(quotient, 16))
		intPart = append(intPart, hexDigits[rem])
		quotient = math.Floor(quotient / 16)
	}
	for i, j := 0, len(intPart)-1; i < j; i, j = i+1, j-1 {
		intPart[i], intPart[j] = intPart[j], intPart[i]
	}
	if fraction == 0 {
		return string(intPart)
	}

	var b strings.Builder
	b.Write(intPart)
	b.WriteByte('.')
	for fraction > 0 {
		fraction *= 16
		digit := math.Floor(fraction)
		fraction -= digit
		b.WriteByte(hexDigits[int(digit)])
	}
	return b.String()
}

// EncodeBase64 returns the padded standard base64 encoding of b.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard base64 text. Padding is optional and ASCII
// whitespace is ignored.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	return base64.RawStdEncoding.DecodeString(TrimPadding(s))
}

// TrimPadding removes trailing '=' characters.
func TrimPadding(s string) string {
	return strings.TrimRight(s, "=")
}
