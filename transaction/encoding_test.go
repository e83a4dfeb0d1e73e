package transaction

import (
	"bytes"
	"testing"
)

func TestFloatToHex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"zero_is_empty", 0, ""},
		{"one", 1, "1"},
		{"ten", 10, "A"},
		{"byte_max", 255, "FF"},
		{"sixteen", 16, "10"},
		{"half", 0.5, ".8"},
		{"sixteenth", 0.0625, ".1"},
		{"mixed", 10.75, "A.C"},
		{"one_and_half", 1.5, "1.8"},
		{"three_quarters", 0.75, ".C"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FloatToHex(tc.in); got != tc.want {
				t.Fatalf("FloatToHex(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBase64Helpers(t *testing.T) {
	t.Parallel()
	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if got := EncodeBase64(want); got != "AAECAwQFBgcICQoLDA0ODw==" {
		t.Fatalf("EncodeBase64 = %q", got)
	}
	for _, in := range []string{
		"AAECAwQFBgcICQoLDA0ODw==",
		"AAECAwQFBgcICQoLDA0ODw",
		"AAECAwQF\nBgcICQoL DA0ODw==",
	} {
		got, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("DecodeBase64(%q): %v", in, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("DecodeBase64(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := DecodeBase64("not base64!"); err == nil {
		t.Fatalf("DecodeBase64 accepted invalid input")
	}
	if got := TrimPadding("QQ=="); got != "QQ" {
		t.Fatalf("TrimPadding = %q, want QQ", got)
	}
}
