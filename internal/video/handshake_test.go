package video

import (
	"testing"
)

func TestNonceAlphabet_IsAlphanumericOnly(t *testing.T) {
	for _, r := range nonceAlphabet {
		isDigit := r >= '0' && r <= '9'
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		if !isDigit && !isLower && !isUpper {
			t.Fatalf("nonceAlphabet contains non-alphanumeric rune %q", r)
		}
	}
	if nonceLength != 32 {
		t.Fatalf("expected nonce length 32, got %d", nonceLength)
	}
}
