package cryptobox

import "testing"

func TestNonceIncWrapsLittleEndian(t *testing.T) {
	var n Nonce
	n[0] = 255
	n.Inc()
	want := Nonce{}
	want[1] = 1
	if n != want {
		t.Fatalf("got %v, want %v", n, want)
	}

	var allFF Nonce
	for i := range allFF {
		allFF[i] = 255
	}
	allFF.Inc()
	var allZero Nonce
	if allFF != allZero {
		t.Fatalf("incrementing all-255 nonce: got %v, want all-zero", allFF)
	}
}
