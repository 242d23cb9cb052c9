package cryptobox

import (
	"bytes"
	"testing"
)

func TestBoxRoundTrip(t *testing.T) {
	pk, sk, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	psk, err := NewPreSharedKey()
	if err != nil {
		t.Fatal(err)
	}

	ec, err := NewEncryptionContext(pk, psk)
	if err != nil {
		t.Fatal(err)
	}
	dc := NewDecryptionContext(sk, psk)

	for _, compression := range []Compression{CompressionNone, CompressionZstd} {
		pt := []byte("hello, this is chunk plaintext that round-trips")
		ct, err := ec.EncryptData(append([]byte(nil), pt...), compression)
		if err != nil {
			t.Fatal(err)
		}
		got, err := dc.DecryptData(ct)
		if err != nil {
			t.Fatalf("decrypt (compression=%v): %v", compression, err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("round trip mismatch: got %q, want %q", got, pt)
		}
	}
}

func TestCiphertextLengthNoCompression(t *testing.T) {
	pk, sk, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	psk, err := NewPreSharedKey()
	if err != nil {
		t.Fatal(err)
	}
	ec, err := NewEncryptionContext(pk, psk)
	if err != nil {
		t.Fatal(err)
	}
	_ = sk

	pt := make([]byte, 1000)
	ct, err := ec.EncryptData(append([]byte(nil), pt...), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	// plaintext + 1 (footer) + 24 (nonce) + 16 (MAC) + 32 (eph_pk)
	want := len(pt) + 1 + 24 + 16 + 32
	if len(ct) != want {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), want)
	}
}

func TestDistinctRecipientsProduceDistinctCiphertext(t *testing.T) {
	pkA, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	pkB, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	psk, _ := NewPreSharedKey()

	ecA, _ := NewEncryptionContext(pkA, psk)
	ecB, _ := NewEncryptionContext(pkB, psk)

	pt := []byte("identical plaintext")
	ctA, _ := ecA.EncryptData(append([]byte(nil), pt...), CompressionNone)
	ctB, _ := ecB.EncryptData(append([]byte(nil), pt...), CompressionNone)
	if bytes.Equal(ctA, ctB) {
		t.Fatalf("distinct recipients produced identical ciphertext")
	}
}

func TestDecryptRejectsCorruption(t *testing.T) {
	pk, sk, _ := GenerateKeypair()
	psk, _ := NewPreSharedKey()
	ec, _ := NewEncryptionContext(pk, psk)
	dc := NewDecryptionContext(sk, psk)

	pt := []byte("tamper with me")
	ct, err := ec.EncryptData(append([]byte(nil), pt...), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	ct[0] ^= 0xff
	if _, err := dc.DecryptData(ct); err == nil {
		t.Fatalf("expected corruption to be detected")
	}
}
