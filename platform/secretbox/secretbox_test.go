package secretbox

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := testKey()

	sealed, err := Seal("sf-token-abc123", key)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if sealed == "sf-token-abc123" {
		t.Fatal("sealed value must not equal plaintext")
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if opened != "sf-token-abc123" {
		t.Fatalf("expected roundtrip to restore plaintext, got %q", opened)
	}
}

func TestSealProducesUniqueCiphertexts(t *testing.T) {
	key := testKey()

	first, err := Seal("same", key)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	second, err := Seal("same", key)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if first == second {
		t.Fatal("expected random nonce to produce distinct ciphertexts")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := Seal("secret", testKey())
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	other := bytes.Repeat([]byte{0x24}, 32)
	if _, err := Open(sealed, other); err == nil {
		t.Fatal("expected open with the wrong key to fail")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey()
	sealed, err := Seal("secret", key)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	tampered := []byte(sealed)
	if tampered[len(tampered)-1] == 'a' {
		tampered[len(tampered)-1] = 'b'
	} else {
		tampered[len(tampered)-1] = 'a'
	}
	if _, err := Open(string(tampered), key); err == nil {
		t.Fatal("expected open of tampered ciphertext to fail")
	}
}

func TestKeyLengthEnforced(t *testing.T) {
	if _, err := Seal("x", []byte("short")); err == nil {
		t.Fatal("expected seal to reject short key")
	}
	if _, err := Open("00", []byte("short")); err == nil {
		t.Fatal("expected open to reject short key")
	}
}
