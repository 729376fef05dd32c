package vault

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestKeyFromString_Base64(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, keySize)
	encoded := base64.StdEncoding.EncodeToString(raw)

	key, err := KeyFromString(encoded)
	if err != nil {
		t.Fatalf("KeyFromString() error = %v", err)
	}
	if !bytes.Equal(key[:], raw) {
		t.Errorf("key = %x, want %x", key[:], raw)
	}
}

func TestKeyFromString_RawBytes(t *testing.T) {
	raw := "0123456789abcdef0123456789abcdef" // 32 chars; as base64 it decodes to 24 bytes, so the raw path is taken
	raw32 := raw[:32]

	key, err := KeyFromString(raw32)
	if err != nil {
		t.Fatalf("KeyFromString() error = %v", err)
	}
	if string(key[:]) != raw32 {
		t.Errorf("key = %q, want %q", string(key[:]), raw32)
	}
}

func TestKeyFromString_WrongLength(t *testing.T) {
	if _, err := KeyFromString("too-short"); err == nil {
		t.Error("expected error for a key that is neither valid base64-32-bytes nor exactly 32 raw bytes")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	var key Key
	copy(key[:], bytes.Repeat([]byte{0x07}, keySize))
	s := &Store{key: key}

	plaintext := []byte("sk-ant-REDACTED")
	sealed, err := s.seal(plaintext)
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed output should not contain the plaintext verbatim")
	}

	opened, err := s.open(sealed)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("open() = %q, want %q", opened, plaintext)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	var key1, key2 Key
	copy(key1[:], bytes.Repeat([]byte{0x01}, keySize))
	copy(key2[:], bytes.Repeat([]byte{0x02}, keySize))

	s1 := &Store{key: key1}
	s2 := &Store{key: key2}

	sealed, err := s1.seal([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.open(sealed); err == nil {
		t.Error("expected open() with the wrong key to fail")
	}
}

func TestOpen_TruncatedInput(t *testing.T) {
	var key Key
	s := &Store{key: key}
	if _, err := s.open([]byte("short")); err == nil {
		t.Error("expected open() to reject input shorter than the nonce size")
	}
}

func TestSeal_NoncesAreUnique(t *testing.T) {
	var key Key
	copy(key[:], bytes.Repeat([]byte{0x09}, keySize))
	s := &Store{key: key}

	a, err := s.seal([]byte("same plaintext"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.seal([]byte("same plaintext"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext should differ due to random nonces")
	}
}
