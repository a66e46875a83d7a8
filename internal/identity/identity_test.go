package identity

import (
	"strings"
	"testing"
)

func newKeys(t *testing.T) KeyPair {
	t.Helper()
	keys, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return keys
}

func TestSignVerify(t *testing.T) {
	keys := newKeys(t)
	content := "0123456789abcdef0123"
	sig, err := keys.Sign(content)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(content, sig, keys.Pub); err != nil {
		t.Fatalf("Verify of untouched content: %v", err)
	}
	if err := Verify(content+"x", sig, keys.Pub); err != ErrBadSignature {
		t.Fatalf("Verify of mutated content: got %v want ErrBadSignature", err)
	}
	sig[0] ^= 0xff
	if err := Verify(content, sig, keys.Pub); err != ErrBadSignature {
		t.Fatalf("Verify of mutated signature: got %v want ErrBadSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	a, b := newKeys(t), newKeys(t)
	sig, err := a.Sign("hello")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify("hello", sig, b.Pub); err != ErrBadSignature {
		t.Fatalf("Verify with other key: got %v want ErrBadSignature", err)
	}
}

func TestPublicKeyPEM(t *testing.T) {
	keys := newKeys(t)
	if !strings.HasPrefix(string(keys.Pub), "-----BEGIN PUBLIC KEY-----") {
		t.Fatalf("unexpected PEM header: %q", keys.Pub)
	}
	pub, err := ParsePublicKey(keys.Pub)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pub.N.BitLen() != KeyBits {
		t.Fatalf("key size: got %d want %d", pub.N.BitLen(), KeyBits)
	}
	again, err := EncodePublicKey(pub)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}
	if string(again) != string(keys.Pub) {
		t.Fatalf("PEM round trip changed the key")
	}
	if _, err := ParsePublicKey([]byte("not a key")); err == nil {
		t.Fatalf("ParsePublicKey accepted garbage")
	}
}

func TestNodeIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := NewNodeID()
		if err != nil {
			t.Fatalf("NewNodeID: %v", err)
		}
		if !id.IsValid() {
			t.Fatalf("invalid id %q", id)
		}
		seen[string(id)] = true
	}
	if len(seen) < 49 {
		t.Fatalf("ids are not random: %d distinct of 50", len(seen))
	}
	keys := newKeys(t)
	a, b := NodeIDFromPublicKey(keys.Pub), NodeIDFromPublicKey(keys.Pub)
	if a != b || !a.IsValid() {
		t.Fatalf("key-bound id not stable/valid: %q %q", a, b)
	}
}
