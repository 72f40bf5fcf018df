package execution

import "testing"

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// Signing the same inputs twice must produce identical signatures.
func TestSignerDeterministic(t *testing.T) {
	s, err := NewSigner(testPrivateKey, "a")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	defer s.Close()

	action := map[string]any{"type": "order", "orders": []string{}}

	sig1, err := s.Sign(action, 42, "", nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig2, err := s.Sign(action, 42, "", nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if sig1 != sig2 {
		t.Fatalf("signatures differ for identical inputs: %+v vs %+v", sig1, sig2)
	}
	if sig1.V != 27 && sig1.V != 28 {
		t.Fatalf("V = %d, want 27 or 28", sig1.V)
	}
}

func TestSignerDiffersByNonce(t *testing.T) {
	s, err := NewSigner(testPrivateKey, "a")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	defer s.Close()

	action := map[string]any{"type": "order"}
	sig1, _ := s.Sign(action, 1, "", nil)
	sig2, _ := s.Sign(action, 2, "", nil)

	if sig1.R == sig2.R && sig1.S == sig2.S {
		t.Fatal("expected different signatures for different nonces")
	}
}

func TestSignerRejectsBadChainSource(t *testing.T) {
	if _, err := NewSigner(testPrivateKey, "x"); err == nil {
		t.Fatal("expected error for invalid chain source")
	}
}
