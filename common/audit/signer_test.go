package audit

import (
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewActionSigner("test-secret")
	now := time.Now()

	sig := signer.Sign("action-1", now, "198.51.100.7", []byte("blocked for 60m"))
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}

	if !signer.Verify("action-1", now, "198.51.100.7", []byte("blocked for 60m"), sig) {
		t.Error("expected signature to verify")
	}
}

func TestVerify_TamperedFields(t *testing.T) {
	signer := NewActionSigner("test-secret")
	now := time.Now()
	sig := signer.Sign("action-1", now, "198.51.100.7", []byte("blocked"))

	if signer.Verify("action-2", now, "198.51.100.7", []byte("blocked"), sig) {
		t.Error("tampered action ID must not verify")
	}
	if signer.Verify("action-1", now, "203.0.113.9", []byte("blocked"), sig) {
		t.Error("tampered identity must not verify")
	}
	if signer.Verify("action-1", now, "198.51.100.7", []byte("unblocked"), sig) {
		t.Error("tampered result must not verify")
	}
}

func TestVerify_DifferentKey(t *testing.T) {
	now := time.Now()
	sig := NewActionSigner("key-a").Sign("action-1", now, "198.51.100.7", nil)

	if NewActionSigner("key-b").Verify("action-1", now, "198.51.100.7", nil, sig) {
		t.Error("signature from a different key must not verify")
	}
}
