// Package audit provides HMAC signing for response-action records so the
// audit trail is tamper-evident.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type ActionSigner struct {
	secretKey []byte
}

func NewActionSigner(secretKey string) *ActionSigner {
	return &ActionSigner{
		secretKey: []byte(secretKey),
	}
}

// Sign computes an HMAC over the identifying fields of an executed action.
func (s *ActionSigner) Sign(actionID string, executedAt time.Time, targetIdentity string, result []byte) string {
	payload := actionID + executedAt.Format(time.RFC3339Nano) + targetIdentity + string(result)
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches the given action fields.
func (s *ActionSigner) Verify(actionID string, executedAt time.Time, targetIdentity string, result []byte, signature string) bool {
	expected := s.Sign(actionID, executedAt, targetIdentity, result)
	return hmac.Equal([]byte(expected), []byte(signature))
}
