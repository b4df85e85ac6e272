package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Delivery headers. The signature covers the exact request body bytes, so a
// receiver can recompute the HMAC with the shared secret and compare.
const (
	HeaderEvent     = "X-Event"
	HeaderSignature = "X-Signature"

	signaturePrefix = "sha256="
)

// Sign computes the signature header value for payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is a valid signature of payload under secret.
// Comparison is constant-time.
func Verify(secret string, payload []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}
