package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes a keyed HMAC-SHA256 over the exact bytes that go on the wire
// and returns it as a lowercase hex string. Any re-serialization of the payload
// between signing and sending invalidates the signature.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature for the payload and compares
// it against the supplied hex string in constant time. Malformed or wrong-length
// input yields false, never an error.
func VerifySignature(payload []byte, secret, signatureHex string) bool {
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal(provided, expected)
}
