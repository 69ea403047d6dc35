package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC returns the hex-encoded HMAC-SHA256 of payload under secret.
func SignHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a hex-encoded HMAC-SHA256 signature in constant time.
// An empty secret or signature never verifies.
func VerifyHMAC(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignHMAC(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
