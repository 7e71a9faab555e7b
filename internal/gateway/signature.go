package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func hmacSHA256Hex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func secureCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// verifySharedToken implements the shared-token scheme some providers use in
// place of a payload signature. Fail closed: no secret configured in a live
// environment means no callback is trusted. The sandbox pass-through exists
// only so local testing works without credentials; callers log it loudly.
func verifySharedToken(live bool, secret, token string) bool {
	if secret == "" {
		return !live
	}
	if token == "" {
		return false
	}
	return secureCompare(secret, token)
}
