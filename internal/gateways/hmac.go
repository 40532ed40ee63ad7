package gateways

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

// HMACSHA256Hex returns the hex digest of the HMAC-SHA256 of data.
func HMACSHA256Hex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA512Hex returns the hex digest of the HMAC-SHA512 of data.
func HMACSHA512Hex(secret string, data []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// DigestsEqual compares two hex digests in constant time.
func DigestsEqual(expected, received string) bool {
	return hmac.Equal([]byte(expected), []byte(received))
}
