package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ComputeSignature derives the notification signature the gateway sends:
// sha512 over order id, status code, gross amount and the merchant server key.
func ComputeSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a reported signature in constant time.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, reported string) bool {
	reported = strings.ToLower(strings.TrimSpace(reported))
	if reported == "" {
		return false
	}
	expected := ComputeSignature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(reported)) == 1
}
