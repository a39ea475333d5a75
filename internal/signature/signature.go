// Package signature validates inbound webhook payload authenticity.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyHMAC checks a bare hex-encoded sha256 HMAC of payload against hexSig.
// The comparison is constant-time and the function never panics: malformed
// input yields false.
func VerifyHMAC(payload []byte, hexSig string, secret string) bool {
	hexSig = strings.TrimSpace(hexSig)
	if hexSig == "" || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}

// VerifyHubSignature checks headers of the form "sha256=<hex>" as sent by the
// messaging provider in x-hub-signature-256. The HMAC is computed over the
// exact transmitted bytes, so callers must pass the raw body before any JSON
// decoding.
func VerifyHubSignature(payload []byte, header string, secret string) bool {
	header = strings.TrimSpace(header)
	algo, sig, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(algo, "sha256") {
		return false
	}
	return VerifyHMAC(payload, sig, secret)
}
