// Package signature authenticates inbound webhook deliveries.
//
// Meta-family platforms sign the raw body with HMAC-SHA256 and send
// "sha256=<hex>" in X-Hub-Signature-256. Discord signs timestamp+body with
// the application's Ed25519 key. Every check returns false on any problem
// and never panics.
package signature

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	HeaderHubSignature256 = "X-Hub-Signature-256"
	HeaderEd25519         = "X-Signature-Ed25519"
	HeaderTimestamp       = "X-Signature-Timestamp"

	sha256Prefix = "sha256="
)

// VerifyHMAC checks a "sha256=<hex>" header value against body using secret.
func VerifyHMAC(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(header, sha256Prefix) {
		return false
	}
	expected := strings.TrimPrefix(header, sha256Prefix)
	if expected == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	// Digests of differing length are a mismatch, not an error.
	if len(expected) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(expected)), []byte(computed)) == 1
}

// VerifyHubSignature reads X-Hub-Signature-256 from headers and checks it.
func VerifyHubSignature(body []byte, headers http.Header, secret string) bool {
	if headers == nil {
		return false
	}
	return VerifyHMAC(body, headers.Get(HeaderHubSignature256), secret)
}

// Sign returns the "sha256=<hex>" header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return sha256Prefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyEd25519 checks a Discord interaction signature. publicKeyHex is the
// application's public key as shown in the developer portal.
func VerifyEd25519(body []byte, headers http.Header, publicKeyHex string) bool {
	if headers == nil || publicKeyHex == "" {
		return false
	}
	sigHex := headers.Get(HeaderEd25519)
	timestamp := headers.Get(HeaderTimestamp)
	if sigHex == "" || timestamp == "" {
		return false
	}

	key, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	return ed25519.Verify(ed25519.PublicKey(key), msg, sig)
}
