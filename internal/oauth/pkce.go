package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// MethodS256 is the only accepted code_challenge_method.
const MethodS256 = "S256"

// ComputeS256Challenge returns base64url(sha256(verifier)) without padding.
func ComputeS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	enc := base64.StdEncoding.EncodeToString(sum[:])
	enc = strings.ReplaceAll(enc, "+", "-")
	enc = strings.ReplaceAll(enc, "/", "_")
	return strings.TrimRight(enc, "=")
}

// VerifyPKCE reports whether verifier matches challenge under method. It never
// panics; any internal failure yields false.
//
// Inputs of different length return early, so the comparison time reveals
// whether the lengths match. Valid S256 challenges are always 43 characters.
func VerifyPKCE(verifier, challenge, method string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if method != MethodS256 {
		return false
	}
	if verifier == "" || challenge == "" {
		return false
	}
	computed := ComputeS256Challenge(verifier)
	if len(computed) != len(challenge) {
		return false
	}
	var acc byte
	for i := 0; i < len(computed); i++ {
		acc |= computed[i] ^ challenge[i]
	}
	return acc == 0
}
