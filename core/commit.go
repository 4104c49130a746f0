package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Commit-reveal hashing for sealed bids. A bidder first publishes
// HashBid(amount, salt); later the plaintext (amount, salt) pair is checked
// against the stored hash. Altering the amount without the matching salt
// always produces an invalid reveal.

// GenerateSalt returns a random 16-byte salt, base64-encoded.
func GenerateSalt() string {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random salt: %v", err))
	}
	return base64.StdEncoding.EncodeToString(salt)
}

// HashBid computes the commitment hash over an amount and salt.
//
// Formula: SHA256(amount + "|" + currency + "|" + salt), base64-encoded.
// The amount is normalized to six decimal places so the same value always
// hashes identically regardless of how the client formatted it ("50" and
// "50.00" commit to the same thing).
func HashBid(amount Money, salt string) string {
	data := fmt.Sprintf("%s|%s|%s", amount.Amount.StringFixed(6), amount.Currency, salt)
	sum := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyBid reports whether (amount, salt) matches a stored commitment hash.
// Comparison is constant-time.
func VerifyBid(amount Money, salt, expectedHash string) bool {
	computed := HashBid(amount, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expectedHash)) == 1
}
