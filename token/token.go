// Package token generates authentication tokens and compares them against
// their stored form.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// FriendlyLength is the length of tokens returned by Generate.
const FriendlyLength = 20

// ErrEmptyToken indicates an empty token was passed to Digest.
var ErrEmptyToken = errors.New("token: empty token")

// Generate returns a random URL-safe token without ambiguous characters.
func Generate() (string, error) {
	buf := make([]byte, FriendlyLength*3/4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	replacer := strings.NewReplacer("l", "s", "I", "x", "O", "y", "0", "z")
	return replacer.Replace(encoded)[:FriendlyLength], nil
}

// Digest hashes a token for storage.
func Digest(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsDigest reports whether stored looks like a bcrypt digest.
func IsDigest(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// Compare reports whether provided matches stored. Stored digests are
// verified with bcrypt, plain tokens with a constant-time comparison.
// Empty values never match.
func Compare(stored, provided string) bool {
	if stored == "" || provided == "" {
		return false
	}
	if IsDigest(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
}
