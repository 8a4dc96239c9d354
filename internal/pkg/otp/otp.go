// Package otp produces one-time verification codes and single-use tokens.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the number of decimal digits in a verification code.
const CodeLength = 6

// Generator produces verification codes.
type Generator interface {
	Code() (string, error)
}

type randomGenerator struct {
	length int
	max    *big.Int
}

// NewRandom returns a Generator drawing uniformly from crypto/rand over
// [0, 10^length), zero-padded.
func NewRandom(length int) Generator {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	return &randomGenerator{length: length, max: max}
}

func (g *randomGenerator) Code() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", g.length, n), nil
}

type fixedGenerator string

// Fixed returns a Generator that always yields code. Test mode only.
func Fixed(code string) Generator { return fixedGenerator(code) }

func (g fixedGenerator) Code() (string, error) { return string(g), nil }

// ValidCode reports whether s has the shape of a verification code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

// NewToken generates a cryptographically random 64-character hex token.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 of token. Only hashes are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
