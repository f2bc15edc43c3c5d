// Package joincode generates and validates the short human-typable codes
// players exchange to join a netplay session.
package joincode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// DefaultAlphabet excludes visually ambiguous characters (O/0, I/1).
const DefaultAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultLength is the number of characters in a generated code.
const DefaultLength = 6

// Generator produces join codes from a fixed alphabet. The zero value is not
// usable; construct with New.
type Generator struct {
	length   int
	alphabet string
}

// New creates a generator. Zero or negative length falls back to
// DefaultLength, an empty alphabet to DefaultAlphabet.
func New(length int, alphabet string) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &Generator{length: length, alphabet: alphabet}
}

// Generate returns a new uniformly random code. Codes are guessable only by
// brute force, so the randomness source must be crypto/rand: a predictable
// code would let an attacker walk into active sessions.
func (g *Generator) Generate() (string, error) {
	n := len(g.alphabet)
	// Rejection sampling keeps the distribution uniform when 256 is not a
	// multiple of the alphabet size.
	limit := 256 - (256 % n)

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length)
	for len(out) < g.length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%n])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// Normalize canonicalizes raw user input: trims whitespace, strips the
// optional display hyphens (AB3-CD4) and upper-cases. Idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToUpper(s)
}

// Valid reports whether code is a well-formed join code: exact length and
// every character drawn from the generator's alphabet. Input is expected to
// be normalized already.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(g.alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
