// Package keygen produces fixed-length random keys over a fixed alphabet.
//
// Generation is deliberately unaware of uniqueness; callers rely on the
// store's unique index and retry on collision.
package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	DefaultLength   = 8
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// MaxLength matches the width of the urls.key column.
	MaxLength = 64

	maxAlphabet = 256
)

var (
	ErrInvalidLength  = errors.New("invalid length")
	ErrUnexpectedChar = errors.New("unexpected char")
	ErrBadAlphabet    = errors.New("bad alphabet")
)

// Generator draws each key position independently and uniformly from its alphabet.
type Generator struct {
	alphabet string
	length   int
	valid    [256]bool
	// Random bytes at or above limit are rejected so every symbol keeps the same odds.
	limit  int
	random io.Reader
}

// New returns a Generator for keys of the given length over alphabet.
func New(length int, alphabet string) (*Generator, error) {
	return newWithReader(length, alphabet, rand.Reader)
}

func newWithReader(length int, alphabet string, random io.Reader) (*Generator, error) {
	if length < 1 || length > MaxLength {
		return nil, fmt.Errorf("%w: need 1..%d, got %d", ErrInvalidLength, MaxLength, length)
	}
	if len(alphabet) < 2 || len(alphabet) > maxAlphabet {
		return nil, fmt.Errorf("%w: need 2..%d symbols, got %d", ErrBadAlphabet, maxAlphabet, len(alphabet))
	}

	g := &Generator{
		alphabet: alphabet,
		length:   length,
		limit:    maxAlphabet - maxAlphabet%len(alphabet),
		random:   random,
	}
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if c >= 0x80 {
			return nil, fmt.Errorf("%w: non-ASCII symbol at %d", ErrBadAlphabet, i)
		}
		if g.valid[c] {
			return nil, fmt.Errorf("%w: duplicate symbol %q", ErrBadAlphabet, c)
		}
		g.valid[c] = true
	}
	return g, nil
}

// Length returns the configured key length.
func (g *Generator) Length() int { return g.length }

// Alphabet returns the configured symbols.
func (g *Generator) Alphabet() string { return g.alphabet }

// Generate returns a fresh random key.
func (g *Generator) Generate() (string, error) {
	key := make([]byte, 0, g.length)
	// Oversample so a single read usually covers the rejected bytes.
	buf := make([]byte, g.length+g.length/2+1)
	for len(key) < g.length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("keygen: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= g.limit {
				continue
			}
			key = append(key, g.alphabet[int(b)%len(g.alphabet)])
			if len(key) == g.length {
				break
			}
		}
	}
	return string(key), nil
}

// Validate reports whether key could have been produced by g.
func (g *Generator) Validate(key string) error {
	if len(key) != g.length {
		return ErrInvalidLength
	}
	for i := 0; i < len(key); i++ {
		if !g.valid[key[i]] {
			return ErrUnexpectedChar
		}
	}
	return nil
}
