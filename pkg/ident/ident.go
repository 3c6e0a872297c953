package ident

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the set of characters used in session and file ids. Clients
// validate ids against ^[A-Za-z0-9_-]{21}$, so both the alphabet and the
// length are part of the external contract.
const (
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"
	Length   = 21
)

// New returns a fresh 21-character id.
func New() string {
	return gonanoid.MustGenerate(Alphabet, Length)
}
