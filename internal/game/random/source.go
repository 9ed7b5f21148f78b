// Package random supplies the randomness used to pick fair starting symbols.
package random

import (
	"crypto/rand"
	"math/big"

	"github.com/cory-johannsen/duel/internal/game/engine"
)

// Source is the randomness provider for match resets.
//
// Postcondition: Intn(n) returns a value in [0, n) for every n > 0.
type Source interface {
	Intn(n int) int
}

// cryptoSource implements Source using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a uniformly distributed int in [0, n).
//
// Precondition: n > 0. Panics otherwise, or if crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("random: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("random: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// StartingSymbol draws X or O with equal probability.
func StartingSymbol(src Source) engine.Symbol {
	if src.Intn(2) == 0 {
		return engine.SymbolX
	}
	return engine.SymbolO
}

// Fixed is a deterministic Source returning Values in rotation, each reduced
// modulo n. An empty Fixed always returns 0.
type Fixed struct {
	Values []int
	next   int
}

// Intn implements Source.
func (f *Fixed) Intn(n int) int {
	if len(f.Values) == 0 {
		return 0
	}
	v := f.Values[f.next%len(f.Values)]
	f.next++
	if v < 0 {
		v = -v
	}
	return v % n
}
