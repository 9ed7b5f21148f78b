package room

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AccessCode is the stored form of a private room code.
//
// The code is SHA-256 digested and hex encoded before bcrypt, so every byte
// of the code takes part in the comparison and codes of any length are
// accepted.
type AccessCode struct {
	hash []byte
}

// IsZero reports whether no code has been hashed.
func (a AccessCode) IsZero() bool {
	return len(a.hash) == 0
}

// Matches reports whether code is exactly the hashed code.
func (a AccessCode) Matches(code string) bool {
	if a.IsZero() {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, digest(code)) == nil
}

func digest(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}

// HashAccessCode hashes code at the registry's bcrypt cost. It touches no
// registry state, so callers may run it outside their own locks.
//
// Postcondition: Returns ErrAccessCodeRequired for an empty code.
func (g *Registry) HashAccessCode(code string) (AccessCode, error) {
	if code == "" {
		return AccessCode{}, ErrAccessCodeRequired
	}
	h, err := bcrypt.GenerateFromPassword(digest(code), g.codeCost)
	if err != nil {
		return AccessCode{}, fmt.Errorf("hashing access code: %w", err)
	}
	return AccessCode{hash: h}, nil
}
