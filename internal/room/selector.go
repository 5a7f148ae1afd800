// internal/room/selector.go
//
// Deterministic answer selection and match seeding.
//
// The target entity is never stored or transmitted: both clients derive it
// from the room seed. ChooseAnswer must therefore be byte-for-byte identical
// on every implementation — same name-sorted candidate order, same LCG
// constants, same modulo. Changing any of these breaks cross-client
// agreement on the hidden target.
//
// A client can always reproduce the target locally from the seed, so this is
// a synchronization mechanism, not a secrecy mechanism.

package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Linear congruential step applied to the seed.
const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgModulus    = 1 << 31
)

// ChooseAnswer maps a 31-bit seed to an index into the name-sorted candidate
// pool of the given size. Pure and deterministic.
func ChooseAnswer(seed int64, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	x := seed & (lcgModulus - 1)
	x = (lcgMultiplier*x + lcgIncrement) % lcgModulus
	return int(x % int64(poolSize))
}

// NewSeed returns a cryptographically random 31-bit match seed.
func NewSeed() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(lcgModulus))
	if err != nil {
		return 1
	}
	return n.Int64()
}

// NewCode returns a random 6-digit, zero-padded room code.
func NewCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// ValidCode reports whether s has the 6-digit room code shape.
func ValidCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
