// Package rng derives reproducible selection randomness for a round.
//
// The seed is HMAC-SHA-256 of the round's blockhash under the round's salt,
// so nobody can predict it before the round closes, and everybody can replay
// it afterwards. The generator itself is a 32-bit LCG and is not
// cryptographically secure; the unpredictability comes entirely from the seed
// source.
package rng

import (
	"encoding/hex"
	"strconv"

	"adventdrop/internal/commit"
)

const (
	lcgMul = 9301
	lcgInc = 49297
	lcgMod = 233280
)

// DeriveSeed returns hex(HMAC-SHA-256(blockhash, salt)). Identical inputs
// always yield the identical seed.
func DeriveSeed(blockhash string, salt []byte) string {
	return hex.EncodeToString(commit.HmacSha256([]byte(blockhash), salt))
}

// HourSeed derives the hour-scoped seed for the token sub-lottery: the
// decimal hour is appended to the salt before keying.
func HourSeed(blockhash string, salt []byte, hour int) string {
	key := append(append([]byte{}, salt...), strconv.Itoa(hour)...)
	return DeriveSeed(blockhash, key)
}

type lcg struct {
	state uint64
}

func newLCG(seedHex string) (*lcg, error) {
	if len(seedHex) > 8 {
		seedHex = seedHex[:8]
	}
	s, err := strconv.ParseUint(seedHex, 16, 64)
	if err != nil {
		return nil, err
	}
	return &lcg{state: s}, nil
}

// next returns a uniform draw in [0,1).
func (g *lcg) next() float64 {
	g.state = (g.state*lcgMul + lcgInc) % lcgMod
	return float64(g.state) / lcgMod
}

// Shuffle returns a seeded Fisher-Yates permutation of items. The input slice
// is left untouched.
func Shuffle[T any](items []T, seedHex string) ([]T, error) {
	g, err := newLCG(seedHex)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i >= 1; i-- {
		j := int(g.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
