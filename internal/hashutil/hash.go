// Package hashutil holds the deterministic hashing used to commit to reveal
// numbers and derive roll outcomes, plus access to the recent slot-hash
// history the ledger exposes.
package hashutil

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

const HashLen = 32

// Hash is an opaque 32-byte block hash.
type Hash [HashLen]byte

// Hasher is a keyed, non-cryptographic 64-bit hash. Outcome fairness rests on
// the unpredictability of the slot hash fed into it, not on its strength.
type Hasher struct {
	K0, K1 uint64
}

// Default uses the zero key, the same fixed key on every node.
var Default = Hasher{}

func (h Hasher) Bytes(b []byte) uint64 {
	return siphash.Hash(h.K0, h.K1, b)
}

func (h Hasher) Uint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return h.Bytes(buf[:])
}

func (h Hasher) Hash(v Hash) uint64 {
	return h.Bytes(v[:])
}

// CommitReveal is the value stored at commit time for a reveal number.
func (h Hasher) CommitReveal(revealNumber uint64) uint64 {
	return h.Uint64(revealNumber)
}

// Outcome combines a committed reveal hash with a slot hash into a roll in
// [1, 100]. The addition wraps.
func (h Hasher) Outcome(committedHash uint64, slotHash Hash) uint64 {
	combined := h.Uint64(committedHash + h.Hash(slotHash))
	return combined%100 + 1
}
