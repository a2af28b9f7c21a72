package ledger

import (
	"fmt"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

const (
	PubkeyLen = 32

	// MaxSeedLen bounds a single seed passed to FindProgramAddress.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

// Pubkey addresses an account on the ledger.
type Pubkey [PubkeyLen]byte

// SystemProgramID owns plain wallet accounts.
var SystemProgramID = Pubkey{}

// TokenProgramID owns share mints and share token accounts.
var TokenProgramID = NewPubkeyFromSeed("solroll:token-program")

func NewPubkeyFromSeed(seed string) Pubkey {
	return Pubkey(blake3.Sum256([]byte(seed)))
}

func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid pubkey %q: %v", s, err)
	}
	if len(b) != PubkeyLen {
		return pk, fmt.Errorf("invalid pubkey %q: want %d bytes, got %d", s, PubkeyLen, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// CreateProgramAddress hashes seeds, bump and program id into an address only
// the program can sign for.
func CreateProgramAddress(seeds [][]byte, bump uint8, programID Pubkey) (Pubkey, error) {
	h := blake3.New(PubkeyLen, nil)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Pubkey{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk Pubkey
	copy(pk[:], h.Sum(nil))
	return pk, nil
}

// FindProgramAddress returns the canonical program address for seeds and the
// bump used to derive it. The canonical bump is the highest one whose address
// does not collide with a well-known program id.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		pk, err := CreateProgramAddress(seeds, uint8(bump), programID)
		if err != nil {
			return Pubkey{}, 0, err
		}
		if pk != SystemProgramID && pk != TokenProgramID && pk != programID {
			return pk, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// MustFindProgramAddress panics on seeds that can never be valid.
// Only call it with constant seeds.
func MustFindProgramAddress(seeds [][]byte, programID Pubkey) Pubkey {
	pk, _, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(err)
	}
	return pk
}

// SignerSeeds appends the bump to seeds, the form MintTo expects when a
// program signs for one of its derived addresses.
func SignerSeeds(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}
