package hashutil

import (
	"encoding/binary"
	"errors"
)

const (
	// MaxSlotHashes is how far back the ledger keeps slot hashes.
	MaxSlotHashes = 512

	slotHashesHeaderLen = 8
	slotHashEntryLen    = 8 + HashLen
	// hash of entry i lives at slotHashOffset + i*slotHashEntryLen
	slotHashOffset = slotHashesHeaderLen + 8
)

var ErrCorruptSlotHashes = errors.New("corrupt slot hashes blob")

// HeadSlot returns the slot of the newest entry in a slot-hash blob.
func HeadSlot(blob []byte) (uint64, bool) {
	if len(blob) < slotHashesHeaderLen+slotHashEntryLen {
		return 0, false
	}
	if binary.LittleEndian.Uint64(blob[:slotHashesHeaderLen]) == 0 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(blob[slotHashesHeaderLen:slotHashOffset]), true
}

// LookupHistoricalHash finds the hash recorded for target, counting back from
// current, the blob's newest slot. A target in the future, beyond the
// retained window or past the end of the blob is reported as not found; the
// zero hash is never used as a stand-in.
func LookupHistoricalHash(blob []byte, current, target uint64) (Hash, bool) {
	var h Hash
	if target > current {
		return h, false
	}
	diff := current - target
	if diff > MaxSlotHashes {
		return h, false
	}
	off := slotHashOffset + diff*slotHashEntryLen
	if off+HashLen > uint64(len(blob)) {
		return h, false
	}
	copy(h[:], blob[off:off+HashLen])
	return h, true
}

// Lookup resolves target against the blob's own head slot.
func Lookup(blob []byte, target uint64) (Hash, bool) {
	head, ok := HeadSlot(blob)
	if !ok {
		return Hash{}, false
	}
	return LookupHistoricalHash(blob, head, target)
}

type SlotHash struct {
	Slot uint64
	Hash Hash
}

// SlotHashes is the decoded ring buffer, newest first.
type SlotHashes []SlotHash

func DecodeSlotHashes(blob []byte) (SlotHashes, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < slotHashesHeaderLen {
		return nil, ErrCorruptSlotHashes
	}
	n := binary.LittleEndian.Uint64(blob[:slotHashesHeaderLen])
	if n > MaxSlotHashes || uint64(len(blob)) != slotHashesHeaderLen+n*slotHashEntryLen {
		return nil, ErrCorruptSlotHashes
	}
	out := make(SlotHashes, n)
	for i := range out {
		e := blob[slotHashesHeaderLen+i*slotHashEntryLen:]
		out[i].Slot = binary.LittleEndian.Uint64(e[:8])
		copy(out[i].Hash[:], e[8:slotHashEntryLen])
	}
	return out, nil
}

// Push records the hash of a new slot, dropping the oldest entry once the
// window is full.
func (s SlotHashes) Push(slot uint64, h Hash) SlotHashes {
	out := make(SlotHashes, 0, min(len(s)+1, MaxSlotHashes))
	out = append(out, SlotHash{Slot: slot, Hash: h})
	for _, e := range s {
		if len(out) == MaxSlotHashes {
			break
		}
		out = append(out, e)
	}
	return out
}

func (s SlotHashes) Encode() []byte {
	buf := make([]byte, slotHashesHeaderLen+len(s)*slotHashEntryLen)
	binary.LittleEndian.PutUint64(buf, uint64(len(s)))
	for i, e := range s {
		off := slotHashesHeaderLen + i*slotHashEntryLen
		binary.LittleEndian.PutUint64(buf[off:], e.Slot)
		copy(buf[off+8:], e.Hash[:])
	}
	return buf
}
