package game

import (
	"encoding/binary"

	pkgerrors "github.com/pkg/errors"
)

// RecordLen is the size of a game record account's data.
const RecordLen = 29

type Status uint8

const (
	StatusUncommitted Status = iota
	StatusCommitted
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusUncommitted:
		return "uncommitted"
	case StatusCommitted:
		return "committed"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Record is the persistent state of one bet. Layout, big endian:
// [0:4] roll under, [4:12] committed hash, [12:20] commit slot,
// [20:28] outcome, [28] status.
type Record struct {
	RollUnder     uint32 `json:"roll_under"`
	CommittedHash uint64 `json:"committed_hash"`
	CommitSlot    uint64 `json:"commit_slot"`
	Outcome       uint64 `json:"outcome"`
	Status        Status `json:"status"`
}

func UnpackRecord(data []byte) (Record, error) {
	var r Record
	if len(data) < RecordLen {
		return r, pkgerrors.Wrapf(ErrInvalidRecord, "record is %d bytes", len(data))
	}
	r.RollUnder = binary.BigEndian.Uint32(data[0:4])
	r.CommittedHash = binary.BigEndian.Uint64(data[4:12])
	r.CommitSlot = binary.BigEndian.Uint64(data[12:20])
	r.Outcome = binary.BigEndian.Uint64(data[20:28])
	r.Status = Status(data[28])
	if r.Status > StatusResolved {
		return r, pkgerrors.Wrapf(ErrInvalidRecord, "status byte %d", data[28])
	}
	return r, nil
}

func (r Record) Pack(data []byte) {
	binary.BigEndian.PutUint32(data[0:4], r.RollUnder)
	binary.BigEndian.PutUint64(data[4:12], r.CommittedHash)
	binary.BigEndian.PutUint64(data[12:20], r.CommitSlot)
	binary.BigEndian.PutUint64(data[20:28], r.Outcome)
	data[28] = byte(r.Status)
}
