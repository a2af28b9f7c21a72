package models

import "solroll-backend/internal/game"

type BetStatus string

const (
	BetStatusCommitted BetStatus = "committed"
	BetStatusResolved  BetStatus = "resolved"
)

// BetSession is the service's view of one commit-reveal bet. The reveal
// number is never stored; the participant keeps it until resolution.
type BetSession struct {
	ID          string `json:"id" redis:"id"`
	Participant string `json:"participant" redis:"participant"`
	Record      string `json:"record" redis:"record"`
	Escrow      string `json:"escrow" redis:"escrow"`

	RollUnder     uint32 `json:"roll_under" redis:"roll_under"`
	Stake         uint64 `json:"stake" redis:"stake"`
	CommittedHash uint64 `json:"committed_hash" redis:"committed_hash"`
	CommitSlot    uint64 `json:"commit_slot" redis:"commit_slot"`

	Status      BetStatus        `json:"status" redis:"status"`
	ResolveSlot uint64           `json:"resolve_slot,omitempty" redis:"resolve_slot"`
	Settlement  *game.Settlement `json:"settlement,omitempty" redis:"-"`

	CreatedAt  int64 `json:"created_at" redis:"created_at"`
	ResolvedAt int64 `json:"resolved_at,omitempty" redis:"resolved_at"`
}

func (b *BetSession) IsResolved() bool {
	return b.Status == BetStatusResolved
}

type CommitRequest struct {
	RollUnder    uint32 `json:"roll_under" binding:"required,min=2,max=100"`
	Stake        uint64 `json:"stake" binding:"required,gt=0"`
	RevealNumber uint64 `json:"reveal_number"`
}

type ResolveRequest struct {
	RevealNumber uint64 `json:"reveal_number"`
}

type VerifyRequest struct {
	RevealNumber uint64 `json:"reveal_number"`
	Slot         uint64 `json:"slot" binding:"required"`
	RollUnder    uint32 `json:"roll_under" binding:"omitempty,min=2,max=100"`
}

type VerifyResponse struct {
	RevealNumber  uint64 `json:"reveal_number"`
	CommittedHash uint64 `json:"committed_hash"`
	Slot          uint64 `json:"slot"`
	SlotHash      string `json:"slot_hash"`
	Outcome       uint64 `json:"outcome"`
	RollUnder     uint32 `json:"roll_under,omitempty"`
	Win           *bool  `json:"win,omitempty"`
}
