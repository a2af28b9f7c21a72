// Package game runs the commit-reveal dice bet: a participant commits to the
// hash of a secret number, and a later slot hash combined with that secret
// decides a roll in [1, 100] that settles the escrowed stake.
package game

import (
	pkgerrors "github.com/pkg/errors"

	"solroll-backend/internal/hashutil"
	"solroll-backend/internal/ledger"
)

type SettlementKind string

const (
	KindWin            SettlementKind = "win"
	KindLoss           SettlementKind = "loss"
	KindRefundMismatch SettlementKind = "refund_mismatch"
	KindRefundStale    SettlementKind = "refund_stale"
	KindRefundHistory  SettlementKind = "refund_history"
	KindRefundCap      SettlementKind = "refund_cap"
	// KindStakeReturned is a win the treasury could not cover.
	KindStakeReturned SettlementKind = "stake_returned"
)

func (k SettlementKind) IsRefund() bool {
	switch k {
	case KindRefundMismatch, KindRefundStale, KindRefundHistory, KindRefundCap:
		return true
	}
	return false
}

// Settlement describes how a resolved bet moved funds.
type Settlement struct {
	Kind      SettlementKind `json:"kind"`
	Outcome   uint64         `json:"outcome"`
	RollUnder uint32         `json:"roll_under"`
	Stake     uint64         `json:"stake"`
	Winnings  uint64         `json:"winnings"`
	MaxProfit uint64         `json:"max_profit"`
	// Payout is what the participant received; zero on a loss.
	Payout uint64 `json:"payout"`
}

type CommitAccounts struct {
	Participant ledger.Pubkey
	Record      ledger.Pubkey
	Escrow      ledger.Pubkey
}

type ResolveAccounts struct {
	Participant ledger.Pubkey
	Record      ledger.Pubkey
	Escrow      ledger.Pubkey
	Treasury    ledger.Pubkey
}

type Engine struct {
	ProgramID ledger.Pubkey
	Params    Params
}

func NewEngine(programID ledger.Pubkey, params Params) *Engine {
	return &Engine{ProgramID: programID, Params: params}
}

// Commit binds the record to the hash of revealNumber at the current slot.
// The stake is expected to already sit in the escrow; it is only checked at
// resolution.
func (e *Engine) Commit(tx *ledger.Tx, accs CommitAccounts, rollUnder uint32, revealNumber, stake uint64) (Record, error) {
	recAcc, err := tx.Account(accs.Record)
	if err != nil {
		return Record{}, err
	}
	escrow, err := tx.Account(accs.Escrow)
	if err != nil {
		return Record{}, err
	}
	if err := ledger.RequireOwner(e.ProgramID, recAcc, escrow); err != nil {
		return Record{}, err
	}
	if !ValidRollUnder(rollUnder) {
		return Record{}, pkgerrors.Wrapf(ErrInvalidRollUnder, "got %d", rollUnder)
	}
	if stake == 0 {
		return Record{}, ErrInvalidAmount
	}

	rec, err := UnpackRecord(recAcc.Data)
	if err != nil {
		return Record{}, err
	}
	switch rec.Status {
	case StatusCommitted:
		return Record{}, ErrAlreadyCommitted
	case StatusResolved:
		return Record{}, ErrAlreadyResolved
	}

	rec = Record{
		RollUnder:     rollUnder,
		CommittedHash: e.Params.Hasher.CommitReveal(revealNumber),
		CommitSlot:    tx.Sysvars.Slot,
		Status:        StatusCommitted,
	}
	rec.Pack(recAcc.Data)
	return rec, nil
}

// Resolve settles a committed bet. The roll under and stake are the ones
// stored at commit time and held in escrow; the escrow is always drained in
// full. Infrastructure problems (wrong reveal, same-slot resolution, expired
// history) refund the stake rather than fail. An escrow at or below the floor
// fails with nothing written.
func (e *Engine) Resolve(tx *ledger.Tx, accs ResolveAccounts, revealNumber uint64) (Settlement, error) {
	recAcc, err := tx.Account(accs.Record)
	if err != nil {
		return Settlement{}, err
	}
	escrow, err := tx.Account(accs.Escrow)
	if err != nil {
		return Settlement{}, err
	}
	treasury, err := tx.Account(accs.Treasury)
	if err != nil {
		return Settlement{}, err
	}
	if _, err := tx.Account(accs.Participant); err != nil {
		return Settlement{}, err
	}
	if err := ledger.RequireOwner(e.ProgramID, recAcc, escrow, treasury); err != nil {
		return Settlement{}, err
	}

	rec, err := UnpackRecord(recAcc.Data)
	if err != nil {
		return Settlement{}, err
	}
	switch rec.Status {
	case StatusUncommitted:
		return Settlement{}, ErrNotCommitted
	case StatusResolved:
		return Settlement{}, ErrAlreadyResolved
	}

	stake := escrow.Lamports
	s := Settlement{RollUnder: rec.RollUnder, Stake: stake}

	if e.Params.Hasher.CommitReveal(revealNumber) != rec.CommittedHash {
		return e.refund(tx, accs, recAcc, rec, s, KindRefundMismatch)
	}
	if tx.Sysvars.Slot <= rec.CommitSlot {
		return e.refund(tx, accs, recAcc, rec, s, KindRefundStale)
	}
	slotHash, ok := hashutil.Lookup(tx.Sysvars.SlotHashes, rec.CommitSlot)
	if !ok {
		return e.refund(tx, accs, recAcc, rec, s, KindRefundHistory)
	}

	rec.Outcome = e.Params.Hasher.Outcome(rec.CommittedHash, slotHash)
	s.Outcome = rec.Outcome

	if stake <= e.Params.MinEscrow {
		return Settlement{}, pkgerrors.Wrapf(ErrBelowFloor, "escrow holds %d, floor is %d", stake, e.Params.MinEscrow)
	}

	s.Winnings = e.Params.Winnings(stake, rec.RollUnder)
	s.MaxProfit = e.Params.MaxProfit(treasury.Lamports)
	if s.Winnings > s.MaxProfit {
		return e.refund(tx, accs, recAcc, rec, s, KindRefundCap)
	}

	if rec.Outcome >= uint64(rec.RollUnder) {
		s.Kind = KindLoss
		if err := tx.Transfer(accs.Escrow, accs.Treasury, stake); err != nil {
			return Settlement{}, err
		}
		return e.finish(recAcc, rec, s)
	}

	if err := tx.Transfer(accs.Escrow, accs.Participant, stake); err != nil {
		return Settlement{}, err
	}
	s.Payout = stake
	if s.Winnings < treasury.Lamports {
		if err := tx.Transfer(accs.Treasury, accs.Participant, s.Winnings); err != nil {
			return Settlement{}, err
		}
		s.Kind = KindWin
		s.Payout += s.Winnings
	} else {
		s.Kind = KindStakeReturned
	}
	return e.finish(recAcc, rec, s)
}

func (e *Engine) refund(tx *ledger.Tx, accs ResolveAccounts, recAcc *ledger.Account, rec Record, s Settlement, kind SettlementKind) (Settlement, error) {
	if err := tx.Transfer(accs.Escrow, accs.Participant, s.Stake); err != nil {
		return Settlement{}, err
	}
	s.Kind = kind
	s.Payout = s.Stake
	return e.finish(recAcc, rec, s)
}

func (e *Engine) finish(recAcc *ledger.Account, rec Record, s Settlement) (Settlement, error) {
	rec.Status = StatusResolved
	rec.Pack(recAcc.Data)
	return s, nil
}
