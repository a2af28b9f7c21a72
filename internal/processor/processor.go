// Package processor routes decoded instructions to the custody ledger and
// the game engine.
package processor

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/custody"
	"solroll-backend/internal/game"
	"solroll-backend/internal/ledger"
)

type Op string

const (
	OpDeposit  Op = "deposit"
	OpWithdraw Op = "withdraw"
	OpCommit   Op = "commit"
	OpResolve  Op = "resolve"
)

var (
	ErrUnknownOp         = errors.New("processor: unknown instruction")
	ErrNotEnoughAccounts = errors.New("processor: not enough account keys")
)

// Instruction is one decoded operation. Accounts are positional:
//
//	deposit:  participant, escrow, pool, mint, share account
//	withdraw: participant, pool, mint, share account
//	commit:   participant, record, escrow
//	resolve:  participant, record, escrow, treasury
//
// Amount is the deposit amount, the shares to withdraw, or the stake.
// A resolve settles against the roll under and stake recorded at commit;
// the copies carried here are informational.
type Instruction struct {
	Op           Op              `json:"op"`
	Amount       uint64          `json:"amount"`
	RevealNumber uint64          `json:"reveal_number"`
	RollUnder    uint32          `json:"roll_under"`
	Accounts     []ledger.Pubkey `json:"accounts"`
}

// Result carries whichever report the routed operation produced.
type Result struct {
	Op         Op                      `json:"op"`
	Deposit    *custody.DepositResult  `json:"deposit,omitempty"`
	Withdraw   *custody.WithdrawResult `json:"withdraw,omitempty"`
	Record     *game.Record            `json:"record,omitempty"`
	Settlement *game.Settlement        `json:"settlement,omitempty"`
}

type Processor struct {
	custody *custody.Ledger
	game    *game.Engine
	log     logrus.FieldLogger
}

func New(c *custody.Ledger, g *game.Engine, log logrus.FieldLogger) *Processor {
	return &Processor{custody: c, game: g, log: log}
}

// Process runs ix against tx. On error the caller must discard tx.
func (p *Processor) Process(tx *ledger.Tx, ix Instruction) (*Result, error) {
	log := p.log.WithFields(logrus.Fields{"op": ix.Op, "slot": tx.Sysvars.Slot})
	res := &Result{Op: ix.Op}

	switch ix.Op {
	case OpDeposit:
		keys, err := accounts(ix, 5)
		if err != nil {
			return nil, err
		}
		out, err := p.custody.Deposit(tx, custody.DepositAccounts{
			Participant:  keys[0],
			Escrow:       keys[1],
			Pool:         keys[2],
			Mint:         keys[3],
			ShareAccount: keys[4],
		}, ix.Amount)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"amount": out.Amount, "shares": out.SharesMinted}).Debug("Deposit accepted")
		res.Deposit = &out

	case OpWithdraw:
		keys, err := accounts(ix, 4)
		if err != nil {
			return nil, err
		}
		out, err := p.custody.Withdraw(tx, custody.WithdrawAccounts{
			Participant:  keys[0],
			Pool:         keys[1],
			Mint:         keys[2],
			ShareAccount: keys[3],
		}, ix.Amount)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"shares": out.SharesBurned, "value": out.Value}).Debug("Withdrawal paid")
		res.Withdraw = &out

	case OpCommit:
		keys, err := accounts(ix, 3)
		if err != nil {
			return nil, err
		}
		rec, err := p.game.Commit(tx, game.CommitAccounts{
			Participant: keys[0],
			Record:      keys[1],
			Escrow:      keys[2],
		}, ix.RollUnder, ix.RevealNumber, ix.Amount)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"roll_under": rec.RollUnder, "stake": ix.Amount}).Debug("Bet committed")
		res.Record = &rec

	case OpResolve:
		keys, err := accounts(ix, 4)
		if err != nil {
			return nil, err
		}
		s, err := p.game.Resolve(tx, game.ResolveAccounts{
			Participant: keys[0],
			Record:      keys[1],
			Escrow:      keys[2],
			Treasury:    keys[3],
		}, ix.RevealNumber)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"kind":       s.Kind,
			"outcome":    s.Outcome,
			"roll_under": s.RollUnder,
			"payout":     s.Payout,
		}).Debug("Bet resolved")
		res.Settlement = &s

	default:
		return nil, pkgerrors.Wrapf(ErrUnknownOp, "%q", ix.Op)
	}
	return res, nil
}

func accounts(ix Instruction, n int) ([]ledger.Pubkey, error) {
	if len(ix.Accounts) < n {
		return nil, pkgerrors.Wrapf(ErrNotEnoughAccounts, "%s needs %d, got %d", ix.Op, n, len(ix.Accounts))
	}
	return ix.Accounts, nil
}
