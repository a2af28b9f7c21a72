package game

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"solroll-backend/internal/hashutil"
)

const (
	MinRollUnder = 2
	MaxRollUnder = 100
)

// Params are the house rules applied at resolution.
type Params struct {
	// HouseEdge scales the fair multiplier; 0.99 keeps 1% for the house.
	HouseEdge decimal.Decimal
	// MaxProfitRatio is the share of the treasury one bet may win.
	MaxProfitRatio decimal.Decimal
	// MinEscrow is the floor an escrow must exceed to resolve.
	MinEscrow uint64
	Hasher    hashutil.Hasher
}

func DefaultParams() Params {
	return Params{
		HouseEdge:      decimal.RequireFromString("0.99"),
		MaxProfitRatio: decimal.RequireFromString("0.01"),
		MinEscrow:      1000,
		Hasher:         hashutil.Default,
	}
}

func ValidRollUnder(rollUnder uint32) bool {
	return rollUnder >= MinRollUnder && rollUnder <= MaxRollUnder
}

// Winnings is the profit on a winning stake, on top of the stake itself:
//
//	floor(stake * ((101-r)/(r-1) + 1) * edge - stake)
//	  = floor(stake * (100*edge - (r-1)) / (r-1))
//
// evaluated exactly and truncated toward zero. A negative ratio pays nothing;
// a result beyond uint64 saturates.
func (p Params) Winnings(stake uint64, rollUnder uint32) uint64 {
	if !ValidRollUnder(rollUnder) || stake == 0 {
		return 0
	}
	den := decimal.NewFromInt(int64(rollUnder) - 1)
	ratioNum := p.HouseEdge.Mul(decimal.NewFromInt(100)).Sub(den)
	if !ratioNum.IsPositive() {
		return 0
	}
	q, _ := fromUint64(stake).Mul(ratioNum).QuoRem(den, 0)
	return toUint64(q)
}

// MaxProfit is the most the treasury will pay out on a single bet.
func (p Params) MaxProfit(treasury uint64) uint64 {
	return toUint64(fromUint64(treasury).Mul(p.MaxProfitRatio).Floor())
}

// Outcome recomputes the roll a reveal number produces against a slot hash.
func (p Params) Outcome(revealNumber uint64, slotHash hashutil.Hash) uint64 {
	return p.Hasher.Outcome(p.Hasher.CommitReveal(revealNumber), slotHash)
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	b := d.BigInt()
	if !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}
