// Package custody converts native value deposited into the pool into pool
// shares and back, pro rata against the pool's balance and the share supply.
package custody

import (
	"errors"

	"github.com/holiman/uint256"
	pkgerrors "github.com/pkg/errors"

	"solroll-backend/internal/ledger"
)

var (
	ErrInvalidAmount = errors.New("custody: invalid amount")
	ErrEmptyEscrow   = errors.New("custody: deposit escrow is empty")
	ErrNothingToMint = errors.New("custody: deposit too small to mint a share")
	ErrNothingToPay  = errors.New("custody: withdrawal too small to release value")
)

// TokenService is the share mint/burn primitive custody relies on.
type TokenService interface {
	Supply(tx *ledger.Tx, mint ledger.Pubkey) (uint64, error)
	MintTo(tx *ledger.Tx, mint, dest, authority ledger.Pubkey, signerSeeds [][]byte, amount uint64) error
	Burn(tx *ledger.Tx, source, mint, owner ledger.Pubkey, amount uint64) error
}

type DepositAccounts struct {
	Participant  ledger.Pubkey
	Escrow       ledger.Pubkey
	Pool         ledger.Pubkey
	Mint         ledger.Pubkey
	ShareAccount ledger.Pubkey
}

type WithdrawAccounts struct {
	Participant  ledger.Pubkey
	Pool         ledger.Pubkey
	Mint         ledger.Pubkey
	ShareAccount ledger.Pubkey
}

type DepositResult struct {
	Amount       uint64 `json:"amount"`
	SharesMinted uint64 `json:"shares_minted"`
	PoolBefore   uint64 `json:"pool_before"`
	SupplyBefore uint64 `json:"supply_before"`
}

type WithdrawResult struct {
	SharesBurned uint64 `json:"shares_burned"`
	Value        uint64 `json:"value"`
	PoolBefore   uint64 `json:"pool_before"`
	SupplyBefore uint64 `json:"supply_before"`
}

type Ledger struct {
	ProgramID ledger.Pubkey
	Tokens    TokenService
}

func New(programID ledger.Pubkey, tokens TokenService) *Ledger {
	return &Ledger{ProgramID: programID, Tokens: tokens}
}

// MintAuthoritySeeds are the seeds of the program address allowed to mint
// shares for pool.
func MintAuthoritySeeds(pool ledger.Pubkey) [][]byte {
	return [][]byte{pool[:], []byte("mint")}
}

// SharesForDeposit prices a deposit. An unseeded or empty pool issues shares
// 1:1; otherwise shares = floor(amount * supply / poolValue).
func SharesForDeposit(amount, poolValue, supply uint64) (uint64, error) {
	if supply == 0 || poolValue == 0 {
		return amount, nil
	}
	return mulDiv(amount, supply, poolValue)
}

// ValueForShares prices a withdrawal: floor(shares * poolValue / supply), or
// shares itself when the pool has no supply or no value.
func ValueForShares(shares, poolValue, supply uint64) (uint64, error) {
	if supply == 0 || poolValue == 0 {
		return shares, nil
	}
	return mulDiv(shares, poolValue, supply)
}

func mulDiv(x, y, d uint64) (uint64, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(x), uint256.NewInt(y), uint256.NewInt(d))
	if overflow || !z.IsUint64() {
		return 0, pkgerrors.Wrap(ErrInvalidAmount, "share conversion overflows")
	}
	return z.Uint64(), nil
}

// Deposit moves amount from the participant's deposit escrow into the pool and
// mints the matching shares. The mint happens first; if it fails nothing moves.
func (l *Ledger) Deposit(tx *ledger.Tx, accs DepositAccounts, amount uint64) (DepositResult, error) {
	var res DepositResult
	if amount == 0 {
		return res, ErrInvalidAmount
	}

	escrow, err := tx.Account(accs.Escrow)
	if err != nil {
		return res, err
	}
	pool, err := tx.Account(accs.Pool)
	if err != nil {
		return res, err
	}
	if err := ledger.RequireOwner(l.ProgramID, escrow, pool); err != nil {
		return res, err
	}
	if escrow.Lamports == 0 {
		return res, ErrEmptyEscrow
	}
	if escrow.Lamports < amount {
		return res, pkgerrors.Wrapf(ledger.ErrInsufficientFunds, "escrow holds %d, deposit is %d", escrow.Lamports, amount)
	}

	supply, err := l.Tokens.Supply(tx, accs.Mint)
	if err != nil {
		return res, pkgerrors.Wrap(err, "read share supply")
	}
	shares, err := SharesForDeposit(amount, pool.Lamports, supply)
	if err != nil {
		return res, err
	}
	if shares == 0 {
		return res, ErrNothingToMint
	}

	seeds := MintAuthoritySeeds(accs.Pool)
	authority, bump, err := ledger.FindProgramAddress(seeds, l.ProgramID)
	if err != nil {
		return res, err
	}
	res = DepositResult{
		Amount:       amount,
		SharesMinted: shares,
		PoolBefore:   pool.Lamports,
		SupplyBefore: supply,
	}
	if err := l.Tokens.MintTo(tx, accs.Mint, accs.ShareAccount, authority, ledger.SignerSeeds(seeds, bump), shares); err != nil {
		return DepositResult{}, pkgerrors.Wrap(err, "mint shares")
	}
	if err := tx.Transfer(accs.Escrow, accs.Pool, amount); err != nil {
		return DepositResult{}, err
	}
	return res, nil
}

// Withdraw burns shares and pays their pro-rata value from the pool to the
// participant. The pool must be able to cover the value before anything is
// burned.
func (l *Ledger) Withdraw(tx *ledger.Tx, accs WithdrawAccounts, shares uint64) (WithdrawResult, error) {
	var res WithdrawResult
	if shares == 0 {
		return res, ErrInvalidAmount
	}

	pool, err := tx.Account(accs.Pool)
	if err != nil {
		return res, err
	}
	if err := ledger.RequireOwner(l.ProgramID, pool); err != nil {
		return res, err
	}
	if _, err := tx.Account(accs.Participant); err != nil {
		return res, err
	}

	supply, err := l.Tokens.Supply(tx, accs.Mint)
	if err != nil {
		return res, pkgerrors.Wrap(err, "read share supply")
	}
	value, err := ValueForShares(shares, pool.Lamports, supply)
	if err != nil {
		return res, err
	}
	if value == 0 {
		return res, ErrNothingToPay
	}
	if value > pool.Lamports {
		return res, pkgerrors.Wrapf(ledger.ErrInsufficientFunds, "pool holds %d, withdrawal is %d", pool.Lamports, value)
	}

	res = WithdrawResult{
		SharesBurned: shares,
		Value:        value,
		PoolBefore:   pool.Lamports,
		SupplyBefore: supply,
	}
	if err := l.Tokens.Burn(tx, accs.ShareAccount, accs.Mint, accs.Participant, shares); err != nil {
		return WithdrawResult{}, pkgerrors.Wrap(err, "burn shares")
	}
	if err := tx.Transfer(accs.Pool, accs.Participant, value); err != nil {
		return WithdrawResult{}, err
	}
	return res, nil
}
