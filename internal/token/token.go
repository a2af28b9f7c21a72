// Package token implements pool shares: a mint whose supply tracks the total
// claims on the pool, and per-owner token accounts holding shares.
package token

import (
	"encoding/binary"
	"errors"
	"math/bits"

	pkgerrors "github.com/pkg/errors"

	"solroll-backend/internal/ledger"
)

const (
	MintLen    = 41
	AccountLen = 72
)

var (
	ErrNotInitialized     = errors.New("token: account not initialized")
	ErrAlreadyInitialized = errors.New("token: account already initialized")
	ErrInvalidOwner       = errors.New("token: account not owned by token program")
	ErrMintMismatch       = errors.New("token: account belongs to a different mint")
	ErrOwnerMismatch      = errors.New("token: owner does not match")
	ErrInvalidAuthority   = errors.New("token: mint authority does not match")
	ErrInvalidSignerSeeds = errors.New("token: signer seeds do not derive the mint authority")
	ErrInsufficientShares = errors.New("token: insufficient shares")
	ErrSupplyOverflow     = errors.New("token: supply overflow")
)

// Mint is the decoded state of a share mint account.
type Mint struct {
	Supply        uint64
	MintAuthority ledger.Pubkey
	Initialized   bool
}

func UnpackMint(data []byte) (Mint, error) {
	var m Mint
	if len(data) != MintLen {
		return m, ErrNotInitialized
	}
	m.Supply = binary.LittleEndian.Uint64(data[0:8])
	copy(m.MintAuthority[:], data[8:40])
	m.Initialized = data[40] == 1
	if !m.Initialized {
		return m, ErrNotInitialized
	}
	return m, nil
}

func (m Mint) Pack(data []byte) {
	binary.LittleEndian.PutUint64(data[0:8], m.Supply)
	copy(data[8:40], m.MintAuthority[:])
	if m.Initialized {
		data[40] = 1
	} else {
		data[40] = 0
	}
}

// Account is the decoded state of a share token account.
type Account struct {
	Mint   ledger.Pubkey
	Owner  ledger.Pubkey
	Amount uint64
}

func UnpackAccount(data []byte) (Account, error) {
	var a Account
	if len(data) != AccountLen {
		return a, ErrNotInitialized
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])
	if a.Mint.IsZero() {
		return a, ErrNotInitialized
	}
	return a, nil
}

func (a Account) Pack(data []byte) {
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
}

// Program executes share instructions against a transaction.
type Program struct{}

func loadOwned(tx *ledger.Tx, key ledger.Pubkey) (*ledger.Account, error) {
	acc, err := tx.Account(key)
	if err != nil {
		return nil, err
	}
	if acc.Owner != ledger.TokenProgramID {
		return nil, pkgerrors.Wrapf(ErrInvalidOwner, "account %s", key)
	}
	return acc, nil
}

// InitializeMint allocates a mint with zero supply controlled by authority.
func (Program) InitializeMint(tx *ledger.Tx, mint, authority ledger.Pubkey) error {
	acc, err := tx.Account(mint)
	if err != nil {
		return err
	}
	if !acc.IsUnallocated() {
		return pkgerrors.Wrapf(ErrAlreadyInitialized, "mint %s", mint)
	}
	if err := tx.CreateAccount(mint, ledger.TokenProgramID, MintLen); err != nil {
		return err
	}
	Mint{MintAuthority: authority, Initialized: true}.Pack(acc.Data)
	return nil
}

// InitializeAccount allocates an empty share account for owner.
func (Program) InitializeAccount(tx *ledger.Tx, account, mint, owner ledger.Pubkey) error {
	acc, err := tx.Account(account)
	if err != nil {
		return err
	}
	if !acc.IsUnallocated() {
		return pkgerrors.Wrapf(ErrAlreadyInitialized, "token account %s", account)
	}
	if err := tx.CreateAccount(account, ledger.TokenProgramID, AccountLen); err != nil {
		return err
	}
	Account{Mint: mint, Owner: owner}.Pack(acc.Data)
	return nil
}

func (Program) Supply(tx *ledger.Tx, mint ledger.Pubkey) (uint64, error) {
	acc, err := loadOwned(tx, mint)
	if err != nil {
		return 0, err
	}
	m, err := UnpackMint(acc.Data)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

func (Program) Balance(tx *ledger.Tx, account ledger.Pubkey) (uint64, error) {
	acc, err := loadOwned(tx, account)
	if err != nil {
		return 0, err
	}
	a, err := UnpackAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// MintTo issues amount shares into dest. The authority must be the mint's
// authority and must be a program address of the executing program derived
// from signerSeeds (seeds followed by the bump), so only that program mints.
func (Program) MintTo(tx *ledger.Tx, mint, dest, authority ledger.Pubkey, signerSeeds [][]byte, amount uint64) error {
	mintAcc, err := loadOwned(tx, mint)
	if err != nil {
		return err
	}
	m, err := UnpackMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if m.MintAuthority != authority {
		return ErrInvalidAuthority
	}
	if err := verifySigner(tx.ProgramID, authority, signerSeeds); err != nil {
		return err
	}

	destAcc, err := loadOwned(tx, dest)
	if err != nil {
		return err
	}
	d, err := UnpackAccount(destAcc.Data)
	if err != nil {
		return err
	}
	if d.Mint != mint {
		return ErrMintMismatch
	}

	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return ErrSupplyOverflow
	}
	// an account balance can never exceed supply, so this cannot overflow
	d.Amount += amount
	m.Supply = supply

	m.Pack(mintAcc.Data)
	d.Pack(destAcc.Data)
	return nil
}

// Burn destroys amount shares held by owner in source. The owner must have
// signed the transaction.
func (Program) Burn(tx *ledger.Tx, source, mint, owner ledger.Pubkey, amount uint64) error {
	srcAcc, err := loadOwned(tx, source)
	if err != nil {
		return err
	}
	s, err := UnpackAccount(srcAcc.Data)
	if err != nil {
		return err
	}
	if s.Mint != mint {
		return ErrMintMismatch
	}
	if s.Owner != owner {
		return ErrOwnerMismatch
	}
	if !tx.IsSigner(owner) {
		return pkgerrors.Wrapf(ledger.ErrMissingSignature, "share owner %s", owner)
	}
	if s.Amount < amount {
		return pkgerrors.Wrapf(ErrInsufficientShares, "have %d, burning %d", s.Amount, amount)
	}

	mintAcc, err := loadOwned(tx, mint)
	if err != nil {
		return err
	}
	m, err := UnpackMint(mintAcc.Data)
	if err != nil {
		return err
	}

	s.Amount -= amount
	m.Supply -= amount

	s.Pack(srcAcc.Data)
	m.Pack(mintAcc.Data)
	return nil
}

func verifySigner(programID, authority ledger.Pubkey, signerSeeds [][]byte) error {
	if len(signerSeeds) == 0 || len(signerSeeds[len(signerSeeds)-1]) != 1 {
		return ErrInvalidSignerSeeds
	}
	bump := signerSeeds[len(signerSeeds)-1][0]
	derived, err := ledger.CreateProgramAddress(signerSeeds[:len(signerSeeds)-1], bump, programID)
	if err != nil {
		return err
	}
	if derived != authority {
		return ErrInvalidSignerSeeds
	}
	return nil
}
