package ledger

import (
	"math/bits"
	"sort"

	"github.com/pkg/errors"
)

// Sysvars is the read-only platform state visible to a transaction.
type Sysvars struct {
	Slot       uint64
	SlotHashes []byte
}

// Tx is the transactional context one operation runs against. It holds a
// private copy of every account the operation may touch; the caller persists
// Dirty() only when the operation returns without error, so a failed
// operation leaves storage byte-for-byte unchanged.
type Tx struct {
	ProgramID Pubkey
	Sysvars   Sysvars

	signers  map[Pubkey]bool
	accounts map[Pubkey]*Account
	snapshot map[Pubkey]Account
}

func NewTx(programID Pubkey, sysvars Sysvars, accounts []*Account, signers ...Pubkey) *Tx {
	tx := &Tx{
		ProgramID: programID,
		Sysvars:   sysvars,
		signers:   make(map[Pubkey]bool, len(signers)),
		accounts:  make(map[Pubkey]*Account, len(accounts)),
		snapshot:  make(map[Pubkey]Account, len(accounts)),
	}
	for _, acc := range accounts {
		c := acc.Clone()
		tx.accounts[acc.Key] = &c
		tx.snapshot[acc.Key] = acc.Clone()
	}
	for _, s := range signers {
		tx.signers[s] = true
	}
	return tx
}

// Account returns the live, mutable view of a loaded account.
func (tx *Tx) Account(key Pubkey) (*Account, error) {
	acc, ok := tx.accounts[key]
	if !ok {
		return nil, errors.Wrapf(ErrAccountNotLoaded, "account %s", key)
	}
	return acc, nil
}

func (tx *Tx) IsSigner(key Pubkey) bool {
	return tx.signers[key]
}

// Transfer moves lamports between two loaded accounts. It never creates or
// destroys value: either both sides change by amount or neither does.
func (tx *Tx) Transfer(from, to Pubkey, amount uint64) error {
	if from == to {
		return ErrSendSameToRecv
	}
	src, err := tx.Account(from)
	if err != nil {
		return err
	}
	dst, err := tx.Account(to)
	if err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if src.Lamports < amount {
		return errors.Wrapf(ErrInsufficientFunds, "account %s has %d, needs %d", from, src.Lamports, amount)
	}
	sum, carry := bits.Add64(dst.Lamports, amount, 0)
	if carry != 0 {
		return errors.Wrapf(ErrLamportsOverflow, "account %s", to)
	}
	src.Lamports -= amount
	dst.Lamports = sum
	return nil
}

// SystemTransfer is the platform's wallet transfer: the source must be a
// plain system account that signed the transaction.
func (tx *Tx) SystemTransfer(from, to Pubkey, amount uint64) error {
	src, err := tx.Account(from)
	if err != nil {
		return err
	}
	if src.Owner != SystemProgramID || len(src.Data) != 0 {
		return errors.Wrapf(ErrInvalidAccountOwner, "account %s", from)
	}
	if !tx.IsSigner(from) {
		return errors.Wrapf(ErrMissingSignature, "account %s", from)
	}
	return tx.Transfer(from, to, amount)
}

// Credit adds lamports from outside the ledger, e.g. a faucet. It is the only
// way value enters a transaction.
func (tx *Tx) Credit(to Pubkey, amount uint64) error {
	dst, err := tx.Account(to)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(dst.Lamports, amount, 0)
	if carry != 0 {
		return errors.Wrapf(ErrLamportsOverflow, "account %s", to)
	}
	dst.Lamports = sum
	return nil
}

// CreateAccount assigns an unallocated key to owner with space zeroed bytes.
func (tx *Tx) CreateAccount(key, owner Pubkey, space int) error {
	acc, err := tx.Account(key)
	if err != nil {
		return err
	}
	if !acc.IsUnallocated() {
		return errors.Wrapf(ErrAccountInUse, "account %s", key)
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	return nil
}

// Accounts returns every loaded account ordered by key.
func (tx *Tx) Accounts() []*Account {
	out := make([]*Account, 0, len(tx.accounts))
	for _, acc := range tx.accounts {
		out = append(out, acc)
	}
	sortByKey(out)
	return out
}

// Dirty returns the accounts whose state differs from the snapshot, ordered
// by key so commits are deterministic.
func (tx *Tx) Dirty() []*Account {
	var out []*Account
	for key, acc := range tx.accounts {
		orig := tx.snapshot[key]
		if !acc.Equal(&orig) {
			out = append(out, acc)
		}
	}
	sortByKey(out)
	return out
}

func sortByKey(accs []*Account) {
	sort.Slice(accs, func(i, j int) bool {
		return string(accs[i].Key[:]) < string(accs[j].Key[:])
	})
}

// Lamports sums the balances of every loaded account.
func (tx *Tx) Lamports() (uint64, error) {
	var total uint64
	for _, acc := range tx.accounts {
		var carry uint64
		total, carry = bits.Add64(total, acc.Lamports, 0)
		if carry != 0 {
			return 0, ErrLamportsOverflow
		}
	}
	return total, nil
}
