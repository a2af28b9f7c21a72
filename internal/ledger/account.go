package ledger

import (
	"bytes"

	"github.com/pkg/errors"
)

// Account is the unit of state on the ledger. Owner names the only program
// allowed to debit it or rewrite its data.
type Account struct {
	Key      Pubkey `json:"key"`
	Owner    Pubkey `json:"owner"`
	Lamports uint64 `json:"lamports"`
	Data     []byte `json:"data,omitempty"`
}

// NewAccount returns an empty, system-owned account, which is what the ledger
// reports for any key that was never written.
func NewAccount(key Pubkey) *Account {
	return &Account{Key: key, Owner: SystemProgramID}
}

func (a *Account) Clone() Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return c
}

func (a *Account) Equal(b *Account) bool {
	return a.Key == b.Key &&
		a.Owner == b.Owner &&
		a.Lamports == b.Lamports &&
		bytes.Equal(a.Data, b.Data)
}

// IsUnallocated reports whether the account has never been funded or assigned.
func (a *Account) IsUnallocated() bool {
	return a.Owner == SystemProgramID && a.Lamports == 0 && len(a.Data) == 0
}

// RequireOwner is the capability check every program operation runs once on
// entry, over every account it may debit or write.
func RequireOwner(programID Pubkey, accounts ...*Account) error {
	for _, acc := range accounts {
		if acc == nil {
			return ErrAccountNotLoaded
		}
		if acc.Owner != programID {
			return errors.Wrapf(ErrIncorrectProgramID, "account %s owned by %s", acc.Key, acc.Owner)
		}
	}
	return nil
}
