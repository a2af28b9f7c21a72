package ledger

import "errors"

var (
	ErrAccountNotLoaded    = errors.New("account not loaded in transaction")
	ErrAccountInUse        = errors.New("account already allocated")
	ErrIncorrectProgramID  = errors.New("account not owned by executing program")
	ErrInsufficientFunds   = errors.New("insufficient lamports")
	ErrLamportsOverflow    = errors.New("lamports overflow")
	ErrSendSameToRecv      = errors.New("source and destination are the same account")
	ErrMissingSignature    = errors.New("missing required signature")
	ErrMaxSeedLength       = errors.New("seed exceeds maximum length")
	ErrNoViableBump        = errors.New("no viable bump seed for program address")
	ErrInvalidAccountOwner = errors.New("system transfer source is not a system account")
)
