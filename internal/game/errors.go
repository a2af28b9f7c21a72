package game

import "errors"

var (
	ErrInvalidRollUnder = errors.New("game: roll under must be between 2 and 100")
	ErrInvalidAmount    = errors.New("game: invalid stake")
	ErrInvalidRecord    = errors.New("game: malformed game record")
	ErrAlreadyCommitted = errors.New("game: bet already committed")
	ErrAlreadyResolved  = errors.New("game: bet already resolved")
	ErrNotCommitted     = errors.New("game: bet not committed")
	ErrBelowFloor       = errors.New("game: escrow below minimum floor")
)
