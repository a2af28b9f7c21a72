package services

import "github.com/pkg/errors"

var (
	ErrInvalidParticipant = errors.New("invalid participant key")
	ErrBetNotFound        = errors.New("bet not found")
	ErrBetResolved        = errors.New("bet already resolved")
	ErrBetNotReady        = errors.New("bet cannot resolve before the next slot")
	ErrStakeTooSmall      = errors.New("stake below minimum")
	ErrHashUnavailable    = errors.New("slot hash unavailable")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
