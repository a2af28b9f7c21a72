package services

import "time"

const (
	KeyAccount          = "account:%s"
	KeySysvarClock      = "sysvar:clock"
	KeySysvarSlotHashes = "sysvar:slot_hashes"

	KeyUserSession         = "participant:%s:session:%s"
	KeyWalletSeeded        = "participant:%s:seeded"
	KeyBet                 = "bet:%s"
	KeyActiveBets          = "bets:active"
	KeyParticipantActive   = "participant:%s:active_bets"
	KeyParticipantComplete = "participant:%s:completed_bets"
	KeyTransaction         = "transaction:%s"
	KeyParticipantTxs      = "participant:%s:transactions"
	KeyRateLimit           = "ratelimit:%s:%s"

	TTLUserSession = 24 * time.Hour
	TTLBet         = 7 * 24 * time.Hour  // 7 days
	TTLTransaction = 30 * 24 * time.Hour // 30 days

	DefaultRateLimitBets     = 30 // Max 30 commits per minute
	DefaultRateLimitResolves = 60 // Max 60 resolves per minute
	DefaultRateLimitPool     = 20 // Max 20 deposits or withdrawals per minute

	historyLimit = 100
)
