package models

import "time"

type TransactionType string

const (
	TransactionTypeAirdrop  TransactionType = "airdrop"
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypeBet      TransactionType = "bet"
	TransactionTypeWin      TransactionType = "win"
	TransactionTypeLoss     TransactionType = "loss"
	TransactionTypeRefund   TransactionType = "refund"
)

// Transaction is a wallet movement shown in a participant's history.
type Transaction struct {
	ID            string          `json:"id" redis:"id"`
	Participant   string          `json:"participant" redis:"participant"`
	Type          TransactionType `json:"type" redis:"type"`
	Amount        uint64          `json:"amount" redis:"amount"`
	BalanceBefore uint64          `json:"balance_before" redis:"balance_before"`
	BalanceAfter  uint64          `json:"balance_after" redis:"balance_after"`
	Shares        uint64          `json:"shares,omitempty" redis:"shares"`
	BetID         string          `json:"bet_id,omitempty" redis:"bet_id,omitempty"`
	Slot          uint64          `json:"slot" redis:"slot"`
	Description   string          `json:"description" redis:"description"`
	CreatedAt     time.Time       `json:"created_at" redis:"created_at"`
}
