package models

import "github.com/shopspring/decimal"

// BalanceResponse is everything a participant holds on the ledger.
type BalanceResponse struct {
	Participant   string `json:"participant"`
	Wallet        uint64 `json:"wallet"`
	DepositEscrow uint64 `json:"deposit_escrow"`
	Shares        uint64 `json:"shares"`
	// ShareValue is what Shares would withdraw at the current rate.
	ShareValue uint64 `json:"share_value"`
	InBets     uint64 `json:"in_bets"`
}

type PoolStats struct {
	Pool        string          `json:"pool"`
	Mint        string          `json:"mint"`
	Balance     uint64          `json:"balance"`
	ShareSupply uint64          `json:"share_supply"`
	SharePrice  decimal.Decimal `json:"share_price"`
	MaxProfit   uint64          `json:"max_profit"`
	Slot        uint64          `json:"slot"`
}

type AirdropRequest struct {
	Amount uint64 `json:"amount" binding:"required,gt=0"`
}

type DepositRequest struct {
	Amount uint64 `json:"amount" binding:"required,gt=0"`
}

type WithdrawRequest struct {
	Shares uint64 `json:"shares" binding:"required,gt=0"`
}
