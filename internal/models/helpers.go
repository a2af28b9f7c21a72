package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"solroll-backend/internal/game"
)

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

// GenerateParticipantKey returns a fresh random base58 participant key.
func GenerateParticipantKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate participant key: %v", err)
	}
	return base58.Encode(key), nil
}

// SettlementTransactionType maps a settled bet to its history entry type.
// A win the treasury could not cover only returns the stake.
func SettlementTransactionType(kind game.SettlementKind) TransactionType {
	switch kind {
	case game.KindWin:
		return TransactionTypeWin
	case game.KindLoss:
		return TransactionTypeLoss
	default:
		return TransactionTypeRefund
	}
}
