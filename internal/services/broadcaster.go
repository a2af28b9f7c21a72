package services

import "solroll-backend/internal/models"

type Broadcaster interface {
	BroadcastBalance(balance *models.BalanceResponse)
	BroadcastSettlement(bet *models.BetSession)
	BroadcastSlot(slot uint64)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBalance(*models.BalanceResponse) {}
func (nopBroadcaster) BroadcastSettlement(*models.BetSession)   {}
func (nopBroadcaster) BroadcastSlot(uint64)                     {}
