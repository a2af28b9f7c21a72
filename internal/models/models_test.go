package models_test

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solroll-backend/internal/game"
	"solroll-backend/internal/models"
)

func TestModels(t *testing.T) {
	id := models.GenerateTransactionID()
	assert.Regexp(t, `^tx_\d{8}_\d+$`, id)

	key, err := models.GenerateParticipantKey()
	require.NoError(t, err)
	raw, err := base58.Decode(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := models.GenerateParticipantKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	bet := &models.BetSession{Status: models.BetStatusCommitted}
	assert.False(t, bet.IsResolved())
	bet.Status = models.BetStatusResolved
	assert.True(t, bet.IsResolved())
}

func TestSettlementTransactionType(t *testing.T) {
	assert.Equal(t, models.TransactionTypeWin, models.SettlementTransactionType(game.KindWin))
	assert.Equal(t, models.TransactionTypeLoss, models.SettlementTransactionType(game.KindLoss))
	for _, k := range []game.SettlementKind{
		game.KindRefundMismatch, game.KindRefundStale, game.KindRefundHistory,
		game.KindRefundCap, game.KindStakeReturned,
	} {
		assert.Equal(t, models.TransactionTypeRefund, models.SettlementTransactionType(k), k)
	}
}
