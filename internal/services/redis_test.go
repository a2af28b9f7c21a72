package services_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"solroll-backend/internal/hashutil"
	"solroll-backend/internal/ledger"
	"solroll-backend/internal/models"
	"solroll-backend/internal/services"
)

func setupTestRedis(t *testing.T) (*services.RedisService, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisService := services.NewRedisServiceWithClient(client)
	t.Cleanup(func() { redisService.Close() })
	return redisService, mr
}

var testProgram = ledger.NewPubkeyFromSeed("redis-test-program")

const testSlotSecret = "test-slot-secret"

func TestExecuteCommitsOnlyOnSuccess(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	ctx := context.Background()
	alice := ledger.NewPubkeyFromSeed("alice")

	boom := errors.New("boom")
	err := redisService.Execute(ctx, testProgram, []ledger.Pubkey{alice}, nil, func(tx *ledger.Tx) error {
		require.NoError(t, tx.Credit(alice, 500))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	accs, err := redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, accs[0].Lamports)

	err = redisService.Execute(ctx, testProgram, []ledger.Pubkey{alice, alice}, nil, func(tx *ledger.Tx) error {
		return tx.Credit(alice, 500)
	})
	require.NoError(t, err)

	accs, err = redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), accs[0].Lamports)
	assert.Equal(t, alice, accs[0].Key)
}

func TestExecuteRetriesOnConflict(t *testing.T) {
	redisService, mr := setupTestRedis(t)
	ctx := context.Background()
	alice := ledger.NewPubkeyFromSeed("alice")

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	other.Set(ctx, "account:"+alice.String(), `{"key":"`+alice.String()+`","owner":"11111111111111111111111111111111","lamports":100}`, 0)

	attempts := 0
	err := redisService.Execute(ctx, testProgram, []ledger.Pubkey{alice}, nil, func(tx *ledger.Tx) error {
		attempts++
		if attempts == 1 {
			// a concurrent writer lands between read and commit
			other.Set(ctx, "account:"+alice.String(), `{"key":"`+alice.String()+`","owner":"11111111111111111111111111111111","lamports":200}`, 0)
		}
		return tx.Credit(alice, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	accs, err := redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(201), accs[0].Lamports)
}

func TestExecuteWatchesTheClock(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	ctx := context.Background()
	alice := ledger.NewPubkeyFromSeed("alice")
	producer := services.NewSlotProducer(redisService, time.Second, testSlotSecret, quietLogger())

	var slots []uint64
	err := redisService.Execute(ctx, testProgram, []ledger.Pubkey{alice}, nil, func(tx *ledger.Tx) error {
		slots = append(slots, tx.Sysvars.Slot)
		if len(slots) == 1 {
			// the slot closes between read and commit
			_, err := producer.Step(ctx)
			require.NoError(t, err)
		}
		return tx.Credit(alice, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, slots)

	accs, err := redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), accs[0].Lamports)
}

func TestExecuteQueuedWritesCommitTogether(t *testing.T) {
	redisService, mr := setupTestRedis(t)
	ctx := context.Background()
	alice := ledger.NewPubkeyFromSeed("alice")

	boom := errors.New("boom")
	err := redisService.ExecuteQueued(ctx, testProgram, []ledger.Pubkey{alice}, nil, func(tx *ledger.Tx) error {
		return tx.Credit(alice, 500)
	}, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "side", "written", 0)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("side"))
	accs, err := redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, accs[0].Lamports)

	err = redisService.ExecuteQueued(ctx, testProgram, []ledger.Pubkey{alice}, nil, func(tx *ledger.Tx) error {
		return tx.Credit(alice, 500)
	}, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "side", "written", 0)
		return nil
	})
	require.NoError(t, err)
	got, err := mr.Get("side")
	require.NoError(t, err)
	assert.Equal(t, "written", got)
	accs, err = redisService.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), accs[0].Lamports)
}

func TestSlotProducerChainsHashes(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	ctx := context.Background()
	producer := services.NewSlotProducer(redisService, time.Second, testSlotSecret, quietLogger())

	for i := 1; i <= 3; i++ {
		slot, err := producer.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), slot)
	}

	sv, err := redisService.GetSysvars(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sv.Slot)

	hashes, err := hashutil.DecodeSlotHashes(sv.SlotHashes)
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	assert.Equal(t, uint64(2), hashes[0].Slot, "the current slot has no hash yet")

	key := services.SlotKey(testSlotSecret)
	h0 := services.NextSlotHash(key, hashutil.Hash{}, 0)
	h1 := services.NextSlotHash(key, h0, 1)
	assert.Equal(t, h0, hashes[2].Hash)
	assert.Equal(t, h1, hashes[1].Hash)

	_, ok := hashutil.Lookup(sv.SlotHashes, 3)
	assert.False(t, ok)
}

func TestSlotHashNeedsTheSecret(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	ctx := context.Background()
	producer := services.NewSlotProducer(redisService, time.Second, testSlotSecret, quietLogger())

	_, err := producer.Step(ctx)
	require.NoError(t, err)
	sv, err := redisService.GetSysvars(ctx)
	require.NoError(t, err)
	published, ok := hashutil.Lookup(sv.SlotHashes, 0)
	require.True(t, ok)

	// everything public after slot 0 closes: its hash and the current slot
	var unkeyed [hashutil.HashLen + 8]byte
	copy(unkeyed[:], published[:])
	binary.LittleEndian.PutUint64(unkeyed[hashutil.HashLen:], sv.Slot)
	guesses := []hashutil.Hash{
		blake3.Sum256(unkeyed[:]),
		services.NextSlotHash(services.SlotKey(""), published, sv.Slot),
		services.NextSlotHash(services.SlotKey("another-secret"), published, sv.Slot),
	}

	_, err = producer.Step(ctx)
	require.NoError(t, err)
	sv, err = redisService.GetSysvars(ctx)
	require.NoError(t, err)
	next, ok := hashutil.Lookup(sv.SlotHashes, 1)
	require.True(t, ok)

	for _, guess := range guesses {
		assert.NotEqual(t, guess, next)
	}
	assert.Equal(t, services.NextSlotHash(services.SlotKey(testSlotSecret), published, 1), next)

	other, _ := setupTestRedis(t)
	_, err = services.NewSlotProducer(other, time.Second, "another-secret", quietLogger()).Step(ctx)
	require.NoError(t, err)
	otherSv, err := other.GetSysvars(ctx)
	require.NoError(t, err)
	otherHash, ok := hashutil.Lookup(otherSv.SlotHashes, 0)
	require.True(t, ok)
	assert.NotEqual(t, published, otherHash)
}

func TestBetStorage(t *testing.T) {
	redisService, _ := setupTestRedis(t)

	bet := &models.BetSession{
		ID:          "bet-1",
		Participant: "alice",
		Stake:       5000,
		Status:      models.BetStatusCommitted,
	}
	require.NoError(t, redisService.SaveBet(bet))

	ids, err := redisService.GetActiveBetIDs("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bet-1"}, ids)

	bet.Status = models.BetStatusResolved
	bet.ResolvedAt = time.Now().Unix()
	require.NoError(t, redisService.CompleteBet(bet))

	ids, err = redisService.GetAllActiveBetIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	history, err := redisService.GetBetHistory("alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsResolved())

	_, err = redisService.GetBet("missing")
	assert.ErrorIs(t, err, services.ErrBetNotFound)
}

func TestTransactionsKeepNewestFirst(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, redisService.SaveTransaction(&models.Transaction{
			ID:          models.GenerateTransactionID(),
			Participant: "alice",
			Type:        models.TransactionTypeAirdrop,
			Amount:      uint64(i + 1),
			CreatedAt:   start.Add(time.Duration(i) * time.Second),
		}))
	}

	txs, err := redisService.GetTransactions("alice", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, uint64(3), txs[0].Amount)
	assert.Equal(t, uint64(2), txs[1].Amount)
}

func TestCheckRateLimit(t *testing.T) {
	redisService, mr := setupTestRedis(t)

	for i := 0; i < 2; i++ {
		allowed, err := redisService.CheckRateLimit("alice", "bet", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := redisService.CheckRateLimit("alice", "bet", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(time.Minute + time.Second)
	allowed, err = redisService.CheckRateLimit("alice", "bet", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUserSessions(t *testing.T) {
	redisService, _ := setupTestRedis(t)
	session := &models.UserSession{Participant: "alice", SessionID: "s1", CreatedAt: time.Now()}
	require.NoError(t, redisService.StoreUserSession(session, time.Hour))

	got, err := redisService.GetUserSession("alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)

	require.NoError(t, redisService.DeleteUserSession("alice", "s1"))
	_, err = redisService.GetUserSession("alice", "s1")
	assert.ErrorIs(t, err, redis.Nil)
}
