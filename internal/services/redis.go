package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"solroll-backend/internal/config"
	"solroll-backend/internal/ledger"
	"solroll-backend/internal/models"
)

const maxTxRetries = 16

var ErrTxConflict = errors.New("ledger transaction kept conflicting, try again")

type RedisService struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return NewRedisServiceWithClient(client), nil
}

func NewRedisServiceWithClient(client *redis.Client) *RedisService {
	return &RedisService{
		client: client,
		ctx:    context.Background(),
	}
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func accountKey(key ledger.Pubkey) string {
	return fmt.Sprintf(KeyAccount, key)
}

// Execute runs fn on a transaction over the given accounts and commits every
// account fn changed in a single MULTI. The accounts and the sysvars are
// WATCHed: if another writer touches one before the commit, fn runs again on
// fresh state. If fn returns an error nothing is written.
func (s *RedisService) Execute(ctx context.Context, programID ledger.Pubkey, keys, signers []ledger.Pubkey, fn func(tx *ledger.Tx) error) error {
	return s.ExecuteQueued(ctx, programID, keys, signers, fn, nil)
}

// ExecuteQueued is Execute with queue's writes added to the same MULTI once fn
// succeeds, so service records land together with the accounts they describe.
func (s *RedisService) ExecuteQueued(ctx context.Context, programID ledger.Pubkey, keys, signers []ledger.Pubkey,
	fn func(tx *ledger.Tx) error, queue func(pipe redis.Pipeliner) error) error {
	keys = uniqueKeys(keys)
	watched := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		watched = append(watched, accountKey(k))
	}
	watched = append(watched, KeySysvarClock, KeySysvarSlotHashes)

	txf := func(rtx *redis.Tx) error {
		accounts, err := loadAccounts(ctx, rtx, keys)
		if err != nil {
			return err
		}
		sysvars, err := loadSysvars(ctx, rtx)
		if err != nil {
			return err
		}

		tx := ledger.NewTx(programID, sysvars, accounts, signers...)
		if err := fn(tx); err != nil {
			return err
		}

		dirty := tx.Dirty()
		if len(dirty) == 0 && queue == nil {
			return nil
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, acc := range dirty {
				data, err := json.Marshal(acc)
				if err != nil {
					return errors.Wrapf(err, "marshal account %s", acc.Key)
				}
				pipe.Set(ctx, accountKey(acc.Key), data, 0)
			}
			if queue != nil {
				return queue(pipe)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, watched...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

func uniqueKeys(keys []ledger.Pubkey) []ledger.Pubkey {
	seen := make(map[ledger.Pubkey]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func loadAccounts(ctx context.Context, c redis.Cmdable, keys []ledger.Pubkey) ([]*ledger.Account, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = accountKey(k)
	}
	vals, err := c.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load accounts")
	}

	out := make([]*ledger.Account, len(keys))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			out[i] = ledger.NewAccount(keys[i])
			continue
		}
		var acc ledger.Account
		if err := json.Unmarshal([]byte(str), &acc); err != nil {
			return nil, errors.Wrapf(err, "unmarshal account %s", keys[i])
		}
		out[i] = &acc
	}
	return out, nil
}

func loadSysvars(ctx context.Context, c redis.Cmdable) (ledger.Sysvars, error) {
	var sv ledger.Sysvars
	slot, err := c.Get(ctx, KeySysvarClock).Uint64()
	if err != nil && err != redis.Nil {
		return sv, errors.Wrap(err, "load clock")
	}
	hashes, err := c.Get(ctx, KeySysvarSlotHashes).Bytes()
	if err != nil && err != redis.Nil {
		return sv, errors.Wrap(err, "load slot hashes")
	}
	sv.Slot = slot
	sv.SlotHashes = hashes
	return sv, nil
}

// GetAccounts reads accounts outside any transaction. Keys never written come
// back as empty system accounts.
func (s *RedisService) GetAccounts(ctx context.Context, keys ...ledger.Pubkey) ([]*ledger.Account, error) {
	return loadAccounts(ctx, s.client, keys)
}

func (s *RedisService) GetSysvars(ctx context.Context) (ledger.Sysvars, error) {
	return loadSysvars(ctx, s.client)
}

// UpdateSysvars applies fn to the clock and slot hashes atomically.
func (s *RedisService) UpdateSysvars(ctx context.Context, fn func(sv *ledger.Sysvars) error) (ledger.Sysvars, error) {
	var out ledger.Sysvars
	txf := func(rtx *redis.Tx) error {
		sv, err := loadSysvars(ctx, rtx)
		if err != nil {
			return err
		}
		if err := fn(&sv); err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, KeySysvarClock, sv.Slot, 0)
			pipe.Set(ctx, KeySysvarSlotHashes, sv.SlotHashes, 0)
			return nil
		})
		out = sv
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, KeySysvarClock, KeySysvarSlotHashes)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, ErrTxConflict
}

// MarkWalletSeeded reports true exactly once per participant.
func (s *RedisService) MarkWalletSeeded(participant string) (bool, error) {
	key := fmt.Sprintf(KeyWalletSeeded, participant)
	return s.client.SetNX(s.ctx, key, time.Now().Unix(), 0).Result()
}

func (s *RedisService) StoreUserSession(session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, session.Participant, session.SessionID)

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return s.client.Set(s.ctx, key, data, expiry).Err()
}

func (s *RedisService) GetUserSession(participant, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, participant, sessionID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	err = json.Unmarshal([]byte(data), &session)
	return &session, err
}

func (s *RedisService) DeleteUserSession(participant, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, participant, sessionID)
	return s.client.Del(s.ctx, key).Err()
}

func (s *RedisService) SaveBet(bet *models.BetSession) error {
	pipe := s.client.TxPipeline()
	if err := s.queueSaveBet(pipe, bet); err != nil {
		return err
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("failed to save bet: %v", err)
	}
	return nil
}

func (s *RedisService) queueSaveBet(pipe redis.Pipeliner, bet *models.BetSession) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to marshal bet: %v", err)
	}

	pipe.Set(s.ctx, fmt.Sprintf(KeyBet, bet.ID), data, TTLBet)
	if !bet.IsResolved() {
		activeKey := fmt.Sprintf(KeyParticipantActive, bet.Participant)
		pipe.SAdd(s.ctx, activeKey, bet.ID)
		pipe.Expire(s.ctx, activeKey, TTLBet)
		pipe.SAdd(s.ctx, KeyActiveBets, bet.ID)
	}
	return nil
}

func (s *RedisService) GetBet(betID string) (*models.BetSession, error) {
	data, err := s.client.Get(s.ctx, fmt.Sprintf(KeyBet, betID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrapf(ErrBetNotFound, "bet %s", betID)
		}
		return nil, fmt.Errorf("failed to get bet: %v", err)
	}

	var bet models.BetSession
	if err := json.Unmarshal([]byte(data), &bet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bet: %v", err)
	}
	return &bet, nil
}

func (s *RedisService) GetActiveBetIDs(participant string) ([]string, error) {
	ids, err := s.client.SMembers(s.ctx, fmt.Sprintf(KeyParticipantActive, participant)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active bets: %v", err)
	}
	return ids, nil
}

// GetAllActiveBetIDs lists every unresolved bet across participants.
func (s *RedisService) GetAllActiveBetIDs() ([]string, error) {
	ids, err := s.client.SMembers(s.ctx, KeyActiveBets).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active bets: %v", err)
	}
	return ids, nil
}

// CompleteBet stores the resolved bet and moves it from the active sets to
// the participant's history, which keeps the last 100 bets.
func (s *RedisService) CompleteBet(bet *models.BetSession) error {
	pipe := s.client.TxPipeline()
	if err := s.queueCompleteBet(pipe, bet); err != nil {
		return err
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("failed to complete bet: %v", err)
	}
	return nil
}

func (s *RedisService) queueCompleteBet(pipe redis.Pipeliner, bet *models.BetSession) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to marshal bet: %v", err)
	}

	completedKey := fmt.Sprintf(KeyParticipantComplete, bet.Participant)
	pipe.Set(s.ctx, fmt.Sprintf(KeyBet, bet.ID), data, TTLBet)
	pipe.SRem(s.ctx, fmt.Sprintf(KeyParticipantActive, bet.Participant), bet.ID)
	pipe.SRem(s.ctx, KeyActiveBets, bet.ID)
	pipe.ZAdd(s.ctx, completedKey, redis.Z{
		Score:  float64(bet.ResolvedAt),
		Member: bet.ID,
	})
	pipe.ZRemRangeByRank(s.ctx, completedKey, 0, -(historyLimit + 1))
	return nil
}

func (s *RedisService) GetBetHistory(participant string, limit int64) ([]*models.BetSession, error) {
	if limit <= 0 || limit > historyLimit {
		limit = 50
	}

	completedKey := fmt.Sprintf(KeyParticipantComplete, participant)
	ids, err := s.client.ZRevRange(s.ctx, completedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bet IDs: %v", err)
	}
	return s.BulkGetBets(ids)
}

func (s *RedisService) BulkGetBets(betIDs []string) ([]*models.BetSession, error) {
	if len(betIDs) == 0 {
		return []*models.BetSession{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(betIDs))
	for i, id := range betIDs {
		cmds[i] = pipe.Get(s.ctx, fmt.Sprintf(KeyBet, id))
	}

	_, err := pipe.Exec(s.ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	bets := make([]*models.BetSession, 0, len(betIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var bet models.BetSession
		if err := json.Unmarshal([]byte(data), &bet); err != nil {
			continue
		}
		bets = append(bets, &bet)
	}
	return bets, nil
}

func (s *RedisService) SaveTransaction(tx *models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}

	if err := s.client.Set(s.ctx, fmt.Sprintf(KeyTransaction, tx.ID), data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("failed to save transaction: %v", err)
	}

	userTxKey := fmt.Sprintf(KeyParticipantTxs, tx.Participant)
	if err := s.client.ZAdd(s.ctx, userTxKey, redis.Z{
		Score:  float64(tx.CreatedAt.UnixMilli()),
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to participant transactions: %v", err)
	}

	// Keep only last 100 transactions
	s.client.ZRemRangeByRank(s.ctx, userTxKey, 0, -(historyLimit + 1))

	return nil
}

func (s *RedisService) GetTransactions(participant string, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > historyLimit {
		limit = 50
	}

	userTxKey := fmt.Sprintf(KeyParticipantTxs, participant)
	txIDs, err := s.client.ZRevRange(s.ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %v", err)
	}

	transactions := make([]*models.Transaction, 0, len(txIDs))
	for _, txID := range txIDs {
		data, err := s.client.Get(s.ctx, fmt.Sprintf(KeyTransaction, txID)).Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (s *RedisService) CheckRateLimit(participant, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, participant, action)

	count, err := rateLimitScript.Run(s.ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}
