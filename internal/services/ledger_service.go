package services

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/config"
	"solroll-backend/internal/custody"
	"solroll-backend/internal/game"
	"solroll-backend/internal/hashutil"
	"solroll-backend/internal/ledger"
	"solroll-backend/internal/models"
	"solroll-backend/internal/processor"
	"solroll-backend/internal/token"
)

var (
	seedPool          = []byte("pool")
	seedShareMint     = []byte("share_mint")
	seedShares        = []byte("shares")
	seedDepositEscrow = []byte("deposit")
	seedBetRecord     = []byte("record")
	seedBetEscrow     = []byte("escrow")
)

// LedgerService runs participant requests as ledger transactions against the
// pool, the share mint and per-bet accounts stored in Redis.
type LedgerService struct {
	redis       *RedisService
	processor   *processor.Processor
	tokens      token.Program
	params      game.Params
	programID   ledger.Pubkey
	pool        ledger.Pubkey
	mint        ledger.Pubkey
	minStake    uint64
	seedBalance uint64
	broadcaster Broadcaster
	log         logrus.FieldLogger
}

func GameParams(cfg config.GameConfig) game.Params {
	return game.Params{
		HouseEdge:      cfg.HouseEdge,
		MaxProfitRatio: cfg.MaxProfitRatio,
		MinEscrow:      cfg.MinEscrow,
		Hasher:         hashutil.Hasher{K0: cfg.HashKey0, K1: cfg.HashKey1},
	}
}

func NewLedgerService(redisService *RedisService, cfg *config.Config, log logrus.FieldLogger) *LedgerService {
	programID := ledger.NewPubkeyFromSeed(cfg.ProgramSeed)
	params := GameParams(cfg.Game)
	tokens := token.Program{}

	return &LedgerService{
		redis: redisService,
		processor: processor.New(
			custody.New(programID, tokens),
			game.NewEngine(programID, params),
			log,
		),
		tokens:      tokens,
		params:      params,
		programID:   programID,
		pool:        ledger.MustFindProgramAddress([][]byte{seedPool}, programID),
		mint:        ledger.MustFindProgramAddress([][]byte{seedShareMint}, programID),
		minStake:    cfg.Game.MinStake,
		seedBalance: cfg.StartingBalance,
		broadcaster: nopBroadcaster{},
		log:         log,
	}
}

func (ls *LedgerService) SetBroadcaster(b Broadcaster) {
	ls.broadcaster = b
}

func (ls *LedgerService) ProgramID() ledger.Pubkey { return ls.programID }
func (ls *LedgerService) Pool() ledger.Pubkey      { return ls.pool }
func (ls *LedgerService) Mint() ledger.Pubkey      { return ls.mint }
func (ls *LedgerService) Params() game.Params      { return ls.params }

func (ls *LedgerService) ShareAccount(participant ledger.Pubkey) ledger.Pubkey {
	return ledger.MustFindProgramAddress([][]byte{seedShares, participant[:]}, ls.programID)
}

func (ls *LedgerService) DepositEscrow(participant ledger.Pubkey) ledger.Pubkey {
	return ledger.MustFindProgramAddress([][]byte{seedDepositEscrow, participant[:]}, ls.programID)
}

func (ls *LedgerService) betAccounts(id uuid.UUID) (record, escrow ledger.Pubkey) {
	record = ledger.MustFindProgramAddress([][]byte{seedBetRecord, id[:]}, ls.programID)
	escrow = ledger.MustFindProgramAddress([][]byte{seedBetEscrow, id[:]}, ls.programID)
	return record, escrow
}

func parseParticipant(participant string) (ledger.Pubkey, error) {
	pk, err := ledger.ParsePubkey(participant)
	if err != nil {
		return pk, errors.Wrap(ErrInvalidParticipant, err.Error())
	}
	return pk, nil
}

// InitializePool assigns the pool account to the program and creates the
// share mint. It is safe to call on every start.
func (ls *LedgerService) InitializePool(ctx context.Context) error {
	authority, _, err := ledger.FindProgramAddress(custody.MintAuthoritySeeds(ls.pool), ls.programID)
	if err != nil {
		return err
	}

	return ls.redis.Execute(ctx, ls.programID, []ledger.Pubkey{ls.pool, ls.mint}, nil, func(tx *ledger.Tx) error {
		pool, err := tx.Account(ls.pool)
		if err != nil {
			return err
		}
		if pool.Owner != ls.programID {
			if err := tx.CreateAccount(ls.pool, ls.programID, 0); err != nil {
				return errors.Wrap(err, "assign pool")
			}
		}
		mint, err := tx.Account(ls.mint)
		if err != nil {
			return err
		}
		if mint.IsUnallocated() {
			return ls.tokens.InitializeMint(tx, ls.mint, authority)
		}
		return nil
	})
}

// EnsureWallet funds a participant's wallet with the starting balance the
// first time the participant is seen.
func (ls *LedgerService) EnsureWallet(ctx context.Context, participant string) error {
	if ls.seedBalance == 0 {
		return nil
	}
	if _, err := parseParticipant(participant); err != nil {
		return err
	}
	fresh, err := ls.redis.MarkWalletSeeded(participant)
	if err != nil {
		return errors.Wrap(err, "mark wallet seeded")
	}
	if !fresh {
		return nil
	}
	_, err = ls.credit(ctx, participant, ls.seedBalance, "Starting balance")
	return err
}

// Airdrop credits a wallet from outside the ledger.
func (ls *LedgerService) Airdrop(ctx context.Context, participant string, amount uint64) (*models.Transaction, error) {
	return ls.credit(ctx, participant, amount, "Airdrop")
}

func (ls *LedgerService) credit(ctx context.Context, participant string, amount uint64, description string) (*models.Transaction, error) {
	wallet, err := parseParticipant(participant)
	if err != nil {
		return nil, err
	}

	var before, after, slot uint64
	err = ls.redis.Execute(ctx, ls.programID, []ledger.Pubkey{wallet}, nil, func(tx *ledger.Tx) error {
		acc, err := tx.Account(wallet)
		if err != nil {
			return err
		}
		before, slot = acc.Lamports, tx.Sysvars.Slot
		if err := tx.Credit(wallet, amount); err != nil {
			return err
		}
		after = acc.Lamports
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ls.recordTransaction(participant, models.TransactionTypeAirdrop, amount, before, after, 0, "", slot, description), nil
}

// Deposit moves amount from the participant's wallet through their deposit
// escrow into the pool and mints shares for it.
func (ls *LedgerService) Deposit(ctx context.Context, participant string, amount uint64) (*custody.DepositResult, error) {
	wallet, err := parseParticipant(participant)
	if err != nil {
		return nil, err
	}
	if err := ls.EnsureWallet(ctx, participant); err != nil {
		return nil, err
	}
	escrow := ls.DepositEscrow(wallet)
	shares := ls.ShareAccount(wallet)

	var res *processor.Result
	var before, after, slot uint64
	keys := []ledger.Pubkey{wallet, escrow, ls.pool, ls.mint, shares}
	err = ls.redis.Execute(ctx, ls.programID, keys, []ledger.Pubkey{wallet}, func(tx *ledger.Tx) error {
		acc, err := tx.Account(wallet)
		if err != nil {
			return err
		}
		before, slot = acc.Lamports, tx.Sysvars.Slot

		if err := ls.ensureProgramAccount(tx, escrow, 0); err != nil {
			return err
		}
		if err := ls.ensureShareAccount(tx, shares, wallet); err != nil {
			return err
		}
		if err := tx.SystemTransfer(wallet, escrow, amount); err != nil {
			return err
		}
		res, err = ls.processor.Process(tx, processor.Instruction{
			Op:       processor.OpDeposit,
			Amount:   amount,
			Accounts: keys,
		})
		after = acc.Lamports
		return err
	})
	if err != nil {
		return nil, err
	}

	ls.log.WithFields(logrus.Fields{
		"participant": participant,
		"amount":      amount,
		"shares":      res.Deposit.SharesMinted,
	}).Info("Pool deposit")
	ls.recordTransaction(participant, models.TransactionTypeDeposit, amount, before, after, res.Deposit.SharesMinted, "", slot,
		"Deposit into pool")
	ls.pushBalance(ctx, participant)
	return res.Deposit, nil
}

// Withdraw burns shares and pays their value into the participant's wallet.
func (ls *LedgerService) Withdraw(ctx context.Context, participant string, shareAmount uint64) (*custody.WithdrawResult, error) {
	wallet, err := parseParticipant(participant)
	if err != nil {
		return nil, err
	}
	shares := ls.ShareAccount(wallet)

	var res *processor.Result
	var before, after, slot uint64
	keys := []ledger.Pubkey{wallet, ls.pool, ls.mint, shares}
	err = ls.redis.Execute(ctx, ls.programID, keys, []ledger.Pubkey{wallet}, func(tx *ledger.Tx) error {
		acc, err := tx.Account(wallet)
		if err != nil {
			return err
		}
		before, slot = acc.Lamports, tx.Sysvars.Slot
		res, err = ls.processor.Process(tx, processor.Instruction{
			Op:       processor.OpWithdraw,
			Amount:   shareAmount,
			Accounts: keys,
		})
		after = acc.Lamports
		return err
	})
	if err != nil {
		return nil, err
	}

	ls.log.WithFields(logrus.Fields{
		"participant": participant,
		"shares":      shareAmount,
		"value":       res.Withdraw.Value,
	}).Info("Pool withdrawal")
	ls.recordTransaction(participant, models.TransactionTypeWithdraw, res.Withdraw.Value, before, after, shareAmount, "", slot,
		"Withdraw from pool")
	ls.pushBalance(ctx, participant)
	return res.Withdraw, nil
}

func (ls *LedgerService) ensureProgramAccount(tx *ledger.Tx, key ledger.Pubkey, space int) error {
	acc, err := tx.Account(key)
	if err != nil {
		return err
	}
	if acc.Owner == ls.programID {
		return nil
	}
	return tx.CreateAccount(key, ls.programID, space)
}

func (ls *LedgerService) ensureShareAccount(tx *ledger.Tx, key, owner ledger.Pubkey) error {
	acc, err := tx.Account(key)
	if err != nil {
		return err
	}
	if !acc.IsUnallocated() {
		return nil
	}
	return ls.tokens.InitializeAccount(tx, key, ls.mint, owner)
}

// PlaceBet creates a fresh record and escrow for the bet, moves the stake
// into the escrow and commits to the hash of the reveal number.
func (ls *LedgerService) PlaceBet(ctx context.Context, participant string, req *models.CommitRequest) (*models.BetSession, error) {
	wallet, err := parseParticipant(participant)
	if err != nil {
		return nil, err
	}
	if !game.ValidRollUnder(req.RollUnder) {
		return nil, errors.Wrapf(game.ErrInvalidRollUnder, "got %d", req.RollUnder)
	}
	if req.Stake < ls.minStake {
		return nil, errors.Wrapf(ErrStakeTooSmall, "minimum stake is %d", ls.minStake)
	}
	if err := ls.EnsureWallet(ctx, participant); err != nil {
		return nil, err
	}

	id := uuid.New()
	record, escrow := ls.betAccounts(id)

	var bet *models.BetSession
	var before, after uint64
	keys := []ledger.Pubkey{wallet, record, escrow}
	err = ls.redis.ExecuteQueued(ctx, ls.programID, keys, []ledger.Pubkey{wallet}, func(tx *ledger.Tx) error {
		acc, err := tx.Account(wallet)
		if err != nil {
			return err
		}
		before = acc.Lamports

		if err := tx.CreateAccount(record, ls.programID, game.RecordLen); err != nil {
			return err
		}
		if err := tx.CreateAccount(escrow, ls.programID, 0); err != nil {
			return err
		}
		if err := tx.SystemTransfer(wallet, escrow, req.Stake); err != nil {
			return err
		}
		res, err := ls.processor.Process(tx, processor.Instruction{
			Op:           processor.OpCommit,
			Amount:       req.Stake,
			RevealNumber: req.RevealNumber,
			RollUnder:    req.RollUnder,
			Accounts:     keys,
		})
		if err != nil {
			return err
		}
		after = acc.Lamports

		bet = &models.BetSession{
			ID:            id.String(),
			Participant:   participant,
			Record:        record.String(),
			Escrow:        escrow.String(),
			RollUnder:     res.Record.RollUnder,
			Stake:         req.Stake,
			CommittedHash: res.Record.CommittedHash,
			CommitSlot:    res.Record.CommitSlot,
			Status:        models.BetStatusCommitted,
			CreatedAt:     time.Now().Unix(),
		}
		return nil
	}, func(pipe redis.Pipeliner) error {
		return ls.redis.queueSaveBet(pipe, bet)
	})
	if err != nil {
		return nil, err
	}

	ls.log.WithFields(logrus.Fields{
		"participant": participant,
		"bet":         bet.ID,
		"stake":       bet.Stake,
		"roll_under":  bet.RollUnder,
		"slot":        bet.CommitSlot,
	}).Info("Bet committed")
	ls.recordTransaction(participant, models.TransactionTypeBet, req.Stake, before, after, 0, bet.ID, bet.CommitSlot,
		"Stake escrowed")
	ls.pushBalance(ctx, participant)
	return bet, nil
}

// ResolveBet reveals the number behind a committed bet and settles it. The
// bet can only resolve once the ledger has moved past its commit slot.
func (ls *LedgerService) ResolveBet(ctx context.Context, participant, betID string, revealNumber uint64) (*models.BetSession, error) {
	bet, err := ls.redis.GetBet(betID)
	if err != nil {
		return nil, err
	}
	if bet.Participant != participant {
		return nil, errors.Wrapf(ErrBetNotFound, "bet %s", betID)
	}
	if bet.IsResolved() {
		return nil, ErrBetResolved
	}

	sv, err := ls.redis.GetSysvars(ctx)
	if err != nil {
		return nil, err
	}
	if sv.Slot <= bet.CommitSlot {
		return nil, errors.Wrapf(ErrBetNotReady, "committed at slot %d, ledger at %d", bet.CommitSlot, sv.Slot)
	}
	return ls.settle(ctx, bet, revealNumber)
}

func (ls *LedgerService) settle(ctx context.Context, bet *models.BetSession, revealNumber uint64) (*models.BetSession, error) {
	wallet, err := parseParticipant(bet.Participant)
	if err != nil {
		return nil, err
	}
	record, err := ledger.ParsePubkey(bet.Record)
	if err != nil {
		return nil, errors.Wrap(err, "bet record")
	}
	escrow, err := ledger.ParsePubkey(bet.Escrow)
	if err != nil {
		return nil, errors.Wrap(err, "bet escrow")
	}

	var resolved models.BetSession
	var before, after, slot uint64
	keys := []ledger.Pubkey{wallet, record, escrow, ls.pool}
	err = ls.redis.ExecuteQueued(ctx, ls.programID, keys, []ledger.Pubkey{wallet}, func(tx *ledger.Tx) error {
		acc, err := tx.Account(wallet)
		if err != nil {
			return err
		}
		before, slot = acc.Lamports, tx.Sysvars.Slot
		res, err := ls.processor.Process(tx, processor.Instruction{
			Op:           processor.OpResolve,
			Amount:       bet.Stake,
			RevealNumber: revealNumber,
			RollUnder:    bet.RollUnder,
			Accounts:     keys,
		})
		if err != nil {
			return err
		}
		after = acc.Lamports

		resolved = *bet
		resolved.Status = models.BetStatusResolved
		resolved.Settlement = res.Settlement
		resolved.ResolveSlot = slot
		resolved.ResolvedAt = time.Now().Unix()
		return nil
	}, func(pipe redis.Pipeliner) error {
		return ls.redis.queueCompleteBet(pipe, &resolved)
	})
	if err != nil {
		return nil, err
	}
	bet = &resolved
	s := bet.Settlement

	ls.log.WithFields(logrus.Fields{
		"participant": bet.Participant,
		"bet":         bet.ID,
		"kind":        s.Kind,
		"outcome":     s.Outcome,
		"roll_under":  s.RollUnder,
		"payout":      s.Payout,
	}).Info("Bet resolved")

	amount := s.Payout
	if s.Kind == game.KindLoss {
		amount = s.Stake
	}
	ls.recordTransaction(bet.Participant, models.SettlementTransactionType(s.Kind), amount, before, after, 0, bet.ID, slot,
		string(s.Kind))
	ls.broadcaster.BroadcastSettlement(bet)
	ls.pushBalance(ctx, bet.Participant)
	return bet, nil
}

// ReapExpiredBets refunds bets whose commit slot has left the slot hash
// window. They can no longer produce an outcome, so resolving them without
// the reveal number returns the stake.
func (ls *LedgerService) ReapExpiredBets(ctx context.Context) (int, error) {
	sv, err := ls.redis.GetSysvars(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := ls.redis.GetAllActiveBetIDs()
	if err != nil {
		return 0, err
	}
	bets, err := ls.redis.BulkGetBets(ids)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, bet := range bets {
		if bet.IsResolved() || sv.Slot <= bet.CommitSlot+hashutil.MaxSlotHashes {
			continue
		}
		if _, err := ls.settle(ctx, bet, 0); err != nil {
			ls.log.WithError(err).WithField("bet", bet.ID).Warn("Failed to reap expired bet")
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (ls *LedgerService) GetBet(participant, betID string) (*models.BetSession, error) {
	bet, err := ls.redis.GetBet(betID)
	if err != nil {
		return nil, err
	}
	if bet.Participant != participant {
		return nil, errors.Wrapf(ErrBetNotFound, "bet %s", betID)
	}
	return bet, nil
}

func (ls *LedgerService) GetActiveBets(participant string) ([]*models.BetSession, error) {
	ids, err := ls.redis.GetActiveBetIDs(participant)
	if err != nil {
		return nil, err
	}
	return ls.redis.BulkGetBets(ids)
}

func (ls *LedgerService) GetBetHistory(participant string, limit int64) ([]*models.BetSession, error) {
	return ls.redis.GetBetHistory(participant, limit)
}

func (ls *LedgerService) GetTransactions(participant string, limit int64) ([]*models.Transaction, error) {
	return ls.redis.GetTransactions(participant, limit)
}

// GetBalances reports the wallet, deposit escrow and share position of a
// participant, valuing shares at the current pool rate.
func (ls *LedgerService) GetBalances(ctx context.Context, participant string) (*models.BalanceResponse, error) {
	wallet, err := parseParticipant(participant)
	if err != nil {
		return nil, err
	}
	shareKey := ls.ShareAccount(wallet)
	escrowKey := ls.DepositEscrow(wallet)
	accounts, err := ls.redis.GetAccounts(ctx, wallet, escrowKey, shareKey, ls.pool, ls.mint)
	if err != nil {
		return nil, err
	}
	view := ledger.NewTx(ls.programID, ledger.Sysvars{}, accounts)

	resp := &models.BalanceResponse{
		Participant:   participant,
		Wallet:        accounts[0].Lamports,
		DepositEscrow: accounts[1].Lamports,
	}
	// an uninitialized share account or mint simply holds nothing
	if shares, err := ls.tokens.Balance(view, shareKey); err == nil {
		resp.Shares = shares
	}
	if supply, err := ls.tokens.Supply(view, ls.mint); err == nil && resp.Shares > 0 {
		if v, err := custody.ValueForShares(resp.Shares, accounts[3].Lamports, supply); err == nil {
			resp.ShareValue = v
		}
	}

	active, err := ls.GetActiveBets(participant)
	if err != nil {
		return nil, err
	}
	for _, bet := range active {
		resp.InBets += bet.Stake
	}
	return resp, nil
}

func (ls *LedgerService) GetPoolStats(ctx context.Context) (*models.PoolStats, error) {
	accounts, err := ls.redis.GetAccounts(ctx, ls.pool, ls.mint)
	if err != nil {
		return nil, err
	}
	sv, err := ls.redis.GetSysvars(ctx)
	if err != nil {
		return nil, err
	}
	view := ledger.NewTx(ls.programID, sv, accounts)

	pool := accounts[0].Lamports
	stats := &models.PoolStats{
		Pool:       ls.pool.String(),
		Mint:       ls.mint.String(),
		Balance:    pool,
		SharePrice: decimal.NewFromInt(1),
		MaxProfit:  ls.params.MaxProfit(pool),
		Slot:       sv.Slot,
	}
	if supply, err := ls.tokens.Supply(view, ls.mint); err == nil {
		stats.ShareSupply = supply
	}
	if stats.ShareSupply > 0 && pool > 0 {
		stats.SharePrice = decimal.NewFromBigInt(new(big.Int).SetUint64(pool), 0).
			DivRound(decimal.NewFromBigInt(new(big.Int).SetUint64(stats.ShareSupply), 0), 9)
	}
	return stats, nil
}

// VerifyOutcome recomputes the roll a reveal number gets against the hash of
// slot, as long as that slot is still in the ledger's history.
func (ls *LedgerService) VerifyOutcome(ctx context.Context, req *models.VerifyRequest) (*models.VerifyResponse, error) {
	sv, err := ls.redis.GetSysvars(ctx)
	if err != nil {
		return nil, err
	}
	h, ok := hashutil.Lookup(sv.SlotHashes, req.Slot)
	if !ok {
		return nil, errors.Wrapf(ErrHashUnavailable, "slot %d", req.Slot)
	}

	resp := &models.VerifyResponse{
		RevealNumber:  req.RevealNumber,
		CommittedHash: ls.params.Hasher.CommitReveal(req.RevealNumber),
		Slot:          req.Slot,
		SlotHash:      base58.Encode(h[:]),
		Outcome:       ls.params.Outcome(req.RevealNumber, h),
	}
	if req.RollUnder != 0 {
		win := resp.Outcome < uint64(req.RollUnder)
		resp.RollUnder = req.RollUnder
		resp.Win = &win
	}
	return resp, nil
}

func (ls *LedgerService) pushBalance(ctx context.Context, participant string) {
	balance, err := ls.GetBalances(ctx, participant)
	if err != nil {
		ls.log.WithError(err).WithField("participant", participant).Warn("Failed to load balance for broadcast")
		return
	}
	ls.broadcaster.BroadcastBalance(balance)
}

func (ls *LedgerService) recordTransaction(participant string, txType models.TransactionType, amount, before, after, shares uint64, betID string, slot uint64, description string) *models.Transaction {
	tx := &models.Transaction{
		ID:            models.GenerateTransactionID(),
		Participant:   participant,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Shares:        shares,
		BetID:         betID,
		Slot:          slot,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := ls.redis.SaveTransaction(tx); err != nil {
		ls.log.WithError(err).WithField("participant", participant).Error("Failed to record transaction")
	}
	return tx
}
