package game_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solroll-backend/internal/game"
	"solroll-backend/internal/hashutil"
	"solroll-backend/internal/ledger"
)

var programID = ledger.NewPubkeyFromSeed("game-test-program")

const commitSlot = 40

func slotHash(slot uint64) hashutil.Hash {
	return hashutil.Hash(ledger.NewPubkeyFromSeed(fmt.Sprintf("slot-%d", slot)))
}

// history returns a slot hash blob covering slots from..to, newest first.
func history(from, to uint64) []byte {
	var hs hashutil.SlotHashes
	for s := from; s <= to; s++ {
		hs = hs.Push(s, slotHash(s))
	}
	return hs.Encode()
}

// revealFor finds a reveal number whose roll against the commit slot's hash
// satisfies want.
func revealFor(t *testing.T, params game.Params, want func(outcome uint64) bool) uint64 {
	t.Helper()
	for reveal := uint64(1); reveal < 100000; reveal++ {
		if want(params.Outcome(reveal, slotHash(commitSlot))) {
			return reveal
		}
	}
	t.Fatal("no reveal number produces the wanted roll")
	return 0
}

type table struct {
	engine *game.Engine
	accs   game.ResolveAccounts
	tx     *ledger.Tx
}

// newTable commits a bet at commitSlot and returns a transaction positioned
// for resolution at resolveSlot with the given slot hash blob.
func newTable(t *testing.T, params game.Params, stake, treasury uint64, rollUnder uint32, reveal uint64, resolveSlot uint64, hashes []byte) *table {
	t.Helper()
	accs := game.ResolveAccounts{
		Participant: ledger.NewPubkeyFromSeed("participant"),
		Record:      ledger.NewPubkeyFromSeed("record"),
		Escrow:      ledger.NewPubkeyFromSeed("escrow"),
		Treasury:    ledger.NewPubkeyFromSeed("treasury"),
	}
	accounts := []*ledger.Account{
		ledger.NewAccount(accs.Participant),
		{Key: accs.Record, Owner: programID, Data: make([]byte, game.RecordLen)},
		{Key: accs.Escrow, Owner: programID, Lamports: stake},
		{Key: accs.Treasury, Owner: programID, Lamports: treasury},
	}
	engine := game.NewEngine(programID, params)

	commitTx := ledger.NewTx(programID, ledger.Sysvars{Slot: commitSlot}, accounts, accs.Participant)
	_, err := engine.Commit(commitTx, game.CommitAccounts{
		Participant: accs.Participant,
		Record:      accs.Record,
		Escrow:      accs.Escrow,
	}, rollUnder, reveal, stake)
	require.NoError(t, err)

	sysvars := ledger.Sysvars{Slot: resolveSlot, SlotHashes: hashes}
	return &table{
		engine: engine,
		accs:   accs,
		tx:     ledger.NewTx(programID, sysvars, commitTx.Accounts(), accs.Participant),
	}
}

func (tb *table) balance(t *testing.T, key ledger.Pubkey) uint64 {
	acc, err := tb.tx.Account(key)
	require.NoError(t, err)
	return acc.Lamports
}

func (tb *table) record(t *testing.T) game.Record {
	acc, err := tb.tx.Account(tb.accs.Record)
	require.NoError(t, err)
	rec, err := game.UnpackRecord(acc.Data)
	require.NoError(t, err)
	return rec
}

func (tb *table) total(t *testing.T) uint64 {
	total, err := tb.tx.Lamports()
	require.NoError(t, err)
	return total
}

func TestCommitStoresHashNotReveal(t *testing.T) {
	params := game.DefaultParams()
	tb := newTable(t, params, 10000, 5000000, 50, 777, commitSlot+1, history(1, commitSlot+1))

	rec := tb.record(t)
	assert.Equal(t, game.StatusCommitted, rec.Status)
	assert.Equal(t, uint32(50), rec.RollUnder)
	assert.Equal(t, uint64(commitSlot), rec.CommitSlot)
	assert.Equal(t, params.Hasher.CommitReveal(777), rec.CommittedHash)
	assert.NotEqual(t, uint64(777), rec.CommittedHash)
	assert.Zero(t, rec.Outcome)
}

func TestCommitRejections(t *testing.T) {
	engine := game.NewEngine(programID, game.DefaultParams())
	participant := ledger.NewPubkeyFromSeed("participant")
	record := ledger.NewPubkeyFromSeed("record")
	escrow := ledger.NewPubkeyFromSeed("escrow")
	accs := game.CommitAccounts{Participant: participant, Record: record, Escrow: escrow}

	newTx := func(recordOwner ledger.Pubkey) *ledger.Tx {
		return ledger.NewTx(programID, ledger.Sysvars{Slot: 5}, []*ledger.Account{
			ledger.NewAccount(participant),
			{Key: record, Owner: recordOwner, Data: make([]byte, game.RecordLen)},
			{Key: escrow, Owner: programID, Lamports: 5000},
		}, participant)
	}

	for _, r := range []uint32{0, 1, 101, 1 << 31} {
		tx := newTx(programID)
		_, err := engine.Commit(tx, accs, r, 1, 5000)
		assert.ErrorIs(t, err, game.ErrInvalidRollUnder, "roll under %d", r)
		assert.Empty(t, tx.Dirty())
	}

	tx := newTx(programID)
	_, err := engine.Commit(tx, accs, 50, 1, 0)
	assert.ErrorIs(t, err, game.ErrInvalidAmount)

	tx = newTx(ledger.NewPubkeyFromSeed("forged-program"))
	_, err = engine.Commit(tx, accs, 50, 1, 5000)
	assert.ErrorIs(t, err, ledger.ErrIncorrectProgramID)
	assert.Empty(t, tx.Dirty())

	tx = newTx(programID)
	_, err = engine.Commit(tx, accs, 50, 1, 5000)
	require.NoError(t, err)
	_, err = engine.Commit(tx, accs, 60, 2, 5000)
	assert.ErrorIs(t, err, game.ErrAlreadyCommitted)
}

func TestResolveRefundsOverExposureCap(t *testing.T) {
	params := game.DefaultParams()
	reveal := revealFor(t, params, func(uint64) bool { return true })
	tb := newTable(t, params, 10000, 1000000, 50, reveal, commitSlot+1, history(1, commitSlot+1))
	before := tb.total(t)

	s, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
	require.NoError(t, err)
	assert.Equal(t, game.KindRefundCap, s.Kind)
	assert.Equal(t, uint64(10204), s.Winnings)
	assert.Equal(t, uint64(10000), s.MaxProfit)
	assert.Equal(t, uint64(10000), tb.balance(t, tb.accs.Participant))
	assert.Equal(t, uint64(1000000), tb.balance(t, tb.accs.Treasury))
	assert.Zero(t, tb.balance(t, tb.accs.Escrow))

	rec := tb.record(t)
	assert.Equal(t, game.StatusResolved, rec.Status)
	assert.Equal(t, params.Outcome(reveal, slotHash(commitSlot)), rec.Outcome)
	assert.Equal(t, before, tb.total(t))
}

func TestResolveWinAndLoss(t *testing.T) {
	params := game.DefaultParams()

	t.Run("win", func(t *testing.T) {
		reveal := revealFor(t, params, func(o uint64) bool { return o < 50 })
		tb := newTable(t, params, 10000, 5000000, 50, reveal, commitSlot+3, history(1, commitSlot+3))
		before := tb.total(t)

		s, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
		require.NoError(t, err)
		assert.Equal(t, game.KindWin, s.Kind)
		assert.Less(t, s.Outcome, uint64(50))
		assert.Equal(t, uint64(20204), s.Payout)
		assert.Equal(t, uint64(20204), tb.balance(t, tb.accs.Participant))
		assert.Equal(t, uint64(5000000-10204), tb.balance(t, tb.accs.Treasury))
		assert.Equal(t, before, tb.total(t))
	})

	t.Run("loss", func(t *testing.T) {
		reveal := revealFor(t, params, func(o uint64) bool { return o >= 50 })
		tb := newTable(t, params, 10000, 5000000, 50, reveal, commitSlot+3, history(1, commitSlot+3))
		before := tb.total(t)

		s, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
		require.NoError(t, err)
		assert.Equal(t, game.KindLoss, s.Kind)
		assert.GreaterOrEqual(t, s.Outcome, uint64(50))
		assert.Zero(t, s.Payout)
		assert.Zero(t, tb.balance(t, tb.accs.Participant))
		assert.Equal(t, uint64(5010000), tb.balance(t, tb.accs.Treasury))
		assert.Equal(t, before, tb.total(t))
	})
}

func TestResolveReturnsStakeWhenTreasuryCannotCover(t *testing.T) {
	params := game.DefaultParams()
	params.MaxProfitRatio = decimal.NewFromInt(2)
	reveal := revealFor(t, params, func(o uint64) bool { return o < 50 })
	tb := newTable(t, params, 10000, 6000, 50, reveal, commitSlot+1, history(1, commitSlot+1))

	s, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
	require.NoError(t, err)
	assert.Equal(t, game.KindStakeReturned, s.Kind)
	assert.Equal(t, uint64(10000), tb.balance(t, tb.accs.Participant))
	assert.Equal(t, uint64(6000), tb.balance(t, tb.accs.Treasury))
}

func TestResolveRefundPaths(t *testing.T) {
	params := game.DefaultParams()
	cases := []struct {
		name        string
		reveal      uint64
		resolveSlot uint64
		hashes      []byte
		want        game.SettlementKind
	}{
		{"wrong reveal", 8, commitSlot + 1, history(1, commitSlot+1), game.KindRefundMismatch},
		{"same slot", 7, commitSlot, history(1, commitSlot), game.KindRefundStale},
		{"earlier slot", 7, commitSlot - 1, history(1, commitSlot-1), game.KindRefundStale},
		{"history expired", 7, commitSlot + 600, history(commitSlot+600, commitSlot+600), game.KindRefundHistory},
		{"history too short", 7, commitSlot + 5, history(commitSlot+5, commitSlot+5), game.KindRefundHistory},
		{"commit slot not landed", 7, commitSlot + 1, history(1, commitSlot-1), game.KindRefundHistory},
		{"no history", 7, commitSlot + 1, nil, game.KindRefundHistory},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tb := newTable(t, params, 10000, 5000000, 50, 7, c.resolveSlot, c.hashes)
			before := tb.total(t)

			s, err := tb.engine.Resolve(tb.tx, tb.accs, c.reveal)
			require.NoError(t, err)
			assert.Equal(t, c.want, s.Kind)
			assert.True(t, s.Kind.IsRefund())
			assert.Zero(t, s.Outcome)
			assert.Equal(t, uint64(10000), tb.balance(t, tb.accs.Participant))
			assert.Zero(t, tb.balance(t, tb.accs.Escrow))
			assert.Equal(t, uint64(5000000), tb.balance(t, tb.accs.Treasury))
			assert.Equal(t, before, tb.total(t))

			rec := tb.record(t)
			assert.Equal(t, game.StatusResolved, rec.Status)
			assert.Zero(t, rec.Outcome)
		})
	}
}

func TestResolveBelowFloorChangesNothing(t *testing.T) {
	params := game.DefaultParams()
	for _, stake := range []uint64{1, 999, 1000} {
		tb := newTable(t, params, stake, 5000000, 50, 7, commitSlot+1, history(1, commitSlot+1))

		_, err := tb.engine.Resolve(tb.tx, tb.accs, 7)
		assert.ErrorIs(t, err, game.ErrBelowFloor, "stake %d", stake)
		assert.Empty(t, tb.tx.Dirty())
	}
}

func TestResolveIsTerminal(t *testing.T) {
	params := game.DefaultParams()
	reveal := revealFor(t, params, func(o uint64) bool { return o >= 50 })
	tb := newTable(t, params, 10000, 5000000, 50, reveal, commitSlot+1, history(1, commitSlot+1))

	_, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
	require.NoError(t, err)
	treasury := tb.balance(t, tb.accs.Treasury)

	_, err = tb.engine.Resolve(tb.tx, tb.accs, reveal)
	assert.ErrorIs(t, err, game.ErrAlreadyResolved)
	assert.Equal(t, treasury, tb.balance(t, tb.accs.Treasury))

	_, err = tb.engine.Commit(tb.tx, game.CommitAccounts{
		Participant: tb.accs.Participant,
		Record:      tb.accs.Record,
		Escrow:      tb.accs.Escrow,
	}, 50, reveal, 10000)
	assert.ErrorIs(t, err, game.ErrAlreadyResolved)
}

func TestResolveUncommittedRecord(t *testing.T) {
	engine := game.NewEngine(programID, game.DefaultParams())
	accs := game.ResolveAccounts{
		Participant: ledger.NewPubkeyFromSeed("participant"),
		Record:      ledger.NewPubkeyFromSeed("record"),
		Escrow:      ledger.NewPubkeyFromSeed("escrow"),
		Treasury:    ledger.NewPubkeyFromSeed("treasury"),
	}
	tx := ledger.NewTx(programID, ledger.Sysvars{Slot: 9}, []*ledger.Account{
		ledger.NewAccount(accs.Participant),
		{Key: accs.Record, Owner: programID, Data: make([]byte, game.RecordLen)},
		{Key: accs.Escrow, Owner: programID, Lamports: 5000},
		{Key: accs.Treasury, Owner: ledger.NewPubkeyFromSeed("someone-else"), Lamports: 5000},
	})

	_, err := engine.Resolve(tx, accs, 1)
	assert.ErrorIs(t, err, ledger.ErrIncorrectProgramID)

	treasury, _ := tx.Account(accs.Treasury)
	treasury.Owner = programID
	_, err = engine.Resolve(tx, accs, 1)
	assert.ErrorIs(t, err, game.ErrNotCommitted)
}

func TestResolveIsDeterministic(t *testing.T) {
	params := game.DefaultParams()
	var outcomes []uint64
	for i := 0; i < 2; i++ {
		reveal := revealFor(t, params, func(o uint64) bool { return o >= 50 })
		tb := newTable(t, params, 10000, 5000000, 50, reveal, commitSlot+2, history(1, commitSlot+2))
		s, err := tb.engine.Resolve(tb.tx, tb.accs, reveal)
		require.NoError(t, err)
		outcomes = append(outcomes, s.Outcome)
	}
	assert.Equal(t, outcomes[0], outcomes[1])
	assert.GreaterOrEqual(t, outcomes[0], uint64(1))
	assert.LessOrEqual(t, outcomes[0], uint64(100))
}
