package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solroll-backend/internal/ledger"
)

var (
	program   = ledger.NewPubkeyFromSeed("token-test-program")
	pool      = ledger.MustFindProgramAddress([][]byte{[]byte("pool")}, program)
	mint      = ledger.MustFindProgramAddress([][]byte{[]byte("shares")}, program)
	holder    = ledger.NewPubkeyFromSeed("holder")
	holderAcc = ledger.MustFindProgramAddress([][]byte{[]byte("shares"), holder[:]}, program)
)

func authority(t *testing.T) (ledger.Pubkey, [][]byte) {
	seeds := [][]byte{pool[:], []byte("mint")}
	auth, bump, err := ledger.FindProgramAddress(seeds, program)
	require.NoError(t, err)
	return auth, ledger.SignerSeeds(seeds, bump)
}

func setup(t *testing.T) *ledger.Tx {
	auth, _ := authority(t)
	tx := ledger.NewTx(program, ledger.Sysvars{}, []*ledger.Account{
		ledger.NewAccount(mint),
		ledger.NewAccount(holderAcc),
		ledger.NewAccount(holder),
	}, holder)
	var p Program
	require.NoError(t, p.InitializeMint(tx, mint, auth))
	require.NoError(t, p.InitializeAccount(tx, holderAcc, mint, holder))
	return tx
}

func TestMintAndBurn(t *testing.T) {
	tx := setup(t)
	auth, seeds := authority(t)
	var p Program

	require.NoError(t, p.MintTo(tx, mint, holderAcc, auth, seeds, 500))
	supply, err := p.Supply(tx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), supply)

	require.NoError(t, p.Burn(tx, holderAcc, mint, holder, 200))
	supply, _ = p.Supply(tx, mint)
	bal, err := p.Balance(tx, holderAcc)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), supply)
	assert.Equal(t, uint64(300), bal)

	err = p.Burn(tx, holderAcc, mint, holder, 301)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestMintRequiresProgramAuthority(t *testing.T) {
	tx := setup(t)
	auth, seeds := authority(t)
	var p Program

	err := p.MintTo(tx, mint, holderAcc, holder, seeds, 1)
	assert.ErrorIs(t, err, ErrInvalidAuthority)

	err = p.MintTo(tx, mint, holderAcc, auth, [][]byte{[]byte("forged"), {1}}, 1)
	assert.ErrorIs(t, err, ErrInvalidSignerSeeds)

	foreign := *tx
	foreign.ProgramID = ledger.NewPubkeyFromSeed("intruder")
	err = p.MintTo(&foreign, mint, holderAcc, auth, seeds, 1)
	assert.ErrorIs(t, err, ErrInvalidSignerSeeds)

	supply, _ := p.Supply(tx, mint)
	assert.Zero(t, supply)
}

func TestBurnRequiresOwnerSignature(t *testing.T) {
	auth, seeds := authority(t)
	var p Program
	tx := setup(t)
	require.NoError(t, p.MintTo(tx, mint, holderAcc, auth, seeds, 10))

	unsigned := ledger.NewTx(program, ledger.Sysvars{}, tx.Dirty())
	err := p.Burn(unsigned, holderAcc, mint, holder, 1)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	err = p.Burn(tx, holderAcc, mint, ledger.NewPubkeyFromSeed("someone"), 1)
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestInitializeTwiceFails(t *testing.T) {
	tx := setup(t)
	var p Program
	assert.ErrorIs(t, p.InitializeMint(tx, mint, holder), ErrAlreadyInitialized)
	assert.ErrorIs(t, p.InitializeAccount(tx, holderAcc, mint, holder), ErrAlreadyInitialized)
}
