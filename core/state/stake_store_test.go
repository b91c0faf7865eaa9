package state

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"nhbstake/native/stake"
	"nhbstake/native/stake/curve"
	"nhbstake/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newTestStore(t *testing.T, db storage.Database) *StakeStore {
	t.Helper()
	store, err := NewStakeStore(db, 16)
	require.NoError(t, err)
	return store
}

func TestStakeStoreRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	store := newTestStore(t, db)
	staker, admin := addr(0x01), addr(0x02)
	juno := stake.NativeAsset("juno")

	cfg := &stake.Config{
		StakedToken:      addr(0xAA),
		Instantiator:     addr(0xC0),
		TokensPerPower:   big.NewInt(1000),
		MinBond:          big.NewInt(5000),
		UnbondingPeriods: []uint64{10, 20},
		MaxDistributions: 4,
		Converter:        &stake.ConverterConfig{Contract: addr(0xCC), PairTo: addr(0xDD)},
	}
	require.NoError(t, store.StakeConfigPut(cfg))
	require.NoError(t, store.AdminPut(&admin))
	require.NoError(t, store.UnbondAllPut(true))
	require.NoError(t, store.BondingPut(staker, 20, &stake.BondingInfo{
		Stake:        big.NewInt(700),
		LockedTokens: []stake.LockedTokens{{ReleasesAt: 99, Amount: big.NewInt(300)}},
	}))
	require.NoError(t, store.ClaimsPut(staker, []stake.Claim{
		{Amount: big.NewInt(5), ReleaseAt: stake.AtTime(100)},
		{Amount: big.NewInt(6), ReleaseAt: stake.AtHeight(7)},
	}))
	require.NoError(t, store.DistributionPut(juno, &stake.Distribution{
		Manager:           admin,
		RewardMultipliers: []stake.RewardMultiplier{{Period: 10, Multiplier: sdkmath.LegacyMustNewDecFromStr("0.5")}},
		SharesPerPoint:    new(big.Int).Lsh(big.NewInt(3), 40),
		SharesLeftover:    big.NewInt(1),
		DistributedTotal:  big.NewInt(9),
		WithdrawableTotal: big.NewInt(8),
	}))
	require.NoError(t, store.RewardCurvePut(juno, curve.SaturatingLinear(
		curve.Point{X: 10, Y: big.NewInt(100)},
		curve.Point{X: 20, Y: big.NewInt(0)},
	)))
	require.NoError(t, store.AdjustmentPut(staker, juno, &stake.WithdrawAdjustment{
		SharesCorrection: big.NewInt(-12345),
		WithdrawnRewards: big.NewInt(4),
	}))
	require.NoError(t, store.DelegatedPut(staker, admin))
	require.NoError(t, store.RewardBalancePut(juno, big.NewInt(77)))
	require.Zero(t, db.Len(), "writes must stay buffered until flush")
	require.NoError(t, store.Flush())
	require.Zero(t, store.Pending())

	// a fresh store reads everything back from the database
	reopened := newTestStore(t, db)
	gotCfg, ok, err := reopened.StakeConfigGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg.UnbondingPeriods, gotCfg.UnbondingPeriods)
	require.Nil(t, gotCfg.Unbonder)
	require.Equal(t, *cfg.Converter, *gotCfg.Converter)
	require.Equal(t, 0, gotCfg.MinBond.Cmp(big.NewInt(5000)))

	gotAdmin, err := reopened.AdminGet()
	require.NoError(t, err)
	require.Equal(t, admin, *gotAdmin)
	flag, err := reopened.UnbondAllGet()
	require.NoError(t, err)
	require.True(t, flag)

	bonding, ok, err := reopened.BondingGet(staker, 20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, bonding.TotalStake().Cmp(big.NewInt(1000)))
	_, ok, err = reopened.BondingGet(staker, 10)
	require.NoError(t, err)
	require.False(t, ok)

	claims, err := reopened.ClaimsGet(staker)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	require.Equal(t, stake.AtHeight(7), claims[1].ReleaseAt)

	assets, err := reopened.DistributionAssets()
	require.NoError(t, err)
	require.Equal(t, []stake.Asset{juno}, assets)
	dist, ok, err := reopened.DistributionGet(juno)
	require.NoError(t, err)
	require.True(t, ok)
	m, err := dist.Multiplier(10)
	require.NoError(t, err)
	require.True(t, m.Equal(sdkmath.LegacyMustNewDecFromStr("0.5")))
	require.Equal(t, 0, dist.SharesPerPoint.Cmp(new(big.Int).Lsh(big.NewInt(3), 40)))

	c, ok, err := reopened.RewardCurveGet(juno)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, c.Value(15).Cmp(big.NewInt(50)))

	adj, ok, err := reopened.AdjustmentGet(staker, juno)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, adj.SharesCorrection.Cmp(big.NewInt(-12345)))

	delegated, ok, err := reopened.DelegatedGet(staker)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, admin, delegated)
	balance, err := reopened.RewardBalanceGet(juno)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Cmp(big.NewInt(77)))

	require.NoError(t, reopened.ClaimsPut(staker, nil))
	require.NoError(t, reopened.Flush())
	claims, err = newTestStore(t, db).ClaimsGet(staker)
	require.NoError(t, err)
	require.Empty(t, claims)
}

func TestStakeStoreDefaults(t *testing.T) {
	store := newTestStore(t, storage.NewMemDB())
	_, ok, err := store.StakeConfigGet()
	require.NoError(t, err)
	require.False(t, ok)
	info, err := store.TokenInfoGet()
	require.NoError(t, err)
	require.Zero(t, info.Staked.Sign())
	total, err := store.TotalStakeGet(5)
	require.NoError(t, err)
	require.Zero(t, total.PoweredStake.Sign())
	admin, err := store.AdminGet()
	require.NoError(t, err)
	require.Nil(t, admin)
	balance, err := store.RewardBalanceGet(stake.NativeAsset("juno"))
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
	require.Error(t, store.RewardBalancePut(stake.NativeAsset("juno"), big.NewInt(-1)))
}

type failingDB struct {
	*storage.MemDB
	fail bool
}

func (f *failingDB) NewBatch() storage.Batch {
	return &failingBatch{Batch: f.MemDB.NewBatch(), db: f}
}

type failingBatch struct {
	storage.Batch
	db *failingDB
}

func (b *failingBatch) Write() error {
	if b.db.fail {
		return errors.New("disk full")
	}
	return b.Batch.Write()
}

func TestStakeStoreFlushFailureDropsBuffer(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB()}
	store := newTestStore(t, db)
	juno := stake.NativeAsset("juno")
	require.NoError(t, store.RewardBalancePut(juno, big.NewInt(10)))
	require.NoError(t, store.Flush())

	db.fail = true
	require.NoError(t, store.RewardBalancePut(juno, big.NewInt(20)))
	err := store.Flush()
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")

	balance, err := store.RewardBalanceGet(juno)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Cmp(big.NewInt(10)))
}

// The engine flushes the store after every successful call, so a scenario run
// against LevelDB survives a reopen.
func TestStakeStoreBacksEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stake")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	store := newTestStore(t, db)

	token, admin, staker := addr(0xAA), addr(0xAD), addr(0x01)
	engine := stake.NewEngine()
	engine.SetState(store)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	require.NoError(t, engine.Instantiate(addr(0xC0), stake.InstantiateMsg{
		StakedToken:      token,
		TokensPerPower:   big.NewInt(1000),
		MinBond:          big.NewInt(1000),
		UnbondingPeriods: []uint64{100},
		MaxDistributions: 2,
		Admin:            &admin,
	}))
	juno := stake.NativeAsset("juno")
	_, err = engine.CreateDistributionFlow(admin, admin, juno, []stake.RewardMultiplier{{Period: 100, Multiplier: sdkmath.LegacyOneDec()}})
	require.NoError(t, err)
	_, err = engine.Bond(token, staker, 100, big.NewInt(4000))
	require.NoError(t, err)
	_, err = engine.DistributeRewards(admin, nil, []stake.Coin{{Asset: juno, Amount: big.NewInt(400)}})
	require.NoError(t, err)
	require.Zero(t, store.Pending())
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	engine.SetState(newTestStore(t, db))
	rewards, err := engine.WithdrawableRewards(staker)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	require.Equal(t, 0, rewards[0].Amount.Cmp(big.NewInt(400)))
	receipt, err := engine.WithdrawRewards(staker, nil, nil)
	require.NoError(t, err)
	require.Len(t, receipt.Transfers, 1)
}

// faultyStore fails adjustment writes, which come late in a commit.
type faultyStore struct {
	*StakeStore
	fail bool
}

func (f *faultyStore) AdjustmentPut(staker [20]byte, asset stake.Asset, adj *stake.WithdrawAdjustment) error {
	if f.fail {
		return errors.New("adjustment write refused")
	}
	return f.StakeStore.AdjustmentPut(staker, asset, adj)
}

func TestStakeStoreDiscardsPartialCommit(t *testing.T) {
	db := storage.NewMemDB()
	store := &faultyStore{StakeStore: newTestStore(t, db)}

	token, admin, first, second := addr(0xAA), addr(0xAD), addr(0x01), addr(0x02)
	engine := stake.NewEngine()
	engine.SetState(store)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	require.NoError(t, engine.Instantiate(addr(0xC0), stake.InstantiateMsg{
		StakedToken:      token,
		TokensPerPower:   big.NewInt(1000),
		MinBond:          big.NewInt(1000),
		UnbondingPeriods: []uint64{100},
		MaxDistributions: 2,
		Admin:            &admin,
	}))
	juno := stake.NativeAsset("juno")
	_, err := engine.CreateDistributionFlow(admin, admin, juno, []stake.RewardMultiplier{{Period: 100, Multiplier: sdkmath.LegacyOneDec()}})
	require.NoError(t, err)
	_, err = engine.Bond(token, first, 100, big.NewInt(4000))
	require.NoError(t, err)
	_, err = engine.DistributeRewards(admin, nil, []stake.Coin{{Asset: juno, Amount: big.NewInt(400)}})
	require.NoError(t, err)

	store.fail = true
	_, err = engine.Bond(token, second, 100, big.NewInt(2000))
	require.ErrorContains(t, err, "adjustment write refused")
	require.Zero(t, store.Pending())

	// the next successful call must not carry the failed bond along
	store.fail = false
	other := addr(0xAE)
	require.NoError(t, engine.UpdateAdmin(admin, &other))

	reopened := newTestStore(t, db)
	_, ok, err := reopened.BondingGet(second, 100)
	require.NoError(t, err)
	require.False(t, ok)
	info, err := reopened.TokenInfoGet()
	require.NoError(t, err)
	require.Equal(t, 0, info.Staked.Cmp(big.NewInt(4000)))
	gotAdmin, err := reopened.AdminGet()
	require.NoError(t, err)
	require.Equal(t, other, *gotAdmin)
}

func TestStakeStoreRoundTripsCombinedCurve(t *testing.T) {
	db := storage.NewMemDB()
	store := newTestStore(t, db)
	juno := stake.NativeAsset("juno")
	combined := curve.SaturatingLinear(
		curve.Point{X: 0, Y: big.NewInt(249)},
		curve.Point{X: 12, Y: big.NewInt(0)},
	).Combine(curve.SaturatingLinear(
		curve.Point{X: 10, Y: big.NewInt(3380)},
		curve.Point{X: 26, Y: big.NewInt(0)},
	))
	require.Equal(t, curve.KindSum, combined.Kind)
	require.NoError(t, store.RewardCurvePut(juno, combined))
	require.NoError(t, store.Flush())

	got, ok, err := newTestStore(t, db).RewardCurveGet(juno)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, curve.KindSum, got.Kind)
	require.Len(t, got.Parts, 2)
	require.NoError(t, got.Validate())
	for x := uint64(0); x <= 30; x++ {
		require.Equal(t, 0, got.Value(x).Cmp(combined.Value(x)), "x=%d", x)
	}
}
