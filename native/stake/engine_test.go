package stake

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"

	"nhbstake/core/events"
	"nhbstake/native/common"
)

var (
	testToken    = newTestAddress(0xAA)
	testAdmin    = newTestAddress(0xAD)
	testUnbonder = newTestAddress(0xBB)
	testCreator  = newTestAddress(0xC0)
	testJuno     = NativeAsset("juno")
	testGenesis  = time.Unix(1_700_000_000, 0)
)

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

type harness struct {
	t      *testing.T
	engine *Engine
	ledger *Ledger
	clock  fakeClock
	events *events.Recorder
	height uint64
	pauses *common.Pauses
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func amt(v int64) *big.Int { return big.NewInt(v) }

func testInstantiateMsg() InstantiateMsg {
	admin := testAdmin
	unbonder := testUnbonder
	return InstantiateMsg{
		StakedToken:      testToken,
		TokensPerPower:   amt(1000),
		MinBond:          amt(5000),
		UnbondingPeriods: []uint64{20},
		MaxDistributions: 6,
		Admin:            &admin,
		Unbonder:         &unbonder,
	}
}

func newHarness(t *testing.T, configure ...func(*InstantiateMsg)) *harness {
	t.Helper()
	msg := testInstantiateMsg()
	for _, fn := range configure {
		fn(&msg)
	}
	h := &harness{
		t:      t,
		engine: NewEngine(),
		ledger: NewLedger(),
		clock:  clockwork.NewFakeClockAt(testGenesis),
		events: &events.Recorder{},
		pauses: common.NewPauses(),
	}
	h.engine.SetState(h.ledger)
	h.engine.SetEmitter(h.events)
	h.engine.SetPauses(h.pauses)
	h.engine.SetNowFunc(func() int64 { return h.clock.Now().Unix() })
	h.engine.SetHeightFunc(func() uint64 { return h.height })
	if err := h.engine.Instantiate(testCreator, msg); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	h.events.Drain()
	return h
}

func withPeriods(periods ...uint64) func(*InstantiateMsg) {
	return func(m *InstantiateMsg) { m.UnbondingPeriods = periods }
}

func withMinBond(v int64) func(*InstantiateMsg) {
	return func(m *InstantiateMsg) { m.MinBond = amt(v) }
}

func (h *harness) now() uint64 { return uint64(h.clock.Now().Unix()) }

func (h *harness) advance(seconds uint64) {
	h.clock.Advance(time.Duration(seconds) * time.Second)
}

func (h *harness) bond(staker [20]byte, period uint64, amount int64) {
	h.t.Helper()
	if _, err := h.engine.Bond(testToken, staker, period, amt(amount)); err != nil {
		h.t.Fatalf("bond %d into %d: %v", amount, period, err)
	}
}

func (h *harness) unbond(staker [20]byte, period uint64, amount int64) *Receipt {
	h.t.Helper()
	receipt, err := h.engine.Unbond(staker, period, amt(amount))
	if err != nil {
		h.t.Fatalf("unbond %d from %d: %v", amount, period, err)
	}
	return receipt
}

func (h *harness) createFlow(asset Asset, multipliers ...string) {
	h.t.Helper()
	cfg, err := h.engine.Config()
	if err != nil {
		h.t.Fatalf("config: %v", err)
	}
	if len(multipliers) != len(cfg.UnbondingPeriods) {
		h.t.Fatalf("need %d multipliers", len(cfg.UnbondingPeriods))
	}
	rewards := make([]RewardMultiplier, len(multipliers))
	for i, m := range multipliers {
		rewards[i] = RewardMultiplier{Period: cfg.UnbondingPeriods[i], Multiplier: sdkmath.LegacyMustNewDecFromStr(m)}
	}
	if _, err := h.engine.CreateDistributionFlow(testAdmin, testAdmin, asset, rewards); err != nil {
		h.t.Fatalf("create distribution flow: %v", err)
	}
}

func (h *harness) distribute(sender [20]byte, asset Asset, amount int64) {
	h.t.Helper()
	var funds []Coin
	if amount > 0 {
		funds = []Coin{{Asset: asset, Amount: amt(amount)}}
	}
	if _, err := h.engine.DistributeRewards(sender, nil, funds); err != nil {
		h.t.Fatalf("distribute: %v", err)
	}
}

// withdraw pays out the rewards of owner and returns the paid amount of asset.
func (h *harness) withdraw(owner [20]byte, asset Asset) *big.Int {
	h.t.Helper()
	receipt, err := h.engine.WithdrawRewards(owner, nil, nil)
	if err != nil {
		h.t.Fatalf("withdraw: %v", err)
	}
	return paidTo(receipt, asset, owner)
}

func paidTo(receipt *Receipt, asset Asset, to [20]byte) *big.Int {
	total := big.NewInt(0)
	if receipt == nil {
		return total
	}
	for _, tr := range receipt.Transfers {
		if tr.Asset.Key() == asset.Key() && tr.Recipient == to {
			total.Add(total, tr.Amount)
		}
	}
	return total
}

func (h *harness) stakeOf(staker [20]byte, period uint64) *big.Int {
	h.t.Helper()
	info, err := h.engine.Staked(staker, period)
	if err != nil {
		h.t.Fatalf("staked: %v", err)
	}
	return info.Stake
}

func (h *harness) powerOf(staker [20]byte, asset Asset) *big.Int {
	h.t.Helper()
	powers, err := h.engine.RewardsPower(staker)
	if err != nil {
		h.t.Fatalf("rewards power: %v", err)
	}
	for _, p := range powers {
		if p.Asset.Key() == asset.Key() {
			return p.Amount
		}
	}
	return big.NewInt(0)
}

func (h *harness) totalPower(asset Asset) *big.Int {
	h.t.Helper()
	powers, err := h.engine.TotalRewardsPower()
	if err != nil {
		h.t.Fatalf("total rewards power: %v", err)
	}
	for _, p := range powers {
		if p.Asset.Key() == asset.Key() {
			return p.Amount
		}
	}
	return big.NewInt(0)
}

// checkTotals recomputes every period total from the individual stakes.
func (h *harness) checkTotals() {
	h.t.Helper()
	cfg, err := h.engine.Config()
	if err != nil {
		h.t.Fatalf("config: %v", err)
	}
	for _, period := range cfg.UnbondingPeriods {
		staked, powered := big.NewInt(0), big.NewInt(0)
		for _, staker := range h.ledger.Stakers() {
			info, ok, err := h.ledger.BondingGet(staker, period)
			if err != nil {
				h.t.Fatalf("bonding get: %v", err)
			}
			if !ok {
				continue
			}
			stake := info.TotalStake()
			staked.Add(staked, stake)
			if stake.Cmp(cfg.MinBond) >= 0 {
				powered.Add(powered, stake)
			}
		}
		total, err := h.ledger.TotalStakeGet(period)
		if err != nil {
			h.t.Fatalf("total get: %v", err)
		}
		if total.Clone().Staked.Cmp(staked) != 0 {
			h.t.Fatalf("period %d: total staked %s, sum of stakes %s", period, total.Staked, staked)
		}
		if total.Clone().PoweredStake.Cmp(powered) != 0 {
			h.t.Fatalf("period %d: powered stake %s, sum of powered stakes %s", period, total.PoweredStake, powered)
		}
	}
}

func expectAmount(t *testing.T, name string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %v, want %d", name, got, want)
	}
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func TestEngineRequiresState(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Bond(testToken, testCreator, 20, amt(1)); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	engine.SetState(NewLedger())
	if _, err := engine.Bond(testToken, testCreator, 20, amt(1)); !errors.Is(err, ErrNotInstantiated) {
		t.Fatalf("expected ErrNotInstantiated, got %v", err)
	}
	if _, err := engine.TotalStaked(); !errors.Is(err, ErrNotInstantiated) {
		t.Fatalf("expected ErrNotInstantiated from query, got %v", err)
	}
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	h := newHarness(t)
	staker := newTestAddress(0x01)
	h.pauses.Set(moduleName, true)
	_, err := h.engine.Bond(testToken, staker, 20, amt(5000))
	expectErr(t, err, ErrModulePaused)
	expectErr(t, err, common.ErrModulePaused)
	if KindOf(err) != KindState {
		t.Fatalf("expected state kind, got %s", KindOf(err))
	}
	h.pauses.Set(moduleName, false)
	h.bond(staker, 20, 5000)
	expectAmount(t, "stake", h.stakeOf(staker, 20), 5000)
}

func TestFailedCallLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	a, b := newTestAddress(0x01), newTestAddress(0x02)
	nearMax := new(big.Int).Sub(maxAmount, amt(10))
	if _, err := h.engine.Bond(testToken, a, 20, nearMax); err != nil {
		t.Fatalf("bond: %v", err)
	}
	h.events.Drain()

	// b is credited inside the journal before a overflows
	_, err := h.engine.MassBond(testToken, amt(20), 20, []Delegation{
		{Staker: b, Amount: amt(10)},
		{Staker: a, Amount: amt(11)},
	})
	expectErr(t, err, ErrMassDelegateTooMuch)
	_, err = h.engine.MassBond(testToken, amt(21), 20, []Delegation{
		{Staker: b, Amount: amt(10)},
		{Staker: a, Amount: amt(11)},
	})
	expectErr(t, err, ErrOverflow)
	if KindOf(err) != KindArithmetic {
		t.Fatalf("expected arithmetic kind, got %s", KindOf(err))
	}

	_, err = h.engine.Rebond(a, amt(7000), 20, 20)
	expectErr(t, err, ErrSameUnbondingRebond)

	_, err = h.engine.Unbond(b, 20, amt(1))
	expectErr(t, err, ErrInsufficientStake)

	if got := h.stakeOf(a, 20); got.Cmp(nearMax) != 0 {
		t.Fatalf("stake a changed: %s", got)
	}
	expectAmount(t, "stake b", h.stakeOf(b, 20), 0)
	total, err := h.engine.TotalStaked()
	if err != nil {
		t.Fatalf("total staked: %v", err)
	}
	if total.Cmp(nearMax) != 0 {
		t.Fatalf("total staked changed: %s", total)
	}
	claims, err := h.engine.Claims(b)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}
	if got := h.events.Types(); len(got) != 0 {
		t.Fatalf("failed calls must not emit events: %v", got)
	}
	h.checkTotals()
}
