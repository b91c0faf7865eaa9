package stake

import (
	"math/big"
	"sync"

	"nhbstake/native/stake/curve"
)

// Ledger is an in-memory engine state. Each record family lives in its own
// map keyed by staker, period or asset; records are copied on every read and
// write so callers never share memory with the ledger.
type Ledger struct {
	mu sync.RWMutex

	config    *Config
	admin     *[20]byte
	unbondAll bool
	tokenInfo *TokenInfo

	totals      map[uint64]*TotalStake
	bonding     map[bondingKey]*BondingInfo
	claims      map[[20]byte][]Claim
	dists       map[string]assetEntry[*Distribution]
	curves      map[string]assetEntry[curve.Curve]
	adjustments map[adjustmentKey]*WithdrawAdjustment
	delegated   map[[20]byte][20]byte
	balances    map[string]*big.Int
}

// NewLedger returns an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		totals:      make(map[uint64]*TotalStake),
		bonding:     make(map[bondingKey]*BondingInfo),
		claims:      make(map[[20]byte][]Claim),
		dists:       make(map[string]assetEntry[*Distribution]),
		curves:      make(map[string]assetEntry[curve.Curve]),
		adjustments: make(map[adjustmentKey]*WithdrawAdjustment),
		delegated:   make(map[[20]byte][20]byte),
		balances:    make(map[string]*big.Int),
	}
}

func (l *Ledger) StakeConfigGet() (*Config, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return nil, false, nil
	}
	return l.config.Clone(), true, nil
}

func (l *Ledger) StakeConfigPut(cfg *Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = cfg.Clone()
	return nil
}

func (l *Ledger) AdminGet() (*[20]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyAddrPtr(l.admin), nil
}

func (l *Ledger) AdminPut(admin *[20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.admin = copyAddrPtr(admin)
	return nil
}

func (l *Ledger) UnbondAllGet() (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unbondAll, nil
}

func (l *Ledger) UnbondAllPut(flag bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unbondAll = flag
	return nil
}

func (l *Ledger) TokenInfoGet() (*TokenInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tokenInfo.Clone(), nil
}

func (l *Ledger) TokenInfoPut(info *TokenInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokenInfo = info.Clone()
	return nil
}

func (l *Ledger) TotalStakeGet(period uint64) (*TotalStake, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[period].Clone(), nil
}

func (l *Ledger) TotalStakePut(period uint64, total *TotalStake) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals[period] = total.Clone()
	return nil
}

func (l *Ledger) BondingGet(staker [20]byte, period uint64) (*BondingInfo, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.bonding[bondingKey{staker, period}]
	if !ok {
		return nil, false, nil
	}
	return info.Clone(), true, nil
}

func (l *Ledger) BondingPut(staker [20]byte, period uint64, info *BondingInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bonding[bondingKey{staker, period}] = info.Clone()
	return nil
}

func (l *Ledger) ClaimsGet(staker [20]byte) ([]Claim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneClaims(l.claims[staker]), nil
}

func (l *Ledger) ClaimsPut(staker [20]byte, claims []Claim) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(claims) == 0 {
		delete(l.claims, staker)
		return nil
	}
	l.claims[staker] = cloneClaims(claims)
	return nil
}

func (l *Ledger) DistributionGet(asset Asset) (*Distribution, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.dists[asset.Key()]
	if !ok {
		return nil, false, nil
	}
	return entry.value.Clone(), true, nil
}

func (l *Ledger) DistributionPut(asset Asset, dist *Distribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dists[asset.Key()] = assetEntry[*Distribution]{asset: asset, value: dist.Clone()}
	return nil
}

func (l *Ledger) DistributionAssets() ([]Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	assets := make([]Asset, 0, len(l.dists))
	for _, entry := range l.dists {
		assets = append(assets, entry.asset)
	}
	sortAssets(assets)
	return assets, nil
}

func (l *Ledger) RewardCurveGet(asset Asset) (curve.Curve, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.curves[asset.Key()]
	if !ok {
		return curve.Curve{}, false, nil
	}
	return entry.value.Clone(), true, nil
}

func (l *Ledger) RewardCurvePut(asset Asset, c curve.Curve) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.curves[asset.Key()] = assetEntry[curve.Curve]{asset: asset, value: c.Clone()}
	return nil
}

func (l *Ledger) AdjustmentGet(staker [20]byte, asset Asset) (*WithdrawAdjustment, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	adj, ok := l.adjustments[adjustmentKey{staker, asset.Key()}]
	if !ok {
		return nil, false, nil
	}
	return adj.Clone(), true, nil
}

func (l *Ledger) AdjustmentPut(staker [20]byte, asset Asset, adj *WithdrawAdjustment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjustments[adjustmentKey{staker, asset.Key()}] = adj.Clone()
	return nil
}

func (l *Ledger) DelegatedGet(owner [20]byte) ([20]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	delegated, ok := l.delegated[owner]
	return delegated, ok, nil
}

func (l *Ledger) DelegatedPut(owner, delegated [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegated[owner] = delegated
	return nil
}

func (l *Ledger) RewardBalanceGet(asset Asset) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneBigInt(l.balances[asset.Key()]), nil
}

func (l *Ledger) RewardBalancePut(asset Asset, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset.Key()] = cloneBigInt(amount)
	return nil
}

// Stakers lists every address holding a bonding record, in byte order. It is
// used by invariant checks and audits and is not part of the engine surface.
func (l *Ledger) Stakers() [][20]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[[20]byte]struct{})
	for k := range l.bonding {
		seen[k.staker] = struct{}{}
	}
	return sortedAddrs(seen)
}
