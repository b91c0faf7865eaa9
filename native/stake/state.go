package stake

import (
	"bytes"
	"math/big"
	"sort"

	"nhbstake/native/stake/curve"
)

// State is the storage surface of the engine. Getters return copies the
// engine may mutate freely; nothing is visible to other readers until the
// matching Put.
type State interface {
	StakeConfigGet() (*Config, bool, error)
	StakeConfigPut(cfg *Config) error
	AdminGet() (*[20]byte, error)
	AdminPut(admin *[20]byte) error
	UnbondAllGet() (bool, error)
	UnbondAllPut(flag bool) error
	TokenInfoGet() (*TokenInfo, error)
	TokenInfoPut(info *TokenInfo) error
	TotalStakeGet(period uint64) (*TotalStake, error)
	TotalStakePut(period uint64, total *TotalStake) error
	BondingGet(staker [20]byte, period uint64) (*BondingInfo, bool, error)
	BondingPut(staker [20]byte, period uint64, info *BondingInfo) error
	ClaimsGet(staker [20]byte) ([]Claim, error)
	ClaimsPut(staker [20]byte, claims []Claim) error
	DistributionGet(asset Asset) (*Distribution, bool, error)
	DistributionPut(asset Asset, dist *Distribution) error
	DistributionAssets() ([]Asset, error)
	RewardCurveGet(asset Asset) (curve.Curve, bool, error)
	RewardCurvePut(asset Asset, c curve.Curve) error
	AdjustmentGet(staker [20]byte, asset Asset) (*WithdrawAdjustment, bool, error)
	AdjustmentPut(staker [20]byte, asset Asset, adj *WithdrawAdjustment) error
	DelegatedGet(owner [20]byte) ([20]byte, bool, error)
	DelegatedPut(owner, delegated [20]byte) error
	RewardBalanceGet(asset Asset) (*big.Int, error)
	RewardBalancePut(asset Asset, amount *big.Int) error
}

// flusher is implemented by backends that buffer writes and persist them as a
// single batch. Discard drops the buffer of a commit that failed midway.
type flusher interface {
	Flush() error
	Discard()
}

type bondingKey struct {
	staker [20]byte
	period uint64
}

type adjustmentKey struct {
	staker [20]byte
	asset  string
}

type assetEntry[T any] struct {
	asset Asset
	value T
}

// journal overlays a backing state for the duration of one call. Writes are
// buffered and only reach the backing state on commit, so a failed call leaves
// the ledger untouched.
type journal struct {
	base State

	config    *Config
	admin     **[20]byte
	unbondAll *bool
	tokenInfo *TokenInfo

	totals      map[uint64]*TotalStake
	bonding     map[bondingKey]*BondingInfo
	claims      map[[20]byte][]Claim
	dists       map[string]assetEntry[*Distribution]
	curves      map[string]assetEntry[curve.Curve]
	adjustments map[adjustmentKey]assetEntry[*WithdrawAdjustment]
	delegated   map[[20]byte][20]byte
	balances    map[string]assetEntry[*big.Int]
}

func newJournal(base State) *journal {
	return &journal{
		base:        base,
		totals:      make(map[uint64]*TotalStake),
		bonding:     make(map[bondingKey]*BondingInfo),
		claims:      make(map[[20]byte][]Claim),
		dists:       make(map[string]assetEntry[*Distribution]),
		curves:      make(map[string]assetEntry[curve.Curve]),
		adjustments: make(map[adjustmentKey]assetEntry[*WithdrawAdjustment]),
		delegated:   make(map[[20]byte][20]byte),
		balances:    make(map[string]assetEntry[*big.Int]),
	}
}

func (j *journal) StakeConfigGet() (*Config, bool, error) {
	if j.config != nil {
		return j.config.Clone(), true, nil
	}
	return j.base.StakeConfigGet()
}

func (j *journal) StakeConfigPut(cfg *Config) error {
	j.config = cfg.Clone()
	return nil
}

func (j *journal) AdminGet() (*[20]byte, error) {
	if j.admin != nil {
		return copyAddrPtr(*j.admin), nil
	}
	return j.base.AdminGet()
}

func (j *journal) AdminPut(admin *[20]byte) error {
	stored := copyAddrPtr(admin)
	j.admin = &stored
	return nil
}

func (j *journal) UnbondAllGet() (bool, error) {
	if j.unbondAll != nil {
		return *j.unbondAll, nil
	}
	return j.base.UnbondAllGet()
}

func (j *journal) UnbondAllPut(flag bool) error {
	j.unbondAll = &flag
	return nil
}

func (j *journal) TokenInfoGet() (*TokenInfo, error) {
	if j.tokenInfo != nil {
		return j.tokenInfo.Clone(), nil
	}
	return j.base.TokenInfoGet()
}

func (j *journal) TokenInfoPut(info *TokenInfo) error {
	j.tokenInfo = info.Clone()
	return nil
}

func (j *journal) TotalStakeGet(period uint64) (*TotalStake, error) {
	if total, ok := j.totals[period]; ok {
		return total.Clone(), nil
	}
	return j.base.TotalStakeGet(period)
}

func (j *journal) TotalStakePut(period uint64, total *TotalStake) error {
	j.totals[period] = total.Clone()
	return nil
}

func (j *journal) BondingGet(staker [20]byte, period uint64) (*BondingInfo, bool, error) {
	if info, ok := j.bonding[bondingKey{staker, period}]; ok {
		return info.Clone(), true, nil
	}
	return j.base.BondingGet(staker, period)
}

func (j *journal) BondingPut(staker [20]byte, period uint64, info *BondingInfo) error {
	j.bonding[bondingKey{staker, period}] = info.Clone()
	return nil
}

func (j *journal) ClaimsGet(staker [20]byte) ([]Claim, error) {
	if claims, ok := j.claims[staker]; ok {
		return cloneClaims(claims), nil
	}
	return j.base.ClaimsGet(staker)
}

func (j *journal) ClaimsPut(staker [20]byte, claims []Claim) error {
	j.claims[staker] = cloneClaims(claims)
	return nil
}

func (j *journal) DistributionGet(asset Asset) (*Distribution, bool, error) {
	if entry, ok := j.dists[asset.Key()]; ok {
		return entry.value.Clone(), true, nil
	}
	return j.base.DistributionGet(asset)
}

func (j *journal) DistributionPut(asset Asset, dist *Distribution) error {
	j.dists[asset.Key()] = assetEntry[*Distribution]{asset: asset, value: dist.Clone()}
	return nil
}

func (j *journal) DistributionAssets() ([]Asset, error) {
	assets, err := j.base.DistributionAssets()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		seen[a.Key()] = struct{}{}
	}
	for key, entry := range j.dists {
		if _, ok := seen[key]; !ok {
			assets = append(assets, entry.asset)
		}
	}
	sortAssets(assets)
	return assets, nil
}

func (j *journal) RewardCurveGet(asset Asset) (curve.Curve, bool, error) {
	if entry, ok := j.curves[asset.Key()]; ok {
		return entry.value.Clone(), true, nil
	}
	return j.base.RewardCurveGet(asset)
}

func (j *journal) RewardCurvePut(asset Asset, c curve.Curve) error {
	j.curves[asset.Key()] = assetEntry[curve.Curve]{asset: asset, value: c.Clone()}
	return nil
}

func (j *journal) AdjustmentGet(staker [20]byte, asset Asset) (*WithdrawAdjustment, bool, error) {
	if entry, ok := j.adjustments[adjustmentKey{staker, asset.Key()}]; ok {
		return entry.value.Clone(), true, nil
	}
	return j.base.AdjustmentGet(staker, asset)
}

func (j *journal) AdjustmentPut(staker [20]byte, asset Asset, adj *WithdrawAdjustment) error {
	j.adjustments[adjustmentKey{staker, asset.Key()}] = assetEntry[*WithdrawAdjustment]{asset: asset, value: adj.Clone()}
	return nil
}

func (j *journal) DelegatedGet(owner [20]byte) ([20]byte, bool, error) {
	if delegated, ok := j.delegated[owner]; ok {
		return delegated, true, nil
	}
	return j.base.DelegatedGet(owner)
}

func (j *journal) DelegatedPut(owner, delegated [20]byte) error {
	j.delegated[owner] = delegated
	return nil
}

func (j *journal) RewardBalanceGet(asset Asset) (*big.Int, error) {
	if entry, ok := j.balances[asset.Key()]; ok {
		return cloneBigInt(entry.value), nil
	}
	return j.base.RewardBalanceGet(asset)
}

func (j *journal) RewardBalancePut(asset Asset, amount *big.Int) error {
	j.balances[asset.Key()] = assetEntry[*big.Int]{asset: asset, value: cloneBigInt(amount)}
	return nil
}

// commit writes every buffered record to the backing state in a deterministic
// order and flushes backends that batch their writes. A failed write discards
// whatever the batching backend buffered for this commit.
func (j *journal) commit() error {
	err := j.write()
	f, ok := j.base.(flusher)
	switch {
	case !ok:
		return err
	case err != nil:
		f.Discard()
		return err
	}
	return f.Flush()
}

func (j *journal) write() error {
	if j.config != nil {
		if err := j.base.StakeConfigPut(j.config); err != nil {
			return err
		}
	}
	if j.admin != nil {
		if err := j.base.AdminPut(*j.admin); err != nil {
			return err
		}
	}
	if j.unbondAll != nil {
		if err := j.base.UnbondAllPut(*j.unbondAll); err != nil {
			return err
		}
	}
	if j.tokenInfo != nil {
		if err := j.base.TokenInfoPut(j.tokenInfo); err != nil {
			return err
		}
	}
	periods := make([]uint64, 0, len(j.totals))
	for p := range j.totals {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(a, b int) bool { return periods[a] < periods[b] })
	for _, p := range periods {
		if err := j.base.TotalStakePut(p, j.totals[p]); err != nil {
			return err
		}
	}
	bondingKeys := make([]bondingKey, 0, len(j.bonding))
	for k := range j.bonding {
		bondingKeys = append(bondingKeys, k)
	}
	sort.Slice(bondingKeys, func(a, b int) bool {
		if c := compareAddr(bondingKeys[a].staker, bondingKeys[b].staker); c != 0 {
			return c < 0
		}
		return bondingKeys[a].period < bondingKeys[b].period
	})
	for _, k := range bondingKeys {
		if err := j.base.BondingPut(k.staker, k.period, j.bonding[k]); err != nil {
			return err
		}
	}
	for _, staker := range sortedAddrs(j.claims) {
		if err := j.base.ClaimsPut(staker, j.claims[staker]); err != nil {
			return err
		}
	}
	for _, key := range sortedStringKeys(j.dists) {
		entry := j.dists[key]
		if err := j.base.DistributionPut(entry.asset, entry.value); err != nil {
			return err
		}
	}
	for _, key := range sortedStringKeys(j.curves) {
		entry := j.curves[key]
		if err := j.base.RewardCurvePut(entry.asset, entry.value); err != nil {
			return err
		}
	}
	adjKeys := make([]adjustmentKey, 0, len(j.adjustments))
	for k := range j.adjustments {
		adjKeys = append(adjKeys, k)
	}
	sort.Slice(adjKeys, func(a, b int) bool {
		if c := compareAddr(adjKeys[a].staker, adjKeys[b].staker); c != 0 {
			return c < 0
		}
		return adjKeys[a].asset < adjKeys[b].asset
	})
	for _, k := range adjKeys {
		entry := j.adjustments[k]
		if err := j.base.AdjustmentPut(k.staker, entry.asset, entry.value); err != nil {
			return err
		}
	}
	for _, owner := range sortedAddrs(j.delegated) {
		if err := j.base.DelegatedPut(owner, j.delegated[owner]); err != nil {
			return err
		}
	}
	for _, key := range sortedStringKeys(j.balances) {
		entry := j.balances[key]
		if err := j.base.RewardBalancePut(entry.asset, entry.value); err != nil {
			return err
		}
	}
	return nil
}

func sortAssets(assets []Asset) {
	sort.Slice(assets, func(a, b int) bool { return assets[a].Key() < assets[b].Key() })
}

func sortedStringKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAddrs[T any](m map[[20]byte]T) [][20]byte {
	keys := make([][20]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return compareAddr(keys[a], keys[b]) < 0 })
	return keys
}

func compareAddr(a, b [20]byte) int { return bytes.Compare(a[:], b[:]) }

func copyAddrPtr(addr *[20]byte) *[20]byte {
	if addr == nil {
		return nil
	}
	out := *addr
	return &out
}
