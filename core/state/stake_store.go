package state

import (
	"encoding/binary"
	"math/big"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"nhbstake/native/stake"
	"nhbstake/native/stake/curve"
	"nhbstake/storage"
)

const defaultStakeCacheSize = 4096

var (
	stakeConfigKey    = ethcrypto.Keccak256([]byte("stake/config"))
	stakeAdminKey     = ethcrypto.Keccak256([]byte("stake/admin"))
	stakeUnbondAllKey = ethcrypto.Keccak256([]byte("stake/unbond-all"))
	stakeTokenInfoKey = ethcrypto.Keccak256([]byte("stake/token-info"))
	stakeAssetsKey    = ethcrypto.Keccak256([]byte("stake/assets"))

	stakeTotalPrefix      = []byte("stake/total/")
	stakeBondingPrefix    = []byte("stake/bonding/")
	stakeClaimsPrefix     = []byte("stake/claims/")
	stakeDistPrefix       = []byte("stake/distribution/")
	stakeCurvePrefix      = []byte("stake/curve/")
	stakeAdjustmentPrefix = []byte("stake/adjustment/")
	stakeDelegatedPrefix  = []byte("stake/delegated/")
	stakeBalancePrefix    = []byte("stake/balance/")
)

func stakeKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func periodBytes(period uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], period)
	return out[:]
}

func assetBytes(asset stake.Asset) []byte { return []byte(asset.Key()) }

type storedAddress struct {
	Set  bool
	Addr [20]byte
}

func newStoredAddress(addr *[20]byte) storedAddress {
	if addr == nil {
		return storedAddress{}
	}
	return storedAddress{Set: true, Addr: *addr}
}

func (s storedAddress) pointer() *[20]byte {
	if !s.Set {
		return nil
	}
	addr := s.Addr
	return &addr
}

type storedStakeConfig struct {
	StakedToken       [20]byte
	Instantiator      [20]byte
	TokensPerPower    *big.Int
	MinBond           *big.Int
	UnbondingPeriods  []uint64
	MaxDistributions  uint32
	Unbonder          storedAddress
	HasConverter      bool
	ConverterContract [20]byte
	ConverterPairTo   [20]byte
}

func newStoredStakeConfig(cfg *stake.Config) *storedStakeConfig {
	stored := &storedStakeConfig{
		StakedToken:      cfg.StakedToken,
		Instantiator:     cfg.Instantiator,
		TokensPerPower:   bigOrZero(cfg.TokensPerPower),
		MinBond:          bigOrZero(cfg.MinBond),
		UnbondingPeriods: append([]uint64(nil), cfg.UnbondingPeriods...),
		MaxDistributions: cfg.MaxDistributions,
		Unbonder:         newStoredAddress(cfg.Unbonder),
	}
	if cfg.Converter != nil {
		stored.HasConverter = true
		stored.ConverterContract = cfg.Converter.Contract
		stored.ConverterPairTo = cfg.Converter.PairTo
	}
	return stored
}

func (s *storedStakeConfig) toConfig() *stake.Config {
	cfg := &stake.Config{
		StakedToken:      s.StakedToken,
		Instantiator:     s.Instantiator,
		TokensPerPower:   bigOrZero(s.TokensPerPower),
		MinBond:          bigOrZero(s.MinBond),
		UnbondingPeriods: append([]uint64(nil), s.UnbondingPeriods...),
		MaxDistributions: s.MaxDistributions,
		Unbonder:         s.Unbonder.pointer(),
	}
	if s.HasConverter {
		cfg.Converter = &stake.ConverterConfig{Contract: s.ConverterContract, PairTo: s.ConverterPairTo}
	}
	return cfg
}

type storedMultiplier struct {
	Period     uint64
	Multiplier string
}

type storedDistribution struct {
	Manager           [20]byte
	RewardMultipliers []storedMultiplier
	SharesPerPoint    *big.Int
	SharesLeftover    *big.Int
	DistributedTotal  *big.Int
	WithdrawableTotal *big.Int
}

func newStoredDistribution(dist *stake.Distribution) *storedDistribution {
	stored := &storedDistribution{
		Manager:           dist.Manager,
		RewardMultipliers: make([]storedMultiplier, len(dist.RewardMultipliers)),
		SharesPerPoint:    bigOrZero(dist.SharesPerPoint),
		SharesLeftover:    bigOrZero(dist.SharesLeftover),
		DistributedTotal:  bigOrZero(dist.DistributedTotal),
		WithdrawableTotal: bigOrZero(dist.WithdrawableTotal),
	}
	for i, m := range dist.RewardMultipliers {
		stored.RewardMultipliers[i] = storedMultiplier{Period: m.Period, Multiplier: m.Multiplier.String()}
	}
	return stored
}

func (s *storedDistribution) toDistribution() (*stake.Distribution, error) {
	dist := &stake.Distribution{
		Manager:           s.Manager,
		RewardMultipliers: make([]stake.RewardMultiplier, len(s.RewardMultipliers)),
		SharesPerPoint:    bigOrZero(s.SharesPerPoint),
		SharesLeftover:    bigOrZero(s.SharesLeftover),
		DistributedTotal:  bigOrZero(s.DistributedTotal),
		WithdrawableTotal: bigOrZero(s.WithdrawableTotal),
	}
	for i, m := range s.RewardMultipliers {
		dec, err := sdkmath.LegacyNewDecFromStr(m.Multiplier)
		if err != nil {
			return nil, errors.Wrapf(err, "multiplier for period %d", m.Period)
		}
		dist.RewardMultipliers[i] = stake.RewardMultiplier{Period: m.Period, Multiplier: dec}
	}
	return dist, nil
}

// storedAdjustment splits the signed correction into sign and magnitude since
// RLP only encodes non-negative integers.
type storedAdjustment struct {
	Negative         bool
	Correction       *big.Int
	WithdrawnRewards *big.Int
}

func newStoredAdjustment(adj *stake.WithdrawAdjustment) *storedAdjustment {
	adj = adj.Clone()
	return &storedAdjustment{
		Negative:         adj.SharesCorrection.Sign() < 0,
		Correction:       new(big.Int).Abs(adj.SharesCorrection),
		WithdrawnRewards: adj.WithdrawnRewards,
	}
}

func (s *storedAdjustment) toAdjustment() *stake.WithdrawAdjustment {
	correction := bigOrZero(s.Correction)
	if s.Negative {
		correction.Neg(correction)
	}
	return &stake.WithdrawAdjustment{SharesCorrection: correction, WithdrawnRewards: bigOrZero(s.WithdrawnRewards)}
}

// StakeStore persists the stake engine state in a key-value database. Records
// are RLP encoded under hashed keys. Writes are buffered until Flush, which
// applies them as one batch.
type StakeStore struct {
	mu      sync.Mutex
	db      storage.Database
	cache   *lru.Cache
	pending map[string][]byte
}

// NewStakeStore wraps db with a read cache holding up to cacheSize records. A
// non-positive size selects the default.
func NewStakeStore(db storage.Database, cacheSize int) (*StakeStore, error) {
	if db == nil {
		return nil, errors.New("stake store: nil database")
	}
	if cacheSize <= 0 {
		cacheSize = defaultStakeCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "stake store: cache")
	}
	return &StakeStore{db: db, cache: cache, pending: make(map[string][]byte)}, nil
}

// Pending reports the number of buffered writes.
func (s *StakeStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every buffered record in one batch. On failure the buffer is
// dropped so reads reflect the database again.
func (s *StakeStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := s.db.NewBatch()
	for _, k := range keys {
		if value := s.pending[k]; value == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), value)
		}
	}
	err := batch.Write()
	if err != nil {
		for _, k := range keys {
			s.cache.Remove(k)
		}
		s.pending = make(map[string][]byte)
		return errors.Wrap(err, "stake store: flush")
	}
	for _, k := range keys {
		if value := s.pending[k]; value == nil {
			s.cache.Remove(k)
		} else {
			s.cache.Add(k, value)
		}
	}
	s.pending = make(map[string][]byte)
	return nil
}

// Discard drops every buffered write without touching the database.
func (s *StakeStore) Discard() {
	s.mu.Lock()
	s.pending = make(map[string][]byte)
	s.mu.Unlock()
}

func (s *StakeStore) read(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	if value, ok := s.pending[k]; ok {
		return value, value != nil, nil
	}
	if cached, ok := s.cache.Get(k); ok {
		return cached.([]byte), true, nil
	}
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.cache.Add(k, value)
	return value, true, nil
}

func (s *StakeStore) load(key []byte, out interface{}) (bool, error) {
	data, ok, err := s.read(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *StakeStore) store(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[string(key)] = encoded
	s.mu.Unlock()
	return nil
}

func (s *StakeStore) remove(key []byte) {
	s.mu.Lock()
	s.pending[string(key)] = nil
	s.mu.Unlock()
}

func (s *StakeStore) StakeConfigGet() (*stake.Config, bool, error) {
	var stored storedStakeConfig
	ok, err := s.load(stakeConfigKey, &stored)
	if err != nil {
		return nil, false, errors.Wrap(err, "stake store: config")
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toConfig(), true, nil
}

func (s *StakeStore) StakeConfigPut(cfg *stake.Config) error {
	if cfg == nil {
		return errors.New("stake store: nil config")
	}
	return errors.Wrap(s.store(stakeConfigKey, newStoredStakeConfig(cfg)), "stake store: config")
}

func (s *StakeStore) AdminGet() (*[20]byte, error) {
	var stored storedAddress
	if _, err := s.load(stakeAdminKey, &stored); err != nil {
		return nil, errors.Wrap(err, "stake store: admin")
	}
	return stored.pointer(), nil
}

func (s *StakeStore) AdminPut(admin *[20]byte) error {
	return errors.Wrap(s.store(stakeAdminKey, newStoredAddress(admin)), "stake store: admin")
}

func (s *StakeStore) UnbondAllGet() (bool, error) {
	var flag bool
	if _, err := s.load(stakeUnbondAllKey, &flag); err != nil {
		return false, errors.Wrap(err, "stake store: unbond all")
	}
	return flag, nil
}

func (s *StakeStore) UnbondAllPut(flag bool) error {
	return errors.Wrap(s.store(stakeUnbondAllKey, flag), "stake store: unbond all")
}

func (s *StakeStore) TokenInfoGet() (*stake.TokenInfo, error) {
	var info stake.TokenInfo
	ok, err := s.load(stakeTokenInfoKey, &info)
	if err != nil {
		return nil, errors.Wrap(err, "stake store: token info")
	}
	if !ok {
		return (*stake.TokenInfo)(nil).Clone(), nil
	}
	return info.Clone(), nil
}

func (s *StakeStore) TokenInfoPut(info *stake.TokenInfo) error {
	return errors.Wrap(s.store(stakeTokenInfoKey, info.Clone()), "stake store: token info")
}

func (s *StakeStore) TotalStakeGet(period uint64) (*stake.TotalStake, error) {
	var total stake.TotalStake
	ok, err := s.load(stakeKey(stakeTotalPrefix, periodBytes(period)), &total)
	if err != nil {
		return nil, errors.Wrapf(err, "stake store: total stake %d", period)
	}
	if !ok {
		return (*stake.TotalStake)(nil).Clone(), nil
	}
	return total.Clone(), nil
}

func (s *StakeStore) TotalStakePut(period uint64, total *stake.TotalStake) error {
	err := s.store(stakeKey(stakeTotalPrefix, periodBytes(period)), total.Clone())
	return errors.Wrapf(err, "stake store: total stake %d", period)
}

func (s *StakeStore) BondingGet(staker [20]byte, period uint64) (*stake.BondingInfo, bool, error) {
	var info stake.BondingInfo
	ok, err := s.load(stakeKey(stakeBondingPrefix, staker[:], periodBytes(period)), &info)
	if err != nil {
		return nil, false, errors.Wrap(err, "stake store: bonding")
	}
	if !ok {
		return nil, false, nil
	}
	return info.Clone(), true, nil
}

func (s *StakeStore) BondingPut(staker [20]byte, period uint64, info *stake.BondingInfo) error {
	err := s.store(stakeKey(stakeBondingPrefix, staker[:], periodBytes(period)), info.Clone())
	return errors.Wrap(err, "stake store: bonding")
}

func (s *StakeStore) ClaimsGet(staker [20]byte) ([]stake.Claim, error) {
	var claims []stake.Claim
	if _, err := s.load(stakeKey(stakeClaimsPrefix, staker[:]), &claims); err != nil {
		return nil, errors.Wrap(err, "stake store: claims")
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return claims, nil
}

func (s *StakeStore) ClaimsPut(staker [20]byte, claims []stake.Claim) error {
	key := stakeKey(stakeClaimsPrefix, staker[:])
	if len(claims) == 0 {
		s.remove(key)
		return nil
	}
	stored := make([]stake.Claim, len(claims))
	for i, c := range claims {
		stored[i] = stake.Claim{Amount: bigOrZero(c.Amount), ReleaseAt: c.ReleaseAt}
	}
	return errors.Wrap(s.store(key, stored), "stake store: claims")
}

func (s *StakeStore) DistributionGet(asset stake.Asset) (*stake.Distribution, bool, error) {
	var stored storedDistribution
	ok, err := s.load(stakeKey(stakeDistPrefix, assetBytes(asset)), &stored)
	if err != nil {
		return nil, false, errors.Wrapf(err, "stake store: distribution %s", asset)
	}
	if !ok {
		return nil, false, nil
	}
	dist, err := stored.toDistribution()
	if err != nil {
		return nil, false, errors.Wrapf(err, "stake store: distribution %s", asset)
	}
	return dist, true, nil
}

func (s *StakeStore) DistributionPut(asset stake.Asset, dist *stake.Distribution) error {
	if dist == nil {
		return errors.New("stake store: nil distribution")
	}
	assets, err := s.DistributionAssets()
	if err != nil {
		return err
	}
	idx := sort.Search(len(assets), func(i int) bool { return assets[i].Key() >= asset.Key() })
	if idx == len(assets) || assets[idx].Key() != asset.Key() {
		assets = append(assets, stake.Asset{})
		copy(assets[idx+1:], assets[idx:])
		assets[idx] = asset
		if err := s.store(stakeAssetsKey, assets); err != nil {
			return errors.Wrap(err, "stake store: asset index")
		}
	}
	err = s.store(stakeKey(stakeDistPrefix, assetBytes(asset)), newStoredDistribution(dist))
	return errors.Wrapf(err, "stake store: distribution %s", asset)
}

// DistributionAssets lists the registered reward assets ordered by key.
func (s *StakeStore) DistributionAssets() ([]stake.Asset, error) {
	var assets []stake.Asset
	if _, err := s.load(stakeAssetsKey, &assets); err != nil {
		return nil, errors.Wrap(err, "stake store: asset index")
	}
	return assets, nil
}

func (s *StakeStore) RewardCurveGet(asset stake.Asset) (curve.Curve, bool, error) {
	var c curve.Curve
	ok, err := s.load(stakeKey(stakeCurvePrefix, assetBytes(asset)), &c)
	if err != nil {
		return curve.Curve{}, false, errors.Wrapf(err, "stake store: curve %s", asset)
	}
	if !ok {
		return curve.Curve{}, false, nil
	}
	return c.Clone(), true, nil
}

func (s *StakeStore) RewardCurvePut(asset stake.Asset, c curve.Curve) error {
	return errors.Wrapf(s.store(stakeKey(stakeCurvePrefix, assetBytes(asset)), c.Clone()), "stake store: curve %s", asset)
}

func (s *StakeStore) AdjustmentGet(staker [20]byte, asset stake.Asset) (*stake.WithdrawAdjustment, bool, error) {
	var stored storedAdjustment
	ok, err := s.load(stakeKey(stakeAdjustmentPrefix, staker[:], assetBytes(asset)), &stored)
	if err != nil {
		return nil, false, errors.Wrap(err, "stake store: adjustment")
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toAdjustment(), true, nil
}

func (s *StakeStore) AdjustmentPut(staker [20]byte, asset stake.Asset, adj *stake.WithdrawAdjustment) error {
	err := s.store(stakeKey(stakeAdjustmentPrefix, staker[:], assetBytes(asset)), newStoredAdjustment(adj))
	return errors.Wrap(err, "stake store: adjustment")
}

func (s *StakeStore) DelegatedGet(owner [20]byte) ([20]byte, bool, error) {
	var delegated [20]byte
	ok, err := s.load(stakeKey(stakeDelegatedPrefix, owner[:]), &delegated)
	if err != nil {
		return [20]byte{}, false, errors.Wrap(err, "stake store: delegated")
	}
	return delegated, ok, nil
}

func (s *StakeStore) DelegatedPut(owner, delegated [20]byte) error {
	return errors.Wrap(s.store(stakeKey(stakeDelegatedPrefix, owner[:]), delegated), "stake store: delegated")
}

func (s *StakeStore) RewardBalanceGet(asset stake.Asset) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := s.load(stakeKey(stakeBalancePrefix, assetBytes(asset)), balance); err != nil {
		return nil, errors.Wrapf(err, "stake store: balance %s", asset)
	}
	return balance, nil
}

func (s *StakeStore) RewardBalancePut(asset stake.Asset, amount *big.Int) error {
	amount = bigOrZero(amount)
	if amount.Sign() < 0 {
		return errors.Errorf("stake store: negative balance for %s", asset)
	}
	return errors.Wrapf(s.store(stakeKey(stakeBalancePrefix, assetBytes(asset)), amount), "stake store: balance %s", asset)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

var _ stake.State = (*StakeStore)(nil)

