package stake

import (
	"math/big"

	sdkmath "cosmossdk.io/math"

	"nhbstake/native/stake/curve"
)

// StakedInfo is the stake of one address in one unbonding period.
type StakedInfo struct {
	Stake           *big.Int
	TotalLocked     *big.Int
	UnbondingPeriod uint64
	Token           [20]byte
}

// AssetAmount pairs a reward asset with an amount or a power.
type AssetAmount struct {
	Asset  Asset
	Amount *big.Int
}

// BondingPeriodInfo is the total stake of one unbonding period.
type BondingPeriodInfo struct {
	UnbondingPeriod uint64
	TotalStaked     *big.Int
}

// DistributedRewardsInfo lists lifetime and still withdrawable rewards per
// asset.
type DistributedRewardsInfo struct {
	Distributed  []AssetAmount
	Withdrawable []AssetAmount
}

// DistributionInfo exposes the raw accounting of one distribution flow.
type DistributionInfo struct {
	Asset        Asset
	Distribution *Distribution
}

// AnnualizedReward is the expected yearly reward per staked token of one
// asset. Amount is nil when nobody holds reward power yet.
type AnnualizedReward struct {
	Asset  Asset
	Amount *sdkmath.LegacyDec
}

// PeriodRewards groups the annualized rewards of one unbonding period.
type PeriodRewards struct {
	UnbondingPeriod uint64
	Rewards         []AnnualizedReward
}

// Config returns the engine configuration.
func (e *Engine) Config() (*Config, error) {
	var out *Config
	err := e.view(func(_ State, cfg *Config) error {
		out = cfg.Clone()
		return nil
	})
	return out, err
}

// Admin returns the current admin, nil when the role is unset.
func (e *Engine) Admin() (*[20]byte, error) {
	var out *[20]byte
	err := e.view(func(st State, _ *Config) error {
		admin, err := st.AdminGet()
		out = copyAddrPtr(admin)
		return err
	})
	return out, err
}

// IsUnbondAll reports whether emergency mode is active.
func (e *Engine) IsUnbondAll() (bool, error) {
	var out bool
	err := e.view(func(st State, _ *Config) error {
		flag, err := st.UnbondAllGet()
		out = flag
		return err
	})
	return out, err
}

// Staked returns the stake of addr in period.
func (e *Engine) Staked(addr [20]byte, period uint64) (*StakedInfo, error) {
	var out *StakedInfo
	err := e.view(func(st State, cfg *Config) error {
		if !cfg.HasPeriod(period) {
			return unknownPeriod(period)
		}
		info, _, err := st.BondingGet(addr, period)
		if err != nil {
			return err
		}
		out = stakedInfo(cfg, info, period, e.now())
		return nil
	})
	return out, err
}

// AllStaked returns the stake of addr in every period it ever bonded into.
func (e *Engine) AllStaked(addr [20]byte) ([]StakedInfo, error) {
	var out []StakedInfo
	err := e.view(func(st State, cfg *Config) error {
		now := e.now()
		for _, period := range cfg.UnbondingPeriods {
			info, ok, err := st.BondingGet(addr, period)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			out = append(out, *stakedInfo(cfg, info, period, now))
		}
		return nil
	})
	return out, err
}

func stakedInfo(cfg *Config, info *BondingInfo, period, now uint64) *StakedInfo {
	info = info.Clone()
	return &StakedInfo{
		Stake:           info.TotalStake(),
		TotalLocked:     info.TotalLocked(now),
		UnbondingPeriod: period,
		Token:           cfg.StakedToken,
	}
}

// TotalStaked returns the staked token held across all periods.
func (e *Engine) TotalStaked() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(st State, _ *Config) error {
		info, err := st.TokenInfoGet()
		out = info.Clone().Staked
		return err
	})
	return out, err
}

// TotalUnbonding returns the staked token waiting in claims.
func (e *Engine) TotalUnbonding() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(st State, _ *Config) error {
		info, err := st.TokenInfoGet()
		out = info.Clone().Unbonding
		return err
	})
	return out, err
}

// BondingInfo returns the total stake of every period.
func (e *Engine) BondingInfo() ([]BondingPeriodInfo, error) {
	var out []BondingPeriodInfo
	err := e.view(func(st State, cfg *Config) error {
		for _, period := range cfg.UnbondingPeriods {
			total, err := st.TotalStakeGet(period)
			if err != nil {
				return err
			}
			out = append(out, BondingPeriodInfo{UnbondingPeriod: period, TotalStaked: total.Clone().Staked})
		}
		return nil
	})
	return out, err
}

// RewardsPower returns the nonzero reward power of addr per distribution.
func (e *Engine) RewardsPower(addr [20]byte) ([]AssetAmount, error) {
	var out []AssetAmount
	err := e.view(func(st State, cfg *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			power, err := rewardsPower(st, cfg, addr, d.dist)
			if err != nil {
				return err
			}
			if power.Sign() == 0 {
				continue
			}
			out = append(out, AssetAmount{Asset: d.asset, Amount: power})
		}
		return nil
	})
	return out, err
}

// TotalRewardsPower returns the total reward power per distribution.
func (e *Engine) TotalRewardsPower() ([]AssetAmount, error) {
	var out []AssetAmount
	err := e.view(func(st State, cfg *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			power, err := totalRewardsPower(st, cfg, d.dist)
			if err != nil {
				return err
			}
			out = append(out, AssetAmount{Asset: d.asset, Amount: power})
		}
		return nil
	})
	return out, err
}

// WithdrawableRewards returns what owner could withdraw now, per distribution.
func (e *Engine) WithdrawableRewards(owner [20]byte) ([]AssetAmount, error) {
	var out []AssetAmount
	err := e.view(func(st State, cfg *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			adj, _, err := st.AdjustmentGet(owner, d.asset)
			if err != nil {
				return err
			}
			reward, err := withdrawableRewards(st, cfg, owner, d.dist, adj)
			if err != nil {
				return err
			}
			out = append(out, AssetAmount{Asset: d.asset, Amount: reward})
		}
		return nil
	})
	return out, err
}

// DistributedRewards returns the lifetime and outstanding totals of every
// distribution.
func (e *Engine) DistributedRewards() (*DistributedRewardsInfo, error) {
	out := &DistributedRewardsInfo{}
	err := e.view(func(st State, _ *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			out.Distributed = append(out.Distributed, AssetAmount{Asset: d.asset, Amount: cloneBigInt(d.dist.DistributedTotal)})
			out.Withdrawable = append(out.Withdrawable, AssetAmount{Asset: d.asset, Amount: cloneBigInt(d.dist.WithdrawableTotal)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UndistributedRewards returns the held balance of every reward asset that is
// not yet owed to stakers. Amounts still locked in the release curve are
// included.
func (e *Engine) UndistributedRewards() ([]AssetAmount, error) {
	var out []AssetAmount
	err := e.view(func(st State, _ *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			balance, err := st.RewardBalanceGet(d.asset)
			if err != nil {
				return err
			}
			amount, err := checkedSub(balance, d.dist.WithdrawableTotal)
			if err != nil {
				return err
			}
			out = append(out, AssetAmount{Asset: d.asset, Amount: amount})
		}
		return nil
	})
	return out, err
}

// Delegated returns the registered receiver of owner, owner itself by default.
func (e *Engine) Delegated(owner [20]byte) ([20]byte, error) {
	out := owner
	err := e.view(func(st State, _ *Config) error {
		delegated, ok, err := st.DelegatedGet(owner)
		if err != nil {
			return err
		}
		if ok {
			out = delegated
		}
		return nil
	})
	return out, err
}

// DistributionData returns the raw state of every distribution.
func (e *Engine) DistributionData() ([]DistributionInfo, error) {
	var out []DistributionInfo
	err := e.view(func(st State, _ *Config) error {
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			out = append(out, DistributionInfo{Asset: d.asset, Distribution: d.dist})
		}
		return nil
	})
	return out, err
}

// WithdrawAdjustmentData returns the correction state of addr for asset,
// zero when none was recorded.
func (e *Engine) WithdrawAdjustmentData(addr [20]byte, asset Asset) (*WithdrawAdjustment, error) {
	var out *WithdrawAdjustment
	err := e.view(func(st State, _ *Config) error {
		adj, _, err := st.AdjustmentGet(addr, asset)
		out = adj.Clone()
		return err
	})
	return out, err
}

// Claims returns the open claims of addr.
func (e *Engine) Claims(addr [20]byte) ([]Claim, error) {
	var out []Claim
	err := e.view(func(st State, _ *Config) error {
		claims, err := st.ClaimsGet(addr)
		out = claims
		return err
	})
	return out, err
}

// RewardCurve returns the release schedule of asset.
func (e *Engine) RewardCurve(asset Asset) (curve.Curve, error) {
	var out curve.Curve
	err := e.view(func(st State, _ *Config) error {
		if _, ok, err := st.DistributionGet(asset); err != nil {
			return err
		} else if !ok {
			return ErrNoDistributionFlow
		}
		c, _, err := st.RewardCurveGet(asset)
		out = c
		return err
	})
	return out, err
}

// AnnualizedRewards estimates, per unbonding period and distribution, the
// yearly reward for one staked token at the current release rate.
func (e *Engine) AnnualizedRewards() ([]PeriodRewards, error) {
	var out []PeriodRewards
	err := e.view(func(st State, cfg *Config) error {
		type stats struct {
			asset  Asset
			dist   *Distribution
			total  *big.Int
			payout sdkmath.LegacyDec
		}
		now := e.now()
		dists, err := loadDistributions(st)
		if err != nil {
			return err
		}
		all := make([]stats, 0, len(dists))
		for _, d := range dists {
			total, err := totalRewardsPower(st, cfg, d.dist)
			if err != nil {
				return err
			}
			payout := sdkmath.LegacyZeroDec()
			if schedule, ok, err := st.RewardCurveGet(d.asset); err != nil {
				return err
			} else if ok {
				payout = annualizedPayout(schedule, now)
			}
			all = append(all, stats{asset: d.asset, dist: d.dist, total: total, payout: payout})
		}
		for _, period := range cfg.UnbondingPeriods {
			rewards := make([]AnnualizedReward, 0, len(all))
			for _, s := range all {
				if s.total.Sign() == 0 {
					rewards = append(rewards, AnnualizedReward{Asset: s.asset})
					continue
				}
				multiplier, err := s.dist.Multiplier(period)
				if err != nil {
					return err
				}
				denom := new(big.Int).Mul(s.total, cloneBigInt(cfg.TokensPerPower))
				apr := multiplier.Mul(s.payout).QuoInt(sdkmath.NewIntFromBigInt(denom))
				rewards = append(rewards, AnnualizedReward{Asset: s.asset, Amount: &apr})
			}
			out = append(out, PeriodRewards{UnbondingPeriod: period, Rewards: rewards})
		}
		return nil
	})
	return out, err
}
