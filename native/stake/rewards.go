package stake

import (
	"math/big"
)

type distEntry struct {
	asset Asset
	dist  *Distribution
}

// loadDistributions returns every distribution flow in ascending asset order.
func loadDistributions(st State) ([]distEntry, error) {
	assets, err := st.DistributionAssets()
	if err != nil {
		return nil, err
	}
	out := make([]distEntry, 0, len(assets))
	for _, asset := range assets {
		dist, ok, err := st.DistributionGet(asset)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, distEntry{asset: asset, dist: dist})
	}
	return out, nil
}

// rewardsPower sums the per period power of staker in dist. Each period is
// floored on its own before summing.
func rewardsPower(st State, cfg *Config, staker [20]byte, dist *Distribution) (*big.Int, error) {
	power := big.NewInt(0)
	for _, m := range dist.RewardMultipliers {
		info, ok, err := st.BondingGet(staker, m.Period)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		power.Add(power, calcPower(cfg, info.TotalStake(), m.Multiplier))
	}
	if err := checkAmount(power); err != nil {
		return nil, err
	}
	return power, nil
}

// totalRewardsPower applies the power formula to the powered stake of every
// period.
func totalRewardsPower(st State, cfg *Config, dist *Distribution) (*big.Int, error) {
	power := big.NewInt(0)
	for _, m := range dist.RewardMultipliers {
		total, err := st.TotalStakeGet(m.Period)
		if err != nil {
			return nil, err
		}
		power.Add(power, calcPower(cfg, total.PoweredStake, m.Multiplier))
	}
	if err := checkAmount(power); err != nil {
		return nil, err
	}
	return power, nil
}

func rewardsPowers(st State, cfg *Config, staker [20]byte, dists []distEntry) ([]*big.Int, error) {
	out := make([]*big.Int, len(dists))
	for i, d := range dists {
		power, err := rewardsPower(st, cfg, staker, d.dist)
		if err != nil {
			return nil, err
		}
		out[i] = power
	}
	return out, nil
}

// updateRewards keeps the withdrawable amount of staker unchanged across a
// reward power change by moving the difference into the correction term.
func updateRewards(st State, asset Asset, staker [20]byte, dist *Distribution, oldPower, newPower *big.Int) error {
	if oldPower.Cmp(newPower) == 0 {
		return nil
	}
	diff := new(big.Int).Sub(newPower, oldPower)
	return applyPointsCorrection(st, staker, asset, dist.SharesPerPoint, diff)
}

func applyPointsCorrection(st State, staker [20]byte, asset Asset, sharesPerPoint, diff *big.Int) error {
	adj, _, err := st.AdjustmentGet(staker, asset)
	if err != nil {
		return err
	}
	adj = adj.Clone()
	delta := new(big.Int).Mul(cloneBigInt(sharesPerPoint), diff)
	adj.SharesCorrection = new(big.Int).Sub(adj.SharesCorrection, delta)
	return st.AdjustmentPut(staker, asset, adj)
}

// withdrawableRewards computes what owner may still withdraw from dist.
func withdrawableRewards(st State, cfg *Config, owner [20]byte, dist *Distribution, adj *WithdrawAdjustment) (*big.Int, error) {
	adj = adj.Clone()
	power, err := rewardsPower(st, cfg, owner, dist)
	if err != nil {
		return nil, err
	}
	points, err := mulPoints(dist.SharesPerPoint, power)
	if err != nil {
		return nil, err
	}
	points.Add(points, adj.SharesCorrection)
	if points.Sign() < 0 {
		return nil, ErrNegativeRewards
	}
	amount := points.Rsh(points, SharesShift)
	amount.Sub(amount, adj.WithdrawnRewards)
	if amount.Sign() < 0 {
		return nil, ErrNegativeRewards
	}
	return amount, nil
}

// applyStakeChange folds the move of one staker from oldStake to newStake in
// a period into total. Only stakes at or above the minimum bond count towards
// the powered stake.
func applyStakeChange(total *TotalStake, minBond, oldStake, newStake *big.Int) error {
	var err error
	if newStake.Cmp(oldStake) >= 0 {
		total.Staked, err = checkedAdd(total.Staked, new(big.Int).Sub(newStake, oldStake))
	} else {
		total.Staked, err = checkedSub(total.Staked, new(big.Int).Sub(oldStake, newStake))
	}
	if err != nil {
		return err
	}
	wasPowered := oldStake.Cmp(minBond) >= 0
	isPowered := newStake.Cmp(minBond) >= 0
	switch {
	case !wasPowered && isPowered:
		total.PoweredStake, err = checkedAdd(total.PoweredStake, newStake)
	case wasPowered && !isPowered:
		total.PoweredStake, err = checkedSub(total.PoweredStake, oldStake)
	case wasPowered && isPowered:
		if newStake.Cmp(oldStake) >= 0 {
			total.PoweredStake, err = checkedAdd(total.PoweredStake, new(big.Int).Sub(newStake, oldStake))
		} else {
			total.PoweredStake, err = checkedSub(total.PoweredStake, new(big.Int).Sub(oldStake, newStake))
		}
	}
	return err
}

// updateTotalStake applies one staker's full old and new stake of period to
// the stored totals.
func updateTotalStake(st State, cfg *Config, period uint64, oldStake, newStake *big.Int) error {
	if !cfg.HasPeriod(period) {
		return unknownPeriod(period)
	}
	total, err := st.TotalStakeGet(period)
	if err != nil {
		return err
	}
	total = total.Clone()
	if err := applyStakeChange(total, cloneBigInt(cfg.MinBond), oldStake, newStake); err != nil {
		return err
	}
	return st.TotalStakePut(period, total)
}

// changeStake runs mutate on the bonding info of staker for every given period
// and keeps the period totals and reward corrections in step.
func (c *call) changeStake(staker [20]byte, mutate func(period uint64, info *BondingInfo) error, periods ...uint64) error {
	dists, err := loadDistributions(c.st)
	if err != nil {
		return err
	}
	oldPowers, err := rewardsPowers(c.st, c.cfg, staker, dists)
	if err != nil {
		return err
	}
	for _, period := range periods {
		if !c.cfg.HasPeriod(period) {
			return unknownPeriod(period)
		}
		info, _, err := c.st.BondingGet(staker, period)
		if err != nil {
			return err
		}
		info = info.Clone()
		oldStake := info.TotalStake()
		if err := mutate(period, info); err != nil {
			return err
		}
		newStake := info.TotalStake()
		if err := checkAmount(newStake); err != nil {
			return err
		}
		if err := c.st.BondingPut(staker, period, info); err != nil {
			return err
		}
		if err := updateTotalStake(c.st, c.cfg, period, oldStake, newStake); err != nil {
			return err
		}
	}
	for i, d := range dists {
		newPower, err := rewardsPower(c.st, c.cfg, staker, d.dist)
		if err != nil {
			return err
		}
		if err := updateRewards(c.st, d.asset, staker, d.dist, oldPowers[i], newPower); err != nil {
			return err
		}
	}
	return nil
}

// removeStake releases amount from the stake of staker in period. The global
// token info is left to the caller.
func (c *call) removeStake(staker [20]byte, period uint64, amount *big.Int) error {
	if !c.cfg.HasPeriod(period) {
		return unknownPeriod(period)
	}
	return c.changeStake(staker, func(_ uint64, info *BondingInfo) error {
		return info.Release(c.now, amount)
	}, period)
}
