package stake

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"nhbstake/core/events"
	"nhbstake/native/stake/curve"
)

// CreateDistributionFlow registers asset as a reward stream weighted by one
// multiplier per unbonding period. Only the admin may call it.
func (e *Engine) CreateDistributionFlow(sender, manager [20]byte, asset Asset, multipliers []RewardMultiplier) (*Receipt, error) {
	return e.apply(func(c *call) error {
		admin, err := c.st.AdminGet()
		if err != nil {
			return err
		}
		if admin == nil || *admin != sender {
			return ErrUnauthorized
		}
		if err := asset.Validate(); err != nil {
			return err
		}
		if asset.Key() == c.cfg.StakedAsset().Key() {
			return fmt.Errorf("%w: staked token cannot be distributed", ErrInvalidAsset)
		}
		if err := validateMultipliers(c.cfg.UnbondingPeriods, multipliers); err != nil {
			return err
		}
		assets, err := c.st.DistributionAssets()
		if err != nil {
			return err
		}
		if len(assets) >= int(c.cfg.MaxDistributions) {
			return fmt.Errorf("%w: limit %d", ErrTooManyDistributions, c.cfg.MaxDistributions)
		}
		for _, existing := range assets {
			if existing.Key() == asset.Key() {
				return fmt.Errorf("%w: %s", ErrDistributionAlreadyExists, asset)
			}
		}
		if err := c.st.RewardCurvePut(asset, curve.Constant(big.NewInt(0))); err != nil {
			return err
		}
		dist := &Distribution{
			Manager:           manager,
			RewardMultipliers: make([]RewardMultiplier, len(multipliers)),
			SharesPerPoint:    big.NewInt(0),
			SharesLeftover:    big.NewInt(0),
			DistributedTotal:  big.NewInt(0),
			WithdrawableTotal: big.NewInt(0),
		}
		for i, m := range multipliers {
			dist.RewardMultipliers[i] = RewardMultiplier{Period: m.Period, Multiplier: m.Multiplier.Clone()}
		}
		if err := c.st.DistributionPut(asset, dist); err != nil {
			return err
		}
		c.emit(events.DistributionCreated{Asset: asset.Key(), Manager: manager})
		return nil
	})
}

// validateMultipliers requires one non-negative multiplier per configured
// period, in period order, never decreasing.
func validateMultipliers(periods []uint64, multipliers []RewardMultiplier) error {
	if len(multipliers) != len(periods) {
		return fmt.Errorf("%w: want %d multipliers, got %d", ErrInvalidRewards, len(periods), len(multipliers))
	}
	for i, m := range multipliers {
		if m.Period != periods[i] {
			return fmt.Errorf("%w: multiplier %d targets period %d, want %d", ErrInvalidRewards, i, m.Period, periods[i])
		}
		if m.Multiplier.IsNil() || m.Multiplier.IsNegative() {
			return fmt.Errorf("%w: multiplier for period %d must be non-negative", ErrInvalidRewards, m.Period)
		}
		if i > 0 && m.Multiplier.LT(multipliers[i-1].Multiplier) {
			return fmt.Errorf("%w: multipliers must not decrease", ErrInvalidRewards)
		}
	}
	return nil
}

// FundDistribution extends the release schedule of every attached native
// asset with a linear release of info.Amount.
func (e *Engine) FundDistribution(sender [20]byte, info FundingInfo, funds []Coin) (*Receipt, error) {
	return e.apply(func(c *call) error {
		unbondAll, err := c.unbondAll()
		if err != nil {
			return err
		}
		if unbondAll {
			return ErrDistributeIfUnbondAll
		}
		if info.StartTime < c.now {
			return ErrPastStartingTime
		}
		for _, coin := range funds {
			if coin.Asset.Kind != AssetNative {
				return fmt.Errorf("%w: only native funds can be attached", ErrInvalidAsset)
			}
			if err := c.fund(coin.Asset, coin.Amount, info); err != nil {
				return err
			}
		}
		return nil
	})
}

// fund merges a linear release of info.Amount into the curve of asset. The
// schedule must lock no more than was sent and must fully unlock.
func (c *call) fund(asset Asset, sent *big.Int, info FundingInfo) error {
	sent = cloneBigInt(sent)
	if err := checkAmount(sent); err != nil {
		return err
	}
	if _, ok, err := c.st.DistributionGet(asset); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNoDistributionFlow, asset)
	}
	previous, ok, err := c.st.RewardCurveGet(asset)
	if err != nil {
		return err
	}
	if !ok {
		previous = curve.Constant(big.NewInt(0))
	}
	end := info.StartTime + info.DistributionDuration
	if end < info.StartTime {
		return ErrOverflow
	}
	amount := cloneBigInt(info.Amount)
	schedule := curve.SaturatingLinear(
		curve.Point{X: info.StartTime, Y: amount},
		curve.Point{X: end, Y: big.NewInt(0)},
	)
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRewards, err)
	}
	lo, hi := schedule.Range()
	if lo.Sign() != 0 || hi.Cmp(sent) > 0 {
		return fmt.Errorf("%w: schedule locks %s of %s sent", ErrInvalidRewards, hi, sent)
	}
	combined := previous.Compact(c.now).Combine(schedule)
	if err := combined.ValidateMonotonicDecreasing(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRewards, err)
	}
	if err := c.st.RewardCurvePut(asset, combined); err != nil {
		return err
	}
	if err := c.credit(asset, sent); err != nil {
		return err
	}
	c.emit(events.DistributionFunded{Asset: asset.Key(), Amount: sent, Start: info.StartTime, Duration: info.DistributionDuration})
	return nil
}

func (c *call) credit(asset Asset, amount *big.Int) error {
	balance, err := c.st.RewardBalanceGet(asset)
	if err != nil {
		return err
	}
	balance, err = checkedAdd(balance, amount)
	if err != nil {
		return err
	}
	return c.st.RewardBalancePut(asset, balance)
}

func (c *call) debit(asset Asset, amount *big.Int) error {
	balance, err := c.st.RewardBalanceGet(asset)
	if err != nil {
		return err
	}
	balance, err = checkedSub(balance, amount)
	if err != nil {
		return err
	}
	return c.st.RewardBalancePut(asset, balance)
}

// DistributeRewards releases everything that became available since the last
// call into the points accumulator of each distribution. Attached funds are
// credited first and must belong to a native distribution. Rewards are
// attributed to onBehalf when set, otherwise to sender.
func (e *Engine) DistributeRewards(sender [20]byte, onBehalf *[20]byte, funds []Coin) (*Receipt, error) {
	return e.apply(func(c *call) error {
		unbondAll, err := c.unbondAll()
		if err != nil {
			return err
		}
		if unbondAll {
			return ErrDistributeIfUnbondAll
		}
		attributed := sender
		if onBehalf != nil {
			attributed = *onBehalf
		}
		for _, coin := range funds {
			if coin.Asset.Kind != AssetNative {
				return fmt.Errorf("%w: %s", ErrNoDistributionFlow, coin.Asset)
			}
			if _, ok, err := c.st.DistributionGet(coin.Asset); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("%w: %s", ErrNoDistributionFlow, coin.Asset)
			}
		}
		for _, coin := range funds {
			amount := cloneBigInt(coin.Amount)
			if err := checkAmount(amount); err != nil {
				return err
			}
			if err := c.credit(coin.Asset, amount); err != nil {
				return err
			}
		}
		dists, err := loadDistributions(c.st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			amount, err := c.distribute(d)
			if err != nil {
				return err
			}
			if amount.Sign() == 0 {
				continue
			}
			c.emit(events.RewardsDistributed{Sender: attributed, Asset: d.asset.Key(), Amount: amount})
		}
		return nil
	})
}

func (c *call) distribute(d distEntry) (*big.Int, error) {
	total, err := totalRewardsPower(c.st, c.cfg, d.dist)
	if err != nil {
		return nil, err
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	balance, err := c.st.RewardBalanceGet(d.asset)
	if err != nil {
		return nil, err
	}
	schedule, ok, err := c.st.RewardCurveGet(d.asset)
	if err != nil {
		return nil, err
	}
	locked := big.NewInt(0)
	if ok {
		locked = schedule.Value(c.now)
	}
	available, err := checkedSub(balance, d.dist.WithdrawableTotal)
	if err != nil {
		return nil, err
	}
	// Nothing is released while the curve still locks the whole balance.
	amount := saturatingSub(available, locked)
	if amount.Sign() == 0 {
		return amount, nil
	}
	points, err := shiftPoints(amount)
	if err != nil {
		return nil, err
	}
	points.Add(points, cloneBigInt(d.dist.SharesLeftover))
	perPoint, leftover := new(big.Int).QuoRem(points, total, new(big.Int))

	dist := d.dist.Clone()
	if dist.SharesPerPoint, err = checkedAdd(dist.SharesPerPoint, perPoint); err != nil {
		return nil, err
	}
	dist.SharesLeftover = leftover
	if dist.DistributedTotal, err = checkedAdd(dist.DistributedTotal, amount); err != nil {
		return nil, err
	}
	if dist.WithdrawableTotal, err = checkedAdd(dist.WithdrawableTotal, amount); err != nil {
		return nil, err
	}
	if err := c.st.DistributionPut(d.asset, dist); err != nil {
		return nil, err
	}
	return amount, nil
}

// WithdrawRewards pays out the withdrawable rewards of owner (sender when nil)
// for every distribution. The caller must be the owner or the owner's
// registered delegate. Rewards always go to the registered receiver; naming
// any other receiver fails.
func (e *Engine) WithdrawRewards(sender [20]byte, owner, receiver *[20]byte) (*Receipt, error) {
	return e.apply(func(c *call) error {
		ownerAddr := sender
		if owner != nil {
			ownerAddr = *owner
		}
		delegated, ok, err := c.st.DelegatedGet(ownerAddr)
		if err != nil {
			return err
		}
		if !ok {
			delegated = ownerAddr
		}
		if sender != ownerAddr && sender != delegated {
			return ErrUnauthorized
		}
		if receiver != nil && *receiver != delegated {
			return ErrUnauthorized
		}
		payTo := delegated
		dists, err := loadDistributions(c.st)
		if err != nil {
			return err
		}
		for _, d := range dists {
			adj, _, err := c.st.AdjustmentGet(ownerAddr, d.asset)
			if err != nil {
				return err
			}
			adj = adj.Clone()
			reward, err := withdrawableRewards(c.st, c.cfg, ownerAddr, d.dist, adj)
			if err != nil {
				return err
			}
			if reward.Sign() == 0 {
				continue
			}
			if adj.WithdrawnRewards, err = checkedAdd(adj.WithdrawnRewards, reward); err != nil {
				return err
			}
			if err := c.st.AdjustmentPut(ownerAddr, d.asset, adj); err != nil {
				return err
			}
			dist := d.dist.Clone()
			if dist.WithdrawableTotal, err = checkedSub(dist.WithdrawableTotal, reward); err != nil {
				return err
			}
			if err := c.st.DistributionPut(d.asset, dist); err != nil {
				return err
			}
			if err := c.debit(d.asset, reward); err != nil {
				return err
			}
			c.receipt.addTransfer(d.asset, payTo, reward)
			c.emit(events.RewardsWithdrawn{Sender: sender, Owner: ownerAddr, Receiver: payTo, Asset: d.asset.Key(), Amount: reward})
		}
		return nil
	})
}

// DelegateWithdrawal registers delegated as the receiver and delegate for the
// rewards of sender.
func (e *Engine) DelegateWithdrawal(sender, delegated [20]byte) (*Receipt, error) {
	return e.apply(func(c *call) error {
		if err := c.st.DelegatedPut(sender, delegated); err != nil {
			return err
		}
		c.emit(events.WithdrawalDelegated{Owner: sender, Delegated: delegated})
		return nil
	})
}

// annualizedPayout estimates what the curve releases over the next year.
func annualizedPayout(c curve.Curve, now uint64) sdkmath.LegacyDec {
	end, ok := c.End()
	if !ok || end <= now {
		return sdkmath.LegacyZeroDec()
	}
	remaining := end - now
	if remaining >= SecondsPerYear {
		released := new(big.Int).Sub(c.Value(now), c.Value(now+SecondsPerYear))
		return sdkmath.LegacyNewDecFromBigInt(released)
	}
	scaled := new(big.Int).Mul(c.Value(now), new(big.Int).SetUint64(SecondsPerYear))
	return sdkmath.LegacyNewDecFromBigInt(scaled).QuoInt(sdkmath.NewIntFromUint64(remaining))
}
