package stake

import (
	"fmt"
	"math/big"

	"nhbstake/core/events"
)

// DelegateMsg bonds the received amount into one unbonding period. When
// DelegateAs is set the stake is credited to that address instead of the
// sender of the tokens.
type DelegateMsg struct {
	UnbondingPeriod uint64
	DelegateAs      *[20]byte
}

// Delegation is one entry of a mass bond.
type Delegation struct {
	Staker [20]byte
	Amount *big.Int
}

// MassDelegateMsg spreads the received amount over many stakers.
type MassDelegateMsg struct {
	UnbondingPeriod uint64
	Delegations     []Delegation
}

// FundingInfo schedules Amount to be released linearly between StartTime and
// StartTime+DistributionDuration.
type FundingInfo struct {
	StartTime            uint64
	DistributionDuration uint64
	Amount               *big.Int
}

// ReceiveMsg is the action attached to a token transfer into the engine.
// Exactly one field must be set.
type ReceiveMsg struct {
	Delegate     *DelegateMsg
	MassDelegate *MassDelegateMsg
	Fund         *FundingInfo
}

// Receive handles tokens delivered by the token contract on behalf of sender.
func (e *Engine) Receive(token, sender [20]byte, amount *big.Int, msg ReceiveMsg) (*Receipt, error) {
	set := 0
	for _, ok := range []bool{msg.Delegate != nil, msg.MassDelegate != nil, msg.Fund != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, ErrEmptyHook
	}
	switch {
	case msg.Delegate != nil:
		staker := sender
		if msg.Delegate.DelegateAs != nil {
			staker = *msg.Delegate.DelegateAs
		}
		return e.Bond(token, staker, msg.Delegate.UnbondingPeriod, amount)
	case msg.MassDelegate != nil:
		return e.MassBond(token, amount, msg.MassDelegate.UnbondingPeriod, msg.MassDelegate.Delegations)
	default:
		return e.apply(func(c *call) error {
			unbondAll, err := c.unbondAll()
			if err != nil {
				return err
			}
			if unbondAll {
				return ErrDistributeIfUnbondAll
			}
			if msg.Fund.StartTime < c.now {
				return ErrPastStartingTime
			}
			return c.fund(TokenAsset(token), amount, *msg.Fund)
		})
	}
}

// Bond adds amount of the staked token to staker in period.
func (e *Engine) Bond(token, staker [20]byte, period uint64, amount *big.Int) (*Receipt, error) {
	return e.apply(func(c *call) error {
		return c.massBond(token, amount, period, []Delegation{{Staker: staker, Amount: amount}})
	})
}

// MassBond credits a single received amount to many stakers in one period.
func (e *Engine) MassBond(token [20]byte, amount *big.Int, period uint64, delegations []Delegation) (*Receipt, error) {
	return e.apply(func(c *call) error {
		return c.massBond(token, amount, period, delegations)
	})
}

func (c *call) massBond(token [20]byte, amountSent *big.Int, period uint64, delegations []Delegation) error {
	unbondAll, err := c.unbondAll()
	if err != nil {
		return err
	}
	if unbondAll {
		return ErrDelegateIfUnbondAll
	}
	if err := requireAmount(amountSent); err != nil {
		return err
	}
	if token != c.cfg.StakedToken {
		return ErrTokenMismatch
	}
	if !c.cfg.HasPeriod(period) {
		return unknownPeriod(period)
	}
	total := big.NewInt(0)
	for i, d := range delegations {
		amt := cloneBigInt(d.Amount)
		if err := requireAmount(amt); err != nil {
			return fmt.Errorf("%w: delegation %d", err, i)
		}
		total.Add(total, amt)
	}
	if total.Cmp(amountSent) > 0 {
		return fmt.Errorf("%w: total %s, received %s", ErrMassDelegateTooMuch, total, amountSent)
	}
	for _, d := range delegations {
		amt := cloneBigInt(d.Amount)
		var newStake *big.Int
		err := c.changeStake(d.Staker, func(_ uint64, info *BondingInfo) error {
			info.AddUnlocked(amt)
			newStake = info.TotalStake()
			return nil
		}, period)
		if err != nil {
			return err
		}
		c.emit(events.StakeBonded{Staker: d.Staker, Period: period, Amount: amt, NewStake: newStake})
	}
	info, err := c.st.TokenInfoGet()
	if err != nil {
		return err
	}
	info = info.Clone()
	if info.Staked, err = checkedAdd(info.Staked, amountSent); err != nil {
		return err
	}
	return c.st.TokenInfoPut(info)
}

// Unbond removes amount from the stake of sender in period. The tokens become
// claimable once the period elapses; while unbond all is active they are paid
// out immediately.
func (e *Engine) Unbond(sender [20]byte, period uint64, amount *big.Int) (*Receipt, error) {
	return e.apply(func(c *call) error {
		if err := requireAmount(amount); err != nil {
			return err
		}
		unbondAll, err := c.unbondAll()
		if err != nil {
			return err
		}
		if err := c.removeStake(sender, period, amount); err != nil {
			return err
		}
		info, err := c.st.TokenInfoGet()
		if err != nil {
			return err
		}
		info = info.Clone()
		info.Staked = saturatingSub(info.Staked, amount)
		if !unbondAll {
			if info.Unbonding, err = checkedAdd(info.Unbonding, amount); err != nil {
				return err
			}
		}
		if err := c.st.TokenInfoPut(info); err != nil {
			return err
		}
		evt := events.StakeUnbonded{Staker: sender, Period: period, Amount: cloneBigInt(amount), Immediate: unbondAll}
		if unbondAll {
			c.receipt.addTransfer(c.cfg.StakedAsset(), sender, amount)
		} else {
			release := AtTime(c.now + period)
			claims, err := c.st.ClaimsGet(sender)
			if err != nil {
				return err
			}
			claims = append(claims, Claim{Amount: cloneBigInt(amount), ReleaseAt: release})
			if err := c.st.ClaimsPut(sender, claims); err != nil {
				return err
			}
			evt.ReleaseAt = release.String()
		}
		c.emit(evt)
		return nil
	})
}

// Rebond moves amount of sender's stake from one unbonding period to another.
// Tokens moved to a shorter period stay locked for the difference of the two
// periods.
func (e *Engine) Rebond(sender [20]byte, amount *big.Int, from, to uint64) (*Receipt, error) {
	return e.apply(func(c *call) error {
		unbondAll, err := c.unbondAll()
		if err != nil {
			return err
		}
		if unbondAll {
			return ErrRebondIfUnbondAll
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		if from == to {
			return ErrSameUnbondingRebond
		}
		if !c.cfg.HasPeriod(from) {
			return unknownPeriod(from)
		}
		if !c.cfg.HasPeriod(to) {
			return unknownPeriod(to)
		}
		var lockedUntil uint64
		if from > to {
			lockedUntil = c.now + (from - to)
		}
		err = c.changeStake(sender, func(period uint64, info *BondingInfo) error {
			if period == from {
				return info.Release(c.now, amount)
			}
			if lockedUntil > 0 {
				info.AddLocked(lockedUntil, amount)
			} else {
				info.AddUnlocked(amount)
			}
			return nil
		}, from, to)
		if err != nil {
			return err
		}
		c.emit(events.StakeRebonded{Staker: sender, From: from, To: to, Amount: cloneBigInt(amount), LockedUntil: lockedUntil})
		return nil
	})
}

// Claim pays out every matured claim of sender. When limit is set, claims that
// would push the released sum above it are kept for later.
func (e *Engine) Claim(sender [20]byte, limit *big.Int) (*Receipt, error) {
	return e.apply(func(c *call) error {
		claims, err := c.st.ClaimsGet(sender)
		if err != nil {
			return err
		}
		released := big.NewInt(0)
		kept := claims[:0]
		for _, claim := range claims {
			if !claim.ReleaseAt.IsExpired(c.height, c.now) {
				kept = append(kept, claim)
				continue
			}
			next := new(big.Int).Add(released, cloneBigInt(claim.Amount))
			if limit != nil && next.Cmp(limit) > 0 {
				kept = append(kept, claim)
				continue
			}
			released = next
		}
		if released.Sign() == 0 {
			return ErrNothingToClaim
		}
		if err := c.st.ClaimsPut(sender, kept); err != nil {
			return err
		}
		info, err := c.st.TokenInfoGet()
		if err != nil {
			return err
		}
		info = info.Clone()
		info.Unbonding = saturatingSub(info.Unbonding, released)
		if err := c.st.TokenInfoPut(info); err != nil {
			return err
		}
		c.receipt.addTransfer(c.cfg.StakedAsset(), sender, released)
		c.emit(events.StakeClaimed{Staker: sender, Amount: released})
		return nil
	})
}

// QuickUnbond force releases the whole stake and every open claim of the given
// stakers and pays both out directly. Only the unbonder may call it.
func (e *Engine) QuickUnbond(sender [20]byte, stakers [][20]byte) (*Receipt, error) {
	return e.apply(func(c *call) error {
		if c.cfg.Unbonder == nil || *c.cfg.Unbonder != sender {
			return ErrUnauthorized
		}
		dists, err := loadDistributions(c.st)
		if err != nil {
			return err
		}
		minBond := cloneBigInt(c.cfg.MinBond)
		totals := make(map[uint64]*TotalStake, len(c.cfg.UnbondingPeriods))
		for _, period := range c.cfg.UnbondingPeriods {
			total, err := c.st.TotalStakeGet(period)
			if err != nil {
				return err
			}
			totals[period] = total.Clone()
		}
		unbondedTotal := big.NewInt(0)
		claimedTotal := big.NewInt(0)
		for _, staker := range stakers {
			oldPowers, err := rewardsPowers(c.st, c.cfg, staker, dists)
			if err != nil {
				return err
			}
			stakerUnbonds := big.NewInt(0)
			for _, period := range c.cfg.UnbondingPeriods {
				info, ok, err := c.st.BondingGet(staker, period)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				info = info.Clone()
				oldStake := info.TotalStake()
				info.ForceUnlockAll()
				if err := info.Release(c.now, oldStake); err != nil {
					return err
				}
				if err := c.st.BondingPut(staker, period, info); err != nil {
					return err
				}
				if err := applyStakeChange(totals[period], minBond, oldStake, big.NewInt(0)); err != nil {
					return err
				}
				stakerUnbonds.Add(stakerUnbonds, oldStake)
			}
			for i, d := range dists {
				if oldPowers[i].Sign() == 0 {
					continue
				}
				if err := updateRewards(c.st, d.asset, staker, d.dist, oldPowers[i], big.NewInt(0)); err != nil {
					return err
				}
			}
			claims, err := c.st.ClaimsGet(staker)
			if err != nil {
				return err
			}
			openClaims := big.NewInt(0)
			for _, claim := range claims {
				openClaims.Add(openClaims, cloneBigInt(claim.Amount))
			}
			if err := c.st.ClaimsPut(staker, nil); err != nil {
				return err
			}
			unbondedTotal.Add(unbondedTotal, stakerUnbonds)
			claimedTotal.Add(claimedTotal, openClaims)
			c.receipt.addTransfer(c.cfg.StakedAsset(), staker, new(big.Int).Add(stakerUnbonds, openClaims))
			c.emit(events.StakeQuickUnbonded{Staker: staker, Stake: stakerUnbonds, Claims: openClaims})
		}
		for _, period := range c.cfg.UnbondingPeriods {
			if err := c.st.TotalStakePut(period, totals[period]); err != nil {
				return err
			}
		}
		info, err := c.st.TokenInfoGet()
		if err != nil {
			return err
		}
		info = info.Clone()
		if info.Staked, err = checkedSub(info.Staked, unbondedTotal); err != nil {
			return err
		}
		if info.Unbonding, err = checkedSub(info.Unbonding, claimedTotal); err != nil {
			return err
		}
		return c.st.TokenInfoPut(info)
	})
}

// UnbondAll switches the engine into emergency mode. Only the unbonder may
// call it.
func (e *Engine) UnbondAll(sender [20]byte) (*Receipt, error) {
	return e.apply(func(c *call) error {
		if c.cfg.Unbonder == nil || *c.cfg.Unbonder != sender {
			return ErrUnauthorized
		}
		return c.setUnbondAll(sender, true)
	})
}

// StopUnbondAll leaves emergency mode. The unbonder and the admin may call it.
func (e *Engine) StopUnbondAll(sender [20]byte) (*Receipt, error) {
	return e.apply(func(c *call) error {
		isUnbonder := c.cfg.Unbonder != nil && *c.cfg.Unbonder == sender
		admin, err := c.st.AdminGet()
		if err != nil {
			return err
		}
		isAdmin := admin != nil && *admin == sender
		if !isUnbonder && !isAdmin {
			return ErrUnauthorized
		}
		return c.setUnbondAll(sender, false)
	})
}

func (c *call) setUnbondAll(sender [20]byte, flag bool) error {
	current, err := c.unbondAll()
	if err != nil {
		return err
	}
	if current == flag {
		return ErrFlagAlreadySet
	}
	if err := c.st.UnbondAllPut(flag); err != nil {
		return err
	}
	c.emit(events.StakeUnbondAll{Sender: sender, Enabled: flag})
	return nil
}

// MigrateStake hands amount of sender's stake in period to the configured
// converter together with a conversion request.
func (e *Engine) MigrateStake(sender [20]byte, amount *big.Int, period uint64) (*Receipt, error) {
	return e.apply(func(c *call) error {
		converter := c.cfg.Converter
		if converter == nil {
			return ErrNoConverter
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		if err := c.removeStake(sender, period, amount); err != nil {
			return err
		}
		info, err := c.st.TokenInfoGet()
		if err != nil {
			return err
		}
		info = info.Clone()
		info.Staked = saturatingSub(info.Staked, amount)
		if err := c.st.TokenInfoPut(info); err != nil {
			return err
		}
		c.receipt.addTransfer(c.cfg.StakedAsset(), converter.Contract, amount)
		c.receipt.Convert = &ConvertRequest{
			Converter:       converter.Contract,
			Sender:          sender,
			Amount:          cloneBigInt(amount),
			UnbondingPeriod: period,
			PairFrom:        c.cfg.Instantiator,
			PairTo:          converter.PairTo,
		}
		c.emit(events.StakeMigrated{Staker: sender, Period: period, Amount: cloneBigInt(amount), Converter: converter.Contract})
		return nil
	})
}
