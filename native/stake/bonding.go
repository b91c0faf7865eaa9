package stake

import (
	"math/big"
	"sort"
)

// LockedTokens is a slice of stake that cannot be released before ReleasesAt.
type LockedTokens struct {
	ReleasesAt uint64
	Amount     *big.Int
}

// BondingInfo is the stake of one staker in one unbonding period. Stake holds
// the releasable part; LockedTokens is kept sorted by release time and holds
// tokens moved down from a longer period by a rebond.
type BondingInfo struct {
	Stake        *big.Int
	LockedTokens []LockedTokens
}

func newBondingInfo() *BondingInfo {
	return &BondingInfo{Stake: big.NewInt(0)}
}

func (b *BondingInfo) Clone() *BondingInfo {
	if b == nil {
		return newBondingInfo()
	}
	out := &BondingInfo{Stake: cloneBigInt(b.Stake)}
	if len(b.LockedTokens) > 0 {
		out.LockedTokens = make([]LockedTokens, len(b.LockedTokens))
		for i, l := range b.LockedTokens {
			out.LockedTokens[i] = LockedTokens{ReleasesAt: l.ReleasesAt, Amount: cloneBigInt(l.Amount)}
		}
	}
	return out
}

// AddUnlocked adds immediately releasable tokens.
func (b *BondingInfo) AddUnlocked(amount *big.Int) {
	b.Stake = new(big.Int).Add(cloneBigInt(b.Stake), amount)
}

// AddLocked adds tokens that only become releasable at releasesAt. Entries with
// the same release time are merged.
func (b *BondingInfo) AddLocked(releasesAt uint64, amount *big.Int) {
	idx := sort.Search(len(b.LockedTokens), func(i int) bool {
		return b.LockedTokens[i].ReleasesAt >= releasesAt
	})
	if idx < len(b.LockedTokens) && b.LockedTokens[idx].ReleasesAt == releasesAt {
		b.LockedTokens[idx].Amount = new(big.Int).Add(cloneBigInt(b.LockedTokens[idx].Amount), amount)
		return
	}
	b.LockedTokens = append(b.LockedTokens, LockedTokens{})
	copy(b.LockedTokens[idx+1:], b.LockedTokens[idx:])
	b.LockedTokens[idx] = LockedTokens{ReleasesAt: releasesAt, Amount: cloneBigInt(amount)}
}

// FreeUnlocked moves every lock that has expired at now into Stake.
func (b *BondingInfo) FreeUnlocked(now uint64) {
	cut := sort.Search(len(b.LockedTokens), func(i int) bool {
		return b.LockedTokens[i].ReleasesAt > now
	})
	if cut == 0 {
		return
	}
	freed := new(big.Int)
	for _, l := range b.LockedTokens[:cut] {
		freed.Add(freed, cloneBigInt(l.Amount))
	}
	b.AddUnlocked(freed)
	b.LockedTokens = append([]LockedTokens(nil), b.LockedTokens[cut:]...)
}

// Release frees expired locks and then removes amount from the releasable
// stake.
func (b *BondingInfo) Release(now uint64, amount *big.Int) error {
	b.FreeUnlocked(now)
	stake := cloneBigInt(b.Stake)
	if stake.Cmp(amount) < 0 {
		return insufficientStake(stake, amount)
	}
	b.Stake = stake.Sub(stake, amount)
	return nil
}

// ForceUnlockAll releases every lock regardless of its release time.
func (b *BondingInfo) ForceUnlockAll() {
	freed := new(big.Int)
	for _, l := range b.LockedTokens {
		freed.Add(freed, cloneBigInt(l.Amount))
	}
	b.AddUnlocked(freed)
	b.LockedTokens = nil
}

// TotalLocked returns the tokens that are still locked at now.
func (b *BondingInfo) TotalLocked(now uint64) *big.Int {
	total := new(big.Int)
	for _, l := range b.LockedTokens {
		if l.ReleasesAt > now {
			total.Add(total, cloneBigInt(l.Amount))
		}
	}
	return total
}

// TotalUnlocked returns the tokens that could be released at now.
func (b *BondingInfo) TotalUnlocked(now uint64) *big.Int {
	total := cloneBigInt(b.Stake)
	for _, l := range b.LockedTokens {
		if l.ReleasesAt <= now {
			total.Add(total, cloneBigInt(l.Amount))
		}
	}
	return total
}

// TotalStake is the sum of unlocked and locked tokens.
func (b *BondingInfo) TotalStake() *big.Int {
	total := cloneBigInt(b.Stake)
	for _, l := range b.LockedTokens {
		total.Add(total, cloneBigInt(l.Amount))
	}
	return total
}
