package stake

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
)

// SharesShift is the binary scale of the points-per-share accumulator.
const SharesShift = 32

// SecondsPerYear is the horizon used to annualise reward curves.
const SecondsPerYear uint64 = 365 * 24 * 60 * 60

// maxAmount bounds every token amount and reward power to 128 bits.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func checkAmount(v *big.Int) error {
	if v.Sign() < 0 {
		return ErrUnderflow
	}
	if v.Cmp(maxAmount) > 0 {
		return ErrOverflow
	}
	return nil
}

// requireAmount rejects missing, zero and out of range amounts.
func requireAmount(v *big.Int) error {
	if isZero(v) {
		return ErrZeroAmount
	}
	return checkAmount(v)
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(cloneBigInt(a), cloneBigInt(b))
	if err := checkAmount(sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(cloneBigInt(a), cloneBigInt(b))
	if diff.Sign() < 0 {
		return nil, ErrUnderflow
	}
	return diff, nil
}

func saturatingSub(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(cloneBigInt(a), cloneBigInt(b))
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	return diff
}

// mulPoints multiplies the accumulator by a reward power, failing when the
// product leaves the 256-bit range the accounting is defined over.
func mulPoints(sharesPerPoint, power *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(cloneBigInt(sharesPerPoint))
	if overflow {
		return nil, ErrOverflow
	}
	y, overflow := uint256.FromBig(cloneBigInt(power))
	if overflow {
		return nil, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return product.ToBig(), nil
}

// shiftPoints scales a token amount into accumulator points.
func shiftPoints(amount *big.Int) (*big.Int, error) {
	if err := checkAmount(cloneBigInt(amount)); err != nil {
		return nil, err
	}
	return new(big.Int).Lsh(cloneBigInt(amount), SharesShift), nil
}

// calcPower converts a stake into reward power. Stakes below the minimum bond
// carry no power; otherwise the stake is weighted by multiplier, floored, and
// divided by tokens per power.
func calcPower(cfg *Config, stake *big.Int, multiplier sdkmath.LegacyDec) *big.Int {
	stake = cloneBigInt(stake)
	if stake.Cmp(cloneBigInt(cfg.MinBond)) < 0 || stake.Sign() == 0 {
		return big.NewInt(0)
	}
	tpp := cloneBigInt(cfg.TokensPerPower)
	if tpp.Sign() == 0 {
		return big.NewInt(0)
	}
	weighted := multiplier.MulInt(sdkmath.NewIntFromBigInt(stake)).TruncateInt().BigInt()
	return weighted.Quo(weighted, tpp)
}

func isZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }
