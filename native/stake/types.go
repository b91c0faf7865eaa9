package stake

import (
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"

	"nhbstake/crypto"
)

// AssetKind distinguishes natively held denominations from token contracts.
type AssetKind uint8

const (
	AssetNative AssetKind = iota + 1
	AssetToken
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token"
	default:
		return "unknown"
	}
}

// Asset identifies a reward asset or the staked token. Token assets carry the
// bech32 contract address as their denomination.
type Asset struct {
	Kind  AssetKind
	Denom string
}

// NativeAsset returns the asset for a natively held denomination.
func NativeAsset(denom string) Asset {
	return Asset{Kind: AssetNative, Denom: strings.TrimSpace(denom)}
}

// TokenAsset returns the asset for a token contract.
func TokenAsset(contract [20]byte) Asset {
	return Asset{Kind: AssetToken, Denom: crypto.FromRaw(crypto.TokenPrefix, contract).String()}
}

// Key returns the canonical storage and ordering key of the asset.
func (a Asset) Key() string { return a.Kind.String() + ":" + a.Denom }

func (a Asset) String() string { return a.Denom }

// Validate ensures the asset is well formed.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetNative:
		if strings.TrimSpace(a.Denom) == "" {
			return fmt.Errorf("%w: empty denomination", ErrInvalidAsset)
		}
	case AssetToken:
		if _, err := crypto.DecodeAddress(a.Denom); err != nil {
			return fmt.Errorf("%w: token address: %v", ErrInvalidAsset, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAsset, a.Kind)
	}
	return nil
}

// Coin is an amount of an asset attached to a call.
type Coin struct {
	Asset  Asset
	Amount *big.Int
}

// ConverterConfig names the contract that receives migrated stake and the
// pair it converts into.
type ConverterConfig struct {
	Contract [20]byte
	PairTo   [20]byte
}

// Config captures the immutable engine parameters set at instantiation.
type Config struct {
	StakedToken      [20]byte
	Instantiator     [20]byte
	TokensPerPower   *big.Int
	MinBond          *big.Int
	UnbondingPeriods []uint64
	MaxDistributions uint32
	Unbonder         *[20]byte
	Converter        *ConverterConfig
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{
		StakedToken:      c.StakedToken,
		Instantiator:     c.Instantiator,
		TokensPerPower:   cloneBigInt(c.TokensPerPower),
		MinBond:          cloneBigInt(c.MinBond),
		UnbondingPeriods: append([]uint64(nil), c.UnbondingPeriods...),
		MaxDistributions: c.MaxDistributions,
	}
	if c.Unbonder != nil {
		unbonder := *c.Unbonder
		out.Unbonder = &unbonder
	}
	if c.Converter != nil {
		converter := *c.Converter
		out.Converter = &converter
	}
	return out
}

// StakedAsset returns the asset identity of the staked token.
func (c *Config) StakedAsset() Asset { return TokenAsset(c.StakedToken) }

// HasPeriod reports whether period is one of the configured unbonding periods.
func (c *Config) HasPeriod(period uint64) bool {
	_, ok := c.periodIndex(period)
	return ok
}

func (c *Config) periodIndex(period uint64) (int, bool) {
	lo, hi := 0, len(c.UnbondingPeriods)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case c.UnbondingPeriods[mid] == period:
			return mid, true
		case c.UnbondingPeriods[mid] < period:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// TotalStake aggregates the stake of one unbonding period. PoweredStake only
// counts stakers whose stake in the period reaches the minimum bond.
type TotalStake struct {
	Staked       *big.Int
	PoweredStake *big.Int
}

func (t *TotalStake) Clone() *TotalStake {
	if t == nil {
		return &TotalStake{Staked: big.NewInt(0), PoweredStake: big.NewInt(0)}
	}
	return &TotalStake{Staked: cloneBigInt(t.Staked), PoweredStake: cloneBigInt(t.PoweredStake)}
}

// TokenInfo tracks the staked token held by the engine across all periods.
type TokenInfo struct {
	Staked    *big.Int
	Unbonding *big.Int
}

func (t *TokenInfo) Clone() *TokenInfo {
	if t == nil {
		return &TokenInfo{Staked: big.NewInt(0), Unbonding: big.NewInt(0)}
	}
	return &TokenInfo{Staked: cloneBigInt(t.Staked), Unbonding: cloneBigInt(t.Unbonding)}
}

// RewardMultiplier weights the stake of one unbonding period.
type RewardMultiplier struct {
	Period     uint64
	Multiplier sdkmath.LegacyDec
}

// Distribution is the accounting state of one reward asset.
type Distribution struct {
	Manager           [20]byte
	RewardMultipliers []RewardMultiplier
	// SharesPerPoint is scaled by 2^SharesShift.
	SharesPerPoint    *big.Int
	SharesLeftover    *big.Int
	DistributedTotal  *big.Int
	WithdrawableTotal *big.Int
}

func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	out := &Distribution{
		Manager:           d.Manager,
		RewardMultipliers: make([]RewardMultiplier, len(d.RewardMultipliers)),
		SharesPerPoint:    cloneBigInt(d.SharesPerPoint),
		SharesLeftover:    cloneBigInt(d.SharesLeftover),
		DistributedTotal:  cloneBigInt(d.DistributedTotal),
		WithdrawableTotal: cloneBigInt(d.WithdrawableTotal),
	}
	for i, m := range d.RewardMultipliers {
		out.RewardMultipliers[i] = RewardMultiplier{Period: m.Period, Multiplier: m.Multiplier.Clone()}
	}
	return out
}

// Multiplier returns the reward multiplier for period.
func (d *Distribution) Multiplier(period uint64) (sdkmath.LegacyDec, error) {
	for _, m := range d.RewardMultipliers {
		if m.Period == period {
			return m.Multiplier, nil
		}
	}
	return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d", ErrNoUnbondingPeriodFound, period)
}

// WithdrawAdjustment stores the per staker correction for a reward asset.
// SharesCorrection may be negative.
type WithdrawAdjustment struct {
	SharesCorrection *big.Int
	WithdrawnRewards *big.Int
}

func (w *WithdrawAdjustment) Clone() *WithdrawAdjustment {
	if w == nil {
		return &WithdrawAdjustment{SharesCorrection: big.NewInt(0), WithdrawnRewards: big.NewInt(0)}
	}
	return &WithdrawAdjustment{
		SharesCorrection: cloneBigInt(w.SharesCorrection),
		WithdrawnRewards: cloneBigInt(w.WithdrawnRewards),
	}
}

// ExpirationKind enumerates claim maturity styles.
type ExpirationKind uint8

const (
	ExpiresNever ExpirationKind = iota
	ExpiresAtHeight
	ExpiresAtTime
)

// Expiration describes when a claim matures.
type Expiration struct {
	Kind   ExpirationKind
	Height uint64
	Time   uint64
}

func AtHeight(h uint64) Expiration { return Expiration{Kind: ExpiresAtHeight, Height: h} }
func AtTime(t uint64) Expiration   { return Expiration{Kind: ExpiresAtTime, Time: t} }
func Never() Expiration            { return Expiration{Kind: ExpiresNever} }

// IsExpired reports whether the expiration has been reached at the given block.
func (e Expiration) IsExpired(height, now uint64) bool {
	switch e.Kind {
	case ExpiresAtHeight:
		return height >= e.Height
	case ExpiresAtTime:
		return now >= e.Time
	default:
		return false
	}
}

func (e Expiration) String() string {
	switch e.Kind {
	case ExpiresAtHeight:
		return fmt.Sprintf("height:%d", e.Height)
	case ExpiresAtTime:
		return fmt.Sprintf("time:%d", e.Time)
	default:
		return "never"
	}
}

// Claim is a pending release of unbonded principal.
type Claim struct {
	Amount    *big.Int
	ReleaseAt Expiration
}

func cloneClaims(claims []Claim) []Claim {
	if len(claims) == 0 {
		return nil
	}
	out := make([]Claim, len(claims))
	for i, c := range claims {
		out[i] = Claim{Amount: cloneBigInt(c.Amount), ReleaseAt: c.ReleaseAt}
	}
	return out
}

// Transfer instructs the custody collaborator to move funds out of the engine.
type Transfer struct {
	Asset     Asset
	Recipient [20]byte
	Amount    *big.Int
}

// ConvertRequest instructs the converter to turn migrated stake into a
// position of the target pair.
type ConvertRequest struct {
	Converter       [20]byte
	Sender          [20]byte
	Amount          *big.Int
	UnbondingPeriod uint64
	PairFrom        [20]byte
	PairTo          [20]byte
}

// Receipt lists the external effects of a successful call.
type Receipt struct {
	Transfers []Transfer
	Convert   *ConvertRequest
}

func (r *Receipt) addTransfer(asset Asset, to [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	r.Transfers = append(r.Transfers, Transfer{Asset: asset, Recipient: to, Amount: cloneBigInt(amount)})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
