package ops

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"

	"nhbstake/crypto"
	"nhbstake/native/stake"
)

// ErrBadRequest marks payloads that cannot be decoded into engine arguments.
var ErrBadRequest = errors.New("ops: bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Delegation is one mass bond entry.
type Delegation struct {
	Staker string `json:"staker" yaml:"staker"`
	Amount string `json:"amount" yaml:"amount"`
}

// Multiplier binds a reward multiplier to an unbonding period.
type Multiplier struct {
	Period     uint64 `json:"period" yaml:"period"`
	Multiplier string `json:"multiplier" yaml:"multiplier"`
}

// Coin is an amount of a reward asset. Assets are native denominations or
// bech32 token contracts.
type Coin struct {
	Asset  string `json:"asset" yaml:"asset"`
	Amount string `json:"amount" yaml:"amount"`
}

// Converter names the migration contract and its target pair.
type Converter struct {
	Contract string `json:"contract" yaml:"contract"`
	PairTo   string `json:"pairTo" yaml:"pairTo"`
}

// Request carries the arguments of every mutating operation. Each operation
// reads the fields it needs and ignores the rest.
type Request struct {
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Limit  string `json:"limit,omitempty" yaml:"limit,omitempty"`

	Period uint64 `json:"period,omitempty" yaml:"period,omitempty"`
	From   uint64 `json:"from,omitempty" yaml:"from,omitempty"`
	To     uint64 `json:"to,omitempty" yaml:"to,omitempty"`

	DelegateAs  string       `json:"delegateAs,omitempty" yaml:"delegateAs,omitempty"`
	Delegations []Delegation `json:"delegations,omitempty" yaml:"delegations,omitempty"`
	Stakers     []string     `json:"stakers,omitempty" yaml:"stakers,omitempty"`

	Asset       string       `json:"asset,omitempty" yaml:"asset,omitempty"`
	Manager     string       `json:"manager,omitempty" yaml:"manager,omitempty"`
	Multipliers []Multiplier `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`
	StartTime   uint64       `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	Duration    uint64       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Funds       []Coin       `json:"funds,omitempty" yaml:"funds,omitempty"`

	Owner     string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Receiver  string `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	OnBehalf  string `json:"onBehalf,omitempty" yaml:"onBehalf,omitempty"`
	Delegated string `json:"delegated,omitempty" yaml:"delegated,omitempty"`

	Admin     string     `json:"admin,omitempty" yaml:"admin,omitempty"`
	Unbonder  string     `json:"unbonder,omitempty" yaml:"unbonder,omitempty"`
	Converter *Converter `json:"converter,omitempty" yaml:"converter,omitempty"`
	UnbondAll bool       `json:"unbondAll,omitempty" yaml:"unbondAll,omitempty"`
}

// ParseAddress decodes a bech32 address of any prefix.
func ParseAddress(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, badRequest("%s is required", field)
	}
	raw, err := crypto.DecodeRaw(trimmed)
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", field, err)
	}
	return raw, nil
}

func optionalAddress(field, value string) (*[20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	raw, err := ParseAddress(field, value)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

// ParseAmount decodes a non-negative base ten integer.
func ParseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, badRequest("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func optionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return ParseAmount(field, value)
}

// ParseAsset maps token addresses to token assets and anything else to a
// native denomination.
func ParseAsset(value string) (stake.Asset, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return stake.Asset{}, badRequest("asset is required")
	}
	if addr, err := crypto.DecodeAddress(trimmed); err == nil && addr.Prefix() == crypto.TokenPrefix {
		return stake.TokenAsset(addr.Raw()), nil
	}
	return stake.NativeAsset(trimmed), nil
}

func parseCoins(coins []Coin) ([]stake.Coin, error) {
	out := make([]stake.Coin, 0, len(coins))
	for i, c := range coins {
		asset, err := ParseAsset(c.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(fmt.Sprintf("funds[%d].amount", i), c.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, stake.Coin{Asset: asset, Amount: amount})
	}
	return out, nil
}

func parseDelegations(in []Delegation) ([]stake.Delegation, error) {
	out := make([]stake.Delegation, 0, len(in))
	for i, d := range in {
		staker, err := ParseAddress(fmt.Sprintf("delegations[%d].staker", i), d.Staker)
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(fmt.Sprintf("delegations[%d].amount", i), d.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, stake.Delegation{Staker: staker, Amount: amount})
	}
	return out, nil
}

func parseMultipliers(in []Multiplier) ([]stake.RewardMultiplier, error) {
	out := make([]stake.RewardMultiplier, 0, len(in))
	for _, m := range in {
		dec, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(m.Multiplier))
		if err != nil {
			return nil, badRequest("multiplier for period %d: %v", m.Period, err)
		}
		out = append(out, stake.RewardMultiplier{Period: m.Period, Multiplier: dec})
	}
	return out, nil
}

func parseStakers(in []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(in))
	for i, s := range in {
		addr, err := ParseAddress(fmt.Sprintf("stakers[%d]", i), s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseConverter(c *Converter) (*stake.ConverterConfig, error) {
	if c == nil {
		return nil, nil
	}
	contract, err := ParseAddress("converter.contract", c.Contract)
	if err != nil {
		return nil, err
	}
	pairTo, err := ParseAddress("converter.pairTo", c.PairTo)
	if err != nil {
		return nil, err
	}
	return &stake.ConverterConfig{Contract: contract, PairTo: pairTo}, nil
}

// KindOf classifies err like stake.KindOf and treats undecodable payloads as
// validation failures.
func KindOf(err error) string {
	if errors.Is(err, ErrBadRequest) {
		return stake.KindValidation.String()
	}
	return stake.KindOf(err).String()
}
