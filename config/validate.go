package config

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"

	"nhbstake/crypto"
	"nhbstake/native/common"
	"nhbstake/native/stake"
)

// GenesisFlow is a decoded Distribution entry.
type GenesisFlow struct {
	Asset       stake.Asset
	Manager     [20]byte
	Multipliers []stake.RewardMultiplier
}

// ValidateStake checks that every field decodes. Engine level rules such as
// period uniqueness are enforced again by the engine itself.
func ValidateStake(cfg *StakeConfig) error {
	if cfg == nil {
		return fmt.Errorf("stake: missing configuration")
	}
	if _, err := cfg.InstantiateMsg(); err != nil {
		return err
	}
	if _, err := cfg.Flows(); err != nil {
		return err
	}
	if int(cfg.MaxDistributions) < len(cfg.Distributions) {
		return fmt.Errorf("stake: %d distributions exceed MaxDistributions %d", len(cfg.Distributions), cfg.MaxDistributions)
	}
	return nil
}

// InstantiateMsg converts the configuration into engine parameters.
func (c *StakeConfig) InstantiateMsg() (stake.InstantiateMsg, error) {
	var msg stake.InstantiateMsg
	token, err := crypto.DecodeRaw(c.StakedToken)
	if err != nil {
		return msg, fmt.Errorf("stake: StakedToken: %w", err)
	}
	tpp, err := parseUintAmount(c.TokensPerPower)
	if err != nil {
		return msg, fmt.Errorf("stake: TokensPerPower: %w", err)
	}
	if tpp.Sign() == 0 {
		return msg, fmt.Errorf("stake: TokensPerPower must be positive")
	}
	minBond, err := parseUintAmount(c.MinBond)
	if err != nil {
		return msg, fmt.Errorf("stake: MinBond: %w", err)
	}
	if len(c.UnbondingPeriods) == 0 {
		return msg, fmt.Errorf("stake: UnbondingPeriods must not be empty")
	}
	msg = stake.InstantiateMsg{
		StakedToken:      token,
		TokensPerPower:   tpp,
		MinBond:          minBond,
		UnbondingPeriods: append([]uint64(nil), c.UnbondingPeriods...),
		MaxDistributions: c.MaxDistributions,
	}
	if msg.Admin, err = optionalAddress("Admin", c.Admin); err != nil {
		return msg, err
	}
	if msg.Unbonder, err = optionalAddress("Unbonder", c.Unbonder); err != nil {
		return msg, err
	}
	if c.Converter != nil {
		contract, err := crypto.DecodeRaw(c.Converter.Contract)
		if err != nil {
			return msg, fmt.Errorf("stake: Converter.Contract: %w", err)
		}
		pair, err := crypto.DecodeRaw(c.Converter.PairTo)
		if err != nil {
			return msg, fmt.Errorf("stake: Converter.PairTo: %w", err)
		}
		msg.Converter = &stake.ConverterConfig{Contract: contract, PairTo: pair}
	}
	return msg, nil
}

// InstantiatorAddress returns the configured instantiator, the zero address
// when unset.
func (c *StakeConfig) InstantiatorAddress() ([20]byte, error) {
	addr, err := optionalAddress("Instantiator", c.Instantiator)
	if err != nil || addr == nil {
		return [20]byte{}, err
	}
	return *addr, nil
}

// Flows decodes the genesis distribution flows. Multipliers are listed in
// the order of the sorted unbonding periods.
func (c *StakeConfig) Flows() ([]GenesisFlow, error) {
	periods := append([]uint64(nil), c.UnbondingPeriods...)
	sortPeriods(periods)
	out := make([]GenesisFlow, 0, len(c.Distributions))
	for i, d := range c.Distributions {
		denom, token := strings.TrimSpace(d.Denom), strings.TrimSpace(d.Token)
		var flow GenesisFlow
		switch {
		case denom != "" && token == "":
			flow.Asset = stake.NativeAsset(denom)
		case token != "" && denom == "":
			raw, err := crypto.DecodeRaw(token)
			if err != nil {
				return nil, fmt.Errorf("stake: Distributions[%d].Token: %w", i, err)
			}
			flow.Asset = stake.TokenAsset(raw)
		default:
			return nil, fmt.Errorf("stake: Distributions[%d]: set exactly one of Denom and Token", i)
		}
		manager, err := optionalAddress(fmt.Sprintf("Distributions[%d].Manager", i), d.Manager)
		if err != nil {
			return nil, err
		}
		if manager != nil {
			flow.Manager = *manager
		}
		if len(d.Multipliers) != len(periods) {
			return nil, fmt.Errorf("stake: Distributions[%d]: want %d multipliers, got %d", i, len(periods), len(d.Multipliers))
		}
		for j, raw := range d.Multipliers {
			dec, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("stake: Distributions[%d].Multipliers[%d]: %w", i, j, err)
			}
			flow.Multipliers = append(flow.Multipliers, stake.RewardMultiplier{Period: periods[j], Multiplier: dec})
		}
		out = append(out, flow)
	}
	return out, nil
}

// RateQuota returns the per address quota enforced on mutating calls.
func (c *StakeConfig) RateQuota() common.Quota {
	return common.Quota{
		MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
		MaxStakersPerEpoch:  c.Quota.MaxStakersPerEpoch,
		EpochSeconds:        c.Quota.EpochSeconds,
	}
}

func optionalAddress(field, value string) (*[20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	raw, err := crypto.DecodeRaw(value)
	if err != nil {
		return nil, fmt.Errorf("stake: %s: %w", field, err)
	}
	return &raw, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func sortPeriods(periods []uint64) {
	sort.Slice(periods, func(a, b int) bool { return periods[a] < periods[b] })
}
