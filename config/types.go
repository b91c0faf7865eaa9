package config

// Converter names the contract receiving migrated stake and the pair it
// converts into.
type Converter struct {
	Contract string `toml:"Contract"`
	PairTo   string `toml:"PairTo"`
}

// Distribution is a reward flow registered right after instantiation.
// Exactly one of Denom and Token names the asset.
type Distribution struct {
	Denom       string   `toml:"Denom,omitempty"`
	Token       string   `toml:"Token,omitempty"`
	Manager     string   `toml:"Manager,omitempty"`
	Multipliers []string `toml:"Multipliers"`
}

type Pauses struct {
	Stake bool `toml:"Stake"`
}

// Quota defines rate limits for stake interactions on a per-address basis.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxStakersPerEpoch  uint64 `toml:"MaxStakersPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"` // e.g., 3600
}

// StakeConfig is the genesis description of a stake engine. Amounts are
// decimal strings and addresses bech32.
type StakeConfig struct {
	StakedToken      string         `toml:"StakedToken"`
	TokensPerPower   string         `toml:"TokensPerPower"`
	MinBond          string         `toml:"MinBond"`
	UnbondingPeriods []uint64       `toml:"UnbondingPeriods"`
	MaxDistributions uint32         `toml:"MaxDistributions"`
	Admin            string         `toml:"Admin,omitempty"`
	Unbonder         string         `toml:"Unbonder,omitempty"`
	Instantiator     string         `toml:"Instantiator,omitempty"`
	Converter        *Converter     `toml:"Converter,omitempty"`
	Distributions    []Distribution `toml:"Distributions,omitempty"`
	Pauses           Pauses         `toml:"Pauses"`
	Quota            Quota          `toml:"Quota"`
}
