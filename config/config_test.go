package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nhbstake/crypto"
	"nhbstake/native/stake"
)

func rawAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	testToken   = crypto.FromRaw(crypto.TokenPrefix, rawAddr(0xAA)).String()
	testReward  = crypto.FromRaw(crypto.TokenPrefix, rawAddr(0x71)).String()
	testAdmin   = crypto.Format(rawAddr(0xAD))
	testUnbound = crypto.Format(rawAddr(0xBB))
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stake.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesGenesis(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`StakedToken = "%s"
TokensPerPower = "1000"
MinBond = "5000"
UnbondingPeriods = [1209600, 604800]
MaxDistributions = 4
Admin = "%s"
Unbonder = "%s"

[Converter]
Contract = "%s"
PairTo = "%s"

[[Distributions]]
Denom = "ujuno"
Multipliers = ["1", "1.5"]

[[Distributions]]
Token = "%s"
Manager = "%s"
Multipliers = ["0.5", "2"]

[Pauses]
Stake = true

[Quota]
MaxRequestsPerEpoch = 10
MaxStakersPerEpoch = 500
`, testToken, testAdmin, testUnbound, testAdmin, testToken, testReward, testAdmin))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	msg, err := cfg.InstantiateMsg()
	if err != nil {
		t.Fatalf("instantiate msg: %v", err)
	}
	if msg.StakedToken != rawAddr(0xAA) {
		t.Fatalf("unexpected staked token %x", msg.StakedToken)
	}
	if msg.TokensPerPower.Int64() != 1000 || msg.MinBond.Int64() != 5000 {
		t.Fatalf("unexpected amounts %s %s", msg.TokensPerPower, msg.MinBond)
	}
	if msg.Admin == nil || *msg.Admin != rawAddr(0xAD) {
		t.Fatalf("unexpected admin %v", msg.Admin)
	}
	if msg.Converter == nil || msg.Converter.PairTo != rawAddr(0xAA) {
		t.Fatalf("unexpected converter %+v", msg.Converter)
	}
	if !cfg.Pauses.Stake {
		t.Fatalf("expected stake pause")
	}
	if q := cfg.RateQuota(); q.MaxRequestsPerEpoch != 10 || q.EpochSeconds != DefaultQuotaEpoch {
		t.Fatalf("unexpected quota %+v", q)
	}

	flows, err := cfg.Flows()
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	if len(flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(flows))
	}
	if flows[0].Asset != stake.NativeAsset("ujuno") {
		t.Fatalf("unexpected asset %v", flows[0].Asset)
	}
	if flows[0].Multipliers[0].Period != 604800 || flows[0].Multipliers[1].Multiplier.String() != "1.500000000000000000" {
		t.Fatalf("multipliers must follow sorted periods: %+v", flows[0].Multipliers)
	}
	if flows[1].Asset != stake.TokenAsset(rawAddr(0x71)) || flows[1].Manager != rawAddr(0xAD) {
		t.Fatalf("unexpected token flow %+v", flows[1])
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf("StakedToken = %q\nUnbondingPeriods = [10]\n", testToken))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokensPerPower != DefaultTokensPerPower || cfg.MinBond != DefaultMinBond {
		t.Fatalf("unexpected defaults %q %q", cfg.TokensPerPower, cfg.MinBond)
	}
	if cfg.MaxDistributions != DefaultMaxDistributions {
		t.Fatalf("unexpected max distributions %d", cfg.MaxDistributions)
	}
	msg, err := cfg.InstantiateMsg()
	if err != nil {
		t.Fatalf("instantiate msg: %v", err)
	}
	if msg.Admin != nil || msg.Unbonder != nil || msg.Converter != nil {
		t.Fatalf("optional roles must stay unset")
	}
}

func TestLoadRejectsInvalidGenesis(t *testing.T) {
	base := fmt.Sprintf("StakedToken = %q\nUnbondingPeriods = [10, 20]\n", testToken)
	cases := map[string]string{
		"bad token":        "StakedToken = \"nope\"\nUnbondingPeriods = [10]\n",
		"no periods":       fmt.Sprintf("StakedToken = %q\n", testToken),
		"negative bond":    base + "MinBond = \"-1\"\n",
		"zero tpp":         base + "TokensPerPower = \"0\"\n",
		"bad admin":        base + "Admin = \"xyz\"\n",
		"unknown field":    base + "Bogus = 1\n",
		"multiplier count": base + "[[Distributions]]\nDenom = \"ujuno\"\nMultipliers = [\"1\"]\n",
		"two assets":       base + fmt.Sprintf("[[Distributions]]\nDenom = \"ujuno\"\nToken = %q\nMultipliers = [\"1\", \"1\"]\n", testReward),
		"bad multiplier":   base + "[[Distributions]]\nDenom = \"ujuno\"\nMultipliers = [\"1\", \"x\"]\n",
		"too many flows":   base + "MaxDistributions = 1\n[[Distributions]]\nDenom = \"a\"\nMultipliers = [\"1\", \"1\"]\n[[Distributions]]\nDenom = \"b\"\nMultipliers = [\"1\", \"1\"]\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %s to fail", name)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Parse(fmt.Sprintf("StakedToken = %q\nUnbondingPeriods = [10]\nAdmin = %q\n", testToken, testAdmin))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "stake.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), testAdmin) {
		t.Fatalf("saved config misses admin:\n%s", data)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Admin != cfg.Admin || loaded.StakedToken != cfg.StakedToken {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestBootstrapInstantiatesOnce(t *testing.T) {
	cfg, err := Parse(fmt.Sprintf(`StakedToken = %q
UnbondingPeriods = [100, 10]
Admin = %q

[[Distributions]]
Denom = "ujuno"
Multipliers = ["1", "2"]
`, testToken, testAdmin))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	engine := stake.NewEngine()
	engine.SetState(stake.NewLedger())
	created, err := Bootstrap(engine, cfg)
	if err != nil || !created {
		t.Fatalf("bootstrap: created=%v err=%v", created, err)
	}
	data, err := engine.DistributionData()
	if err != nil {
		t.Fatalf("distribution data: %v", err)
	}
	if len(data) != 1 || data[0].Distribution.Manager != rawAddr(0xAD) {
		t.Fatalf("unexpected flows %+v", data)
	}
	m, err := data[0].Distribution.Multiplier(100)
	if err != nil || m.String() != "2.000000000000000000" {
		t.Fatalf("multiplier for 100: %v %v", m, err)
	}

	created, err = Bootstrap(engine, cfg)
	if err != nil || created {
		t.Fatalf("second bootstrap must be a no-op: created=%v err=%v", created, err)
	}
}

func TestBootstrapRequiresAdminForFlows(t *testing.T) {
	cfg, err := Parse(fmt.Sprintf("StakedToken = %q\nUnbondingPeriods = [10]\n[[Distributions]]\nDenom = \"ujuno\"\nMultipliers = [\"1\"]\n", testToken))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	engine := stake.NewEngine()
	engine.SetState(stake.NewLedger())
	if _, err := Bootstrap(engine, cfg); err == nil {
		t.Fatalf("expected missing admin to fail")
	}
	if _, err := engine.Config(); !errors.Is(err, stake.ErrNotInstantiated) {
		t.Fatalf("engine must stay uninstantiated, got %v", err)
	}
}
