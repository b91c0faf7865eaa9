package ops

import (
	"math/big"
	"sort"
	"strings"

	"nhbstake/crypto"
	"nhbstake/native/stake"
	"nhbstake/native/stake/curve"
)

// QueryArgs carries the optional parameters of read only queries.
type QueryArgs struct {
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Period  uint64 `json:"period,omitempty" yaml:"period,omitempty"`
	Asset   string `json:"asset,omitempty" yaml:"asset,omitempty"`
}

type queryFunc func(e *stake.Engine, args QueryArgs) (any, error)

var queries = map[string]queryFunc{
	"config":                 queryConfig,
	"admin":                  queryAdmin,
	"isUnbondAll":            queryUnbondAll,
	"staked":                 queryStaked,
	"allStaked":              queryAllStaked,
	"totalStaked":            func(e *stake.Engine, _ QueryArgs) (any, error) { return amountView(e.TotalStaked()) },
	"totalUnbonding":         func(e *stake.Engine, _ QueryArgs) (any, error) { return amountView(e.TotalUnbonding()) },
	"bondingInfo":            queryBondingInfo,
	"rewardsPower":           queryRewardsPower,
	"totalRewardsPower":      func(e *stake.Engine, _ QueryArgs) (any, error) { return assetAmountsView(e.TotalRewardsPower()) },
	"withdrawableRewards":    queryWithdrawable,
	"distributedRewards":     queryDistributed,
	"undistributedRewards":   func(e *stake.Engine, _ QueryArgs) (any, error) { return assetAmountsView(e.UndistributedRewards()) },
	"delegated":              queryDelegated,
	"distributionData":       queryDistributionData,
	"withdrawAdjustmentData": queryAdjustment,
	"claims":                 queryClaims,
	"rewardCurve":            queryRewardCurve,
	"annualizedRewards":      queryAnnualized,
}

// Queries lists the supported queries in name order.
func Queries() []string {
	out := make([]string, 0, len(queries))
	for name := range queries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// KnownQuery reports whether name is a supported query.
func KnownQuery(name string) bool {
	_, ok := queries[name]
	return ok
}

// Query runs the named read only query and returns a JSON friendly view.
func Query(e *stake.Engine, name string, args QueryArgs) (any, error) {
	q, ok := queries[strings.TrimSpace(name)]
	if !ok {
		return nil, badRequest("unknown query %q", name)
	}
	return q(e, args)
}

type AmountView struct {
	Amount string `json:"amount"`
}

type AssetAmountView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type ConfigView struct {
	StakedToken      string     `json:"stakedToken"`
	Instantiator     string     `json:"instantiator"`
	TokensPerPower   string     `json:"tokensPerPower"`
	MinBond          string     `json:"minBond"`
	UnbondingPeriods []uint64   `json:"unbondingPeriods"`
	MaxDistributions uint32     `json:"maxDistributions"`
	Unbonder         string     `json:"unbonder,omitempty"`
	Converter        *Converter `json:"converter,omitempty"`
}

type StakedView struct {
	Stake           string `json:"stake"`
	TotalLocked     string `json:"totalLocked"`
	UnbondingPeriod uint64 `json:"unbondingPeriod"`
	Token           string `json:"token"`
}

type BondingPeriodView struct {
	UnbondingPeriod uint64 `json:"unbondingPeriod"`
	TotalStaked     string `json:"totalStaked"`
}

type DistributedView struct {
	Distributed  []AssetAmountView `json:"distributed"`
	Withdrawable []AssetAmountView `json:"withdrawable"`
}

type DistributionView struct {
	Asset             string       `json:"asset"`
	Manager           string       `json:"manager"`
	Multipliers       []Multiplier `json:"multipliers"`
	SharesPerPoint    string       `json:"sharesPerPoint"`
	SharesLeftover    string       `json:"sharesLeftover"`
	DistributedTotal  string       `json:"distributedTotal"`
	WithdrawableTotal string       `json:"withdrawableTotal"`
}

type AdjustmentView struct {
	SharesCorrection string `json:"sharesCorrection"`
	WithdrawnRewards string `json:"withdrawnRewards"`
}

type ClaimView struct {
	Amount    string `json:"amount"`
	ReleaseAt string `json:"releaseAt"`
}

type PointView struct {
	X uint64 `json:"x"`
	Y string `json:"y"`
}

type CurveView struct {
	Kind  string      `json:"kind"`
	Steps []PointView `json:"steps"`
	Parts []CurveView `json:"parts,omitempty"`
}

type AnnualizedView struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
}

type PeriodRewardsView struct {
	UnbondingPeriod uint64           `json:"unbondingPeriod"`
	Rewards         []AnnualizedView `json:"rewards"`
}

func text(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func amountView(v *big.Int, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return AmountView{Amount: text(v)}, nil
}

func assetAmountsView(list []stake.AssetAmount, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return assetAmounts(list), nil
}

func assetAmounts(list []stake.AssetAmount) []AssetAmountView {
	out := make([]AssetAmountView, 0, len(list))
	for _, a := range list {
		out = append(out, AssetAmountView{Asset: a.Asset.String(), Amount: text(a.Amount)})
	}
	return out
}

func queryConfig(e *stake.Engine, _ QueryArgs) (any, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	view := ConfigView{
		StakedToken:      crypto.FromRaw(crypto.TokenPrefix, cfg.StakedToken).String(),
		Instantiator:     crypto.Format(cfg.Instantiator),
		TokensPerPower:   text(cfg.TokensPerPower),
		MinBond:          text(cfg.MinBond),
		UnbondingPeriods: append([]uint64(nil), cfg.UnbondingPeriods...),
		MaxDistributions: cfg.MaxDistributions,
	}
	if cfg.Unbonder != nil {
		view.Unbonder = crypto.Format(*cfg.Unbonder)
	}
	if cfg.Converter != nil {
		view.Converter = &Converter{
			Contract: crypto.Format(cfg.Converter.Contract),
			PairTo:   crypto.Format(cfg.Converter.PairTo),
		}
	}
	return view, nil
}

func queryAdmin(e *stake.Engine, _ QueryArgs) (any, error) {
	admin, err := e.Admin()
	if err != nil {
		return nil, err
	}
	out := map[string]string{"admin": ""}
	if admin != nil {
		out["admin"] = crypto.Format(*admin)
	}
	return out, nil
}

func queryUnbondAll(e *stake.Engine, _ QueryArgs) (any, error) {
	flag, err := e.IsUnbondAll()
	if err != nil {
		return nil, err
	}
	return map[string]bool{"unbondAll": flag}, nil
}

func stakedView(info stake.StakedInfo) StakedView {
	return StakedView{
		Stake:           text(info.Stake),
		TotalLocked:     text(info.TotalLocked),
		UnbondingPeriod: info.UnbondingPeriod,
		Token:           crypto.FromRaw(crypto.TokenPrefix, info.Token).String(),
	}
}

func queryStaked(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	info, err := e.Staked(addr, args.Period)
	if err != nil {
		return nil, err
	}
	return stakedView(*info), nil
}

func queryAllStaked(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	list, err := e.AllStaked(addr)
	if err != nil {
		return nil, err
	}
	out := make([]StakedView, 0, len(list))
	for _, info := range list {
		out = append(out, stakedView(info))
	}
	return out, nil
}

func queryBondingInfo(e *stake.Engine, _ QueryArgs) (any, error) {
	list, err := e.BondingInfo()
	if err != nil {
		return nil, err
	}
	out := make([]BondingPeriodView, 0, len(list))
	for _, p := range list {
		out = append(out, BondingPeriodView{UnbondingPeriod: p.UnbondingPeriod, TotalStaked: text(p.TotalStaked)})
	}
	return out, nil
}

func queryRewardsPower(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	return assetAmountsView(e.RewardsPower(addr))
}

func queryWithdrawable(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	return assetAmountsView(e.WithdrawableRewards(addr))
}

func queryDistributed(e *stake.Engine, _ QueryArgs) (any, error) {
	info, err := e.DistributedRewards()
	if err != nil {
		return nil, err
	}
	return DistributedView{
		Distributed:  assetAmounts(info.Distributed),
		Withdrawable: assetAmounts(info.Withdrawable),
	}, nil
}

func queryDelegated(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	delegated, err := e.Delegated(addr)
	if err != nil {
		return nil, err
	}
	return map[string]string{"delegated": crypto.Format(delegated)}, nil
}

func queryDistributionData(e *stake.Engine, _ QueryArgs) (any, error) {
	list, err := e.DistributionData()
	if err != nil {
		return nil, err
	}
	out := make([]DistributionView, 0, len(list))
	for _, d := range list {
		view := DistributionView{
			Asset:             d.Asset.String(),
			Manager:           crypto.Format(d.Distribution.Manager),
			SharesPerPoint:    text(d.Distribution.SharesPerPoint),
			SharesLeftover:    text(d.Distribution.SharesLeftover),
			DistributedTotal:  text(d.Distribution.DistributedTotal),
			WithdrawableTotal: text(d.Distribution.WithdrawableTotal),
		}
		for _, m := range d.Distribution.RewardMultipliers {
			view.Multipliers = append(view.Multipliers, Multiplier{Period: m.Period, Multiplier: m.Multiplier.String()})
		}
		out = append(out, view)
	}
	return out, nil
}

func queryAdjustment(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	asset, err := ParseAsset(args.Asset)
	if err != nil {
		return nil, err
	}
	adj, err := e.WithdrawAdjustmentData(addr, asset)
	if err != nil {
		return nil, err
	}
	return AdjustmentView{SharesCorrection: text(adj.SharesCorrection), WithdrawnRewards: text(adj.WithdrawnRewards)}, nil
}

func queryClaims(e *stake.Engine, args QueryArgs) (any, error) {
	addr, err := ParseAddress("address", args.Address)
	if err != nil {
		return nil, err
	}
	claims, err := e.Claims(addr)
	if err != nil {
		return nil, err
	}
	out := make([]ClaimView, 0, len(claims))
	for _, c := range claims {
		out = append(out, ClaimView{Amount: text(c.Amount), ReleaseAt: c.ReleaseAt.String()})
	}
	return out, nil
}

func curveView(c curve.Curve) CurveView {
	view := CurveView{Kind: c.Kind.String(), Steps: make([]PointView, 0, len(c.Steps))}
	for _, p := range c.Steps {
		view.Steps = append(view.Steps, PointView{X: p.X, Y: text(p.Y)})
	}
	for _, part := range c.Parts {
		view.Parts = append(view.Parts, curveView(part))
	}
	return view
}

func queryRewardCurve(e *stake.Engine, args QueryArgs) (any, error) {
	asset, err := ParseAsset(args.Asset)
	if err != nil {
		return nil, err
	}
	c, err := e.RewardCurve(asset)
	if err != nil {
		return nil, err
	}
	return curveView(c), nil
}

func queryAnnualized(e *stake.Engine, _ QueryArgs) (any, error) {
	list, err := e.AnnualizedRewards()
	if err != nil {
		return nil, err
	}
	out := make([]PeriodRewardsView, 0, len(list))
	for _, p := range list {
		view := PeriodRewardsView{UnbondingPeriod: p.UnbondingPeriod, Rewards: make([]AnnualizedView, 0, len(p.Rewards))}
		for _, r := range p.Rewards {
			entry := AnnualizedView{Asset: r.Asset.String()}
			if r.Amount != nil {
				entry.Amount = r.Amount.String()
			}
			view.Rewards = append(view.Rewards, entry)
		}
		out = append(out, view)
	}
	return out, nil
}
