package ops

import (
	"fmt"
	"sort"
	"strings"

	"nhbstake/native/stake"
)

type handler func(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error)

var handlers = map[string]handler{
	"receive":                receive,
	"bond":                   bond,
	"massBond":               massBond,
	"unbond":                 unbond,
	"rebond":                 rebond,
	"claim":                  claim,
	"quickUnbond":            quickUnbond,
	"unbondAll":              func(e *stake.Engine, sender [20]byte, _ Request) (*stake.Receipt, error) { return e.UnbondAll(sender) },
	"stopUnbondAll":          func(e *stake.Engine, sender [20]byte, _ Request) (*stake.Receipt, error) { return e.StopUnbondAll(sender) },
	"migrateStake":           migrateStake,
	"createDistributionFlow": createDistributionFlow,
	"fundDistribution":       fundDistribution,
	"distributeRewards":      distributeRewards,
	"withdrawRewards":        withdrawRewards,
	"delegateWithdrawal":     delegateWithdrawal,
	"updateAdmin":            updateAdmin,
	"migrate":                migrate,
}

// Operations lists the supported mutating operations in name order.
func Operations() []string {
	out := make([]string, 0, len(handlers))
	for name := range handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Known reports whether op names a mutating operation.
func Known(op string) bool {
	_, ok := handlers[op]
	return ok
}

// Apply decodes req and runs op on behalf of sender.
func Apply(e *stake.Engine, op string, sender [20]byte, req Request) (*stake.Receipt, error) {
	h, ok := handlers[strings.TrimSpace(op)]
	if !ok {
		return nil, badRequest("unknown operation %q", op)
	}
	receipt, err := h(e, sender, req)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		receipt = &stake.Receipt{}
	}
	return receipt, nil
}

// Stakers returns how many stakers a request touches for quota accounting.
func Stakers(op string, req Request) uint64 {
	switch op {
	case "massBond":
		return uint64(len(req.Delegations))
	case "quickUnbond":
		return uint64(len(req.Stakers))
	case "receive":
		if req.Action == "massDelegate" {
			return uint64(len(req.Delegations))
		}
	}
	return 0
}

func stakedToken(e *stake.Engine, value string) ([20]byte, error) {
	if strings.TrimSpace(value) != "" {
		return ParseAddress("token", value)
	}
	cfg, err := e.Config()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.StakedToken, nil
}

func receive(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	token, err := stakedToken(e, req.Token)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	var msg stake.ReceiveMsg
	switch req.Action {
	case "delegate":
		delegateAs, err := optionalAddress("delegateAs", req.DelegateAs)
		if err != nil {
			return nil, err
		}
		msg.Delegate = &stake.DelegateMsg{UnbondingPeriod: req.Period, DelegateAs: delegateAs}
	case "massDelegate":
		delegations, err := parseDelegations(req.Delegations)
		if err != nil {
			return nil, err
		}
		msg.MassDelegate = &stake.MassDelegateMsg{UnbondingPeriod: req.Period, Delegations: delegations}
	case "fund":
		msg.Fund = &stake.FundingInfo{StartTime: req.StartTime, DistributionDuration: req.Duration, Amount: amount}
	case "":
	default:
		return nil, badRequest("unknown receive action %q", req.Action)
	}
	return e.Receive(token, sender, amount, msg)
}

func bond(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	token, err := stakedToken(e, req.Token)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	return e.Bond(token, sender, req.Period, amount)
}

func massBond(e *stake.Engine, _ [20]byte, req Request) (*stake.Receipt, error) {
	token, err := stakedToken(e, req.Token)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	delegations, err := parseDelegations(req.Delegations)
	if err != nil {
		return nil, err
	}
	return e.MassBond(token, amount, req.Period, delegations)
}

func unbond(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	return e.Unbond(sender, req.Period, amount)
}

func rebond(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	return e.Rebond(sender, amount, req.From, req.To)
}

func claim(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	limit, err := optionalAmount("limit", req.Limit)
	if err != nil {
		return nil, err
	}
	return e.Claim(sender, limit)
}

func quickUnbond(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	stakers, err := parseStakers(req.Stakers)
	if err != nil {
		return nil, err
	}
	return e.QuickUnbond(sender, stakers)
}

func migrateStake(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	return e.MigrateStake(sender, amount, req.Period)
}

func createDistributionFlow(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	manager, err := ParseAddress("manager", req.Manager)
	if err != nil {
		return nil, err
	}
	asset, err := ParseAsset(req.Asset)
	if err != nil {
		return nil, err
	}
	multipliers, err := parseMultipliers(req.Multipliers)
	if err != nil {
		return nil, err
	}
	return e.CreateDistributionFlow(sender, manager, asset, multipliers)
}

func fundDistribution(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	funds, err := parseCoins(req.Funds)
	if err != nil {
		return nil, err
	}
	amount, err := optionalAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		if len(funds) != 1 {
			return nil, badRequest("amount is required unless exactly one coin is sent")
		}
		amount = funds[0].Amount
	}
	info := stake.FundingInfo{StartTime: req.StartTime, DistributionDuration: req.Duration, Amount: amount}
	return e.FundDistribution(sender, info, funds)
}

func distributeRewards(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	onBehalf, err := optionalAddress("onBehalf", req.OnBehalf)
	if err != nil {
		return nil, err
	}
	funds, err := parseCoins(req.Funds)
	if err != nil {
		return nil, err
	}
	return e.DistributeRewards(sender, onBehalf, funds)
}

func withdrawRewards(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	owner, err := optionalAddress("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	receiver, err := optionalAddress("receiver", req.Receiver)
	if err != nil {
		return nil, err
	}
	return e.WithdrawRewards(sender, owner, receiver)
}

func delegateWithdrawal(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	delegated, err := ParseAddress("delegated", req.Delegated)
	if err != nil {
		return nil, err
	}
	return e.DelegateWithdrawal(sender, delegated)
}

func updateAdmin(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	admin, err := optionalAddress("admin", req.Admin)
	if err != nil {
		return nil, err
	}
	if err := e.UpdateAdmin(sender, admin); err != nil {
		return nil, err
	}
	return &stake.Receipt{}, nil
}

// migrate is the host-side code migration. The engine does not check the
// caller, so only the current admin may trigger it here.
func migrate(e *stake.Engine, sender [20]byte, req Request) (*stake.Receipt, error) {
	unbonder, err := optionalAddress("unbonder", req.Unbonder)
	if err != nil {
		return nil, err
	}
	converter, err := parseConverter(req.Converter)
	if err != nil {
		return nil, err
	}
	admin, err := e.Admin()
	if err != nil {
		return nil, err
	}
	if admin == nil || *admin != sender {
		return nil, stake.ErrUnauthorized
	}
	msg := stake.MigrateMsg{Unbonder: unbonder, Converter: converter, UnbondAll: req.UnbondAll}
	if err := e.Migrate(msg); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &stake.Receipt{}, nil
}
