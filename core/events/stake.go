package events

import (
	"math/big"
	"strconv"

	"nhbstake/core/types"
	"nhbstake/crypto"
)

const (
	// TypeStakeBonded captures stake added to an unbonding period.
	TypeStakeBonded = "stake.bonded"
	// TypeStakeUnbonded captures stake removed from an unbonding period.
	TypeStakeUnbonded = "stake.unbonded"
	// TypeStakeRebonded captures stake moved between unbonding periods.
	TypeStakeRebonded = "stake.rebonded"
	// TypeStakeClaimed is emitted when matured claims are paid out.
	TypeStakeClaimed = "stake.claimed"
	// TypeStakeQuickUnbonded is emitted per staker force-unbonded by the unbonder.
	TypeStakeQuickUnbonded = "stake.quickUnbonded"
	// TypeStakeUnbondAll signals a toggle of the emergency unbond switch.
	TypeStakeUnbondAll = "stake.unbondAll"
	// TypeStakeMigrated is emitted when stake is handed to the converter.
	TypeStakeMigrated = "stake.migrated"
	// TypeDistributionCreated is emitted when a reward asset gets a distribution flow.
	TypeDistributionCreated = "stake.distribution.created"
	// TypeDistributionFunded is emitted when a reward schedule is extended.
	TypeDistributionFunded = "stake.distribution.funded"
	// TypeRewardsDistributed is emitted per asset that released rewards.
	TypeRewardsDistributed = "stake.rewards.distributed"
	// TypeRewardsWithdrawn is emitted per asset paid out to a receiver.
	TypeRewardsWithdrawn = "stake.rewards.withdrawn"
	// TypeWithdrawalDelegated is emitted when an owner registers a receiver.
	TypeWithdrawalDelegated = "stake.withdrawal.delegated"
	// TypeAdminUpdated is emitted when the admin changes.
	TypeAdminUpdated = "stake.admin.updated"
	// TypeConfigMigrated is emitted when the unbonder or converter is reconfigured.
	TypeConfigMigrated = "stake.config.migrated"
)

// StakeBonded captures a bond into one unbonding period.
type StakeBonded struct {
	Staker   [20]byte
	Period   uint64
	Amount   *big.Int
	NewStake *big.Int
}

// EventType satisfies the Event interface.
func (StakeBonded) EventType() string { return TypeStakeBonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeBonded) Event() *types.Event {
	return &types.Event{Type: TypeStakeBonded, Attributes: map[string]string{
		"staker":   crypto.Format(e.Staker),
		"period":   formatUint(e.Period),
		"amount":   formatAmount(e.Amount),
		"newStake": formatAmount(e.NewStake),
	}}
}

// StakeUnbonded captures an unbond. Immediate is set when the emergency switch
// paid the amount out without a claim.
type StakeUnbonded struct {
	Staker    [20]byte
	Period    uint64
	Amount    *big.Int
	Immediate bool
	ReleaseAt string
}

// EventType satisfies the Event interface.
func (StakeUnbonded) EventType() string { return TypeStakeUnbonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeUnbonded) Event() *types.Event {
	attrs := map[string]string{
		"staker":    crypto.Format(e.Staker),
		"period":    formatUint(e.Period),
		"amount":    formatAmount(e.Amount),
		"immediate": strconv.FormatBool(e.Immediate),
	}
	if e.ReleaseAt != "" {
		attrs["releaseAt"] = e.ReleaseAt
	}
	return &types.Event{Type: TypeStakeUnbonded, Attributes: attrs}
}

// StakeRebonded captures a move between unbonding periods.
type StakeRebonded struct {
	Staker      [20]byte
	From        uint64
	To          uint64
	Amount      *big.Int
	LockedUntil uint64
}

// EventType satisfies the Event interface.
func (StakeRebonded) EventType() string { return TypeStakeRebonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeRebonded) Event() *types.Event {
	attrs := map[string]string{
		"staker": crypto.Format(e.Staker),
		"from":   formatUint(e.From),
		"to":     formatUint(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.LockedUntil > 0 {
		attrs["lockedUntil"] = formatUint(e.LockedUntil)
	}
	return &types.Event{Type: TypeStakeRebonded, Attributes: attrs}
}

// StakeClaimed captures a claim payout.
type StakeClaimed struct {
	Staker [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (StakeClaimed) EventType() string { return TypeStakeClaimed }

// Event converts the structured payload into a broadcastable event.
func (e StakeClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStakeClaimed, Attributes: map[string]string{
		"staker": crypto.Format(e.Staker),
		"amount": formatAmount(e.Amount),
	}}
}

// StakeQuickUnbonded captures the forced release of one staker.
type StakeQuickUnbonded struct {
	Staker [20]byte
	Stake  *big.Int
	Claims *big.Int
}

// EventType satisfies the Event interface.
func (StakeQuickUnbonded) EventType() string { return TypeStakeQuickUnbonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeQuickUnbonded) Event() *types.Event {
	return &types.Event{Type: TypeStakeQuickUnbonded, Attributes: map[string]string{
		"staker": crypto.Format(e.Staker),
		"stake":  formatAmount(e.Stake),
		"claims": formatAmount(e.Claims),
	}}
}

// StakeUnbondAll captures a toggle of the emergency switch.
type StakeUnbondAll struct {
	Sender  [20]byte
	Enabled bool
}

// EventType satisfies the Event interface.
func (StakeUnbondAll) EventType() string { return TypeStakeUnbondAll }

// Event converts the structured payload into a broadcastable event.
func (e StakeUnbondAll) Event() *types.Event {
	return &types.Event{Type: TypeStakeUnbondAll, Attributes: map[string]string{
		"sender":  crypto.Format(e.Sender),
		"enabled": strconv.FormatBool(e.Enabled),
	}}
}

// StakeMigrated captures stake handed over to the converter.
type StakeMigrated struct {
	Staker    [20]byte
	Period    uint64
	Amount    *big.Int
	Converter [20]byte
}

// EventType satisfies the Event interface.
func (StakeMigrated) EventType() string { return TypeStakeMigrated }

// Event converts the structured payload into a broadcastable event.
func (e StakeMigrated) Event() *types.Event {
	return &types.Event{Type: TypeStakeMigrated, Attributes: map[string]string{
		"staker":    crypto.Format(e.Staker),
		"period":    formatUint(e.Period),
		"amount":    formatAmount(e.Amount),
		"converter": crypto.Format(e.Converter),
	}}
}

// DistributionCreated captures a new reward flow.
type DistributionCreated struct {
	Asset   string
	Manager [20]byte
}

// EventType satisfies the Event interface.
func (DistributionCreated) EventType() string { return TypeDistributionCreated }

// Event converts the structured payload into a broadcastable event.
func (e DistributionCreated) Event() *types.Event {
	return &types.Event{Type: TypeDistributionCreated, Attributes: map[string]string{
		"asset":   e.Asset,
		"manager": crypto.Format(e.Manager),
	}}
}

// DistributionFunded captures a funding schedule merged into a reward curve.
type DistributionFunded struct {
	Asset    string
	Amount   *big.Int
	Start    uint64
	Duration uint64
}

// EventType satisfies the Event interface.
func (DistributionFunded) EventType() string { return TypeDistributionFunded }

// Event converts the structured payload into a broadcastable event.
func (e DistributionFunded) Event() *types.Event {
	return &types.Event{Type: TypeDistributionFunded, Attributes: map[string]string{
		"asset":    e.Asset,
		"amount":   formatAmount(e.Amount),
		"start":    formatUint(e.Start),
		"duration": formatUint(e.Duration),
	}}
}

// RewardsDistributed captures rewards released into the accumulator.
type RewardsDistributed struct {
	Sender [20]byte
	Asset  string
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (RewardsDistributed) EventType() string { return TypeRewardsDistributed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsDistributed) Event() *types.Event {
	return &types.Event{Type: TypeRewardsDistributed, Attributes: map[string]string{
		"sender": crypto.Format(e.Sender),
		"asset":  e.Asset,
		"amount": formatAmount(e.Amount),
	}}
}

// RewardsWithdrawn captures a reward payout.
type RewardsWithdrawn struct {
	Sender   [20]byte
	Owner    [20]byte
	Receiver [20]byte
	Asset    string
	Amount   *big.Int
}

// EventType satisfies the Event interface.
func (RewardsWithdrawn) EventType() string { return TypeRewardsWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e RewardsWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeRewardsWithdrawn, Attributes: map[string]string{
		"sender":   crypto.Format(e.Sender),
		"owner":    crypto.Format(e.Owner),
		"receiver": crypto.Format(e.Receiver),
		"asset":    e.Asset,
		"amount":   formatAmount(e.Amount),
	}}
}

// WithdrawalDelegated captures a receiver registration.
type WithdrawalDelegated struct {
	Owner     [20]byte
	Delegated [20]byte
}

// EventType satisfies the Event interface.
func (WithdrawalDelegated) EventType() string { return TypeWithdrawalDelegated }

// Event converts the structured payload into a broadcastable event.
func (e WithdrawalDelegated) Event() *types.Event {
	return &types.Event{Type: TypeWithdrawalDelegated, Attributes: map[string]string{
		"owner":     crypto.Format(e.Owner),
		"delegated": crypto.Format(e.Delegated),
	}}
}

// AdminUpdated captures an admin handover. A nil Admin clears the role.
type AdminUpdated struct {
	Sender [20]byte
	Admin  *[20]byte
}

// EventType satisfies the Event interface.
func (AdminUpdated) EventType() string { return TypeAdminUpdated }

// Event converts the structured payload into a broadcastable event.
func (e AdminUpdated) Event() *types.Event {
	attrs := map[string]string{"sender": crypto.Format(e.Sender)}
	if e.Admin != nil {
		attrs["admin"] = crypto.Format(*e.Admin)
	}
	return &types.Event{Type: TypeAdminUpdated, Attributes: attrs}
}

// ConfigMigrated captures a reconfiguration of the privileged collaborators.
type ConfigMigrated struct {
	Unbonder  *[20]byte
	Converter *[20]byte
	UnbondAll bool
}

// EventType satisfies the Event interface.
func (ConfigMigrated) EventType() string { return TypeConfigMigrated }

// Event converts the structured payload into a broadcastable event.
func (e ConfigMigrated) Event() *types.Event {
	attrs := map[string]string{"unbondAll": strconv.FormatBool(e.UnbondAll)}
	if e.Unbonder != nil {
		attrs["unbonder"] = crypto.Format(*e.Unbonder)
	}
	if e.Converter != nil {
		attrs["converter"] = crypto.Format(*e.Converter)
	}
	return &types.Event{Type: TypeConfigMigrated, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
