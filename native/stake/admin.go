package stake

import (
	"fmt"
	"math/big"
	"sort"

	"nhbstake/core/events"
)

// InstantiateMsg carries the parameters of a new engine.
type InstantiateMsg struct {
	StakedToken      [20]byte
	TokensPerPower   *big.Int
	MinBond          *big.Int
	UnbondingPeriods []uint64
	MaxDistributions uint32
	Admin            *[20]byte
	Unbonder         *[20]byte
	Converter        *ConverterConfig
}

// MigrateMsg reconfigures the privileged collaborators of a running engine.
type MigrateMsg struct {
	Unbonder  *[20]byte
	Converter *ConverterConfig
	UnbondAll bool
}

// Instantiate stores the configuration of a fresh engine. sender is recorded
// as the instantiator and becomes the source pair of migrated stake.
func (e *Engine) Instantiate(sender [20]byte, msg InstantiateMsg) error {
	_, err := e.run(false, func(c *call) error {
		if c.cfg != nil {
			return ErrAlreadyInstantiated
		}
		tpp := cloneBigInt(msg.TokensPerPower)
		if tpp.Sign() <= 0 {
			return fmt.Errorf("%w: tokens per power must be positive", ErrInvalidConfig)
		}
		if err := checkAmount(tpp); err != nil {
			return err
		}
		minBond := cloneBigInt(msg.MinBond)
		if minBond.Sign() < 0 {
			return fmt.Errorf("%w: negative minimum bond", ErrInvalidConfig)
		}
		if minBond.Sign() == 0 {
			minBond = big.NewInt(1)
		}
		if len(msg.UnbondingPeriods) == 0 {
			return fmt.Errorf("%w: no unbonding periods", ErrInvalidConfig)
		}
		periods := append([]uint64(nil), msg.UnbondingPeriods...)
		sort.Slice(periods, func(a, b int) bool { return periods[a] < periods[b] })
		for i := 1; i < len(periods); i++ {
			if periods[i] == periods[i-1] {
				return fmt.Errorf("%w: duplicate unbonding period %d", ErrInvalidConfig, periods[i])
			}
		}
		cfg := &Config{
			StakedToken:      msg.StakedToken,
			Instantiator:     sender,
			TokensPerPower:   tpp,
			MinBond:          minBond,
			UnbondingPeriods: periods,
			MaxDistributions: msg.MaxDistributions,
			Unbonder:         copyAddrPtr(msg.Unbonder),
		}
		if msg.Converter != nil {
			converter := *msg.Converter
			cfg.Converter = &converter
		}
		if err := c.st.StakeConfigPut(cfg); err != nil {
			return err
		}
		if err := c.st.TokenInfoPut(&TokenInfo{Staked: big.NewInt(0), Unbonding: big.NewInt(0)}); err != nil {
			return err
		}
		for _, period := range periods {
			if err := c.st.TotalStakePut(period, &TotalStake{Staked: big.NewInt(0), PoweredStake: big.NewInt(0)}); err != nil {
				return err
			}
		}
		if err := c.st.UnbondAllPut(false); err != nil {
			return err
		}
		if err := c.st.AdminPut(msg.Admin); err != nil {
			return err
		}
		if msg.Admin != nil {
			c.emit(events.AdminUpdated{Sender: sender, Admin: copyAddrPtr(msg.Admin)})
		}
		return nil
	})
	return err
}

// UpdateAdmin hands the admin role to admin, or clears it when admin is nil.
// Only the current admin may call it.
func (e *Engine) UpdateAdmin(sender [20]byte, admin *[20]byte) error {
	_, err := e.apply(func(c *call) error {
		current, err := c.st.AdminGet()
		if err != nil {
			return err
		}
		if current == nil || *current != sender {
			return ErrUnauthorized
		}
		if err := c.st.AdminPut(admin); err != nil {
			return err
		}
		c.emit(events.AdminUpdated{Sender: sender, Admin: copyAddrPtr(admin)})
		return nil
	})
	return err
}

// Migrate replaces the unbonder and converter and sets the unbond all flag.
// It is an operator action of the host and performs no sender check.
func (e *Engine) Migrate(msg MigrateMsg) error {
	_, err := e.apply(func(c *call) error {
		cfg := c.cfg.Clone()
		cfg.Unbonder = copyAddrPtr(msg.Unbonder)
		cfg.Converter = nil
		if msg.Converter != nil {
			converter := *msg.Converter
			cfg.Converter = &converter
		}
		if err := c.st.StakeConfigPut(cfg); err != nil {
			return err
		}
		if err := c.st.UnbondAllPut(msg.UnbondAll); err != nil {
			return err
		}
		evt := events.ConfigMigrated{Unbonder: copyAddrPtr(msg.Unbonder), UnbondAll: msg.UnbondAll}
		if cfg.Converter != nil {
			contract := cfg.Converter.Contract
			evt.Converter = &contract
		}
		c.emit(evt)
		return nil
	})
	return err
}
