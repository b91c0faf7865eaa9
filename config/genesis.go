package config

import (
	"errors"
	"fmt"

	"nhbstake/native/stake"
)

// Bootstrap instantiates engine from cfg and opens the genesis distribution
// flows on behalf of the admin. It reports false when the engine state was
// already instantiated, in which case nothing is written.
func Bootstrap(engine *stake.Engine, cfg *StakeConfig) (bool, error) {
	if _, err := engine.Config(); err == nil {
		return false, nil
	} else if !errors.Is(err, stake.ErrNotInstantiated) {
		return false, err
	}
	msg, err := cfg.InstantiateMsg()
	if err != nil {
		return false, err
	}
	flows, err := cfg.Flows()
	if err != nil {
		return false, err
	}
	if len(flows) > 0 && msg.Admin == nil {
		return false, fmt.Errorf("stake: genesis distributions require an Admin")
	}
	instantiator, err := cfg.InstantiatorAddress()
	if err != nil {
		return false, err
	}
	if err := engine.Instantiate(instantiator, msg); err != nil {
		return false, fmt.Errorf("stake: instantiate: %w", err)
	}
	for _, flow := range flows {
		manager := flow.Manager
		if manager == ([20]byte{}) {
			manager = *msg.Admin
		}
		if _, err := engine.CreateDistributionFlow(*msg.Admin, manager, flow.Asset, flow.Multipliers); err != nil {
			return false, fmt.Errorf("stake: distribution %s: %w", flow.Asset, err)
		}
	}
	return true, nil
}
