package main

import (
	"fmt"
	"log/slog"
	"strings"

	"nhbstake/config"
	"nhbstake/core/state"
	"nhbstake/native/common"
	"nhbstake/native/stake"
	"nhbstake/storage"
)

// backend owns the database behind an engine and the genesis it was opened
// with, if any.
type backend struct {
	engine  *stake.Engine
	pauses  *common.Pauses
	db      storage.Database
	genesis *config.StakeConfig
}

func (b *backend) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

// openEngine builds an engine over a LevelDB store in dataDir, or over an
// in-memory ledger when dataDir is empty. A genesis file, when given, is
// applied if the store has not been instantiated yet.
func openEngine(dataDir string, cacheSize int, genesisPath string, logger *slog.Logger) (*backend, error) {
	b := &backend{engine: stake.NewEngine(), pauses: common.NewPauses()}
	b.engine.SetPauses(b.pauses)

	if strings.TrimSpace(dataDir) == "" {
		b.engine.SetState(stake.NewLedger())
	} else {
		db, err := storage.NewLevelDB(dataDir)
		if err != nil {
			return nil, fmt.Errorf("open data dir: %w", err)
		}
		store, err := state.NewStakeStore(db, cacheSize)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.db = db
		b.engine.SetState(store)
	}

	if strings.TrimSpace(genesisPath) == "" {
		return b, nil
	}
	genesis, err := config.Load(genesisPath)
	if err != nil {
		b.Close()
		return nil, err
	}
	created, err := config.Bootstrap(b.engine, genesis)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bootstrap genesis: %w", err)
	}
	if created {
		logger.Info("stake engine instantiated from genesis", "genesis", genesisPath, "periods", len(genesis.UnbondingPeriods))
	}
	b.pauses.Set(stake.ModuleName, genesis.Pauses.Stake)
	b.genesis = genesis
	return b, nil
}
