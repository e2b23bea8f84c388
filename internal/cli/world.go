package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/lazypower/calibrator/internal/collab"
	"github.com/lazypower/calibrator/internal/config"
	"github.com/lazypower/calibrator/internal/engine"
	"github.com/lazypower/calibrator/internal/store"
)

// loadConfig reads the --config file plus environment overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB is a helper that opens the database for CLI commands.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}

// buildEngine wires an engine over db. Collaborators come from the fixtures
// file when one is configured; without it the engine has no registries and
// only read paths are useful.
func buildEngine(ctx context.Context, db *store.DB, cfg config.Config) (*engine.Engine, error) {
	var (
		registries = collab.RegistrySet{}
		fixtures   *collab.Fixtures
		staking    *collab.MemoryStaking
	)
	if cfg.Fixtures != "" {
		fx, err := collab.LoadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		fixtures = fx
		registries, staking = fx.Build()
	}

	eng := engine.New(db, registries)
	if staking != nil {
		eng.SetStaking(staking)
	}
	eng.SetEmitter(engine.LogEmitter{Logger: log.Default()})
	if err := eng.SetNodeID(cfg.Engine.NodeID); err != nil {
		return nil, err
	}
	if err := eng.SeedDefaultSettings(ctx, cfg.Engine.Settings); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	if fixtures != nil {
		if err := applyFixtures(ctx, eng, fixtures); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// applyFixtures seeds the store with the groups, staking contract and
// balances the fixtures declare. It is safe to run on every start: groups
// are updated in place and balances are only topped up to the declared
// amount.
func applyFixtures(ctx context.Context, eng *engine.Engine, fx *collab.Fixtures) error {
	if !fx.Staking.Contract.IsZero() {
		if err := eng.SetStakingContract(ctx, fx.Staking.Contract); err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
	}

	for _, g := range fx.Groups {
		_, err := eng.RegisterGroup(ctx, g)
		if errors.Is(err, engine.ErrGroupExists) {
			_, err = eng.UpdateGroup(ctx, g)
		}
		if err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
	}

	for _, b := range fx.Balances {
		have, err := eng.Balance(ctx, b.Currency, b.Holder)
		if err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
		if have >= b.Amount {
			continue
		}
		if err := eng.Mint(ctx, b.Currency, b.Holder, b.Amount-have); err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "  fixtures: %d registries, %d groups, %d balances\n",
		len(fx.Registries), len(fx.Groups), len(fx.Balances))
	return nil
}
