package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zappabad/bargetrader/internal/config"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/store/sqlstore"
)

// openGame validates cfg, opens the configured store and hydrates a game
// from it. The returned func closes both.
func openGame(ctx context.Context, cfg *config.Config) (*game.Game, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store game.Store
	var closeStore func()
	if cfg.DBDriver != config.DriverMemory {
		s, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		store = s
		closeStore = func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("close store")
			}
		}
	}

	g, err := game.New(ctx, cfg.Game(), store)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, nil, err
	}

	log.Info().Str("driver", cfg.DBDriver).Int("pool", g.Feed.Len()).Msg("game ready")
	return g, func() {
		g.Close()
		if closeStore != nil {
			closeStore()
		}
	}, nil
}
