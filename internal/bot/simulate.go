package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"outbreak/internal/app"
	"outbreak/internal/domain"
	"outbreak/internal/identity"
	"outbreak/internal/store"
)

// Connector opens a store connection for one simulated player. The
// returned close func drops it.
type Connector func(ctx context.Context, playerID string) (store.Store, func(), error)

// SimConfig configures a simulated match.
type SimConfig struct {
	Players int
	Seed    int64
	Options app.Options
	Logger  *slog.Logger
}

// Simulate seats cfg.Players bots at a new table and plays one match to the
// end. Every bot also runs the host loop, so hosting moves on if the host
// drops. It returns the final session.
func Simulate(ctx context.Context, cfg SimConfig, connect Connector) (*domain.Session, error) {
	if cfg.Players < domain.MinPlayers || cfg.Players > domain.MaxPlayers {
		return nil, fmt.Errorf("simulate %d players: %w", cfg.Players, domain.ErrInsufficientPlayers)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	matches := make([]*app.Match, 0, cfg.Players)
	var taken []string
	for i := 0; i < cfg.Players; i++ {
		playerID, err := identity.New().PlayerID()
		if err != nil {
			return nil, err
		}
		st, closeConn, err := connect(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", playerID, err)
		}
		defer closeConn()

		svc, err := app.NewService(st, playerID,
			app.WithLogger(logger.With("playerID", playerID)),
			app.WithOptions(cfg.Options),
			app.WithSeed(cfg.Seed+int64(i)),
		)
		if err != nil {
			return nil, err
		}

		name := RandomNickname(rng, taken)
		taken = append(taken, name)
		profile := domain.Profile{Name: name, AvatarID: RandomAvatar(rng)}

		var m *app.Match
		if i == 0 {
			m, err = svc.CreateLobby(ctx, profile)
		} else {
			var lobby *domain.Session
			lobby, err = matches[0].Snapshot(ctx)
			if err == nil {
				m, err = svc.Join(ctx, lobby.Code, profile)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", name, err)
		}
		matches = append(matches, m)
	}

	hostCtx, stopHosts := context.WithCancel(ctx)
	defer stopHosts()
	var hosts errgroup.Group
	for _, m := range matches {
		hosts.Go(func() error {
			m.RunHost(hostCtx)
			return nil
		})
		hosts.Go(func() error {
			m.KeepAlive(hostCtx)
			return nil
		})
	}

	results := make([]*domain.Session, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range matches {
		b := New(m, cfg.Seed*31+int64(i), WithStartAt(cfg.Players), WithLogger(logger))
		g.Go(func() error {
			final, err := b.Play(gctx)
			results[i] = final
			return err
		})
	}
	err := g.Wait()
	stopHosts()
	hosts.Wait()
	if err != nil {
		return nil, err
	}

	logger.Info("simulated match finished",
		"sessionID", results[0].ID,
		"rounds", results[0].Round,
		"result", results[0].GameResult,
	)
	return results[0], nil
}
