package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"outbreak/internal/app"
	"outbreak/internal/bot"
	"outbreak/internal/config"
	"outbreak/internal/domain"
	"outbreak/internal/store"
	"outbreak/internal/store/memstore"
	"outbreak/internal/telemetry"
	"outbreak/internal/transport/ws"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play matches with bots",
	Long: `Seat bots at a new table and play matches to the end, either against an
in-process store or against a running relay (--addr).`,
	RunE: runSimulate,
}

var (
	simPlayers     int
	simGames       int
	simSeed        int64
	simAddr        string
	simTimeout     time.Duration
	simVoteTimeout time.Duration
)

func init() {
	simulateCmd.Flags().IntVarP(&simPlayers, "players", "n", 5, "Players per match")
	simulateCmd.Flags().IntVar(&simGames, "games", 1, "Number of matches to play")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Seed for bot choices (0 picks one)")
	simulateCmd.Flags().StringVar(&simAddr, "addr", "", "Relay URL, e.g. ws://localhost:8080/ws (default: in-process)")
	simulateCmd.Flags().DurationVar(&simTimeout, "timeout", time.Minute, "Give up on a match after this long")
	simulateCmd.Flags().DurationVar(&simVoteTimeout, "vote-timeout", 250*time.Millisecond, "Close stalled votes after this long")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())

	shutdownTracing, err := telemetry.Setup(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	out := cmd.OutOrStdout()
	for game := 0; game < simGames; game++ {
		connect := memConnector(memstore.New(memstore.WithLogger(logger)))
		if simAddr != "" {
			connect = relayConnector(simAddr, logger)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), simTimeout)
		final, err := bot.Simulate(ctx, bot.SimConfig{
			Players: simPlayers,
			Seed:    seed + int64(game),
			Options: app.Options{
				HeartbeatInterval: cfg.Game.HeartbeatInterval,
				VoteTimeout:       simVoteTimeout,
			},
			Logger: logger,
		}, connect)
		cancel()
		if err != nil {
			return fmt.Errorf("game %d: %w", game+1, err)
		}
		printResult(out, game+1, final)
	}
	return nil
}

func printResult(w io.Writer, game int, s *domain.Session) {
	fmt.Fprintf(w, "game %d: %s after %d round(s)\n", game, s.GameResult, s.Round)
	for _, p := range s.PlayersByJoin() {
		status := "alive"
		if !p.IsAlive {
			status = "out"
		}
		role := string(p.Role)
		switch p.ID {
		case s.PublicRoles.Doctor:
			role += ", doctor"
		case s.PublicRoles.Guard:
			role += ", guard"
		}
		fmt.Fprintf(w, "  %-12s %-20s %s\n", p.Name, role, status)
	}
}

func memConnector(st *memstore.Store) bot.Connector {
	return func(_ context.Context, playerID string) (store.Store, func(), error) {
		conn := st.Connect(playerID)
		return conn, func() { conn.Close() }, nil
	}
}

func relayConnector(addr string, logger *slog.Logger) bot.Connector {
	return func(ctx context.Context, playerID string) (store.Store, func(), error) {
		remote, err := ws.Dial(ctx, addr, playerID, logger)
		if err != nil {
			return nil, nil, err
		}
		return remote, func() { remote.Close() }, nil
	}
}
