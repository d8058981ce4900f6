package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pitfall/internal/agent"
	"pitfall/internal/bridge"
	"pitfall/internal/config"
	"pitfall/internal/engine"
	"pitfall/internal/journal"
	"pitfall/internal/logging"
	"pitfall/internal/reasoning"
	"pitfall/internal/reload"
	"pitfall/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd plays one game against a server
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a game server and play",
	Long: `Dials the game server, announces the agent and answers every tick with
the rule base's decision until the server closes the game.

Example:
  pitfall run --url ws://localhost:8080/agent --name scout`,
	RunE: runGame,
}

func init() {
	runCmd.Flags().String("url", "", "Game server websocket URL (default from config)")
	runCmd.Flags().String("name", "", "Agent name (default from config)")
}

// newSession starts an engine session on the configured rule base.
func newSession(c *config.Config) (*engine.Session, error) {
	var opts []engine.Option
	if c.Rules.Path != "" {
		opts = append(opts, engine.WithRuleBaseFile(c.Rules.Path))
	}
	return engine.NewSession(opts...)
}

// openRecorder opens the journal sinks, or returns nil when journaling is off.
func openRecorder(c *config.Config, ruleBase string) (*journal.Recorder, error) {
	if !c.Journal.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(c.Journal.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	store, err := journal.OpenStore(c.JournalDatabasePath())
	if err != nil {
		return nil, err
	}
	return journal.NewRecorder(store, journal.NewJSONLWriter(c.Journal.Dir, c.Journal.Compress), ruleBase), nil
}

func runGame(cmd *cobra.Command, args []string) error {
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		cfg.Game.ServerURL = u
	}
	if n, _ := cmd.Flags().GetString("name"); n != "" {
		cfg.Game.AgentName = n
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 1. Engine and reasoning
	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	client := reasoning.New(session)
	if !cfg.Rules.PrintMap {
		client.DisableLogging()
	}

	// 2. Journal
	var bridgeOpts []bridge.Option
	var runnerOpts []agent.Option
	recorder, err := openRecorder(cfg, session.RuleBaseName())
	if err != nil {
		return err
	}
	if recorder == nil {
		logging.BootWarn("journal disabled: ticks will not be recorded")
	} else {
		defer recorder.Close()
		bridgeOpts = append(bridgeOpts, bridge.WithRecorder(recorder))
		runnerOpts = append(runnerOpts, agent.WithEpisodes(recorder))
	}
	if cfg.Game.ActFeedback {
		bridgeOpts = append(bridgeOpts, bridge.WithActFeedback())
	}
	if d := cfg.GetDecisionInterval(); d > 0 {
		runnerOpts = append(runnerOpts, agent.WithDecisionInterval(d))
	}

	// 3. Transport
	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.GetDialTimeout())
	conn, err := transport.Dial(dialCtx, cfg.Game.ServerURL, cfg.Game.AgentName)
	dialCancel()
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Connected",
		zap.String("url", cfg.Game.ServerURL),
		zap.String("agent", cfg.Game.AgentName),
		zap.String("rules", session.RuleBaseName()))

	runner := agent.NewRunner(bridge.New(client, bridgeOpts...), conn, runnerOpts...)

	// 4. Rule reload
	if cfg.Rules.Watch {
		w, err := reload.NewWatcher(cfg.Rules.Path, cfg.GetReloadDebounce(), runner.Reset)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	if err := runner.Run(ctx); err != nil {
		return err
	}

	st := runner.Stats()
	logger.Info("Game finished",
		zap.Int("frames", st.Frames),
		zap.Int("decisions", st.Decisions),
		zap.Int("commands", st.Commands),
		zap.Int("resets", st.Resets))
	if recorder != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "episode %s: %d decisions, %d commands\n", recorder.Episode(), st.Decisions, st.Commands)
	}
	return nil
}
