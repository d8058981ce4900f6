package main

import (
	"fmt"

	"pitfall/internal/bridge"
	"pitfall/internal/reasoning"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// decideCmd runs a single offline tick
var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Ask the rule base for one decision without a server",
	Long: `Restates the given status and percepts to a fresh engine and prints the
goal, action and command the rule base picks.

Example:
  pitfall decide --x 1 --y 1 --facing north --energy 100 --percept breeze`,
	RunE: runDecide,
}

func init() {
	addDecideFlags(decideCmd.Flags())
}

func addDecideFlags(fs *pflag.FlagSet) {
	fs.Int("x", 0, "Agent column")
	fs.Int("y", 0, "Agent row")
	fs.String("facing", "north", "Agent facing")
	fs.Int("energy", reasoning.DefaultHealth, "Agent energy")
	fs.Int("score", reasoning.DefaultScore, "Game score")
	fs.StringSlice("percept", nil, "Game percept token (repeatable)")
}

// lastTick keeps the most recent tick the bridge recorded.
type lastTick struct {
	tick bridge.Tick
	seen bool
}

func (l *lastTick) RecordTick(t bridge.Tick) {
	l.tick = t
	l.seen = true
}

func runDecide(cmd *cobra.Command, args []string) error {
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	facing, _ := cmd.Flags().GetString("facing")
	energy, _ := cmd.Flags().GetInt("energy")
	score, _ := cmd.Flags().GetInt("score")
	percepts, _ := cmd.Flags().GetStringSlice("percept")

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	client := reasoning.New(session)
	client.DisableLogging()

	rec := &lastTick{}
	b := bridge.New(client, bridge.WithRecorder(rec))
	b.SetStatus(x, y, facing, "game", score, energy)
	if len(percepts) == 0 {
		b.GetObservationsClean()
	} else {
		b.GetObservations(percepts)
	}
	command := b.GetDecision()

	out := cmd.OutOrStdout()
	if !rec.seen || !rec.tick.Decided {
		fmt.Fprintln(out, "no decision")
		return nil
	}
	fmt.Fprintf(out, "goal:    %s\n", rec.tick.Goal)
	fmt.Fprintf(out, "action:  %s\n", rec.tick.Action)
	fmt.Fprintf(out, "command: %s\n", command)
	return nil
}
