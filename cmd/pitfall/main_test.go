package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pitfall/internal/bridge"
	"pitfall/internal/config"
	"pitfall/internal/journal"
	"pitfall/internal/term"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupGlobals(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Journal.Dir = t.TempDir()
}

// decide runs the decide command with a fresh flag set.
func decide(t *testing.T, args ...string) string {
	t.Helper()
	c := &cobra.Command{Use: "decide", RunE: runDecide}
	addDecideFlags(c.Flags())
	require.NoError(t, c.ParseFlags(args))

	var out bytes.Buffer
	c.SetOut(&out)
	require.NoError(t, runDecide(c, nil))
	return out.String()
}

func TestDecide(t *testing.T) {
	setupGlobals(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"breeze retreats", []string{"--x", "1", "--y", "1", "--percept", "breeze"}, "command: move_backward"},
		{"gold is picked up", []string{"--percept", "redLight"}, "command: pick_up"},
		{"clean cell moves on", []string{"--x", "2", "--y", "2", "--facing", "South"}, "goal:    goto(2, 3)"},
		{"dead agent", []string{"--energy", "0"}, "no decision"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, decide(t, tt.args...), tt.want)
		})
	}
}

func TestDecide_RuleBaseFlag(t *testing.T) {
	setupGlobals(t)
	cfg.Rules.Path = filepath.Join(t.TempDir(), "missing.pl")

	c := &cobra.Command{Use: "decide"}
	addDecideFlags(c.Flags())
	assert.Error(t, runDecide(c, nil))
}

func seedJournal(t *testing.T) string {
	t.Helper()
	store, err := journal.OpenStore(cfg.JournalDatabasePath())
	require.NoError(t, err)
	defer store.Close()

	ep, err := store.BeginEpisode("embedded:kb/pitfall.pl")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []bridge.Tick{
		{
			State:       bridge.State{Position: term.Coordinate{X: 1, Y: 1}, Facing: term.North, Status: "game", Energy: 100},
			Observation: bridge.Observation{Percepts: term.Percepts{Breeze: true}},
			Decided:     true,
			Action:      term.ActionMoveBackwards,
			Command:     "move_backward",
		},
		{
			State:   bridge.State{Position: term.Coordinate{X: 1, Y: 2}, Facing: term.North, Status: "game", Energy: 100},
			Decided: true,
			Action:  term.ActionMoveForward,
			Command: "move_forward",
		},
	}
	for i, tk := range ticks {
		require.NoError(t, store.Append(journal.EntryFromTick(ep.ID, i+1, at, tk)))
	}
	return ep.ID
}

func TestJournalList(t *testing.T) {
	setupGlobals(t)

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	require.NoError(t, listEpisodes(c, nil))
	assert.Contains(t, out.String(), "No episodes recorded")

	id := seedJournal(t)
	out.Reset()
	require.NoError(t, listEpisodes(c, nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], id)
	assert.Contains(t, lines[1], "embedded:kb/pitfall.pl")
}

func TestJournalAnalyze(t *testing.T) {
	setupGlobals(t)
	id := seedJournal(t)

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	require.NoError(t, analyzeEpisode(c, []string{id}))

	got := out.String()
	assert.Contains(t, got, "2 ticks, 2 cells visited")
	assert.Contains(t, got, "visited: (1, 1) (1, 2)")
	assert.Contains(t, got, "breeze: (1, 1)")
	assert.Contains(t, got, "move_forward")

	assert.Error(t, analyzeEpisode(c, []string{"nope"}))
}

func TestBuildLogger(t *testing.T) {
	l, err := buildLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = buildLogger(config.LoggingConfig{Level: "WARN", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = buildLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "decide", "journal"})
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("rules"))
}
