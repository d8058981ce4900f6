package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"pitfall/internal/journal"
	"pitfall/internal/term"

	"github.com/spf13/cobra"
)

// journalCmd groups the journal readers
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded episodes",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded episodes",
	Args:  cobra.NoArgs,
	RunE:  listEpisodes,
}

var journalAnalyzeCmd = &cobra.Command{
	Use:   "analyze [episode]",
	Short: "Summarize an episode: visited cells, percept cells and actions",
	Args:  cobra.ExactArgs(1),
	RunE:  analyzeEpisode,
}

func listEpisodes(cmd *cobra.Command, args []string) error {
	store, err := journal.OpenStore(cfg.JournalDatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	episodes, err := store.Episodes()
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No episodes recorded")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EPISODE\tSTARTED\tTICKS\tRULES")
	for _, ep := range episodes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", ep.ID, ep.StartedAt.Format("2006-01-02 15:04:05"), ep.Ticks, ep.RuleBase)
	}
	return tw.Flush()
}

func analyzeEpisode(cmd *cobra.Command, args []string) error {
	store, err := journal.OpenStore(cfg.JournalDatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("episode %s has no ticks", args[0])
	}
	a, err := journal.Analyze(entries)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "episode %s: %d ticks, %d cells visited\n", args[0], a.Ticks, len(a.Visited))
	fmt.Fprintf(out, "visited: %s\n", joinCoordinates(a.Visited))
	for _, s := range term.Sensors {
		if cells := a.Percepts[s]; len(cells) > 0 {
			fmt.Fprintf(out, "%s: %s\n", s, joinCoordinates(cells))
		}
	}

	actions := make([]string, 0, len(a.Actions))
	for name := range a.Actions {
		actions = append(actions, name)
	}
	sort.Strings(actions)
	fmt.Fprintln(out, "actions:")
	for _, name := range actions {
		fmt.Fprintf(out, "  %-20s %d\n", name, a.Actions[name])
	}
	return nil
}

func joinCoordinates(cs []term.Coordinate) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = "(" + c.String() + ")"
	}
	return strings.Join(parts, " ")
}
