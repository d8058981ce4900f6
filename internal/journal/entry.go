// Package journal records every decision the agent makes.
//
// Ticks go to a SQLite index (one row per tick, grouped into episodes) and,
// optionally, to one JSONL file per episode. Analyze replays an episode's
// ticks through a small Datalog program.
package journal

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"pitfall/internal/bridge"
	"pitfall/internal/term"

	"github.com/oklog/ulid/v2"
)

// Entry is one journaled decision.
type Entry struct {
	Episode       string        `json:"episode"`
	Tick          int           `json:"tick"`
	Time          time.Time     `json:"time"`
	State         bridge.State  `json:"state"`
	Percepts      term.Percepts `json:"percepts"`
	EnemyDistance *int          `json:"enemy_distance,omitempty"`
	Decided       bool          `json:"decided"`
	Goal          string        `json:"goal"`
	Action        string        `json:"action"`
	Command       string        `json:"command"`
}

// Episode is one run of the agent between resets.
type Episode struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	RuleBase  string    `json:"rule_base"`
	Ticks     int       `json:"ticks"`
}

// EntryFromTick flattens a bridge tick.
func EntryFromTick(episode string, n int, at time.Time, t bridge.Tick) Entry {
	return Entry{
		Episode:       episode,
		Tick:          n,
		Time:          at,
		State:         t.State,
		Percepts:      t.Observation.Percepts,
		EnemyDistance: t.Observation.EnemyDistance,
		Decided:       t.Decided,
		Goal:          t.Goal.String(),
		Action:        string(t.Action),
		Command:       t.Command,
	}
}

// encodeSensors stores percepts as a comma-separated list of active sensors.
func encodeSensors(p term.Percepts) string {
	active := p.Active()
	names := make([]string, len(active))
	for i, s := range active {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}

func decodeSensors(s string) term.Percepts {
	var p term.Percepts
	if s == "" {
		return p
	}
	for _, name := range strings.Split(s, ",") {
		p = p.With(term.Sensor(name))
	}
	return p
}

var episodeEntropy = struct {
	sync.Mutex
	r *ulid.MonotonicEntropy
}{r: ulid.Monotonic(rand.Reader, 0)}

// newEpisodeID mints a time-ordered episode id.
func newEpisodeID(at time.Time) string {
	episodeEntropy.Lock()
	defer episodeEntropy.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), episodeEntropy.r).String()
}
