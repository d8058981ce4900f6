// Package bridge translates between the game's vocabulary and the reasoning
// client.
//
// The Bridge owns the game-visible agent state. Every per-tick operation is
// total: engine trouble turns into an empty command or unchanged state, never
// an error. Only Reset can fail.
//
// A Bridge does not lock its state; callers serialize ticks.
package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"pitfall/internal/logging"
	"pitfall/internal/reasoning"
	"pitfall/internal/term"
)

// Reasoner is the subset of the reasoning client the bridge drives.
type Reasoner interface {
	SetPosition(term.Coordinate)
	SetFacing(term.Direction)
	SetEnergy(int)
	SetScore(int)
	RecordPercepts(term.Percepts)
	SetDetectedEnemy(int)
	MarkHit()
	Act(term.Action)
	PrintMap()
	Decide() (reasoning.Decision, bool)
	Reset() error
}

// State is the agent as last reported by the game.
type State struct {
	Position term.Coordinate `json:"position"`
	Facing   term.Direction  `json:"facing"`
	Status   string          `json:"status"`
	Score    int             `json:"score"`
	Energy   int             `json:"energy"`
}

// DefaultState is the state of a new bridge.
func DefaultState() State {
	return State{Facing: term.North, Status: "ready"}
}

// Observation is one translated percept report.
type Observation struct {
	Percepts      term.Percepts `json:"percepts"`
	EnemyDistance *int          `json:"enemy_distance,omitempty"`
}

// Tick is what the bridge knew when it produced a command.
type Tick struct {
	State       State       `json:"state"`
	Observation Observation `json:"observation"`
	Decided     bool        `json:"decided"`
	Goal        term.Goal   `json:"goal"`
	Action      term.Action `json:"action"`
	Command     string      `json:"command"`
}

// Recorder receives every decision. Implementations must not block for long
// and must not fail the tick.
type Recorder interface {
	RecordTick(Tick)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRecorder offers every decision to r.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// WithActFeedback reports each emitted action back to the reasoner so the
// rule base can advance its believed state before the next status update.
func WithActFeedback() Option {
	return func(b *Bridge) { b.actFeedback = true }
}

// Bridge connects a game transport to a Reasoner.
type Bridge struct {
	reasoner    Reasoner
	recorder    Recorder
	actFeedback bool

	state       State
	last        Observation
	lastCommand string
}

// New returns a bridge in DefaultState.
func New(r Reasoner, opts ...Option) *Bridge {
	b := &Bridge{reasoner: r, state: DefaultState()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns a copy of the agent state.
func (b *Bridge) State() State { return b.state }

// LastCommand is the command returned by the latest GetDecision.
func (b *Bridge) LastCommand() string { return b.lastCommand }

// SetStatus pushes the game's view of the agent to the engine and then adopts
// it locally. The local state is updated even when an engine update failed;
// the game restates status every tick. An unrecognized facing is never sent
// to the engine and the previous facing is kept.
func (b *Bridge) SetStatus(x, y int, facing, status string, score, energy int) {
	pos := term.Coordinate{X: x, Y: y}

	b.reasoner.SetPosition(pos)
	dir, ok := term.ParseDirection(facing)
	if ok {
		b.reasoner.SetFacing(dir)
	} else {
		logging.PerceptionDebug("status: unknown facing %q, keeping %s", facing, b.state.Facing)
		dir = b.state.Facing
	}
	b.reasoner.SetEnergy(energy)
	b.reasoner.SetScore(score)

	b.state = State{
		Position: pos,
		Facing:   dir,
		Status:   status,
		Score:    score,
		Energy:   energy,
	}
	logging.PerceptionDebug("status: (%s) %s %s score=%d energy=%d", pos, dir, status, score, energy)
}

// =============================================================================
// PERCEPTION
// =============================================================================

// perceptTokens maps game percept tokens to sensors. Tokens mapped to the
// empty sensor are recognized but set nothing.
var perceptTokens = map[string]term.Sensor{
	"blocked":    term.SensorImpact,
	"steps":      term.SensorSteps,
	"breeze":     term.SensorBreeze,
	"flash":      term.SensorFlash,
	"redLight":   term.SensorGlow,
	"blueLight":  "",
	"greenLight": "",
	"weakLight":  "",
}

const enemyToken = "enemy"

// GetObservations translates the game's percept tokens and records them.
// Unknown tokens are ignored. A token containing "enemy" carries a distance
// after '#' and never sets a flag. Every enemy distance is forwarded in token
// order; the observation keeps the nearest.
func (b *Bridge) GetObservations(tokens []string) Observation {
	var obs Observation
	for _, tok := range tokens {
		if strings.Contains(tok, enemyToken) {
			if d, ok := enemyDistance(tok); ok {
				b.reasoner.SetDetectedEnemy(d)
				if obs.EnemyDistance == nil || d < *obs.EnemyDistance {
					obs.EnemyDistance = &d
				}
			} else {
				logging.PerceptionDebug("enemy token %q has no distance", tok)
			}
			continue
		}
		sensor, known := perceptTokens[tok]
		if !known {
			logging.PerceptionDebug("ignoring percept token %q", tok)
			continue
		}
		if sensor != "" {
			obs.Percepts = obs.Percepts.With(sensor)
		}
	}

	b.reasoner.RecordPercepts(obs.Percepts)
	b.last = obs
	return obs
}

// GetObservationsClean records a tick with nothing perceived.
func (b *Bridge) GetObservationsClean() Observation {
	return b.GetObservations(nil)
}

// enemyDistance reads the integer after the first '#', e.g. "enemy#7".
func enemyDistance(tok string) (int, bool) {
	i := strings.IndexByte(tok, '#')
	if i < 0 {
		return 0, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(tok[i+1:]))
	if err != nil {
		return 0, false
	}
	return d, true
}

// ReceiveGotHit records that another agent hit us.
func (b *Bridge) ReceiveGotHit(agent string) {
	logging.Perception("hit by %s", agent)
	b.reasoner.MarkHit()
}

// ReceiveShotHit notes that our shot hit another agent. The rule base has no
// use for it yet.
func (b *Bridge) ReceiveShotHit(agent string) {
	logging.Perception("shot hit %s", agent)
}

// =============================================================================
// DECISION
// =============================================================================

// commands maps actions to the game's command vocabulary. Actions absent from
// the table, and step_out, produce no command.
var commands = map[term.Action]string{
	term.ActionPickUp:            "pick_up",
	term.ActionMoveForward:       "move_forward",
	term.ActionMoveBackwards:     "move_backward",
	term.ActionTurnClockwise:     "turn_right",
	term.ActionTurnAnticlockwise: "turn_left",
	term.ActionStepOut:           "",
	term.ActionShoot:             "attack",
}

// Command returns the game command for a, or "" for no command.
func Command(a term.Action) string {
	return commands[a]
}

// GetDecision asks the engine what to do and returns the game command. An
// empty command means do nothing this tick. A map dump is requested after
// every decision attempt.
func (b *Bridge) GetDecision() string {
	tick := Tick{State: b.state, Observation: b.last}

	d, ok := b.reasoner.Decide()
	if ok {
		tick.Decided = true
		tick.Goal = d.Goal
		tick.Action = d.Action
		tick.Command = Command(d.Action)
		if !d.Action.Known() {
			logging.RoutingDebug("unknown action %q: no command", d.Action)
		}
		if b.actFeedback && tick.Command != "" {
			b.reasoner.Act(d.Action)
		}
	}
	b.reasoner.PrintMap()

	b.lastCommand = tick.Command
	if b.recorder != nil {
		b.recorder.RecordTick(tick)
	}
	logging.Routing("decision: goal=%s action=%s command=%q", tick.Goal, tick.Action, tick.Command)
	return tick.Command
}

// =============================================================================
// GEOMETRY
// =============================================================================

// NextPosition is the cell one step ahead of the agent. It returns false only
// if the facing is not a known direction.
func (b *Bridge) NextPosition() (term.Coordinate, bool) {
	off, ok := b.state.Facing.Offset()
	if !ok {
		return term.Coordinate{}, false
	}
	return b.state.Position.Add(off), true
}

// adjacentOrder is the order neighbours are reported in.
var adjacentOrder = []term.Direction{term.West, term.East, term.North, term.South}

// GetObservableAdjacentPositions returns the four axis neighbours of the
// agent in the order west, east, north, south.
func (b *Bridge) GetObservableAdjacentPositions() []term.Coordinate {
	out := make([]term.Coordinate, 0, len(adjacentOrder))
	for _, d := range adjacentOrder {
		off, _ := d.Offset()
		out = append(out, b.state.Position.Add(off))
	}
	return out
}

// Reset restarts the engine context. The agent state is kept; the next
// SetStatus restates it.
func (b *Bridge) Reset() error {
	if err := b.reasoner.Reset(); err != nil {
		return fmt.Errorf("bridge reset: %w", err)
	}
	b.last = Observation{}
	b.lastCommand = ""
	logging.Session("bridge reset, state kept at (%s) %s", b.state.Position, b.state.Facing)
	return nil
}
