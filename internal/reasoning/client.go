// Package reasoning exposes the rule base as typed operations.
//
// It is the only package that builds query text from term values. Every
// operation submits through an Executor (normally *engine.Session), so query
// serialization is the executor's concern, not this package's.
package reasoning

import (
	"errors"
	"fmt"
	"strconv"

	"pitfall/internal/engine"
	"pitfall/internal/logging"
	"pitfall/internal/term"
)

// ErrAgentUnavailable means the engine no longer reports percepts for the
// agent, which the rule base uses to say the agent is dead. Callers may
// Reset in response.
var ErrAgentUnavailable = errors.New("agent unavailable")

// Defaults returned by the read-only queries when the engine has no answer.
const (
	DefaultHealth = 100
	DefaultScore  = 0
)

// Executor runs queries against one engine context.
type Executor interface {
	FirstResult(query string) engine.Result
	Reset() error
}

// Decision is the engine's answer to one learn query.
type Decision struct {
	Goal   term.Goal   `json:"goal"`
	Action term.Action `json:"action"`
}

// Client issues typed queries through an Executor.
type Client struct {
	exec Executor
}

// New wraps exec.
func New(exec Executor) *Client {
	return &Client{exec: exec}
}

// =============================================================================
// MUTATORS
// =============================================================================

// Mutators restate current status every tick, so a failed mutation is only
// worth a debug line: the next tick reissues it.

func (c *Client) mutate(op, query string) {
	r := c.exec.FirstResult(query)
	if !r.OK() {
		logging.ReasoningDebug("%s: %s failed (%s): %v", op, query, r.Failure, r.Err)
	}
}

// SetPosition tells the engine where the agent is.
func (c *Client) SetPosition(pos term.Coordinate) {
	c.mutate("set position", fmt.Sprintf("set_agent_position(%s)", pos.Term()))
}

// SetFacing tells the engine which way the agent faces. Unknown directions
// are dropped.
func (c *Client) SetFacing(d term.Direction) {
	if _, ok := d.Offset(); !ok {
		logging.ReasoningDebug("set facing: unknown direction %q", d)
		return
	}
	c.mutate("set facing", fmt.Sprintf("set_agent_facing(%s)", d))
}

// SetEnergy updates the agent's health.
func (c *Client) SetEnergy(energy int) {
	c.mutate("set energy", fmt.Sprintf("update_agent_health(%d, 0)", energy))
}

// SetScore updates the game score.
func (c *Client) SetScore(score int) {
	c.mutate("set score", fmt.Sprintf("set_game_score((%d))", score))
}

// RecordPercepts stores this tick's percepts.
func (c *Client) RecordPercepts(p term.Percepts) {
	c.mutate("record percepts", fmt.Sprintf("set_last_observation(%s)", p.Term()))
}

// SetDetectedEnemy records the distance to the nearest enemy seen this tick.
func (c *Client) SetDetectedEnemy(distance int) {
	c.mutate("set detected enemy", fmt.Sprintf("set_detected_enemy(%d)", distance))
}

// MarkHit records that the agent was hit this tick.
func (c *Client) MarkHit() {
	c.mutate("mark hit", "set_got_hit")
}

// Act tells the engine which action was sent so it can update its believed
// state before the next status update arrives.
func (c *Client) Act(a term.Action) {
	if a == "" {
		return
	}
	c.mutate("act", fmt.Sprintf("act(%s)", a))
}

// DisableLogging silences the rule base's own diagnostics.
func (c *Client) DisableLogging() {
	c.mutate("disable logging", "disable_logging")
}

// PrintMap asks the rule base to dump its map of the cave to the engine output.
func (c *Client) PrintMap() {
	c.mutate("print map", "print_cave")
}

// =============================================================================
// QUERIES
// =============================================================================

const (
	senseQuery     = "sense((Steps, Breeze, Flash, Glow, Impact, Scream, Potion))"
	healthQuery    = "get_agent_health(Health)"
	scoreQuery     = "get_game_score(Score)"
	inventoryQuery = "get_inventory(Ammo, PowerUps)"
	goldQuery      = "collected(gold, Gold)"
	positionQuery  = "agent_position(AP), world_position(agent, AP)"
)

// Sense returns the percepts the engine currently holds for the agent. A
// missing or incomplete answer yields ErrAgentUnavailable.
func (c *Client) Sense() (term.Percepts, error) {
	r := c.exec.FirstResult(senseQuery)
	if !r.OK() {
		return term.Percepts{}, fmt.Errorf("%w: sense %s", ErrAgentUnavailable, r.Failure)
	}
	p, err := term.PerceptsFromBinding(r.Binding)
	if err != nil {
		return term.Percepts{}, fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}
	return p, nil
}

// Learn asks the engine for a goal and action given p. It returns false when
// the engine has no answer.
func (c *Client) Learn(p term.Percepts) (Decision, bool) {
	r := c.exec.FirstResult(fmt.Sprintf("learn(%s, Goal, Action)", p.Term()))
	if !r.OK() {
		logging.ReasoningDebug("learn %s: no answer (%s): %v", p, r.Failure, r.Err)
		return Decision{}, false
	}
	goal, okGoal := r.Binding["Goal"]
	action, okAction := r.Binding["Action"]
	if !okGoal || !okAction {
		logging.ReasoningDebug("learn %s: binding lacks Goal/Action: %v", p, r.Binding)
		return Decision{}, false
	}
	return Decision{Goal: term.ParseGoal(goal), Action: term.ParseAction(action)}, true
}

// Decide senses and then learns. It returns false, never an error, when the
// agent is unavailable or the engine has no decision; callers issue no
// command for that tick.
func (c *Client) Decide() (Decision, bool) {
	p, err := c.Sense()
	if err != nil {
		logging.Reasoning("no decision: %v", err)
		return Decision{}, false
	}
	d, ok := c.Learn(p)
	if !ok {
		return Decision{}, false
	}
	logging.Reasoning("goal %s, action %s", d.Goal, d.Action)
	return d, true
}

// Health returns the agent's health, or DefaultHealth.
func (c *Client) Health() int {
	return c.intQuery(healthQuery, "Health", DefaultHealth)
}

// Score returns the game score, or DefaultScore.
func (c *Client) Score() int {
	return c.intQuery(scoreQuery, "Score", DefaultScore)
}

// Inventory returns the agent's items. Anything the engine does not answer
// reads as zero.
func (c *Client) Inventory() term.Inventory {
	var inv term.Inventory
	r := c.exec.FirstResult(inventoryQuery)
	if !r.OK() {
		return inv
	}
	inv.Ammo = atoiOr(r.Binding["Ammo"], 0)
	inv.PowerUps = atoiOr(r.Binding["PowerUps"], 0)
	inv.Gold = c.intQuery(goldQuery, "Gold", 0)
	return inv
}

// AtExpectedPosition reports whether the position the engine believes in
// matches the last position the game reported.
func (c *Client) AtExpectedPosition() bool {
	return c.exec.FirstResult(positionQuery).OK()
}

// Reset discards the engine context and starts a fresh one.
func (c *Client) Reset() error {
	if err := c.exec.Reset(); err != nil {
		return fmt.Errorf("reset reasoning: %w", err)
	}
	return nil
}

func (c *Client) intQuery(query, variable string, def int) int {
	r := c.exec.FirstResult(query)
	if !r.OK() {
		return def
	}
	return atoiOr(r.Binding[variable], def)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
