package bridge

import (
	"errors"
	"fmt"
	"testing"

	"pitfall/internal/engine"
	"pitfall/internal/reasoning"
	"pitfall/internal/term"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FAKE REASONER
// =============================================================================

type fakeReasoner struct {
	calls    []string
	decision reasoning.Decision
	decides  bool
	resetErr error
	percepts []term.Percepts
	enemy    []int
}

func (f *fakeReasoner) log(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeReasoner) SetPosition(c term.Coordinate) { f.log("position %s", c) }
func (f *fakeReasoner) SetFacing(d term.Direction)    { f.log("facing %s", d) }
func (f *fakeReasoner) SetEnergy(e int)               { f.log("energy %d", e) }
func (f *fakeReasoner) SetScore(s int)                { f.log("score %d", s) }
func (f *fakeReasoner) RecordPercepts(p term.Percepts) {
	f.percepts = append(f.percepts, p)
	f.log("percepts %s", p.Term())
}
func (f *fakeReasoner) SetDetectedEnemy(d int) {
	f.enemy = append(f.enemy, d)
	f.log("enemy %d", d)
}
func (f *fakeReasoner) MarkHit()          { f.log("hit") }
func (f *fakeReasoner) Act(a term.Action) { f.log("act %s", a) }
func (f *fakeReasoner) PrintMap()         { f.log("print map") }
func (f *fakeReasoner) Decide() (reasoning.Decision, bool) {
	f.log("decide")
	return f.decision, f.decides
}
func (f *fakeReasoner) Reset() error {
	f.log("reset")
	return f.resetErr
}

type recorderFunc func(Tick)

func (r recorderFunc) RecordTick(t Tick) { r(t) }

// =============================================================================
// STATUS
// =============================================================================

func TestNew_DefaultState(t *testing.T) {
	b := New(&fakeReasoner{})
	assert.Equal(t, State{Facing: term.North, Status: "ready"}, b.State())
}

func TestSetStatus(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)

	b.SetStatus(3, 4, "East", "game", 10, 90)

	assert.Equal(t, []string{"position 3, 4", "facing east", "energy 90", "score 10"}, f.calls)
	assert.Equal(t, State{
		Position: term.Coordinate{X: 3, Y: 4},
		Facing:   term.East,
		Status:   "game",
		Score:    10,
		Energy:   90,
	}, b.State())
}

func TestSetStatus_Idempotent(t *testing.T) {
	s, err := engine.NewSession()
	require.NoError(t, err)
	defer s.Close()
	c := reasoning.New(s)
	b := New(c)

	b.SetStatus(1, 2, "SOUTH", "game", 7, 60)
	first := b.State()
	health, score := c.Health(), c.Score()

	b.SetStatus(1, 2, "SOUTH", "game", 7, 60)
	assert.Equal(t, first, b.State())
	assert.Equal(t, health, c.Health())
	assert.Equal(t, score, c.Score())
	assert.Equal(t, 60, health)
	assert.True(t, c.AtExpectedPosition())
}

// =============================================================================
// PERCEPTION
// =============================================================================

func TestGetObservations_TokenTable(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)

	obs := b.GetObservations([]string{"blocked", "breeze", "enemy#7"})

	assert.Equal(t, term.Percepts{Impact: true, Breeze: true}, obs.Percepts)
	require.NotNil(t, obs.EnemyDistance)
	assert.Equal(t, 7, *obs.EnemyDistance)
	assert.Equal(t, []int{7}, f.enemy)
	assert.Equal(t, []term.Percepts{{Impact: true, Breeze: true}}, f.percepts)
}

func TestGetObservations_SeveralEnemies(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)

	obs := b.GetObservations([]string{"enemy#5", "breeze", "enemy#2", "enemy#9"})

	assert.Equal(t, []int{5, 2, 9}, f.enemy, "every distance is forwarded in order")
	require.NotNil(t, obs.EnemyDistance)
	assert.Equal(t, 2, *obs.EnemyDistance)
}

func TestGetObservations_SeveralEnemiesEngineKeepsNearest(t *testing.T) {
	s, err := engine.NewSession()
	require.NoError(t, err)
	defer s.Close()

	New(reasoning.New(s)).GetObservations([]string{"enemy#5", "enemy#2", "enemy#9"})

	r := s.FirstResult("detected_enemy(D)")
	require.True(t, r.OK())
	assert.Equal(t, "2", r.Binding["D"])
}

func TestGetObservations_Tokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   term.Percepts
		enemy  *int
	}{
		{"steps", []string{"steps"}, term.Percepts{Steps: true}, nil},
		{"flash", []string{"flash"}, term.Percepts{Flash: true}, nil},
		{"red light is glow", []string{"redLight"}, term.Percepts{Glow: true}, nil},
		{"reserved lights set nothing", []string{"blueLight", "greenLight", "weakLight"}, term.Percepts{}, nil},
		{"unknown ignored", []string{"Breeze", "scream", "potion", ""}, term.Percepts{}, nil},
		{"enemy without distance", []string{"enemy"}, term.Percepts{}, nil},
		{"enemy token never sets flags", []string{"steps_enemy#2"}, term.Percepts{}, intPtr(2)},
		{"duplicates", []string{"breeze", "breeze"}, term.Percepts{Breeze: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeReasoner{}
			obs := New(f).GetObservations(tt.tokens)
			assert.Equal(t, tt.want, obs.Percepts)
			assert.Equal(t, tt.enemy, obs.EnemyDistance)
			if tt.enemy == nil {
				assert.Empty(t, f.enemy)
			}
		})
	}
}

func TestGetObservationsClean(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)

	obs := b.GetObservationsClean()
	assert.Equal(t, Observation{}, obs)
	assert.Equal(t, New(&fakeReasoner{}).GetObservations([]string{}), obs)
	assert.Equal(t, []string{"percepts (no_steps, no_breeze, no_flash, no_glow, no_impact, no_scream, no_potion)"}, f.calls)
}

func TestReceiveHits(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)
	b.ReceiveShotHit("bob")
	assert.Empty(t, f.calls)
	b.ReceiveGotHit("bob")
	assert.Equal(t, []string{"hit"}, f.calls)
}

// =============================================================================
// DECISION
// =============================================================================

func TestCommandTable(t *testing.T) {
	want := map[term.Action]string{
		"pick_up":            "pick_up",
		"move_forward":       "move_forward",
		"move_backwards":     "move_backward",
		"turn_clockwise":     "turn_right",
		"turn_anticlockwise": "turn_left",
		"step_out":           "",
		"shoot":              "attack",
		"dance":              "",
		"":                   "",
	}
	for a, cmd := range want {
		assert.Equal(t, cmd, Command(a), "action %q", a)
	}
}

func TestGetDecision(t *testing.T) {
	f := &fakeReasoner{
		decides:  true,
		decision: reasoning.Decision{Goal: term.Goal{Type: "hunt"}, Action: term.ActionShoot},
	}
	var ticks []Tick
	b := New(f, WithRecorder(recorderFunc(func(t Tick) { ticks = append(ticks, t) })))
	b.SetStatus(1, 1, "west", "game", 0, 100)
	b.GetObservations([]string{"enemy#2"})
	f.calls = nil

	assert.Equal(t, "attack", b.GetDecision())
	assert.Equal(t, "attack", b.LastCommand())
	assert.Equal(t, []string{"decide", "print map"}, f.calls)

	require.Len(t, ticks, 1)
	two := 2
	want := Tick{
		State:       b.State(),
		Observation: Observation{EnemyDistance: &two},
		Decided:     true,
		Goal:        term.Goal{Type: "hunt"},
		Action:      term.ActionShoot,
		Command:     "attack",
	}
	if diff := cmp.Diff(want, ticks[0]); diff != "" {
		t.Errorf("tick mismatch (-want +got):\n%s", diff)
	}
}

func TestGetDecision_NoDecisionIsNoCommand(t *testing.T) {
	f := &fakeReasoner{}
	var ticks []Tick
	b := New(f, WithRecorder(recorderFunc(func(t Tick) { ticks = append(ticks, t) })))

	assert.Equal(t, "", b.GetDecision())
	assert.Equal(t, []string{"decide", "print map"}, f.calls, "map dump follows every decision request")
	require.Len(t, ticks, 1)
	assert.False(t, ticks[0].Decided)
}

func TestGetDecision_UnknownActionIsNoCommand(t *testing.T) {
	f := &fakeReasoner{decides: true, decision: reasoning.Decision{Action: "dance"}}
	assert.Equal(t, "", New(f).GetDecision())
}

func TestGetDecision_ActFeedback(t *testing.T) {
	f := &fakeReasoner{decides: true, decision: reasoning.Decision{Action: term.ActionMoveForward}}
	b := New(f, WithActFeedback())
	assert.Equal(t, "move_forward", b.GetDecision())
	assert.Equal(t, []string{"decide", "act move_forward", "print map"}, f.calls)

	f.calls = nil
	f.decision.Action = term.ActionStepOut
	assert.Equal(t, "", b.GetDecision())
	assert.Equal(t, []string{"decide", "print map"}, f.calls, "no feedback without a command")
}

// =============================================================================
// GEOMETRY
// =============================================================================

func TestNextPosition(t *testing.T) {
	tests := []struct {
		facing string
		want   term.Coordinate
	}{
		{"north", term.Coordinate{X: 5, Y: 4}},
		{"east", term.Coordinate{X: 6, Y: 5}},
		{"south", term.Coordinate{X: 5, Y: 6}},
		{"west", term.Coordinate{X: 4, Y: 5}},
		{"North", term.Coordinate{X: 5, Y: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.facing, func(t *testing.T) {
			b := New(&fakeReasoner{})
			b.SetStatus(5, 5, tt.facing, "game", 0, 100)
			got, ok := b.NextPosition()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	b := New(&fakeReasoner{})
	b.SetStatus(5, 5, "east", "game", 0, 100)
	b.SetStatus(5, 5, "up", "game", 0, 100)
	got, ok := b.NextPosition()
	require.True(t, ok, "unknown facing keeps the previous one")
	assert.Equal(t, term.Coordinate{X: 6, Y: 5}, got)
}

func TestSetStatus_UnknownFacingSendsNoQuery(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)

	b.SetStatus(1, 1, "North), retractall(ammo(_)), assertz(ammo(999)), (true", "game", 0, 80)

	assert.Equal(t, []string{"position 1, 1", "energy 80", "score 0"}, f.calls)
	assert.Equal(t, term.North, b.State().Facing)
}

func TestSetStatus_UnknownFacingLeavesEngineUntouched(t *testing.T) {
	s, err := engine.NewSession()
	require.NoError(t, err)
	defer s.Close()
	c := reasoning.New(s)

	New(c).SetStatus(1, 1, "North), retractall(ammo(_)), assertz(ammo(999)), (true", "game", 0, 80)

	assert.Equal(t, 5, c.Inventory().Ammo)
	r := s.FirstResult("agent_facing(F)")
	require.True(t, r.OK())
	assert.Equal(t, "north", r.Binding["F"])
}

func TestGetObservableAdjacentPositions(t *testing.T) {
	b := New(&fakeReasoner{})
	b.SetStatus(5, 5, "north", "game", 0, 100)

	got := b.GetObservableAdjacentPositions()
	assert.Equal(t, []term.Coordinate{{X: 4, Y: 5}, {X: 6, Y: 5}, {X: 5, Y: 4}, {X: 5, Y: 6}}, got)
	assert.ElementsMatch(t, []term.Coordinate{{X: 5, Y: 4}, {X: 5, Y: 6}, {X: 4, Y: 5}, {X: 6, Y: 5}}, got)
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_KeepsState(t *testing.T) {
	f := &fakeReasoner{}
	b := New(f)
	b.SetStatus(2, 3, "south", "game", 4, 50)
	before := b.State()

	require.NoError(t, b.Reset())
	assert.Equal(t, before, b.State())

	f.resetErr = engine.ErrRuleBase
	err := b.Reset()
	assert.True(t, errors.Is(err, engine.ErrRuleBase))
}

// TestBridge_FullTick runs one tick against the default rule base.
func TestBridge_FullTick(t *testing.T) {
	s, err := engine.NewSession()
	require.NoError(t, err)
	defer s.Close()
	b := New(reasoning.New(s))

	b.SetStatus(0, 0, "north", "game", 0, 100)
	b.GetObservations([]string{"redLight"})
	assert.Equal(t, "pick_up", b.GetDecision())

	b.GetObservations([]string{"breeze"})
	assert.Equal(t, "move_backward", b.GetDecision())

	b.SetStatus(0, 0, "north", "dead", 0, 0)
	b.GetObservationsClean()
	assert.Equal(t, "", b.GetDecision())
}

func intPtr(n int) *int { return &n }
