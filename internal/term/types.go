package term

import (
	"fmt"
	"strings"
)

// Coordinate is a grid cell. Bounds are the rule base's business.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Term renders the coordinate as a pair term, "(x, y)".
func (c Coordinate) Term() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d, %d", c.X, c.Y)
}

// Add returns c translated by d.
func (c Coordinate) Add(d Coordinate) Coordinate {
	return Coordinate{X: c.X + d.X, Y: c.Y + d.Y}
}

// Direction is the agent's facing.
type Direction string

const (
	North Direction = "north"
	East  Direction = "east"
	South Direction = "south"
	West  Direction = "west"
)

// offsets follow screen coordinates: y grows southwards.
var offsets = map[Direction]Coordinate{
	North: {X: 0, Y: -1},
	East:  {X: 1, Y: 0},
	South: {X: 0, Y: 1},
	West:  {X: -1, Y: 0},
}

// ParseDirection normalizes a facing token. Matching is case-insensitive.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	_, ok := offsets[d]
	return d, ok
}

// Offset returns the one-step displacement for d, or false for an unknown
// direction.
func (d Direction) Offset() (Coordinate, bool) {
	o, ok := offsets[d]
	return o, ok
}

// Goal is what the engine is currently pursuing. It is diagnostic only.
type Goal struct {
	Type  string      `json:"type"`
	Value *Coordinate `json:"value,omitempty"`
}

func (g Goal) String() string {
	if g.Value == nil {
		return g.Type
	}
	return fmt.Sprintf("%s(%s)", g.Type, g.Value)
}

// Action is a symbolic command chosen by the engine.
type Action string

const (
	ActionPickUp            Action = "pick_up"
	ActionMoveForward       Action = "move_forward"
	ActionMoveBackwards     Action = "move_backwards"
	ActionTurnClockwise     Action = "turn_clockwise"
	ActionTurnAnticlockwise Action = "turn_anticlockwise"
	ActionStepOut           Action = "step_out"
	ActionShoot             Action = "shoot"
)

// Actions is the fixed action vocabulary.
var Actions = []Action{
	ActionPickUp,
	ActionMoveForward,
	ActionMoveBackwards,
	ActionTurnClockwise,
	ActionTurnAnticlockwise,
	ActionStepOut,
	ActionShoot,
}

// ParseAction wraps the engine's answer. Unknown symbols are preserved.
func ParseAction(s string) Action {
	return Action(strings.TrimSpace(s))
}

// Known reports whether a is part of the fixed vocabulary.
func (a Action) Known() bool {
	for _, k := range Actions {
		if a == k {
			return true
		}
	}
	return false
}

func (a Action) String() string { return string(a) }

// Inventory is the agent's carried items as reported by the engine.
type Inventory struct {
	Ammo     int `json:"ammo"`
	PowerUps int `json:"power_ups"`
	Gold     int `json:"gold"`
}
