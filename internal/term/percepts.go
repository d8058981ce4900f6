// Package term holds the value objects exchanged with the reasoning engine and
// their query-language encodings.
//
// Every outgoing value renders to the exact text the rule base pattern-matches
// on; incoming answers are decoded by a small recursive-descent parser
// (see parser.go) that never fails on the shapes the engine emits.
package term

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteBinding is returned when an engine binding lacks a key that a
// decoder requires.
var ErrIncompleteBinding = errors.New("incomplete binding")

// Sensor names a single percept flag. The declaration order of Sensors is the
// positional order of the percept tuple on the wire.
type Sensor string

const (
	SensorSteps  Sensor = "steps"
	SensorBreeze Sensor = "breeze"
	SensorFlash  Sensor = "flash"
	SensorGlow   Sensor = "glow"
	SensorImpact Sensor = "impact"
	SensorScream Sensor = "scream"
	SensorPotion Sensor = "potion"
)

// Sensors lists every sensor in wire order.
var Sensors = []Sensor{
	SensorSteps,
	SensorBreeze,
	SensorFlash,
	SensorGlow,
	SensorImpact,
	SensorScream,
	SensorPotion,
}

// Variable returns the capitalized query variable bound to this sensor by the
// sense query (e.g. "Steps").
func (s Sensor) Variable() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Percepts is what the agent detected during one tick.
type Percepts struct {
	Steps  bool `json:"steps"`
	Breeze bool `json:"breeze"`
	Flash  bool `json:"flash"`
	Glow   bool `json:"glow"`
	Impact bool `json:"impact"`
	Scream bool `json:"scream"`
	Potion bool `json:"potion"`
}

// Has reports whether the given sensor fired.
func (p Percepts) Has(s Sensor) bool {
	switch s {
	case SensorSteps:
		return p.Steps
	case SensorBreeze:
		return p.Breeze
	case SensorFlash:
		return p.Flash
	case SensorGlow:
		return p.Glow
	case SensorImpact:
		return p.Impact
	case SensorScream:
		return p.Scream
	case SensorPotion:
		return p.Potion
	}
	return false
}

// With returns a copy of p with the given sensor set.
func (p Percepts) With(s Sensor) Percepts {
	switch s {
	case SensorSteps:
		p.Steps = true
	case SensorBreeze:
		p.Breeze = true
	case SensorFlash:
		p.Flash = true
	case SensorGlow:
		p.Glow = true
	case SensorImpact:
		p.Impact = true
	case SensorScream:
		p.Scream = true
	case SensorPotion:
		p.Potion = true
	}
	return p
}

// Active returns the fired sensors in wire order.
func (p Percepts) Active() []Sensor {
	var out []Sensor
	for _, s := range Sensors {
		if p.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Term renders the percept tuple, e.g. "(no_steps, breeze, no_flash, ...)".
func (p Percepts) Term() string {
	parts := make([]string, len(Sensors))
	for i, s := range Sensors {
		if p.Has(s) {
			parts[i] = string(s)
		} else {
			parts[i] = "no_" + string(s)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (p Percepts) String() string {
	return p.Term()
}

// PerceptsFromBinding decodes the binding of a sense query. A flag is set when
// its variable is bound to the sensor name itself.
func PerceptsFromBinding(b map[string]string) (Percepts, error) {
	var p Percepts
	for _, s := range Sensors {
		v, ok := b[s.Variable()]
		if !ok {
			return Percepts{}, fmt.Errorf("%w: missing %s", ErrIncompleteBinding, s.Variable())
		}
		if strings.TrimSpace(v) == string(s) {
			p = p.With(s)
		}
	}
	return p, nil
}
