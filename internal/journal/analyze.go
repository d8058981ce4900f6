package journal

import (
	"fmt"
	"sort"
	"strings"

	"pitfall/internal/term"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// analysisProgram derives per-cell and per-action summaries from tick facts.
//
//	tick(Episode, Tick, X, Y, Action)
//	percept(Episode, Tick, Sensor)
const analysisProgram = `
Decl tick(Episode, Tick, X, Y, Action).
Decl percept(Episode, Tick, Sensor).

notable("breeze").
notable("flash").
notable("glow").
notable("impact").

visited(X, Y) :- tick(_, _, X, Y, _).

cell_percept(X, Y, S) :- tick(E, T, X, Y, _), percept(E, T, S), notable(S).

action_count(A, N) :-
	tick(E, T, X, Y, A) |>
	do fn:group_by(A),
	let N = fn:count().
`

// noAction stands in for ticks where the engine made no decision.
const noAction = "none"

// Analysis summarizes a run of ticks.
type Analysis struct {
	Ticks   int
	Visited []term.Coordinate
	// Cells where each notable sensor fired.
	Percepts map[term.Sensor][]term.Coordinate
	// Decisions per action; undecided ticks count under "none".
	Actions map[string]int
}

// Analyze loads entries as facts and evaluates analysisProgram over them.
func Analyze(entries []Entry) (Analysis, error) {
	unit, err := parse.Unit(strings.NewReader(analysisProgram))
	if err != nil {
		return Analysis{}, fmt.Errorf("parse analysis program: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze program: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, e := range entries {
		action := e.Action
		if !e.Decided || action == "" {
			action = noAction
		}
		store.Add(ast.NewAtom("tick",
			ast.String(e.Episode), ast.Number(int64(e.Tick)),
			ast.Number(int64(e.State.Position.X)), ast.Number(int64(e.State.Position.Y)),
			ast.String(action)))
		for _, s := range e.Percepts.Active() {
			store.Add(ast.NewAtom("percept",
				ast.String(e.Episode), ast.Number(int64(e.Tick)), ast.String(string(s))))
		}
	}

	if _, err := mengine.EvalProgramWithStats(programInfo, store); err != nil {
		return Analysis{}, fmt.Errorf("evaluate analysis: %w", err)
	}

	out := Analysis{
		Ticks:    len(entries),
		Percepts: map[term.Sensor][]term.Coordinate{},
		Actions:  map[string]int{},
	}

	err = store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: "visited", Arity: 2}), func(a ast.Atom) error {
		c, err := coordinateArgs(a, 0)
		if err != nil {
			return err
		}
		out.Visited = append(out.Visited, c)
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}

	err = store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: "cell_percept", Arity: 3}), func(a ast.Atom) error {
		c, err := coordinateArgs(a, 0)
		if err != nil {
			return err
		}
		s, err := stringArg(a, 2)
		if err != nil {
			return err
		}
		out.Percepts[term.Sensor(s)] = append(out.Percepts[term.Sensor(s)], c)
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}

	err = store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: "action_count", Arity: 2}), func(a ast.Atom) error {
		name, err := stringArg(a, 0)
		if err != nil {
			return err
		}
		n, err := numberArg(a, 1)
		if err != nil {
			return err
		}
		out.Actions[name] = int(n)
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}

	sortCoordinates(out.Visited)
	for _, cells := range out.Percepts {
		sortCoordinates(cells)
	}
	return out, nil
}

func constantArg(a ast.Atom, i int) (ast.Constant, error) {
	if i >= len(a.Args) {
		return ast.Constant{}, fmt.Errorf("%s: no argument %d", a.Predicate.Symbol, i)
	}
	c, ok := a.Args[i].(ast.Constant)
	if !ok {
		return ast.Constant{}, fmt.Errorf("%s: argument %d is not a constant", a.Predicate.Symbol, i)
	}
	return c, nil
}

func numberArg(a ast.Atom, i int) (int64, error) {
	c, err := constantArg(a, i)
	if err != nil {
		return 0, err
	}
	if c.Type != ast.NumberType {
		return 0, fmt.Errorf("%s: argument %d is not a number", a.Predicate.Symbol, i)
	}
	return c.NumValue, nil
}

func stringArg(a ast.Atom, i int) (string, error) {
	c, err := constantArg(a, i)
	if err != nil {
		return "", err
	}
	if c.Type != ast.StringType {
		return "", fmt.Errorf("%s: argument %d is not a string", a.Predicate.Symbol, i)
	}
	return c.Symbol, nil
}

func coordinateArgs(a ast.Atom, i int) (term.Coordinate, error) {
	x, err := numberArg(a, i)
	if err != nil {
		return term.Coordinate{}, err
	}
	y, err := numberArg(a, i+1)
	if err != nil {
		return term.Coordinate{}, err
	}
	return term.Coordinate{X: int(x), Y: int(y)}, nil
}

func sortCoordinates(cs []term.Coordinate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Y != cs[j].Y {
			return cs[i].Y < cs[j].Y
		}
		return cs[i].X < cs[j].X
	})
}
