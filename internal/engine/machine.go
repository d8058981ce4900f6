// Package engine owns the reasoning-engine context and serializes every query
// against it.
//
// The engine is a Prolog interpreter (github.com/ichiban/prolog). A context is
// not safe for concurrent callers, so a Session admits exactly one query at a
// time and queues the rest in arrival order.
package engine

import (
	"errors"
	"io"

	"github.com/ichiban/prolog"
)

var (
	// ErrRuleBase is returned when the rule base cannot be read or consulted.
	// The session that produced it is unusable.
	ErrRuleBase = errors.New("rule base load failed")

	// ErrClosed is returned for queries against a closed or unstarted session.
	ErrClosed = errors.New("engine session closed")
)

// Binding maps query variable names to the rendered text of their values.
type Binding map[string]string

// Machine is one reasoning context. Implementations need not be safe for
// concurrent use; Session provides the serialization.
type Machine interface {
	// Consult loads program text into the context.
	Consult(source string) error
	// Solve starts a query. Solutions are produced lazily by the cursor.
	Solve(query string) (Cursor, error)
}

// Cursor walks the solutions of one query in the engine's own order.
type Cursor interface {
	Next() bool
	Binding() (Binding, error)
	Err() error
	Close() error
}

// MachineFactory builds a fresh context. Engine output (write/1 and friends)
// goes to out.
type MachineFactory func(out io.Writer) Machine

// =============================================================================
// PROLOG MACHINE
// =============================================================================

type prologMachine struct {
	interp *prolog.Interpreter
}

// NewPrologMachine returns a Machine backed by a fresh ichiban/prolog
// interpreter.
func NewPrologMachine(out io.Writer) Machine {
	return &prologMachine{interp: prolog.New(nil, out)}
}

func (m *prologMachine) Consult(source string) error {
	return m.interp.Exec(source)
}

func (m *prologMachine) Solve(query string) (Cursor, error) {
	sols, err := m.interp.Query(query)
	if err != nil {
		return nil, err
	}
	return &prologCursor{sols: sols}, nil
}

type prologCursor struct {
	sols *prolog.Solutions
}

func (c *prologCursor) Next() bool { return c.sols.Next() }

func (c *prologCursor) Binding() (Binding, error) {
	vals := map[string]prolog.TermString{}
	if err := c.sols.Scan(vals); err != nil {
		return nil, err
	}
	b := make(Binding, len(vals))
	for k, v := range vals {
		b[k] = string(v)
	}
	return b, nil
}

func (c *prologCursor) Err() error   { return c.sols.Err() }
func (c *prologCursor) Close() error { return c.sols.Close() }
