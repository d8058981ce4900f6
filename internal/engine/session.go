package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"pitfall/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// FailureKind classifies why a query produced no binding. Callers treat every
// kind other than FailureNone as "no result"; the kind exists for logging and
// tests.
type FailureKind int

const (
	FailureNone       FailureKind = iota // a binding was returned
	FailureNoSolution                    // the query ran and had zero solutions
	FailureEngine                        // malformed query or engine exception
	FailureClosed                        // session closed or never started
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNoSolution:
		return "no_solution"
	case FailureEngine:
		return "engine"
	case FailureClosed:
		return "closed"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Result is the outcome of FirstResult.
type Result struct {
	Binding Binding
	Failure FailureKind
	Err     error // set for FailureEngine and FailureClosed
}

// OK reports whether a binding was produced.
func (r Result) OK() bool { return r.Failure == FailureNone }

// Option configures a Session.
type Option func(*Session)

// WithRuleBase selects the rule base consulted on every start.
func WithRuleBase(rb RuleBase) Option {
	return func(s *Session) { s.ruleBase = rb }
}

// WithRuleBaseFile consults the rule base at path instead of the embedded one.
func WithRuleBaseFile(path string) Option {
	return WithRuleBase(FileRuleBase(path))
}

// WithMachineFactory replaces the Prolog interpreter, mainly for tests.
func WithMachineFactory(f MachineFactory) Option {
	return func(s *Session) { s.factory = f }
}

// WithOutput sends engine output (write/1, print_cave) to w instead of the
// session logger.
func WithOutput(w io.Writer) Option {
	return func(s *Session) { s.out = w }
}

// Session owns exactly one engine context.
//
// sem is a one-slot channel used as the query lock. Goroutines blocked
// sending on a full channel are woken in the order they arrived, which gives
// FIFO admission. machine, generation and closed are only touched while the
// slot is held.
type Session struct {
	sem      chan struct{}
	factory  MachineFactory
	ruleBase RuleBase
	out      io.Writer

	machine    Machine
	generation string
	closed     bool
}

// NewSession builds a session and starts its first context. A rule base that
// fails to load is fatal for the session.
func NewSession(opts ...Option) (*Session, error) {
	s := &Session{
		sem:      make(chan struct{}, 1),
		factory:  NewPrologMachine,
		ruleBase: EmbeddedRuleBase(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.out == nil {
		s.out = logging.Get(logging.CategorySession).Writer(zapcore.DebugLevel)
	}

	s.acquire()
	defer s.release()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) acquire() { s.sem <- struct{}{} }
func (s *Session) release() { <-s.sem }

// startLocked builds a fresh context and consults the rule base.
func (s *Session) startLocked() error {
	timer := logging.StartTimer(logging.CategorySession, "start")
	defer timer.Stop()

	src, err := s.ruleBase.load()
	if err != nil {
		logging.SessionError("start: %v", err)
		return err
	}

	m := s.factory(s.out)
	if err := m.Consult(src); err != nil {
		logging.SessionError("start: consult %s: %v", s.ruleBase.Name, err)
		return fmt.Errorf("%w: consult %s: %v", ErrRuleBase, s.ruleBase.Name, err)
	}

	s.machine = m
	s.generation = uuid.NewString()
	logging.Session("engine context %s started from %s", s.generation, s.ruleBase.Name)
	return nil
}

// Generation identifies the current context; it changes on every Reset.
func (s *Session) Generation() string {
	s.acquire()
	defer s.release()
	return s.generation
}

// RuleBaseName reports where the rule base is loaded from.
func (s *Session) RuleBaseName() string { return s.ruleBase.Name }

// Reset discards the current context and starts a new one. It waits for the
// query in flight, if any. On failure the session has no context and every
// query reports FailureClosed until a later Reset succeeds.
func (s *Session) Reset() error {
	s.acquire()
	defer s.release()

	if s.closed {
		return ErrClosed
	}
	old := s.generation
	s.machine = nil
	s.generation = ""
	if err := s.startLocked(); err != nil {
		return err
	}
	logging.Session("engine context %s replaced by %s", old, s.generation)
	return nil
}

// Close releases the context. Later queries fail with ErrClosed.
func (s *Session) Close() error {
	s.acquire()
	defer s.release()
	if s.closed {
		return nil
	}
	s.closed = true
	s.machine = nil
	logging.Session("engine context %s closed", s.generation)
	return nil
}

// Query submits one query and returns its solutions lazily. The session stays
// locked until the returned Solutions is closed, so callers must always Close
// it.
func (s *Session) Query(text string) (*Solutions, error) {
	q := normalizeQuery(text)

	s.acquire()
	if s.closed || s.machine == nil {
		s.release()
		return nil, ErrClosed
	}

	logging.EngineDebug("query: %s", q)
	cur, err := s.solveLocked(q)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("solve %q: %w", q, err)
	}
	return &Solutions{cursor: cur, query: q, release: s.release}, nil
}

func (s *Session) solveLocked(q string) (cur Cursor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return s.machine.Solve(q)
}

// FirstResult runs text and returns its first binding. Engine failures of any
// kind are folded into the Result; nothing escapes as an error or panic.
func (s *Session) FirstResult(text string) (res Result) {
	sols, err := s.Query(text)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return Result{Failure: FailureClosed, Err: err}
		}
		logging.EngineDebug("first result: %v", err)
		return Result{Failure: FailureEngine, Err: err}
	}
	defer sols.Close()
	defer func() {
		if r := recover(); r != nil {
			logging.EngineWarn("engine panic on %s: %v", sols.query, r)
			res = Result{Failure: FailureEngine, Err: fmt.Errorf("engine panic: %v", r)}
		}
	}()

	if !sols.Next() {
		if err := sols.Err(); err != nil {
			logging.EngineDebug("query %s raised: %v", sols.query, err)
			return Result{Failure: FailureEngine, Err: err}
		}
		return Result{Failure: FailureNoSolution}
	}
	b, err := sols.Binding()
	if err != nil {
		logging.EngineDebug("query %s: decode binding: %v", sols.query, err)
		return Result{Failure: FailureEngine, Err: err}
	}
	return Result{Binding: b}
}

// Solutions is a lazy sequence of bindings holding the session lock.
type Solutions struct {
	cursor  Cursor
	query   string
	release func()
	once    sync.Once
}

// Next advances to the next solution.
func (s *Solutions) Next() bool { return s.cursor.Next() }

// Binding returns the bindings of the current solution.
func (s *Solutions) Binding() (Binding, error) { return s.cursor.Binding() }

// Err returns the error that stopped iteration, if any.
func (s *Solutions) Err() error { return s.cursor.Err() }

// Close stops the query and unlocks the session. It is safe to call twice.
func (s *Solutions) Close() error {
	var err error
	s.once.Do(func() {
		err = s.cursor.Close()
		s.release()
	})
	return err
}

// normalizeQuery trims text and terminates it with a period.
func normalizeQuery(text string) string {
	q := strings.TrimSpace(text)
	if !strings.HasSuffix(q, ".") {
		q += "."
	}
	return q
}
