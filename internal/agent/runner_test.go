package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pitfall/internal/bridge"
	"pitfall/internal/engine"
	"pitfall/internal/reasoning"
	"pitfall/internal/term"
	"pitfall/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// =============================================================================
// FAKES
// =============================================================================

type stubReasoner struct {
	mu       sync.Mutex
	decision reasoning.Decision
	decides  bool
	resetErr error
	resets   int
	hits     int
}

func (s *stubReasoner) SetPosition(term.Coordinate)  {}
func (s *stubReasoner) SetFacing(term.Direction)     {}
func (s *stubReasoner) SetEnergy(int)                {}
func (s *stubReasoner) SetScore(int)                 {}
func (s *stubReasoner) RecordPercepts(term.Percepts) {}
func (s *stubReasoner) SetDetectedEnemy(int)         {}
func (s *stubReasoner) Act(term.Action)              {}
func (s *stubReasoner) PrintMap()                    {}
func (s *stubReasoner) MarkHit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}
func (s *stubReasoner) Decide() (reasoning.Decision, bool) { return s.decision, s.decides }
func (s *stubReasoner) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return s.resetErr
}

// chanConn delivers frames from a channel and reports io.EOF once it is
// closed.
type chanConn struct {
	frames  chan transport.Frame
	sendErr error

	mu   sync.Mutex
	sent []string
}

func newChanConn(frames ...transport.Frame) *chanConn {
	c := &chanConn{frames: make(chan transport.Frame, len(frames)+1)}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *chanConn) Next(ctx context.Context) (transport.Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return transport.Frame{}, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *chanConn) Send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, cmd)
	return c.sendErr
}

func (c *chanConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type countingEpisodes struct {
	mu    sync.Mutex
	begun int
	err   error
}

func (e *countingEpisodes) BeginEpisode() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begun++
	return "ep", e.err
}

func moveForward() *stubReasoner {
	return &stubReasoner{
		decides:  true,
		decision: reasoning.Decision{Goal: term.Goal{Type: "explore"}, Action: term.ActionMoveForward},
	}
}

// =============================================================================
// TESTS
// =============================================================================

func TestRun_PlaysUntilServerCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newChanConn(
		transport.Frame{Type: transport.FrameStatus, X: 1, Y: 2, Facing: "north", State: "game", Energy: 100},
		transport.Frame{Type: transport.FrameObservation, Percepts: []string{"breeze"}},
		transport.Frame{Type: transport.FrameTick},
		transport.Frame{Type: transport.FrameObservation},
		transport.Frame{Type: transport.FrameTick},
	)
	close(conn.frames)

	b := bridge.New(moveForward())
	r := NewRunner(b, conn)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{"move_forward", "move_forward"}, conn.Sent())
	assert.Equal(t, term.Coordinate{X: 1, Y: 2}, b.State().Position)
	assert.Equal(t, Stats{Frames: 5, Decisions: 2, Commands: 2}, r.Stats())
}

func TestRun_NoDecisionSendsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newChanConn(transport.Frame{Type: transport.FrameTick})
	close(conn.frames)

	r := NewRunner(bridge.New(&stubReasoner{}), conn)
	require.NoError(t, r.Run(context.Background()))

	assert.Empty(t, conn.Sent())
	assert.Equal(t, Stats{Frames: 1, Decisions: 1}, r.Stats())
}

func TestRun_CancelIsClean(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newChanConn()
	r := NewRunner(bridge.New(moveForward()), conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}
}

func TestRun_DecisionInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newChanConn()
	r := NewRunner(bridge.New(moveForward()), conn, WithDecisionInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(conn.Sent()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, r.Stats().Decisions, 3)
}

func TestRun_ResetFrameStartsEpisode(t *testing.T) {
	defer goleak.VerifyNone(t)

	reasoner := moveForward()
	episodes := &countingEpisodes{}
	conn := newChanConn(
		transport.Frame{Type: transport.FrameHit, Agent: "bot"},
		transport.Frame{Type: transport.FrameReset},
		transport.Frame{Type: transport.FrameTick},
	)
	close(conn.frames)

	r := NewRunner(bridge.New(reasoner), conn, WithEpisodes(episodes))
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, reasoner.resets)
	assert.Equal(t, 1, reasoner.hits)
	assert.Equal(t, 1, episodes.begun)
	assert.Equal(t, 1, r.Stats().Resets)
	assert.Equal(t, []string{"move_forward"}, conn.Sent())
}

func TestRun_FailedResetIsFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	reasoner := &stubReasoner{resetErr: engine.ErrRuleBase}
	conn := newChanConn(
		transport.Frame{Type: transport.FrameReset},
		transport.Frame{Type: transport.FrameTick},
	)

	r := NewRunner(bridge.New(reasoner), conn, WithDecisionInterval(time.Hour))
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrRuleBase))
	assert.Empty(t, conn.Sent())
}

func TestReset_EpisodeFailureIsNotFatal(t *testing.T) {
	r := NewRunner(bridge.New(&stubReasoner{}), newChanConn(), WithEpisodes(&countingEpisodes{err: errors.New("disk full")}))
	assert.NoError(t, r.Reset(context.Background()))
}

func TestRun_SendFailureStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newChanConn(transport.Frame{Type: transport.FrameTick})
	conn.sendErr = errors.New("broken pipe")

	r := NewRunner(bridge.New(moveForward()), conn)
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestHandle_IgnoresUnknownFrames(t *testing.T) {
	conn := newChanConn()
	r := NewRunner(bridge.New(&stubReasoner{}), conn)

	require.NoError(t, r.Handle(transport.Frame{Type: "chat"}))
	assert.Equal(t, 1, r.Stats().Frames)
	assert.Empty(t, conn.Sent())
}

func TestRun_RealEngine(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := engine.NewSession()
	require.NoError(t, err)
	defer s.Close()
	client := reasoning.New(s)
	client.DisableLogging()

	conn := newChanConn(
		transport.Frame{Type: transport.FrameStatus, X: 2, Y: 2, Facing: "south", State: "game", Energy: 100},
		transport.Frame{Type: transport.FrameObservation, Percepts: []string{"redLight"}},
		transport.Frame{Type: transport.FrameTick},
		transport.Frame{Type: transport.FrameStatus, X: 2, Y: 2, Facing: "south", State: "game", Energy: 0},
		transport.Frame{Type: transport.FrameObservation},
		transport.Frame{Type: transport.FrameTick},
	)
	close(conn.frames)

	r := NewRunner(bridge.New(client, bridge.WithActFeedback()), conn)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{"pick_up"}, conn.Sent())
	assert.Equal(t, 1, client.Inventory().Gold)
}
