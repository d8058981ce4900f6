// Package agent runs the tick loop: it feeds game frames to a bridge and
// sends the bridge's commands back.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"pitfall/internal/bridge"
	"pitfall/internal/logging"
	"pitfall/internal/transport"

	"golang.org/x/sync/errgroup"
)

// Conn is the game connection the runner reads frames from and sends
// commands to. *transport.Conn satisfies it.
type Conn interface {
	Next(ctx context.Context) (transport.Frame, error)
	Send(command string) error
}

// EpisodeStarter is told when a new episode begins. *journal.Recorder
// satisfies it.
type EpisodeStarter interface {
	BeginEpisode() (string, error)
}

// slowDecision is how long a single decision may take before it is logged as
// a warning.
const slowDecision = 250 * time.Millisecond

// Stats counts what the runner has done.
type Stats struct {
	Frames    int
	Decisions int
	Commands  int
	Resets    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithDecisionInterval also decides every d, independent of server ticks.
func WithDecisionInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithEpisodes notifies e on every reset.
func WithEpisodes(e EpisodeStarter) Option {
	return func(r *Runner) { r.episodes = e }
}

// Runner drives a Bridge from a Conn. The bridge does not lock its own
// state, so every bridge call goes through mu.
type Runner struct {
	bridge   *bridge.Bridge
	conn     Conn
	interval time.Duration
	episodes EpisodeStarter

	mu    sync.Mutex
	stats Stats
}

// NewRunner builds a runner.
func NewRunner(b *bridge.Bridge, conn Conn, opts ...Option) *Runner {
	r := &Runner{bridge: b, conn: conn}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays until ctx is cancelled, the server ends the game, or a reset
// fails. The first two return nil.
func (r *Runner) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return r.readLoop(egCtx)
	})

	if r.interval > 0 {
		eg.Go(func() error {
			return r.decisionLoop(egCtx)
		})
	}

	err := eg.Wait()
	switch {
	case err == nil, errors.Is(err, io.EOF):
		logging.Session("game over after %d frames", r.Stats().Frames)
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil
	}
	return err
}

func (r *Runner) readLoop(ctx context.Context) error {
	for {
		f, err := r.conn.Next(ctx)
		if err != nil {
			return err
		}
		if err := r.Handle(f); err != nil {
			return err
		}
	}
}

func (r *Runner) decisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Decide(); err != nil {
				return err
			}
		}
	}
}

// Handle applies one frame. Only a failed reset or a failed send is an error.
func (r *Runner) Handle(f transport.Frame) error {
	r.mu.Lock()
	r.stats.Frames++
	switch f.Type {
	case transport.FrameStatus:
		r.bridge.SetStatus(f.X, f.Y, f.Facing, f.State, f.Score, f.Energy)
	case transport.FrameObservation:
		if len(f.Percepts) == 0 {
			r.bridge.GetObservationsClean()
		} else {
			r.bridge.GetObservations(f.Percepts)
		}
	case transport.FrameHit:
		r.bridge.ReceiveGotHit(f.Agent)
	case transport.FrameShot:
		r.bridge.ReceiveShotHit(f.Agent)
	case transport.FrameReset:
		r.mu.Unlock()
		return r.Reset(context.Background())
	case transport.FrameTick:
		r.mu.Unlock()
		return r.Decide()
	default:
		logging.RoutingDebug("ignoring frame %q", f.Type)
	}
	r.mu.Unlock()
	return nil
}

// Decide asks the bridge for a command and sends it if there is one.
func (r *Runner) Decide() error {
	r.mu.Lock()
	timer := logging.StartTimer(logging.CategoryRouting, "decision")
	cmd := r.bridge.GetDecision()
	timer.StopWithThreshold(slowDecision)
	r.stats.Decisions++
	if cmd != "" {
		r.stats.Commands++
	}
	r.mu.Unlock()

	if cmd == "" {
		return nil
	}
	if err := r.conn.Send(cmd); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// Reset restarts the engine between ticks and starts a new journal episode.
// It is also the reload callback, hence the context.
func (r *Runner) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.bridge.Reset(); err != nil {
		return err
	}
	r.stats.Resets++
	if r.episodes != nil {
		if _, err := r.episodes.BeginEpisode(); err != nil {
			logging.JournalWarn("new episode after reset: %v", err)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
