package journal

import (
	"errors"
	"sync"
	"time"

	"pitfall/internal/bridge"
	"pitfall/internal/logging"

	"go.uber.org/zap"
)

// Recorder journals bridge ticks. It satisfies bridge.Recorder. Journal
// failures are logged and never reach the tick loop.
type Recorder struct {
	store    *Store       // optional
	writer   *JSONLWriter // optional
	ruleBase string
	now      func() time.Time

	mu      sync.Mutex
	episode string
	tick    int
}

var _ bridge.Recorder = (*Recorder)(nil)

// NewRecorder records into store and writer; either may be nil.
func NewRecorder(store *Store, writer *JSONLWriter, ruleBase string) *Recorder {
	return &Recorder{store: store, writer: writer, ruleBase: ruleBase, now: time.Now}
}

// BeginEpisode starts a new episode and resets the tick counter.
func (r *Recorder) BeginEpisode() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beginLocked()
}

func (r *Recorder) beginLocked() (string, error) {
	r.tick = 0
	if r.store == nil {
		r.episode = newEpisodeID(r.now())
	} else {
		ep, err := r.store.BeginEpisode(r.ruleBase)
		if err != nil {
			return "", err
		}
		r.episode = ep.ID
	}
	logging.Journal("episode %s started (rule base %s)", r.episode, r.ruleBase)
	return r.episode, nil
}

// Episode returns the current episode id, or "" before the first tick.
func (r *Recorder) Episode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.episode
}

// RecordTick journals t under the current episode, starting one if needed.
func (r *Recorder) RecordTick(t bridge.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.episode == "" {
		if _, err := r.beginLocked(); err != nil {
			logging.JournalWarn("cannot begin episode: %v", err)
			return
		}
	}
	r.tick++
	e := EntryFromTick(r.episode, r.tick, r.now(), t)
	jl := logging.Get(logging.CategoryJournal).With(zap.String("episode", e.Episode), zap.Int("tick", e.Tick))

	if r.store != nil {
		if err := r.store.Append(e); err != nil {
			jl.Warn("store: %v", err)
		}
	}
	if r.writer != nil {
		if err := r.writer.Write(e); err != nil {
			jl.Warn("jsonl: %v", err)
		}
	}
	logging.JournalDebug("tick %d of %s: %s -> %q", e.Tick, e.Episode, e.Action, e.Command)
}

// Close closes the writer and the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.writer != nil {
		errs = append(errs, r.writer.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}
