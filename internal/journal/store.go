package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pitfall/internal/term"

	_ "modernc.org/sqlite"
)

// Store indexes episodes and ticks in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the journal database at path.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	episodesTable := `
	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		rule_base TEXT NOT NULL
	);
	`

	ticksTable := `
	CREATE TABLE IF NOT EXISTS ticks (
		episode_id TEXT NOT NULL REFERENCES episodes(id),
		tick INTEGER NOT NULL,
		at TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		facing TEXT NOT NULL,
		status TEXT NOT NULL,
		score INTEGER NOT NULL,
		energy INTEGER NOT NULL,
		percepts TEXT NOT NULL,
		enemy_distance INTEGER,
		decided INTEGER NOT NULL,
		goal TEXT NOT NULL,
		action TEXT NOT NULL,
		command TEXT NOT NULL,
		PRIMARY KEY (episode_id, tick)
	);
	CREATE INDEX IF NOT EXISTS idx_ticks_action ON ticks(action);
	`

	for _, table := range []string{episodesTable, ticksTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginEpisode registers a new episode. IDs sort by start time.
func (s *Store) BeginEpisode(ruleBase string) (Episode, error) {
	now := time.Now().UTC()
	ep := Episode{ID: newEpisodeID(now), StartedAt: now, RuleBase: ruleBase}
	_, err := s.db.Exec(
		`INSERT INTO episodes (id, started_at, rule_base) VALUES (?, ?, ?)`,
		ep.ID, now.Format(time.RFC3339Nano), ruleBase,
	)
	if err != nil {
		return Episode{}, fmt.Errorf("failed to begin episode: %w", err)
	}
	return ep, nil
}

// Append stores one tick.
func (s *Store) Append(e Entry) error {
	var enemy sql.NullInt64
	if e.EnemyDistance != nil {
		enemy = sql.NullInt64{Int64: int64(*e.EnemyDistance), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO ticks (episode_id, tick, at, x, y, facing, status, score, energy,
			percepts, enemy_distance, decided, goal, action, command)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Episode, e.Tick, e.Time.UTC().Format(time.RFC3339Nano),
		e.State.Position.X, e.State.Position.Y, string(e.State.Facing), e.State.Status,
		e.State.Score, e.State.Energy,
		encodeSensors(e.Percepts), enemy, e.Decided, e.Goal, e.Action, e.Command,
	)
	if err != nil {
		return fmt.Errorf("failed to append tick %d of %s: %w", e.Tick, e.Episode, err)
	}
	return nil
}

// Episodes lists every episode, oldest first, with its tick count.
func (s *Store) Episodes() ([]Episode, error) {
	rows, err := s.db.Query(`
		SELECT e.id, e.started_at, e.rule_base, COUNT(t.tick)
		FROM episodes e LEFT JOIN ticks t ON t.episode_id = e.id
		GROUP BY e.id
		ORDER BY e.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var ep Episode
		var started string
		if err := rows.Scan(&ep.ID, &started, &ep.RuleBase, &ep.Ticks); err != nil {
			return nil, err
		}
		ep.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Entries returns an episode's ticks in order.
func (s *Store) Entries(episode string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT tick, at, x, y, facing, status, score, energy,
			percepts, enemy_distance, decided, goal, action, command
		FROM ticks WHERE episode_id = ? ORDER BY tick`, episode)
	if err != nil {
		return nil, fmt.Errorf("failed to read episode %s: %w", episode, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Episode: episode}
		var at, facing, percepts string
		var enemy sql.NullInt64
		if err := rows.Scan(&e.Tick, &at, &e.State.Position.X, &e.State.Position.Y,
			&facing, &e.State.Status, &e.State.Score, &e.State.Energy,
			&percepts, &enemy, &e.Decided, &e.Goal, &e.Action, &e.Command); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, at)
		e.State.Facing = term.Direction(facing)
		e.Percepts = decodeSensors(percepts)
		if enemy.Valid {
			d := int(enemy.Int64)
			e.EnemyDistance = &d
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
