package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// JSONLWriter writes one JSON line per entry into a file per episode,
// zstd-compressed unless disabled.
type JSONLWriter struct {
	dir      string
	compress bool

	mu      sync.Mutex
	episode string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewJSONLWriter writes episode files under dir.
func NewJSONLWriter(dir string, compress bool) *JSONLWriter {
	return &JSONLWriter{dir: dir, compress: compress}
}

// Path returns the file an episode is written to.
func (w *JSONLWriter) Path(episode string) string {
	if w.compress {
		return filepath.Join(w.dir, episode+".jsonl.zst")
	}
	return filepath.Join(w.dir, episode+".jsonl")
}

// Write appends e to its episode's file, switching files when the episode
// changes. Every line is flushed so a crash loses at most the current tick.
func (w *JSONLWriter) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.Episode != w.episode || w.w == nil {
		if err := w.rotateLocked(e.Episode); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.enc != nil {
		return w.enc.Flush()
	}
	return nil
}

// Close flushes and closes the current file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLWriter) rotateLocked(episode string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(episode), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	var out io.Writer = f
	if w.compress {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return err
		}
		w.enc = enc
		out = enc
	}
	w.f = f
	w.w = bufio.NewWriterSize(out, 32*1024)
	w.episode = episode
	return nil
}

func (w *JSONLWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.episode = ""
	return err
}

// ReadJSONL reads the entries of an episode file written by JSONLWriter.
// Files ending in .zst are decompressed.
func ReadJSONL(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
