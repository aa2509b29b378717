package watcher

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/normalize"
)

// Record is one line of the seen cache: every normalised candidate,
// whether or not it became an event.
type Record struct {
	ID         string         `json:"_id"`
	Source     string         `json:"source"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Meta       normalize.Meta `json:"meta"`
}

// Cache is an append-only JSONL file of seen bulletin IDs. An empty path
// keeps the cache in memory only.
type Cache struct {
	path string

	mu   sync.Mutex
	seen map[string]struct{}
}

// OpenCache loads the IDs already recorded at path. A missing file is an
// empty cache; malformed lines are skipped.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, seen: make(map[string]struct{})}
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "watcher: open cache %s", path)
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	skipped := 0
	for sc.Scan() {
		var rec struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.ID == "" {
			skipped++
			continue
		}
		c.seen[rec.ID] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "watcher: read cache %s", path)
	}
	if skipped > 0 {
		zap.L().Debug("watcher: skipped malformed cache lines", zap.String("path", path), zap.Int("lines", skipped))
	}
	return c, nil
}

// Seen reports whether id has been recorded.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// Len returns the number of recorded IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Add marks rec.ID as seen and appends rec to the cache file. The ID stays
// marked even if the write fails.
func (c *Cache) Add(rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[rec.ID] = struct{}{}
	if c.path == "" {
		return nil
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "watcher: encode cache record")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return eris.Wrap(err, "watcher: create cache dir")
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "watcher: open cache %s", c.path)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "watcher: append cache record")
	}
	return eris.Wrap(f.Close(), "watcher: close cache")
}
