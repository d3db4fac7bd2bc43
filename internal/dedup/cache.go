// Package dedup keeps the per-directory ledger of items already acquired.
//
// The ledger is append-only: one "<scheme> <id>" line per acquired item. It is
// never compacted or rewritten, and a missing or unreadable ledger reads as empty.
package dedup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"spotifydl/internal/logger"
)

const lockTimeout = 5 * time.Second

// Cache resolves ledger locations and reads/appends records.
type Cache struct {
	// File is either a name relative to each destination directory or an absolute path.
	File   string
	logger *logger.Logger
}

// New creates a Cache using the given ledger file name or absolute override.
func New(file string, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{File: file, logger: log}
}

// Path returns the ledger file used for a destination directory.
func (c *Cache) Path(dir string) string {
	if filepath.IsAbs(c.File) {
		return c.File
	}
	return filepath.Join(dir, c.File)
}

// Has reports whether key is recorded for dir. It never fails: an absent or
// unreadable ledger is a miss.
func (c *Cache) Has(dir, key string) bool {
	path := c.Path(dir)
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Cache read failed for %s: %v", path, err)
		}
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == key {
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Cache read failed for %s: %v", path, err)
	}
	return false
}

// Record appends key to the ledger for dir. Failures are logged, not returned:
// the artifact is already on disk at this point.
func (c *Cache) Record(dir, key string) {
	if err := c.append(c.Path(dir), key); err != nil {
		c.logger.Warn("Cache write failed for %q: %v", key, err)
	}
}

func (c *Cache) append(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache file: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock cache file: timed out after %s", lockTimeout)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open cache file: %w", err)
	}
	if _, err := f.WriteString(key + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append cache entry: %w", err)
	}
	return f.Close()
}
