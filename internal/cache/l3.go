package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/s00d/rnode-server/internal/logger"
)

// l3Store is one file per key under a root directory. No library in this
// module's corpus offers a single-file-per-key disk cache, so this tier
// is built directly on os/path/filepath — see DESIGN.md for the
// justification.
//
// Concurrent writers to the same key are last-writer-wins: writes go
// through a per-process mutex, not a file lock; concurrent-writer
// semantics for this tier are deliberately left implementation-defined.
type l3Store struct {
	root string
	mu   sync.Mutex
}

func newL3Store(root string) (*l3Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "entries"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, "tags"), 0o755); err != nil {
		return nil, err
	}
	return &l3Store{root: root}, nil
}

// hashKey maps an arbitrary cache key onto a filesystem-safe filename,
// avoiding path traversal from untrusted key content.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *l3Store) entryPath(key string) string {
	return filepath.Join(s.root, "entries", hashKey(key)+".json")
}

func (s *l3Store) tagPath(tag string) string {
	return filepath.Join(s.root, "tags", hashKey(tag)+".idx")
}

func (s *l3Store) Get(key string, tags []string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(key, tags)
}

func (s *l3Store) readLocked(key string, tags []string) (*Entry, bool) {
	raw, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logger.Cache().Warn().Err(err).Str("tier", "l3").Msg("corrupt entry file")
		return nil, false
	}
	if e.Expired() {
		_ = os.Remove(s.entryPath(key))
		return nil, false
	}
	if !e.HasAllTags(tags) {
		return nil, false
	}
	return &e, true
}

func (s *l3Store) Set(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.entryPath(e.Key), raw, 0o644); err != nil {
		return err
	}
	for _, t := range e.Tags {
		s.appendTagLocked(t, e.Key)
	}
	return nil
}

func (s *l3Store) appendTagLocked(tag, key string) {
	f, err := os.OpenFile(s.tagPath(tag), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Cache().Warn().Err(err).Str("tier", "l3").Msg("tag index append failed")
		return
	}
	defer f.Close()
	_, _ = f.WriteString(key + "\n")
}

func (s *l3Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.entryPath(key))
	return err == nil
}

func (s *l3Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.entryPath(key))
	return err == nil
}

func (s *l3Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(s.root, "entries")); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, "tags")); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.root, "entries"), 0o755)
}

// FlushByTags reads each tag's index file for candidate keys; if an index
// file is missing or unreadable it falls back to scanning the entries
// directory instead.
func (s *l3Store) FlushByTags(tags []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make(map[string]struct{})
	missingIndex := false
	for _, t := range tags {
		keys, err := readTagIndex(s.tagPath(t))
		if err != nil {
			missingIndex = true
			continue
		}
		for _, k := range keys {
			candidates[k] = struct{}{}
		}
	}

	if missingIndex {
		entries, _ := os.ReadDir(filepath.Join(s.root, "entries"))
		for _, de := range entries {
			raw, err := os.ReadFile(filepath.Join(s.root, "entries", de.Name()))
			if err != nil {
				continue
			}
			var e Entry
			if json.Unmarshal(raw, &e) != nil {
				continue
			}
			if e.IntersectsTags(tags) {
				candidates[e.Key] = struct{}{}
			}
		}
	}

	var removed []string
	for k := range candidates {
		if s.readAndRemoveLocked(k) {
			removed = append(removed, k)
		}
	}
	for _, t := range tags {
		_ = os.Remove(s.tagPath(t))
	}
	return removed
}

func (s *l3Store) readAndRemoveLocked(key string) bool {
	err := os.Remove(s.entryPath(key))
	return err == nil
}

func readTagIndex(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []string
	start := 0
	for i, b := range raw {
		if b == '\n' {
			if i > start {
				keys = append(keys, string(raw[start:i]))
			}
			start = i + 1
		}
	}
	return keys, nil
}
