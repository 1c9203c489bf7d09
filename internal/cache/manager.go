package cache

import (
	"context"
	"time"

	"github.com/s00d/rnode-server/internal/apperrors"
	"github.com/s00d/rnode-server/internal/logger"
	"github.com/s00d/rnode-server/internal/metrics"
)

// Options configures the tiers a Manager wires up. L2/L3 are optional:
// leaving RedisURL or FileCachePath empty transparently disables that
// tier.
type Options struct {
	MaxMemory     int64
	Shards        int
	DefaultTTL    time.Duration
	RedisURL      string
	FileCachePath string
}

// Manager is the CacheManager: it fronts the three tiers with a single
// read-through/write-through API and tag-based invalidation across all of
// them.
type Manager struct {
	l1         *l1Store
	l2         *l2Store
	l3         *l3Store
	defaultTTL time.Duration
	metrics    *metrics.Metrics
}

// New builds a Manager from opts. L2/L3 connection failures are returned
// to the caller rather than silently degrading — an explicitly configured
// tier that cannot be reached at startup is a configuration error, unlike
// a tier left unconfigured (which disables transparently).
func New(opts Options, m *metrics.Metrics) (*Manager, error) {
	shards := opts.Shards
	if shards <= 0 {
		shards = 16
	}
	mgr := &Manager{
		l1:         newL1Store(opts.MaxMemory, shards),
		defaultTTL: opts.DefaultTTL,
		metrics:    m,
	}

	if opts.RedisURL != "" {
		l2, err := newL2Store(opts.RedisURL)
		if err != nil {
			return nil, err
		}
		mgr.l2 = l2
	}

	if opts.FileCachePath != "" {
		l3, err := newL3Store(opts.FileCachePath)
		if err != nil {
			return nil, err
		}
		mgr.l3 = l3
	}

	return mgr, nil
}

func (m *Manager) Close() {
	if m.l2 != nil {
		_ = m.l2.Close()
	}
}

func (m *Manager) resolveTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl < 0:
		return 0, apperrors.New(apperrors.InvalidRequest, "cache ttl must not be negative")
	case ttl == 0:
		return m.defaultTTL, nil
	default:
		return ttl, nil
	}
}

// Get implements the read path: L1 → L2 → L3, promoting a hit from a
// lower tier into every higher tier with its original remaining TTL. A
// full miss returns ok=false. When tags is non-empty, only an entry whose
// stored tag set contains every requested tag counts as a hit.
func (m *Manager) Get(ctx context.Context, key string, tags []string) (*Entry, bool) {
	if e, ok := m.l1.Get(key, tags); ok {
		m.recordHit()
		return e, true
	}

	if m.l2 != nil {
		if e, ok := m.l2.Get(ctx, key, tags); ok {
			m.l1.Set(e)
			m.recordHit()
			return e, true
		}
	}

	if m.l3 != nil {
		if e, ok := m.l3.Get(key, tags); ok {
			m.l1.Set(e)
			if m.l2 != nil {
				if err := m.l2.Set(ctx, e); err != nil {
					logger.Cache().Warn().Err(err).Msg("promote to l2 failed")
				}
			}
			m.recordHit()
			return e, true
		}
	}

	m.recordMiss()
	return nil, false
}

func (m *Manager) recordHit() {
	if m.metrics != nil {
		m.metrics.CacheHitsTotal.Inc()
	}
}

func (m *Manager) recordMiss() {
	if m.metrics != nil {
		m.metrics.CacheMissesTotal.Inc()
	}
}

// Set writes value to every configured tier. It returns true iff L1
// succeeded; lower-tier failures are logged and skipped, never failing
// the caller. ttl of zero means defaultTTL; negative is an error.
func (m *Manager) Set(ctx context.Context, key string, value []byte, contentType string, ttl time.Duration, tags []string) (bool, error) {
	resolved, err := m.resolveTTL(ttl)
	if err != nil {
		return false, err
	}

	entry := &Entry{
		Key:         key,
		Value:       value,
		ContentType: contentType,
		Tags:        tags,
		ExpiresAt:   time.Now().Add(resolved),
	}

	ok := m.l1.Set(entry)
	if !ok {
		return false, apperrors.New(apperrors.CacheTooLarge, "entry exceeds L1 shard budget")
	}

	if m.l2 != nil {
		if err := m.l2.Set(ctx, entry); err != nil {
			logger.Cache().Warn().Err(err).Str("tier", "l2").Msg("set failed, degrading")
		}
	}
	if m.l3 != nil {
		if err := m.l3.Set(entry); err != nil {
			logger.Cache().Warn().Err(err).Str("tier", "l3").Msg("set failed, degrading")
		}
	}

	return true, nil
}

// Delete removes key from every tier, returning true if any tier held it.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	removed := m.l1.Delete(key)
	if m.l2 != nil && m.l2.Delete(ctx, key) {
		removed = true
	}
	if m.l3 != nil && m.l3.Delete(key) {
		removed = true
	}
	return removed
}

// Exists performs a cascading existence check without promotion.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	if m.l1.Exists(key) {
		return true
	}
	if m.l2 != nil && m.l2.Exists(ctx, key) {
		return true
	}
	if m.l3 != nil && m.l3.Exists(key) {
		return true
	}
	return false
}

// Clear purges every configured tier.
func (m *Manager) Clear(ctx context.Context) error {
	m.l1.Clear()
	if m.l2 != nil {
		if err := m.l2.Clear(ctx); err != nil {
			return err
		}
	}
	if m.l3 != nil {
		if err := m.l3.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// FlushByTags removes every entry (in any tier) whose tag set intersects
// tags, and returns the count of distinct keys removed.
func (m *Manager) FlushByTags(ctx context.Context, tags []string) int {
	removed := make(map[string]struct{})
	for _, k := range m.l1.FlushByTags(tags) {
		removed[k] = struct{}{}
	}
	if m.l2 != nil {
		for _, k := range m.l2.FlushByTags(ctx, tags) {
			removed[k] = struct{}{}
		}
	}
	if m.l3 != nil {
		for _, k := range m.l3.FlushByTags(tags) {
			removed[k] = struct{}{}
		}
	}
	return len(removed)
}
