package pattern

import (
	"sync"
	"time"

	"github.com/nanook72/logradar/internal/loglevel"
)

// Config tunes the thresholds PatternStore uses for trend and spike
// detection, and the sizing of its rolling window and bucket grid.
// Zero-value fields are filled with defaults by NewStore.
type Config struct {
	// BucketDuration is the width of one sparkline bucket. Default 5s.
	BucketDuration time.Duration
	// WindowDuration bounds the rolling timestamp window used for
	// rate_1m/rate_5m. Default 5 minutes.
	WindowDuration time.Duration
	// TrendUpRatio: rate_1m > rate_5m * TrendUpRatio => Trend Up.
	// Default 1.2.
	TrendUpRatio float64
	// TrendDownRatio: rate_1m < rate_5m * TrendDownRatio => Trend
	// Down. Default 0.8.
	TrendDownRatio float64
}

func (c Config) withDefaults() Config {
	if c.BucketDuration <= 0 {
		c.BucketDuration = 5 * time.Second
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = 5 * time.Minute
	}
	if c.TrendUpRatio <= 0 {
		c.TrendUpRatio = 1.2
	}
	if c.TrendDownRatio <= 0 {
		c.TrendDownRatio = 0.8
	}
	return c
}

// Store indexes Pattern values by signature. Ingest and Tick are
// called only from the coordinator goroutine, but Snapshot and
// CanonicalStrings are also called from the MCP query handler
// goroutine, so patternsMu guards the map the same way the teacher's
// LogBroker guards containersMu/streamsMu across its fetch and render
// goroutines.
type Store struct {
	cfg Config

	patternsMu sync.RWMutex
	patterns   map[Signature]*Pattern
}

// NewStore builds an empty store with the given config (zero-value
// Config uses the spec defaults).
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:      cfg.withDefaults(),
		patterns: make(map[Signature]*Pattern),
	}
}

// Ingest records one event against its signature's Pattern, creating
// the Pattern if this is the first time the signature has been seen.
func (s *Store) Ingest(sig Signature, canonical, raw string, severity loglevel.Level, sourceID string, at time.Time) {
	s.patternsMu.Lock()
	defer s.patternsMu.Unlock()

	p, ok := s.patterns[sig]
	if !ok {
		p = newPattern(sig, canonical, raw, at)
		s.patterns[sig] = p
	}

	// canonical is first-seen-wins; exemplar always tracks the most
	// recent raw line, per spec.
	p.Exemplar = raw
	p.CountTotal++
	p.Severity = loglevel.Max(p.Severity, severity)
	p.timestamps = append(p.timestamps, at)
	p.currentBucketCount++
	if sourceID != "" {
		p.sources[sourceID]++
	}

	s.pruneWindow(p, at)
}

func (s *Store) pruneWindow(p *Pattern, now time.Time) {
	cutoff := now.Add(-s.cfg.WindowDuration)
	i := 0
	for i < len(p.timestamps) && p.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		p.timestamps = append(p.timestamps[:0], p.timestamps[i:]...)
	}
}

// Tick advances every pattern's bucket ring to now: committing any
// buckets whose BucketDuration has elapsed (zero-filling skipped
// intervals), pruning the rolling window, and recomputing
// rate_1m/rate_5m, trend, and spike.
func (s *Store) Tick(now time.Time) {
	s.patternsMu.Lock()
	defer s.patternsMu.Unlock()

	for _, p := range s.patterns {
		s.commitBuckets(p, now)
		s.pruneWindow(p, now)
		s.recompute(p, now)
	}
}

func (s *Store) commitBuckets(p *Pattern, now time.Time) {
	elapsed := now.Sub(p.currentBucketStartedAt)
	if elapsed < s.cfg.BucketDuration {
		return
	}

	n := int(elapsed / s.cfg.BucketDuration)
	if n > SparklineBuckets {
		// Long gap (paused source, etc): the whole ring goes stale,
		// commit a single zeroed ring rather than looping thousands of
		// times.
		p.sparklineBuckets = [SparklineBuckets]uint64{}
		p.currentBucketCount = 0
		p.currentBucketStartedAt = now
		return
	}

	for i := 0; i < n; i++ {
		var val uint64
		if i == 0 {
			val = p.currentBucketCount
		}
		copy(p.sparklineBuckets[:], p.sparklineBuckets[1:])
		p.sparklineBuckets[SparklineBuckets-1] = val
	}
	p.currentBucketCount = 0
	p.currentBucketStartedAt = p.currentBucketStartedAt.Add(time.Duration(n) * s.cfg.BucketDuration)
}

func (s *Store) recompute(p *Pattern, now time.Time) {
	var c1m, c5m int
	oneMinAgo := now.Add(-time.Minute)
	fiveMinAgo := now.Add(-5 * time.Minute)
	for _, ts := range p.timestamps {
		if !ts.Before(fiveMinAgo) {
			c5m++
			if !ts.Before(oneMinAgo) {
				c1m++
			}
		}
	}
	p.Rate1m = float64(c1m)
	p.Rate5m = float64(c5m) / 5

	switch {
	case p.Rate5m > 0 && p.Rate1m > p.Rate5m*s.cfg.TrendUpRatio:
		p.Trend = TrendUp
	case p.Rate5m > 0 && p.Rate1m < p.Rate5m*s.cfg.TrendDownRatio:
		p.Trend = TrendDown
	default:
		p.Trend = TrendFlat
	}

	last := p.sparklineBuckets[SparklineBuckets-1]
	recent := p.currentBucketCount + last
	mean := meanNonZero(p.sparklineBuckets)
	threshold := 3.0
	if 3*mean > threshold {
		threshold = 3 * mean
	}
	p.Spike = float64(recent) > threshold
}

// Reset drops all patterns: PatternStore reverts to empty. Grounded
// in the teacher's "clear" action that discards aggregated state
// wholesale rather than per-field.
func (s *Store) Reset() {
	s.patternsMu.Lock()
	defer s.patternsMu.Unlock()
	s.patterns = make(map[Signature]*Pattern)
}

// ClearCounts zeroes every pattern's counters and sparkline history
// while keeping pattern identity (signature, canonical, exemplar) per
// spec §4: a user clearing counts wants a fresh rate view, not to
// forget which patterns exist.
func (s *Store) ClearCounts(now time.Time) {
	s.patternsMu.Lock()
	defer s.patternsMu.Unlock()

	for _, p := range s.patterns {
		p.CountTotal = 0
		p.timestamps = p.timestamps[:0]
		p.sparklineBuckets = [SparklineBuckets]uint64{}
		p.currentBucketCount = 0
		p.currentBucketStartedAt = now
		p.Rate1m = 0
		p.Rate5m = 0
		p.Trend = TrendFlat
		p.Spike = false
		p.sources = make(map[string]uint64)
	}
}

// Len reports the number of distinct patterns currently tracked.
func (s *Store) Len() int {
	s.patternsMu.RLock()
	defer s.patternsMu.RUnlock()
	return len(s.patterns)
}

// Get returns the live Pattern for a signature, if present. The
// returned pointer is only safe to dereference from the coordinator
// goroutine; cross-goroutine callers must use Snapshot instead.
func (s *Store) Get(sig Signature) (*Pattern, bool) {
	s.patternsMu.RLock()
	defer s.patternsMu.RUnlock()
	p, ok := s.patterns[sig]
	return p, ok
}

// Snapshot returns a render-safe copy of every tracked pattern,
// ordered by rate_1m descending, count_total descending, canonical
// ascending. Safe to call from any goroutine.
func (s *Store) Snapshot() []Snapshot {
	s.patternsMu.RLock()
	defer s.patternsMu.RUnlock()

	out := make([]Snapshot, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.snapshot())
	}
	sortSnapshots(out)
	return out
}

// CanonicalStrings returns every tracked pattern's canonical string
// in Snapshot order, for FuzzyIndex to search over.
func (s *Store) CanonicalStrings() []string {
	snaps := s.Snapshot()
	out := make([]string, len(snaps))
	for i, sn := range snaps {
		out[i] = sn.Canonical
	}
	return out
}
