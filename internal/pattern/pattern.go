// Package pattern implements per-signature rolling-window state
// (Pattern) and its hash-indexed store (PatternStore): §3/§4.4 of the
// spec. The sparkline ring is grounded in the teacher's
// BufferConsumer pre-allocated circular buffer (bufferconsumer.go);
// the rolling 5-minute timestamp window is grounded in the teacher's
// LogRateTracker sliding window with prune-before-append (ratetracker.go).
package pattern

import (
	"sort"
	"time"

	"github.com/nanook72/logradar/internal/loglevel"
)

// SparklineBuckets is the fixed width of a pattern's activity
// history ring.
const SparklineBuckets = 24

// Trend is the direction of recent activity relative to the
// 5-minute baseline.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "Up"
	case TrendDown:
		return "Down"
	default:
		return "Flat"
	}
}

// Pattern is the per-signature aggregation state described in spec §3.
type Pattern struct {
	Signature Signature
	Canonical string
	Exemplar  string
	Severity  loglevel.Level

	CountTotal uint64

	// timestamps holds ingest instants pruned to the last window
	// (default 5 minutes), oldest first.
	timestamps []time.Time

	sparklineBuckets       [SparklineBuckets]uint64
	currentBucketCount     uint64
	currentBucketStartedAt time.Time

	Rate1m float64
	Rate5m float64
	Trend  Trend
	Spike  bool

	// sources is a multiset: source_id -> number of events
	// contributed, per spec §3.
	sources map[string]uint64
}

func newPattern(sig Signature, canonical, exemplar string, now time.Time) *Pattern {
	return &Pattern{
		Signature:              sig,
		Canonical:              canonical,
		Exemplar:               exemplar,
		Severity:               loglevel.Unknown,
		currentBucketStartedAt: now,
		sources:                make(map[string]uint64),
	}
}

// SparklineBucketsSnapshot returns a copy of the committed bucket
// ring, oldest first, rightmost (index 23) is the newest committed
// bucket.
func (p *Pattern) SparklineBucketsSnapshot() [SparklineBuckets]uint64 {
	return p.sparklineBuckets
}

// CurrentBucketCount is the in-progress count for the
// not-yet-committed bucket.
func (p *Pattern) CurrentBucketCount() uint64 {
	return p.currentBucketCount
}

// Sources returns a copy of the contributing source multiset.
func (p *Pattern) Sources() map[string]uint64 {
	cp := make(map[string]uint64, len(p.sources))
	for k, v := range p.sources {
		cp[k] = v
	}
	return cp
}

// TimestampCount returns the number of timestamps currently retained
// in the rolling window (test/debug helper).
func (p *Pattern) TimestampCount() int {
	return len(p.timestamps)
}

func meanNonZero(buckets [SparklineBuckets]uint64) float64 {
	var sum uint64
	var n int
	for _, b := range buckets {
		if b > 0 {
			sum += b
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// SparklineGlyphs renders the 24 buckets (plus the live, in-progress
// bucket) as glyph indices 0..=7 using the soft-cap normalization of
// spec §4.4: scale each bucket by min(1, b/(3*mean)) when mean > 0,
// else 0; convert to floor(scaled*7) clamped to [0,7]. The returned
// slice has SparklineBuckets elements; live reports whether the
// in-progress bucket (not part of the returned glyphs) currently has
// any activity.
func (p *Pattern) SparklineGlyphs() (glyphs [SparklineBuckets]int, live bool) {
	m := meanNonZero(p.sparklineBuckets)
	for i, b := range p.sparklineBuckets {
		if b == 0 || m == 0 {
			glyphs[i] = 0
			continue
		}
		scaled := float64(b) / (3 * m)
		if scaled > 1 {
			scaled = 1
		}
		idx := int(scaled * 7)
		if idx > 7 {
			idx = 7
		}
		glyphs[i] = idx
	}
	live = p.currentBucketCount > 0
	return glyphs, live
}

// sortOrder is a comparator family for PatternStore.Snapshot.
type sortOrder int

const (
	// OrderDefault sorts by rate_1m desc, count_total desc, canonical asc.
	OrderDefault sortOrder = iota
)

// Snapshot is an immutable, render-safe copy of one Pattern.
type Snapshot struct {
	Signature        Signature
	Canonical        string
	Exemplar         string
	Severity         loglevel.Level
	CountTotal       uint64
	SparklineBuckets [SparklineBuckets]uint64
	CurrentBucket    uint64
	Rate1m           float64
	Rate5m           float64
	Trend            Trend
	Spike            bool
	Sources          map[string]uint64
}

func (p *Pattern) snapshot() Snapshot {
	return Snapshot{
		Signature:        p.Signature,
		Canonical:        p.Canonical,
		Exemplar:         p.Exemplar,
		Severity:         p.Severity,
		CountTotal:       p.CountTotal,
		SparklineBuckets: p.sparklineBuckets,
		CurrentBucket:    p.currentBucketCount,
		Rate1m:           p.Rate1m,
		Rate5m:           p.Rate5m,
		Trend:            p.Trend,
		Spike:            p.Spike,
		Sources:          p.Sources(),
	}
}

// sortSnapshots sorts in place per OrderDefault: rate_1m descending,
// tie-break count_total descending, then canonical ascending.
func sortSnapshots(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		a, b := snaps[i], snaps[j]
		if a.Rate1m != b.Rate1m {
			return a.Rate1m > b.Rate1m
		}
		if a.CountTotal != b.CountTotal {
			return a.CountTotal > b.CountTotal
		}
		return a.Canonical < b.Canonical
	})
}
