package pattern

import (
	"testing"
	"time"

	"github.com/nanook72/logradar/internal/loglevel"
)

func TestIngestCreatesPatternAndAccumulates(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("<TS> user <NUM> logged in")

	s.Ingest(sig, "<TS> user <NUM> logged in", "2024 user 1 logged in", loglevel.Info, "src-a", base)
	s.Ingest(sig, "<TS> user <NUM> logged in", "2024 user 2 logged in", loglevel.Warn, "src-a", base.Add(time.Second))
	s.Ingest(sig, "<TS> user <NUM> logged in", "2024 user 3 logged in", loglevel.Info, "src-b", base.Add(2*time.Second))

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	p, ok := s.Get(sig)
	if !ok {
		t.Fatal("pattern not found")
	}
	if p.CountTotal != 3 {
		t.Errorf("CountTotal = %d, want 3", p.CountTotal)
	}
	if p.Severity != loglevel.Warn {
		t.Errorf("Severity = %v, want Warn (max of Info/Warn/Info)", p.Severity)
	}
	if p.Exemplar != "2024 user 3 logged in" {
		t.Errorf("Exemplar = %q, want most recent raw line retained", p.Exemplar)
	}
	if got := p.Sources(); got["src-a"] != 2 || got["src-b"] != 1 {
		t.Errorf("Sources() = %v, want src-a:2 src-b:1", got)
	}
}

func TestIngestDistinctSignaturesDoNotCollide(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sigA := Hash("<TS> user <NUM> logged in")
	sigB := Hash("<TS> disk full")

	s.Ingest(sigA, "<TS> user <NUM> logged in", "raw a", loglevel.Info, "src", base)
	s.Ingest(sigB, "<TS> disk full", "raw b", loglevel.Error, "src", base)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestRollingWindowPrunesOldTimestamps(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	s.Ingest(sig, "x", "x", loglevel.Info, "src", base)
	p, _ := s.Get(sig)
	if p.TimestampCount() != 1 {
		t.Fatalf("TimestampCount = %d, want 1", p.TimestampCount())
	}

	// A fresh event 6 minutes later, beyond the 5-minute window, must
	// prune the t=0 timestamp.
	s.Ingest(sig, "x", "x", loglevel.Info, "src", base.Add(6*time.Minute))
	p, _ = s.Get(sig)
	if p.TimestampCount() != 1 {
		t.Errorf("TimestampCount after 6m gap = %d, want 1 (oldest pruned)", p.TimestampCount())
	}
}

func TestRollingWindowRetainsWithinBounds(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	s.Ingest(sig, "x", "x", loglevel.Info, "src", base)
	s.Ingest(sig, "x", "x", loglevel.Info, "src", base.Add(70*time.Second))
	p, _ := s.Get(sig)
	if p.TimestampCount() != 2 {
		t.Errorf("TimestampCount at t=70s = %d, want 2 (both within 5m window)", p.TimestampCount())
	}
}

func TestTickCommitsBucketAfterBucketDuration(t *testing.T) {
	s := NewStore(Config{BucketDuration: 5 * time.Second})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	s.Ingest(sig, "x", "x", loglevel.Info, "src", base)
	s.Ingest(sig, "x", "x", loglevel.Info, "src", base.Add(time.Second))
	s.Ingest(sig, "x", "x", loglevel.Info, "src", base.Add(2*time.Second))

	s.Tick(base.Add(5 * time.Second))

	p, _ := s.Get(sig)
	last := p.sparklineBuckets[SparklineBuckets-1]
	if last != 3 {
		t.Errorf("committed bucket = %d, want 3", last)
	}
	if p.CurrentBucketCount() != 0 {
		t.Errorf("current bucket count after commit = %d, want 0", p.CurrentBucketCount())
	}
}

func TestTickZeroFillsSkippedBuckets(t *testing.T) {
	s := NewStore(Config{BucketDuration: 5 * time.Second})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	s.Ingest(sig, "x", "x", loglevel.Info, "src", base)
	// Jump 3 bucket-widths forward with no intervening events.
	s.Tick(base.Add(15 * time.Second))

	p, _ := s.Get(sig)
	b := p.sparklineBuckets
	if b[SparklineBuckets-1] != 0 || b[SparklineBuckets-2] != 0 {
		t.Errorf("expected trailing zero-filled buckets, got %v", b)
	}
	if b[SparklineBuckets-3] != 1 {
		t.Errorf("expected the original bucket's count preserved at index -3, got %d", b[SparklineBuckets-3])
	}
}

func TestTickUniformRateFillsRing(t *testing.T) {
	s := NewStore(Config{BucketDuration: 5 * time.Second})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	cur := base
	for i := 0; i < 25; i++ {
		s.Ingest(sig, "x", "x", loglevel.Info, "src", cur)
		cur = cur.Add(5 * time.Second)
		s.Tick(cur)
	}

	p, _ := s.Get(sig)
	for i, v := range p.sparklineBuckets {
		if v != 1 {
			t.Errorf("bucket[%d] = %d, want 1 after 125s of uniform 1-event-per-5s rate", i, v)
		}
	}
}

func TestSpikeDetection(t *testing.T) {
	s := NewStore(Config{BucketDuration: 5 * time.Second})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	// Establish a quiet baseline: one event per bucket for several
	// buckets.
	cur := base
	for i := 0; i < 5; i++ {
		s.Ingest(sig, "x", "x", loglevel.Info, "src", cur)
		cur = cur.Add(5 * time.Second)
		s.Tick(cur)
	}

	// Burst 50 events into the next bucket.
	for i := 0; i < 50; i++ {
		s.Ingest(sig, "x", "x", loglevel.Info, "src", cur)
	}
	s.Tick(cur.Add(5 * time.Second))

	p, _ := s.Get(sig)
	if !p.Spike {
		t.Error("expected Spike=true after 50-event burst against a baseline of 1/bucket")
	}
}

func TestTrendUp(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")

	// Build a 5-minute baseline of 1 event/10s (30 events), then burst
	// heavily in the final minute so rate_1m >> rate_5m.
	cur := base
	for i := 0; i < 30; i++ {
		s.Ingest(sig, "x", "x", loglevel.Info, "src", cur)
		cur = cur.Add(10 * time.Second)
	}
	for i := 0; i < 30; i++ {
		s.Ingest(sig, "x", "x", loglevel.Info, "src", cur)
		cur = cur.Add(time.Second)
	}
	s.Tick(cur)

	p, _ := s.Get(sig)
	if p.Trend != TrendUp {
		t.Errorf("Trend = %v, want Up (rate_1m %v vs rate_5m %v)", p.Trend, p.Rate1m, p.Rate5m)
	}
}

func TestClearCountsKeepsIdentity(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("<TS> boot")

	s.Ingest(sig, "<TS> boot", "2024 boot", loglevel.Info, "src", base)
	s.ClearCounts(base.Add(time.Minute))

	p, ok := s.Get(sig)
	if !ok {
		t.Fatal("ClearCounts must keep the pattern, only zero its counters")
	}
	if p.CountTotal != 0 {
		t.Errorf("CountTotal after ClearCounts = %d, want 0", p.CountTotal)
	}
	if p.Canonical != "<TS> boot" || p.Exemplar != "2024 boot" {
		t.Error("ClearCounts must not change canonical/exemplar identity")
	}
}

func TestResetDropsAllPatterns(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	s.Ingest(Hash("a"), "a", "a", loglevel.Info, "src", base)
	s.Ingest(Hash("b"), "b", "b", loglevel.Info, "src", base)

	s.Reset()

	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", s.Len())
	}
}

func TestSnapshotOrdering(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)

	hot := Hash("hot")
	cold := Hash("cold")
	s.Ingest(hot, "hot", "hot", loglevel.Info, "src", base)
	s.Ingest(hot, "hot", "hot", loglevel.Info, "src", base.Add(time.Second))
	s.Ingest(hot, "hot", "hot", loglevel.Info, "src", base.Add(2*time.Second))
	s.Ingest(cold, "cold", "cold", loglevel.Info, "src", base)

	s.Tick(base.Add(3 * time.Second))

	snaps := s.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("Snapshot length = %d, want 2", len(snaps))
	}
	if snaps[0].Canonical != "hot" {
		t.Errorf("Snapshot()[0].Canonical = %q, want %q (higher rate_1m first)", snaps[0].Canonical, "hot")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := NewStore(Config{})
	base := time.Unix(1_700_000_000, 0)
	sig := Hash("x")
	s.Ingest(sig, "x", "x", loglevel.Info, "src-a", base)

	snaps := s.Snapshot()
	snaps[0].Sources["src-a"] = 999

	p, _ := s.Get(sig)
	if p.sources["src-a"] == 999 {
		t.Error("mutating a Snapshot's Sources map must not affect live pattern state")
	}
}

func TestSparklineGlyphsSoftCap(t *testing.T) {
	p := newPattern(Hash("x"), "x", "x", time.Unix(0, 0))
	p.sparklineBuckets[20] = 1
	p.sparklineBuckets[21] = 2
	p.sparklineBuckets[22] = 3
	p.sparklineBuckets[23] = 100 // far above 3x mean, must clamp to glyph 7

	glyphs, live := p.SparklineGlyphs()
	if glyphs[23] != 7 {
		t.Errorf("glyphs[23] = %d, want 7 (clamped)", glyphs[23])
	}
	if live {
		t.Error("live should be false: currentBucketCount is 0")
	}
}
