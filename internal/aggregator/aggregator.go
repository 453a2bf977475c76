// Package aggregator merges aircraft positions from several upstream ADS-B
// feeds into a single deduplicated set keyed by ICAO hex, reclassifies the
// military flag with its own rule engine, and filters to the region of
// interest. It exclusively owns the in-flight merge map; downstream
// components only ever see the finished snapshot.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skywatch-data/skywatch/internal/feeds"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// MilitarySource is an upstream with a bulk military endpoint.
type MilitarySource interface {
	Name() string
	HasMilitaryEndpoint() bool
	Military(ctx context.Context) ([]feeds.Record, error)
}

// PointSource is an upstream that supports point-radius queries.
type PointSource interface {
	Name() string
	Priority() int
	SupportsPointQueries() bool
	PointRadius(ctx context.Context, lat, lon, radiusNM float64) ([]feeds.Record, error)
}

// HexSource is an upstream that supports per-hex lookups.
type HexSource interface {
	Name() string
	ByHex(ctx context.Context, hex string) (*feeds.Record, error)
}

// FocusArea is a fixed point-radius query issued every tick on top of the
// bulk military fetches.
type FocusArea struct {
	Name     string
	Lat      float64
	Lon      float64
	RadiusNM float64
}

// BoundingBox is the geographic region of interest.
type BoundingBox struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Contains reports whether a record's position falls inside the box. A
// record without a position is kept; the position invariant is enforced at
// the store boundary.
func (b BoundingBox) Contains(rec *feeds.Record) bool {
	if b == (BoundingBox{}) {
		return true
	}
	if !rec.HasPosition() {
		return true
	}
	return *rec.Lat >= b.LatMin && *rec.Lat <= b.LatMax &&
		*rec.Lon >= b.LonMin && *rec.Lon <= b.LonMax
}

// Config holds the aggregator's construction-time settings.
type Config struct {
	FocusAreas  []FocusArea
	Region      BoundingBox
	HexCacheTTL time.Duration
}

// Aggregator fans out to all enabled upstreams and owns the merge.
type Aggregator struct {
	military []MilitarySource
	point    PointSource // highest-priority point-capable upstream
	hex      HexSource
	cfg      Config
	clock    timeutil.Clock

	mu       sync.Mutex
	hexCache map[string]hexCacheEntry
}

type hexCacheEntry struct {
	rec     *feeds.Record
	fetched time.Time
}

// Snapshot is the result of one aggregation tick.
type Snapshot struct {
	Records      map[string]feeds.Record // keyed by ICAO hex
	Classified   map[string]Classification
	FetchedAt    time.Time
	SourceErrors map[string]error
}

// New constructs an Aggregator. The highest-priority point-capable source
// is selected for focus-area queries; hexSource may be nil.
func New(sources []MilitarySource, pointCapable []PointSource, hexSource HexSource, cfg Config, clock timeutil.Clock) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.HexCacheTTL == 0 {
		cfg.HexCacheTTL = 60 * time.Second
	}

	var best PointSource
	for _, p := range pointCapable {
		if !p.SupportsPointQueries() {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}

	return &Aggregator{
		military: sources,
		point:    best,
		hex:      hexSource,
		cfg:      cfg,
		clock:    clock,
		hexCache: make(map[string]hexCacheEntry),
	}
}

type fetchResult struct {
	source  string
	order   int
	records []feeds.Record
	err     error
}

// FetchTick queries every upstream with a military endpoint plus the focus
// areas, in parallel, and merges the results. Any single upstream failure
// is logged and skipped; the tick succeeds as long as at least one upstream
// returned. A complete failure yields an empty snapshot with the errors
// attached, leaving previously stored state untouched.
func (a *Aggregator) FetchTick(ctx context.Context) Snapshot {
	var wg sync.WaitGroup
	results := make(chan fetchResult, len(a.military)+len(a.cfg.FocusAreas))

	order := 0
	for _, src := range a.military {
		if !src.HasMilitaryEndpoint() {
			continue
		}
		wg.Add(1)
		go func(src MilitarySource, order int) {
			defer wg.Done()
			recs, err := src.Military(ctx)
			results <- fetchResult{source: src.Name(), order: order, records: recs, err: err}
		}(src, order)
		order++
	}

	if a.point != nil {
		for _, fa := range a.cfg.FocusAreas {
			wg.Add(1)
			go func(fa FocusArea, order int) {
				defer wg.Done()
				recs, err := a.point.PointRadius(ctx, fa.Lat, fa.Lon, fa.RadiusNM)
				results <- fetchResult{source: a.point.Name() + "/" + fa.Name, order: order, records: recs, err: err}
			}(fa, order)
			order++
		}
	}

	wg.Wait()
	close(results)

	collected := make([]fetchResult, 0, order)
	errs := make(map[string]error)
	for r := range results {
		if r.err != nil {
			monitoring.Logf("aggregator: upstream %s failed: %v", r.source, r.err)
			errs[r.source] = r.err
			continue
		}
		collected = append(collected, r)
	}
	// Merge deterministically in configuration order so the left-bias of
	// the merge policy is stable across ticks.
	sort.Slice(collected, func(i, j int) bool { return collected[i].order < collected[j].order })

	merged := make(map[string]feeds.Record)
	for _, r := range collected {
		for _, rec := range r.records {
			rec.PromoteLastPosition()
			if existing, ok := merged[rec.Hex]; ok {
				merged[rec.Hex] = MergeRecords(existing, rec)
			} else {
				merged[rec.Hex] = rec
			}
		}
	}

	// Reclassify and filter after the merge settles.
	classified := make(map[string]Classification, len(merged))
	for hex, rec := range merged {
		if !a.cfg.Region.Contains(&rec) {
			delete(merged, hex)
			continue
		}
		cl := Classify(&rec)
		rec.Mil = cl.IsMilitary
		merged[hex] = rec
		classified[hex] = cl
	}

	return Snapshot{
		Records:      merged,
		Classified:   classified,
		FetchedAt:    a.clock.Now(),
		SourceErrors: errs,
	}
}

// LookupHex resolves a single aircraft, serving repeated lookups for the
// same hex from a 60 second cache.
func (a *Aggregator) LookupHex(ctx context.Context, hex string) (*feeds.Record, error) {
	if a.hex == nil {
		return nil, nil
	}
	hex = feeds.NormalizeHex(hex)

	a.mu.Lock()
	if entry, ok := a.hexCache[hex]; ok && a.clock.Since(entry.fetched) < a.cfg.HexCacheTTL {
		a.mu.Unlock()
		return entry.rec, nil
	}
	a.mu.Unlock()

	rec, err := a.hex.ByHex(ctx, hex)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.hexCache[hex] = hexCacheEntry{rec: rec, fetched: a.clock.Now()}
	a.mu.Unlock()
	return rec, nil
}
