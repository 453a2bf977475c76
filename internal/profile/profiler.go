package profile

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Store is the persistence surface the profiler needs. GetProfile returns
// (nil, nil) when no profile exists for the hex.
type Store interface {
	GetProfile(ctx context.Context, hex string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// Prior is a cold-start baseline applied to new profiles. A prior counts as
// three pseudo-observations so the first real flights still dominate quickly.
type Prior struct {
	PatternDist map[string]float64
	AltMean     float64
	AltStdDev   float64
	SpeedMean   float64
	SpeedStdDev float64
}

const priorSampleCount = 3

// DefaultPriors keys cold-start baselines by military category. Type codes
// resolve to a category through the aggregator's classification table.
var DefaultPriors = map[aggregator.Category]Prior{
	aggregator.CategoryTanker: {
		PatternDist: map[string]float64{
			model.PatternTankerTrack: 0.45, model.PatternRacetrack: 0.25,
			model.PatternOrbit: 0.10, model.PatternHolding: 0.05, model.PatternStraight: 0.15,
		},
		AltMean: 26000, AltStdDev: 4000, SpeedMean: 400, SpeedStdDev: 60,
	},
	aggregator.CategoryAWACS: {
		PatternDist: map[string]float64{
			model.PatternOrbit: 0.45, model.PatternRacetrack: 0.30,
			model.PatternHolding: 0.05, model.PatternTankerTrack: 0.05, model.PatternStraight: 0.15,
		},
		AltMean: 30000, AltStdDev: 4000, SpeedMean: 380, SpeedStdDev: 60,
	},
	aggregator.CategoryISR: {
		PatternDist: map[string]float64{
			model.PatternOrbit: 0.40, model.PatternRacetrack: 0.30,
			model.PatternHolding: 0.05, model.PatternTankerTrack: 0.05, model.PatternStraight: 0.20,
		},
		AltMean: 32000, AltStdDev: 8000, SpeedMean: 350, SpeedStdDev: 90,
	},
	aggregator.CategoryFighter: {
		PatternDist: map[string]float64{
			model.PatternStraight: 0.40, model.PatternOrbit: 0.25,
			model.PatternRacetrack: 0.20, model.PatternHolding: 0.10, model.PatternTankerTrack: 0.05,
		},
		AltMean: 22000, AltStdDev: 8000, SpeedMean: 450, SpeedStdDev: 120,
	},
	aggregator.CategoryTransport: {
		PatternDist: map[string]float64{
			model.PatternStraight: 0.70, model.PatternHolding: 0.15,
			model.PatternOrbit: 0.05, model.PatternRacetrack: 0.05, model.PatternTankerTrack: 0.05,
		},
		AltMean: 28000, AltStdDev: 5000, SpeedMean: 420, SpeedStdDev: 50,
	},
	aggregator.CategoryTrainer: {
		PatternDist: map[string]float64{
			model.PatternOrbit: 0.30, model.PatternRacetrack: 0.25,
			model.PatternHolding: 0.20, model.PatternStraight: 0.25,
		},
		AltMean: 15000, AltStdDev: 6000, SpeedMean: 300, SpeedStdDev: 80,
	},
}

// Update carries one flight's worth of new observations.
type Update struct {
	Hex           string
	TypeCode      *string
	Positions     []model.Position
	Pattern       *string
	DepartureTime *time.Time
}

// Deviation is one way the latest observations differ from the baseline.
type Deviation struct {
	Type     string  // altitude, speed, pattern, region, time
	Severity float64 // [0,1]
	Detected string
	Expected string
}

// Profiler owns profile reads and writes. Updates for the same aircraft are
// serialized on a per-hex mutex so concurrent flights cannot interleave the
// read-modify-write cycle.
type Profiler struct {
	store  Store
	priors map[aggregator.Category]Prior
	clock  timeutil.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Profiler. A nil priors map falls back to DefaultPriors; a nil
// clock falls back to the real one.
func New(store Store, priors map[aggregator.Category]Prior, clock timeutil.Clock) *Profiler {
	if priors == nil {
		priors = DefaultPriors
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Profiler{
		store:  store,
		priors: priors,
		clock:  clock,
		locks:  map[string]*sync.Mutex{},
	}
}

func (pr *Profiler) hexLock(hex string) *sync.Mutex {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	l, ok := pr.locks[hex]
	if !ok {
		l = &sync.Mutex{}
		pr.locks[hex] = l
	}
	return l
}

// GetOrCreate loads the profile for hex, creating it from a cold-start prior
// (or blank) when absent. The created profile is persisted before return.
func (pr *Profiler) GetOrCreate(ctx context.Context, hex string, typeCode *string) (*Profile, error) {
	hex = model.NormalizeHex(hex)
	if err := model.ValidateHex(hex); err != nil {
		return nil, err
	}

	existing, err := pr.store.GetProfile(ctx, hex)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", hex, err)
	}
	if existing != nil {
		return existing, nil
	}

	p := &Profile{
		Hex:         hex,
		PatternDist: map[string]float64{},
		UpdatedAt:   pr.clock.Now().UTC(),
	}
	if prior, ok := pr.lookupPrior(typeCode); ok {
		for k, v := range prior.PatternDist {
			p.PatternDist[k] = v
		}
		normalizeMap(p.PatternDist)
		p.Altitude.Seed(prior.AltMean, prior.AltStdDev)
		p.Speed.Seed(prior.SpeedMean, prior.SpeedStdDev)
		p.SampleCount = priorSampleCount
	}

	if err := pr.store.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile %s: %w", hex, err)
	}
	return p, nil
}

func (pr *Profiler) lookupPrior(typeCode *string) (Prior, bool) {
	if typeCode == nil {
		return Prior{}, false
	}
	cat := aggregator.CategoryForType(*typeCode)
	prior, ok := pr.priors[cat]
	return prior, ok
}

// ApplyUpdate folds one flight into the profile and persists it. Updates
// with fewer than two positions are rejected.
func (pr *Profiler) ApplyUpdate(ctx context.Context, upd Update) (*Profile, error) {
	if len(upd.Positions) < 2 {
		return nil, fmt.Errorf("profile update for %s needs at least 2 positions, got %d", upd.Hex, len(upd.Positions))
	}

	l := pr.hexLock(model.NormalizeHex(upd.Hex))
	l.Lock()
	defer l.Unlock()

	p, err := pr.GetOrCreate(ctx, upd.Hex, upd.TypeCode)
	if err != nil {
		return nil, err
	}

	stats := summarizePositions(upd.Positions)
	now := pr.clock.Now().UTC()

	if upd.Pattern != nil {
		updatePatternDist(p, *upd.Pattern)
	}
	updateRegions(p, stats.centroidLat, stats.centroidLon, stats.radiusNM)
	p.Altitude.Absorb(stats.altitudes)
	p.Speed.Absorb(stats.speeds)

	flightAt := now
	if upd.DepartureTime != nil {
		flightAt = upd.DepartureTime.UTC()
	}
	updateTimeSlots(p, flightAt)

	p.SampleCount++
	p.IsTrained = p.SampleCount >= TrainedSampleCount
	p.LastFlightAt = flightAt
	p.UpdatedAt = now

	if err := pr.store.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile %s: %w", p.Hex, err)
	}
	return p, nil
}

// patternLearningRate returns the EMA learning rate: aggressive while the
// profile is nearly empty, conservative after five flights.
func patternLearningRate(sampleCount int) float64 {
	if sampleCount < 5 {
		return 0.3
	}
	return 0.1
}

func updatePatternDist(p *Profile, pattern string) {
	lr := patternLearningRate(p.SampleCount)
	if p.PatternDist == nil {
		p.PatternDist = map[string]float64{}
	}
	if len(p.PatternDist) == 0 {
		for _, k := range model.PatternKeys {
			p.PatternDist[k] = 1 / float64(len(model.PatternKeys))
		}
	}
	if _, ok := p.PatternDist[pattern]; !ok {
		p.PatternDist[pattern] = 0
	}
	for k, v := range p.PatternDist {
		if k == pattern {
			p.PatternDist[k] = v*(1-lr) + lr
		} else {
			p.PatternDist[k] = v * (1 - lr)
		}
	}
	normalizeMap(p.PatternDist)
}

const regionMergeNM = 50.0

func updateRegions(p *Profile, lat, lon, radiusNM float64) {
	merged := false
	for i := range p.Regions {
		r := &p.Regions[i]
		d, err := geo.DistanceNM(r.CenterLat, r.CenterLon, lat, lon)
		if err == nil && d <= regionMergeNM {
			w := float64(r.Count)
			r.CenterLat = (r.CenterLat*w + lat) / (w + 1)
			r.CenterLon = (r.CenterLon*w + lon) / (w + 1)
			r.RadiusNM = math.Max(r.RadiusNM, radiusNM)
			r.Count++
			merged = true
			break
		}
	}
	if !merged {
		next := Region{CenterLat: lat, CenterLon: lon, RadiusNM: radiusNM, Count: 1}
		if len(p.Regions) < MaxRegions {
			p.Regions = append(p.Regions, next)
		} else {
			low := 0
			for i := range p.Regions {
				if p.Regions[i].Count < p.Regions[low].Count {
					low = i
				}
			}
			p.Regions[low] = next
		}
	}

	var total int
	for i := range p.Regions {
		total += p.Regions[i].Count
	}
	for i := range p.Regions {
		p.Regions[i].Frequency = float64(p.Regions[i].Count) / float64(total)
	}
}

const timeSlotLearningRate = 0.1

func updateTimeSlots(p *Profile, at time.Time) {
	if len(p.Hourly) != 24 {
		p.Hourly = uniformSlots(24)
	}
	if len(p.Daily) != 7 {
		p.Daily = uniformSlots(7)
	}
	bumpSlot(p.Hourly, at.UTC().Hour())
	bumpSlot(p.Daily, int(at.UTC().Weekday()))
}

func bumpSlot(slots []float64, idx int) {
	for i := range slots {
		if i == idx {
			slots[i] = slots[i]*(1-timeSlotLearningRate) + timeSlotLearningRate
		} else {
			slots[i] *= 1 - timeSlotLearningRate
		}
	}
	normalize(slots)
}

type positionSummary struct {
	centroidLat float64
	centroidLon float64
	radiusNM    float64
	altitudes   []float64
	speeds      []float64
}

func summarizePositions(positions []model.Position) positionSummary {
	var s positionSummary
	for _, p := range positions {
		s.centroidLat += p.Lat
		s.centroidLon += p.Lon
		if p.AltitudeFt != nil {
			s.altitudes = append(s.altitudes, *p.AltitudeFt)
		}
		if p.GroundSpeed != nil {
			s.speeds = append(s.speeds, *p.GroundSpeed)
		}
	}
	n := float64(len(positions))
	s.centroidLat /= n
	s.centroidLon /= n
	for _, p := range positions {
		d, err := geo.DistanceNM(s.centroidLat, s.centroidLon, p.Lat, p.Lon)
		if err != nil {
			continue
		}
		s.radiusNM = math.Max(s.radiusNM, d)
	}
	return s
}

// Deviation trigger constants.
const (
	zScoreTrigger     = 2.0
	zScoreSeverityCap = 5.0
	rarePatternFreq   = 0.1
	regionSlackNM     = 20.0
	regionSeverity    = 0.7
	rareHourActivity  = 0.02
	rareHourSeverity  = 0.5
)

// CheckDeviation compares fresh observations against the baseline. Untrained
// profiles return no deviations.
func (pr *Profiler) CheckDeviation(ctx context.Context, hex string, positions []model.Position, pattern *string) ([]Deviation, error) {
	hex = model.NormalizeHex(hex)
	p, err := pr.store.GetProfile(ctx, hex)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", hex, err)
	}
	if p == nil || !p.IsTrained {
		return nil, nil
	}
	if len(positions) == 0 {
		return nil, nil
	}

	stats := summarizePositions(positions)
	var out []Deviation

	if d, ok := zScoreDeviation("altitude", "ft", stats.altitudes, p.Altitude); ok {
		out = append(out, d)
	}
	if d, ok := zScoreDeviation("speed", "kt", stats.speeds, p.Speed); ok {
		out = append(out, d)
	}

	if pattern != nil && len(p.PatternDist) > 0 {
		freq := p.PatternDist[*pattern]
		if freq < rarePatternFreq {
			out = append(out, Deviation{
				Type:     "pattern",
				Severity: 1 - freq,
				Detected: *pattern,
				Expected: fmt.Sprintf("expected frequency %.3f", freq),
			})
		}
	}

	if len(p.Regions) > 0 && !withinTypicalRegion(p.Regions, stats.centroidLat, stats.centroidLon) {
		out = append(out, Deviation{
			Type:     "region",
			Severity: regionSeverity,
			Detected: fmt.Sprintf("%.3f,%.3f", stats.centroidLat, stats.centroidLon),
			Expected: fmt.Sprintf("within %d typical regions", len(p.Regions)),
		})
	}

	if len(p.Hourly) == 24 {
		hour := positions[len(positions)-1].Time.UTC().Hour()
		if p.Hourly[hour] < rareHourActivity {
			out = append(out, Deviation{
				Type:     "time",
				Severity: rareHourSeverity,
				Detected: fmt.Sprintf("hour %02dZ", hour),
				Expected: fmt.Sprintf("activity %.4f", p.Hourly[hour]),
			})
		}
	}

	return out, nil
}

func zScoreDeviation(kind, unit string, values []float64, baseline Stats) (Deviation, bool) {
	if len(values) == 0 || !baseline.Seeded || baseline.StdDev <= 0 {
		return Deviation{}, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	z := math.Abs(mean-baseline.Avg) / baseline.StdDev
	if z <= zScoreTrigger {
		return Deviation{}, false
	}
	return Deviation{
		Type:     kind,
		Severity: math.Min(z/zScoreSeverityCap, 1),
		Detected: fmt.Sprintf("%.0f %s", mean, unit),
		Expected: fmt.Sprintf("%.0f ± %.0f %s", baseline.Avg, baseline.StdDev, unit),
	}, true
}

func withinTypicalRegion(regions []Region, lat, lon float64) bool {
	for _, r := range regions {
		d, err := geo.DistanceNM(r.CenterLat, r.CenterLon, lat, lon)
		if err == nil && d <= r.RadiusNM+regionSlackNM {
			return true
		}
	}
	return false
}
