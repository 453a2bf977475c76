package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/archive"
	"github.com/skywatch-data/skywatch/internal/calibration"
	"github.com/skywatch-data/skywatch/internal/config"
	"github.com/skywatch-data/skywatch/internal/feeds"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/geofence"
	"github.com/skywatch-data/skywatch/internal/intel"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/news"
	"github.com/skywatch-data/skywatch/internal/patterns"
	"github.com/skywatch-data/skywatch/internal/playback"
	"github.com/skywatch-data/skywatch/internal/predict"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/proximity"
	"github.com/skywatch-data/skywatch/internal/store"
	"github.com/skywatch-data/skywatch/internal/timeutil"
	"github.com/skywatch-data/skywatch/internal/trackgeom"
)

// flightCloseAfter is how long a track must be silent before its flight is
// considered over and the profile learns from it.
const flightCloseAfter = 10 * time.Minute

// intentNearbyNM bounds the neighborhood considered for intent
// classification.
const intentNearbyNM = 30.0

// pipeline owns the engine's periodic work: every scheduler job is one of
// its tick methods.
type pipeline struct {
	store   *store.Store
	agg     *aggregator.Aggregator
	opensky *feeds.OpenSkyClient // optional supplemental source
	region  aggregator.BoundingBox
	focus   []aggregator.FocusArea

	formations *formation.Monitor
	conflicts  *proximity.Monitor
	fences     *geofence.Monitor
	profiler   *profile.Profiler
	forecasts  *predict.Runner
	validator  *predict.Validator
	zones      *geocontext.Refresher
	calibrator *calibration.Calibrator
	engine     *intel.Engine
	alerts     *alerts.Generator
	news       *news.Ingestor

	frames *playback.Archive // optional local frame archive
	sink   *archive.Sink     // optional long-term archive

	tuning *config.TuningConfig
	clock  timeutil.Clock
}

func strPtr(s string) *string { return &s }

// recordPosition converts an upstream record to a stored position sample.
func recordPosition(rec feeds.Record, at time.Time) (model.Position, bool) {
	if !rec.HasPosition() {
		return model.Position{}, false
	}

	sampleTime := at
	if rec.SeenPos != nil {
		sampleTime = at.Add(-time.Duration(*rec.SeenPos * float64(time.Second)))
	}
	source := "unknown"
	if len(rec.Sources) > 0 {
		source = strings.Join(rec.Sources, "+")
	}
	var age float64
	if rec.Seen != nil {
		age = *rec.Seen
	}

	alt := rec.AltBaro
	if alt == nil {
		alt = rec.AltGeom
	}

	p := model.Position{
		Hex:          rec.Hex,
		Time:         sampleTime,
		Lat:          *rec.Lat,
		Lon:          *rec.Lon,
		AltitudeFt:   alt,
		GroundSpeed:  rec.GS,
		Track:        rec.Track,
		VerticalRate: rec.BaroRate,
		Source:       source,
		AgeSeconds:   age,
	}
	if err := p.Validate(); err != nil {
		monitoring.Logf("ingest: dropping %s: %v", rec.Hex, err)
		return model.Position{}, false
	}
	return p, true
}

// ingestTick pulls every upstream, persists the military picture and
// forwards the batch to the optional archives.
func (p *pipeline) ingestTick(ctx context.Context) error {
	snap := p.agg.FetchTick(ctx)
	if len(snap.Records) == 0 && len(snap.SourceErrors) > 0 {
		return fmt.Errorf("ingest: every upstream failed: %v", snap.SourceErrors)
	}

	// Supplemental bounding-box source, filtered through the same
	// classifier as everything else.
	if p.opensky != nil {
		recs, err := p.opensky.StatesAll(ctx, p.region.LatMin, p.region.LonMin, p.region.LatMax, p.region.LonMax)
		if err != nil {
			monitoring.Logf("ingest: opensky: %v", err)
		}
		for _, rec := range recs {
			if _, seen := snap.Records[rec.Hex]; seen {
				continue
			}
			cls := aggregator.Classify(&rec)
			if !cls.IsMilitary {
				continue
			}
			snap.Records[rec.Hex] = rec
			snap.Classified[rec.Hex] = cls
		}
	}

	var batch []model.Position
	for hex, rec := range snap.Records {
		cls := snap.Classified[hex]
		if !cls.IsMilitary {
			continue
		}

		a := &model.Aircraft{
			Hex:              hex,
			Registration:     rec.Reg,
			TypeCode:         rec.Type,
			Operator:         rec.Operator,
			IsMilitary:       true,
			MilitaryCategory: strPtr(string(cls.Category)),
			FirstSeen:        snap.FetchedAt,
			LastSeen:         snap.FetchedAt,
		}
		if cls.Country != "" {
			a.Country = strPtr(cls.Country)
		}
		if err := p.store.UpsertAircraft(ctx, a); err != nil {
			return fmt.Errorf("ingest: upsert %s: %w", hex, err)
		}

		if pos, ok := recordPosition(rec, snap.FetchedAt); ok {
			batch = append(batch, pos)
		}
	}

	if len(batch) == 0 {
		return nil
	}
	if err := p.store.InsertPositions(ctx, batch); err != nil {
		return fmt.Errorf("ingest: insert positions: %w", err)
	}
	if err := p.sink.WritePositions(ctx, batch); err != nil {
		monitoring.Logf("ingest: archive write failed: %v", err)
	}
	if p.frames != nil {
		frame := playback.Frame{Time: snap.FetchedAt, Aircraft: batch}
		if err := p.frames.WriteFrame(ctx, frame); err != nil {
			monitoring.Logf("ingest: frame write failed: %v", err)
		}
	}
	return nil
}

func toPoints(positions []model.Position) []trackgeom.Point {
	pts := make([]trackgeom.Point, len(positions))
	for i, pos := range positions {
		pts[i] = trackgeom.Point{
			Lat:      pos.Lat,
			Lon:      pos.Lon,
			Time:     pos.Time,
			Heading:  pos.Track,
			Altitude: pos.AltitudeFt,
		}
	}
	return pts
}

// flightsTick manages flight lifecycles: fresh contacts open flights,
// long-silent ones are closed, classified, learned from and checked for
// anomalies.
func (p *pipeline) flightsTick(ctx context.Context) error {
	now := p.clock.Now()
	tracks, err := p.store.LatestMilitaryTracks(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("flights: load tracks: %w", err)
	}

	for _, t := range tracks {
		age := now.Sub(t.Time)
		switch {
		case age <= p.tuning.GetStaleAfter():
			f, err := p.store.OpenFlightFor(ctx, t.Hex)
			if err != nil {
				return fmt.Errorf("flights: lookup %s: %w", t.Hex, err)
			}
			if f == nil {
				if _, err := p.store.OpenFlight(ctx, t.Hex, t.Time); err != nil {
					return fmt.Errorf("flights: open %s: %w", t.Hex, err)
				}
			} else if err := p.refreshFlightPattern(ctx, f); err != nil {
				monitoring.Logf("flights: pattern %s: %v", t.Hex, err)
			}

		case age >= flightCloseAfter:
			f, err := p.store.OpenFlightFor(ctx, t.Hex)
			if err != nil {
				return fmt.Errorf("flights: lookup %s: %w", t.Hex, err)
			}
			if f == nil {
				continue
			}
			if err := p.closeFlight(ctx, f, t, tracks); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshFlightPattern re-runs pattern detection over an open flight so the
// live picture carries a current classification before the flight closes.
func (p *pipeline) refreshFlightPattern(ctx context.Context, f *model.Flight) error {
	positions, err := p.store.PositionsSince(ctx, f.Hex, f.DepartureTime)
	if err != nil {
		return err
	}
	detections, err := patterns.Detect(toPoints(positions))
	if err != nil {
		// Not enough track yet.
		return nil
	}
	primary := patterns.Primary(detections)
	if f.DetectedPattern != nil && *f.DetectedPattern == primary {
		return nil
	}
	return p.store.SetFlightPattern(ctx, f.ID, primary)
}

func (p *pipeline) closeFlight(ctx context.Context, f *model.Flight, t store.MilitaryTrack, tracks []store.MilitaryTrack) error {
	positions, err := p.store.PositionsSince(ctx, f.Hex, f.DepartureTime)
	if err != nil {
		return fmt.Errorf("flights: track %s: %w", f.Hex, err)
	}

	var pattern *string
	if detections, err := patterns.Detect(toPoints(positions)); err == nil {
		pattern = strPtr(patterns.Primary(detections))
	}

	if err := p.store.CloseFlight(ctx, f.ID, t.Time, pattern); err != nil {
		return fmt.Errorf("flights: close %s: %w", f.Hex, err)
	}

	if _, err := p.profiler.ApplyUpdate(ctx, profile.Update{
		Hex:           f.Hex,
		TypeCode:      t.TypeCode,
		Positions:     positions,
		Pattern:       pattern,
		DepartureTime: &f.DepartureTime,
	}); err != nil {
		return fmt.Errorf("flights: profile %s: %w", f.Hex, err)
	}

	var category aggregator.Category
	if t.Category != nil {
		category = aggregator.Category(*t.Category)
	}
	if _, err := p.engine.ClassifyIntent(ctx, f.Hex, &f.ID, category, pattern,
		nearbyAircraft(tracks, t, intentNearbyNM)); err != nil {
		monitoring.Logf("flights: intent %s: %v", f.Hex, err)
	}

	if _, err := p.engine.DetectAnomalies(ctx, f.Hex, &f.ID, positions, pattern); err != nil {
		monitoring.Logf("flights: anomaly check %s: %v", f.Hex, err)
	}
	return nil
}

// nearbyAircraft lists the live tracks within radiusNM of self.
func nearbyAircraft(tracks []store.MilitaryTrack, self store.MilitaryTrack, radiusNM float64) []intel.NearbyAircraft {
	var out []intel.NearbyAircraft
	for _, t := range tracks {
		if t.Hex == self.Hex {
			continue
		}
		d, err := geo.DistanceNM(self.Lat, self.Lon, t.Lat, t.Lon)
		if err != nil || d > radiusNM {
			continue
		}
		var category aggregator.Category
		if t.Category != nil {
			category = aggregator.Category(*t.Category)
		}
		out = append(out, intel.NearbyAircraft{Hex: t.Hex, Category: category, DistanceNM: d})
	}
	return out
}

func (p *pipeline) liveTracks(ctx context.Context) ([]store.MilitaryTrack, error) {
	return p.store.LatestMilitaryTracks(ctx, p.clock.Now().Add(-p.tuning.GetStaleAfter()))
}

// formationSnapshot converts live tracks to detection input, attaching each
// open flight's detected pattern so the orbit-dependent rules can fire.
func formationSnapshot(tracks []store.MilitaryTrack, livePatterns map[string]string) []formation.SnapshotAircraft {
	snapshot := make([]formation.SnapshotAircraft, 0, len(tracks))
	for _, t := range tracks {
		var category aggregator.Category
		if t.Category != nil {
			category = aggregator.Category(*t.Category)
		}
		a := formation.SnapshotAircraft{
			Hex:         t.Hex,
			TypeCode:    t.TypeCode,
			Category:    category,
			Lat:         t.Lat,
			Lon:         t.Lon,
			AltitudeFt:  t.AltitudeFt,
			GroundSpeed: t.GroundSpeed,
			Track:       t.Track,
		}
		if pattern, ok := livePatterns[t.Hex]; ok {
			a.RecentPattern = strPtr(pattern)
		}
		snapshot = append(snapshot, a)
	}
	return snapshot
}

// formationTick runs formation detection over the live picture.
func (p *pipeline) formationTick(ctx context.Context) error {
	tracks, err := p.liveTracks(ctx)
	if err != nil {
		return fmt.Errorf("formations: load tracks: %w", err)
	}
	livePatterns, err := p.store.OpenFlightPatterns(ctx)
	if err != nil {
		return fmt.Errorf("formations: load patterns: %w", err)
	}

	detections, err := p.formations.Process(ctx, formationSnapshot(tracks, livePatterns))
	if err != nil {
		return fmt.Errorf("formations: %w", err)
	}
	if _, err := p.alerts.FormationAlerts(ctx, detections); err != nil {
		return fmt.Errorf("formations: alerts: %w", err)
	}
	return nil
}

// proximityTick runs pairwise conflict analysis over the live picture.
func (p *pipeline) proximityTick(ctx context.Context) error {
	tracks, err := p.liveTracks(ctx)
	if err != nil {
		return fmt.Errorf("proximity: load tracks: %w", err)
	}

	targets := make([]proximity.Target, 0, len(tracks))
	for _, t := range tracks {
		targets = append(targets, proximity.Target{
			Hex:         t.Hex,
			Lat:         t.Lat,
			Lon:         t.Lon,
			AltitudeFt:  t.AltitudeFt,
			GroundSpeed: t.GroundSpeed,
			Track:       t.Track,
		})
	}

	if _, err := p.conflicts.Process(ctx, targets); err != nil {
		return fmt.Errorf("proximity: %w", err)
	}
	return nil
}

// geofenceTick evaluates every live position against the fences.
func (p *pipeline) geofenceTick(ctx context.Context) error {
	tracks, err := p.liveTracks(ctx)
	if err != nil {
		return fmt.Errorf("geofences: load tracks: %w", err)
	}

	positions := make([]model.Position, len(tracks))
	categories := make(map[string]aggregator.Category, len(tracks))
	for i, t := range tracks {
		positions[i] = t.Position
		if t.Category != nil {
			categories[t.Hex] = aggregator.Category(*t.Category)
		}
	}

	if _, err := p.fences.Evaluate(ctx, positions, categories); err != nil {
		return fmt.Errorf("geofences: %w", err)
	}
	return nil
}

// predictionTick forecasts every moving track.
func (p *pipeline) predictionTick(ctx context.Context) error {
	tracks, err := p.liveTracks(ctx)
	if err != nil {
		return fmt.Errorf("predictions: load tracks: %w", err)
	}

	inputs := make([]predict.Input, 0, len(tracks))
	profiles := make(map[string]*profile.Profile, len(tracks))
	for _, t := range tracks {
		inputs = append(inputs, predict.Input{
			Hex:          t.Hex,
			Time:         t.Time,
			Lat:          t.Lat,
			Lon:          t.Lon,
			AltitudeFt:   t.AltitudeFt,
			GroundSpeed:  t.GroundSpeed,
			Track:        t.Track,
			VerticalRate: t.VerticalRate,
		})
		prof, err := p.store.GetProfile(ctx, t.Hex)
		if err != nil {
			return fmt.Errorf("predictions: profile %s: %w", t.Hex, err)
		}
		if prof != nil {
			profiles[t.Hex] = prof
		}
	}

	if err := p.forecasts.ForecastAll(ctx, inputs, profiles); err != nil {
		return fmt.Errorf("predictions: %w", err)
	}
	return nil
}

// validationTick scores due predictions against what actually happened.
func (p *pipeline) validationTick(ctx context.Context) error {
	if _, err := p.validator.Run(ctx); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// zonesTick rebuilds the activity hot zones.
func (p *pipeline) zonesTick(ctx context.Context) error {
	if _, err := p.zones.Refresh(ctx); err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	return nil
}

// calibrationTick retrains the severity calibrator from verified outcomes.
func (p *pipeline) calibrationTick(ctx context.Context) error {
	if _, err := p.calibrator.Train(ctx, intel.TaskAnomaly); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	return nil
}

// newsTick pulls the configured news regions.
func (p *pipeline) newsTick(ctx context.Context) error {
	if p.news == nil {
		return nil
	}
	return p.news.Run(ctx)
}

// threatTick reassesses every aircraft that produced a recent anomaly and
// escalates when multiple high-severity alerts are standing.
func (p *pipeline) threatTick(ctx context.Context) error {
	now := p.clock.Now()
	anomalies, err := p.store.AnomaliesSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("threats: load anomalies: %w", err)
	}

	seen := map[string]bool{}
	for _, a := range anomalies {
		if seen[a.Hex] {
			continue
		}
		seen[a.Hex] = true
		if _, err := p.engine.AssessThreat(ctx, "aircraft", a.Hex); err != nil {
			return fmt.Errorf("threats: assess %s: %w", a.Hex, err)
		}
	}

	standing, err := p.store.AlertsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("threats: load alerts: %w", err)
	}
	if _, err := p.alerts.FlashAlert(ctx, standing); err != nil {
		return fmt.Errorf("threats: flash: %w", err)
	}
	return nil
}

// strategicTick looks for strategic type concentrations and focus-area
// activity spikes in the live picture.
func (p *pipeline) strategicTick(ctx context.Context) error {
	tracks, err := p.liveTracks(ctx)
	if err != nil {
		return fmt.Errorf("strategic: load tracks: %w", err)
	}

	typeCounts := map[string][]string{}
	for _, t := range tracks {
		if t.TypeCode != nil {
			typeCounts[*t.TypeCode] = append(typeCounts[*t.TypeCode], t.Hex)
		}
	}
	if _, err := p.alerts.StrategicAlerts(ctx, typeCounts); err != nil {
		return fmt.Errorf("strategic: alerts: %w", err)
	}

	for _, area := range p.focus {
		var hexes []string
		for _, t := range tracks {
			d, err := geo.DistanceNM(area.Lat, area.Lon, t.Lat, t.Lon)
			if err != nil {
				continue
			}
			if d <= area.RadiusNM {
				hexes = append(hexes, t.Hex)
			}
		}
		if _, err := p.alerts.SpikeAlert(ctx, area.Name, hexes); err != nil {
			return fmt.Errorf("strategic: spike %s: %w", area.Name, err)
		}
	}
	return nil
}

// retentionTick prunes aged position history and playback frames.
func (p *pipeline) retentionTick(ctx context.Context) error {
	now := p.clock.Now()
	cutoff := now.AddDate(0, 0, -p.tuning.GetPositionRetentionDays())
	if n, err := p.store.PrunePositions(ctx, cutoff); err != nil {
		return fmt.Errorf("retention: positions: %w", err)
	} else if n > 0 {
		monitoring.Logf("retention: pruned %d positions", n)
	}

	if p.frames != nil {
		frameCutoff := now.AddDate(0, 0, -p.tuning.GetFrameArchiveRetentionDays())
		if _, err := p.frames.Prune(ctx, frameCutoff); err != nil {
			return fmt.Errorf("retention: frames: %w", err)
		}
	}
	return nil
}
