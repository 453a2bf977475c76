package intel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Signal windows. Pattern evidence ages out fast, historical context slowly.
const (
	patternWindow  = 6 * time.Hour
	tensionWindow  = 24 * time.Hour
	historyWindow  = 7 * 24 * time.Hour
	newsMatchScale = 3  // title matches for a full correlation score
	tensionScale   = 20 // news events per day for full tension
	historyScale   = 20 // anomalies per week for full history score
)

// SignalStore is the persistence surface the signal source reads from.
type SignalStore interface {
	AnomaliesSince(ctx context.Context, since time.Time) ([]Anomaly, error)
	ActiveFormations(ctx context.Context) ([]formation.Formation, error)
	NewsEventsSince(ctx context.Context, since time.Time) ([]alerts.NewsEvent, error)
	LatestPositions(ctx context.Context) ([]model.Position, error)
}

// ContextScorer assesses a point against the geographic context layers.
type ContextScorer interface {
	Score(ctx context.Context, lat, lon float64, altitudeFt *float64) (*geocontext.Assessment, error)
}

// Signals derives the six threat components from stored activity.
type Signals struct {
	store  SignalStore
	scorer ContextScorer
	clock  timeutil.Clock
}

// NewSignals builds a Signals source. A nil clock falls back to the real one.
func NewSignals(store SignalStore, scorer ContextScorer, clock timeutil.Clock) *Signals {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Signals{store: store, scorer: scorer, clock: clock}
}

// entityAnomalies returns the entity's anomalies inside the window. For
// non-aircraft entities every anomaly in the window counts.
func (s *Signals) entityAnomalies(ctx context.Context, entityType, entityID string, window time.Duration) ([]Anomaly, error) {
	since := s.clock.Now().Add(-window)
	all, err := s.store.AnomaliesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("signals: load anomalies: %w", err)
	}
	if entityType != "aircraft" {
		return all, nil
	}
	var out []Anomaly
	for _, a := range all {
		if a.Hex == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

// PatternAnomalyScore is the strongest calibrated anomaly severity for the
// entity over the last few hours.
func (s *Signals) PatternAnomalyScore(ctx context.Context, entityType, entityID string) (float64, error) {
	list, err := s.entityAnomalies(ctx, entityType, entityID, patternWindow)
	if err != nil {
		return 0, err
	}
	var max float64
	for _, a := range list {
		if a.Severity > max {
			max = a.Severity
		}
	}
	return max, nil
}

// RegionalTensionScore tracks overall news volume over the last day.
func (s *Signals) RegionalTensionScore(ctx context.Context) (float64, error) {
	events, err := s.store.NewsEventsSince(ctx, s.clock.Now().Add(-tensionWindow))
	if err != nil {
		return 0, fmt.Errorf("signals: load news: %w", err)
	}
	score := float64(len(events)) / tensionScale
	if score > 1 {
		score = 1
	}
	return score, nil
}

// NewsCorrelationScore counts recent headlines mentioning the entity.
func (s *Signals) NewsCorrelationScore(ctx context.Context, entityType, entityID string) (float64, error) {
	events, err := s.store.NewsEventsSince(ctx, s.clock.Now().Add(-tensionWindow))
	if err != nil {
		return 0, fmt.Errorf("signals: load news: %w", err)
	}
	needle := strings.ToLower(entityID)
	if needle == "" {
		return 0, nil
	}
	matches := 0
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Title), needle) {
			matches++
		}
	}
	score := float64(matches) / newsMatchScale
	if score > 1 {
		score = 1
	}
	return score, nil
}

// HistoricalContextScore measures how often the entity has been anomalous
// over the last week.
func (s *Signals) HistoricalContextScore(ctx context.Context, entityType, entityID string) (float64, error) {
	list, err := s.entityAnomalies(ctx, entityType, entityID, historyWindow)
	if err != nil {
		return 0, err
	}
	score := float64(len(list)) / historyScale
	if score > 1 {
		score = 1
	}
	return score, nil
}

// FormationActivityScore is the best confidence of any active formation the
// entity belongs to; for non-aircraft entities, overall formation volume.
func (s *Signals) FormationActivityScore(ctx context.Context, entityType, entityID string) (float64, error) {
	formations, err := s.store.ActiveFormations(ctx)
	if err != nil {
		return 0, fmt.Errorf("signals: load formations: %w", err)
	}
	if entityType != "aircraft" {
		score := float64(len(formations)) / 5
		if score > 1 {
			score = 1
		}
		return score, nil
	}
	var best float64
	for _, f := range formations {
		for _, hex := range f.Aircraft {
			if hex == entityID && f.Confidence > best {
				best = f.Confidence
			}
		}
	}
	return best, nil
}

// LocationContextScore assesses the entity's last known position against
// infrastructure, airspace and hot zones. Unknown position scores zero.
func (s *Signals) LocationContextScore(ctx context.Context, entityType, entityID string) (float64, error) {
	if entityType != "aircraft" || s.scorer == nil {
		return 0, nil
	}
	positions, err := s.store.LatestPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("signals: load positions: %w", err)
	}
	for _, p := range positions {
		if p.Hex != entityID {
			continue
		}
		assessment, err := s.scorer.Score(ctx, p.Lat, p.Lon, p.AltitudeFt)
		if err != nil {
			return 0, fmt.Errorf("signals: score location: %w", err)
		}
		return assessment.Combined, nil
	}
	return 0, nil
}
