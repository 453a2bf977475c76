// Package alerts turns formation, activity and strategic signals into
// IntelligenceAlert records, suppresses duplicates inside a sliding window,
// and publishes everything emitted on the message bus.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"gonum.org/v1/gonum/floats"

	"github.com/skywatch-data/skywatch/internal/llm"

	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Alert types.
const (
	TypeFormation = "formation"
	TypeSpike     = "activity_spike"
	TypeStrategic = "strategic_movement"
	TypeNewsCorr  = "news_correlation"
	TypeFlash     = "flash"
)

// Severities, ordered.
const (
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// DedupWindow is the sliding window for (type, title) duplicate suppression.
const DedupWindow = 30 * time.Minute

// newsWindow is how far either side of now a news event may sit and still
// correlate with an alert.
const newsWindow = 6 * time.Hour

// Alert is one emitted intelligence alert. EventID is the stable identifier
// carried on the bus; ID is the row id.
type Alert struct {
	ID        int64
	EventID   string
	Type      string
	Title     string
	Details   string
	Severity  string
	Aircraft  []string
	Region    string
	NewsURL   string
	CreatedAt time.Time
}

// NewsEvent is the slice of a news record the generator needs.
type NewsEvent struct {
	URL      string
	Title    string
	SeenDate time.Time
}

// Store is the persistence surface for alerts.
type Store interface {
	InsertAlert(ctx context.Context, a *Alert) error
	// RecentAlertExists reports whether an alert with the same (type, title)
	// was emitted after the cutoff.
	RecentAlertExists(ctx context.Context, alertType, title string, cutoff time.Time) (bool, error)
}

// Publisher is the outbound bus surface; nats.Conn satisfies it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// SubjectPrefix namespaces bus subjects per alert type.
const SubjectPrefix = "skywatch.alerts."

// Config tunes the generator.
type Config struct {
	// SpikeBaselines maps region name to its baseline distinct-aircraft
	// count over a 10-minute window.
	SpikeBaselines map[string]float64
	// StrategicBombers and friends extend the built-in type lists.
	StrategicBombers []string
	StrategicTankers []string
	StrategicISR     []string
	Fighters         []string
	// News, when set, lets emit correlate each alert with recent news
	// before persisting it. The store satisfies it.
	News NewsSource
	// NewsKeywords extend the alert's region as correlation needles.
	NewsKeywords []string
	// Summarizer, when set, rewrites flash alert details into a short
	// narrative. llm.Client satisfies it.
	Summarizer Summarizer
	// Embedder, when set, backs similarity-based news correlation for
	// alerts no title keyword matches. llm.Client satisfies it.
	Embedder Embedder
}

// NewsSource loads recent news events for correlation.
type NewsSource interface {
	NewsEventsSince(ctx context.Context, since time.Time) ([]NewsEvent, error)
}

// Summarizer produces a prose summary from a prompt.
type Summarizer interface {
	Generate(ctx context.Context, prompt, mimeType string) (string, error)
}

// Embedder returns one vector per input text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

var (
	_ Summarizer = (*llm.Client)(nil)
	_ Embedder   = (*llm.Client)(nil)
)

var (
	defaultBombers = []string{"B52", "B1", "B2", "B21", "TU95", "TU160"}
	defaultTankers = []string{"KC135", "KC46", "KC10", "MRTT"}
	defaultISR     = []string{"RC135", "E3", "E8", "P8", "U2", "RQ4"}
	defaultFighter = []string{"F16", "F15", "F18", "F35", "F22", "EUFI", "RFAL"}
)

// Generator produces and routes alerts.
type Generator struct {
	store Store
	pub   Publisher
	cfg   Config
	clock timeutil.Clock
}

// New builds a Generator. The publisher may be nil, which disables bus
// output; a nil clock falls back to the real one.
func New(store Store, pub Publisher, cfg Config, clock timeutil.Clock) *Generator {
	if len(cfg.StrategicBombers) == 0 {
		cfg.StrategicBombers = defaultBombers
	}
	if len(cfg.StrategicTankers) == 0 {
		cfg.StrategicTankers = defaultTankers
	}
	if len(cfg.StrategicISR) == 0 {
		cfg.StrategicISR = defaultISR
	}
	if len(cfg.Fighters) == 0 {
		cfg.Fighters = defaultFighter
	}
	return &Generator{store: store, pub: pub, cfg: cfg, clock: clockOrReal(clock)}
}

func clockOrReal(c timeutil.Clock) timeutil.Clock {
	if c == nil {
		return timeutil.RealClock{}
	}
	return c
}

// emit runs duplicate suppression, persists and publishes one alert.
// Returns the alert, or nil when suppressed.
func (g *Generator) emit(ctx context.Context, a Alert) (*Alert, error) {
	now := g.clock.Now().UTC()
	dup, err := g.store.RecentAlertExists(ctx, a.Type, a.Title, now.Add(-DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("dedup check %s: %w", a.Title, err)
	}
	if dup {
		return nil, nil
	}

	g.correlateRecent(ctx, &a)

	a.EventID = uuid.NewString()
	a.CreatedAt = now
	if err := g.store.InsertAlert(ctx, &a); err != nil {
		return nil, fmt.Errorf("insert alert %s: %w", a.Title, err)
	}
	g.publish(&a)
	return &a, nil
}

func (g *Generator) publish(a *Alert) {
	if g.pub == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		monitoring.Logf("alerts: marshal %q: %v", a.Title, err)
		return
	}
	if err := g.pub.Publish(SubjectPrefix+a.Type, payload); err != nil {
		monitoring.Logf("alerts: publish %q: %v", a.Title, err)
	}
}

// FormationAlerts emits one alert per detection. Severity: strike packages
// of four or more are critical; strike packages, six-ship formations and
// tanker tracks are high; everything else medium.
func (g *Generator) FormationAlerts(ctx context.Context, detections []formation.Detection) ([]Alert, error) {
	var out []Alert
	for _, d := range detections {
		severity := SeverityMedium
		switch {
		case d.Type == formation.TypeStrikePackage && len(d.Aircraft) >= 4:
			severity = SeverityCritical
		case d.Type == formation.TypeStrikePackage || len(d.Aircraft) >= 6,
			d.Type == formation.TypeTankerReceiver:
			severity = SeverityHigh
		}

		a, err := g.emit(ctx, Alert{
			Type:     TypeFormation,
			Title:    fmt.Sprintf("%s formation, %d aircraft", d.Type, len(d.Aircraft)),
			Details:  fmt.Sprintf("confidence %.2f near %.2f,%.2f", d.Confidence, d.CenterLat, d.CenterLon),
			Severity: severity,
			Aircraft: d.Aircraft,
		})
		if err != nil {
			return out, err
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

// SpikeAlert checks a region's distinct military aircraft count over the
// last ten minutes against its baseline.
func (g *Generator) SpikeAlert(ctx context.Context, region string, hexes []string) (*Alert, error) {
	baseline := g.cfg.SpikeBaselines[region]
	if baseline <= 0 {
		return nil, nil
	}
	count := len(uniqueSorted(hexes))

	var severity string
	switch {
	case float64(count) >= 3*baseline && count >= 6:
		severity = SeverityCritical
	case float64(count) >= 2*baseline && count >= 4:
		severity = SeverityHigh
	default:
		return nil, nil
	}

	return g.emit(ctx, Alert{
		Type:     TypeSpike,
		Title:    fmt.Sprintf("activity spike over %s", region),
		Details:  fmt.Sprintf("%d distinct military aircraft in 10 min (baseline %.1f)", count, baseline),
		Severity: severity,
		Aircraft: uniqueSorted(hexes),
		Region:   region,
	})
}

// StrategicAlerts scans type-code counts of aircraft seen in the last ten
// minutes: two of a strategic type trips an alert, fighters need volume.
func (g *Generator) StrategicAlerts(ctx context.Context, typeCounts map[string][]string) ([]Alert, error) {
	var out []Alert
	scan := func(codes []string, min int, severity func(n int) string, label string) error {
		for _, code := range codes {
			hexes := typeCounts[code]
			if len(hexes) < min {
				continue
			}
			a, err := g.emit(ctx, Alert{
				Type:     TypeStrategic,
				Title:    fmt.Sprintf("%s movement: %d x %s", label, len(hexes), code),
				Severity: severity(len(hexes)),
				Aircraft: uniqueSorted(hexes),
			})
			if err != nil {
				return err
			}
			if a != nil {
				out = append(out, *a)
			}
		}
		return nil
	}

	if err := scan(g.cfg.StrategicBombers, 2, func(int) string { return SeverityCritical }, "bomber"); err != nil {
		return out, err
	}
	if err := scan(g.cfg.StrategicTankers, 2, func(int) string { return SeverityHigh }, "tanker"); err != nil {
		return out, err
	}
	if err := scan(g.cfg.StrategicISR, 2, func(int) string { return SeverityHigh }, "isr"); err != nil {
		return out, err
	}
	if err := scan(g.cfg.Fighters, 6, func(n int) string {
		if n >= 10 {
			return SeverityCritical
		}
		return SeverityHigh
	}, "fighter"); err != nil {
		return out, err
	}
	return out, nil
}

// embedSimilarityFloor is the cosine similarity below which a news title is
// not considered related to an alert.
const embedSimilarityFloor = 0.8

// correlateRecent attaches a related news event to the alert before it is
// persisted: title keyword matching first, embedding similarity as the
// fallback. Best effort; failures leave the alert unenriched.
func (g *Generator) correlateRecent(ctx context.Context, a *Alert) {
	if g.cfg.News == nil {
		return
	}
	now := g.clock.Now().UTC()
	events, err := g.cfg.News.NewsEventsSince(ctx, now.Add(-newsWindow))
	if err != nil {
		monitoring.Logf("alerts: load news for %q: %v", a.Title, err)
		return
	}
	if len(events) == 0 {
		return
	}
	if g.CorrelateNews(a, events, g.cfg.NewsKeywords) {
		return
	}
	g.correlateByEmbedding(ctx, a, events)
}

func (g *Generator) correlateByEmbedding(ctx context.Context, a *Alert, events []NewsEvent) {
	if g.cfg.Embedder == nil {
		return
	}
	texts := make([]string, 0, len(events)+1)
	texts = append(texts, strings.TrimSpace(a.Title+" "+a.Region))
	for _, ev := range events {
		texts = append(texts, ev.Title)
	}

	vecs, err := g.cfg.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if !errors.Is(err, llm.ErrProviderDisabled) {
			monitoring.Logf("alerts: embed news for %q: %v", a.Title, err)
		}
		return
	}
	if len(vecs) != len(texts) {
		return
	}

	best, bestSim := -1, embedSimilarityFloor
	for i := 1; i < len(vecs); i++ {
		if sim := cosine(vecs[0], vecs[i]); sim >= bestSim {
			best, bestSim = i-1, sim
		}
	}
	if best < 0 {
		return
	}
	a.NewsURL = events[best].URL
	a.Details = strings.TrimSpace(a.Details + " | related: " + events[best].Title)
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// CorrelateNews attaches the most relevant news event inside the +-6 h
// window whose title mentions the region or one of the keywords. The alert
// description is elevated in place.
func (g *Generator) CorrelateNews(a *Alert, events []NewsEvent, keywords []string) bool {
	if a == nil {
		return false
	}
	now := g.clock.Now().UTC()
	needles := append([]string{a.Region}, keywords...)
	for _, ev := range events {
		if ev.SeenDate.Before(now.Add(-newsWindow)) || ev.SeenDate.After(now.Add(newsWindow)) {
			continue
		}
		title := strings.ToLower(ev.Title)
		for _, needle := range needles {
			if needle == "" || !strings.Contains(title, strings.ToLower(needle)) {
				continue
			}
			a.NewsURL = ev.URL
			a.Details = strings.TrimSpace(a.Details + " | related: " + ev.Title)
			return true
		}
	}
	return false
}

// FlashAlert emits a composite alert when two or more critical or high
// alerts stand at once, summarizing the union of aircraft and regions.
func (g *Generator) FlashAlert(ctx context.Context, standing []Alert) (*Alert, error) {
	var elevated []Alert
	for _, a := range standing {
		if a.Severity == SeverityCritical || a.Severity == SeverityHigh {
			elevated = append(elevated, a)
		}
	}
	if len(elevated) < 2 {
		return nil, nil
	}

	var aircraft []string
	regionSet := map[string]bool{}
	var news string
	for _, a := range elevated {
		aircraft = append(aircraft, a.Aircraft...)
		if a.Region != "" {
			regionSet[a.Region] = true
		}
		if news == "" && a.NewsURL != "" {
			news = a.NewsURL
		}
	}
	var regions []string
	for r := range regionSet {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	details := fmt.Sprintf("regions: %s", strings.Join(regions, ", "))
	if summary := g.summarize(ctx, elevated); summary != "" {
		details = summary
	}

	return g.emit(ctx, Alert{
		Type:     TypeFlash,
		Title:    fmt.Sprintf("flash: %d concurrent elevated alerts", len(elevated)),
		Details:  details,
		Severity: SeverityCritical,
		Aircraft: uniqueSorted(aircraft),
		Region:   strings.Join(regions, ","),
		NewsURL:  news,
	})
}

// summarize asks the configured model for a two-sentence narrative of the
// standing elevated alerts. Returns "" when disabled or on any failure so
// the caller keeps its plain details.
func (g *Generator) summarize(ctx context.Context, elevated []Alert) string {
	if g.cfg.Summarizer == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Summarize the following concurrent military aviation alerts in at most two sentences:\n")
	for _, a := range elevated {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", a.Severity, a.Title, a.Details)
	}
	out, err := g.cfg.Summarizer.Generate(ctx, b.String(), "")
	if err != nil {
		if !errors.Is(err, llm.ErrProviderDisabled) {
			monitoring.Logf("alerts: flash summary: %v", err)
		}
		return ""
	}
	return strings.TrimSpace(out)
}

func uniqueSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Connect dials the bus and returns a Publisher, or (nil, nil) when the URL
// is empty so alerting degrades to store-only.
func Connect(url string) (Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url, nats.Name("skywatch-alerts"))
	if err != nil {
		return nil, fmt.Errorf("connect alert bus: %w", err)
	}
	return nc, nil
}
