// Package report renders an HTML activity report: alert volume and mix,
// active hot zones and prediction accuracy, charted with go-echarts.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/store"
)

// Store is the persistence surface the report reads from.
type Store interface {
	AlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error)
	ActiveZones(ctx context.Context) ([]geocontext.ActivityZone, error)
	AccuracyRollups(ctx context.Context, since time.Time) ([]store.AccuracyRollup, error)
}

// Config shapes the report window.
type Config struct {
	Window time.Duration // how far back to report, default 24h
	Title  string
}

// Generator builds activity reports.
type Generator struct {
	store Store
	cfg   Config
}

// NewGenerator builds a Generator with defaults applied.
func NewGenerator(st Store, cfg Config) *Generator {
	if cfg.Window == 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Title == "" {
		cfg.Title = "SkyWatch Activity Report"
	}
	return &Generator{store: st, cfg: cfg}
}

// Render writes the full HTML report for the window ending at now.
func (g *Generator) Render(ctx context.Context, now time.Time, w io.Writer) error {
	since := now.Add(-g.cfg.Window)

	alertList, err := g.store.AlertsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("report: load alerts: %w", err)
	}
	zones, err := g.store.ActiveZones(ctx)
	if err != nil {
		return fmt.Errorf("report: load zones: %w", err)
	}
	rollups, err := g.store.AccuracyRollups(ctx, since.AddDate(0, 0, -7))
	if err != nil {
		return fmt.Errorf("report: load accuracy: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = g.cfg.Title
	page.AddCharts(
		g.alertMixChart(alertList),
		g.alertTimelineChart(alertList, since, now),
		g.zoneChart(zones),
		g.accuracyChart(rollups),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

// alertMixChart is a bar chart of alert counts per type, split by severity.
func (g *Generator) alertMixChart(list []alerts.Alert) components.Charter {
	perType := map[string]int{}
	perTypeHigh := map[string]int{}
	for _, a := range list {
		perType[a.Type]++
		if a.Severity == "high" || a.Severity == "critical" {
			perTypeHigh[a.Type]++
		}
	}
	types := make([]string, 0, len(perType))
	for t := range perType {
		types = append(types, t)
	}
	sort.Strings(types)

	all := make([]opts.BarData, len(types))
	high := make([]opts.BarData, len(types))
	for i, t := range types {
		all[i] = opts.BarData{Value: perType[t]}
		high[i] = opts.BarData{Value: perTypeHigh[t]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Alert mix",
			Subtitle: fmt.Sprintf("%d alerts in window", len(list)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(types).
		AddSeries("all", all).
		AddSeries("high+", high)
	return bar
}

// alertTimelineChart is a per-hour line of alert volume across the window.
func (g *Generator) alertTimelineChart(list []alerts.Alert, since, now time.Time) components.Charter {
	start := since.Truncate(time.Hour)
	buckets := int(now.Sub(start)/time.Hour) + 1

	counts := make([]int, buckets)
	for _, a := range list {
		idx := int(a.CreatedAt.Sub(start) / time.Hour)
		if idx >= 0 && idx < buckets {
			counts[idx]++
		}
	}

	labels := make([]string, buckets)
	data := make([]opts.LineData, buckets)
	for i := 0; i < buckets; i++ {
		labels[i] = start.Add(time.Duration(i) * time.Hour).Format("02 15:04")
		data[i] = opts.LineData{Value: counts[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Alert volume per hour"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).AddSeries("alerts", data)
	return line
}

// zoneChart is a scatter of active hot zones, sized by radius and colored
// by activity level.
func (g *Generator) zoneChart(zones []geocontext.ActivityZone) components.Charter {
	levelRank := map[string]float64{"low": 1, "moderate": 2, "high": 3, "intense": 4}

	data := make([]opts.ScatterData, 0, len(zones))
	for _, z := range zones {
		size := 5 + z.RadiusNM
		if size > 40 {
			size = 40
		}
		data = append(data, opts.ScatterData{
			Value:      []interface{}{z.CenterLon, z.CenterLat, levelRank[z.Level]},
			SymbolSize: int(size),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Active hot zones",
			Subtitle: fmt.Sprintf("%d zones", len(zones)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "lon"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "lat"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:      opts.Bool(true),
			Min:       0,
			Max:       4,
			Dimension: "2",
			InRange:   &opts.VisualMapInRange{Color: []string{"#31688e", "#35b779", "#fde725", "#d73027"}},
		}),
	)
	scatter.AddSeries("zones", data)
	return scatter
}

// accuracyChart plots prediction accuracy rate per horizon over time.
func (g *Generator) accuracyChart(rollups []store.AccuracyRollup) components.Charter {
	byHorizon := map[time.Duration][]store.AccuracyRollup{}
	for _, r := range rollups {
		byHorizon[r.Horizon] = append(byHorizon[r.Horizon], r)
	}
	horizons := make([]time.Duration, 0, len(byHorizon))
	daySet := map[string]struct{}{}
	for h, rs := range byHorizon {
		horizons = append(horizons, h)
		sort.Slice(rs, func(i, j int) bool { return rs[i].Day.Before(rs[j].Day) })
		byHorizon[h] = rs
		for _, r := range rs {
			daySet[r.Day.Format("2006-01-02")] = struct{}{}
		}
	}
	sort.Slice(horizons, func(i, j int) bool { return horizons[i] < horizons[j] })

	days := make([]string, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Strings(days)
	dayIdx := map[string]int{}
	for i, d := range days {
		dayIdx[d] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Prediction accuracy by horizon"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "accuracy"}),
	)
	line.SetXAxis(days)
	for _, h := range horizons {
		data := make([]opts.LineData, len(days))
		for i := range data {
			data[i] = opts.LineData{Value: nil}
		}
		for _, r := range byHorizon[h] {
			data[dayIdx[r.Day.Format("2006-01-02")]] = opts.LineData{Value: r.AccuracyRate}
		}
		line.AddSeries(h.String(), data)
	}
	return line
}
