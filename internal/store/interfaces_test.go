package store

import (
	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/calibration"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/geofence"
	"github.com/skywatch-data/skywatch/internal/intel"
	"github.com/skywatch-data/skywatch/internal/news"
	"github.com/skywatch-data/skywatch/internal/predict"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/proximity"
)

// The store must satisfy every consumer-side persistence interface.
var (
	_ profile.Store              = (*Store)(nil)
	_ formation.Store            = (*Store)(nil)
	_ proximity.Store            = (*Store)(nil)
	_ predict.Store              = (*Store)(nil)
	_ geofence.Store             = (*Store)(nil)
	_ geocontext.Store           = (*Store)(nil)
	_ geocontext.ZoneStore       = (*Store)(nil)
	_ calibration.Store          = (*Store)(nil)
	_ calibration.ThresholdStore = (*Store)(nil)
	_ intel.Store                = (*Store)(nil)
	_ intel.SignalStore          = (*Store)(nil)
	_ alerts.Store               = (*Store)(nil)
	_ alerts.NewsSource          = (*Store)(nil)
	_ news.Sink                  = (*Store)(nil)
)
