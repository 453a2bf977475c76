package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/api"
	"github.com/skywatch-data/skywatch/internal/archive"
	"github.com/skywatch-data/skywatch/internal/calibration"
	"github.com/skywatch-data/skywatch/internal/config"
	"github.com/skywatch-data/skywatch/internal/feeds"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/geofence"
	"github.com/skywatch-data/skywatch/internal/intel"
	"github.com/skywatch-data/skywatch/internal/llm"
	"github.com/skywatch-data/skywatch/internal/news"
	"github.com/skywatch-data/skywatch/internal/playback"
	"github.com/skywatch-data/skywatch/internal/predict"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/proximity"
	"github.com/skywatch-data/skywatch/internal/scheduler"
	"github.com/skywatch-data/skywatch/internal/store"
	"github.com/skywatch-data/skywatch/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	tuningPath = flag.String("tuning", "", "Path to tuning JSON (defaults to "+config.DefaultConfigPath+" when present)")
	framesPath = flag.String("frames", "frames.db", "Playback frame archive path (empty disables)")
	latMin     = flag.Float64("lat-min", 30, "Region of interest: south bound")
	latMax     = flag.Float64("lat-max", 72, "Region of interest: north bound")
	lonMin     = flag.Float64("lon-min", -12, "Region of interest: west bound")
	lonMax     = flag.Float64("lon-max", 45, "Region of interest: east bound")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func loadTuning() *config.TuningConfig {
	path := *tuningPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultTuningConfig()
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	return cfg
}

// buildSources assembles the upstream clients from the environment. The
// open-data feeds need no credentials; the marketplace and OpenSky feeds
// stay disabled until theirs are set.
func buildSources() (military []aggregator.MilitarySource, point []aggregator.PointSource, hex aggregator.HexSource, opensky *feeds.OpenSkyClient) {
	adsbFi := feeds.NewClient(feeds.ProviderConfig{
		Name:           "adsb.fi",
		BaseURL:        envOr("ADSBFI_URL", "https://opendata.adsb.fi/api/v2"),
		MilitaryPath:   "/mil",
		SupportsPoint:  true,
		Priority:       2,
		RequestsPerMin: envInt("ADSBFI_RPM", 30),
	}, nil, nil)
	adsbLol := feeds.NewClient(feeds.ProviderConfig{
		Name:           "adsb.lol",
		BaseURL:        envOr("ADSBLOL_URL", "https://api.adsb.lol/v2"),
		MilitaryPath:   "/mil",
		SupportsPoint:  true,
		Priority:       1,
		RequestsPerMin: envInt("ADSBLOL_RPM", 30),
	}, nil, nil)
	airplanes := feeds.NewClient(feeds.ProviderConfig{
		Name:           "airplanes.live",
		BaseURL:        envOr("AIRPLANESLIVE_URL", "https://api.airplanes.live/v2"),
		MilitaryPath:   "/mil",
		SupportsPoint:  true,
		Priority:       3,
		RequestsPerMin: envInt("AIRPLANESLIVE_RPM", 30),
	}, nil, nil)

	military = []aggregator.MilitarySource{adsbFi, adsbLol, airplanes}
	point = []aggregator.PointSource{adsbFi, adsbLol, airplanes}
	hex = airplanes

	if key := os.Getenv("ADSBX_API_KEY"); key != "" {
		adsbx := feeds.NewClient(feeds.ProviderConfig{
			Name:           "adsbexchange",
			BaseURL:        envOr("ADSBX_URL", "https://adsbexchange-com1.p.rapidapi.com/v2"),
			MilitaryPath:   "/mil",
			SupportsPoint:  true,
			Priority:       4,
			RequestsPerMin: envInt("ADSBX_RPM", 10),
			Auth:           feeds.AuthAPIKey,
			Token:          key,
			APIHost:        envOr("ADSBX_API_HOST", "adsbexchange-com1.p.rapidapi.com"),
		}, nil, nil)
		military = append(military, adsbx)
		point = append(point, adsbx)
		hex = adsbx
	}

	if user := os.Getenv("OPENSKY_USER"); user != "" {
		opensky = feeds.NewOpenSkyClient(feeds.ProviderConfig{
			Name:     "opensky",
			BaseURL:  envOr("OPENSKY_URL", "https://opensky-network.org/api"),
			Auth:     feeds.AuthBasic,
			Username: user,
			Password: os.Getenv("OPENSKY_PASS"),
		}, nil, nil)
	}
	return military, point, hex, opensky
}

// Main
func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("skywatch %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	tuning := loadTuning()
	region := aggregator.BoundingBox{
		LatMin: *latMin, LatMax: *latMax,
		LonMin: *lonMin, LonMax: *lonMax,
	}
	focus := []aggregator.FocusArea{
		{Name: "Baltic", Lat: 56.0, Lon: 19.0, RadiusNM: 250},
		{Name: "Black Sea", Lat: 43.5, Lon: 33.0, RadiusNM: 250},
		{Name: "Eastern Mediterranean", Lat: 34.0, Lon: 32.0, RadiusNM: 250},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	st, err := store.Open(openCtx, store.Config{
		Host:     envOr("DATABASE_HOST", "localhost"),
		Port:     envInt("DATABASE_PORT", 5432),
		Database: envOr("DATABASE_NAME", "skywatch"),
		User:     envOr("DATABASE_USER", "skywatch"),
		Password: os.Getenv("DATABASE_PASSWORD"),
		SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
	})
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.MigrateUp(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Optional long-term archive.
	var sink *archive.Sink
	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		sink, err = archive.Open(ctx, archive.Config{
			Host:     host,
			Port:     envInt("CLICKHOUSE_PORT", 9000),
			Database: envOr("CLICKHOUSE_DB", "skywatch"),
			User:     envOr("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		})
		if err != nil {
			log.Fatalf("Failed to connect to clickhouse: %v", err)
		}
		defer sink.Close()
		if err := sink.CreateSchema(ctx); err != nil {
			log.Fatalf("Failed to create archive schema: %v", err)
		}
	}

	// Optional alert bus.
	pub, err := alerts.Connect(os.Getenv("NATS_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to alert bus: %v", err)
	}

	// Optional local playback archive.
	var frames *playback.Archive
	if *framesPath != "" {
		frames, err = playback.OpenArchive(*framesPath)
		if err != nil {
			log.Fatalf("Failed to open frame archive: %v", err)
		}
		defer frames.Close()
	}

	militarySources, pointSources, hexSource, opensky := buildSources()
	agg := aggregator.New(militarySources, pointSources, hexSource, aggregator.Config{
		FocusAreas: focus,
		Region:     region,
	}, nil)

	scorer := geocontext.NewScorer(st)
	calibrator := calibration.NewCalibrator(st, nil)
	thresholds := calibration.NewThresholds(st)
	profiler := profile.New(st, profile.DefaultPriors, nil)
	engine := intel.New(st, profiler, thresholds, calibrator,
		intel.NewSignals(st, scorer, nil), intel.Config{}, nil)
	alertCfg := alerts.Config{
		News:         st,
		NewsKeywords: []string{"military", "aircraft"},
	}
	if os.Getenv("LLM_GENERATE_URL") != "" || os.Getenv("LLM_EMBED_URL") != "" {
		client := llm.NewClient(llm.Config{
			GenerateURL: os.Getenv("LLM_GENERATE_URL"),
			EmbedURL:    os.Getenv("LLM_EMBED_URL"),
			APIKey:      os.Getenv("LLM_API_KEY"),
		}, nil)
		alertCfg.Summarizer = client
		alertCfg.Embedder = client
	}
	generator := alerts.New(st, pub, alertCfg, nil)

	var ingestor *news.Ingestor
	if url := envOr("NEWS_URL", "https://api.gdeltproject.org/api/v2/doc/doc"); url != "disabled" {
		client := news.NewClient(news.Config{BaseURL: url}, nil)
		ingestor = news.NewIngestor(client, st, map[string][]string{
			"Baltic":                {"military", "aircraft"},
			"Black Sea":             {"military", "aircraft"},
			"Eastern Mediterranean": {"military", "aircraft"},
		})
	}

	pipe := &pipeline{
		store:      st,
		agg:        agg,
		opensky:    opensky,
		region:     region,
		focus:      focus,
		formations: formation.NewMonitor(st, nil),
		conflicts:  proximity.NewMonitor(st, nil),
		fences: geofence.NewMonitor(st, geofence.Config{
			StaleAfter: tuning.GetGeofenceStaleAfter(),
		}, nil),
		profiler:   profiler,
		forecasts:  predict.NewRunner(st),
		validator:  predict.NewValidator(st, nil),
		zones:      geocontext.NewRefresher(st, nil),
		calibrator: calibrator,
		engine:     engine,
		alerts:     generator,
		news:       ingestor,
		frames:     frames,
		sink:       sink,
		tuning:     tuning,
		clock:      nil,
	}

	runner := scheduler.NewRunner([]scheduler.Job{
		{Name: "ingest", Interval: tuning.GetPollInterval(), RunOnStart: true, Fn: pipe.ingestTick},
		{Name: "flights", Interval: time.Minute, Fn: pipe.flightsTick},
		{Name: "formations", Interval: tuning.GetPollInterval(), Fn: pipe.formationTick},
		{Name: "proximity", Interval: tuning.GetPollInterval(), Fn: pipe.proximityTick},
		{Name: "geofences", Interval: tuning.GetPollInterval(), Fn: pipe.geofenceTick},
		{Name: "predictions", Interval: tuning.GetPredictionInterval(), Fn: pipe.predictionTick},
		{Name: "validation", Interval: tuning.GetValidationInterval(), Fn: pipe.validationTick},
		{Name: "zones", Interval: 10 * time.Minute, Fn: pipe.zonesTick},
		{Name: "calibration", Interval: 24 * time.Hour, Fn: pipe.calibrationTick},
		{Name: "news", Interval: tuning.GetNewsInterval(), RunOnStart: true, Fn: pipe.newsTick},
		{Name: "threats", Interval: 5 * time.Minute, Fn: pipe.threatTick},
		{Name: "strategic", Interval: time.Minute, Fn: pipe.strategicTick},
		{Name: "retention", Interval: time.Hour, Fn: pipe.retentionTick},
	}, nil)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(st, agg, nil).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
