// Command activity-report renders the HTML activity report (alert mix and
// volume, hot zones, prediction accuracy) from the database.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/skywatch-data/skywatch/internal/report"
	"github.com/skywatch-data/skywatch/internal/store"
)

var (
	out    = flag.String("out", "activity-report.html", "Output HTML path")
	window = flag.Duration("window", 24*time.Hour, "Reporting window")
	title  = flag.String("title", "", "Report title")
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

func main() {
	_ = godotenv.Load()
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		Host:     envOr("DATABASE_HOST", "localhost"),
		Port:     envInt("DATABASE_PORT", 5432),
		Database: envOr("DATABASE_NAME", "skywatch"),
		User:     envOr("DATABASE_USER", "skywatch"),
		Password: os.Getenv("DATABASE_PASSWORD"),
		SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	gen := report.NewGenerator(st, report.Config{Window: *window, Title: *title})
	if err := gen.Render(ctx, time.Now().UTC(), f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("wrote %s", *out)
}
