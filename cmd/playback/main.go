// Command playback replays archived position frames from a local SQLite
// archive, printing an interpolated picture at a configurable speed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/skywatch-data/skywatch/internal/playback"
)

var (
	framesPath = flag.String("frames", "frames.db", "Frame archive path")
	fromFlag   = flag.String("from", "", "Replay window start (RFC 3339; default: archive start)")
	toFlag     = flag.String("to", "", "Replay window end (RFC 3339; default: archive end)")
	speed      = flag.Float64("speed", 4, "Playback speed multiplier (snapped to 1x/2x/4x/8x/16x)")
	tick       = flag.Duration("tick", time.Second, "Wall-clock interval between rendered frames")
)

func parseWindow() (from, to time.Time) {
	from = time.Unix(0, 0).UTC()
	to = time.Now().UTC()
	if *fromFlag != "" {
		t, err := time.Parse(time.RFC3339, *fromFlag)
		if err != nil {
			log.Fatalf("Invalid -from: %v", err)
		}
		from = t
	}
	if *toFlag != "" {
		t, err := time.Parse(time.RFC3339, *toFlag)
		if err != nil {
			log.Fatalf("Invalid -to: %v", err)
		}
		to = t
	}
	return from, to
}

func renderFrame(f playback.Frame) {
	fmt.Printf("=== %s  (%d aircraft)\n", f.Time.Format(time.RFC3339), len(f.Aircraft))

	sorted := make([]string, 0, len(f.Aircraft))
	byHex := map[string]int{}
	for i, p := range f.Aircraft {
		sorted = append(sorted, p.Hex)
		byHex[p.Hex] = i
	}
	sort.Strings(sorted)

	for _, hex := range sorted {
		p := f.Aircraft[byHex[hex]]
		alt := "   ---"
		if p.AltitudeFt != nil {
			alt = fmt.Sprintf("%6.0f", *p.AltitudeFt)
		}
		spd := "  ---"
		if p.GroundSpeed != nil {
			spd = fmt.Sprintf("%5.0f", *p.GroundSpeed)
		}
		fmt.Printf("  %-6s  %9.4f %9.4f  %s ft  %s kt\n", p.Hex, p.Lat, p.Lon, alt, spd)
	}
}

func main() {
	flag.Parse()

	arch, err := playback.OpenArchive(*framesPath)
	if err != nil {
		log.Fatalf("Failed to open frame archive: %v", err)
	}
	defer arch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	from, to := parseWindow()
	frames, err := arch.FramesBetween(ctx, from, to)
	if err != nil {
		log.Fatalf("Failed to load frames: %v", err)
	}
	if len(frames) == 0 {
		fmt.Println("no frames in window")
		os.Exit(1)
	}
	log.Printf("replaying %d frames, %s to %s",
		len(frames),
		frames[0].Time.Format(time.RFC3339),
		frames[len(frames)-1].Time.Format(time.RFC3339))

	anim := playback.NewAnimator(frames, nil)
	anim.SetSpeed(*speed)
	anim.Play()

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	for !anim.Done() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := anim.Step()
			if err != nil {
				log.Fatalf("Playback step failed: %v", err)
			}
			renderFrame(frame)
		}
	}
	log.Print("replay complete")
}
