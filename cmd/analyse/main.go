// Command analyse summarises hip heading error recordings. Each positional
// argument is a text metrics file; its base name labels the series.
//
//	analyse -gt groundtruth.txt -plot out.png raw.txt predicted.txt
//	analyse -db locomotion.db -gt-session <uuid> -session latest
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/locomotion.vr/internal/db"
	"github.com/banshee-data/locomotion.vr/internal/metrics"
	"github.com/banshee-data/locomotion.vr/internal/report"
)

var (
	gtPath    = flag.String("gt", "", "Ground truth metrics text file")
	dbPath    = flag.String("db", "", "SQLite database to read sessions from")
	gtSession = flag.String("gt-session", "", "Ground truth session id in -db")
	sessions  = flag.String("session", "", "Comma separated session ids in -db, or \"latest\"")
	minTime   = flag.Float64("min-time", report.DefaultConfig().MinTime, "Ignore samples at or before this time (s)")
	maxTime   = flag.Float64("max-time", report.DefaultConfig().MaxTime, "Ignore samples at or after this time (s)")
	plotPath  = flag.String("plot", "", "Write a PNG line plot to this path")
	title     = flag.String("title", "Hip heading error", "Plot title")
)

func readFile(path string) ([]metrics.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return metrics.ReadText(f)
}

func seriesName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func loadSession(database *db.DB, id string) (report.Series, error) {
	var s db.Session
	var err error
	if id == "latest" {
		s, err = database.LatestSession()
	} else {
		var parsed uuid.UUID
		parsed, err = uuid.Parse(id)
		if err != nil {
			return report.Series{}, fmt.Errorf("invalid session id %q: %w", id, err)
		}
		s, err = database.GetSession(parsed)
	}
	if err != nil {
		return report.Series{}, err
	}
	samples, err := database.HipSamples(s.ID)
	if err != nil {
		return report.Series{}, err
	}
	return report.Series{Name: s.Mode + " " + s.ID.String()[:8], Samples: samples}, nil
}

func main() {
	flag.Parse()
	cfg := report.Config{MinTime: *minTime, MaxTime: *maxTime}

	var series []report.Series
	for _, path := range flag.Args() {
		samples, err := readFile(path)
		if err != nil {
			log.Fatalf("failed to read %s: %v", path, err)
		}
		series = append(series, report.Series{Name: seriesName(path), Samples: samples})
	}

	var gtSamples []metrics.Sample
	if *gtPath != "" {
		var err error
		if gtSamples, err = readFile(*gtPath); err != nil {
			log.Fatalf("failed to read ground truth: %v", err)
		}
	}

	if *dbPath != "" {
		database, err := db.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		if *sessions != "" {
			for _, id := range strings.Split(*sessions, ",") {
				s, err := loadSession(database, strings.TrimSpace(id))
				if err != nil {
					log.Fatalf("failed to load session %s: %v", id, err)
				}
				series = append(series, s)
			}
		}
		if *gtSession != "" {
			s, err := loadSession(database, *gtSession)
			if err != nil {
				log.Fatalf("failed to load ground truth session: %v", err)
			}
			gtSamples = s.Samples
		}
	}

	if len(series) == 0 {
		log.Fatal("no series given")
	}

	var gt *report.GroundTruth
	if gtSamples != nil {
		var err error
		if gt, err = cfg.GroundTruth(gtSamples); err != nil {
			log.Fatalf("invalid ground truth: %v", err)
		}
	}

	processed, summaries := cfg.Analyse(gt, series)
	for _, s := range summaries {
		fmt.Printf("Average error %s: %.3f deg (%d samples)\n", s.Name, s.Mean, s.Count)
	}

	if *plotPath != "" {
		f, err := os.Create(*plotPath)
		if err != nil {
			log.Fatalf("failed to create plot: %v", err)
		}
		if err := report.Plot(f, *title, processed); err != nil {
			f.Close()
			log.Fatalf("failed to plot: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("failed to write plot: %v", err)
		}
		log.Printf("wrote %s", *plotPath)
	}
}
