// Command gen-session writes a synthetic walking session for testing
// playback and the heading metrics without a headset.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/locomotion.vr/internal/recording"
)

func main() {
	output := flag.String("o", "sample-session", "output session directory")
	frames := flag.Int("n", 1800, "number of frames")
	rate := flag.Float64("rate", 30, "frame rate in Hz")
	radius := flag.Float64("radius", 2, "walking circle radius in metres")
	speed := flag.Float64("speed", 1, "walking speed in m/s")
	sway := flag.Float64("sway", 20, "peak head yaw away from the hips in degrees")
	flag.Parse()

	rec, err := recording.NewRecorder(*output, "synthetic")
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}

	walk := recording.NewWalk()
	walk.RateHz = *rate
	walk.Radius = *radius
	walk.Speed = *speed
	walk.SwayDeg = *sway

	for i := 0; i < *frames; i++ {
		f := walk.Next()
		if err := rec.Record(&f); err != nil {
			log.Fatalf("failed to record frame %d: %v", i, err)
		}
		if (i+1)%300 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	if err := rec.Close(); err != nil {
		log.Fatalf("failed to finish session: %v", err)
	}
	log.Printf("Created: %s", rec.Path())
}
