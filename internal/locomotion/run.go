package locomotion

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/locomotion.vr/internal/adjust"
	"github.com/banshee-data/locomotion.vr/internal/feed"
	"github.com/banshee-data/locomotion.vr/internal/metrics"
	"github.com/banshee-data/locomotion.vr/internal/monitoring"
	"github.com/banshee-data/locomotion.vr/internal/recording"
	"github.com/banshee-data/locomotion.vr/internal/timeutil"
)

// Animator is a bone that moves on its own between ticks.
type Animator interface {
	adjust.Bone
	Step(traj Trajectory, dt float64)
}

// RunConfig wires a Controller to its surroundings. Only Source is
// required.
type RunConfig struct {
	Clock  timeutil.Clock
	Source feed.Source
	// FrameRateHz is the tick rate. Zero means 60.
	FrameRateHz float64
	// StaleAfter is how long a live source may stay silent before a
	// warning is logged. Zero disables the check.
	StaleAfter time.Duration

	Bone     Animator
	Monitor  *metrics.Monitor
	Recorder *recording.Recorder
	OnTick   func(Output)
}

type ender interface {
	Ended() bool
	Done() bool
}

// Run ticks the controller until ctx is cancelled or a non-looping
// playback source finishes. The monitor, if any, is stopped when the
// session first ends.
func (c *Controller) Run(ctx context.Context, rc RunConfig) error {
	if rc.Source == nil {
		return errors.New("locomotion: run needs a source")
	}
	if rc.Clock == nil {
		rc.Clock = timeutil.RealClock{}
	}
	if rc.FrameRateHz <= 0 {
		rc.FrameRateHz = 60
	}
	period := time.Duration(float64(time.Second) / rc.FrameRateHz)

	poller := feed.NewPoller(rc.Source)
	stepper, _ := rc.Source.(feed.Stepper)
	end, _ := rc.Source.(ender)

	ticker := rc.Clock.NewTicker(period)
	defer ticker.Stop()

	monitoring.Logf("locomotion loop started at %.1f Hz in %s mode", rc.FrameRateHz, c.Mode())
	defer func() {
		if rc.Monitor != nil {
			if err := rc.Monitor.Stop(); err != nil {
				c.log.Warn("closing metrics sinks", zap.Error(err))
			}
		}
	}()

	last := rc.Clock.Now()
	stale := false
	connected := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		now := rc.Clock.Now()
		dt := now.Sub(last).Seconds()
		last = now
		if dt <= 0 {
			dt = period.Seconds()
		}

		if stepper != nil {
			stepper.Step(dt)
		}
		if end != nil && end.Ended() {
			monitoring.Logf("session ended")
			if rc.Monitor != nil {
				if err := rc.Monitor.Stop(); err != nil {
					c.log.Warn("closing metrics sinks", zap.Error(err))
				}
			}
		}
		if end != nil && end.Done() {
			return nil
		}

		if up := rc.Source.Connected(); up != connected {
			connected = up
			if up {
				c.log.Info("source connected")
			} else {
				c.log.Warn("source disconnected")
			}
		}

		snap, fresh := poller.Poll()
		if stepper == nil && rc.StaleAfter > 0 && snap.Seq > 0 {
			isStale := rc.Clock.Since(snap.Received) > rc.StaleAfter
			if isStale && !stale {
				c.log.Warn("no data received", zap.Duration("since", rc.Clock.Since(snap.Received)))
			}
			stale = isStale
		}

		var bone adjust.Bone
		if rc.Bone != nil {
			rc.Bone.Step(c.Trajectory(), dt)
			bone = rc.Bone
		}
		out, err := c.Tick(Input{Snapshot: snap, Fresh: fresh, Dt: dt}, bone)
		if errors.Is(err, ErrNoInput) {
			continue
		}
		if err != nil {
			return err
		}

		if fresh {
			c.observe(rc, snap)
		}
		if rc.OnTick != nil {
			rc.OnTick(out)
		}
	}
}

// observe feeds the metrics monitor and the recorder with a new snapshot.
func (c *Controller) observe(rc RunConfig, snap feed.Snapshot) {
	if rc.Monitor != nil && snap.Hip != nil {
		_, err := rc.Monitor.Observe(snap.Time, c.HipDirection(), snap.Hip.Rotation)
		if err != nil && !errors.Is(err, metrics.ErrStopped) {
			c.log.Warn("writing hip sample", zap.Error(err))
		}
	}
	if rc.Recorder != nil {
		frame := feed.FrameOf(snap)
		if err := rc.Recorder.Record(&frame); err != nil {
			c.log.Warn("recording frame", zap.Error(err))
		}
	}
}
