package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/radar-overlay/internal/radar"
)

// TimestampWarmer is anything that refreshes the timestamp list when stale.
type TimestampWarmer interface {
	Timestamps(ctx context.Context) radar.TimestampList
}

// Scheduler drives the radar animation: it advances the frame counter at a
// fixed cadence and keeps the timestamp list warm.
type Scheduler struct {
	scheduler       *gocron.Scheduler
	warmer          TimestampWarmer
	frameInterval   time.Duration
	prewarmInterval time.Duration

	frame atomic.Uint64
}

// New creates a new Scheduler. warmer may be nil to skip prewarming.
func New(frameInterval, prewarmInterval time.Duration, warmer TimestampWarmer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:       s,
		warmer:          warmer,
		frameInterval:   frameInterval,
		prewarmInterval: prewarmInterval,
	}
}

// Frame returns the current animation frame number.
func (s *Scheduler) Frame() uint64 {
	return s.frame.Load()
}

// Advance moves the animation one frame forward and returns the new frame.
func (s *Scheduler) Advance() uint64 {
	return s.frame.Add(1)
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.frameInterval > 0 {
		// Frame 0 stays on screen for a full interval before the first tick.
		if _, err := s.scheduler.Every(s.frameInterval).WaitForSchedule().Do(func() {
			s.Advance()
		}); err != nil {
			return err
		}
	} else {
		log.Println("scheduler: frame interval not set; animation is paused on frame 0")
	}

	if s.warmer != nil && s.prewarmInterval > 0 {
		_, err := s.scheduler.Every(s.prewarmInterval).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			list := s.warmer.Timestamps(ctx)
			log.Printf("scheduler: timestamp prewarm done, %d entries cached", len(list))
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
