package services

import (
	"context"
	"fmt"
	"time"

	"parking-bot/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SweeperConfig holds the cron specs of the periodic jobs. An empty spec
// disables the job.
type SweeperConfig struct {
	GuestPasses string
	FreeSpots   string
	Reminders   string
	Backup      string
}

// DefaultSweeperConfig returns the production schedule
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		GuestPasses: "@every 1h",
		FreeSpots:   "@every 1h",
		Reminders:   "@every 1m",
		Backup:      "@every 720h",
	}
}

type sweepJob struct {
	name string
	spec string
	run  func(ctx context.Context) (int, error)
}

// Sweeper runs the background jobs on a cron schedule
type Sweeper struct {
	stores   Stores
	notifier Notifier
	backups  *BackupService
	now      func() time.Time
	cron     *cron.Cron
	timeout  time.Duration
}

// NewSweeper creates a sweeper and registers its jobs. backups may be nil.
func NewSweeper(cfg SweeperConfig, stores Stores, notifier Notifier, backups *BackupService) (*Sweeper, error) {
	s := &Sweeper{
		stores:   stores,
		notifier: notifier,
		backups:  backups,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:  5 * time.Minute,
	}

	jobs := []sweepJob{
		{"guest_pass_sweep", cfg.GuestPasses, s.SweepGuestPasses},
		{"free_spot_release", cfg.FreeSpots, s.ReleaseFreeSpots},
		{"reminder_fire", cfg.Reminders, s.FireReminders},
	}
	if backups != nil {
		jobs = append(jobs, sweepJob{"backup", cfg.Backup, s.runBackup})
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(name, run) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s (%q): %w", name, job.spec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Sweeper started")
}

// Stop stops scheduling and waits for running jobs
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Sweeper jobs still running at shutdown")
	}
}

func (s *Sweeper) runJob(name string, run func(ctx context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	n, err := run(ctx)
	metrics.RecordCronJobRun(name, time.Since(started), err)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("Cron job failed")
		return
	}
	if n > 0 {
		log.Info().Str("job", name).Int("affected", n).Msg("Cron job done")
	}
}

// SweepGuestPasses deactivates expired guest passes
func (s *Sweeper) SweepGuestPasses(ctx context.Context) (int, error) {
	n, err := s.stores.GuestPasses.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate guest passes: %w", err)
	}
	return int(n), nil
}

// ReleaseFreeSpots clears free flags whose deadline passed
func (s *Sweeper) ReleaseFreeSpots(ctx context.Context) (int, error) {
	n, err := s.stores.Spots.ReleaseExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to release free spots: %w", err)
	}
	return int(n), nil
}

// FireReminders claims due reminders and notifies their owners. A claimed
// reminder is not retried when delivery fails.
func (s *Sweeper) FireReminders(ctx context.Context) (int, error) {
	due, err := s.stores.Reminders.ClaimDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to claim reminders: %w", err)
	}
	sent := 0
	for _, r := range due {
		n := Notification{Text: fmt.Sprintf("⏰ Reminder about spot %d: %s", r.SpotNumber, r.Text)}
		if err := s.notifier.Notify(ctx, r.UserID, n); err != nil {
			log.Warn().Err(err).Int64("user_id", r.UserID).Int64("reminder_id", r.ID).Msg("Failed to deliver reminder")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Sweeper) runBackup(ctx context.Context) (int, error) {
	if err := s.backups.Run(ctx, s.now()); err != nil {
		return 0, err
	}
	return 1, nil
}
