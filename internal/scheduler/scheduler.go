package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/config"
	"github.com/prite36/cropsense/internal/logging"
	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/telemetry"
)

// SitePoller takes one snapshot of a site.
type SitePoller interface {
	PollSite(ctx context.Context, siteID, token string) (*telemetry.Snapshot, error)
}

// HistoryAppender persists snapshots.
type HistoryAppender interface {
	Append(ctx context.Context, snapshot *telemetry.Snapshot) (*models.DeviceLog, error)
}

// Publisher fans snapshots and alerts out to the message broker.
type Publisher interface {
	PublishSnapshot(snapshot *telemetry.Snapshot) error
	PublishAlerts(siteID string, at time.Time, alerts []string) error
}

// Notifier reports alert changes to humans.
type Notifier interface {
	NotifyAlerts(siteID string, alerts []string)
}

// Scheduler periodically records telemetry of the configured sites.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	sites     []config.SiteConfig
	poller    SitePoller
	history   HistoryAppender
	publisher Publisher
	notifier  Notifier
	logger    *zap.Logger

	mu         sync.Mutex
	lastAlerts map[string]string
}

// NewScheduler creates a new recorder running in the configured timezone.
func NewScheduler(cfg *config.Config, poller SitePoller, history HistoryAppender, publisher Publisher, notifier Notifier, logger *zap.Logger) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(loc),
		interval:   cfg.Poll.Interval,
		sites:      cfg.Sites,
		poller:     poller,
		history:    history,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
		lastAlerts: make(map[string]string),
	}, nil
}

// Start begins the scheduler's job execution.
func (s *Scheduler) Start() error {
	if len(s.sites) == 0 {
		s.logger.Info("no sites configured, telemetry recorder is idle")
		return nil
	}
	s.logger.Info("scheduling telemetry recorder", zap.Duration("interval", s.interval), zap.Int("sites", len(s.sites)))
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.RunJob); err != nil {
		return fmt.Errorf("failed to schedule telemetry recorder: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping telemetry recorder")
	s.scheduler.Stop()
}

// RunJob records one snapshot per configured site. It can also be called directly for debugging.
func (s *Scheduler) RunJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	for _, site := range s.sites {
		if err := s.recordSite(ctx, site); err != nil {
			logging.WithSite(s.logger, site.ID).Error("failed to record site telemetry", zap.Error(err))
		}
	}
}

func (s *Scheduler) recordSite(ctx context.Context, site config.SiteConfig) error {
	log := logging.WithSite(s.logger, site.ID)
	if site.AuthToken == "" {
		log.Warn("site has no auth token, skipping")
		return nil
	}

	snapshot, err := s.poller.PollSite(ctx, site.ID, site.AuthToken)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	if _, err := s.history.Append(ctx, snapshot); err != nil {
		log.Error("failed to append device log", zap.Error(err))
	}
	if err := s.publisher.PublishSnapshot(snapshot); err != nil {
		log.Warn("failed to publish snapshot", zap.Error(err))
	}

	alerts := telemetry.AlertNames(telemetry.Alerts(snapshot))
	if !s.alertsChanged(site.ID, alerts) {
		return nil
	}

	log.Info("alert set changed", zap.Strings("alerts", alerts))
	if err := s.publisher.PublishAlerts(site.ID, snapshot.PolledAt, alerts); err != nil {
		log.Warn("failed to publish alerts", zap.Error(err))
	}
	s.notifier.NotifyAlerts(site.ID, alerts)
	return nil
}

// alertsChanged remembers the latest alert set of a site. The first cycle only counts as a
// change when it carries alerts.
func (s *Scheduler) alertsChanged(siteID string, alerts []string) bool {
	key := strings.Join(alerts, ",")

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, seen := s.lastAlerts[siteID]
	s.lastAlerts[siteID] = key
	if !seen {
		return key != ""
	}
	return previous != key
}
