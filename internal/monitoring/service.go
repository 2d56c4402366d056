package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/editorialops/referee-monitor/internal/analytics"
	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/conflict"
	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/editorialops/referee-monitor/internal/diff"
	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/extraction"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/normalize"
	"github.com/editorialops/referee-monitor/internal/notifications"
	"github.com/editorialops/referee-monitor/internal/retry"
	"github.com/editorialops/referee-monitor/internal/session"
	"github.com/editorialops/referee-monitor/internal/snapshot"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RunResult is what a successful platform run hands to the notifier
type RunResult = models.RunResult

// Service runs extractions of every configured platform
type Service struct {
	config              *config.Config
	factory             driver.Factory
	credentials         credentials.Provider
	snapshots           *snapshot.Store
	notificationService notifications.NotificationInterface
	now                 func() time.Time

	metrics *Metrics
	mu      sync.RWMutex
	running map[string]bool
}

// Metrics holds monitoring metrics
type Metrics struct {
	LastRun         time.Time                   `json:"last_run"`
	LastRunDuration string                      `json:"last_run_duration"`
	Runs            int                         `json:"runs"`
	ErrorCount      int                         `json:"error_count"`
	Platforms       map[string]*PlatformMetrics `json:"platforms"`
}

// PlatformMetrics describes the last run of one platform
type PlatformMetrics struct {
	LastRun           time.Time       `json:"last_run"`
	LastSuccess       time.Time       `json:"last_success"`
	LastRunDuration   string          `json:"last_run_duration"`
	LastError         string          `json:"last_error,omitempty"`
	Failures          int             `json:"failures"`
	Stats             models.RunStats `json:"stats"`
	NewManuscripts    int             `json:"new_manuscripts"`
	StatusTransitions int             `json:"status_transitions"`
	NewReports        int             `json:"new_reports"`
	OverdueReviews    int             `json:"overdue_reviews"`
	Approaching       int             `json:"approaching_deadlines"`
	Conflicts         int             `json:"conflicts"`
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, factory driver.Factory, creds credentials.Provider, snapshots *snapshot.Store, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		factory:             factory,
		credentials:         creds,
		snapshots:           snapshots,
		notificationService: notificationService,
		now:                 time.Now,
		metrics:             &Metrics{Platforms: make(map[string]*PlatformMetrics)},
		running:             make(map[string]bool),
	}
}

// RunAll runs every configured platform, at most MaxConcurrentRuns at a time. A failing platform
// does not stop the others; all failures are returned joined.
func (s *Service) RunAll(ctx context.Context) error {
	start := s.now()
	logrus.WithField("platforms", len(s.config.Platforms)).Info("Starting monitoring run")

	var g errgroup.Group
	limit := s.config.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	var mu sync.Mutex
	var errs []error
	for _, p := range s.config.Platforms {
		p := p
		g.Go(func() error {
			if _, err := s.RunPlatform(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := s.now().Sub(start)
	s.mu.Lock()
	s.metrics.LastRun = start
	s.metrics.LastRunDuration = duration.String()
	s.metrics.Runs++
	s.metrics.ErrorCount += len(errs)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"duration": duration.String(),
		"failed":   len(errs),
	}).Info("Monitoring run completed")
	return errors.Join(errs...)
}

// RunByName runs the named platform
func (s *Service) RunByName(ctx context.Context, name string) (*RunResult, error) {
	for _, p := range s.config.Platforms {
		if p.Name == name {
			return s.RunPlatform(ctx, p)
		}
	}
	return nil, fmt.Errorf("unknown platform %q", name)
}

// RunPlatform performs one full run: load the previous snapshot, extract, normalize, diff,
// analyze and commit. The snapshot is committed only when every step succeeded; notification
// failures are logged after the commit and do not fail the run.
func (s *Service) RunPlatform(ctx context.Context, p config.PlatformConfig) (*RunResult, error) {
	if !s.claim(p.Name) {
		return nil, &RunError{Platform: p.Name, Step: "start", Attempts: 0, Cause: ErrRunInProgress}
	}
	defer s.release(p.Name)

	start := s.now()
	log := logrus.WithField("platform", p.Name)
	log.Info("Starting platform run")

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	result, err := s.run(ctx, p, start)
	s.record(p.Name, start, result, err)
	if err != nil {
		log.WithField("step", stepOf(err)).Errorf("Platform run failed: %v", err)
		return nil, err
	}

	if err := s.notificationService.SendRunReport(result); err != nil {
		log.Errorf("Failed to send run report: %v", err)
	}

	log.WithFields(logrus.Fields{
		"manuscripts": result.Stats.Manuscripts,
		"changes":     len(result.Diff.NewManuscripts) + len(result.Diff.StatusTransitions) + len(result.Diff.NewReports),
		"duration":    result.Stats.Duration.String(),
	}).Info("Platform run completed")
	return result, nil
}

func (s *Service) run(ctx context.Context, p config.PlatformConfig, start time.Time) (*RunResult, error) {
	previous, err := s.snapshots.Load(ctx, p.Name)
	if err != nil {
		return nil, runError(p.Name, "load-snapshot", err)
	}

	manager := session.NewManager(session.Options{
		Platform:          p.Name,
		CredentialService: p.CredentialService,
		Login:             p.LoginFlow(),
		Policy:            s.policy(),
		RecoveryAttempts:  s.config.RecoveryAttempts,
	}, s.factory, s.credentials)

	h, err := manager.Acquire(ctx)
	if err != nil {
		return nil, runError(p.Name, "acquire", err)
	}
	defer manager.Close(h)

	raws, err := extraction.NewExtractor(p.Name, p.Extraction, manager).Extract(ctx, h)
	if err != nil {
		return nil, runError(p.Name, "extract", err)
	}

	acc := normalize.NewAccumulator()
	normalizer := normalize.NewNormalizer(p.Name)
	records := make([]models.ManuscriptRecord, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		record, err := normalizer.Normalize(raw, acc)
		if err != nil {
			logrus.WithField("platform", p.Name).Warnf("Skipping manuscript: %v", err)
			continue
		}
		if seen[record.ID] {
			logrus.WithFields(logrus.Fields{"platform": p.Name, "manuscript": record.ID}).Warn("Duplicate manuscript listing")
			continue
		}
		seen[record.ID] = true
		records = append(records, record)
	}

	conflicts := conflict.NewDetector().AnnotateAll(records)

	engine := diff.NewEngine(p.Name, s.config.ApproachingWindowDays)
	engine.Clock = diff.ClockFunc(s.now)
	stateDiff := engine.Diff(previous, records)

	analyzer := analytics.NewEngine(s.config.ReminderWindowDays)
	analyzer.Clock = s.now
	report, withStats := analyzer.Analyze(p.Name, records)

	// Cancellation after the last extraction step still leaves the previous snapshot in place.
	if err := ctx.Err(); err != nil {
		return nil, runError(p.Name, "commit-snapshot", err)
	}
	if err := s.snapshots.Commit(ctx, snapshot.Build(p.Name, records, start)); err != nil {
		return nil, runError(p.Name, "commit-snapshot", err)
	}

	referees := 0
	for _, m := range records {
		referees += len(m.Referees)
	}
	if conflicts == nil {
		conflicts = []models.ConflictFlag{}
	}
	return &RunResult{
		Platform:    p.Name,
		StartedAt:   start,
		Manuscripts: withStats,
		Diff:        stateDiff,
		Analytics:   report,
		Conflicts:   conflicts,
		Stats: models.RunStats{
			Manuscripts:        len(records),
			Referees:           referees,
			LowConfidence:      acc.LowConfidence,
			UnknownStatuses:    acc.UnknownStatuses,
			UnparsedTimestamps: acc.UnparsedTimestamps,
			Rejected:           acc.Rejected,
			Recoveries:         manager.Recoveries(),
			Duration:           s.now().Sub(start),
		},
	}, nil
}

// RunDeadlineCheck re-evaluates deadlines of every platform from its last snapshot, without
// touching the remote platforms, and alerts on overdue and approaching reviews.
func (s *Service) RunDeadlineCheck(ctx context.Context) error {
	logrus.Info("Starting deadline check")

	var errs []error
	for _, p := range s.config.Platforms {
		alert, err := s.DeadlineAlert(ctx, p.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if alert == nil || alert.Empty() {
			continue
		}
		if err := s.notificationService.SendDeadlineAlert(alert); err != nil {
			logrus.WithField("platform", p.Name).Errorf("Failed to send deadline alert: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeadlineAlert computes the current deadline status of a platform's last snapshot.
// It returns nil when the platform has never completed a run.
func (s *Service) DeadlineAlert(ctx context.Context, platform string) (*models.DeadlineAlert, error) {
	snap, err := s.snapshots.Load(ctx, platform)
	if err != nil {
		return nil, runError(platform, "load-snapshot", err)
	}
	if snap == nil {
		return nil, nil
	}

	records := snap.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	engine := diff.NewEngine(platform, s.config.ApproachingWindowDays)
	engine.Clock = diff.ClockFunc(s.now)
	// Diffing the snapshot against itself leaves only the point-in-time deadline lists.
	d := engine.Diff(snap, records)

	return &models.DeadlineAlert{
		Platform:    platform,
		GeneratedAt: d.ComputedAt,
		Overdue:     d.OverdueReviews,
		Approaching: d.ApproachingDeadlines,
	}, nil
}

func (s *Service) policy() retry.Policy {
	policy := retry.DefaultPolicy()
	if s.config.MaxAttempts > 0 {
		policy.MaxAttempts = s.config.MaxAttempts
	}
	if s.config.InitialBackoff > 0 {
		policy.InitialInterval = s.config.InitialBackoff
	}
	if s.config.MaxBackoff > 0 {
		policy.MaxInterval = s.config.MaxBackoff
	}
	if s.config.StepTimeout > 0 {
		policy.StepTimeout = s.config.StepTimeout
	}
	// One limiter per run: each platform is paced on its own.
	if s.config.StepsPerSecond > 0 {
		policy.Limiter = rate.NewLimiter(rate.Limit(s.config.StepsPerSecond), 1)
	}
	return policy
}

func (s *Service) claim(platform string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[platform] {
		return false
	}
	s.running[platform] = true
	return true
}

func (s *Service) release(platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, platform)
}

func (s *Service) record(platform string, start time.Time, result *RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, ok := s.metrics.Platforms[platform]
	if !ok {
		pm = &PlatformMetrics{}
		s.metrics.Platforms[platform] = pm
	}
	pm.LastRun = start
	pm.LastRunDuration = s.now().Sub(start).String()
	if err != nil {
		pm.Failures++
		pm.LastError = err.Error()
		return
	}
	pm.LastError = ""
	pm.LastSuccess = start
	pm.Stats = result.Stats
	pm.NewManuscripts = len(result.Diff.NewManuscripts)
	pm.StatusTransitions = len(result.Diff.StatusTransitions)
	pm.NewReports = len(result.Diff.NewReports)
	pm.OverdueReviews = len(result.Diff.OverdueReviews)
	pm.Approaching = len(result.Diff.ApproachingDeadlines)
	pm.Conflicts = len(result.Conflicts)
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

func stepOf(err error) string {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Step
	}
	return ""
}
