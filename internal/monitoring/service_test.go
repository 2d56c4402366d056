package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/driver/drivertest"
	"github.com/editorialops/referee-monitor/internal/extraction"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/session"
	"github.com/editorialops/referee-monitor/internal/snapshot"
	"github.com/editorialops/referee-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendRunReport(result *models.RunResult) error {
	args := m.Called(result)
	return args.Error(0)
}

func (m *MockNotificationService) SendDeadlineAlert(alert *models.DeadlineAlert) error {
	args := m.Called(alert)
	return args.Error(0)
}

var fixedNow = time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

// fakeSite serves one platform's pages to every browser the factory opens
type fakeSite struct {
	name          string
	refereeStatus string
	reportLink    string
	// coAuthorReferee adds a referee who is also listed as an author.
	coAuthorReferee bool
	// dieAtProbe kills the first browser on its n-th liveness probe; 0 disables.
	dieAtProbe int
	// failOpenFrom makes factory calls with index >= failOpenFrom fail; 0 disables.
	failOpenFrom int

	mu     sync.Mutex
	opened int
}

func newSite(name string) *fakeSite {
	return &fakeSite{name: name, refereeStatus: "Accepted Due: 2024-02-01"}
}

func (s *fakeSite) base() string {
	return "https://" + s.name + ".example.org"
}

func (s *fakeSite) platform() config.PlatformConfig {
	return config.PlatformConfig{
		Name:              s.name,
		CredentialService: s.name,
		Login: config.LoginConfig{
			URL:         s.base() + "/login",
			Username:    "#username",
			Password:    "#password",
			Submit:      "#submit",
			LoggedIn:    "#dashboard",
			WaitTimeout: time.Second,
		},
		Extraction: extraction.Strategy{
			ListURL:           s.base() + "/tasks",
			RowSelector:       "tr.ms",
			RowIDSelector:     "td.id",
			DetailURLTemplate: s.base() + "/ms/{id}",
			ReadySelector:     "#details",
			Title:             "#title",
			Authors:           "td.authors",
			RefereeRow:        "tr.referee",
			RefereeName:       "td.name",
			RefereeEmail:      "td.email",
			RefereeStatus:     "td.status",
			RefereeReport:     "a.report",
		},
	}
}

func el(text string) *drivertest.Element {
	return &drivertest.Element{Text: text}
}

func (s *fakeSite) pages() map[string]*drivertest.Page {
	home := s.base() + "/home"
	submit := &drivertest.Element{OnClick: func(d *drivertest.Driver) { d.SetCurrent(home) }}

	referee := &drivertest.Element{Children: map[string][]*drivertest.Element{
		"td.name":   {el("Lee Chen")},
		"td.email":  {el("lee@mit.edu")},
		"td.status": {el(s.refereeStatus)},
	}}
	if s.reportLink != "" {
		referee.Children["a.report"] = []*drivertest.Element{{Attrs: map[string]string{"href": s.reportLink}}}
	}
	referees := []*drivertest.Element{referee}
	if s.coAuthorReferee {
		referees = append(referees, &drivertest.Element{Children: map[string][]*drivertest.Element{
			"td.name":   {el("Ana Diaz")},
			"td.email":  {el("ana@stanford.edu")},
			"td.status": {el("Invited")},
		}})
	}

	return map[string]*drivertest.Page{
		s.base() + "/login": {Elements: map[string][]*drivertest.Element{
			"#username": {{}},
			"#password": {{}},
			"#submit":   {submit},
		}},
		home: {Elements: map[string][]*drivertest.Element{"#dashboard": {el("Welcome")}}},
		s.base() + "/tasks": {Elements: map[string][]*drivertest.Element{
			"tr.ms": {{Children: map[string][]*drivertest.Element{"td.id": {el("M-1")}}}},
		}},
		s.base() + "/ms/M-1": {Elements: map[string][]*drivertest.Element{
			"#details":   {{}},
			"#title":     {el("Sparse control of flows")},
			"td.authors": {{HTML: "Ana Diaz (Stanford University)<br>Bo Li"}},
			"tr.referee": referees,
		}},
	}
}

// dyingDriver fails every liveness probe from the dieAt-th on
type dyingDriver struct {
	*drivertest.Driver
	probes int
	dieAt  int
}

func (d *dyingDriver) Location(ctx context.Context) (string, error) {
	d.probes++
	if d.probes >= d.dieAt {
		return "", errors.New("invalid session id: browser closed")
	}
	return d.Driver.Location(ctx)
}

func (s *fakeSite) factory(ctx context.Context) (driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.opened
	s.opened++

	if s.failOpenFrom > 0 && index >= s.failOpenFrom {
		return nil, errors.New("chrome failed to start: connection refused")
	}
	d := drivertest.New(s.pages())
	if index == 0 && s.dieAtProbe > 0 {
		return &dyingDriver{Driver: d, dieAt: s.dieAtProbe}, nil
	}
	return d, nil
}

func (s *fakeSite) browsersOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func siteCreds(names ...string) credentials.Static {
	creds := credentials.Static{}
	for _, n := range names {
		creds[n] = map[string]string{
			credentials.FieldUsername: "editor@example.org",
			credentials.FieldPassword: "secret",
		}
	}
	return creds
}

func testConfig(platforms ...config.PlatformConfig) *config.Config {
	return &config.Config{
		Platforms:             platforms,
		MaxConcurrentRuns:     2,
		RunTimeout:            time.Minute,
		ApproachingWindowDays: 7,
		ReminderWindowDays:    7,
		MaxAttempts:           2,
		InitialBackoff:        time.Millisecond,
		MaxBackoff:            time.Millisecond,
		StepTimeout:           time.Second,
		RecoveryAttempts:      1,
	}
}

type fixture struct {
	service  *Service
	store    *snapshot.Store
	notifier *MockNotificationService
}

func newFixture(t *testing.T, factory driver.Factory, creds credentials.Provider, platforms ...config.PlatformConfig) *fixture {
	t.Helper()
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	store := snapshot.NewStore(files)
	notifier := &MockNotificationService{}
	service := NewService(testConfig(platforms...), factory, creds, store, notifier)
	service.now = func() time.Time { return fixedNow }
	return &fixture{service: service, store: store, notifier: notifier}
}

func TestService_RunPlatform_FirstRun(t *testing.T) {
	site := newSite("sicon")
	site.coAuthorReferee = true
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())
	f.notifier.On("SendRunReport", mock.Anything).Return(nil)

	result, err := f.service.RunPlatform(context.Background(), site.platform())
	require.NoError(t, err)

	assert.Equal(t, []string{"M-1"}, result.Diff.NewManuscripts)
	require.Len(t, result.Diff.ApproachingDeadlines, 1)
	assert.Equal(t, 1, result.Diff.ApproachingDeadlines[0].DaysRemaining)
	assert.Equal(t, 1, result.Stats.Manuscripts)
	assert.Equal(t, 2, result.Stats.Referees)
	assert.Equal(t, 0, result.Stats.Recoveries)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "Ana Diaz", result.Conflicts[0].RefereeName)
	assert.Equal(t, "name", result.Conflicts[0].Match.MatchedBy)

	require.Len(t, result.Manuscripts, 1)
	assert.NotNil(t, result.Manuscripts[0].Referees[0].Stats)

	snap, err := f.store.Load(context.Background(), "sicon")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Contains(t, snap.Manuscripts, "M-1")
	assert.Nil(t, snap.Manuscripts["M-1"].Manuscript.Referees[0].Stats, "snapshot keeps records without derived stats")

	f.notifier.AssertNumberOfCalls(t, "SendRunReport", 1)
}

func TestService_RunPlatform_SecondRunReportsTransition(t *testing.T) {
	site := newSite("sicon")
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())
	f.notifier.On("SendRunReport", mock.Anything).Return(nil)

	_, err := f.service.RunPlatform(context.Background(), site.platform())
	require.NoError(t, err)

	again, err := f.service.RunPlatform(context.Background(), site.platform())
	require.NoError(t, err)
	assert.False(t, again.Diff.HasChanges(), "unchanged platform yields no changes")

	site.refereeStatus = "Report submitted Submitted: 2024-01-30"
	site.reportLink = "/reports/1"
	changed, err := f.service.RunPlatform(context.Background(), site.platform())
	require.NoError(t, err)

	assert.Empty(t, changed.Diff.NewManuscripts)
	require.Len(t, changed.Diff.StatusTransitions, 1)
	assert.Equal(t, models.StatusAccepted, changed.Diff.StatusTransitions[0].OldStatus)
	assert.Equal(t, models.StatusReportSubmitted, changed.Diff.StatusTransitions[0].NewStatus)
	require.Len(t, changed.Diff.NewReports, 1)
	assert.Empty(t, changed.Diff.ApproachingDeadlines)
}

func TestService_RunPlatform_RecoversDeadSessionAndCommits(t *testing.T) {
	site := newSite("sicon")
	// probes: open list, read list, open manuscript
	site.dieAtProbe = 3
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())
	f.notifier.On("SendRunReport", mock.Anything).Return(nil)

	result, err := f.service.RunPlatform(context.Background(), site.platform())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Recoveries)
	assert.Equal(t, 2, site.browsersOpened())

	snap, err := f.store.Load(context.Background(), "sicon")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Contains(t, snap.Manuscripts, "M-1")
}

func TestService_RunPlatform_FailedRecoveryKeepsSnapshot(t *testing.T) {
	site := newSite("sicon")
	site.dieAtProbe = 3
	site.failOpenFrom = 1
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())

	ctx := context.Background()
	earlier := fixedNow.Add(-24 * time.Hour)
	previous := snapshot.Build("sicon", []models.ManuscriptRecord{{ID: "M-0", Title: "Older"}}, earlier)
	require.NoError(t, f.store.Commit(ctx, previous))

	_, err := f.service.RunPlatform(ctx, site.platform())
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "sicon", runErr.Platform)
	assert.Equal(t, "extract", runErr.Step)

	var dead *session.SessionDeadError
	assert.True(t, errors.As(err, &dead))

	snap, err := f.store.Load(ctx, "sicon")
	require.NoError(t, err)
	assert.Equal(t, previous.ExtractionTime, snap.ExtractionTime)
	assert.Contains(t, snap.Manuscripts, "M-0")
	assert.NotContains(t, snap.Manuscripts, "M-1")

	f.notifier.AssertNotCalled(t, "SendRunReport", mock.Anything)
}

func TestService_RunPlatform_AuthenticationFailure(t *testing.T) {
	site := newSite("sicon")
	f := newFixture(t, site.factory, credentials.Static{}, site.platform())

	_, err := f.service.RunPlatform(context.Background(), site.platform())
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "acquire", runErr.Step)

	var authErr *session.AuthenticationError
	assert.True(t, errors.As(err, &authErr))
	assert.NotContains(t, err.Error(), "secret")

	snap, err := f.store.Load(context.Background(), "sicon")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestService_RunPlatform_CancelledLeavesStoreUntouched(t *testing.T) {
	site := newSite("sicon")
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.RunPlatform(ctx, site.platform())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	snap, err := f.store.Load(context.Background(), "sicon")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 0, site.browsersOpened())
}

func TestService_RunPlatform_RejectsOverlappingRun(t *testing.T) {
	site := newSite("sicon")
	f := newFixture(t, site.factory, siteCreds("sicon"), site.platform())

	require.True(t, f.service.claim("sicon"))
	_, err := f.service.RunPlatform(context.Background(), site.platform())
	assert.True(t, errors.Is(err, ErrRunInProgress))
	f.service.release("sicon")
}

func TestService_RunAll_IsolatesFailures(t *testing.T) {
	good := newSite("sicon")
	bad := newSite("mafe")
	// one browser serves the pages of both platforms
	factory := func(ctx context.Context) (driver.Driver, error) {
		pages := good.pages()
		for k, v := range bad.pages() {
			pages[k] = v
		}
		return drivertest.New(pages), nil
	}

	f := newFixture(t, factory, siteCreds("sicon"), good.platform(), bad.platform())
	f.notifier.On("SendRunReport", mock.Anything).Return(nil)

	err := f.service.RunAll(context.Background())
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "mafe", runErr.Platform)

	snap, err := f.store.Load(context.Background(), "sicon")
	require.NoError(t, err)
	assert.NotNil(t, snap)

	var metrics Metrics
	require.NoError(t, json.Unmarshal([]byte(f.service.GetMetrics()), &metrics))
	assert.Equal(t, 1, metrics.Runs)
	assert.Equal(t, 1, metrics.ErrorCount)
	require.Contains(t, metrics.Platforms, "sicon")
	require.Contains(t, metrics.Platforms, "mafe")
	assert.Equal(t, 0, metrics.Platforms["sicon"].Failures)
	assert.Equal(t, 1, metrics.Platforms["sicon"].NewManuscripts)
	assert.Equal(t, 1, metrics.Platforms["mafe"].Failures)
	assert.NotEmpty(t, metrics.Platforms["mafe"].LastError)
}

func TestService_RunDeadlineCheck(t *testing.T) {
	f := newFixture(t, nil, credentials.Static{}, newSite("sicon").platform(), newSite("mafe").platform())

	yesterday := fixedNow.AddDate(0, 0, -1)
	records := []models.ManuscriptRecord{{
		ID: "M-7",
		Referees: []models.RefereeRecord{
			{Name: "Lee Chen", Status: models.StatusAccepted, DueDate: &yesterday},
		},
	}}
	require.NoError(t, f.store.Commit(context.Background(), snapshot.Build("sicon", records, fixedNow)))

	f.notifier.On("SendDeadlineAlert", mock.MatchedBy(func(alert *models.DeadlineAlert) bool {
		return alert.Platform == "sicon" &&
			len(alert.Overdue) == 1 &&
			alert.Overdue[0].DaysOverdue == 1 &&
			len(alert.Approaching) == 0
	})).Return(nil).Once()

	require.NoError(t, f.service.RunDeadlineCheck(context.Background()))
	f.notifier.AssertExpectations(t)
}

func TestService_DeadlineAlert_NoSnapshot(t *testing.T) {
	f := newFixture(t, nil, credentials.Static{})
	alert, err := f.service.DeadlineAlert(context.Background(), "sicon")
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestService_GetMetrics(t *testing.T) {
	f := newFixture(t, nil, credentials.Static{})
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.service.GetMetrics()), &metrics))
	assert.Contains(t, metrics, "platforms")
	assert.Contains(t, metrics, "error_count")
}
