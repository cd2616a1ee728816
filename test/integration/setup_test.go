// Package integration exercises the dashboard end to end: real HTTP
// server, real Redis protocol against an in-process miniredis, the full
// pipeline (publisher, processors, queue engine) and the report builder
// talking to a stubbed Cypress export endpoint. Only the MySQL
// repositories are replaced with in-memory fakes.
package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/skylab/dashboard/internal/domain/notification"
	"github.com/skylab/dashboard/internal/domain/pullrequest"
	"github.com/skylab/dashboard/internal/domain/report"
	"github.com/skylab/dashboard/internal/pipeline"
	"github.com/skylab/dashboard/internal/platform/bus"
	"github.com/skylab/dashboard/internal/platform/cypress"
	"github.com/skylab/dashboard/internal/platform/middleware"
)

// stack is one fully wired dashboard instance for a single test.
type stack struct {
	server    *httptest.Server
	publisher *pipeline.Publisher

	reports *fakeReportRepo
	notifs  *fakeNotificationRepo
	prs     *fakePullRequestRepo
	apps    *fakeAppDirectory
}

// newStack boots the dashboard against a fresh miniredis and the given
// Cypress stub. Extra engine options are applied after the fast test
// defaults, so callers can override the retry policy.
func newStack(t *testing.T, cypressBackend http.Handler, engineOpts ...pipeline.EngineOption) *stack {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	b, err := bus.NewRedis(ctx, "redis://"+mr.Addr(), logger)
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	cypressSrv := httptest.NewServer(cypressBackend)
	t.Cleanup(cypressSrv.Close)
	runs := cypress.NewClient(cypressSrv.URL, "test-key")

	s := &stack{
		reports: newFakeReportRepo(),
		notifs:  &fakeNotificationRepo{},
		prs:     &fakePullRequestRepo{},
		apps:    &fakeAppDirectory{},
	}
	notifSvc := notification.NewService(s.notifs)
	prSvc := pullrequest.NewService(s.prs)
	reportSvc := report.NewService(s.reports)
	builder := report.NewBuilder(s.reports, s.apps, runs, passTx{}, logger)

	opts := append([]pipeline.EngineOption{
		pipeline.WithBaseDelay(10 * time.Millisecond),
		pipeline.WithWheelInterval(10 * time.Millisecond),
	}, engineOpts...)
	engine := pipeline.NewEngine(b, func(ctx context.Context, msg *pipeline.E2EReportMessage) error {
		return builder.Build(ctx, report.BuildRequest{
			Date:       msg.Date,
			AppIDs:     msg.AppIDs,
			RequestID:  msg.RequestID,
			RetryCount: msg.RetryCount,
		})
	}, logger, opts...)

	processors := []*pipeline.Processor{
		pipeline.NewProcessor("e2e_report", pipeline.ChannelE2EReport, b,
			pipeline.HandlerFunc(engine.HandleMessage), logger),
		pipeline.NewProcessor("notification", pipeline.ChannelNotification, b,
			pipeline.NewNotificationHandler(&notificationWriter{svc: notifSvc}, logger), logger),
		pipeline.NewProcessor("pull_request_delete", pipeline.ChannelPullRequestDelete, b,
			pipeline.NewPullRequestHandler(&pullRequestRemover{svc: prSvc}, logger), logger),
	}
	for _, p := range processors {
		if err := p.Start(ctx); err != nil {
			t.Fatalf("failed to start processor: %v", err)
		}
		proc := p
		t.Cleanup(proc.Stop)
	}
	engine.StartWheel(ctx)
	t.Cleanup(engine.StopWheel)

	s.publisher = pipeline.NewPublisher(b, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(10 * time.Second))
	e.Use(middleware.BodyLimit("1M"))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	ops := e.Group("/ops")

	notification.NewHandler(notifSvc).RegisterRoutes(apiV1)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)
	pipeline.NewHandler(s.publisher, engine).RegisterRoutes(apiV1, ops)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	s.server = httptest.NewServer(e)
	t.Cleanup(s.server.Close)
	return s
}

func (s *stack) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func (s *stack) postJSON(t *testing.T, path, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (s *stack) patch(t *testing.T, path string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, s.server.URL+path, nil)
	if err != nil {
		t.Fatalf("build PATCH %s: %v", path, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH %s: %v", path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

// -- Adapters over the domain services, mirroring the server wiring --

type notificationWriter struct {
	svc *notification.Service
}

func (w *notificationWriter) Write(ctx context.Context, input *pipeline.NotificationInput) error {
	n := &notification.Notification{Title: input.Title, Message: input.Message, Type: input.Type}
	if input.Link != "" {
		link := input.Link
		n.Link = &link
	}
	return w.svc.CreateNotification(ctx, n)
}

type pullRequestRemover struct {
	svc *pullrequest.Service
}

func (r *pullRequestRemover) Remove(ctx context.Context, id int64) error {
	return r.svc.DeletePullRequest(ctx, id)
}

// passTx satisfies the builder's transaction contract without a
// database underneath.
type passTx struct{}

func (passTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- In-memory repositories --

type fakeReportRepo struct {
	mu        sync.Mutex
	summaries map[int64]*report.Summary
	details   map[int64]*report.Detail
	nextID    int64
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{
		summaries: make(map[int64]*report.Summary),
		details:   make(map[int64]*report.Detail),
	}
}

func (f *fakeReportRepo) GetSummaryByDate(ctx context.Context, date string) (*report.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.summaries {
		if s.Date == date {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReportRepo) CreateSummary(ctx context.Context, s *report.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.summaries[s.ID] = &cp
	return nil
}

func (f *fakeReportRepo) UpdateSummary(ctx context.Context, id int64, patch report.SummaryPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.TotalRuns != nil {
		s.TotalRuns = *patch.TotalRuns
	}
	if patch.PassedRuns != nil {
		s.PassedRuns = *patch.PassedRuns
	}
	if patch.FailedRuns != nil {
		s.FailedRuns = *patch.FailedRuns
	}
	if patch.SuccessRate != nil {
		s.SuccessRate = *patch.SuccessRate
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeReportRepo) DeleteSummary(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.summaries, id)
	for did, d := range f.details {
		if d.ReportSummaryID == id {
			delete(f.details, did)
		}
	}
	return nil
}

func (f *fakeReportRepo) DeleteDetailsBySummaryID(ctx context.Context, summaryID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for did, d := range f.details {
		if d.ReportSummaryID == summaryID {
			delete(f.details, did)
		}
	}
	return nil
}

func (f *fakeReportRepo) CreateDetail(ctx context.Context, d *report.Detail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	cp := *d
	f.details[d.ID] = &cp
	return nil
}

func (f *fakeReportRepo) ListDetailsBySummaryID(ctx context.Context, summaryID int64) ([]*report.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*report.Detail
	for _, d := range f.details {
		if d.ReportSummaryID == summaryID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeNotificationRepo struct {
	mu     sync.Mutex
	rows   []*notification.Notification
	nextID int64
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now().UTC()
	cp := *n
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, limit, offset int) ([]*notification.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for i := len(f.rows) - 1; i >= 0; i-- {
		cp := *f.rows[i]
		out = append(out, &cp)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.rows {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		n.IsRead = true
	}
	return nil
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.rows {
		if n.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakePullRequestRepo struct {
	mu     sync.Mutex
	rows   []*pullrequest.PullRequest
	nextID int64
}

func (f *fakePullRequestRepo) seed(pr *pullrequest.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pr.ID == 0 {
		f.nextID++
		pr.ID = f.nextID
	}
	f.rows = append(f.rows, pr)
}

func (f *fakePullRequestRepo) Create(ctx context.Context, pr *pullrequest.PullRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	pr.ID = f.nextID
	cp := *pr
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakePullRequestRepo) GetByID(ctx context.Context, id int64) (*pullrequest.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pr := range f.rows {
		if pr.ID == id {
			cp := *pr
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePullRequestRepo) List(ctx context.Context, limit, offset int) ([]*pullrequest.PullRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pullrequest.PullRequest
	for i := len(f.rows) - 1; i >= 0; i-- {
		cp := *f.rows[i]
		out = append(out, &cp)
	}
	return out, len(f.rows), nil
}

func (f *fakePullRequestRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, pr := range f.rows {
		if pr.ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeAppDirectory struct {
	mu       sync.Mutex
	watching []report.AppInfo
}

func (f *fakeAppDirectory) setWatching(apps ...report.AppInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watching = apps
}

func (f *fakeAppDirectory) GetByID(ctx context.Context, id int64) (*report.AppInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.watching {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAppDirectory) GetWatching(ctx context.Context) ([]report.AppInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]report.AppInfo(nil), f.watching...), nil
}
