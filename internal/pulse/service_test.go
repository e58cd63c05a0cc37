package pulse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"

	"code-stats-daemon/internal/activity"
	"code-stats-daemon/internal/config"
	"code-stats-daemon/internal/pulse/client"
	"code-stats-daemon/internal/pulse/domain"
	"code-stats-daemon/internal/telemetry"
)

// pulseAPI is an httptest endpoint answering every POST with status.
type pulseAPI struct {
	srv    *httptest.Server
	status atomic.Int32
	mu     sync.Mutex
	bodies []domain.Payload
}

func newPulseAPI(t *testing.T) *pulseAPI {
	t.Helper()
	api := &pulseAPI{}
	api.status.Store(http.StatusCreated)
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		api.mu.Lock()
		api.bodies = append(api.bodies, b)
		api.mu.Unlock()
		w.WriteHeader(int(api.status.Load()))
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *pulseAPI) Bodies() []domain.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Payload(nil), a.bodies...)
}

func TestService_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mClock := quartz.NewMock(t)
	api := newPulseAPI(t)
	settings := validSettings()
	settings.APIURL = api.srv.URL
	rec := &telemetry.Recorder{}

	svc := NewService(ctx, Options{
		Config:     newFakeConfig(settings),
		Poster:     client.New(client.WithHTTPClient(api.srv.Client())),
		Clock:      mClock,
		Classifier: languageClassifier{},
		Status:     rec,
	})
	defer svc.Shutdown(ctx)

	burst := func() {
		for _, lang := range []string{"python", "python", "go"} {
			if !svc.HandleEvent(ctx, edit(lang)) {
				t.Fatalf("HandleEvent(%q) = false, want true", lang)
			}
		}
	}

	// 201: the burst is delivered as one pulse and the queue empties.
	burst()
	if got := svc.Queue.Snapshot().Current; got["python"] != 2 || got["go"] != 1 {
		t.Fatalf("current pulse = %v, want python:2 go:1", got)
	}
	mClock.Advance(10 * time.Second).MustWait(ctx)
	bodies := api.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("posted %d pulses, want 1", len(bodies))
	}
	rec0, err := domain.DecodePayload(bodies[0])
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(rec0.XPs) != 2 || rec0.XPs[0] != (domain.XP{Language: "go", XP: 1}) || rec0.XPs[1] != (domain.XP{Language: "python", XP: 2}) {
		t.Errorf("xps = %+v, want [go:1 python:2]", rec0.XPs)
	}
	if snap := svc.Queue.Snapshot(); snap.Current != nil || len(snap.Backlog) != 0 {
		t.Errorf("queue after 201 = %+v, want empty", snap)
	}

	// 500: the pulse stays in the backlog.
	api.status.Store(http.StatusInternalServerError)
	burst()
	mClock.Advance(10 * time.Second).MustWait(ctx)
	snap := svc.Queue.Snapshot()
	if len(snap.Backlog) != 1 {
		t.Fatalf("backlog = %d records, want 1", len(snap.Backlog))
	}
	if got := decode(t, snap.Backlog[0]); got["python"] != 2 || got["go"] != 1 || len(got) != 2 {
		t.Errorf("backlog xps = %v, want python:2 go:1", got)
	}
	if rec.Current() == "" {
		t.Error("status surface should show the rejection")
	}

	// 201 again: the next cycle drains the backlog verbatim.
	api.status.Store(http.StatusCreated)
	res, err := svc.Sender.SendPulses(ctx)
	if err != nil {
		t.Fatalf("SendPulses: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", res.Delivered)
	}
	bodies = api.Bodies()
	if string(bodies[len(bodies)-1]) != string(snap.Backlog[0]) {
		t.Errorf("retried body = %s, want %s", bodies[len(bodies)-1], snap.Backlog[0])
	}
	if after := svc.Queue.Snapshot(); len(after.Backlog) != 0 || after.Current != nil {
		t.Errorf("queue after retry = %+v, want empty", after)
	}
	if rec.Current() != "" {
		t.Errorf("status surface = %q, want cleared", rec.Current())
	}
}

func TestService_IgnoresEventsBeforeConfigLoaded(t *testing.T) {
	ctx := context.Background()
	cfg := newFakeConfig(validSettings())
	cfg.initialized = false
	poster := &mockPoster{}
	svc := NewService(ctx, Options{
		Config:     cfg,
		Poster:     poster,
		Clock:      quartz.NewMock(t),
		Classifier: languageClassifier{},
	})
	defer svc.Shutdown(ctx)

	if svc.HandleEvent(ctx, edit("go")) {
		t.Error("HandleEvent before config load = true, want false")
	}
	if svc.Timer.Armed() {
		t.Error("timer armed before config load")
	}
	if svc.HandleEvent(ctx, activity.Event{ViewID: "1", Syntax: "go"}) {
		t.Error("non-genuine edit recorded")
	}
}

func TestService_TimeoutChangeUpdatesDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mClock := quartz.NewMock(t)
	cfg := newFakeConfig(validSettings())
	poster := &mockPoster{}
	svc := NewService(ctx, Options{
		Config:     cfg,
		Poster:     poster,
		Clock:      mClock,
		Classifier: languageClassifier{},
	})
	defer svc.Shutdown(ctx)

	next := validSettings()
	next.PulseTimeout = 2 * time.Second
	cfg.set(config.TimeoutChanged, next)
	if svc.Timer.Delay() != 2*time.Second {
		t.Fatalf("Delay = %v, want 2s", svc.Timer.Delay())
	}
	svc.HandleEvent(ctx, edit("go"))
	mClock.Advance(2 * time.Second).MustWait(ctx)
	if n := len(poster.Calls()); n != 1 {
		t.Errorf("posted %d, want 1 after the shorter delay", n)
	}
}

func TestService_ShutdownFlushes(t *testing.T) {
	ctx := context.Background()
	poster := &mockPoster{}
	svc := NewService(ctx, Options{
		Config:     newFakeConfig(validSettings()),
		Poster:     poster,
		Clock:      quartz.NewMock(t),
		Classifier: languageClassifier{},
	})
	svc.HandleEvent(ctx, edit("go"))
	svc.Shutdown(ctx)

	if n := len(poster.Calls()); n != 1 {
		t.Fatalf("posted %d on shutdown, want 1", n)
	}
	if svc.HandleEvent(ctx, edit("go")) && svc.Timer.Armed() {
		t.Error("timer armed after shutdown")
	}
}

func TestService_ShutdownWithEmptyQueueDoesNotSend(t *testing.T) {
	ctx := context.Background()
	rec := &telemetry.Recorder{}
	svc := NewService(ctx, Options{
		Config:     newFakeConfig(config.Settings{}),
		Poster:     &mockPoster{},
		Clock:      quartz.NewMock(t),
		Classifier: languageClassifier{},
		Status:     rec,
	})
	svc.Shutdown(ctx)
	if got := rec.Statuses(); len(got) != 0 {
		t.Errorf("statuses = %+v, want none", got)
	}
}
