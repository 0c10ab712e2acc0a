package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/recorder"
	"archivist/internal/registry"
	"archivist/internal/services"
	"archivist/internal/testsupport"
	"archivist/internal/workflow"
)

func newTestDaemon(t *testing.T) (*Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRoom(config.Room{ID: 7}))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logger := logging.NewNop()
	ledger, _ := testsupport.MustOpenLedger(t, cfg)
	proc := testsupport.NewFakeProcessor()
	notifier := &testsupport.FakeNotifier{}
	mgr := workflow.NewManager(cfg, ledger, testsupport.NewFakePublisher(), logger)
	runner := pipeline.NewRunner(cfg, proc, ledger, mgr, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sched, err := pipeline.NewScheduler(ctx, runner, 2, logger)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	reg := registry.New(cfg, proc, sched, notifier, logger)

	d, err := New(cfg, logger, Components{
		Ledger:    ledger,
		Registry:  reg,
		Workflow:  mgr,
		Scheduler: sched,
		Runner:    runner,
		Publisher: &accountRouterStub{},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, cfg := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := New(cfg, logging.NewNop(), d.comps)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock contention to fail the second instance")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected daemon to be stopped")
	}
}

func serve(d *Daemon, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	d.api.server.Handler.ServeHTTP(w, req)
	return w
}

func TestProcessVideoRoutesEvent(t *testing.T) {
	d, _ := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	body := `{"EventType":"SessionStarted","EventTimestamp":"2026-03-04T20:00:00.1234567+08:00","EventId":"e1",
		"EventData":{"SessionId":"s1","RoomId":7,"Name":"alice","Title":"live"}}`
	w := serve(d, http.MethodPost, "/process_video", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}
	testsupport.Eventually(t, "session registered", func() bool {
		_, ok := d.comps.Registry.Lookup("s1")
		return ok
	})
}

func TestProcessVideoAcknowledgesMalformedAndUnknown(t *testing.T) {
	d, _ := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	for _, body := range []string{
		`not json`,
		`{"EventType":"SessionStarted","EventData":{"SessionId":"s1","RoomId":7}}`,
		`{"EventType":"SessionStarted","EventTimestamp":"2026-03-04T20:00:00Z","EventData":{"SessionId":"s9","RoomId":99}}`,
	} {
		w := serve(d, http.MethodPost, "/process_video", body)
		if w.Code != http.StatusOK || w.Body.Len() != 0 {
			t.Fatalf("body %q: status %d body %q", body, w.Code, w.Body.String())
		}
	}
}

func TestStateAndStatusEndpoints(t *testing.T) {
	d, _ := newTestDaemon(t)
	if _, err := d.comps.Ledger.RecordArtifact(context.Background(), "s1", "art-1"); err != nil {
		t.Fatalf("RecordArtifact: %v", err)
	}

	w := serve(d, http.MethodGet, "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d", w.Code)
	}
	var st api.StateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Artifacts["s1"] != "art-1" {
		t.Fatalf("artifacts = %v", st.Artifacts)
	}

	w = serve(d, http.MethodGet, "/api/status", "")
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.PID == 0 || status.StatePath == "" {
		t.Fatalf("status = %+v", status)
	}

	if w := serve(d, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestReloadSwapsRooms(t *testing.T) {
	d, _ := newTestDaemon(t)
	started, stopped, err := d.Reload(context.Background(), &config.Config{Rooms: []config.Room{{ID: 8}}})
	if err != nil || started != nil || stopped != nil {
		t.Fatalf("reload without supervisor = %v %v %v", started, stopped, err)
	}
	body := `{"EventType":"SessionStarted","EventTimestamp":"2026-03-04T20:00:00Z","EventData":{"SessionId":"s1","RoomId":8}}`
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	serve(d, http.MethodPost, "/process_video", body)
	testsupport.Eventually(t, "reloaded room accepted", func() bool {
		_, ok := d.comps.Registry.Lookup("s1")
		return ok
	})
}

type accountRouterStub struct {
	accounts map[string]config.Account
	err      error
}

func (a *accountRouterStub) SetAccounts(_ context.Context, accounts map[string]config.Account) error {
	if a.err != nil {
		return a.err
	}
	a.accounts = accounts
	return nil
}

func TestReloadPassesAccountsToPublisher(t *testing.T) {
	d, _ := newTestDaemon(t)
	next := &config.Config{
		Accounts: map[string]config.Account{"backup": {Kind: config.AccountLocal}},
		Rooms:    []config.Room{{ID: 8, Uploader: "backup"}},
	}
	if _, _, err := d.Reload(context.Background(), next); err != nil {
		t.Fatalf("reload: %v", err)
	}
	stub := d.comps.Publisher.(*accountRouterStub)
	if _, ok := stub.accounts["backup"]; !ok {
		t.Fatalf("publisher accounts = %v", stub.accounts)
	}
}

func TestReloadKeepsRoomsWhenAccountsFail(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.comps.Publisher = &accountRouterStub{err: errors.New("bad credentials")}
	next := &config.Config{
		Accounts: map[string]config.Account{"backup": {Kind: config.AccountS3}},
		Rooms:    []config.Room{{ID: 8, Uploader: "backup"}},
	}
	if _, _, err := d.Reload(context.Background(), next); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	ctx := context.Background()
	started := func(session string, room int64) recorder.Event {
		return recorder.Event{
			EventType:      recorder.EventSessionStarted,
			EventTimestamp: "2026-03-04T20:00:00Z",
			EventData:      recorder.EventData{SessionID: session, RoomID: room},
		}
	}
	if err := d.comps.Registry.Handle(ctx, started("s8", 8)); err == nil {
		t.Fatalf("room from rejected reload was applied")
	}
	if err := d.comps.Registry.Handle(ctx, started("s7", 7)); err != nil {
		t.Fatalf("previous room dropped: %v", err)
	}
}
