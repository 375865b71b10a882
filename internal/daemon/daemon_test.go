package daemon

import (
	"context"
	"testing"

	"github.com/gofrs/flock"

	"loom/internal/agent"
	"loom/internal/breaker"
	"loom/internal/intake"
	"loom/internal/orchestrator"
	"loom/internal/retry"
	"loom/internal/store"
	"loom/internal/testsupport"
	"loom/internal/timeline"
)

func newBareDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	st := testsupport.MustOpenStore(t, cfg)
	recorder := timeline.New(st, nil)
	runner := agent.NewRunner(st, breaker.NewRegistry(breaker.DefaultSettings()), recorder, nil, true)
	orch := orchestrator.New(st, runner, retry.FromConfig(cfg), recorder, nil, nil)

	d, err := New(Options{
		Config:       cfg,
		Store:        st,
		Orchestrator: orch,
		Intake:       intake.New(st, nil),
		Recorder:     recorder,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	first := newBareDaemon(t)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second := newBareDaemon(t)
	second.lockPath = first.lockPath
	second.lock = flock.New(first.lockPath)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second Start on the held lock must fail")
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	d := newBareDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("double Start must fail")
	}
	d.Stop()
	d.Stop() // second Stop is a no-op

	status := d.Status(ctx)
	if status.Running {
		t.Fatal("stopped daemon reports running")
	}
}

func TestStatusReportsRequestCounts(t *testing.T) {
	d := newBareDaemon(t)
	testsupport.NewRequest(t, d.store, store.TypeVideoAd, store.StatusIntake)
	testsupport.NewRequest(t, d.store, store.TypeSocialPost, store.StatusPublished)

	status := d.Status(context.Background())
	if status.RequestCounts[store.StatusIntake] != 1 || status.RequestCounts[store.StatusPublished] != 1 {
		t.Fatalf("unexpected counts %+v", status.RequestCounts)
	}
	if status.DBPath == "" || status.LockFilePath == "" {
		t.Fatalf("missing paths in status %+v", status)
	}
}
