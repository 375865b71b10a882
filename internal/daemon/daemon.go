package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"loom/internal/breaker"
	"loom/internal/config"
	"loom/internal/intake"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/orchestrator"
	"loom/internal/progress"
	"loom/internal/services/engine"
	"loom/internal/store"
	"loom/internal/timeline"
)

// pollInterval is how often the daemon sweeps active requests when no retry
// timer demands an earlier pass.
const pollInterval = 5 * time.Second

// Daemon coordinates background request processing and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	orch     *orchestrator.Orchestrator
	intake   *intake.Service
	tracker  *progress.Tracker
	recorder *timeline.Recorder
	notifier notifications.Service
	engine   *engine.Client
	breakers *breaker.Registry

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options wires the daemon's collaborators.
type Options struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Intake       *intake.Service
	Tracker      *progress.Tracker
	Recorder     *timeline.Recorder
	Notifier     notifications.Service
	Engine       *engine.Client
	Breakers     *breaker.Registry
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Orchestrator == nil || opts.Intake == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and intake service")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = progress.New(opts.Store)
	}

	lockPath := filepath.Join(opts.Config.Paths.DataDir, "loomd.lock")
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logger,
		store:    opts.Store,
		orch:     opts.Orchestrator,
		intake:   opts.Intake,
		tracker:  tracker,
		recorder: opts.Recorder,
		notifier: notifier,
		engine:   opts.Engine,
		breakers: opts.Breakers,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(opts.Config, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, launches the HTTP API, and begins the
// processing loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			return err
		}
	}

	go d.processLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("loom daemon started", logging.Args(logging.String("lock", d.lockPath))...)
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Args(logging.Error(err))...)
	}
	d.running.Store(false)
	d.logger.Info("loom daemon stopped")
}

// APIAddr returns the bound API address, or the configured bind address when
// the server has not started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// processLoop sweeps active requests on a timer, tightening the interval when
// a retry comes due sooner.
func (d *Daemon) processLoop(ctx context.Context) {
	defer close(d.done)

	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	for {
		earliest, err := d.orch.ProcessActive(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("processing sweep failed", logging.Args(logging.Error(err))...)
		}
		d.reportStaleDispatches(ctx)

		wait := pollInterval
		if earliest != nil {
			if until := time.Until(*earliest); until < wait {
				wait = until
			}
			if wait < time.Second {
				wait = time.Second
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// reportStaleDispatches logs dispatched tasks whose callback never arrived.
// They are surfaced through /api/status; an operator decides what to do.
func (d *Daemon) reportStaleDispatches(ctx context.Context) {
	staleAfter := time.Duration(d.cfg.Workflow.DispatchStaleAfterMins) * time.Minute
	if staleAfter <= 0 {
		return
	}
	stale, err := d.store.StaleDispatched(ctx, time.Now().UTC().Add(-staleAfter))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("stale dispatch scan failed", logging.Args(logging.Error(err))...)
		}
		return
	}
	for _, task := range stale {
		d.logger.Warn("dispatched task has no callback", logging.Args(
			logging.String(logging.FieldRequestID, task.RequestID),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldCorrelationID, task.CorrelationID),
			logging.Duration("age", time.Since(task.UpdatedAt)),
		)...)
	}
}

// Status reports daemon runtime information.
type Status struct {
	Running         bool
	DBPath          string
	LockFilePath    string
	RequestCounts   store.Stats
	Breakers        []breaker.Status
	StaleDispatches []*store.Task
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		DBPath:       filepath.Join(d.cfg.Paths.DataDir, "loom.db"),
		LockFilePath: d.lockPath,
	}
	if counts, err := d.store.RequestStats(ctx); err == nil {
		status.RequestCounts = counts
	}
	if d.breakers != nil {
		status.Breakers = d.breakers.Statuses()
	}
	if staleAfter := time.Duration(d.cfg.Workflow.DispatchStaleAfterMins) * time.Minute; staleAfter > 0 {
		if stale, err := d.store.StaleDispatched(ctx, time.Now().UTC().Add(-staleAfter)); err == nil {
			status.StaleDispatches = stale
		}
	}
	return status
}
