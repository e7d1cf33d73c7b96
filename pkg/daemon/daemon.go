// Package daemon implements the reconciliation controller: one loop
// per application, each driving fetch → diff → sync → health cycles.
package daemon

import (
	"context"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/convergeproj/converge/pkg/api"
	"github.com/convergeproj/converge/pkg/apps"
	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/diff"
	convergeerr "github.com/convergeproj/converge/pkg/errors"
	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/git"
	"github.com/convergeproj/converge/pkg/health"
	"github.com/convergeproj/converge/pkg/manifests"
	"github.com/convergeproj/converge/pkg/sync"
)

// Daemon reconciles a set of declared applications against the
// cluster, and serves the API about it.
type Daemon struct {
	V       string
	Cluster cluster.Cluster
	Fetcher manifests.Fetcher
	Syncer  *sync.Syncer
	Health  *health.Evaluator
	Events  *event.Log
	Logger  log.Logger
	LoopVars

	// Repos carries mirror-change notifications; nil is fine (the
	// interval timer still drives cycles).
	Repos <-chan map[string]struct{}

	mu      stdsync.RWMutex
	runners map[string]*appRunner
}

// appRunner is the per-application state: the declaration, the
// trigger channels for its loop, and the latest status. Each
// application's cycles are serialized by its loop goroutine; status
// is read lock-free via the atomic.
type appRunner struct {
	app       apps.Application
	cycleSoon chan struct{}
	forced    chan struct{}
	stop      chan struct{}
	status    atomic.Value // api.ApplicationStatus

	// lastSynced is the revision most recently applied; only the loop
	// goroutine touches it.
	lastSynced string

	// syncMu serializes mutating runs for this application: the
	// cycle's apply step, and the prune on removal.
	syncMu stdsync.Mutex
}

// Ask for a cycle, or if there's one waiting, let that happen.
func (r *appRunner) askForCycle() {
	select {
	case r.cycleSoon <- struct{}{}:
	default:
	}
}

// askForForcedCycle requests a cycle that syncs even if the
// application is not automated.
func (r *appRunner) askForForcedCycle() {
	select {
	case r.forced <- struct{}{}:
	default:
	}
	r.askForCycle()
}

func New(v string, clus cluster.Cluster, fetcher manifests.Fetcher, syncer *sync.Syncer, evaluator *health.Evaluator, events *event.Log, logger log.Logger, vars LoopVars) *Daemon {
	vars.applyDefaults()
	return &Daemon{
		V:        v,
		Cluster:  clus,
		Fetcher:  fetcher,
		Syncer:   syncer,
		Health:   evaluator,
		Events:   events,
		Logger:   logger,
		LoopVars: vars,
		runners:  map[string]*appRunner{},
	}
}

// AddApplication registers a declaration. The loop is not started
// here; Run starts loops for everything registered.
func (d *Daemon) AddApplication(app apps.Application) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &appRunner{
		app:       app,
		cycleSoon: make(chan struct{}, 1),
		forced:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	r.status.Store(api.ApplicationStatus{Application: app.Name, Phase: api.PhaseIdle})
	d.runners[app.Name] = r
}

// Run starts one loop goroutine per registered application, plus the
// repo-change distributor, and blocks until ctx is cancelled and the
// loops have wound down.
func (d *Daemon) Run(ctx context.Context) {
	var wg stdsync.WaitGroup

	d.mu.RLock()
	for _, r := range d.runners {
		wg.Add(1)
		go d.loop(ctx, r, &wg)
	}
	d.mu.RUnlock()

	if d.Repos != nil {
		wg.Add(1)
		go d.distributeChanges(ctx, &wg)
	}

	wg.Wait()
}

// distributeChanges turns "this mirror has new content" into cycle
// requests for the applications sourced from it.
func (d *Daemon) distributeChanges(ctx context.Context, wg *stdsync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case changed, ok := <-d.Repos:
			if !ok {
				return
			}
			d.mu.RLock()
			for _, r := range d.runners {
				name := manifests.MirrorName(r.app.Source.RepoURL)
				if _, ok := changed[name]; ok {
					r.askForCycle()
				}
			}
			d.mu.RUnlock()
		}
	}
}

func (d *Daemon) runner(app string) *appRunner {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runners[app]
}

// --- api.Server

func (d *Daemon) Ping(ctx context.Context) error {
	return d.Cluster.Ping(ctx)
}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) ListApplications(ctx context.Context) ([]api.ApplicationStatus, error) {
	d.mu.RLock()
	res := make([]api.ApplicationStatus, 0, len(d.runners))
	for _, r := range d.runners {
		res = append(res, r.status.Load().(api.ApplicationStatus))
	}
	d.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Application < res[j].Application })
	return res, nil
}

func (d *Daemon) Status(ctx context.Context, app string) (api.ApplicationStatus, error) {
	r := d.runner(app)
	if r == nil {
		return api.ApplicationStatus{}, convergeerr.AppNotFound(app)
	}
	return r.status.Load().(api.ApplicationStatus), nil
}

func (d *Daemon) TriggerSync(ctx context.Context, app string) error {
	r := d.runner(app)
	if r == nil {
		return convergeerr.AppNotFound(app)
	}
	r.askForForcedCycle()
	now := time.Now().UTC()
	d.Events.LogEvent(event.Event{
		Application: app,
		Type:        event.EventNotify,
		StartedAt:   now,
		EndedAt:     now,
		LogLevel:    event.LogLevelInfo,
		Message:     "sync triggered via API",
	})
	return nil
}

// RemoveApplication deregisters a declaration and stops its loop. If
// the policy enables pruning, the resources the application created
// are deleted, dependents first.
func (d *Daemon) RemoveApplication(ctx context.Context, app string) error {
	d.mu.Lock()
	r, ok := d.runners[app]
	if ok {
		delete(d.runners, app)
	}
	d.mu.Unlock()
	if !ok {
		return convergeerr.AppNotFound(app)
	}
	close(r.stop)

	started := time.Now().UTC()
	if r.app.SyncPolicy.PruneEnabled() {
		r.syncMu.Lock()
		defer r.syncMu.Unlock()
		ctx, cancel := context.WithTimeout(ctx, d.SyncTimeout)
		defer cancel()
		snapshot, err := d.Cluster.Snapshot(ctx, r.app.SyncSetName())
		if err != nil {
			return errors.Wrap(err, "observing live state")
		}
		empty := manifests.NewManifestSet("", nil)
		entries, _, err := diff.Diff(empty, snapshot, true)
		if err != nil {
			return errors.Wrap(err, "planning removal")
		}
		result := d.Syncer.Apply(ctx, r.app.SyncSetName(), "", entries)
		if errored := result.Errored(); len(errored) > 0 {
			return errors.Errorf("removing resources: %d failed, e.g. %s: %s",
				len(errored), errored[0].ID, errored[0].Error)
		}
	}

	d.Events.LogEvent(event.Event{
		Application: app,
		Type:        event.EventNotify,
		StartedAt:   started,
		EndedAt:     time.Now().UTC(),
		LogLevel:    event.LogLevelInfo,
		Message:     "application removed",
	})
	return nil
}

func (d *Daemon) NotifyChange(ctx context.Context, change api.Change) error {
	switch source := change.Source.(type) {
	case api.GitUpdate:
		if notifier, ok := d.Fetcher.(interface{ Notify(repoURL string) }); ok {
			notifier.Notify(source.URL)
		}
		d.mu.RLock()
		for _, r := range d.runners {
			if (git.Remote{URL: r.app.Source.RepoURL}).Equivalent(source.URL) {
				r.askForCycle()
			}
		}
		d.mu.RUnlock()
		return nil
	default:
		return api.ErrUnknownChange
	}
}

func (d *Daemon) ListEvents(ctx context.Context, app string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.Events.Events(app, limit), nil
}
