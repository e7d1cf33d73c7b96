package daemon

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/convergeproj/converge/pkg/api"
	"github.com/convergeproj/converge/pkg/diff"
	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/health"
	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
	"github.com/convergeproj/converge/pkg/sync"
)

// reconcile runs one cycle for an application: fetch the desired
// state, snapshot and diff the live state, apply if called for, then
// evaluate health. Cancellation is observed between steps; a step in
// flight runs to completion (or to its own timeout). A failed cycle
// keeps the last completed cycle's Result and Health in the status.
func (d *Daemon) reconcile(ctx context.Context, r *appRunner, force bool) error {
	app := r.app
	logger := log.With(d.Logger, "component", "cycle", "application", app.Name)

	status := r.status.Load().(api.ApplicationStatus)
	status.Started = time.Now().UTC()
	status.Error = ""

	step := func(phase api.Phase, started time.Time) {
		stepDuration.With(convergemetrics.LabelPhase, string(phase)).
			Observe(time.Since(started).Seconds())
	}

	fail := func(err error) error {
		status.Phase = api.PhaseFailed
		status.Error = err.Error()
		status.Finished = time.Now().UTC()
		r.status.Store(status)
		if ctx.Err() == nil {
			d.logFailure(app.Name, status.Started, err)
		}
		return err
	}

	// Fetch
	status.Phase = api.PhaseFetching
	r.status.Store(status)
	fetchStart := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, d.GitTimeout)
	set, err := d.Fetcher.Fetch(fetchCtx, app.Source.RepoURL, app.Ref(), app.Source.Path)
	cancel()
	step(api.PhaseFetching, fetchStart)
	if err != nil {
		return fail(errors.Wrap(err, "fetching manifests"))
	}
	set = set.WithDefaultNamespace(app.Destination.Namespace)
	syncManifestsMetric.With(convergemetrics.LabelApplication, app.Name).Set(float64(len(set.Resources)))

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Diff
	status.Phase = api.PhaseDiffing
	r.status.Store(status)
	diffStart := time.Now()
	diffCtx, cancel := context.WithTimeout(ctx, d.SyncTimeout)
	snapshot, err := d.Cluster.Snapshot(diffCtx, app.SyncSetName())
	cancel()
	if err != nil {
		step(api.PhaseDiffing, diffStart)
		return fail(errors.Wrap(err, "observing live state"))
	}
	entries, orphaned, err := diff.Diff(set, snapshot, app.SyncPolicy.PruneEnabled())
	step(api.PhaseDiffing, diffStart)
	if err != nil {
		return fail(errors.Wrap(err, "diffing"))
	}
	status.Orphaned = orphaned

	outOfSync := 0
	onlyUpdates := true
	for _, e := range entries {
		switch e.Action {
		case diff.ActionInSync:
		case diff.ActionUpdate:
			outOfSync++
		default:
			outOfSync++
			onlyUpdates = false
		}
	}
	outOfSyncMetric.With(convergemetrics.LabelApplication, app.Name).Set(float64(outOfSync))

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Sync, if the policy (or an explicit trigger) calls for it. An
	// automated application without self-heal corrects new revisions,
	// missing resources and (with prune) extras, but tolerates drift
	// on a revision it has already applied.
	syncNeeded := outOfSync > 0 && (force || app.SyncPolicy.Automated)
	if syncNeeded && !force && !app.SyncPolicy.SelfHealEnabled() &&
		set.Revision == r.lastSynced && onlyUpdates {
		syncNeeded = false
	}
	status.PendingChanges = 0
	if outOfSync > 0 && !syncNeeded {
		status.PendingChanges = outOfSync
		logger.Log("info", "out of sync, not syncing", "revision", set.Revision, "pending", outOfSync)
	}

	if syncNeeded {
		status.Phase = api.PhaseSyncing
		r.status.Store(status)
		syncStart := time.Now()
		syncCtx, cancel := context.WithTimeout(ctx, d.SyncTimeout)
		r.syncMu.Lock()
		result := d.Syncer.Apply(syncCtx, app.SyncSetName(), set.Revision, entries)
		r.syncMu.Unlock()
		cancel()
		step(api.PhaseSyncing, syncStart)
		status.Result = &result
		// A revision counts as synced only when everything applied;
		// anything less is retried on the next cycle rather than
		// tolerated as drift.
		if result.Status == sync.StatusSucceeded {
			r.lastSynced = set.Revision
			status.Revision = set.Revision
		}
		d.logSync(app.Name, result)
		logger.Log("info", "synced", "revision", set.Revision, "status", result.Status)
	} else if outOfSync == 0 {
		// Nothing to do: the live state already matches this
		// revision, so report it as synced.
		r.lastSynced = set.Revision
		status.Revision = set.Revision
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Health
	status.Phase = api.PhaseHealthChecking
	r.status.Store(status)
	healthStart := time.Now()
	healthCtx, cancel := context.WithTimeout(ctx, d.HealthTimeout)
	report := d.Health.Evaluate(healthCtx, set.IDs())
	cancel()
	step(api.PhaseHealthChecking, healthStart)
	if status.Health == nil || status.Health.Status != report.Status {
		d.logHealth(app.Name, status.Health, report.Status)
	}
	status.Health = &report

	status.Phase = api.PhaseIdle
	status.Finished = time.Now().UTC()
	r.status.Store(status)
	return nil
}

func (d *Daemon) logSync(appName string, result sync.Result) {
	level := event.LogLevelInfo
	message := fmt.Sprintf("synced revision %s", result.Revision)
	if errored := result.Errored(); len(errored) > 0 {
		level = event.LogLevelError
		message = fmt.Sprintf("synced revision %s; %d resources failed, e.g. %s: %s",
			result.Revision, len(errored), errored[0].ID, errored[0].Error)
	}
	d.Events.LogEvent(event.Event{
		Application: appName,
		Type:        event.EventSync,
		StartedAt:   result.Started,
		EndedAt:     result.Finished,
		LogLevel:    level,
		Message:     message,
		Metadata: map[string]string{
			"revision": result.Revision,
			"status":   string(result.Status),
			"entries":  strconv.Itoa(len(result.Entries)),
		},
	})
}

func (d *Daemon) logHealth(appName string, previous *health.Report, current health.Status) {
	now := time.Now().UTC()
	was := "unknown"
	if previous != nil {
		was = string(previous.Status)
	}
	level := event.LogLevelInfo
	if current == health.StatusDegraded {
		level = event.LogLevelWarn
	}
	d.Events.LogEvent(event.Event{
		Application: appName,
		Type:        event.EventHealth,
		StartedAt:   now,
		EndedAt:     now,
		LogLevel:    level,
		Message:     fmt.Sprintf("health changed from %s to %s", was, current),
		Metadata:    map[string]string{"status": string(current)},
	})
}

func (d *Daemon) logFailure(appName string, started time.Time, err error) {
	d.Events.LogEvent(event.Event{
		Application: appName,
		Type:        event.EventFailure,
		StartedAt:   started,
		EndedAt:     time.Now().UTC(),
		LogLevel:    event.LogLevelError,
		Message:     err.Error(),
	})
}
