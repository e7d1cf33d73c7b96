package daemon

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/go-kit/kit/log"

	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
)

type LoopVars struct {
	// CycleInterval is how often a cycle runs with no other prompting.
	CycleInterval time.Duration
	// GitTimeout bounds the fetch step; SyncTimeout the snapshot,
	// diff and apply steps together; HealthTimeout the health checks.
	GitTimeout    time.Duration
	SyncTimeout   time.Duration
	HealthTimeout time.Duration
}

func (vars *LoopVars) applyDefaults() {
	if vars.CycleInterval == 0 {
		vars.CycleInterval = 5 * time.Minute
	}
	if vars.GitTimeout == 0 {
		vars.GitTimeout = 1 * time.Minute
	}
	if vars.SyncTimeout == 0 {
		vars.SyncTimeout = 5 * time.Minute
	}
	if vars.HealthTimeout == 0 {
		vars.HealthTimeout = 1 * time.Minute
	}
}

// loop drives one application. We want a cycle at least every
// CycleInterval; being asked (webhook, trigger, repo refresh) may
// intervene, in which case the next timed cycle is rescheduled.
// Requests arriving while a cycle runs coalesce into at most one
// pending cycle.
func (d *Daemon) loop(ctx context.Context, r *appRunner, wg *stdsync.WaitGroup) {
	defer wg.Done()

	logger := log.With(d.Logger, "component", "loop", "application", r.app.Name)
	cycleTimer := time.NewTimer(d.CycleInterval)
	defer cycleTimer.Stop()

	// Reconcile immediately on startup.
	r.askForCycle()

	for {
		select {
		case <-ctx.Done():
			logger.Log("stopping", "true")
			return
		case <-r.stop:
			logger.Log("removed", "true")
			return
		case <-r.cycleSoon:
			if !cycleTimer.Stop() {
				select {
				case <-cycleTimer.C:
				default:
				}
			}
			force := false
			select {
			case <-r.forced:
				force = true
			default:
			}
			started := time.Now().UTC()
			err := d.reconcile(ctx, r, force)
			cycleDuration.With(
				convergemetrics.LabelSuccess, fmt.Sprint(err == nil),
			).Observe(time.Since(started).Seconds())
			if err != nil && ctx.Err() == nil {
				logger.Log("err", err)
			}
			cycleTimer.Reset(d.CycleInterval)
		case <-cycleTimer.C:
			r.askForCycle()
		}
	}
}
