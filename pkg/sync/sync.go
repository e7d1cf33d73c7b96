package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"golang.org/x/time/rate"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/diff"
	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
	"github.com/convergeproj/converge/pkg/resource"
)

// Outcome of handling one diff entry.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// Skipped: not attempted, because something it depends on failed
	// (or the cycle was cancelled first).
	OutcomeSkipped Outcome = "skipped"
	// Unchanged: the entry was already in sync; nothing to do.
	OutcomeUnchanged Outcome = "unchanged"
)

// Status summarises a whole sync run.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusPartiallyFailed Status = "partially-failed"
)

// EntryResult records what happened to one entry.
type EntryResult struct {
	ID      resource.ID `json:"id"`
	Action  diff.Action `json:"action"`
	Outcome Outcome     `json:"outcome"`
	Error   string      `json:"error,omitempty"`
	Retries int         `json:"retries,omitempty"`
}

// Result is the outcome of applying a diff.
type Result struct {
	Revision string        `json:"revision"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Status   Status        `json:"status"`
	Entries  []EntryResult `json:"entries"`
}

// Errored returns the entries that failed.
func (r Result) Errored() []EntryResult {
	var failed []EntryResult
	for _, e := range r.Entries {
		if e.Outcome == OutcomeFailed {
			failed = append(failed, e)
		}
	}
	return failed
}

// Syncer applies diffs to the cluster. It is the only component that
// issues mutating calls; everything else observes. A single Syncer
// may be shared across applications, but calls for one application
// must be serialized by the caller (the controller does this by
// running one cycle at a time per application).
type Syncer struct {
	Cluster cluster.Applier
	Logger  log.Logger

	// MaxRetries bounds retry of transient per-entry failures
	// (conflicts, timeouts); BackoffBase is the first retry delay,
	// doubled each attempt.
	MaxRetries  int
	BackoffBase time.Duration

	// EntryTimeout bounds a single apply or delete call, retries
	// included. Applying one resource is atomic as far as the
	// controller is concerned; cancellation is only observed between
	// entries.
	EntryTimeout time.Duration

	// Limiter paces mutating calls so a large diff cannot flood the
	// cluster API.
	Limiter *rate.Limiter
}

func NewSyncer(applier cluster.Applier, logger log.Logger) *Syncer {
	return &Syncer{
		Cluster:      applier,
		Logger:       logger,
		MaxRetries:   3,
		BackoffBase:  500 * time.Millisecond,
		EntryTimeout: 30 * time.Second,
		Limiter:      rate.NewLimiter(rate.Limit(20), 5),
	}
}

// Apply executes the entries strictly in the order given. Entries are
// attempted independently: one failure does not abort the rest,
// except for entries that structurally depend on the failed one
// (their namespace, or an owner), which are skipped. revision is
// recorded in the result for status reporting.
func (s *Syncer) Apply(ctx context.Context, setName, revision string, entries []diff.Entry) Result {
	result := Result{
		Revision: revision,
		Started:  time.Now().UTC(),
	}
	failed := map[resource.ID]bool{}

	for _, entry := range entries {
		er := EntryResult{ID: entry.ID, Action: entry.Action}

		dep := s.dependencyFailed(entry, failed)
		switch {
		case ctx.Err() != nil:
			er.Outcome = OutcomeSkipped
			er.Error = "cycle cancelled before this entry was attempted"
		case entry.Action == diff.ActionInSync:
			er.Outcome = OutcomeUnchanged
		case dep != nil:
			er.Outcome = OutcomeSkipped
			er.Error = "skipped: depends on failed " + dep.String()
			// Transitive: dependents of this entry skip too.
			failed[entry.ID] = true
		default:
			err, retries := s.applyOne(ctx, setName, entry)
			er.Retries = retries
			if retries > 0 {
				applyRetries.With(convergemetrics.LabelAction, string(entry.Action)).Add(float64(retries))
			}
			if err != nil {
				er.Outcome = OutcomeFailed
				er.Error = err.Error()
				failed[entry.ID] = true
				s.Logger.Log("warning", "failed to apply", "resource", entry.ID.String(), "action", entry.Action, "err", err)
			} else {
				er.Outcome = OutcomeSucceeded
			}
		}
		result.Entries = append(result.Entries, er)
	}

	result.Finished = time.Now().UTC()
	result.Status = overallStatus(result.Entries)
	syncDuration.With(
		convergemetrics.LabelSuccess, fmt.Sprint(result.Status == StatusSucceeded),
	).Observe(result.Finished.Sub(result.Started).Seconds())
	return result
}

// applyOne performs the mutation for a single entry, retrying
// transient failures a bounded number of times with doubling backoff.
func (s *Syncer) applyOne(ctx context.Context, setName string, entry diff.Entry) (error, int) {
	backoff := s.BackoffBase
	var err error
	for attempt := 0; ; attempt++ {
		if lerr := s.Limiter.Wait(ctx); lerr != nil {
			return lerr, attempt
		}
		err = s.mutate(ctx, setName, entry)
		if err == nil || !cluster.IsTransient(err) || attempt >= s.MaxRetries {
			return err, attempt
		}
		select {
		case <-ctx.Done():
			return ctx.Err(), attempt
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *Syncer) mutate(ctx context.Context, setName string, entry diff.Entry) error {
	opCtx, cancel := context.WithTimeout(ctx, s.EntryTimeout)
	defer cancel()
	switch entry.Action {
	case diff.ActionCreate, diff.ActionUpdate:
		return s.Cluster.Apply(opCtx, setName, *entry.Desired)
	case diff.ActionDelete:
		err := s.Cluster.Delete(opCtx, entry.ID)
		if cluster.IsNotFound(err) {
			// Already gone; that is what we wanted.
			return nil
		}
		return err
	}
	return nil
}

// dependencyFailed returns the identity of a failed entry this one
// structurally depends on, or nil. A namespaced resource depends on
// its namespace; a resource with ownerReferences depends on its
// owners (when they are part of the same diff).
func (s *Syncer) dependencyFailed(entry diff.Entry, failed map[resource.ID]bool) *resource.ID {
	if len(failed) == 0 {
		return nil
	}
	ns := entry.ID.Namespace()
	if ns != resource.ClusterScope {
		nsID := resource.MakeID("", "", "Namespace", ns)
		if failed[nsID] {
			return &nsID
		}
	}
	if entry.Desired != nil {
		for _, ref := range entry.Desired.Object().GetOwnerReferences() {
			group := ""
			if i := strings.Index(ref.APIVersion, "/"); i >= 0 {
				group = ref.APIVersion[:i]
			}
			ownerID := resource.MakeID(ns, group, ref.Kind, ref.Name)
			if failed[ownerID] {
				return &ownerID
			}
		}
	}
	return nil
}

func overallStatus(entries []EntryResult) Status {
	var attempted, succeeded int
	for _, e := range entries {
		switch e.Outcome {
		case OutcomeSucceeded:
			attempted++
			succeeded++
		case OutcomeFailed, OutcomeSkipped:
			attempted++
		}
	}
	switch {
	case attempted == 0 || succeeded == attempted:
		return StatusSucceeded
	case succeeded == 0:
		return StatusFailed
	}
	return StatusPartiallyFailed
}
