// Package api defines the types exchanged between converged and its
// clients, and the interface the daemon must satisfy to serve them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/health"
	"github.com/convergeproj/converge/pkg/resource"
	"github.com/convergeproj/converge/pkg/sync"
)

// Phase enumerates where an application is in its reconciliation
// cycle. Idle is the resting state between cycles; Failed means the
// last cycle stopped early, and the daemon will retry.
type Phase string

const (
	PhaseIdle           Phase = "Idle"
	PhaseFetching       Phase = "Fetching"
	PhaseDiffing        Phase = "Diffing"
	PhaseSyncing        Phase = "Syncing"
	PhaseHealthChecking Phase = "HealthChecking"
	PhaseFailed         Phase = "Failed"
)

// ApplicationStatus is the report of an application's most recent
// reconciliation. Result and Health are from the last completed cycle,
// and are kept even while a new cycle runs or after one fails.
type ApplicationStatus struct {
	Application string         `json:"application"`
	Phase       Phase          `json:"phase"`
	Revision    string         `json:"revision,omitempty"`
	Result      *sync.Result   `json:"result,omitempty"`
	Health      *health.Report `json:"health,omitempty"`
	// Resources in the cluster that carry the application's sync-set
	// mark but no longer appear in git; populated when pruning is off.
	Orphaned []resource.ID `json:"orphaned,omitempty"`
	// PendingChanges counts out-of-sync resources awaiting a manual
	// sync; zero for automated applications.
	PendingChanges int `json:"pendingChanges,omitempty"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started,omitempty"`
	Finished time.Time     `json:"finished,omitempty"`
}

type ChangeKind string

const (
	GitChange ChangeKind = "git"
)

var ErrUnknownChange = errors.New("unknown kind of change")

// Change is a hint delivered from outside (e.g., a git host webhook)
// that the daemon should reconcile sooner than the timer would.
type Change struct {
	Kind   ChangeKind
	Source interface{}
}

type GitUpdate struct {
	URL string
	Ref string
}

func (c *Change) UnmarshalJSON(bs []byte) error {
	type raw struct {
		Kind   ChangeKind
		Source json.RawMessage
	}
	var r raw
	if err := json.Unmarshal(bs, &r); err != nil {
		return err
	}
	c.Kind = r.Kind
	switch r.Kind {
	case GitChange:
		var git GitUpdate
		if err := json.Unmarshal(r.Source, &git); err != nil {
			return err
		}
		c.Source = git
	default:
		return ErrUnknownChange
	}
	return nil
}

// Server is the interface converged must satisfy to adequately serve a
// connecting convergectl.
type Server interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	ListApplications(ctx context.Context) ([]ApplicationStatus, error)
	Status(ctx context.Context, app string) (ApplicationStatus, error)
	TriggerSync(ctx context.Context, app string) error
	RemoveApplication(ctx context.Context, app string) error
	NotifyChange(ctx context.Context, change Change) error
	ListEvents(ctx context.Context, app string, limit int) ([]event.Event, error)
}
