package cluster

import (
	"context"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/convergeproj/converge/pkg/resource"
)

// LiveResource is a resource instance as observed in the cluster. The
// cluster owns it; what we hold is a read-only view taken at
// ObservedAt.
type LiveResource struct {
	ID         resource.ID
	Obj        *unstructured.Unstructured
	ObservedAt time.Time
}

// Snapshot is the live state of one sync set, taken at a defined
// checkpoint (cycle start) and never mutated afterwards. It is shared
// read-only between the differ and the health evaluator within a
// cycle; staleness beyond one cycle is acceptable.
type Snapshot struct {
	TakenAt   time.Time
	Resources map[resource.ID]LiveResource
}

// Lookup returns the live resource with the given identity, if
// observed.
func (s *Snapshot) Lookup(id resource.ID) (LiveResource, bool) {
	r, ok := s.Resources[id]
	return r, ok
}

// Reader is the non-mutating face of a cluster.
type Reader interface {
	// Snapshot observes the live resources belonging to the named
	// sync set (i.e., previously applied by us and marked as such).
	Snapshot(ctx context.Context, setName string) (*Snapshot, error)
	// Get fetches the current state of a single resource. Returns a
	// NotFoundError if it does not exist.
	Get(ctx context.Context, id resource.ID) (*LiveResource, error)
	// Ping checks connectivity with the cluster API.
	Ping(ctx context.Context) error
}

// Applier is the mutating face of a cluster. The sync executor is the
// only component that may call these.
type Applier interface {
	// Apply creates or updates the resource described by the
	// manifest, stamping it as belonging to the named sync set.
	Apply(ctx context.Context, setName string, m resource.Manifest) error
	// Delete removes the resource with the given identity.
	Delete(ctx context.Context, id resource.ID) error
}

// Cluster is what the reconciliation loop needs from the target
// cluster.
type Cluster interface {
	Reader
	Applier
}

// ResourceError attaches a resource identity and manifest source to
// an error arising from handling that resource.
type ResourceError struct {
	ResourceID resource.ID
	Source     string
	Error      error
}

// SyncError collects per-resource errors from a sync run; failing to
// apply one resource must not stop others being attempted, so errors
// accumulate rather than abort.
type SyncError []ResourceError

func (err SyncError) Error() string {
	var errs []string
	for _, e := range err {
		errs = append(errs, e.ResourceID.String()+": "+e.Error.Error())
	}
	return strings.Join(errs, "; ")
}
