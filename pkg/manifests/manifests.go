package manifests

import (
	"context"
	"fmt"

	"github.com/convergeproj/converge/pkg/resource"
)

// ManifestSet is the desired state for an application at a specific
// revision: the resource definitions materialized from the repository,
// in apply order. It is immutable once fetched; the Revision is the
// resolved commit hash, never a symbolic ref, so a set can be
// re-fetched byte-identically.
type ManifestSet struct {
	Revision  string
	Resources []resource.Manifest

	byID map[resource.ID]resource.Manifest
}

// NewManifestSet constructs a set from parsed manifests, ordering
// them for apply.
func NewManifestSet(revision string, objs map[string]resource.Manifest) *ManifestSet {
	set := &ManifestSet{
		Revision: revision,
		byID:     map[resource.ID]resource.Manifest{},
	}
	ids := make([]resource.ID, 0, len(objs))
	for _, m := range objs {
		id := m.ResourceID()
		ids = append(ids, id)
		set.byID[id] = m
	}
	resource.SortIDs(ids)
	for _, id := range ids {
		set.Resources = append(set.Resources, set.byID[id])
	}
	return set
}

// WithDefaultNamespace returns a set in which namespaced resources
// that do not name a namespace are placed in ns, re-keyed under their
// effective identity. The receiver is left as it is; with an empty
// ns, or nothing to default, it is returned unchanged.
func (s *ManifestSet) WithDefaultNamespace(ns string) *ManifestSet {
	if ns == "" {
		return s
	}
	changed := false
	objs := make(map[string]resource.Manifest, len(s.Resources))
	for i, m := range s.Resources {
		obj := m.Object()
		if obj.GetNamespace() == "" && !resource.IsClusterKind(obj.GetKind()) {
			obj = obj.DeepCopy()
			obj.SetNamespace(ns)
			m = resource.NewManifest(obj, m.Source(), m.Bytes())
			changed = true
		}
		objs[fmt.Sprintf("%s#%d", m.Source(), i)] = m
	}
	if !changed {
		return s
	}
	return NewManifestSet(s.Revision, objs)
}

// Lookup returns the manifest with the given identity, if present.
func (s *ManifestSet) Lookup(id resource.ID) (resource.Manifest, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// IDs returns the resource identities in apply order.
func (s *ManifestSet) IDs() []resource.ID {
	ids := make([]resource.ID, len(s.Resources))
	for i, m := range s.Resources {
		ids[i] = m.ResourceID()
	}
	return ids
}

// Fetcher retrieves the desired-state manifest set for an application
// source. Implementations resolve the ref to a commit hash before
// reading anything, so the returned set is reproducible.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, ref, path string) (*ManifestSet, error)
}

// NotFoundError means the ref, or the path at that ref, does not
// exist. It is not worth retrying until the declaration or the
// repository contents change.
type NotFoundError struct {
	RepoURL  string
	Revision string
	Path     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("path %q not found in %s at revision %q", e.Path, e.RepoURL, e.Revision)
}

// NetworkError is transport-level trouble reaching the repository;
// retryable.
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return "fetching manifests: " + e.Err.Error()
}

func (e NetworkError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

func IsNetwork(err error) bool {
	_, ok := err.(NetworkError)
	return ok
}
