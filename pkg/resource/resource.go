package resource

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Manifest is a single resource definition as found in the
// source-of-truth repository. It keeps the raw bytes around, so that
// what gets applied to the cluster is what was committed, not a
// round-tripped rendering of it.
type Manifest struct {
	obj    *unstructured.Unstructured
	source string
	bytes  []byte
}

// NewManifest wraps an already-decoded object as a Manifest. Used by
// tests and by the differ when it needs to synthesise entries.
func NewManifest(obj *unstructured.Unstructured, source string, raw []byte) Manifest {
	return Manifest{obj: obj, source: source, bytes: raw}
}

// ResourceID returns the identity of this manifest within the
// cluster.
func (m Manifest) ResourceID() ID {
	return MakeID(m.obj.GetNamespace(), groupOf(m.obj.GetAPIVersion()), m.obj.GetKind(), m.obj.GetName())
}

// Source returns a human-readable indication of where the manifest
// came from, e.g., a file path relative to the repo root.
func (m Manifest) Source() string { return m.source }

// Bytes returns the manifest as committed, suitable for logging or
// re-parsing.
func (m Manifest) Bytes() []byte { return m.bytes }

// Object returns the decoded form of the manifest. Callers that
// mutate it must take a deep copy first.
func (m Manifest) Object() *unstructured.Unstructured { return m.obj }

// Kind returns the resource kind as written in the manifest.
func (m Manifest) Kind() string { return m.obj.GetKind() }

// groupOf extracts the API group from an apiVersion value; core
// resources ("v1") have an empty group.
func groupOf(apiVersion string) string {
	if i := strings.Index(apiVersion, "/"); i >= 0 {
		return apiVersion[:i]
	}
	return ""
}
