package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/manifests"
	"github.com/convergeproj/converge/pkg/resource"
)

const desiredYAML = `apiVersion: v1
kind: Namespace
metadata:
  name: dev
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
  namespace: dev
spec:
  replicas: 3
`

func desiredSet(t *testing.T, doc string) *manifests.ManifestSet {
	t.Helper()
	objs, err := resource.ParseMultidoc([]byte(doc), "test.yaml")
	require.NoError(t, err)
	return manifests.NewManifestSet("rev1", objs)
}

func emptySnapshot() *cluster.Snapshot {
	return &cluster.Snapshot{TakenAt: time.Now(), Resources: map[resource.ID]cluster.LiveResource{}}
}

// liveFrom simulates what the cluster hands back for an applied
// manifest: same content plus server-populated fields, with integers
// decoded as int64 rather than YAML's float64.
func liveFrom(t *testing.T, doc string, id string) cluster.LiveResource {
	t.Helper()
	objs, err := resource.ParseMultidoc([]byte(doc), "live.yaml")
	require.NoError(t, err)
	m, ok := objs[id]
	require.True(t, ok, "no %s in live doc", id)
	obj := m.Object().DeepCopy()
	obj.SetResourceVersion("12345")
	obj.SetUID("2418-0000")
	unstructured.SetNestedField(obj.Object, int64(3), "status", "observedGeneration")
	if replicas, ok, _ := unstructured.NestedFieldNoCopy(obj.Object, "spec", "replicas"); ok {
		if f, isFloat := replicas.(float64); isFloat {
			unstructured.SetNestedField(obj.Object, int64(f), "spec", "replicas")
		}
	}
	return cluster.LiveResource{ID: m.ResourceID(), Obj: obj, ObservedAt: time.Now()}
}

func snapshotOf(resources ...cluster.LiveResource) *cluster.Snapshot {
	snap := emptySnapshot()
	for _, r := range resources {
		snap.Resources[r.ID] = r
	}
	return snap
}

func TestDiffAllCreate(t *testing.T) {
	entries, extra, err := Diff(desiredSet(t, desiredYAML), emptySnapshot(), false)
	require.NoError(t, err)
	require.Empty(t, extra)
	require.Len(t, entries, 2)

	// The namespace must precede the workload that lives in it.
	assert.Equal(t, ActionCreate, entries[0].Action)
	assert.Equal(t, "<cluster>:namespace/dev", entries[0].ID.String())
	assert.Equal(t, ActionCreate, entries[1].Action)
	assert.Equal(t, "dev:apps/deployment/app", entries[1].ID.String())
}

func TestDiffInSync(t *testing.T) {
	desired := desiredSet(t, desiredYAML)
	snap := snapshotOf(
		liveFrom(t, desiredYAML, "<cluster>:namespace/dev"),
		liveFrom(t, desiredYAML, "dev:apps/deployment/app"),
	)
	entries, extra, err := Diff(desired, snap, false)
	require.NoError(t, err)
	assert.Empty(t, extra)
	for _, e := range entries {
		assert.Equal(t, ActionInSync, e.Action, e.ID.String())
		assert.Nil(t, e.Patch)
	}
}

func TestDiffIdempotent(t *testing.T) {
	desired := desiredSet(t, desiredYAML)
	snap := snapshotOf(liveFrom(t, desiredYAML, "dev:apps/deployment/app"))

	first, firstExtra, err := Diff(desired, snap, false)
	require.NoError(t, err)
	second, secondExtra, err := Diff(desired, snap, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstExtra, secondExtra)
}

func TestDiffDetectsDrift(t *testing.T) {
	desired := desiredSet(t, desiredYAML)
	live := liveFrom(t, desiredYAML, "dev:apps/deployment/app")
	// Someone scaled the deployment by hand.
	unstructured.SetNestedField(live.Obj.Object, int64(1), "spec", "replicas")

	entries, _, err := Diff(desired, snapshotOf(live), false)
	require.NoError(t, err)
	var update *Entry
	for i := range entries {
		if entries[i].Action == ActionUpdate {
			update = &entries[i]
		}
	}
	require.NotNil(t, update, "expected an update entry")
	assert.Equal(t, "dev:apps/deployment/app", update.ID.String())
	// The patch pins down exactly what drifted.
	assert.JSONEq(t, `{"spec":{"replicas":3}}`, string(update.Patch))
}

func TestDiffPrune(t *testing.T) {
	desired := desiredSet(t, desiredYAML)
	stray := liveFrom(t, `apiVersion: v1
kind: ConfigMap
metadata:
  name: old-cfg
  namespace: dev
`, "dev:configmap/old-cfg")

	// prune=false: never a Delete entry, stray reported instead.
	entries, extra, err := Diff(desired, snapshotOf(stray), false)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ActionDelete, e.Action)
	}
	require.Len(t, extra, 1)
	assert.Equal(t, "dev:configmap/old-cfg", extra[0].String())

	// prune=true: Delete entry ordered after all create/update
	// entries.
	entries, extra, err = Diff(desired, snapshotOf(stray), true)
	require.NoError(t, err)
	assert.Empty(t, extra)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, ActionDelete, last.Action)
	assert.Equal(t, "dev:configmap/old-cfg", last.ID.String())
}

func TestDiffPruneReverseOrder(t *testing.T) {
	desired := desiredSet(t, `apiVersion: v1
kind: ConfigMap
metadata:
  name: keep
  namespace: dev
`)
	strayNS := liveFrom(t, "apiVersion: v1\nkind: Namespace\nmetadata: {name: old}\n", "<cluster>:namespace/old")
	strayDep := liveFrom(t, "apiVersion: apps/v1\nkind: Deployment\nmetadata: {name: old-app, namespace: old}\n", "old:apps/deployment/old-app")

	entries, _, err := Diff(desired, snapshotOf(strayNS, strayDep), true)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Dependents are deleted before the namespace containing them.
	assert.Equal(t, ActionDelete, entries[1].Action)
	assert.Equal(t, "old:apps/deployment/old-app", entries[1].ID.String())
	assert.Equal(t, ActionDelete, entries[2].Action)
	assert.Equal(t, "<cluster>:namespace/old", entries[2].ID.String())
}
