package daemon

import (
	"context"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/convergeproj/converge/pkg/api"
	"github.com/convergeproj/converge/pkg/apps"
	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/cluster/mock"
	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/health"
	"github.com/convergeproj/converge/pkg/manifests"
	"github.com/convergeproj/converge/pkg/policy"
	"github.com/convergeproj/converge/pkg/resource"
	"github.com/convergeproj/converge/pkg/sync"
)

const testManifests = `---
apiVersion: v1
kind: Namespace
metadata:
  name: demo
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: podinfo
  namespace: demo
spec:
  replicas: 2
---
apiVersion: v1
kind: Service
metadata:
  name: podinfo
  namespace: demo
spec:
  ports:
  - port: 9898
`

// fakeFetcher serves manifests from memory, pretending they came from
// a repository at a fixed revision.
type fakeFetcher struct {
	mu       stdsync.Mutex
	revision string
	docs     string
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, repoURL, ref, path string) (*manifests.ManifestSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	objs, err := resource.ParseMultidoc([]byte(f.docs), "fake")
	if err != nil {
		return nil, err
	}
	return manifests.NewManifestSet(f.revision, objs), nil
}

func (f *fakeFetcher) set(revision, docs string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revision, f.docs, f.err = revision, docs, err
}

func testApp(p policy.SyncPolicy) apps.Application {
	return apps.Application{
		Name:       "podinfo",
		Source:     apps.Source{RepoURL: "git@example.com:org/demo", Ref: "master", Path: "deploy"},
		SyncPolicy: p,
	}
}

func testDaemon(t *testing.T, app apps.Application, fetcher manifests.Fetcher) (*Daemon, *mock.Cluster, *appRunner) {
	clus := mock.NewCluster()
	logger := log.NewNopLogger()
	syncer := sync.NewSyncer(clus, logger)
	syncer.BackoffBase = time.Millisecond
	syncer.Limiter = rate.NewLimiter(rate.Inf, 1)
	d := New("test", clus, fetcher, syncer, health.NewEvaluator(clus), event.NewLog(100), logger, LoopVars{})
	d.AddApplication(app)
	return d, clus, d.runner(app.Name)
}

func TestReconcileFullCycle(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)

	assert.NoError(t, d.reconcile(context.Background(), r, false))

	// Namespace goes first, then the service and the workload that
	// backs it; everything applied.
	assert.Equal(t, []resource.ID{
		resource.MustParseID("<cluster>:namespace/demo"),
		resource.MustParseID("demo:service/podinfo"),
		resource.MustParseID("demo:apps/deployment/podinfo"),
	}, clus.Applied)

	status := r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, api.PhaseIdle, status.Phase)
	assert.Equal(t, "rev-1", status.Revision)
	if assert.NotNil(t, status.Result) {
		assert.Equal(t, sync.StatusSucceeded, status.Result.Status)
	}
	// The freshly-created deployment has no ready replicas yet.
	if assert.NotNil(t, status.Health) {
		assert.Equal(t, health.StatusProgressing, status.Health.Status)
	}
	assert.Empty(t, status.Error)
}

func TestReconcileConverges(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)

	assert.NoError(t, d.reconcile(context.Background(), r, false))
	applied := len(clus.Applied)
	// A second cycle on the same revision with no drift does nothing.
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Equal(t, applied, len(clus.Applied))
}

func TestReconcileManualApp(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{}), fetcher)

	// Not automated: the cycle reports, but does not touch anything.
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Empty(t, clus.Applied)
	status := r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, 3, status.PendingChanges)
	assert.Nil(t, status.Result)
	assert.Empty(t, status.Revision)

	// An explicit trigger syncs it anyway.
	assert.NoError(t, d.reconcile(context.Background(), r, true))
	assert.Len(t, clus.Applied, 3)
	status = r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, 0, status.PendingChanges)
}

func TestReconcileSelfHeal(t *testing.T) {
	deployment := resource.MustParseID("demo:apps/deployment/podinfo")
	drift := func(obj *unstructured.Unstructured) {
		unstructured.SetNestedField(obj.Object, int64(5), "spec", "replicas")
	}

	// Without selfHeal, drift on an already-synced revision stands.
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	applied := len(clus.Applied)
	clus.Mutate(deployment, drift)
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Equal(t, applied, len(clus.Applied))
	status := r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, 1, status.PendingChanges)

	// With selfHeal, the next cycle puts it back.
	d2, clus2, r2 := testDaemon(t, testApp(policy.SyncPolicy{Automated: true, SelfHeal: true}), fetcher)
	assert.NoError(t, d2.reconcile(context.Background(), r2, false))
	clus2.Mutate(deployment, drift)
	assert.NoError(t, d2.reconcile(context.Background(), r2, false))
	assert.Equal(t, deployment, clus2.Applied[len(clus2.Applied)-1])
}

func TestReconcileDestinationNamespace(t *testing.T) {
	const docs = `---
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
data:
  greeting: hello
`
	app := testApp(policy.SyncPolicy{Automated: true})
	app.Destination.Namespace = "demo"
	fetcher := &fakeFetcher{revision: "rev-1", docs: docs}
	d, clus, r := testDaemon(t, app, fetcher)

	// The ConfigMap names no namespace, so the destination's applies.
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Equal(t, []resource.ID{
		resource.MustParseID("demo:configmap/settings"),
	}, clus.Applied)

	// And having been applied under that identity, it converges.
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Len(t, clus.Applied, 1)
}

func TestFailedSyncRetriesNextCycle(t *testing.T) {
	deployment := resource.MustParseID("demo:apps/deployment/podinfo")
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)
	assert.NoError(t, d.reconcile(context.Background(), r, false))

	// rev-2 only bumps the deployment, and the cluster won't take it.
	fetcher.set("rev-2", strings.Replace(testManifests, "replicas: 2", "replicas: 3", 1), nil)
	clus.FailAlways(deployment, cluster.TransientError{Err: context.DeadlineExceeded})
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	status := r.status.Load().(api.ApplicationStatus)
	if assert.NotNil(t, status.Result) {
		assert.NotEqual(t, sync.StatusSucceeded, status.Result.Status)
	}
	assert.NotEqual(t, "rev-2", status.Revision)

	// The failed revision does not pass for tolerated drift: once the
	// cluster recovers, the next cycle applies it.
	clus.FailNext(deployment, nil, 0)
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Equal(t, deployment, clus.Applied[len(clus.Applied)-1])
	status = r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, "rev-2", status.Revision)
}

func TestReconcilePrune(t *testing.T) {
	app := testApp(policy.SyncPolicy{Automated: true, Prune: true})
	extra := resource.MustParseID("demo:configmap/stale")
	stale := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": "stale", "namespace": "demo"},
	}}

	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, app, fetcher)
	clus.Seed(extra, stale, app.SyncSetName())
	assert.NoError(t, d.reconcile(context.Background(), r, false))
	assert.Equal(t, []resource.ID{extra}, clus.Deleted)

	// With prune off, the extra resource is only reported.
	app2 := testApp(policy.SyncPolicy{Automated: true})
	d2, clus2, r2 := testDaemon(t, app2, fetcher)
	clus2.Seed(extra, stale, app2.SyncSetName())
	assert.NoError(t, d2.reconcile(context.Background(), r2, false))
	assert.Empty(t, clus2.Deleted)
	status := r2.status.Load().(api.ApplicationStatus)
	assert.Equal(t, []resource.ID{extra}, status.Orphaned)
}

func TestRemoveApplication(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true, Prune: true}), fetcher)
	assert.NoError(t, d.reconcile(context.Background(), r, false))

	// Removing a pruning application deletes what it created,
	// dependents first.
	assert.NoError(t, d.RemoveApplication(context.Background(), "podinfo"))
	assert.Equal(t, []resource.ID{
		resource.MustParseID("demo:apps/deployment/podinfo"),
		resource.MustParseID("demo:service/podinfo"),
		resource.MustParseID("<cluster>:namespace/demo"),
	}, clus.Deleted)
	_, err := d.Status(context.Background(), "podinfo")
	assert.Error(t, err)
	assert.Error(t, d.RemoveApplication(context.Background(), "podinfo"))

	// Without prune, removal leaves the cluster alone.
	d2, clus2, r2 := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)
	assert.NoError(t, d2.reconcile(context.Background(), r2, false))
	assert.NoError(t, d2.RemoveApplication(context.Background(), "podinfo"))
	assert.Empty(t, clus2.Deleted)
}

func TestFailedCycleKeepsStatus(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, _, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)

	assert.NoError(t, d.reconcile(context.Background(), r, false))
	good := r.status.Load().(api.ApplicationStatus)

	fetcher.set("", "", manifests.NetworkError{Err: context.DeadlineExceeded})
	assert.Error(t, d.reconcile(context.Background(), r, false))

	status := r.status.Load().(api.ApplicationStatus)
	assert.Equal(t, api.PhaseFailed, status.Phase)
	assert.NotEmpty(t, status.Error)
	// The last completed cycle's report survives the failure.
	assert.Equal(t, good.Revision, status.Revision)
	assert.Equal(t, good.Result, status.Result)
	assert.Equal(t, good.Health, status.Health)
}

func TestCancelledCycle(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, clus, r := testDaemon(t, testApp(policy.SyncPolicy{Automated: true}), fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.reconcile(ctx, r, false))
	assert.Empty(t, clus.Applied)
}

func TestAskForCycleCoalesces(t *testing.T) {
	r := &appRunner{cycleSoon: make(chan struct{}, 1), forced: make(chan struct{}, 1)}
	r.askForCycle()
	r.askForCycle()
	r.askForCycle()
	assert.Len(t, r.cycleSoon, 1)
}

func TestStatusUnknownApp(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, _, _ := testDaemon(t, testApp(policy.SyncPolicy{}), fetcher)
	_, err := d.Status(context.Background(), "nope")
	assert.Error(t, err)
	assert.Error(t, d.TriggerSync(context.Background(), "nope"))
}

func TestTriggerSyncLogsEvent(t *testing.T) {
	fetcher := &fakeFetcher{revision: "rev-1", docs: testManifests}
	d, _, r := testDaemon(t, testApp(policy.SyncPolicy{}), fetcher)
	assert.NoError(t, d.TriggerSync(context.Background(), "podinfo"))
	assert.Len(t, r.forced, 1)
	events := d.Events.Events("podinfo", 10)
	if assert.Len(t, events, 1) {
		assert.Equal(t, event.EventNotify, events[0].Type)
	}
}
