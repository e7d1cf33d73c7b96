package mock

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/resource"
)

// Cluster keeps track of exactly what it's been told to apply or
// delete, and parrots it back when asked for a snapshot. Writes can
// be made to fail (once, n times, or always) to exercise the
// executor's retry and isolation behaviour.
type Cluster struct {
	mu        sync.Mutex
	resources map[resource.ID]*unstructured.Unstructured
	sets      map[resource.ID]string
	failures  map[resource.ID]*failure

	// Applied records the order in which applies happened, for
	// asserting on apply ordering.
	Applied []resource.ID
	Deleted []resource.ID

	// PingErr, if set, is returned from Ping.
	PingErr error
}

type failure struct {
	err   error
	times int // < 0 means always
}

func NewCluster() *Cluster {
	return &Cluster{
		resources: map[resource.ID]*unstructured.Unstructured{},
		sets:      map[resource.ID]string{},
		failures:  map[resource.ID]*failure{},
	}
}

// FailNext makes the next `times` writes of the given resource fail
// with err.
func (c *Cluster) FailNext(id resource.ID, err error, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[id] = &failure{err: err, times: times}
}

// FailAlways makes every write of the given resource fail with err.
func (c *Cluster) FailAlways(id resource.ID, err error) {
	c.FailNext(id, err, -1)
}

// Seed places a resource into the cluster directly, bypassing Apply;
// setName may be empty for resources converge does not own.
func (c *Cluster) Seed(id resource.ID, obj *unstructured.Unstructured, setName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[id] = obj.DeepCopy()
	if setName != "" {
		c.sets[id] = setName
	}
}

func (c *Cluster) failureFor(id resource.ID) error {
	f, ok := c.failures[id]
	if !ok || f.times == 0 {
		return nil
	}
	if f.times > 0 {
		f.times--
	}
	return f.err
}

func (c *Cluster) Apply(ctx context.Context, setName string, m resource.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := m.ResourceID()
	if err := c.failureFor(id); err != nil {
		return err
	}
	c.resources[id] = m.Object().DeepCopy()
	c.sets[id] = setName
	c.Applied = append(c.Applied, id)
	return nil
}

func (c *Cluster) Delete(ctx context.Context, id resource.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failureFor(id); err != nil {
		return err
	}
	if _, ok := c.resources[id]; !ok {
		return cluster.NotFoundError{ID: id}
	}
	delete(c.resources, id)
	delete(c.sets, id)
	c.Deleted = append(c.Deleted, id)
	return nil
}

func (c *Cluster) Snapshot(ctx context.Context, setName string) (*cluster.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &cluster.Snapshot{
		TakenAt:   time.Now(),
		Resources: map[resource.ID]cluster.LiveResource{},
	}
	for id, obj := range c.resources {
		if c.sets[id] != setName {
			continue
		}
		snap.Resources[id] = cluster.LiveResource{
			ID:         id,
			Obj:        obj.DeepCopy(),
			ObservedAt: snap.TakenAt,
		}
	}
	return snap, nil
}

func (c *Cluster) Get(ctx context.Context, id resource.ID) (*cluster.LiveResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.resources[id]
	if !ok {
		return nil, cluster.NotFoundError{ID: id}
	}
	return &cluster.LiveResource{ID: id, Obj: obj.DeepCopy(), ObservedAt: time.Now()}, nil
}

func (c *Cluster) Ping(ctx context.Context) error {
	return c.PingErr
}

// Mutate rewrites a live resource in place, simulating an out-of-band
// manual change (drift).
func (c *Cluster) Mutate(id resource.ID, f func(obj *unstructured.Unstructured)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.resources[id]; ok {
		f(obj)
	}
}
