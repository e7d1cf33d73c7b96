package kubernetes

import (
	"context"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/resource"
)

// Cluster implements cluster.Cluster against a real Kubernetes API,
// using the dynamic client so that custom resources need no special
// handling.
type Cluster struct {
	client    dynamic.Interface
	discovery discovery.DiscoveryInterface
	logger    log.Logger

	// Only resources in namespaces (and of kinds) allowed by these
	// are observed or mutated.
	AllowedNamespaces cluster.Includer

	indexMu sync.Mutex
	index   map[string]apiResource // lowercased kind -> mapping
}

type apiResource struct {
	gvr        schema.GroupVersionResource
	namespaced bool
}

func NewCluster(client dynamic.Interface, disco discovery.DiscoveryInterface, logger log.Logger) *Cluster {
	return &Cluster{
		client:            client,
		discovery:         disco,
		logger:            logger,
		AllowedNamespaces: cluster.AlwaysInclude,
	}
}

func (c *Cluster) Ping(ctx context.Context) error {
	_, err := c.discovery.ServerVersion()
	return classifyError(resource.ID{}, err)
}

// lookupKind resolves a (group, lowercased kind) to the resource to
// address API calls at, rebuilding the discovery index on a miss so
// that freshly-installed CRDs are picked up.
func (c *Cluster) lookupKind(group, kind string) (apiResource, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	if r, ok := c.index[indexKey(group, kind)]; ok {
		return r, nil
	}
	if err := c.rebuildIndexLocked(); err != nil {
		return apiResource{}, err
	}
	if r, ok := c.index[indexKey(group, kind)]; ok {
		return r, nil
	}
	return apiResource{}, errors.Errorf("no server resource for kind %q in group %q", kind, group)
}

func (c *Cluster) rebuildIndexLocked() error {
	lists, err := c.discovery.ServerPreferredResources()
	if err != nil {
		// Partial discovery results are usable; a total failure is not.
		if len(lists) == 0 {
			return cluster.TransientError{Err: err}
		}
	}
	index := map[string]apiResource{}
	for _, list := range lists {
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range list.APIResources {
			if strings.Contains(r.Name, "/") { // subresource
				continue
			}
			key := indexKey(gv.Group, strings.ToLower(r.Kind))
			index[key] = apiResource{
				gvr:        gv.WithResource(r.Name),
				namespaced: r.Namespaced,
			}
		}
	}
	c.index = index
	return nil
}

func indexKey(group, kind string) string {
	return group + "/" + kind
}

// resourceInterface returns the dynamic client handle for the
// resource identified, respecting its scope.
func (c *Cluster) resourceInterface(id resource.ID) (dynamic.ResourceInterface, error) {
	namespace, group, kind, _ := id.Components()
	r, err := c.lookupKind(group, kind)
	if err != nil {
		return nil, err
	}
	if !r.namespaced || namespace == resource.ClusterScope {
		return c.client.Resource(r.gvr), nil
	}
	return c.client.Resource(r.gvr).Namespace(namespace), nil
}

// classifyError maps API server errors onto the taxonomy the
// executor retries on.
func classifyError(id resource.ID, err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsNotFound(err):
		return cluster.NotFoundError{ID: id}
	case apierrors.IsConflict(err):
		return cluster.ConflictError{ID: id, Err: err}
	case apierrors.IsServerTimeout(err), apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err), apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err):
		return cluster.TransientError{Err: err}
	}
	return err
}
