package kubernetes

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/resource"
)

const (
	// We mark cluster objects as being managed by a given sync set by
	// labelling them on create and update; observing the live state
	// of a set, and pruning from it, both select on this label. An
	// object without the mark is never deleted by us.
	gcMarkLabel = "converge.sh/sync-set"
	// The checksum of the applied manifest, for telling "changed in
	// git" apart from "drifted in the cluster".
	checksumAnnotation = "converge.sh/sync-checksum"
)

// SyncSetMark derives the label value identifying a sync set. The
// hash is to make sure it's a valid (Kubernetes) label value, and to
// avoid leaking repo details into labels.
func SyncSetMark(setName string) string {
	hasher := sha256.New()
	hasher.Write([]byte(setName))
	return "sha256." + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))[:40]
}

// ChecksumOf gives the annotation value for a manifest's bytes.
func ChecksumOf(manifestBytes []byte) string {
	hasher := sha256.New()
	hasher.Write(manifestBytes)
	return "sha256." + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
}

// applyMetadata returns a copy of the manifest object with the sync
// set mark and checksum mixed into its metadata.
func applyMetadata(m resource.Manifest, setName string) (*unstructured.Unstructured, error) {
	obj := m.Object().DeepCopy()

	mixin := map[string]interface{}{
		"labels": map[string]interface{}{
			gcMarkLabel: SyncSetMark(setName),
		},
		"annotations": map[string]interface{}{
			checksumAnnotation: ChecksumOf(m.Bytes()),
		},
	}
	metadata, ok := obj.Object["metadata"].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("manifest %s has no metadata", m.Source())
	}
	if err := mergo.Merge(&metadata, mixin, mergo.WithOverride); err != nil {
		return nil, errors.Wrapf(err, "applying sync metadata to %s", m.Source())
	}
	obj.Object["metadata"] = metadata
	return obj, nil
}

// AllowedForGC reports whether the object carries the mark of the
// named sync set, i.e., was created by us on its behalf.
func AllowedForGC(obj *unstructured.Unstructured, setName string) bool {
	return obj.GetLabels()[gcMarkLabel] == SyncSetMark(setName)
}

func (c *Cluster) Apply(ctx context.Context, setName string, m resource.Manifest) error {
	id := m.ResourceID()
	if !c.AllowedNamespaces.IsIncluded(id.Namespace()) {
		return errors.Errorf("namespace of %s is not in the allowed set", id)
	}
	ri, err := c.resourceInterface(id)
	if err != nil {
		return err
	}
	obj, err := applyMetadata(m, setName)
	if err != nil {
		return err
	}

	existing, err := ri.Get(id.Name(), meta_v1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		_, err = ri.Create(obj, meta_v1.CreateOptions{})
		return classifyError(id, err)
	case err != nil:
		return classifyError(id, err)
	}

	// Updates must carry the live resourceVersion, so a concurrent
	// change surfaces as a conflict instead of being blindly
	// overwritten.
	obj.SetResourceVersion(existing.GetResourceVersion())
	_, err = ri.Update(obj, meta_v1.UpdateOptions{})
	return classifyError(id, err)
}

func (c *Cluster) Delete(ctx context.Context, id resource.ID) error {
	if !c.AllowedNamespaces.IsIncluded(id.Namespace()) {
		return errors.Errorf("namespace of %s is not in the allowed set", id)
	}
	ri, err := c.resourceInterface(id)
	if err != nil {
		return err
	}
	return classifyError(id, ri.Delete(id.Name(), &meta_v1.DeleteOptions{}))
}

func (c *Cluster) Get(ctx context.Context, id resource.ID) (*cluster.LiveResource, error) {
	ri, err := c.resourceInterface(id)
	if err != nil {
		return nil, err
	}
	obj, err := ri.Get(id.Name(), meta_v1.GetOptions{})
	if err != nil {
		return nil, classifyError(id, err)
	}
	return &cluster.LiveResource{ID: id, Obj: obj, ObservedAt: time.Now()}, nil
}

// Snapshot observes every listable resource carrying the sync set's
// mark. The result is a point-in-time view; it is not kept up to
// date.
func (c *Cluster) Snapshot(ctx context.Context, setName string) (*cluster.Snapshot, error) {
	c.indexMu.Lock()
	if c.index == nil {
		if err := c.rebuildIndexLocked(); err != nil {
			c.indexMu.Unlock()
			return nil, err
		}
	}
	kinds := make([]apiResource, 0, len(c.index))
	for _, r := range c.index {
		kinds = append(kinds, r)
	}
	c.indexMu.Unlock()

	snap := &cluster.Snapshot{
		TakenAt:   time.Now(),
		Resources: map[resource.ID]cluster.LiveResource{},
	}
	selector := gcMarkLabel + "=" + SyncSetMark(setName)
	for _, r := range kinds {
		list, err := c.client.Resource(r.gvr).List(meta_v1.ListOptions{LabelSelector: selector})
		if err != nil {
			if apierrors.IsMethodNotSupported(err) || apierrors.IsNotFound(err) || apierrors.IsForbidden(err) {
				continue
			}
			return nil, classifyError(resource.ID{}, err)
		}
		for i := range list.Items {
			obj := &list.Items[i]
			ns := obj.GetNamespace()
			if r.namespaced && !c.AllowedNamespaces.IsIncluded(ns) {
				continue
			}
			id := liveID(obj, r.namespaced)
			snap.Resources[id] = cluster.LiveResource{ID: id, Obj: obj, ObservedAt: snap.TakenAt}
		}
	}
	return snap, nil
}

func liveID(obj *unstructured.Unstructured, namespaced bool) resource.ID {
	ns := obj.GetNamespace()
	if !namespaced {
		ns = resource.ClusterScope
	}
	group := obj.GroupVersionKind().Group
	return resource.MakeID(ns, group, obj.GetKind(), obj.GetName())
}
