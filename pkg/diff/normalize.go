package diff

import (
	"strings"

	"github.com/imdario/mergo"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Server-populated metadata that must not count as drift.
var serverMetadataFields = []string{
	"creationTimestamp",
	"deletionTimestamp",
	"generation",
	"managedFields",
	"resourceVersion",
	"selfLink",
	"uid",
}

// Annotations and labels added by machinery (ours included) rather
// than declared by the operator.
var (
	ignoredAnnotations = []string{
		"kubectl.kubernetes.io/last-applied-configuration",
		"deployment.kubernetes.io/revision",
		"converge.sh/sync-checksum",
	}
	ignoredLabels = []string{
		"converge.sh/sync-set",
	}
)

// kindRule adjusts one resource kind's spec so that fields the API
// server populates or defaults do not register as drift. Rules must
// be deterministic; each documents exactly which fields it touches.
type kindRule func(obj *unstructured.Unstructured)

// The normalization table. Keyed by lowercased kind. Unlisted kinds
// get only the generic treatment (status and server metadata
// stripped).
var kindRules = map[string]kindRule{
	// Defaults spec.replicas to 1, as the API server does.
	"deployment":  defaultReplicas,
	"statefulset": defaultReplicas,
	"replicaset":  defaultReplicas,

	// Strips the server-assigned cluster IPs and node ports.
	"service": func(obj *unstructured.Unstructured) {
		unstructured.RemoveNestedField(obj.Object, "spec", "clusterIP")
		unstructured.RemoveNestedField(obj.Object, "spec", "clusterIPs")
		ports, ok, _ := unstructured.NestedSlice(obj.Object, "spec", "ports")
		if !ok {
			return
		}
		for _, p := range ports {
			if port, ok := p.(map[string]interface{}); ok {
				delete(port, "nodePort")
			}
		}
		unstructured.SetNestedSlice(obj.Object, ports, "spec", "ports")
	},

	// Strips the token secrets the controller manager attaches.
	"serviceaccount": func(obj *unstructured.Unstructured) {
		unstructured.RemoveNestedField(obj.Object, "secrets")
	},

	// Strips the finalizer list the server maintains.
	"namespace": func(obj *unstructured.Unstructured) {
		unstructured.RemoveNestedField(obj.Object, "spec", "finalizers")
	},

	// Strips the server-side binding to a particular volume.
	"persistentvolumeclaim": func(obj *unstructured.Unstructured) {
		unstructured.RemoveNestedField(obj.Object, "spec", "volumeName")
	},
}

func defaultReplicas(obj *unstructured.Unstructured) {
	spec, ok, _ := unstructured.NestedMap(obj.Object, "spec")
	if !ok {
		spec = map[string]interface{}{}
	}
	mergo.Merge(&spec, map[string]interface{}{"replicas": int64(1)})
	unstructured.SetNestedMap(obj.Object, spec, "spec")
}

// Normalize returns a copy of the object with server-populated fields
// removed and defaulted fields injected, so that a desired manifest
// and the live object it produced compare equal. The input is never
// mutated.
func Normalize(obj *unstructured.Unstructured) *unstructured.Unstructured {
	o := obj.DeepCopy()

	// The status subresource is the cluster's to write.
	unstructured.RemoveNestedField(o.Object, "status")

	for _, f := range serverMetadataFields {
		unstructured.RemoveNestedField(o.Object, "metadata", f)
	}
	for _, a := range ignoredAnnotations {
		unstructured.RemoveNestedField(o.Object, "metadata", "annotations", a)
	}
	for _, l := range ignoredLabels {
		unstructured.RemoveNestedField(o.Object, "metadata", "labels", l)
	}
	// An emptied map and an absent one must compare equal.
	pruneEmpty(o.Object, "metadata", "annotations")
	pruneEmpty(o.Object, "metadata", "labels")

	if rule, ok := kindRules[strings.ToLower(o.GetKind())]; ok {
		rule(o)
	}
	return o
}

func pruneEmpty(obj map[string]interface{}, fields ...string) {
	m, ok, _ := unstructured.NestedMap(obj, fields...)
	if ok && len(m) == 0 {
		unstructured.RemoveNestedField(obj, fields...)
	}
}
