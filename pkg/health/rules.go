package health

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Rule classifies one observed resource. Rules look only at the
// object handed to them; anything they cannot decide is Unknown, not
// an error.
type Rule func(obj *unstructured.Unstructured) (Status, string)

// Per-kind rules, keyed by lowercased kind. Kinds without an entry
// are presumed healthy by existence: most resources (configmaps,
// services of the default type, RBAC objects) have no failure states
// of their own.
var kindRules = map[string]Rule{
	"deployment":            deploymentHealth,
	"statefulset":           replicaSetStyleHealth("readyReplicas"),
	"replicaset":            replicaSetStyleHealth("readyReplicas"),
	"replicationcontroller": replicaSetStyleHealth("readyReplicas"),
	"daemonset":             daemonSetHealth,
	"job":                   jobHealth,
	"pod":                   podHealth,
	"service":               serviceHealth,
	"persistentvolumeclaim": pvcHealth,
}

// RuleFor returns the health rule for a (lowercased) kind.
func RuleFor(kind string) Rule {
	if r, ok := kindRules[kind]; ok {
		return r
	}
	return existsHealth
}

func existsHealth(obj *unstructured.Unstructured) (Status, string) {
	return StatusHealthy, ""
}

func deploymentHealth(obj *unstructured.Unstructured) (Status, string) {
	desired := desiredReplicas(obj)
	ready := int64Field(obj, "status", "readyReplicas")
	updated := int64Field(obj, "status", "updatedReplicas")

	// A deployment that has stopped making progress says so in its
	// conditions; that is a sustained failure, not a rollout.
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		condType, _ := cond["type"].(string)
		condStatus, _ := cond["status"].(string)
		reason, _ := cond["reason"].(string)
		if condType == "ReplicaFailure" && condStatus == "True" {
			return StatusDegraded, "replica failure: " + messageOf(cond)
		}
		if condType == "Progressing" && condStatus == "False" && reason == "ProgressDeadlineExceeded" {
			return StatusDegraded, "progress deadline exceeded"
		}
	}

	if ready >= desired && updated >= desired {
		return StatusHealthy, ""
	}
	return StatusProgressing, fmt.Sprintf("%d of %d updated replicas ready", min64(ready, updated), desired)
}

func replicaSetStyleHealth(readyField string) Rule {
	return func(obj *unstructured.Unstructured) (Status, string) {
		desired := desiredReplicas(obj)
		ready := int64Field(obj, "status", readyField)
		if ready >= desired {
			return StatusHealthy, ""
		}
		return StatusProgressing, fmt.Sprintf("%d of %d replicas ready", ready, desired)
	}
}

func daemonSetHealth(obj *unstructured.Unstructured) (Status, string) {
	desired := int64Field(obj, "status", "desiredNumberScheduled")
	ready := int64Field(obj, "status", "numberReady")
	if ready >= desired {
		return StatusHealthy, ""
	}
	return StatusProgressing, fmt.Sprintf("%d of %d scheduled pods ready", ready, desired)
}

func jobHealth(obj *unstructured.Unstructured) (Status, string) {
	if int64Field(obj, "status", "succeeded") > 0 {
		return StatusHealthy, ""
	}
	backoffLimit := int64(6)
	if v, ok, _ := unstructured.NestedFieldNoCopy(obj.Object, "spec", "backoffLimit"); ok {
		backoffLimit = asInt64(v)
	}
	if failed := int64Field(obj, "status", "failed"); failed > backoffLimit {
		return StatusDegraded, fmt.Sprintf("%d failed attempts", failed)
	}
	return StatusProgressing, "job has not completed"
}

func podHealth(obj *unstructured.Unstructured) (Status, string) {
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	switch phase {
	case "Running", "Succeeded":
		return StatusHealthy, ""
	case "Pending":
		return StatusProgressing, "pod is pending"
	case "Failed":
		return StatusDegraded, "pod has failed"
	}
	return StatusUnknown, "pod phase is " + phase
}

func serviceHealth(obj *unstructured.Unstructured) (Status, string) {
	svcType, _, _ := unstructured.NestedString(obj.Object, "spec", "type")
	if svcType != "LoadBalancer" {
		return StatusHealthy, ""
	}
	ingress, _, _ := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
	if len(ingress) > 0 {
		return StatusHealthy, ""
	}
	return StatusProgressing, "load balancer is being provisioned"
}

func pvcHealth(obj *unstructured.Unstructured) (Status, string) {
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	switch phase {
	case "Bound":
		return StatusHealthy, ""
	case "Pending":
		return StatusProgressing, "volume claim is pending"
	case "Lost":
		return StatusDegraded, "bound volume is lost"
	}
	return StatusUnknown, "claim phase is " + phase
}

func desiredReplicas(obj *unstructured.Unstructured) int64 {
	if v, ok, _ := unstructured.NestedFieldNoCopy(obj.Object, "spec", "replicas"); ok {
		return asInt64(v)
	}
	return 1
}

func int64Field(obj *unstructured.Unstructured, fields ...string) int64 {
	v, ok, _ := unstructured.NestedFieldNoCopy(obj.Object, fields...)
	if !ok {
		return 0
	}
	return asInt64(v)
}

// asInt64 tolerates the two numeric encodings we see: int64 from the
// API machinery, float64 from decoded YAML/JSON.
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func messageOf(cond map[string]interface{}) string {
	if m, ok := cond["message"].(string); ok {
		return m
	}
	return "(no message)"
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
