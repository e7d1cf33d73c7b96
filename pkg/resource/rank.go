package resource

import (
	"sort"
	"strings"
)

// Apply-order ranks per resource kind. Resources that others depend
// on come first: namespaces and CRDs before anything that might live
// in or instantiate them, configuration before workloads, workloads
// before the things that point at them. Kinds are lowercased to match
// ID.Kind().
var kindRank = map[string]int{
	"namespace":                      0,
	"customresourcedefinition":       1,
	"resourcequota":                  2,
	"limitrange":                     2,
	"podsecuritypolicy":              2,
	"secret":                         3,
	"configmap":                      3,
	"storageclass":                   4,
	"persistentvolume":               4,
	"persistentvolumeclaim":          4,
	"serviceaccount":                 5,
	"clusterrole":                    6,
	"role":                           6,
	"clusterrolebinding":             7,
	"rolebinding":                    7,
	"service":                        8,
	"daemonset":                      9,
	"pod":                            9,
	"replicaset":                     9,
	"replicationcontroller":          9,
	"deployment":                     9,
	"statefulset":                    9,
	"job":                            9,
	"cronjob":                        9,
	"horizontalpodautoscaler":        10,
	"poddisruptionbudget":            10,
	"ingress":                        10,
	"networkpolicy":                  10,
	"mutatingwebhookconfiguration":   11,
	"validatingwebhookconfiguration": 11,
}

// The workload tier; custom resources land here, after the CRDs that
// define them.
const defaultRank = 9

// Kinds that live outside any namespace, so a default namespace never
// applies to them. Custom resources are taken to be namespaced, which
// is by far the common case.
var clusterKinds = map[string]bool{
	"namespace":                      true,
	"node":                           true,
	"persistentvolume":               true,
	"storageclass":                   true,
	"clusterrole":                    true,
	"clusterrolebinding":             true,
	"customresourcedefinition":       true,
	"podsecuritypolicy":              true,
	"priorityclass":                  true,
	"apiservice":                     true,
	"mutatingwebhookconfiguration":   true,
	"validatingwebhookconfiguration": true,
}

// IsClusterKind reports whether the kind is cluster-scoped.
func IsClusterKind(kind string) bool {
	return clusterKinds[strings.ToLower(kind)]
}

// Rank returns the apply-order rank for a (lowercased) kind.
func Rank(kind string) int {
	if r, ok := kindRank[kind]; ok {
		return r
	}
	return defaultRank
}

// SortIDs orders IDs by apply order: rank first, then the string
// representation, so the order is total and deterministic.
func SortIDs(ids []ID) {
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := Rank(ids[i].Kind()), Rank(ids[j].Kind())
		if ri != rj {
			return ri < rj
		}
		return ids[i].String() < ids[j].String()
	})
}
