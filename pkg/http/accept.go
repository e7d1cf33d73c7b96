package http

import (
	"net/http"
	"sort"

	"github.com/golang/gddo/httputil/header"
)

// negotiateContentType picks a content type based on the Accept
// header from a request, and a supplied list of available content
// types in order of preference. Amongst the acceptable types, higher
// quality (`q`) wins; amongst those with equal quality, the one
// earlier in the preference list wins.
func negotiateContentType(r *http.Request, orderedPref []string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return orderedPref[0]
	}

	rank := func(value string) int {
		for i, p := range orderedPref {
			if p == value {
				return i
			}
		}
		return len(orderedPref)
	}

	var acceptable []header.AcceptSpec
	for _, spec := range specs {
		if rank(spec.Value) < len(orderedPref) {
			acceptable = append(acceptable, spec)
		}
	}
	if len(acceptable) == 0 {
		return ""
	}
	sort.SliceStable(acceptable, func(i, j int) bool {
		if acceptable[i].Q == acceptable[j].Q {
			return rank(acceptable[i].Value) < rank(acceptable[j].Value)
		}
		return acceptable[i].Q > acceptable[j].Q
	})
	return acceptable[0].Value
}
