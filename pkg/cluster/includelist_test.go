package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludeIncludeGlob(t *testing.T) {
	for _, tc := range []struct {
		name     string
		includer ExcludeIncludeGlob
		included []string
		excluded []string
	}{
		{
			name:     "empty includes everything",
			includer: ExcludeIncludeGlob{},
			included: []string{"dev", "kube-system"},
		},
		{
			name:     "exclude wins over include",
			includer: ExcludeIncludeGlob{Include: []string{"*"}, Exclude: []string{"kube-*"}},
			included: []string{"dev", "prod"},
			excluded: []string{"kube-system", "kube-public"},
		},
		{
			name:     "include list restricts",
			includer: ExcludeIncludeGlob{Include: []string{"team-*"}},
			included: []string{"team-a"},
			excluded: []string{"dev"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, s := range tc.included {
				assert.True(t, tc.includer.IsIncluded(s), s)
			}
			for _, s := range tc.excluded {
				assert.False(t, tc.includer.IsIncluded(s), s)
			}
		})
	}
}
