package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortIDs(t *testing.T) {
	ids := []ID{
		MustParseID("dev:apps/deployment/helloworld"),
		MustParseID("dev:configmap/config"),
		MustParseID("<cluster>:namespace/dev"),
		MustParseID("dev:service/helloworld"),
		MustParseID("dev:serviceaccount/helloworld"),
	}
	SortIDs(ids)
	assert.Equal(t, []ID{
		MustParseID("<cluster>:namespace/dev"),
		MustParseID("dev:configmap/config"),
		MustParseID("dev:serviceaccount/helloworld"),
		MustParseID("dev:service/helloworld"),
		MustParseID("dev:apps/deployment/helloworld"),
	}, ids)
}

func TestRankUnknownKind(t *testing.T) {
	// Custom resources land in the workload tier, after the CRDs
	// defining them.
	assert.True(t, Rank("customresourcedefinition") < Rank("mycustomthing"))
	assert.True(t, Rank("mycustomthing") < Rank("ingress"))
}
