package manifests

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convergeproj/converge/pkg/git"
	"github.com/convergeproj/converge/pkg/git/gittest"
)

var testFiles = map[string]string{
	"deploy/namespace.yaml": `apiVersion: v1
kind: Namespace
metadata:
  name: dev
`,
	"deploy/deployment.yaml": `apiVersion: apps/v1
kind: Deployment
metadata:
  name: helloworld
  namespace: dev
spec:
  replicas: 3
`,
	"elsewhere/ignored.yaml": `apiVersion: v1
kind: ConfigMap
metadata:
  name: unrelated
  namespace: dev
`,
}

func fetcher(t *testing.T) (*GitFetcher, func()) {
	mirrors := git.NewMirrors()
	f := NewGitFetcher(mirrors, time.Minute, 10*time.Second, log.NewLogfmtLogger(os.Stderr))
	return f, mirrors.StopAllAndWait
}

func TestFetch(t *testing.T) {
	origin, cleanup := gittest.Repo(t, testFiles)
	defer cleanup()
	head := gittest.HeadRevision(t, origin)

	f, stop := fetcher(t)
	defer stop()

	set, err := f.Fetch(context.Background(), origin, "HEAD", "deploy")
	require.NoError(t, err)

	// Ref resolved to the commit hash, not left symbolic.
	assert.Equal(t, head, set.Revision)
	// Only manifests under the path, in apply order.
	require.Len(t, set.Resources, 2)
	assert.Equal(t, "namespace", set.Resources[0].ResourceID().Kind())
	assert.Equal(t, "deployment", set.Resources[1].ResourceID().Kind())

	// Fetching the resolved revision yields identical content.
	again, err := f.Fetch(context.Background(), origin, set.Revision, "deploy")
	require.NoError(t, err)
	require.Len(t, again.Resources, 2)
	for i := range set.Resources {
		assert.Equal(t, set.Resources[i].Bytes(), again.Resources[i].Bytes())
	}
}

func TestFetchMissingPath(t *testing.T) {
	origin, cleanup := gittest.Repo(t, testFiles)
	defer cleanup()

	f, stop := fetcher(t)
	defer stop()

	_, err := f.Fetch(context.Background(), origin, "HEAD", "no/such/dir")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %T: %v", err, err)
}

func TestFetchMissingRef(t *testing.T) {
	origin, cleanup := gittest.Repo(t, testFiles)
	defer cleanup()

	f, stop := fetcher(t)
	defer stop()

	_, err := f.Fetch(context.Background(), origin, "no-such-branch", "deploy")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %T: %v", err, err)
}

func TestFetchUnreachableRepo(t *testing.T) {
	f, stop := fetcher(t)
	defer stop()

	_, err := f.Fetch(context.Background(), "/nowhere/particular", "HEAD", "deploy")
	require.Error(t, err)
	assert.True(t, IsNetwork(err), "got %T: %v", err, err)
}

func TestFetchSemverPattern(t *testing.T) {
	origin, cleanup := gittest.Repo(t, testFiles)
	defer cleanup()
	gittest.Tag(t, origin, "1.0.0")
	rev2 := gittest.Commit(t, origin, "second")
	gittest.Tag(t, origin, "1.1.0")

	f, stop := fetcher(t)
	defer stop()

	set, err := f.Fetch(context.Background(), origin, "semver:^1.0", "deploy")
	require.NoError(t, err)
	assert.Equal(t, rev2, set.Revision)
}
