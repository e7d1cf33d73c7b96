package git

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convergeproj/converge/pkg/git/gittest"
)

func TestRepoRefreshAndResolve(t *testing.T) {
	origin, cleanup := gittest.Repo(t, map[string]string{
		"dev/cfg.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata: {name: cfg, namespace: dev}\n",
	})
	defer cleanup()
	head := gittest.HeadRevision(t, origin)
	gittest.Tag(t, origin, "1.0.0")

	repo := NewRepo(Remote{URL: origin}, Timeout(10*time.Second))
	defer repo.Clean()

	ctx := context.Background()
	require.NoError(t, repo.Refresh(ctx))
	status, err := repo.Status()
	require.NoError(t, err)
	assert.Equal(t, RepoReady, status)

	rev, err := repo.Revision(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, rev)

	// Tags are mirrored too.
	tags, err := repo.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, tags)

	// A resolved revision resolves to itself.
	again, err := repo.Revision(ctx, rev)
	require.NoError(t, err)
	assert.Equal(t, rev, again)
}

func TestRepoSignalsChanges(t *testing.T) {
	origin, cleanup := gittest.Repo(t, map[string]string{"a.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata: {name: a, namespace: default}\n"})
	defer cleanup()

	repo := NewRepo(Remote{URL: origin}, Timeout(10*time.Second))
	defer repo.Clean()
	ctx := context.Background()

	require.NoError(t, repo.Refresh(ctx))
	<-repo.C // initial clone counts as a change

	// No change upstream: no signal.
	require.NoError(t, repo.Refresh(ctx))
	select {
	case <-repo.C:
		t.Fatal("expected no change signal")
	default:
	}

	// New commit upstream: signal.
	gittest.WriteFiles(t, origin, map[string]string{"b.txt": "hello"})
	gittest.Commit(t, origin, "add b")
	require.NoError(t, repo.Refresh(ctx))
	select {
	case <-repo.C:
	default:
		t.Fatal("expected a change signal")
	}
}

func TestExport(t *testing.T) {
	files := map[string]string{"deploy/cfg.yaml": "apiVersion: v1\nkind: ConfigMap\nmetadata: {name: cfg, namespace: dev}\n"}
	origin, cleanup := gittest.Repo(t, files)
	defer cleanup()
	head := gittest.HeadRevision(t, origin)

	repo := NewRepo(Remote{URL: origin}, Timeout(10*time.Second))
	defer repo.Clean()
	ctx := context.Background()
	require.NoError(t, repo.Refresh(ctx))

	export, err := repo.Export(ctx, head)
	require.NoError(t, err)
	defer export.Clean()
	assert.FileExists(t, export.Dir()+"/deploy/cfg.yaml")
}

func TestRepoNotReady(t *testing.T) {
	repo := NewRepo(Remote{URL: "/nowhere/particular"})
	_, err := repo.Revision(context.Background(), "HEAD")
	assert.Error(t, err)
	_, ok := err.(NotReadyError)
	assert.True(t, ok)
}
