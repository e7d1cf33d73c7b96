package manifests

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/convergeproj/converge/pkg/git"
	"github.com/convergeproj/converge/pkg/policy"
	"github.com/convergeproj/converge/pkg/resource"
)

// GitFetcher reads manifest sets out of mirrored git repositories.
// Mirrors are shared: two applications sourced from the same repo use
// the same local mirror.
type GitFetcher struct {
	Mirrors    *git.Mirrors
	GitTimeout time.Duration
	Interval   time.Duration
	Logger     log.Logger
}

func NewGitFetcher(mirrors *git.Mirrors, interval, timeout time.Duration, logger log.Logger) *GitFetcher {
	return &GitFetcher{
		Mirrors:    mirrors,
		GitTimeout: timeout,
		Interval:   interval,
		Logger:     logger,
	}
}

// Fetch resolves ref against the repo's mirror and loads the
// manifests under path at that revision. The ref may be a branch,
// tag, commit hash, or a tag pattern (`glob:`, `semver:`, `regexp:`
// prefixed).
func (f *GitFetcher) Fetch(ctx context.Context, repoURL, ref, path string) (*ManifestSet, error) {
	repo := f.repoFor(repoURL)

	if _, err := repo.Status(); err != nil {
		// Not mirrored yet (or the last fetch failed); try to bring
		// it up to date now rather than reporting a transient error
		// for the whole first interval.
		refreshCtx, cancel := context.WithTimeout(ctx, f.GitTimeout)
		err := repo.Refresh(refreshCtx)
		cancel()
		if err != nil {
			return nil, NetworkError{Err: err}
		}
	}

	revision, err := f.resolve(ctx, repo, repoURL, ref)
	if err != nil {
		return nil, err
	}

	export, err := repo.Export(ctx, revision)
	if err != nil {
		return nil, NetworkError{Err: err}
	}
	defer export.Clean()

	base := export.Dir()
	loadPath := filepath.Join(base, path)
	if _, err := os.Stat(loadPath); os.IsNotExist(err) {
		return nil, NotFoundError{RepoURL: repoURL, Revision: revision, Path: path}
	}
	objs, err := resource.Load(base, []string{loadPath})
	if err != nil {
		return nil, err
	}
	f.Logger.Log("info", "fetched manifests", "url", git.Remote{URL: repoURL}.SafeURL(), "revision", revision, "resources", len(objs))
	return NewManifestSet(revision, objs), nil
}

// Notify marks the mirror for repoURL as changed, so the next refresh
// happens promptly. Used by the webhook endpoint.
func (f *GitFetcher) Notify(repoURL string) {
	if repo := f.Mirrors.Get(mirrorName(repoURL)); repo != nil {
		repo.Notify()
	}
}

// Changes exposes the underlying change notifications: a set of
// mirror names that have new content.
func (f *GitFetcher) Changes() <-chan map[string]struct{} {
	return f.Mirrors.Changes()
}

// MirrorName returns the name under which a repo URL's mirror is
// registered, for correlating change notifications.
func MirrorName(repoURL string) string {
	return mirrorName(repoURL)
}

func (f *GitFetcher) repoFor(repoURL string) *git.Repo {
	name := mirrorName(repoURL)
	f.Mirrors.Mirror(name, git.Remote{URL: repoURL}, git.PollInterval(f.Interval), git.Timeout(f.GitTimeout))
	return f.Mirrors.Get(name)
}

func (f *GitFetcher) resolve(ctx context.Context, repo *git.Repo, repoURL, ref string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, f.GitTimeout)
	defer cancel()

	if policy.IsPattern(ref) {
		pattern := policy.NewPattern(ref)
		tags, err := repo.Tags(opCtx)
		if err != nil {
			return "", NetworkError{Err: err}
		}
		tag := pattern.Select(tags)
		if tag == "" {
			return "", NotFoundError{RepoURL: repoURL, Revision: ref}
		}
		ref = tag
	}

	revision, err := repo.Revision(opCtx, ref)
	if err != nil {
		if _, notReady := err.(git.NotReadyError); notReady {
			return "", NetworkError{Err: err}
		}
		// rev-parse failing on a mirrored repo means the ref does not
		// exist there.
		return "", NotFoundError{RepoURL: repoURL, Revision: ref}
	}
	return strings.TrimSpace(revision), nil
}

func mirrorName(repoURL string) string {
	return git.Remote{URL: repoURL}.SafeURL()
}
