package git

import (
	"context"
	"io/ioutil"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultInterval = 5 * time.Minute
	defaultTimeout  = 20 * time.Second
)

var (
	ErrNoConfig  = errors.New("git repo has no origin configured")
	ErrNotCloned = errors.New("git repo has not been cloned yet")
)

type NotReadyError struct {
	underlying error
}

func (err NotReadyError) Unwrap() error { return err.underlying }

func (err NotReadyError) Error() string {
	return "git repo not ready: " + err.underlying.Error()
}

// Status represents the progress made mirroring a git repo.
type Status string

const (
	RepoNoConfig Status = "unconfigured" // configuration is empty
	RepoNew      Status = "new"          // no attempt made to clone it yet
	RepoReady    Status = "ready"        // has been mirrored, so ready to read from
)

// Repo maintains a local mirror of a remote repository, refreshed on
// an interval and on demand; a successful refresh that changed
// anything is signalled on C.
type Repo struct {
	// As supplied to constructor
	origin   Remote
	interval time.Duration
	timeout  time.Duration

	// State
	mu     sync.RWMutex
	status Status
	err    error
	dir    string

	notify chan struct{}
	C      chan struct{}
}

type Option interface {
	apply(*Repo)
}

type optionFunc func(*Repo)

func (f optionFunc) apply(r *Repo) { f(r) }

// PollInterval sets the refresh interval.
func PollInterval(d time.Duration) Option {
	return optionFunc(func(r *Repo) { r.interval = d })
}

// Timeout sets the timeout for individual git operations.
func Timeout(d time.Duration) Option {
	return optionFunc(func(r *Repo) { r.timeout = d })
}

// NewRepo constructs a repo mirror which will sync itself.
func NewRepo(origin Remote, opts ...Option) *Repo {
	status := RepoNew
	if origin.URL == "" {
		status = RepoNoConfig
	}
	r := &Repo{
		origin:   origin,
		status:   status,
		interval: defaultInterval,
		timeout:  defaultTimeout,
		err:      ErrNotCloned,
		notify:   make(chan struct{}, 1), // `1` so that Notify doesn't block
		C:        make(chan struct{}, 1), // `1` so we don't block on completing a refresh
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Origin returns the Remote with which the Repo was constructed.
func (r *Repo) Origin() Remote {
	return r.origin
}

// Dir returns the local directory into which the repo has been
// cloned, if it has been cloned.
func (r *Repo) Dir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dir
}

// Clean removes the mirrored repo. Refreshing may continue with a new
// directory, so you may need to stop that first.
func (r *Repo) Clean() {
	r.mu.Lock()
	if r.dir != "" {
		os.RemoveAll(r.dir)
	}
	r.dir = ""
	r.status = RepoNew
	r.err = ErrNotCloned
	r.mu.Unlock()
}

// Status reports the readiness of this git repo: whether it has been
// mirrored, and if not, the error stopping it getting to the next
// state.
func (r *Repo) Status() (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.err
}

// Notify tells the repo that it should fetch from the origin as soon
// as possible. It does not block.
func (r *Repo) Notify() {
	select {
	case r.notify <- struct{}{}:
		// duly notified
	default:
		// notification already pending
	}
}

// refreshed indicates that the repo has successfully fetched from
// upstream.
func (r *Repo) refreshed() {
	select {
	case r.C <- struct{}{}:
	default:
	}
}

func (r *Repo) errorIfNotReady() error {
	switch r.status {
	case RepoReady:
		return nil
	case RepoNoConfig:
		return ErrNoConfig
	default:
		return NotReadyError{r.err}
	}
}

// Revision returns the SHA1 the given ref resolves to in the mirror.
func (r *Repo) Revision(ctx context.Context, ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errorIfNotReady(); err != nil {
		return "", err
	}
	return refRevision(ctx, r.dir, ref)
}

// Tags returns the tag names known to the mirror.
func (r *Repo) Tags(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errorIfNotReady(); err != nil {
		return nil, err
	}
	return tags(ctx, r.dir)
}

// Refresh fetches from the origin, mirroring it locally first if that
// has not happened yet. A change to any ref is signalled on C.
func (r *Repo) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == RepoNoConfig {
		return ErrNoConfig
	}

	if r.dir == "" {
		dir, err := ioutil.TempDir(os.TempDir(), "converge-gitclone")
		if err != nil {
			return err
		}
		mirrorDir, err := mirror(ctx, dir, r.origin.URL)
		if err != nil {
			os.RemoveAll(dir)
			r.status = RepoNew
			r.err = err
			return err
		}
		r.dir = mirrorDir
		r.status = RepoReady
		r.err = nil
		metricGitReady.With("mirror", r.origin.SafeURL()).Set(MetricRepoReady)
		r.refreshed()
		return nil
	}

	before, _ := refsHash(ctx, r.dir)
	if err := fetch(ctx, r.dir); err != nil {
		// Keep serving the stale mirror; the error is reported so
		// the operator can see fetching is stuck.
		r.err = err
		metricGitReady.With("mirror", r.origin.SafeURL()).Set(MetricRepoUnready)
		return err
	}
	r.err = nil
	r.status = RepoReady
	metricGitReady.With("mirror", r.origin.SafeURL()).Set(MetricRepoReady)
	after, _ := refsHash(ctx, r.dir)
	if before != after {
		r.refreshed()
	}
	return nil
}

// Start runs the mirroring loop until the context is cancelled,
// refreshing on the poll interval (with a little jitter, so that many
// repos do not fetch in lockstep) and on Notify.
func (r *Repo) Start(ctx context.Context, done *sync.WaitGroup) {
	defer done.Done()
	for {
		opCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.Refresh(opCtx)
		cancel()
		_ = err // surfaced via Status()

		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-time.After(jitter(r.interval)):
		}
	}
}

func jitter(d time.Duration) time.Duration {
	// Within ±10% of the nominal interval.
	f := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * f)
}
