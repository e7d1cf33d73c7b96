package git

import (
	"context"
	"sync"
)

// Mirrors maintains several git mirrors as a set, with a mechanism
// for signalling when some have had changes.
//
// The advantage of it being a set is that you can add to it
// idempotently; if you need a repo to be mirrored, add it, and it
// will either already be mirrored, or that will be started.
type Mirrors struct {
	reposMu sync.Mutex
	repos   map[string]mirroringState

	changesMu sync.Mutex
	changes   chan map[string]struct{}

	wg *sync.WaitGroup
}

type mirroringState struct {
	repo   *Repo
	cancel context.CancelFunc
}

func NewMirrors() *Mirrors {
	return &Mirrors{
		repos:   make(map[string]mirroringState),
		changes: make(chan map[string]struct{}, 1),
		wg:      &sync.WaitGroup{},
	}
}

// Changes gets a channel upon which notifications of which repos have
// changed will be sent.
func (m *Mirrors) Changes() <-chan map[string]struct{} {
	return m.changes
}

func (m *Mirrors) signalChange(name string) {
	// So we don't try to write from two goroutines at once. This
	// procedure assumes writers will always go through the lock.
	m.changesMu.Lock()
	defer m.changesMu.Unlock()
	select {
	case c := <-m.changes:
		c[name] = struct{}{}
		m.changes <- c
	default:
		c := map[string]struct{}{}
		c[name] = struct{}{}
		m.changes <- c
	}
}

// Mirror instructs the Mirrors to track a particular repo; if there
// is already a repo with the name given, nothing is done. Otherwise,
// the repo given will be mirrored, and changes signalled on the
// channel obtained with `Changes()`. The return value indicates
// whether the repo was already present (`true` if so, `false`
// otherwise).
func (m *Mirrors) Mirror(name string, remote Remote, options ...Option) bool {
	m.reposMu.Lock()
	defer m.reposMu.Unlock()
	if _, ok := m.repos[name]; ok {
		return true
	}
	repo := NewRepo(remote, options...)
	ctx, cancel := context.WithCancel(context.Background())
	m.repos[name] = mirroringState{repo: repo, cancel: cancel}
	m.wg.Add(2)
	go repo.Start(ctx, m.wg)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-repo.C:
				m.signalChange(name)
			}
		}
	}()
	return false
}

// Get returns the named repo, or nil if it is not being mirrored.
func (m *Mirrors) Get(name string) *Repo {
	m.reposMu.Lock()
	defer m.reposMu.Unlock()
	if state, ok := m.repos[name]; ok {
		return state.repo
	}
	return nil
}

// StopOne stops mirroring the named repo and cleans its clone up.
func (m *Mirrors) StopOne(name string) {
	m.reposMu.Lock()
	defer m.reposMu.Unlock()
	if state, ok := m.repos[name]; ok {
		state.cancel()
		state.repo.Clean()
		delete(m.repos, name)
	}
}

// StopAllAndWait stops all mirroring and waits for the loops to
// finish.
func (m *Mirrors) StopAllAndWait() {
	m.reposMu.Lock()
	for name, state := range m.repos {
		state.cancel()
		state.repo.Clean()
		delete(m.repos, name)
	}
	m.reposMu.Unlock()
	m.wg.Wait()
}
