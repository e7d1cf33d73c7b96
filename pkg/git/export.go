package git

import (
	"context"
	"os"
)

// Export is a minimal working clone of the repo at a particular
// revision, for reading manifests out of. It is to be cleaned up by
// the caller when done with.
type Export struct {
	dir string
}

func (e *Export) Dir() string {
	return e.dir
}

func (e *Export) Clean() error {
	if e.dir != "" {
		return os.RemoveAll(e.dir)
	}
	return nil
}

// Export creates a clone of the mirror checked out at the ref given.
func (r *Repo) Export(ctx context.Context, ref string) (*Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.errorIfNotReady(); err != nil {
		return nil, err
	}
	dir, err := tempDir(os.TempDir())
	if err != nil {
		return nil, err
	}
	if _, err := clone(ctx, dir, r.dir); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := checkout(ctx, dir, ref); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &Export{dir: dir}, nil
}
