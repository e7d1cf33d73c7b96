// Package gittest has helpers for testing against real git
// repositories, created fresh in a temporary directory. Tests using
// it need the git binary on the PATH.
package gittest

import (
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo creates a git repository containing the files given, with one
// initial commit, and returns its directory and a cleanup function.
func Repo(t *testing.T, files map[string]string) (string, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "converge-gittest")
	if err != nil {
		t.Fatal(err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	execGit(t, dir, "init")
	execGit(t, dir, "config", "user.email", "test@example.com")
	execGit(t, dir, "config", "user.name", "testuser")
	WriteFiles(t, dir, files)
	execGit(t, dir, "add", "-A")
	execGit(t, dir, "commit", "-m", "initial")
	return dir, cleanup
}

// WriteFiles writes the given relative path -> contents map under
// dir, creating directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, contents := range files {
		abs := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(abs), 0777); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(abs, []byte(contents), 0666); err != nil {
			t.Fatal(err)
		}
	}
}

// Commit stages and commits any outstanding changes in the repo at
// dir, returning the new head revision.
func Commit(t *testing.T, dir, message string) string {
	t.Helper()
	execGit(t, dir, "add", "-A")
	execGit(t, dir, "commit", "--allow-empty", "-m", message)
	return HeadRevision(t, dir)
}

// Tag creates a tag at the current head.
func Tag(t *testing.T, dir, name string) {
	t.Helper()
	execGit(t, dir, "tag", name)
}

// HeadRevision returns the SHA1 of HEAD.
func HeadRevision(t *testing.T, dir string) string {
	t.Helper()
	return strings.TrimSpace(execGit(t, dir, "rev-parse", "HEAD"))
}

// Branch returns the name of the branch HEAD is on; repos created
// here use whatever the local git defaults to.
func Branch(t *testing.T, dir string) string {
	t.Helper()
	return strings.TrimSpace(execGit(t, dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func execGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	c := exec.Command("git", args...)
	c.Dir = dir
	c.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := c.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}
