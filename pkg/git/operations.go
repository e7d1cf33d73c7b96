package git

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type gitCmdConfig struct {
	dir string
	env []string
	out io.Writer
}

func mirror(ctx context.Context, workingDir, repoURL string) (path string, err error) {
	repoPath := workingDir
	args := []string{"clone", "--mirror", repoURL, repoPath}
	if err := execGitCmd(ctx, args, gitCmdConfig{}); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("git clone --mirror %s", Remote{URL: repoURL}.SafeURL()))
	}
	return repoPath, nil
}

func fetch(ctx context.Context, workingDir string) error {
	args := []string{"fetch", "--tags", "--prune", "--force", "origin"}
	if err := execGitCmd(ctx, args, gitCmdConfig{dir: workingDir}); err != nil {
		return errors.Wrap(err, "git fetch origin")
	}
	return nil
}

func clone(ctx context.Context, workingDir, sourceDir string) (path string, err error) {
	args := []string{"clone", sourceDir, workingDir}
	if err := execGitCmd(ctx, args, gitCmdConfig{}); err != nil {
		return "", errors.Wrap(err, "git clone from mirror")
	}
	return workingDir, nil
}

func checkout(ctx context.Context, workingDir, ref string) error {
	args := []string{"checkout", "--detach", ref}
	return errors.Wrap(execGitCmd(ctx, args, gitCmdConfig{dir: workingDir}), "git checkout "+ref)
}

// refRevision returns the SHA1 the ref resolves to in the repo at
// workingDir.
func refRevision(ctx context.Context, workingDir, ref string) (string, error) {
	out := &bytes.Buffer{}
	args := []string{"rev-parse", "--verify", ref + "^{commit}"}
	if err := execGitCmd(ctx, args, gitCmdConfig{dir: workingDir, out: out}); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// tags lists the tag names in the repo at workingDir.
func tags(ctx context.Context, workingDir string) ([]string, error) {
	out := &bytes.Buffer{}
	args := []string{"tag", "--list"}
	if err := execGitCmd(ctx, args, gitCmdConfig{dir: workingDir, out: out}); err != nil {
		return nil, err
	}
	return splitList(out.String()), nil
}

// refsHash summarises all refs in the repo, for telling whether a
// fetch changed anything.
func refsHash(ctx context.Context, workingDir string) (string, error) {
	out := &bytes.Buffer{}
	if err := execGitCmd(ctx, []string{"show-ref", "--head"}, gitCmdConfig{dir: workingDir, out: out}); err != nil {
		return "", err
	}
	sum := sha256.Sum256(out.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func splitList(s string) []string {
	outStr := strings.TrimSpace(s)
	if outStr == "" {
		return []string{}
	}
	return strings.Split(outStr, "\n")
}

func execGitCmd(ctx context.Context, args []string, config gitCmdConfig) error {
	c := exec.CommandContext(ctx, "git", args...)

	if config.dir != "" {
		c.Dir = config.dir
	}
	c.Env = append(env(), config.env...)
	stdOutAndStdErr := &threadSafeBuffer{}
	c.Stdout = stdOutAndStdErr
	c.Stderr = stdOutAndStdErr
	if config.out != nil {
		c.Stdout = io.MultiWriter(c.Stdout, config.out)
	}

	err := c.Run()
	if err != nil {
		if len(stdOutAndStdErr.Bytes()) > 0 {
			err = errors.New(stdOutAndStdErr.String())
			msg := findErrorMessage(bytes.NewReader(stdOutAndStdErr.Bytes()))
			if msg != "" {
				err = fmt.Errorf("%s, full output:\n %s", msg, err.Error())
			}
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(ctx.Err(), fmt.Sprintf("running git command: %s %v", "git", args))
	} else if ctx.Err() == context.Canceled {
		return errors.Wrap(ctx.Err(), fmt.Sprintf("context was unexpectedly cancelled when running git command: %s %v", "git", args))
	}
	return err
}

func env() []string {
	return []string{"GIT_TERMINAL_PROMPT=0"}
}

func findErrorMessage(output io.Reader) string {
	sc := bufio.NewScanner(output)
	for sc.Scan() {
		switch {
		case strings.HasPrefix(sc.Text(), "fatal: "):
			return sc.Text()
		case strings.HasPrefix(sc.Text(), "ERROR fatal: "): // Saw this error on ubuntu systems
			return sc.Text()
		case strings.HasPrefix(sc.Text(), "error:"):
			return strings.Trim(sc.Text(), "error: ")
		}
	}
	return ""
}

type threadSafeBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *threadSafeBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *threadSafeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *threadSafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func tempDir(parent string) (string, error) {
	return ioutil.TempDir(parent, "converge-working")
}
