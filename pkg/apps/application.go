package apps

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/convergeproj/converge/pkg/git"
	"github.com/convergeproj/converge/pkg/policy"
)

// DefaultRef is used when a declaration does not pin a revision.
const DefaultRef = "master"

var nameRegexp = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Source says where an application's desired state comes from: a
// path within a repo at a ref. The ref may be a branch, tag, commit
// hash, or a tag pattern (`glob:`, `semver:`, `regexp:` prefixed).
type Source struct {
	RepoURL string `json:"repoURL"`
	Ref     string `json:"ref,omitempty"`
	Path    string `json:"path"`
}

// Destination says where the application's resources go.
type Destination struct {
	// Server is the cluster API endpoint. Only the cluster the
	// daemon is connected to is supported, so it must be empty;
	// the field is kept so declarations naming another cluster fail
	// validation rather than land on the wrong one.
	Server string `json:"server,omitempty"`
	// Namespace applied to namespaced resources that don't name one.
	Namespace string `json:"namespace,omitempty"`
}

// Application is the operator-facing declaration of one deployable
// unit. Declared in YAML files in the daemon's apps directory; the
// controller reconciles each one independently.
type Application struct {
	Name        string            `json:"name"`
	Source      Source            `json:"source"`
	Destination Destination       `json:"destination,omitempty"`
	SyncPolicy  policy.SyncPolicy `json:"syncPolicy,omitempty"`
}

// Ref returns the revision reference to reconcile, defaulted.
func (a Application) Ref() string {
	if a.Source.Ref == "" {
		return DefaultRef
	}
	return a.Source.Ref
}

// SyncSetName identifies the set of cluster resources this
// application owns; resources are marked with (a hash of) it on
// apply, and pruning only ever touches resources so marked. It is
// derived from the name and the source so that re-pointing an
// application at a different repo abandons, rather than deletes, the
// old resources.
func (a Application) SyncSetName() string {
	hasher := sha256.New()
	hasher.Write([]byte(a.Name))
	hasher.Write([]byte(git.Remote{URL: a.Source.RepoURL}.SafeURL()))
	return a.Name + "-" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))[:10]
}

// Validate checks the parts of a declaration the JSON schema cannot
// express.
func (a Application) Validate() error {
	if !nameRegexp.MatchString(a.Name) {
		return fmt.Errorf("application name %q must be a DNS label", a.Name)
	}
	if ref := a.Ref(); policy.IsPattern(ref) && !policy.NewPattern(ref).Valid() {
		return fmt.Errorf("application %s: invalid ref pattern %q", a.Name, ref)
	}
	// Only the daemon's own cluster is supported; reject rather than
	// silently deploy somewhere other than asked.
	if a.Destination.Server != "" {
		return fmt.Errorf("application %s: destination.server is not supported; the daemon deploys to the cluster it runs against", a.Name)
	}
	return nil
}
