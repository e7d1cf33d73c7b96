package resource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ClusterScope is the namespace used in IDs of cluster-scoped
// resources, so they sort and print uniformly with namespaced ones.
const ClusterScope = "<cluster>"

var (
	ErrInvalidID = errors.New("invalid resource ID")

	// <namespace>:<kind>/<name> or <namespace>:<group>/<kind>/<name>;
	// the namespace may be `<cluster>` for cluster-scoped resources.
	idRegexp = regexp.MustCompile(`^(<cluster>|[a-zA-Z0-9_-]+):(?:([a-zA-Z0-9_.-]+)/)?([a-zA-Z0-9_-]+)/([a-zA-Z0-9_.:-]+)$`)
)

// ID identifies a resource in the cluster: its API group and kind,
// the namespace it lives in (or ClusterScope), and its name. The
// identity is stable across spec changes, which makes it usable as a
// lookup key when pairing desired manifests with live resources.
type ID struct {
	namespace, group, kind, name string
}

// MakeID constructs an ID from its parts. The kind is lowercased, so
// that IDs from manifests compare equal to IDs from the cluster API
// regardless of capitalisation. An empty namespace means
// cluster-scoped.
func MakeID(namespace, group, kind, name string) ID {
	if namespace == "" {
		namespace = ClusterScope
	}
	return ID{namespace, strings.ToLower(group), strings.ToLower(kind), name}
}

// ParseID constructs an ID from its string representation, if
// possible, returning an error value otherwise.
func ParseID(s string) (ID, error) {
	if m := idRegexp.FindStringSubmatch(s); m != nil {
		return MakeID(m[1], m[2], m[3], m[4]), nil
	}
	return ID{}, errors.Wrap(ErrInvalidID, "parsing "+s)
}

// MustParseID constructs an ID from its string representation,
// panicking if the format is invalid.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	if id.group == "" {
		return fmt.Sprintf("%s:%s/%s", id.namespace, id.kind, id.name)
	}
	return fmt.Sprintf("%s:%s/%s/%s", id.namespace, id.group, id.kind, id.name)
}

// Components returns the parts of the ID in order: namespace, group,
// kind, name. The namespace is ClusterScope for cluster-scoped
// resources.
func (id ID) Components() (namespace, group, kind, name string) {
	return id.namespace, id.group, id.kind, id.name
}

func (id ID) Namespace() string { return id.namespace }
func (id ID) Kind() string      { return id.kind }
func (id ID) Name() string      { return id.name }

// IsClusterScoped reports whether the resource lives outside any
// namespace.
func (id ID) IsClusterScoped() bool {
	return id.namespace == ClusterScope
}

// MarshalJSON encodes the ID as its string representation.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes an ID from its string representation.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
