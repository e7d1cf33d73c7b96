package diff

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/pkg/errors"

	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/manifests"
	"github.com/convergeproj/converge/pkg/resource"
)

// Action says what the executor should do about one resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionInSync Action = "in-sync"
)

// Entry pairs a desired manifest with its live counterpart. Desired
// is unset for Delete entries; Live is unset for Create entries. For
// Update entries, Patch is a JSON merge patch from the normalized
// live state to the normalized desired state, i.e., the drift.
type Entry struct {
	Action  Action
	ID      resource.ID
	Desired *resource.Manifest
	Live    *cluster.LiveResource
	Patch   []byte
}

// Diff compares the desired manifest set against a live-state
// snapshot and produces entries in the order the executor must apply
// them: desired resources in kind-precedence order, then (when prune
// is on) deletions of unexpected live resources in reverse precedence
// order. With prune off, unexpected live resources are returned
// separately for reporting; no Delete entry is ever produced.
//
// Diffing is read-only and deterministic: the same (desired, live)
// pair always yields the same entries.
func Diff(desired *manifests.ManifestSet, live *cluster.Snapshot, prune bool) ([]Entry, []resource.ID, error) {
	var entries []Entry

	seen := map[resource.ID]bool{}
	for i := range desired.Resources {
		m := desired.Resources[i]
		id := m.ResourceID()
		seen[id] = true

		liveRes, ok := live.Lookup(id)
		if !ok {
			entries = append(entries, Entry{Action: ActionCreate, ID: id, Desired: &desired.Resources[i]})
			continue
		}
		patch, inSync, err := compare(m, liveRes)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "comparing %s", id)
		}
		e := Entry{ID: id, Desired: &desired.Resources[i], Live: &liveRes}
		if inSync {
			e.Action = ActionInSync
		} else {
			e.Action = ActionUpdate
			e.Patch = patch
		}
		entries = append(entries, e)
	}

	// Live resources we own but which are no longer desired.
	var extra []resource.ID
	for id := range live.Resources {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	resource.SortIDs(extra)

	if !prune {
		return entries, extra, nil
	}
	// Deletes happen in reverse apply order, dependents before the
	// things they depend on.
	for i := len(extra) - 1; i >= 0; i-- {
		liveRes := live.Resources[extra[i]]
		entries = append(entries, Entry{Action: ActionDelete, ID: extra[i], Live: &liveRes})
	}
	return entries, nil, nil
}

// compare normalizes both sides and reports whether they agree; when
// they do not, it returns the merge patch that would bring live to
// desired. Comparison goes via canonical JSON so that YAML-decoded
// numbers (float64) and API-decoded numbers (int64) do not register
// as drift.
func compare(m resource.Manifest, liveRes cluster.LiveResource) (patch []byte, inSync bool, err error) {
	desiredJSON, err := json.Marshal(Normalize(m.Object()).Object)
	if err != nil {
		return nil, false, err
	}
	liveJSON, err := json.Marshal(Normalize(liveRes.Obj).Object)
	if err != nil {
		return nil, false, err
	}
	if string(desiredJSON) == string(liveJSON) {
		return nil, true, nil
	}
	patch, err = jsonpatch.CreateMergePatch(liveJSON, desiredJSON)
	if err != nil {
		return nil, false, err
	}
	return patch, false, nil
}
