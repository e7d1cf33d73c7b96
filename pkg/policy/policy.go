package policy

// SyncPolicy says how eagerly an Application is reconciled.
//
// With Automated unset, cycles still run (so status stays current)
// but Delete entries are never produced and drift alone does not
// trigger a sync. Prune and SelfHeal only have an effect when
// Automated is set.
type SyncPolicy struct {
	// Automated enables unattended syncing of new revisions.
	Automated bool `json:"automated" yaml:"automated"`
	// Prune allows deletion of live resources that are absent from
	// the desired set.
	Prune bool `json:"prune" yaml:"prune"`
	// SelfHeal re-syncs on detected drift, even when there is no new
	// revision.
	SelfHeal bool `json:"selfHeal" yaml:"selfHeal"`
}

// PruneEnabled reports whether Delete entries may be produced and
// acted upon.
func (p SyncPolicy) PruneEnabled() bool {
	return p.Automated && p.Prune
}

// SelfHealEnabled reports whether drift alone should trigger a cycle.
func (p SyncPolicy) SelfHealEnabled() bool {
	return p.Automated && p.SelfHeal
}
