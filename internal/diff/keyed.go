// Package diff computes four-way classification diffs between tree
// snapshots and keyed diffs over per-node sub-entity collections.
package diff

import "sort"

// Entity is a sub-entity that can participate in a keyed-collection diff.
type Entity interface {
	DiffKey() string
	DiffFields() map[string]any
}

// CollectionDiff is the outcome of comparing two keyed collections.
type CollectionDiff struct {
	New      []map[string]any `json:"new,omitempty"`
	Modified []map[string]any `json:"modified,omitempty"`
	Deleted  []map[string]any `json:"deleted,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d CollectionDiff) Empty() bool {
	return len(d.New) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Collection compares two keyed collections: membership by key, then
// field-by-field for matched keys. Modified entries carry only the fields
// that changed plus keyField for identification. A key that changed fields
// is never reported as new+deleted.
func Collection[T Entity](keyField string, old, updated []T) CollectionDiff {
	oldByKey := make(map[string]T, len(old))
	for _, e := range old {
		oldByKey[e.DiffKey()] = e
	}
	newByKey := make(map[string]T, len(updated))
	for _, e := range updated {
		newByKey[e.DiffKey()] = e
	}

	var out CollectionDiff
	for _, e := range updated {
		prior, ok := oldByKey[e.DiffKey()]
		if !ok {
			out.New = append(out.New, e.DiffFields())
			continue
		}
		changes := fieldChanges(prior.DiffFields(), e.DiffFields())
		if len(changes) > 0 {
			changes[keyField] = e.DiffKey()
			out.Modified = append(out.Modified, changes)
		}
	}
	for _, e := range old {
		if _, ok := newByKey[e.DiffKey()]; !ok {
			out.Deleted = append(out.Deleted, e.DiffFields())
		}
	}
	return out
}

// fieldChanges returns the entries of updated whose values differ from old.
func fieldChanges(old, updated map[string]any) map[string]any {
	changes := map[string]any{}
	for field, value := range updated {
		if old[field] != value {
			changes[field] = value
		}
	}
	return changes
}

// TagDiff is a pure set diff over tag names; tags have no fields to compare.
type TagDiff struct {
	New     []string `json:"new,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// Empty reports whether the tag diff carries no changes.
func (d TagDiff) Empty() bool {
	return len(d.New) == 0 && len(d.Deleted) == 0
}

// Tags compares two tag sets.
func Tags(old, updated []string) TagDiff {
	oldSet := make(map[string]struct{}, len(old))
	for _, t := range old {
		oldSet[t] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(updated))
	for _, t := range updated {
		newSet[t] = struct{}{}
	}

	var out TagDiff
	for t := range newSet {
		if _, ok := oldSet[t]; !ok {
			out.New = append(out.New, t)
		}
	}
	for t := range oldSet {
		if _, ok := newSet[t]; !ok {
			out.Deleted = append(out.Deleted, t)
		}
	}
	sort.Strings(out.New)
	sort.Strings(out.Deleted)
	return out
}
