// Package registry holds the ordered, deduplicated set of visible blocks.
//
// Blocks are keyed by (name, instance). An update for a known key replaces
// the stored block in place, keeping its first-seen position among blocks
// of equal rank. An update with empty full_text removes the block; that is
// how generators clear one. A new block that arrives empty is ignored.
//
// Rank comes from the order list: the index of the first entry naming the
// block, where a path-like entry also names its base name. Names missing
// from the list rank after every listed name. Changing the order re-sorts
// the view without touching the stored blocks.
//
// Upsert and SetOrder report whether the visible snapshot changed, so the
// caller emits only when the bar would show something different.
//
// A Registry is not safe for concurrent use. The service owns the only
// instance and touches it from its loop goroutine.
package registry

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/dstatus/internal/block"
)

// Registry keeps at most one block per (name, instance) key, drops blocks
// without full_text and orders the rest by the ordering key.
type Registry struct {
	// entries is in insertion order.
	entries []block.Block
	// view is entries sorted by rank.
	view []block.Block
	rank map[string]int
	// order is kept so SetOrder can report no-op changes.
	order []string
}

// New returns a registry ordered by order. Names absent from order sort
// after every listed name, in insertion order.
func New(order []string) *Registry {
	r := &Registry{}
	r.setRank(order)
	return r
}

func (r *Registry) setRank(order []string) {
	r.order = append([]string(nil), order...)
	r.rank = make(map[string]int, len(order))
	for i, entry := range order {
		for _, name := range orderNames(entry) {
			if _, dup := r.rank[name]; !dup {
				r.rank[name] = i
			}
		}
	}
}

// orderNames returns the block names an order entry matches: the entry
// itself and, for a path-like entry, its base name.
func orderNames(entry string) []string {
	names := []string{entry}
	if strings.ContainsRune(entry, '/') {
		if base := filepath.Base(entry); base != entry && base != "." && base != "/" {
			names = append(names, base)
		}
	}
	return names
}

func (r *Registry) rankOf(name string) int {
	if i, ok := r.rank[name]; ok {
		return i
	}
	return len(r.order)
}

// Upsert replaces the block with the same key or appends it, then
// re-filters and re-sorts. It reports whether the visible sequence
// changed.
func (r *Registry) Upsert(b block.Block) bool {
	key := b.Key()
	idx := -1
	for i := range r.entries {
		if r.entries[i].Key() == key {
			idx = i
			break
		}
	}

	switch {
	case idx < 0 && !b.Visible():
		return false
	case idx < 0:
		r.entries = append(r.entries, b.Clone())
	case r.entries[idx].Equal(b):
		return false
	case !b.Visible():
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	default:
		r.entries[idx] = b.Clone()
	}
	r.rebuild()
	return true
}

// SetOrder replaces the ordering key and reports whether the visible
// sequence moved.
func (r *Registry) SetOrder(order []string) bool {
	before := r.keys()
	r.setRank(order)
	r.rebuild()
	after := r.keys()
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}
	return false
}

func (r *Registry) rebuild() {
	view := make([]block.Block, len(r.entries))
	copy(view, r.entries)
	sort.SliceStable(view, func(i, j int) bool {
		return r.rankOf(view[i].Name) < r.rankOf(view[j].Name)
	})
	r.view = view
}

func (r *Registry) keys() []block.Key {
	out := make([]block.Key, len(r.view))
	for i, b := range r.view {
		out[i] = b.Key()
	}
	return out
}

// Snapshot returns a copy of the visible blocks in display order.
func (r *Registry) Snapshot() []block.Block {
	out := make([]block.Block, len(r.view))
	for i, b := range r.view {
		out[i] = b.Clone()
	}
	return out
}

// Len returns the number of visible blocks.
func (r *Registry) Len() int {
	return len(r.view)
}
