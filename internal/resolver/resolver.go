// Package resolver fills display attributes a block leaves unset from the
// configuration layers that apply to it.
package resolver

import (
	"github.com/roach88/dstatus/internal/block"
)

// Layers are the configuration sections that apply to one block. Any of
// them may be nil.
type Layers struct {
	General  map[string]any
	Block    map[string]any
	Instance map[string]any
}

// Resolve returns a copy of b with every override key it does not set
// taken from the first layer that has it, checked in the order instance,
// block, general. A layer value the block validator rejects is skipped and
// the next layer is tried. b is not modified.
func Resolve(b block.Block, layers Layers) block.Block {
	out := b.Clone()
	ordered := [...]map[string]any{layers.Instance, layers.Block, layers.General}
	for _, key := range block.OverrideKeys {
		if out.Has(key) {
			continue
		}
		for _, layer := range ordered {
			v, ok := layer[key]
			if !ok || v == nil {
				continue
			}
			if err := out.Set(key, v); err == nil {
				break
			}
		}
	}
	return out
}
