package client

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/dstatus/internal/block"
)

// ExpandTemplate replaces %key with its value for every key in vars.
// Longer keys are replaced first so %date is not clobbered by %d.
func ExpandTemplate(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		text = strings.ReplaceAll(text, "%"+k, vars[k])
	}
	return text
}

// ShowOptions are the optional parts of a Show call.
type ShowOptions struct {
	Instance string
	// Markup is "pango", "none" or empty.
	Markup string
	// Vars are substituted into the text with ExpandTemplate.
	Vars map[string]string
	// Extra holds any other block fields, e.g. color or _vendor keys.
	Extra map[string]any
}

// Sender is the part of Client a Block needs.
type Sender interface {
	ShowBlock(ctx context.Context, fields map[string]any) error
	GetConfig(ctx context.Context, name string) (map[string]any, error)
}

// Block is a generator-side handle for one named block. It skips sends
// that would repeat the last update for the same instance.
type Block struct {
	Name   string
	Config map[string]any

	sender Sender
	mu     sync.Mutex
	last   map[string]map[string]any
}

// NewBlock fetches the block's config section and returns a handle.
func NewBlock(ctx context.Context, sender Sender, name string) (*Block, error) {
	cfg, err := sender.GetConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Block{Name: name, Config: cfg, sender: sender, last: make(map[string]map[string]any)}, nil
}

// Show sends full_text (after template expansion) unless it is identical
// to the previous update for the same instance.
func (b *Block) Show(ctx context.Context, fullText string, opts ShowOptions) error {
	fields := make(map[string]any, len(opts.Extra)+4)
	for k, v := range opts.Extra {
		fields[k] = v
	}
	fields[block.FieldName] = b.Name
	fields[block.FieldFullText] = ExpandTemplate(fullText, opts.Vars)
	if opts.Markup != "" {
		fields[block.FieldMarkup] = opts.Markup
	}
	if opts.Instance != "" {
		fields[block.FieldInstance] = opts.Instance
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if reflect.DeepEqual(b.last[opts.Instance], fields) {
		return nil
	}
	if err := b.sender.ShowBlock(ctx, fields); err != nil {
		return err
	}
	b.last[opts.Instance] = fields
	return nil
}

// Clear removes the block (or one instance of it) from the bar.
func (b *Block) Clear(ctx context.Context, instance string) error {
	fields := map[string]any{
		block.FieldName:     b.Name,
		block.FieldFullText: "",
	}
	if instance != "" {
		fields[block.FieldInstance] = instance
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.sender.ShowBlock(ctx, fields); err != nil {
		return err
	}
	delete(b.last, instance)
	return nil
}
