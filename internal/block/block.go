package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Wire field names.
const (
	FieldName                = "name"
	FieldInstance            = "instance"
	FieldFullText            = "full_text"
	FieldShortText           = "short_text"
	FieldColor               = "color"
	FieldMinWidth            = "min_width"
	FieldAlign               = "align"
	FieldUrgent              = "urgent"
	FieldSeparator           = "separator"
	FieldSeparatorBlockWidth = "separator_block_width"
	FieldMarkup              = "markup"
)

// VendorPrefix marks a vendor extension key.
const VendorPrefix = "_"

// OverrideKeys are the fields configuration may supply when a block does
// not set them itself.
var OverrideKeys = []string{
	FieldColor,
	FieldMinWidth,
	FieldAlign,
	FieldSeparator,
	FieldSeparatorBlockWidth,
}

// Key identifies a slot on the bar.
type Key struct {
	Name     string
	Instance string
}

func (k Key) String() string {
	if k.Instance == "" {
		return k.Name
	}
	return k.Name + "/" + k.Instance
}

// MinWidth is either a pixel count or a sample string whose rendered width
// is used as the minimum.
type MinWidth struct {
	Pixels int
	Sample string
}

// Block is one status fragment. Optional attributes are pointers or empty
// strings when unset so that "not present" is distinguishable from a zero
// value.
type Block struct {
	Name                string
	Instance            string
	FullText            string
	ShortText           string
	Color               string
	MinWidth            *MinWidth
	Align               string
	Urgent              *bool
	Separator           *bool
	SeparatorBlockWidth *int
	Markup              string
	Vendor              map[string]any
}

// Parse builds a Block from a field mapping. Keys are applied in sorted
// order so the reported error is deterministic. The result is only
// returned when every field is valid and name is set.
func Parse(fields map[string]any) (Block, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b Block
	for _, k := range keys {
		if err := b.Set(k, fields[k]); err != nil {
			return Block{}, err
		}
	}
	if b.Name == "" {
		return Block{}, &FieldError{Field: FieldName, Reason: "required"}
	}
	return b, nil
}

// NormalizeKey maps a hyphenated field name to its underscored form.
// Vendor keys are returned unchanged.
func NormalizeKey(key string) string {
	if strings.HasPrefix(key, VendorPrefix) {
		return key
	}
	return strings.ReplaceAll(key, "-", "_")
}

// Set validates value for key and stores it. A nil value clears the field.
func (b *Block) Set(key string, value any) error {
	key = NormalizeKey(key)
	if strings.HasPrefix(key, VendorPrefix) {
		if len(key) == len(VendorPrefix) {
			return &FieldError{Field: key, Reason: "empty vendor key"}
		}
		if value == nil {
			delete(b.Vendor, key)
			return nil
		}
		// Stored values are encoded on every emit, so anything the encoder
		// rejects (NaN, Inf, non-string map keys) is refused here.
		if err := writeJSON(&bytes.Buffer{}, value); err != nil {
			return &FieldError{Field: key, Reason: fmt.Sprintf("value cannot be encoded: %v", err)}
		}
		if b.Vendor == nil {
			b.Vendor = make(map[string]any)
		}
		b.Vendor[key] = value
		return nil
	}

	set, ok := setters[key]
	if !ok {
		return &FieldError{Field: key, Reason: "unknown field"}
	}
	return set(b, value)
}

// Has reports whether key is present on the block.
func (b Block) Has(key string) bool {
	switch NormalizeKey(key) {
	case FieldName:
		return b.Name != ""
	case FieldInstance:
		return b.Instance != ""
	case FieldFullText:
		return b.FullText != ""
	case FieldShortText:
		return b.ShortText != ""
	case FieldColor:
		return b.Color != ""
	case FieldMinWidth:
		return b.MinWidth != nil
	case FieldAlign:
		return b.Align != ""
	case FieldUrgent:
		return b.Urgent != nil
	case FieldSeparator:
		return b.Separator != nil
	case FieldSeparatorBlockWidth:
		return b.SeparatorBlockWidth != nil
	case FieldMarkup:
		return b.Markup != ""
	default:
		_, ok := b.Vendor[key]
		return ok
	}
}

// Key returns the block's identity.
func (b Block) Key() Key {
	return Key{Name: b.Name, Instance: b.Instance}
}

// Visible reports whether the block is eligible for display.
func (b Block) Visible() bool {
	return b.FullText != ""
}

// Equal reports structural equality.
func (b Block) Equal(other Block) bool {
	return reflect.DeepEqual(b.normalized(), other.normalized())
}

// Clone returns a deep copy. Vendor values are copied one level deep.
func (b Block) Clone() Block {
	out := b
	if b.MinWidth != nil {
		mw := *b.MinWidth
		out.MinWidth = &mw
	}
	if b.Urgent != nil {
		v := *b.Urgent
		out.Urgent = &v
	}
	if b.Separator != nil {
		v := *b.Separator
		out.Separator = &v
	}
	if b.SeparatorBlockWidth != nil {
		v := *b.SeparatorBlockWidth
		out.SeparatorBlockWidth = &v
	}
	if b.Vendor != nil {
		out.Vendor = make(map[string]any, len(b.Vendor))
		for k, v := range b.Vendor {
			out.Vendor[k] = v
		}
	}
	return out
}

// normalized treats an empty vendor map like a nil one.
func (b Block) normalized() Block {
	if len(b.Vendor) == 0 {
		b.Vendor = nil
	}
	return b
}

// MarshalJSON writes a flat object with the standard fields in protocol
// order followed by vendor keys in sorted order. Unset fields are omitted.
// HTML characters are not escaped so pango markup stays readable.
func (b Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(name string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeJSON(&buf, name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, value); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		return nil
	}

	type entry struct {
		name  string
		set   bool
		value func() any
	}
	entries := []entry{
		{FieldName, b.Name != "", func() any { return b.Name }},
		{FieldInstance, b.Instance != "", func() any { return b.Instance }},
		{FieldFullText, b.FullText != "", func() any { return b.FullText }},
		{FieldShortText, b.ShortText != "", func() any { return b.ShortText }},
		{FieldColor, b.Color != "", func() any { return b.Color }},
		{FieldMinWidth, b.MinWidth != nil, func() any { return b.MinWidth.value() }},
		{FieldAlign, b.Align != "", func() any { return b.Align }},
		{FieldUrgent, b.Urgent != nil, func() any { return *b.Urgent }},
		{FieldSeparator, b.Separator != nil, func() any { return *b.Separator }},
		{FieldSeparatorBlockWidth, b.SeparatorBlockWidth != nil, func() any { return *b.SeparatorBlockWidth }},
		{FieldMarkup, b.Markup != "", func() any { return b.Markup }},
	}
	for _, e := range entries {
		if !e.set {
			continue
		}
		if err := field(e.name, e.value()); err != nil {
			return nil, err
		}
	}

	vendorKeys := make([]string, 0, len(b.Vendor))
	for k := range b.Vendor {
		vendorKeys = append(vendorKeys, k)
	}
	sort.Strings(vendorKeys)
	for _, k := range vendorKeys {
		if err := field(k, b.Vendor[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *MinWidth) value() any {
	if m.Sample != "" {
		return m.Sample
	}
	return m.Pixels
}

// writeJSON encodes v without HTML escaping and without the trailing
// newline json.Encoder adds.
func writeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// MarshalList encodes blocks as a JSON array using the same rules as
// MarshalJSON.
func MarshalList(blocks []Block) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range blocks {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := b.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.Key(), err)
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
