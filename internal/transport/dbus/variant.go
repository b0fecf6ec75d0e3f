package dbus

import (
	"github.com/godbus/dbus/v5"
)

// FromVariants unwraps an a{sv} argument into plain Go values. Nested
// variants are unwrapped recursively; integer widths are kept as sent and
// left to the block validators.
func FromVariants(in map[string]dbus.Variant) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = unwrap(v.Value())
	}
	return out
}

func unwrap(v any) any {
	switch val := v.(type) {
	case dbus.Variant:
		return unwrap(val.Value())
	case map[string]dbus.Variant:
		return FromVariants(val)
	case []dbus.Variant:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = unwrap(e.Value())
		}
		return out
	case byte:
		return int(val)
	default:
		return v
	}
}

// ToVariants wraps plain values for an a{sv} argument.
func ToVariants(in map[string]any) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(in))
	for k, v := range in {
		out[k] = dbus.MakeVariant(v)
	}
	return out
}
