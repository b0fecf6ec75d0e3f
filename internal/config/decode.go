package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dstatus/internal/block"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the syntax from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatYAML
	}
}

func decode(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	return raw, nil
}

// hyphenated maps the accepted hyphenated spellings of override keys to
// their canonical names.
var hyphenated = func() map[string]string {
	m := make(map[string]string)
	for _, k := range block.OverrideKeys {
		if h := strings.ReplaceAll(k, "_", "-"); h != k {
			m[h] = k
		}
	}
	return m
}()

// normalize rewrites hyphenated override keys in every section and
// instance sub-section, turns integral floats into int64 and replaces
// empty (null) sections with empty mappings. Non-string mapping keys, as
// yaml.v3 produces for `0:` instance sections, become their string form.
func normalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for name, v := range raw {
		v = stringKeys(v)
		if v == nil {
			out[name] = map[string]any{}
			continue
		}
		section, ok := v.(map[string]any)
		if !ok {
			out[name] = normalizeValue(v)
			continue
		}
		out[name] = normalizeSection(section, name != GeneralSection)
	}
	return out
}

func normalizeSection(section map[string]any, nested bool) map[string]any {
	out := make(map[string]any, len(section))
	for k, v := range section {
		if canonical, ok := hyphenated[k]; ok {
			if _, dup := section[canonical]; dup {
				continue
			}
			k = canonical
		}
		if sub, ok := v.(map[string]any); ok && nested {
			out[k] = normalizeSection(sub, false)
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) && math.Abs(val) < math.MaxInt64 {
			return int64(val)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// stringKeys converts every map[any]any inside v to map[string]any.
func stringKeys(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = stringKeys(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = stringKeys(e)
		}
		return out
	default:
		return v
	}
}
