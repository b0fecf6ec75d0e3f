package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// GeneralSection is the reserved section name.
const GeneralSection = "general"

// DefaultFile is the configuration file name looked up in the home directory.
const DefaultFile = ".i3-dstatus.conf"

var (
	// ErrConfigNotFound is returned when an explicitly named file is missing.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidConfig is returned when a document fails schema validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Section is one decoded mapping: the general section, a block section or
// an instance section.
type Section map[string]any

// Has reports whether key is set in the section.
func (s Section) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Config is a validated configuration document.
type Config struct {
	// Path is the file the config was read from. Empty for defaults.
	Path string

	sections map[string]Section
}

// Empty returns a config with no sections.
func Empty() *Config {
	return &Config{sections: map[string]Section{}}
}

// DefaultPath returns ~/.i3-dstatus.conf.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultFile), nil
}

// Load reads path. When explicit is false a missing file yields an empty
// config; when true it is ErrConfigNotFound.
func Load(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		cfg := Empty()
		cfg.Path = path
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// LoadDefault resolves the default path and loads it if present.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path, false)
}

// Parse decodes and validates a document in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	raw, err := decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}
	raw = normalize(raw)
	if err := validate(raw); err != nil {
		return nil, err
	}

	cfg := Empty()
	for name, v := range raw {
		section, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: section %q is not a mapping", ErrInvalidConfig, name)
		}
		cfg.sections[name] = Section(section)
	}
	return cfg, nil
}

// Section returns the named section or nil.
func (c *Config) Section(name string) Section {
	if c == nil {
		return nil
	}
	return c.sections[name]
}

// SectionNames returns the non-general section names, sorted.
func (c *Config) SectionNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		if name != GeneralSection {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SectionJSON returns the JSON encoding of a block's section, or "{}" if
// there is none.
func (c *Config) SectionJSON(name string) string {
	s := c.Section(name)
	if len(s) == 0 {
		return "{}"
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Layers returns the general, block and instance sections that apply to
// the block identified by name and instance. Missing layers are nil.
func (c *Config) Layers(name, instance string) (general, blockSection, instanceSection Section) {
	general = c.Section(GeneralSection)
	if name == GeneralSection {
		return general, nil, nil
	}
	blockSection = c.Section(name)
	if instance != "" && blockSection != nil {
		if sub, ok := blockSection[instance].(map[string]any); ok {
			instanceSection = Section(sub)
		}
	}
	return general, blockSection, instanceSection
}

// Generators returns general.generators.
func (c *Config) Generators() []string {
	return c.stringList("generators")
}

// Order returns general.order, or nil when unset.
func (c *Config) Order() []string {
	return c.stringList("order")
}

func (c *Config) stringList(key string) []string {
	raw, ok := c.Section(GeneralSection)[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// GeneratorList merges command-line generators with general.generators,
// keeping first occurrence.
func (c *Config) GeneratorList(cli []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{cli, c.Generators()} {
		for _, g := range list {
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// OrderFor returns the ordering key: general.order if set, otherwise the
// generator registration order.
func (c *Config) OrderFor(cli []string) []string {
	if order := c.Order(); order != nil {
		return order
	}
	return c.GeneratorList(cli)
}
