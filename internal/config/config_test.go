package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
general:
  generators: [clock, disk]
  color: "#cccccc"
  separator-block-width: 12
clock:
  color: "#ffffff"
  format: "%H:%M"
disk:
  min-width: 80
  /home:
    color: "#ff0000"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "conf.yaml", yamlDoc), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"clock", "disk"}, cfg.Generators())
	assert.Nil(t, cfg.Order())
	assert.Equal(t, []string{"clock", "disk"}, cfg.SectionNames())

	general := cfg.Section(GeneralSection)
	assert.True(t, general.Has("separator_block_width"))
	assert.False(t, general.Has("separator-block-width"))

	g, b, i := cfg.Layers("disk", "/home")
	assert.Equal(t, "#cccccc", g["color"])
	assert.Equal(t, 80, b["min_width"])
	assert.Equal(t, "#ff0000", i["color"])
}

func TestLoad_TOML(t *testing.T) {
	doc := `
[general]
order = ["disk", "clock"]
align = "center"

[disk]
min-width = 40

[disk."/home"]
separator = false
`
	cfg, err := Load(writeFile(t, "conf.toml", doc), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk", "clock"}, cfg.Order())

	_, b, i := cfg.Layers("disk", "/home")
	assert.Equal(t, int64(40), b["min_width"])
	assert.Equal(t, false, i["separator"])
}

func TestLoad_JSONC(t *testing.T) {
	doc := `{
  // trailing comments and commas are fine
  "general": {"generators": ["clock"], "separator_block_width": 9,},
  "clock": {"color": "#00ff00"},
}`
	cfg, err := Load(writeFile(t, "conf.jsonc", doc), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"clock"}, cfg.Generators())
	assert.Equal(t, int64(9), cfg.Section(GeneralSection)["separator_block_width"])
	assert.Equal(t, `{"color":"#00ff00"}`, cfg.SectionJSON("clock"))
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.conf")

	_, err := Load(path, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Empty(t, cfg.SectionNames())
	assert.Equal(t, "{}", cfg.SectionJSON("clock"))
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "{}", cfg.SectionJSON("anything"))
	assert.Nil(t, cfg.Generators())
}

func TestParse_NullSection(t *testing.T) {
	cfg, err := Parse([]byte("clock:\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "{}", cfg.SectionJSON("clock"))
}

func TestParse_SchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad align", "clock:\n  align: middle\n"},
		{"negative width", "general:\n  separator_block_width: -3\n"},
		{"separator not bool", "disk:\n  separator: maybe\n"},
		{"generators not list", "general:\n  generators: clock\n"},
		{"section not mapping", "clock: 3\n"},
		{"color not string", "clock:\n  color: 12\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse([]byte("general: [unterminated"), FormatYAML)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestParse_UnderscoredWinsOverHyphenated(t *testing.T) {
	cfg, err := Parse([]byte("clock:\n  min-width: 10\n  min_width: 20\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Section("clock")["min_width"])
	assert.False(t, cfg.Section("clock").Has("min-width"))
}

func TestLayers_GeneralIsNotABlockSection(t *testing.T) {
	cfg, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	g, b, i := cfg.Layers(GeneralSection, "")
	assert.NotNil(t, g)
	assert.Nil(t, b)
	assert.Nil(t, i)
}

func TestLayers_InstanceMustBeMapping(t *testing.T) {
	cfg, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	_, _, i := cfg.Layers("clock", "format")
	assert.Nil(t, i)
}

func TestParse_NumericInstanceKey(t *testing.T) {
	cfg, err := Parse([]byte("cpu:\n  color: \"#ffffff\"\n  0:\n    color: \"#ff0000\"\n    min-width: 40\n"), FormatYAML)
	require.NoError(t, err)

	_, b, i := cfg.Layers("cpu", "0")
	assert.Equal(t, "#ffffff", b["color"])
	require.NotNil(t, i)
	assert.Equal(t, "#ff0000", i["color"])
	assert.Equal(t, 40, i["min_width"])
}

func TestGeneratorListAndOrder(t *testing.T) {
	cfg, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "clock", "disk"}, cfg.GeneratorList([]string{"date", "clock"}))
	assert.Equal(t, []string{"date", "clock", "disk"}, cfg.OrderFor([]string{"date"}))

	ordered, err := Parse([]byte("general:\n  order: [disk]\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk"}, ordered.OrderFor([]string{"clock"}))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatFor("a.TOML"))
	assert.Equal(t, FormatJSON, FormatFor("a.json"))
	assert.Equal(t, FormatJSON, FormatFor("a.jsonc"))
	assert.Equal(t, FormatYAML, FormatFor("/home/u/.i3-dstatus.conf"))
}

func TestNilConfig(t *testing.T) {
	var cfg *Config
	assert.Equal(t, "{}", cfg.SectionJSON("x"))
	assert.Nil(t, cfg.Order())
}
