package block

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Minimal(t *testing.T) {
	b, err := Parse(map[string]any{"name": "clock", "full_text": "12:00"})
	require.NoError(t, err)
	assert.Equal(t, "clock", b.Name)
	assert.Equal(t, "12:00", b.FullText)
	assert.True(t, b.Visible())
	assert.Equal(t, Key{Name: "clock"}, b.Key())
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse(map[string]any{"full_text": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBlock))

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FieldName, fe.Field)
}

func TestParse_HyphenatedKeys(t *testing.T) {
	b, err := Parse(map[string]any{
		"name":                  "disk",
		"min-width":             int32(40),
		"separator-block-width": uint32(9),
	})
	require.NoError(t, err)
	require.NotNil(t, b.MinWidth)
	assert.Equal(t, 40, b.MinWidth.Pixels)
	require.NotNil(t, b.SeparatorBlockWidth)
	assert.Equal(t, 9, *b.SeparatorBlockWidth)
	assert.True(t, b.Has("min-width"))
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		field  string
	}{
		{"unknown field", map[string]any{"name": "a", "background": "#000000"}, "background"},
		{"bad align", map[string]any{"name": "a", "align": "middle"}, FieldAlign},
		{"bad markup", map[string]any{"name": "a", "markup": "html"}, FieldMarkup},
		{"negative width", map[string]any{"name": "a", "separator_block_width": -1}, FieldSeparatorBlockWidth},
		{"fractional width", map[string]any{"name": "a", "min_width": 1.5}, FieldMinWidth},
		{"urgent not bool", map[string]any{"name": "a", "urgent": "yes"}, FieldUrgent},
		{"name not string", map[string]any{"name": 3}, FieldName},
		{"empty vendor key", map[string]any{"name": "a", "_": 1}, "_"},
		{"vendor NaN", map[string]any{"name": "a", "_v": math.NaN()}, "_v"},
		{"vendor Inf", map[string]any{"name": "a", "_v": []any{1, math.Inf(-1)}}, "_v"},
		{"vendor non-string map key", map[string]any{"name": "a", "_v": map[any]any{1: "x"}}, "_v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.fields)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParse_MarkupBool(t *testing.T) {
	b, err := Parse(map[string]any{"name": "a", "markup": true})
	require.NoError(t, err)
	assert.Equal(t, MarkupPango, b.Markup)

	b, err = Parse(map[string]any{"name": "a", "markup": false})
	require.NoError(t, err)
	assert.Equal(t, MarkupNone, b.Markup)
}

func TestParse_MinWidthSample(t *testing.T) {
	b, err := Parse(map[string]any{"name": "a", "min_width": "100%"})
	require.NoError(t, err)
	require.NotNil(t, b.MinWidth)
	assert.Equal(t, "100%", b.MinWidth.Sample)
}

func TestParse_NFC(t *testing.T) {
	decomposed := "e\u0301te\u0301"
	b, err := Parse(map[string]any{"name": "w", "full_text": decomposed})
	require.NoError(t, err)
	assert.Equal(t, "\u00e9t\u00e9", b.FullText)
}

func TestMarshalJSON_FieldOrder(t *testing.T) {
	b, err := Parse(map[string]any{
		"markup":    "pango",
		"_vendor":   "v",
		"color":     "#ff0000",
		"full_text": "<b>hi</b>",
		"name":      "x",
		"instance":  "1",
		"urgent":    true,
	})
	require.NoError(t, err)

	data, err := b.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"x","instance":"1","full_text":"<b>hi</b>","color":"#ff0000","urgent":true,"markup":"pango","_vendor":"v"}`,
		string(data))
}

func TestMarshalList(t *testing.T) {
	a, _ := Parse(map[string]any{"name": "a", "full_text": "A"})
	b, _ := Parse(map[string]any{"name": "b", "full_text": "Ü", "min_width": "xx"})

	data, err := MarshalList([]Block{a, b})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"a","full_text":"A"},{"name":"b","full_text":"Ü","min_width":"xx"}]`, string(data))

	data, err = MarshalList(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEqualAndClone(t *testing.T) {
	a, err := Parse(map[string]any{"name": "a", "full_text": "A", "separator": false, "_x": 1})
	require.NoError(t, err)
	c := a.Clone()
	assert.True(t, a.Equal(c))

	*c.Separator = true
	c.Vendor["_x"] = 2
	assert.False(t, a.Equal(c))
	assert.False(t, *a.Separator)
	assert.Equal(t, 1, a.Vendor["_x"])

	empty := Block{Name: "a", Vendor: map[string]any{}}
	assert.True(t, empty.Equal(Block{Name: "a"}))
}

func TestSet_NilClears(t *testing.T) {
	b, err := Parse(map[string]any{"name": "a", "color": "#fff", "_k": "v"})
	require.NoError(t, err)
	require.NoError(t, b.Set("color", nil))
	require.NoError(t, b.Set("_k", nil))
	assert.False(t, b.Has(FieldColor))
	assert.False(t, b.Has("_k"))
}
