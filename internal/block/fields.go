package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidBlock is wrapped by every validation failure.
var ErrInvalidBlock = errors.New("invalid block")

// FieldError reports which field was rejected and why.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid block: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidBlock
}

// Alignment values accepted by the bar.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// Markup values accepted by the bar.
const (
	MarkupPango = "pango"
	MarkupNone  = "none"
)

type setter func(b *Block, value any) error

var setters = map[string]setter{
	FieldName:                setName,
	FieldInstance:            textSetter(FieldInstance, func(b *Block) *string { return &b.Instance }),
	FieldFullText:            textSetter(FieldFullText, func(b *Block) *string { return &b.FullText }),
	FieldShortText:           textSetter(FieldShortText, func(b *Block) *string { return &b.ShortText }),
	FieldColor:               setColor,
	FieldMinWidth:            setMinWidth,
	FieldAlign:               setAlign,
	FieldUrgent:              boolSetter(FieldUrgent, func(b *Block) **bool { return &b.Urgent }),
	FieldSeparator:           boolSetter(FieldSeparator, func(b *Block) **bool { return &b.Separator }),
	FieldSeparatorBlockWidth: setSeparatorBlockWidth,
	FieldMarkup:              setMarkup,
}

func setName(b *Block, value any) error {
	s, ok := value.(string)
	if !ok {
		return typeError(FieldName, "string", value)
	}
	s = norm.NFC.String(s)
	if s == "" {
		return &FieldError{Field: FieldName, Reason: "must not be empty"}
	}
	b.Name = s
	return nil
}

func textSetter(field string, target func(*Block) *string) setter {
	return func(b *Block, value any) error {
		if value == nil {
			*target(b) = ""
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return typeError(field, "string", value)
		}
		*target(b) = norm.NFC.String(s)
		return nil
	}
}

func boolSetter(field string, target func(*Block) **bool) setter {
	return func(b *Block, value any) error {
		if value == nil {
			*target(b) = nil
			return nil
		}
		v, ok := value.(bool)
		if !ok {
			return typeError(field, "bool", value)
		}
		*target(b) = &v
		return nil
	}
}

func setColor(b *Block, value any) error {
	if value == nil {
		b.Color = ""
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return typeError(FieldColor, "string", value)
	}
	b.Color = s
	return nil
}

func setMinWidth(b *Block, value any) error {
	if value == nil {
		b.MinWidth = nil
		return nil
	}
	if s, ok := value.(string); ok {
		if s == "" {
			return &FieldError{Field: FieldMinWidth, Reason: "sample text must not be empty"}
		}
		b.MinWidth = &MinWidth{Sample: norm.NFC.String(s)}
		return nil
	}
	n, ok := asInt(value)
	if !ok {
		return typeError(FieldMinWidth, "integer or string", value)
	}
	if n < 0 {
		return &FieldError{Field: FieldMinWidth, Reason: fmt.Sprintf("must not be negative, got %d", n)}
	}
	b.MinWidth = &MinWidth{Pixels: n}
	return nil
}

func setAlign(b *Block, value any) error {
	if value == nil {
		b.Align = ""
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return typeError(FieldAlign, "string", value)
	}
	switch s {
	case AlignLeft, AlignCenter, AlignRight:
		b.Align = s
		return nil
	default:
		return &FieldError{Field: FieldAlign, Reason: fmt.Sprintf("must be left, center or right, got %q", s)}
	}
}

func setSeparatorBlockWidth(b *Block, value any) error {
	if value == nil {
		b.SeparatorBlockWidth = nil
		return nil
	}
	n, ok := asInt(value)
	if !ok {
		return typeError(FieldSeparatorBlockWidth, "integer", value)
	}
	if n < 0 {
		return &FieldError{Field: FieldSeparatorBlockWidth, Reason: fmt.Sprintf("must not be negative, got %d", n)}
	}
	b.SeparatorBlockWidth = &n
	return nil
}

// setMarkup also accepts a bool: true selects pango, false selects none.
func setMarkup(b *Block, value any) error {
	switch v := value.(type) {
	case nil:
		b.Markup = ""
		return nil
	case bool:
		if v {
			b.Markup = MarkupPango
		} else {
			b.Markup = MarkupNone
		}
		return nil
	case string:
		switch v {
		case MarkupPango, MarkupNone:
			b.Markup = v
			return nil
		}
		return &FieldError{Field: FieldMarkup, Reason: fmt.Sprintf("must be pango or none, got %q", v)}
	default:
		return typeError(FieldMarkup, "string", value)
	}
}

func typeError(field, want string, got any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}

// asInt accepts every integer type a transport or decoder may produce,
// plus integral floats from JSON.
func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint:
		if uint64(v) > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case float32:
		f := float64(v)
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
