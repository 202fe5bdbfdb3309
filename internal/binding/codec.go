package binding

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind selects how a binding's value is represented.
type Kind string

const (
	KindToggle Kind = "toggle"
	KindList   Kind = "list"
)

// ParseKind maps a manifest string to a Kind. Empty means toggle.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindToggle:
		return KindToggle, nil
	case KindList:
		return KindList, nil
	}
	return "", fmt.Errorf("unknown binding kind %q", s)
}

// Value is the abstract state of a setting: a toggle's checked state or a
// list's selected option.
type Value struct {
	Checked bool
	Option  string
	isList  bool
}

// Toggle returns a toggle value.
func Toggle(checked bool) Value { return Value{Checked: checked} }

// Option returns a list value.
func Option(opt string) Value { return Value{Option: opt, isList: true} }

func (v Value) String() string {
	if v.isList {
		return v.Option
	}
	return strconv.FormatBool(v.Checked)
}

// DecodeMode controls how a toggle is recognised when reading a file back.
type DecodeMode string

const (
	// DecodeExact treats the file as checked only when its first line equals
	// the checked encoding.
	DecodeExact DecodeMode = "exact"
	// DecodeContains treats the file as checked when its first line contains
	// the checked encoding, e.g. "[enabled] disabled".
	DecodeContains DecodeMode = "contains"
)

// ParseDecodeMode maps a manifest string to a DecodeMode. Empty means exact.
func ParseDecodeMode(s string) (DecodeMode, error) {
	switch DecodeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DecodeExact:
		return DecodeExact, nil
	case DecodeContains:
		return DecodeContains, nil
	}
	return "", fmt.Errorf("unknown decode mode %q", s)
}

const (
	DefaultValueChecked    = "1"
	DefaultValueNotChecked = "0"
)

// Codec converts between abstract values and raw file text.
type Codec interface {
	Encode(v Value) string
	// Decode returns false when raw carries no usable value.
	Decode(raw string) (Value, bool)
}

// BoolCodec encodes toggles with configurable checked/unchecked strings.
type BoolCodec struct {
	Checked    string
	NotChecked string
	Mode       DecodeMode
}

// NewBoolCodec applies the "1"/"0" defaults for empty encodings.
func NewBoolCodec(checked, notChecked string, mode DecodeMode) BoolCodec {
	if checked == "" {
		checked = DefaultValueChecked
	}
	if notChecked == "" {
		notChecked = DefaultValueNotChecked
	}
	if mode == "" {
		mode = DecodeExact
	}
	return BoolCodec{Checked: checked, NotChecked: notChecked, Mode: mode}
}

func (c BoolCodec) Encode(v Value) string {
	if v.Checked {
		return c.Checked
	}
	return c.NotChecked
}

func (c BoolCodec) Decode(raw string) (Value, bool) {
	line := firstLine(raw)
	if c.Mode == DecodeContains {
		return Toggle(strings.Contains(line, c.Checked)), true
	}
	return Toggle(line == c.Checked), true
}

// ListCodec passes options through untouched.
type ListCodec struct{}

func (ListCodec) Encode(v Value) string { return v.Option }

func (ListCodec) Decode(raw string) (Value, bool) {
	line := firstLine(raw)
	if line == "" {
		return Value{}, false
	}
	return Option(line), true
}

func firstLine(raw string) string {
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "\r")
}

// ParseToggle accepts the usual spellings of a boolean plus on/off.
func ParseToggle(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "enabled":
		return true, nil
	case "off", "no", "disabled":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
