package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetaKind tags the variant held by a MetaValue.
type MetaKind uint8

const (
	MetaNone MetaKind = iota
	MetaString
	MetaStrings
	MetaNumber
	MetaBool
)

// MetaValue is a metadata entry: a string, a string list, a number or a bool.
// The zero value is an absent value and extracts as "".
type MetaValue struct {
	kind MetaKind
	str  string
	strs []string
	num  float64
	b    bool
}

func String(s string) MetaValue { return MetaValue{kind: MetaString, str: s} }

func Strings(s ...string) MetaValue {
	list := make([]string, len(s))
	copy(list, s)
	return MetaValue{kind: MetaStrings, strs: list}
}

func Number(n float64) MetaValue { return MetaValue{kind: MetaNumber, num: n} }

func Bool(b bool) MetaValue { return MetaValue{kind: MetaBool, b: b} }

func (v MetaValue) Kind() MetaKind { return v.kind }

// List returns the string list for MetaStrings values and nil otherwise.
func (v MetaValue) List() []string {
	if v.kind != MetaStrings {
		return nil
	}
	out := make([]string, len(v.strs))
	copy(out, v.strs)
	return out
}

// Text renders the value the way the field extractor sees it.
func (v MetaValue) Text() string {
	switch v.kind {
	case MetaString:
		return v.str
	case MetaStrings:
		return strings.Join(v.strs, " ")
	case MetaNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case MetaBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

func (v MetaValue) clone() MetaValue {
	if v.kind == MetaStrings {
		return Strings(v.strs...)
	}
	return v
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaString:
		return json.Marshal(v.str)
	case MetaStrings:
		if v.strs == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.strs)
	case MetaNumber:
		return json.Marshal(v.num)
	case MetaBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	switch data[0] {
	case 'n':
		*v = MetaValue{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("metadata list must contain only strings: %w", err)
		}
		*v = MetaValue{kind: MetaStrings, strs: list}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unsupported metadata value %s", data)
	}
	*v = Number(n)
	return nil
}
