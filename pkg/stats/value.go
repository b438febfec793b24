package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value holds a stat value, which the narrative model may send either as a
// textual state label ("bruised", "Foundation Realm") or as a bare number.
type Value struct {
	text  string
	num   float64
	isNum bool
	set   bool
}

// Text returns a textual Value.
func Text(s string) Value {
	return Value{text: s, set: true}
}

// Number returns a numeric Value.
func Number(n float64) Value {
	return Value{num: n, isNum: true, set: true}
}

// IsSet reports whether the value was present in its source document.
func (v Value) IsSet() bool {
	return v.set
}

// IsNumber reports whether the value is numeric.
func (v Value) IsNumber() bool {
	return v.isNum
}

// Float returns the numeric value; false if the value is textual.
func (v Value) Float() (float64, bool) {
	return v.num, v.isNum
}

// IsBlank reports whether the value is unset or an empty label.
func (v Value) IsBlank() bool {
	if !v.set {
		return true
	}
	return !v.isNum && strings.TrimSpace(v.text) == ""
}

func (v Value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.text
}

// Equal compares two values by kind and content.
func (v Value) Equal(o Value) bool {
	if v.isNum != o.isNum {
		return false
	}
	if v.isNum {
		return v.num == o.num
	}
	return v.text == o.text
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Text(strconv.FormatBool(b))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("stat value must be a string or number: %w", err)
		}
		*v = Number(n)
	}
	return nil
}
