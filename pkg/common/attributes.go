package common

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Well known attribute keys with typed storage.
const (
	AttrAmount        = "amount"
	AttrCurrency      = "currency"
	AttrUnit          = "unit"
	AttrEffectiveDate = "effective_date"
	AttrDeadline      = "deadline"
	AttrMandatory     = "mandatory"
)

// Attributes is an open record of entity properties. Common properties have
// typed fields; anything else lands in Extra. On the wire it is one flat
// JSON object.
type Attributes struct {
	Amount        *float64
	Currency      string
	Unit          string
	EffectiveDate string
	Deadline      string
	Mandatory     *bool
	Extra         map[string]any
}

// Keys returns all present keys, sorted.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, 6+len(a.Extra))
	if a.Amount != nil {
		keys = append(keys, AttrAmount)
	}
	if a.Currency != "" {
		keys = append(keys, AttrCurrency)
	}
	if a.Unit != "" {
		keys = append(keys, AttrUnit)
	}
	if a.EffectiveDate != "" {
		keys = append(keys, AttrEffectiveDate)
	}
	if a.Deadline != "" {
		keys = append(keys, AttrDeadline)
	}
	if a.Mandatory != nil {
		keys = append(keys, AttrMandatory)
	}
	for k := range a.Extra {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func (a Attributes) Len() int {
	return len(a.Keys())
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	switch key {
	case AttrAmount:
		if a.Amount != nil {
			return *a.Amount, true
		}
	case AttrCurrency:
		if a.Currency != "" {
			return a.Currency, true
		}
	case AttrUnit:
		if a.Unit != "" {
			return a.Unit, true
		}
	case AttrEffectiveDate:
		if a.EffectiveDate != "" {
			return a.EffectiveDate, true
		}
	case AttrDeadline:
		if a.Deadline != "" {
			return a.Deadline, true
		}
	case AttrMandatory:
		if a.Mandatory != nil {
			return *a.Mandatory, true
		}
	}
	v, ok := a.Extra[key]
	return v, ok
}

// Set stores value under key. Values for typed keys that cannot be coerced
// are kept verbatim in Extra and replace any typed value. A nil value is
// ignored.
func (a *Attributes) Set(key string, value any) {
	if value == nil {
		return
	}
	switch key {
	case AttrAmount:
		if f, ok := toFloat(value); ok {
			a.Amount = &f
			delete(a.Extra, key)
			return
		}
	case AttrMandatory:
		if b, ok := toBool(value); ok {
			a.Mandatory = &b
			delete(a.Extra, key)
			return
		}
	case AttrCurrency, AttrUnit, AttrEffectiveDate, AttrDeadline:
		if s, ok := value.(string); ok {
			if s == "" {
				return
			}
			switch key {
			case AttrCurrency:
				a.Currency = s
			case AttrUnit:
				a.Unit = s
			case AttrEffectiveDate:
				a.EffectiveDate = s
			case AttrDeadline:
				a.Deadline = s
			}
			delete(a.Extra, key)
			return
		}
	}
	a.clearTyped(key)
	if a.Extra == nil {
		a.Extra = make(map[string]any)
	}
	a.Extra[key] = value
}

func (a *Attributes) clearTyped(key string) {
	switch key {
	case AttrAmount:
		a.Amount = nil
	case AttrMandatory:
		a.Mandatory = nil
	case AttrCurrency:
		a.Currency = ""
	case AttrUnit:
		a.Unit = ""
	case AttrEffectiveDate:
		a.EffectiveDate = ""
	case AttrDeadline:
		a.Deadline = ""
	}
}

// Map flattens the record into a plain map.
func (a Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.Extra)+6)
	maps.Copy(out, a.Extra)
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		out[k] = v
	}
	return out
}

// Clone returns a deep enough copy for merging: pointers and the Extra map
// are not shared.
func (a Attributes) Clone() Attributes {
	var out Attributes
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		out.Set(k, v)
	}
	return out
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Attributes{}
	for k, v := range raw {
		a.Set(k, v)
	}
	return nil
}

// FormatValue renders an attribute value for display and comparison.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimLeft(s, "$€£")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "required", "mandatory":
			return true, true
		case "false", "no", "optional":
			return false, true
		}
	}
	return false, false
}
