package queryir

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/entitymap/internal/ir"
)

// Text form
//
// Conditions and actions are written as single-entry objects whose key is
// the tag prefixed with "$":
//
//	{"age": {"$IsGreaterThan": 4}, "tags": {"$ArrayExists": true}}
//	{"visits": {"$Increment": 1}, "owner": {"$NestedUpdate": {"name": "x"}}}
//
// Existence and Clear tags ignore their payload. Any other object is a raw
// value.

const tagPrefix = "$"

// MarshalJSON encodes c in the "$Tag" form.
func (c Condition) MarshalJSON() ([]byte, error) {
	if !c.kind.Valid() {
		return nil, NewMalformedConditionError(c.kind.String())
	}
	var payload any = true
	if !c.kind.IsExistence() {
		payload = c.value
	}
	return json.Marshal(map[string]any{tagPrefix + c.kind.String(): payload})
}

// MarshalJSON encodes a in the "$Tag" form.
func (a Action) MarshalJSON() ([]byte, error) {
	if !a.kind.Valid() {
		return nil, NewMalformedActionError(a.kind.String())
	}
	var payload any = true
	if !a.kind.IsClear() {
		payload = a.value
	}
	return json.Marshal(map[string]any{tagPrefix + a.kind.String(): payload})
}

// DecodeCriteria converts a decoded JSON or YAML object into a Criteria
// tree, turning "$Tag" objects into validated Conditions.
func DecodeCriteria(raw map[string]any) (Criteria, error) {
	out := make(Criteria, len(raw))
	for _, key := range ir.SortedKeys(raw) {
		v := raw[key]
		tag, payload, ok := taggedValue(v)
		if !ok {
			if ir.IsEmptySlice(v) {
				return nil, fmt.Errorf("%s: %w", key, Equals(v).Validate())
			}
			out[key] = v
			continue
		}

		kind, found := ConditionKindByName(tag)
		if !found {
			return nil, fmt.Errorf("%s: %w", key, NewMalformedConditionError(tag))
		}
		if kind.IsNested() {
			sub, isMap := payload.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%s: %w", key,
					NewInvalidUsageError(tag, "%s requires nested criteria, got %T", tag, payload))
			}
			decoded, err := DecodeCriteria(sub)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			payload = decoded
		}

		c, err := NewCondition(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = c
	}
	return out, nil
}

// DecodeUpdate converts a decoded JSON or YAML object into an Update tree.
func DecodeUpdate(raw map[string]any) (Update, error) {
	out := make(Update, len(raw))
	for _, key := range ir.SortedKeys(raw) {
		v := raw[key]
		tag, payload, ok := taggedValue(v)
		if !ok {
			out[key] = v
			continue
		}

		kind, found := ActionKindByName(tag)
		if !found {
			return nil, fmt.Errorf("%s: %w", key, NewMalformedActionError(tag))
		}
		if kind.IsNested() {
			sub, isMap := payload.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%s: %w", key,
					NewInvalidUsageError(tag, "%s requires a nested update, got %T", tag, payload))
			}
			decoded, err := DecodeUpdate(sub)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			payload = decoded
		}

		a, err := NewAction(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = a
	}
	return out, nil
}

// DecodeSearchOptions reads skip, limit and sortBy from a decoded object.
//
// sortBy is either a list of single-entry objects, which keeps the order:
//
//	sortBy:
//	  - age: desc
//	  - name: asc
//
// or a single object, whose keys are then taken in sorted order.
func DecodeSearchOptions(raw map[string]any) (SearchOptions, error) {
	var opts SearchOptions
	for _, key := range ir.SortedKeys(raw) {
		v := raw[key]
		switch key {
		case "skip", "limit":
			n, ok := ir.ToInt64(v)
			if !ok || n < 0 {
				return SearchOptions{}, fmt.Errorf("%s: expected a non-negative integer, got %v", key, v)
			}
			if key == "skip" {
				opts.Skip = int(n)
			} else {
				opts.Limit = int(n)
			}
		case "sortBy":
			sortBy, err := decodeSortBy(v)
			if err != nil {
				return SearchOptions{}, fmt.Errorf("sortBy: %w", err)
			}
			opts.SortBy = sortBy
		default:
			return SearchOptions{}, fmt.Errorf("unknown search option %q", key)
		}
	}
	return opts, nil
}

func decodeSortBy(v any) ([]SortField, error) {
	if m, ok := v.(map[string]any); ok {
		return sortFields(m)
	}
	list, ok := ir.AsSlice(v)
	if !ok {
		return nil, fmt.Errorf("expected a list or an object, got %T", v)
	}
	var out []SortField
	for i, elem := range list {
		m, ok := elem.(map[string]any)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("[%d]: expected a single-entry object", i)
		}
		fields, err := sortFields(m)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, fields...)
	}
	return out, nil
}

func sortFields(m map[string]any) ([]SortField, error) {
	out := make([]SortField, 0, len(m))
	for _, key := range ir.SortedKeys(m) {
		s, _ := m[key].(string)
		dir, err := ParseSortDirection(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, SortField{Key: key, Direction: dir})
	}
	return out, nil
}

// ParseSortDirection accepts "asc" or "desc" in any case.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(s) {
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// taggedValue reports whether v is a single-entry object keyed by "$Tag".
func taggedValue(v any) (string, any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, false
	}
	for k, payload := range m {
		if strings.HasPrefix(k, tagPrefix) && len(k) > len(tagPrefix) {
			return k[len(tagPrefix):], payload, true
		}
	}
	return "", nil, false
}
