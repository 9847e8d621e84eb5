package mapping

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/entitymap/internal/ir"
)

// TransformPair is a named forward/reverse transform, referenced by name
// from mapping files.
type TransformPair struct {
	Forward Transform
	Reverse Transform
}

// Registry resolves transform names used in mapping files.
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]TransformPair
}

// NewRegistry returns a registry holding the built-in transforms:
//
//	negate  numbers are negated both ways
//	upper   strings are upper-cased forward and lower-cased back
//	atoi    decimal strings become int64 forward and strings back
//	unix    times become Unix seconds forward and UTC times back
func NewRegistry() *Registry {
	r := &Registry{pairs: make(map[string]TransformPair)}
	r.pairs["identity"] = TransformPair{Forward: Identity, Reverse: Identity}
	r.pairs["negate"] = TransformPair{Forward: negate, Reverse: negate}
	r.pairs["upper"] = TransformPair{Forward: upper, Reverse: lower}
	r.pairs["atoi"] = TransformPair{Forward: Atoi, Reverse: Itoa}
	r.pairs["unix"] = TransformPair{Forward: toUnix, Reverse: fromUnix}
	return r
}

// Register adds a named pair. Names are unique.
func (r *Registry) Register(name string, pair TransformPair) error {
	if name == "" {
		return fmt.Errorf("transform name is empty")
	}
	if pair.Forward == nil || pair.Reverse == nil {
		return fmt.Errorf("transform %q: forward and reverse are required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pairs[name]; exists {
		return fmt.Errorf("transform %q already registered", name)
	}
	r.pairs[name] = pair
	return nil
}

// Lookup returns the pair registered under name.
func (r *Registry) Lookup(name string) (TransformPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pairs))
	for name := range r.pairs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func negate(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f, ok := v.(float64); ok {
		return -f, nil
	}
	if f, ok := v.(float32); ok {
		return -f, nil
	}
	if n, ok := ir.ToInt64(v); ok {
		return -n, nil
	}
	return nil, fmt.Errorf("negate: expected a number, got %T", v)
}

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

func upper(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("upper: expected a string, got %T", v)
	}
	return upperCaser.String(s), nil
}

func lower(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("lower: expected a string, got %T", v)
	}
	return lowerCaser.String(s), nil
}

// Atoi converts a decimal string id to int64. Integers pass through.
func Atoi(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("atoi: %w", err)
		}
		return n, nil
	}
	if n, ok := ir.ToInt64(v); ok {
		return n, nil
	}
	return nil, fmt.Errorf("atoi: expected a string, got %T", v)
}

// Itoa converts an integer id to its decimal string. Strings pass through.
func Itoa(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	}
	if n, ok := ir.ToInt64(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, fmt.Errorf("itoa: expected an integer, got %T", v)
}

func toUnix(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.Unix(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("unix: %w", err)
		}
		return parsed.Unix(), nil
	}
	return nil, fmt.Errorf("unix: expected a time, got %T", v)
}

func fromUnix(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, ok := ir.ToInt64(v)
	if !ok {
		return nil, fmt.Errorf("unix: expected an integer, got %T", v)
	}
	return time.Unix(n, 0).UTC(), nil
}

// Identity returns v unchanged. Arrays declared without a transform use it.
func Identity(v any) (any, error) {
	return v, nil
}
