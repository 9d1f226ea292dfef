package graph

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
)

// Values is an estimation store: it maps variable keys to their estimates.
// Keys are kept in insertion order.
type Values struct {
	keys []slam.Key
	vals map[slam.Key]slam.Value
}

// NewValues creates new empty Values and returns it.
func NewValues() *Values {
	return &Values{
		vals: make(map[slam.Key]slam.Value),
	}
}

// Insert adds the estimate v of variable k.
// It returns error wrapping slam.ErrDuplicateVariable if k already has an estimate.
func (v *Values) Insert(k slam.Key, val slam.Value) error {
	if val == nil {
		return fmt.Errorf("nil value for %v", k)
	}

	if _, ok := v.vals[k]; ok {
		return fmt.Errorf("%w: %v", slam.ErrDuplicateVariable, k)
	}
	v.keys = append(v.keys, k)
	v.vals[k] = val

	return nil
}

// Update replaces the estimate of variable k.
// It returns error wrapping slam.ErrUnknownVariable if k has no estimate.
func (v *Values) Update(k slam.Key, val slam.Value) error {
	old, ok := v.vals[k]
	if !ok {
		return fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
	}

	if val == nil || old.Kind() != val.Kind() {
		return fmt.Errorf("invalid value for %v: %v", k, val)
	}
	v.vals[k] = val

	return nil
}

// At returns the estimate of variable k.
// It returns error wrapping slam.ErrUnknownVariable if k has no estimate.
func (v *Values) At(k slam.Key) (slam.Value, error) {
	val, ok := v.vals[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v", slam.ErrUnknownVariable, k)
	}

	return val, nil
}

// Has returns true if variable k has an estimate
func (v *Values) Has(k slam.Key) bool {
	_, ok := v.vals[k]
	return ok
}

// Keys returns variable keys in insertion order
func (v *Values) Keys() []slam.Key {
	keys := make([]slam.Key, len(v.keys))
	copy(keys, v.keys)

	return keys
}

// Len returns the number of estimates
func (v *Values) Len() int {
	return len(v.keys)
}

// Clone returns a copy of v
func (v *Values) Clone() *Values {
	c := &Values{
		keys: make([]slam.Key, len(v.keys)),
		vals: make(map[slam.Key]slam.Value, len(v.vals)),
	}
	copy(c.keys, v.keys)
	for k, val := range v.vals {
		c.vals[k] = val
	}

	return c
}

// Gather returns the estimates of keys ordered as keys.
// It returns error wrapping slam.ErrUnknownVariable if any key has no estimate.
func (v *Values) Gather(keys []slam.Key) ([]slam.Value, error) {
	vals := make([]slam.Value, len(keys))
	for i, k := range keys {
		val, err := v.At(k)
		if err != nil {
			return nil, err
		}
		vals[i] = val
	}

	return vals, nil
}
