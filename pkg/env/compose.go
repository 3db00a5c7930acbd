package env

import (
	"sort"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// Variables hab publishes about the active resolution. User configs may
// not set or unset them; PATH additionally may only be extended.
const (
	PathVar   = "PATH"
	URIVar    = "HAB_URI"
	FreezeVar = "HAB_FREEZE"
)

// IsReservedEnvVar reports whether name is owned by hab itself.
func IsReservedEnvVar(name string) bool {
	return name == URIVar || name == FreezeVar
}

func isPathKey(name string) bool {
	return strings.EqualFold(name, PathVar)
}

// ownerInherited marks variables seeded from the parent shell rather
// than written by a source. Any source may extend them.
const ownerInherited = -1

type varState struct {
	owner int
	value []string
}

// Composer flattens environment operations from an ordered series of
// sources into final per-variable value lists.
//
// The first source to write a variable owns it. Later sources may only
// prepend or append; a second set or unset is a conflict. PATH is
// seeded with a reference to the shell's inherited value on first touch
// so it is extended rather than replaced.
type Composer struct {
	p      platform.Platform
	source int
	states map[string]*varState
	order  []string
}

// NewComposer returns a composer targeting the given platform.
func NewComposer(p platform.Platform) *Composer {
	return &Composer{p: p, states: map[string]*varState{}}
}

// Platform returns the platform the composer targets.
func (c *Composer) Platform() platform.Platform {
	return c.p
}

// Apply runs one source's operations. Sources must be applied in
// resolution order: the config first, then each selected distro.
func (c *Composer) Apply(ops *Operations) error {
	return c.ApplyFormatted(ops, nil)
}

// ApplyFormatted is Apply with a transform run over every incoming value
// element. The resolver uses it to expand {relative_root} and user
// variables with the defining file's context before composition.
func (c *Composer) ApplyFormatted(ops *Operations, format func(string) (string, error)) error {
	defer func() { c.source++ }()
	if ops.IsZero() {
		return nil
	}
	if err := ops.Validate(); err != nil {
		return err
	}

	// Within one source the operation kinds apply in a fixed order so a
	// set can override the same source's unset and a prepend can extend
	// the same source's set.
	for _, key := range ops.Unset {
		if err := c.applyUnset(key); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(ops.Set) {
		value, err := formatValue(ops.Set[key], format)
		if err != nil {
			return err
		}
		if err := c.applySet(key, value); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(ops.Prepend) {
		value, err := formatValue(ops.Prepend[key], format)
		if err != nil {
			return err
		}
		if err := c.applyJoin(key, value, true); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(ops.Append) {
		value, err := formatValue(ops.Append[key], format)
		if err != nil {
			return err
		}
		if err := c.applyJoin(key, value, false); err != nil {
			return err
		}
	}
	return nil
}

// Put stores a hab-owned variable, bypassing ownership tracking. Used
// for HAB_URI and HAB_FREEZE which user sources can never touch.
func (c *Composer) Put(key string, values ...string) {
	st := c.states[key]
	if st == nil {
		st = &varState{owner: ownerInherited}
		c.states[key] = st
		c.order = append(c.order, key)
	}
	st.value = append([]string{}, values...)
}

// Keys returns variable names in the order they were first written.
func (c *Composer) Keys() []string {
	return append([]string{}, c.order...)
}

// Environment returns the composed variables keyed by name. Unset
// variables yield an empty slice, signalling removal to renderers.
func (c *Composer) Environment() map[string][]string {
	out := make(map[string][]string, len(c.states))
	for key, st := range c.states {
		out[key] = append([]string{}, st.value...)
	}
	return out
}

// Value returns the composed value for one variable and whether any
// source touched it.
func (c *Composer) Value(key string) ([]string, bool) {
	st, ok := c.states[key]
	if !ok {
		return nil, false
	}
	return append([]string{}, st.value...), true
}

func (c *Composer) applyUnset(key string) error {
	st := c.states[key]
	if st == nil {
		c.states[key] = &varState{owner: c.source}
		c.order = append(c.order, key)
		return nil
	}
	if st.owner == c.source {
		st.value = nil
		return nil
	}
	return conflictError(key)
}

func (c *Composer) applySet(key string, value Value) error {
	st := c.states[key]
	if st == nil {
		c.states[key] = &varState{owner: c.source, value: value.Clone()}
		c.order = append(c.order, key)
		return nil
	}
	if st.owner == c.source {
		st.value = value.Clone()
		return nil
	}
	return conflictError(key)
}

func (c *Composer) applyJoin(key string, value Value, before bool) error {
	resolved := c.expand(value)
	st := c.states[key]
	if st == nil {
		if isPathKey(key) {
			// The shell's PATH survives as the seed value.
			st = &varState{owner: ownerInherited, value: []string{PreserveRef(key)}}
		} else {
			c.states[key] = &varState{owner: c.source, value: resolved}
			c.order = append(c.order, key)
			return nil
		}
		c.states[key] = st
		c.order = append(c.order, key)
	}
	if before {
		st.value = append(resolved, st.value...)
	} else {
		st.value = append(st.value, resolved...)
	}
	return nil
}

// expand splits each incoming element on the platform list separator so
// joined values stay one path per element. The {;} token is untouched,
// it contains no literal separator yet.
func (c *Composer) expand(value Value) []string {
	out := make([]string, 0, len(value))
	for _, v := range value {
		out = append(out, platform.ExpandPaths(c.p, v)...)
	}
	return out
}

func conflictError(key string) error {
	return errors.New(errors.ErrCodeInvalidInput, "set/unset after first-write on %s", key)
}

func formatValue(value Value, format func(string) (string, error)) (Value, error) {
	if format == nil {
		return value, nil
	}
	out := make(Value, len(value))
	for i, v := range value {
		formatted, err := format(v)
		if err != nil {
			return nil, err
		}
		out[i] = formatted
	}
	return out, nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
