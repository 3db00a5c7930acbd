// Package env models environment variable operations and composes them
// into a resolved environment.
//
// Configs and distros describe environment edits as JSON operation
// dictionaries (unset/set/prepend/append), optionally split per platform
// with an os_specific flag and a "*" wildcard section. The Composer
// applies those edits across all contributing sources with a
// first-write-wins rule, and a Formatter resolves the {;} separator
// token and {NAME!e} variable references for a target shell language.
package env

import (
	"encoding/json"
	"sort"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// Value is a JSON value that may be written as a single string or a
// list of strings. Single strings are normalized to a one-element list.
type Value []string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "environment values must be a string or list of strings")
	}
	*v = Value(list)
	return nil
}

// MarshalJSON implements json.Marshaler. Values always serialize as
// lists so round-tripped documents stay canonical.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(v))
}

// Clone returns a copy of the value.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	copy(out, v)
	return out
}

// Operations is one set of environment variable edits for a single
// platform. The zero value applies nothing.
type Operations struct {
	Unset   []string         `json:"unset,omitempty"`
	Set     map[string]Value `json:"set,omitempty"`
	Prepend map[string]Value `json:"prepend,omitempty"`
	Append  map[string]Value `json:"append,omitempty"`
}

// IsZero reports whether the operations apply no edits.
func (o *Operations) IsZero() bool {
	if o == nil {
		return true
	}
	return len(o.Unset) == 0 && len(o.Set) == 0 && len(o.Prepend) == 0 && len(o.Append) == 0
}

// Keys returns the sorted set of variable names touched by any edit.
func (o *Operations) Keys() []string {
	if o == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, key := range o.Unset {
		seen[key] = true
	}
	for _, m := range []map[string]Value{o.Set, o.Prepend, o.Append} {
		for key := range m {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the operations.
func (o *Operations) Clone() *Operations {
	if o == nil {
		return nil
	}
	out := &Operations{}
	if o.Unset != nil {
		out.Unset = append([]string{}, o.Unset...)
	}
	out.Set = cloneValueMap(o.Set)
	out.Prepend = cloneValueMap(o.Prepend)
	out.Append = cloneValueMap(o.Append)
	return out
}

// Validate rejects edits on reserved variables. PATH may only be
// prepended or appended, and the variables hab itself publishes may not
// be touched at all.
func (o *Operations) Validate() error {
	if o == nil {
		return nil
	}
	for _, key := range o.Unset {
		if isPathKey(key) {
			return errors.New(errors.ErrCodeReservedEnvVar, "You can not unset PATH")
		}
		if IsReservedEnvVar(key) {
			return errors.New(errors.ErrCodeReservedEnvVar, "%q is a reserved environment variable", key)
		}
	}
	for key, value := range o.Set {
		if isPathKey(key) {
			return errors.New(errors.ErrCodeReservedEnvVar, "You can not use PATH for the set operation: %q", value)
		}
		if IsReservedEnvVar(key) {
			return errors.New(errors.ErrCodeReservedEnvVar, "%q is a reserved environment variable", key)
		}
	}
	return nil
}

func cloneValueMap(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for key, value := range m {
		out[key] = value.Clone()
	}
	return out
}

// Block is a parsed "environment" JSON block. Without os_specific the
// whole block applies to every platform; with it, top-level keys select
// a platform and "*" applies everywhere.
type Block struct {
	sections map[string]*Operations
}

// ParseBlock parses the raw JSON of an environment block.
func ParseBlock(data []byte) (*Block, error) {
	if len(data) == 0 {
		return &Block{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "environment must be a JSON object")
	}

	osSpecific := false
	if flag, ok := raw["os_specific"]; ok {
		if err := json.Unmarshal(flag, &osSpecific); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "os_specific must be a boolean")
		}
		delete(raw, "os_specific")
	}

	block := &Block{sections: map[string]*Operations{}}
	if !osSpecific {
		// The entire block is a single operation dict shared by all
		// platforms.
		ops, err := parseOperations(data, true)
		if err != nil {
			return nil, err
		}
		block.sections[platform.Wildcard] = ops
		return block, nil
	}

	for name, section := range raw {
		if name != platform.Wildcard && !platform.Known(name) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown platform %q in environment", name)
		}
		ops, err := parseOperations(section, false)
		if err != nil {
			return nil, err
		}
		block.sections[name] = ops
	}
	return block, nil
}

func parseOperations(data []byte, dropOSSpecific bool) (*Operations, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "environment operations must be a JSON object")
	}
	if dropOSSpecific {
		delete(raw, "os_specific")
	}
	ops := &Operations{}
	for name, section := range raw {
		var err error
		switch name {
		case "unset":
			err = json.Unmarshal(section, &ops.Unset)
		case "set":
			err = json.Unmarshal(section, &ops.Set)
		case "prepend":
			err = json.Unmarshal(section, &ops.Prepend)
		case "append":
			err = json.Unmarshal(section, &ops.Append)
		default:
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown environment operation %q", name)
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid %s operation", name)
		}
	}
	return ops, nil
}

// IsZero reports whether the block contains no edits for any platform.
func (b *Block) IsZero() bool {
	if b == nil {
		return true
	}
	for _, ops := range b.sections {
		if !ops.IsZero() {
			return false
		}
	}
	return true
}

// For returns the operations applying to the named platform. Wildcard
// edits are included, with the platform section taking precedence for a
// variable named in both.
func (b *Block) For(name string) *Operations {
	if b == nil {
		return &Operations{}
	}
	wild := b.sections[platform.Wildcard]
	plat := b.sections[name]
	if plat.IsZero() {
		if wild == nil {
			return &Operations{}
		}
		return wild.Clone()
	}
	if wild.IsZero() {
		return plat.Clone()
	}

	merged := wild.Clone()
	for _, key := range plat.Unset {
		if !containsString(merged.Unset, key) {
			merged.Unset = append(merged.Unset, key)
		}
	}
	merged.Set = overlayValueMap(merged.Set, plat.Set)
	merged.Prepend = overlayValueMap(merged.Prepend, plat.Prepend)
	merged.Append = overlayValueMap(merged.Append, plat.Append)
	return merged
}

// Validate checks every platform section for reserved variable misuse.
func (b *Block) Validate() error {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.sections))
	for name := range b.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.sections[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func overlayValueMap(base, over map[string]Value) map[string]Value {
	if len(over) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]Value, len(over))
	}
	for key, value := range over {
		base[key] = value.Clone()
	}
	return base
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
