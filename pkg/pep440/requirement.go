package pep440

import (
	"regexp"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
)

// Requirement is a parsed distro requirement: a name, an optional
// specifier set and an optional environment marker, in the PEP 508 form
// `name[specifier][; marker]`, e.g. `houdini19.5>=19.5.493; platform_system == "Linux"`.
type Requirement struct {
	Name   string
	Specs  Specifiers
	Marker *Marker
}

var reqNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)\s*(.*)$`)

// ParseRequirement parses a requirement string.
func ParseRequirement(s string) (*Requirement, error) {
	spec := strings.TrimSpace(s)
	if spec == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "empty requirement")
	}

	var markerText string
	if i := markerSplit(spec); i >= 0 {
		markerText = strings.TrimSpace(spec[i+1:])
		spec = strings.TrimSpace(spec[:i])
	}

	m := reqNameRE.FindStringSubmatch(spec)
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "invalid requirement %q", s)
	}
	name := m[1]
	rest := strings.TrimSpace(m[2])

	// PEP 508 allows the specifier to be parenthesized.
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	specs, err := ParseSpecifiers(rest)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid requirement %q", s)
	}

	req := &Requirement{Name: name, Specs: specs}
	if markerText != "" {
		marker, err := ParseMarker(markerText)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid requirement %q", s)
		}
		req.Marker = marker
	}
	return req, nil
}

// MustRequirement parses a requirement or panics. For tests only.
func MustRequirement(s string) *Requirement {
	req, err := ParseRequirement(s)
	if err != nil {
		panic(err)
	}
	return req
}

// markerSplit returns the index of the `;` separating requirement from
// marker, skipping semicolons inside quoted strings. Returns -1 if the
// requirement has no marker.
func markerSplit(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return i
		}
	}
	return -1
}

// String returns the canonical requirement form.
func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(r.Specs.String())
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}

// Clone returns a copy of r that can be modified independently.
func (r *Requirement) Clone() *Requirement {
	dup := *r
	return &dup
}

// MergeSpecs narrows r to additionally satisfy the other requirement's
// specifier set.
func (r *Requirement) MergeSpecs(other *Requirement) error {
	merged, err := r.Specs.Merge(other.Specs)
	if err != nil {
		return err
	}
	r.Specs = merged
	return nil
}

// ParseRequirements parses a list of requirement strings, merging
// duplicate names into a single requirement with combined specifiers.
// Order of first appearance is preserved.
func ParseRequirements(specs []string) (*RequirementSet, error) {
	set := NewRequirementSet()
	for _, s := range specs {
		req, err := ParseRequirement(s)
		if err != nil {
			return nil, err
		}
		if err := set.Append(req); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// RequirementSet is an ordered collection of requirements keyed by distro
// name. Appending an existing name merges specifiers instead of adding a
// duplicate entry.
type RequirementSet struct {
	order []string
	byKey map[string]*Requirement
}

// NewRequirementSet returns an empty set.
func NewRequirementSet() *RequirementSet {
	return &RequirementSet{byKey: make(map[string]*Requirement)}
}

// Append adds req to the set, merging specifiers with any existing
// requirement of the same name. The stored requirement is a copy.
func (rs *RequirementSet) Append(req *Requirement) error {
	if existing, ok := rs.byKey[req.Name]; ok {
		return existing.MergeSpecs(req)
	}
	rs.order = append(rs.order, req.Name)
	rs.byKey[req.Name] = req.Clone()
	return nil
}

// Get returns the requirement stored under name.
func (rs *RequirementSet) Get(name string) (*Requirement, bool) {
	req, ok := rs.byKey[name]
	return req, ok
}

// Names returns the distro names in first-appearance order.
func (rs *RequirementSet) Names() []string {
	return append([]string(nil), rs.order...)
}

// All returns the requirements in first-appearance order.
func (rs *RequirementSet) All() []*Requirement {
	reqs := make([]*Requirement, 0, len(rs.order))
	for _, name := range rs.order {
		reqs = append(reqs, rs.byKey[name])
	}
	return reqs
}

// Len returns the number of distinct requirement names.
func (rs *RequirementSet) Len() int { return len(rs.order) }

// Remove deletes the requirement stored under name, if any.
func (rs *RequirementSet) Remove(name string) {
	if _, ok := rs.byKey[name]; !ok {
		return
	}
	delete(rs.byKey, name)
	for i, n := range rs.order {
		if n == name {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of the set.
func (rs *RequirementSet) Clone() *RequirementSet {
	dup := NewRequirementSet()
	for _, name := range rs.order {
		dup.order = append(dup.order, name)
		dup.byKey[name] = rs.byKey[name].Clone()
	}
	return dup
}

// Strings returns the canonical string for every requirement in order.
func (rs *RequirementSet) Strings() []string {
	out := make([]string, 0, len(rs.order))
	for _, name := range rs.order {
		out = append(out, rs.byKey[name].String())
	}
	return out
}
