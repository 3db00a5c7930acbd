// Package pep440 wraps PEP 440 version handling for hab distros.
//
// Distro versions and requirement specifiers follow the Python packaging
// conventions (PEP 440 versions and specifier sets, PEP 508 requirement
// strings with environment markers). Parsing and ordering are delegated
// to github.com/aquasecurity/go-pep440-version; this package adds the
// requirement string model and a marker evaluator, neither of which that
// library provides.
package pep440

import (
	"regexp"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/talusfx/hab/pkg/errors"
)

// Version is a parsed PEP 440 version. The original string is preserved
// so directory names like "19.5" round-trip exactly.
type Version struct {
	raw string
	v   pep440.Version
}

// ParseVersion parses a PEP 440 version string.
func ParseVersion(s string) (Version, error) {
	v, err := pep440.Parse(s)
	if err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid version %q", s)
	}
	return Version{raw: s, v: v}, nil
}

// MustVersion parses a version or panics. For tests and fixtures only.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v Version) String() string { return v.raw }

// IsZero reports whether v is the zero Version (never parsed).
func (v Version) IsZero() bool { return v.raw == "" }

// Compare returns -1, 0 or 1 ordering v against o per PEP 440.
func (v Version) Compare(o Version) int { return v.v.Compare(o.v) }

// LessThan reports whether v sorts before o.
func (v Version) LessThan(o Version) bool { return v.v.LessThan(o.v) }

// Equal reports PEP 440 equality ("2.0" equals "2.0.0").
func (v Version) Equal(o Version) bool { return v.v.Equal(o.v) }

// versionKeyRE splits an already-validated version into the components
// Key needs: epoch, release, pre-cycle, post, dev and local parts.
var versionKeyRE = regexp.MustCompile(`(?i)^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d*))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// Key returns a canonical form shared by all PEP 440 equal spellings,
// so "2.0" and "2.0.0" land on the same map key.
func (v Version) Key() string {
	s := strings.ToLower(strings.TrimSpace(v.raw))
	m := versionKeyRE.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	epoch, release := m[1], m[2]
	pre, preN := m[3], m[4]
	postImplicit, postWord, postN := m[5], m[6], m[7]
	devWord, devN := m[8], m[9]
	local := m[10]

	parts := strings.Split(release, ".")
	for i, p := range parts {
		parts[i] = trimZeros(p)
	}
	for len(parts) > 1 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}

	var b strings.Builder
	if epoch != "" && trimZeros(epoch) != "0" {
		b.WriteString(trimZeros(epoch))
		b.WriteByte('!')
	}
	b.WriteString(strings.Join(parts, "."))
	if pre != "" {
		switch pre {
		case "alpha":
			pre = "a"
		case "beta":
			pre = "b"
		case "c", "pre", "preview":
			pre = "rc"
		}
		b.WriteString(pre)
		b.WriteString(trimZeros(preN))
	}
	if postImplicit != "" {
		b.WriteString(".post")
		b.WriteString(trimZeros(postImplicit))
	} else if postWord != "" {
		b.WriteString(".post")
		b.WriteString(trimZeros(postN))
	}
	if devWord != "" {
		b.WriteString(".dev")
		b.WriteString(trimZeros(devN))
	}
	if local != "" {
		segs := strings.FieldsFunc(local, func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		})
		for i, seg := range segs {
			if isDigits(seg) {
				segs[i] = trimZeros(seg)
			}
		}
		b.WriteByte('+')
		b.WriteString(strings.Join(segs, "."))
	}
	return b.String()
}

func trimZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// versionStructureRE mirrors the PEP 440 grammar closely enough to pick
// out the pre-release and dev segments of an already-validated version.
var versionStructureRE = regexp.MustCompile(`(?i)^v?(?:\d+!)?\d+(?:\.\d+)*` +
	`([-_.]?(?:a|b|c|rc|alpha|beta|pre|preview)[-_.]?\d*)?` +
	`(?:-\d+|[-_.]?(?:post|rev|r)[-_.]?\d*)?` +
	`([-_.]?dev[-_.]?\d*)?` +
	`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?$`)

// IsPreRelease reports whether v carries a pre-release or dev segment.
// Post releases and local version labels are not pre-releases.
func (v Version) IsPreRelease() bool {
	m := versionStructureRE.FindStringSubmatch(strings.TrimSpace(v.raw))
	if m == nil {
		return false
	}
	return m[1] != "" || m[2] != ""
}

// Specifiers is a PEP 440 specifier set such as ">=1.0,<2.0". The zero
// value matches every release version.
type Specifiers struct {
	raw      string
	specs    pep440.Specifiers
	specsPre pep440.Specifiers
}

// ParseSpecifiers parses a comma separated PEP 440 specifier set. The
// empty string yields a match-all set.
func ParseSpecifiers(s string) (Specifiers, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Specifiers{}, nil
	}
	specs, err := pep440.NewSpecifiers(s)
	if err != nil {
		return Specifiers{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid specifier %q", s)
	}
	// Parsed twice so prerelease-permissive checks need no re-parse.
	specsPre, err := pep440.NewSpecifiers(s, pep440.WithPreRelease(true))
	if err != nil {
		return Specifiers{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid specifier %q", s)
	}
	return Specifiers{raw: s, specs: specs, specsPre: specsPre}, nil
}

// MustSpecifiers parses a specifier set or panics. For tests only.
func MustSpecifiers(s string) Specifiers {
	specs, err := ParseSpecifiers(s)
	if err != nil {
		panic(err)
	}
	return specs
}

// String returns the specifier set as originally written.
func (s Specifiers) String() string { return s.raw }

// Empty reports whether the set contains no constraints.
func (s Specifiers) Empty() bool { return s.raw == "" }

// Check reports whether v satisfies the specifier set. Pre-release
// versions only match when prereleases is true or the specifier itself
// names a pre-release, per PEP 440.
func (s Specifiers) Check(v Version, prereleases bool) bool {
	if s.raw == "" {
		return prereleases || !v.IsPreRelease()
	}
	if prereleases {
		return s.specsPre.Check(v.v)
	}
	return s.specs.Check(v.v)
}

// Merge combines two specifier sets into one that requires both, like
// intersecting the sets of acceptable versions.
func (s Specifiers) Merge(other Specifiers) (Specifiers, error) {
	if other.raw == "" {
		return s, nil
	}
	if s.raw == "" {
		return other, nil
	}
	return ParseSpecifiers(s.raw + "," + other.raw)
}

// MaxSatisfying returns the newest version in versions that satisfies
// specs, or false if none does.
func MaxSatisfying(versions []Version, specs Specifiers, prereleases bool) (Version, bool) {
	var best Version
	found := false
	for _, v := range versions {
		if !specs.Check(v, prereleases) {
			continue
		}
		if !found || best.LessThan(v) {
			best = v
			found = true
		}
	}
	return best, found
}

// pinRE picks out `==`/`===` clauses so Within can test their version
// against a limiting specifier set.
var pinRE = regexp.MustCompile(`===?\s*([^,\s]+)`)

// Within reports whether the versions admitted by s could overlap the
// limit. This is not a full interval intersection: it tests the version
// of every exact pin (`==`, `===`, wildcards use their base release)
// against limit and answers true for pin-free sets.
func (s Specifiers) Within(limit Specifiers) bool {
	if s.raw == "" || limit.raw == "" {
		return true
	}
	pins := pinRE.FindAllStringSubmatch(s.raw, -1)
	if len(pins) == 0 {
		return true
	}
	for _, pin := range pins {
		text := strings.TrimSuffix(pin[1], ".*")
		v, err := ParseVersion(text)
		if err != nil {
			continue
		}
		if limit.Check(v, true) {
			return true
		}
	}
	return false
}
