package forest

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/pep440"
)

// DistroVersion is one released version of a distro, parsed from its
// .hab.json document.
type DistroVersion struct {
	Node

	DistroName string
	Version    pep440.Version
	Aliases    map[string][]*Alias // platform name to declared aliases

	// Stub marks a synthetic version that satisfies a requirement
	// without contributing environment or aliases.
	Stub bool
}

// FullName returns the "name==version" form used in messages and dumps.
func (dv *DistroVersion) FullName() string {
	if dv.Stub {
		return dv.DistroName + "==STUB"
	}
	return fmt.Sprintf("%s==%s", dv.DistroName, dv.Version)
}

// AliasesFor returns the aliases declared for one platform, in order.
func (dv *DistroVersion) AliasesFor(platformName string) []*Alias {
	return dv.Aliases[platformName]
}

// NewStubVersion builds the stand-in version used when a site or config
// rule allows a requirement to resolve without an installed distro.
func NewStubVersion(name string) *DistroVersion {
	dv := &DistroVersion{
		DistroName: name,
		Version:    pep440.MustVersion("0+stub"),
		Stub:       true,
	}
	dv.Name = name
	return dv
}

// Distro groups every loaded version of one distro name.
type Distro struct {
	Name string

	// versions is keyed by pep440.Version.Key so "2.0" and "2.0.0"
	// collide instead of coexisting.
	versions map[string]*DistroVersion
	stub     *DistroVersion
}

func newDistro(name string) *Distro {
	return &Distro{Name: name, versions: map[string]*DistroVersion{}}
}

// Versions returns the loaded versions sorted ascending.
func (d *Distro) Versions() []pep440.Version {
	out := make([]pep440.Version, 0, len(d.versions))
	for _, dv := range d.versions {
		out = append(out, dv.Version)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

// Get returns the version entry equal to v.
func (d *Distro) Get(v pep440.Version) (*DistroVersion, bool) {
	dv, ok := d.versions[v.Key()]
	return dv, ok
}

// MatchingVersions returns the versions admitted by specs, ascending.
func (d *Distro) MatchingVersions(specs pep440.Specifiers, prereleases bool) []pep440.Version {
	out := make([]pep440.Version, 0, len(d.versions))
	for _, v := range d.Versions() {
		if specs.Check(v, prereleases) {
			out = append(out, v)
		}
	}
	return out
}

// LatestVersion returns the newest version satisfying req.
func (d *Distro) LatestVersion(req *pep440.Requirement, prereleases bool) (*DistroVersion, error) {
	best, ok := pep440.MaxSatisfying(d.Versions(), req.Specs, prereleases)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidRequirement,
			"Unable to find a valid version for %q", req)
	}
	dv := d.versions[best.Key()]
	return dv, nil
}

// StubVersion returns the cached stub for this distro, creating it on
// first use.
func (d *Distro) StubVersion() *DistroVersion {
	if d.stub == nil {
		d.stub = NewStubVersion(d.Name)
	}
	return d.stub
}

// Stub returns the cached stub version without creating one.
func (d *Distro) Stub() *DistroVersion { return d.stub }

// Distros is the flat forest of loaded distros, keyed by name.
type Distros struct {
	distros map[string]*Distro
	logger  *log.Logger
}

// NewDistros returns an empty distro forest.
func NewDistros(logger *log.Logger) *Distros {
	if logger == nil {
		logger = log.Default()
	}
	return &Distros{distros: map[string]*Distro{}, logger: logger}
}

// Insert adds dv to its distro. The same (name, version) from the same
// glob dir is an error; from a different dir the first definition wins
// with a warning, matching config tree layering.
func (ds *Distros) Insert(dv *DistroVersion) error {
	d := ds.Ensure(dv.DistroName)
	key := dv.Version.Key()
	existing, ok := d.versions[key]
	if !ok {
		d.versions[key] = dv
		ds.logger.Debug("added distro version", "distro", dv.FullName(), "file", dv.Filename)
		return nil
	}
	if existing.sharesRoot(dv.rootDirs) {
		return errors.New(errors.ErrCodeDuplicateJson,
			"Can not add %q, the context %q it is already set", dv.Filename, dv.FullName())
	}
	ds.logger.Warn("Can not add distro version, it is already set",
		"file", dv.Filename, "distro", dv.FullName())
	existing.addRoots(dv.rootDirs)
	return nil
}

// Get returns the distro for name.
func (ds *Distros) Get(name string) (*Distro, bool) {
	d, ok := ds.distros[name]
	return d, ok
}

// Ensure returns the distro for name, creating an empty entry if
// needed. Stub resolution uses this so a stub can cache onto a distro
// no file ever defined.
func (ds *Distros) Ensure(name string) *Distro {
	d, ok := ds.distros[name]
	if !ok {
		d = newDistro(name)
		ds.distros[name] = d
	}
	return d
}

// Names returns the loaded distro names sorted lexically.
func (ds *Distros) Names() []string {
	out := make([]string, 0, len(ds.distros))
	for name := range ds.distros {
		out = append(out, name)
	}
	return sortedStrings(out)
}

// Len returns the number of distros.
func (ds *Distros) Len() int { return len(ds.distros) }
