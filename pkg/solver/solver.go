// Package solver flattens a config's distro requirements into one
// merged requirement per distro name.
package solver

import (
	stderrors "errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/pep440"
	"github.com/talusfx/hab/pkg/platform"
)

// maxRedirects bounds how many times a pass may restart after a later
// dependency invalidates an already-picked version.
const maxRedirects = 2

// Solver recursively resolves requirements against the loaded distros,
// newest acceptable version first. Dependencies of each pick are walked
// depth first in declaration order, which also seeds the order
// downstream composition sees.
type Solver struct {
	distros *forest.Distros
	reqs    *pep440.RequirementSet

	// Forced requirements replace same-named requirements wherever they
	// appear, even inside dependencies. This can configure an
	// environment incorrectly, so every use logs a warning.
	Forced *pep440.RequirementSet

	// Omittable names downgrade a missing distro from an error to a
	// warning.
	Omittable []string

	// Prereleases lets development and pre-release versions satisfy
	// requirements.
	Prereleases bool

	// StubRules maps name patterns to stub rules. A requirement whose
	// name has no loaded distro resolves to an empty stub version when
	// a rule allows it. See MergeStubRules.
	StubRules map[string]*forest.StubRule

	// MarkerEnv holds the host facts requirement markers evaluate
	// against. Defaults to pep440.HostEnv for the current platform.
	MarkerEnv map[string]string

	Logger *log.Logger

	// Redirects counts the restarts the last Resolve needed.
	Redirects int

	invalid map[string]pep440.Specifiers
}

// New returns a solver for reqs against distros.
func New(distros *forest.Distros, reqs *pep440.RequirementSet) *Solver {
	if reqs == nil {
		reqs = pep440.NewRequirementSet()
	}
	return &Solver{distros: distros, reqs: reqs}
}

func (s *Solver) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *Solver) markerEnv() map[string]string {
	if s.MarkerEnv == nil {
		s.MarkerEnv = pep440.HostEnv(platform.Current())
	}
	return s.MarkerEnv
}

// redoError restarts a Resolve pass: version was picked in this pass
// but a later dependency narrowed its requirement past the pick.
type redoError struct {
	version *forest.DistroVersion
}

func (e *redoError) Error() string {
	return fmt.Sprintf("Removing invalid version %s", e.version.FullName())
}

// passState accumulates one resolve pass.
type passState struct {
	resolved  *pep440.RequirementSet
	processed map[*forest.DistroVersion]bool
	byName    map[string]*forest.DistroVersion
	reported  map[string]bool
}

// Resolve flattens the requirement set into one merged requirement per
// distro name. When a dependency discovered late invalidates an earlier
// pick, the pass restarts with that version excluded, up to the
// redirect limit.
func (s *Solver) Resolve() (*pep440.RequirementSet, error) {
	logger := s.logger()
	logger.Debug("Resolving requirements", "requirements", s.reqs.Strings())
	s.Redirects = 0
	s.invalid = map[string]pep440.Specifiers{}
	for {
		logger.Debug("Resolve attempt", "attempt", s.Redirects+1)
		st := &passState{
			resolved:  pep440.NewRequirementSet(),
			processed: map[*forest.DistroVersion]bool{},
			byName:    map[string]*forest.DistroVersion{},
			reported:  map[string]bool{},
		}
		err := s.resolve(s.reqs, st)
		if err == nil {
			return st.resolved, nil
		}
		var redo *redoError
		if !stderrors.As(err, &redo) {
			return nil, err
		}
		logger.Info(redo.Error())
		s.Redirects++
		if s.Redirects >= maxRedirects {
			return nil, errors.New(errors.ErrCodeMaxRedirect,
				"Redirect limit of %d reached", maxRedirects)
		}
	}
}

func (s *Solver) resolve(reqs *pep440.RequirementSet, st *passState) error {
	logger := s.logger()

	ordered := reqs.All()
	if s.Forced != nil && s.Forced.Len() > 0 {
		ordered = overlayForced(ordered, s.Forced)
	}

	for _, req := range ordered {
		name := req.Name

		if req.Marker != nil {
			ok, err := req.Marker.Evaluate(s.markerEnv())
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidRequirement, err,
					"evaluating marker for %q", req)
			}
			if !ok {
				if s.isForced(name) {
					logger.Error("Forced requirement ignored due to marker", "requirement", req.String())
				} else {
					logger.Warn("Requirement ignored due to marker", "requirement", req.String())
				}
				continue
			}
		}

		if s.isForced(name) {
			if st.reported[name] {
				// Already processed and warned about once.
				continue
			}
			req, _ = s.Forced.Get(name)
			logger.Warn("Forced Requirement", "requirement", req.String())
			st.reported[name] = true
		}

		if err := st.resolved.Append(req); err != nil {
			return err
		}
		merged, _ := st.resolved.Get(name)

		// Previously invalidated versions are excluded from the lookup,
		// but not recorded in the resolved output.
		specs := merged.Specs
		if inv, ok := s.invalid[name]; ok {
			logger.Debug("Adding invalid specifier", "specifier", inv.String())
			narrowed, err := specs.Merge(inv)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidRequirement, err,
					"combining %q with exclusions", merged)
			}
			specs = narrowed
		}
		lookup := &pep440.Requirement{Name: name, Specs: specs}
		logger.Debug("Checking requirement", "requirement", lookup.String())

		version, err := s.FindDistro(lookup)
		if err != nil {
			if errors.Is(err, errors.ErrCodeInvalidRequirement) && s.isOmittable(name) {
				logger.Warn("Unable to find a distro for requirement", "requirement", lookup.String())
				st.resolved.Remove(name)
				continue
			}
			return err
		}
		logger.Debug("Found version", "version", version.FullName())

		if version.Err != nil {
			// The version's own document had an unusable requirement
			// list, surfaced only now that the version was selected.
			return version.Err
		}

		if version.Distros == nil || version.Distros.Len() == 0 || st.processed[version] {
			continue
		}
		if prev, ok := st.byName[version.DistroName]; ok {
			excl, perr := pep440.ParseSpecifiers("!=" + prev.Version.String())
			if perr != nil {
				return perr
			}
			if err := s.addInvalid(version.DistroName, excl); err != nil {
				return err
			}
			return &redoError{version: version}
		}
		st.processed[version] = true
		st.byName[version.DistroName] = version
		if err := s.resolve(version.Distros, st); err != nil {
			return err
		}
	}
	return nil
}

// FindDistro returns the best version for req. A name with no loaded
// distro resolves to a stub version when a stub rule allows it.
func (s *Solver) FindDistro(req *pep440.Requirement) (*forest.DistroVersion, error) {
	if d, ok := s.distros.Get(req.Name); ok {
		dv, err := d.LatestVersion(req, s.Prereleases)
		if err != nil {
			if stub := d.Stub(); stub != nil {
				return stub, nil
			}
			return nil, err
		}
		return dv, nil
	}
	if stub := s.stubFor(req); stub != nil {
		return stub, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidRequirement,
		"Unable to find a distro for requirement: %s", req)
}

func (s *Solver) isForced(name string) bool {
	if s.Forced == nil {
		return false
	}
	_, ok := s.Forced.Get(name)
	return ok
}

func (s *Solver) isOmittable(name string) bool {
	for _, n := range s.Omittable {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Solver) addInvalid(name string, excl pep440.Specifiers) error {
	if cur, ok := s.invalid[name]; ok {
		merged, err := cur.Merge(excl)
		if err != nil {
			return err
		}
		s.invalid[name] = merged
		return nil
	}
	s.invalid[name] = excl
	return nil
}

// overlayForced returns reqs with forced entries replacing same-named
// requirements in place and any remaining forced names appended.
func overlayForced(reqs []*pep440.Requirement, forced *pep440.RequirementSet) []*pep440.Requirement {
	out := make([]*pep440.Requirement, 0, len(reqs)+forced.Len())
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if f, ok := forced.Get(req.Name); ok {
			req = f
		}
		seen[req.Name] = true
		out = append(out, req)
	}
	for _, f := range forced.All() {
		if !seen[f.Name] {
			out = append(out, f)
		}
	}
	return out
}
