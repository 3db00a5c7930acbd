// Package resolver maps URIs to fully specified environments.
//
// A Resolver loads the config and distro forests named by a site,
// finds the closest config for a requested URI, reduces it against its
// ancestors and the default tree, solves its distro requirements and
// composes the final environment and alias set. The result is a
// FlatConfig, the unit freezes and script renderers consume.
package resolver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/cache"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/finder"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/pep440"
	"github.com/talusfx/hab/pkg/site"
	"github.com/talusfx/hab/pkg/solver"
)

// uncachedOnlyVar skips habcache reads when set, so a test suite can
// prove a site resolves identically without its cache.
const uncachedOnlyVar = "HAB_TEST_UNCACHED_ONLY"

// URIValidator is the implementation type for site.GroupURIValidate
// hooks. Returning a non-empty string replaces the URI for the rest of
// the resolve.
type URIValidator func(ctx context.Context, r *Resolver, uri string) (string, error)

// forests memoizes the loaded trees. Verbosity views of one resolver
// share it so a load through any view serves them all.
type forests struct {
	configs *forest.Configs
	distros *forest.Distros
}

// Resolver resolves URIs against the forests configured by a site.
type Resolver struct {
	Site *site.Site

	// Forced requirements replace same-named requirements wherever they
	// appear during solves, even inside dependencies. Fed by the CLI -r
	// flag.
	Forced *pep440.RequirementSet

	// Prereleases lets development and pre-release distro versions
	// satisfy requirements. Seeded from the site's prereleases setting.
	Prereleases bool

	// VerbosityTarget selects which min_verbosity key gates aliases and
	// dump rows. Empty means "hab".
	VerbosityTarget string

	Logger *log.Logger

	cache  *cache.Cache
	loader *forest.Loader
	state  *forests

	// verbosity is the active filter level. nil shows everything.
	verbosity *int
}

// New returns a resolver over the site's configured paths.
func New(s *site.Site, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	c := cache.New(s, logger)
	if os.Getenv(uncachedOnlyVar) != "" {
		c.Enabled = false
	}
	return &Resolver{
		Site:        s,
		Prereleases: s.Bool("prereleases", false),
		Logger:      logger,
		cache:       c,
		loader:      &forest.Loader{Logger: logger, Ignored: s.IgnoredDistros()},
		state:       &forests{},
	}
}

// Cache returns the site cache consulted before scanning. Disable it to
// force live scans.
func (r *Resolver) Cache() *cache.Cache {
	return r.cache
}

// ClearCaches drops the loaded forests and cached site documents so the
// next operation reloads from disk.
func (r *Resolver) ClearCaches() {
	r.state.configs = nil
	r.state.distros = nil
	r.cache.Clear()
}

// WithVerbosityTarget returns a resolver view that hides aliases and
// dump rows needing more verbosity than level for target. The view
// shares the receiver's loaded forests.
func (r *Resolver) WithVerbosityTarget(target string, level int) *Resolver {
	out := *r
	out.VerbosityTarget = target
	out.verbosity = &level
	return &out
}

// verbosityAllows applies a min_verbosity gate for the active filter.
// The target's entry decides, falling back to "global", then to zero.
// Without an active filter everything is shown.
func (r *Resolver) verbosityAllows(min map[string]int) bool {
	if r.verbosity == nil {
		return true
	}
	target := r.VerbosityTarget
	if target == "" {
		target = "hab"
	}
	required, ok := min[target]
	if !ok {
		required = min["global"]
	}
	return required <= *r.verbosity
}

// Configs returns the config forest, loading it on first use.
func (r *Resolver) Configs() (*forest.Configs, error) {
	if r.state.configs != nil {
		return r.state.configs, nil
	}
	tree := forest.NewConfigs(r.Logger)
	for _, root := range r.Site.ConfigPaths() {
		docs, ok := r.cache.ConfigDocs(root)
		if !ok {
			var err error
			docs, err = globDocs(root, "*.json")
			if err != nil {
				return nil, err
			}
		}
		for _, doc := range docs {
			cfg, err := r.loader.LoadConfig(doc)
			if err != nil {
				return nil, err
			}
			if err := tree.Insert(cfg); err != nil {
				return nil, err
			}
		}
	}
	r.state.configs = tree
	return tree, nil
}

// Distros returns the distro forest, loading it on first use. Archive
// and cloud distro_paths entries select their finder by URL scheme.
func (r *Resolver) Distros(ctx context.Context) (*forest.Distros, error) {
	if r.state.distros != nil {
		return r.state.distros, nil
	}
	distros := forest.NewDistros(r.Logger)
	for _, entry := range r.Site.DistroPaths() {
		fnd, err := finder.ForEntry(ctx, entry, r.cache)
		if err != nil {
			return nil, err
		}
		if closer, ok := fnd.(io.Closer); ok {
			defer closer.Close()
		}
		docs, err := fnd.Docs(ctx)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			dv, err := r.loader.LoadDistro(doc)
			if err != nil {
				return nil, err
			}
			if dv == nil {
				continue
			}
			if err := distros.Insert(dv); err != nil {
				return nil, err
			}
		}
	}
	r.state.distros = distros
	return distros, nil
}

func globDocs(root, pattern string) ([]forest.Doc, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "scanning %q", root)
	}
	forest.NaturalSort(matches)
	docs := make([]forest.Doc, 0, len(matches))
	for _, path := range matches {
		docs = append(docs, forest.Doc{Dir: root, Path: path})
	}
	return docs, nil
}

// ClosestConfig returns the most specific config matching uri. Exact
// and walked-up matches in the requested tree win; otherwise the
// default tree is descended by longest name prefix per segment.
// Placeholder entries never match.
func (r *Resolver) ClosestConfig(uri string) (*forest.Config, error) {
	configs, err := r.Configs()
	if err != nil {
		return nil, err
	}
	for current := uri; current != ""; current = forest.ParentURI(current) {
		if cfg, ok := configs.Get(current); ok && !cfg.Placeholder {
			return cfg, nil
		}
	}
	if cfg := defaultClosest(configs, uri); cfg != nil {
		return cfg, nil
	}
	return nil, errors.New(errors.ErrCodeURIUnresolved,
		"Unable to find a config for the URI %q", uri)
}

// defaultClosest descends the default tree one URI segment at a time.
// The first segment is stood in for by the default root itself; each
// later segment picks the child whose name is the longest prefix of the
// segment, stopping at the first level with no match. The result is the
// deepest non-placeholder node reached, or nil when the default tree
// does not exist.
func defaultClosest(configs *forest.Configs, uri string) *forest.Config {
	current, ok := configs.Get(defaultRoot)
	if !ok {
		return nil
	}
	currentURI := defaultRoot
	segments := forest.SplitURI(uri)
	for _, segment := range segments[1:] {
		nextURI := ""
		nextName := ""
		for _, childURI := range configs.Children(currentURI) {
			name := lastSegment(childURI)
			if strings.HasPrefix(segment, name) && len(name) > len(nextName) {
				nextURI, nextName = childURI, name
			}
		}
		if nextURI == "" {
			break
		}
		currentURI = nextURI
		current, _ = configs.Get(nextURI)
	}
	for current != nil && current.Placeholder {
		parent := forest.ParentURI(currentURI)
		if parent == "" {
			return nil
		}
		currentURI = parent
		current, _ = configs.Get(parent)
	}
	return current
}

// defaultRoot is the reserved URI of the fallback tree.
const defaultRoot = "default"

func lastSegment(uri string) string {
	segs := forest.SplitURI(uri)
	return segs[len(segs)-1]
}

// Resolve maps uri to its fully reduced configuration.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*FlatConfig, error) {
	uri, err := r.URIValidate(ctx, uri)
	if err != nil {
		return nil, err
	}
	cfg, err := r.ClosestConfig(uri)
	if err != nil {
		return nil, err
	}
	return newFlatConfig(r, cfg, uri)
}

// ResolveForced resolves uri with reqs standing in for the resolver's
// forced requirements. Overriding is loud because it can configure an
// environment the config never described.
func (r *Resolver) ResolveForced(ctx context.Context, uri string, reqs *pep440.RequirementSet) (*FlatConfig, error) {
	prev := r.Forced
	r.Forced = reqs
	if reqs != nil && reqs.Len() > 0 {
		r.Logger.Warn("Forced Requirements overridden", "requirements", reqs.Strings())
	}
	defer func() { r.Forced = prev }()
	return r.Resolve(ctx, uri)
}

// URIValidate runs the registered hab.uri.validate hooks on uri in name
// order. A hook may reject the URI by returning an error or rewrite it
// by returning a non-empty replacement.
func (r *Resolver) URIValidate(ctx context.Context, uri string) (string, error) {
	for _, ep := range r.Site.EntryPointsForGroup(site.GroupURIValidate, nil) {
		impl, ok := ep.Load()
		if !ok {
			r.Logger.Warn("unknown entry point, skipping",
				"group", ep.Group, "name", ep.Name, "value", ep.Value)
			continue
		}
		validate, ok := impl.(URIValidator)
		if !ok {
			r.Logger.Warn("entry point has wrong type", "group", ep.Group, "value", ep.Value)
			continue
		}
		r.Logger.Debug("running uri validate entry point", "name", ep.Name, "uri", uri)
		updated, err := validate(ctx, r, uri)
		if err != nil {
			return "", err
		}
		if updated != "" {
			uri = updated
		}
	}
	return uri, nil
}

// ResolveRequirements flattens reqs into one pinned requirement per
// distro, honoring the resolver's forced requirements and the site's
// stub rules.
func (r *Resolver) ResolveRequirements(ctx context.Context, reqs *pep440.RequirementSet) (*pep440.RequirementSet, error) {
	s, err := r.newSolver(ctx, reqs, r.Forced, nil)
	if err != nil {
		return nil, err
	}
	return s.Resolve()
}

// FindDistro returns the best loaded version for req, or its stub when
// the site's rules allow one.
func (r *Resolver) FindDistro(ctx context.Context, req *pep440.Requirement) (*forest.DistroVersion, error) {
	s, err := r.newSolver(ctx, nil, r.Forced, nil)
	if err != nil {
		return nil, err
	}
	return s.FindDistro(req)
}

// newSolver builds a solver over the loaded distros with the site's
// stub rules adjusted by overrides from a reduced config. forced is
// passed explicitly because a FlatConfig snapshots it at resolve time
// and solves lazily afterwards.
func (r *Resolver) newSolver(ctx context.Context, reqs, forced *pep440.RequirementSet, overrides *forest.StubOverrides) (*solver.Solver, error) {
	distros, err := r.Distros(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := r.siteStubRules()
	if err != nil {
		return nil, err
	}
	s := solver.New(distros, reqs)
	s.Forced = forced
	s.Omittable = r.Site.StringList("omittable_distros")
	s.Prereleases = r.Prereleases
	s.StubRules = solver.MergeStubRules(rules, overrides)
	s.Logger = r.Logger
	return s, nil
}

func (r *Resolver) siteStubRules() (map[string]*forest.StubRule, error) {
	raw, ok := r.Site.Get("stub_distros")
	if !ok {
		return nil, nil
	}
	return forest.ParseStubRules(raw)
}

// FreezeConfigs resolves every concrete URI and returns its frozen
// snapshot keyed by URI. A URI that fails to resolve maps to the error
// rendered as a string so one bad config does not hide the rest.
func (r *Resolver) FreezeConfigs(ctx context.Context) (map[string]any, error) {
	configs, err := r.Configs()
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, uri := range configs.URIs() {
		flat, err := r.Resolve(ctx, uri)
		if err == nil {
			var frozen any
			frozen, err = flat.Freeze(ctx)
			if err == nil {
				out[uri] = frozen
				continue
			}
		}
		out[uri] = "Error resolving " + uri + ": " + errors.UserMessage(err)
	}
	return out, nil
}
