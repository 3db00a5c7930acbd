package resolver

import (
	"context"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/freeze"
	"github.com/talusfx/hab/pkg/pep440"
	"github.com/talusfx/hab/pkg/platform"
)

// relativeRootName is the reserved variable holding the forward-slash
// directory of the file a value was defined in.
const relativeRootName = "relative_root"

// FlatConfig is a fully reduced resolution of one URI: the matched
// config merged with everything it inherits, plus lazily solved distro
// versions, composed environments and aliases.
type FlatConfig struct {
	resolver *Resolver
	uri      string
	matched  *forest.Config

	// forced snapshots the resolver's forced requirements at resolve
	// time so a ResolveForced override survives the lazy solve.
	forced *pep440.RequirementSet

	distros      *pep440.RequirementSet
	environment  *env.Block
	envDir       string
	aliasMods    map[string]*env.Block
	modsDir      string
	minVerbosity map[string]int
	variables    map[string]string
	varsDir      string
	optional     []forest.OptionalDistro
	stubs        *forest.StubOverrides
	inherits     *bool
	sources      []string

	versions     []*forest.DistroVersion
	versionsDone bool
	composers    map[string]*env.Composer
	aliases      map[string][]*ComposedAlias
}

// ComposedAlias is one launchable command after formatting and
// alias_mods are applied.
type ComposedAlias struct {
	Name string
	Cmd  forest.Command

	// Distro is the full name of the providing distro version.
	Distro string

	// Env holds the alias's scoped environment edits, flattened. An
	// empty slice means the variable is unset while the alias runs.
	Env map[string][]string

	// MinVerbosity gates visibility the same way it does for configs.
	MinVerbosity map[string]int

	// Extra carries plugin keys preserved from the definition.
	Extra map[string]any
}

// newFlatConfig reduces cfg and its inheritance chain for uri. Each
// field keeps the value from the nearest node that defines it; the walk
// stops at the first node that does not declare inherits true, and may
// hop into the default tree once the user tree runs out.
func newFlatConfig(r *Resolver, cfg *forest.Config, uri string) (*FlatConfig, error) {
	f := &FlatConfig{
		resolver:  r,
		uri:       uri,
		matched:   cfg,
		forced:    r.Forced,
		composers: map[string]*env.Composer{},
		aliases:   map[string][]*ComposedAlias{},
	}

	configs, err := r.Configs()
	if err != nil {
		return nil, err
	}

	inDefault := len(forest.SplitURI(cfg.URI())) > 0 && forest.SplitURI(cfg.URI())[0] == defaultRoot
	visited := map[string]bool{}
	for cfg != nil {
		cur := cfg.URI()
		if visited[cur] {
			break
		}
		visited[cur] = true
		if cfg.Err != nil {
			return nil, cfg.Err
		}
		r.Logger.Debug("reducing config", "uri", cur, "file", cfg.Filename)
		missing := f.adopt(cfg)
		if !cfg.Placeholder {
			f.sources = append(f.sources, cfg.Filename)
		}
		if !missing {
			break
		}
		if cfg.Inherits == nil || !*cfg.Inherits {
			break
		}
		if parent := forest.ParentURI(cur); parent != "" {
			next, ok := configs.Get(parent)
			if !ok {
				break
			}
			cfg = next
			continue
		}
		if inDefault {
			break
		}
		inDefault = true
		cfg = defaultClosest(configs, uri)
	}

	if err := f.finalize(); err != nil {
		return nil, err
	}
	return f, nil
}

// adopt copies every field cfg defines that the reduction has not seen
// yet, and reports whether any field is still undefined afterwards.
func (f *FlatConfig) adopt(cfg *forest.Config) bool {
	if f.distros == nil && cfg.Distros != nil {
		f.distros = cfg.Distros
	}
	if f.environment == nil && cfg.Environment != nil {
		f.environment = cfg.Environment
		f.envDir = cfg.Dirname
	}
	if f.aliasMods == nil && cfg.AliasMods != nil {
		f.aliasMods = cfg.AliasMods
		f.modsDir = cfg.Dirname
	}
	if f.minVerbosity == nil && cfg.MinVerbosity != nil {
		f.minVerbosity = cfg.MinVerbosity
	}
	if f.variables == nil && cfg.Variables != nil {
		f.variables = cfg.Variables
		f.varsDir = cfg.Dirname
	}
	if f.optional == nil && cfg.Optional != nil {
		f.optional = cfg.Optional
	}
	if f.stubs == nil && cfg.Stubs != nil {
		f.stubs = cfg.Stubs
	}
	if f.inherits == nil && cfg.Inherits != nil {
		f.inherits = cfg.Inherits
	}
	return f.distros == nil || f.environment == nil || f.aliasMods == nil ||
		f.minVerbosity == nil || f.variables == nil || f.optional == nil ||
		f.stubs == nil || f.inherits == nil
}

// finalize resolves {relative_root} inside the adopted variables so
// later formatting can treat them as plain strings.
func (f *FlatConfig) finalize() error {
	if f.variables == nil {
		return nil
	}
	vars, err := formatVars(f.variables, f.varsDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err,
			"formatting variables for %q", f.uri)
	}
	f.variables = vars
	return nil
}

// formatVars resolves {relative_root} inside each variable value
// against the directory of the file that declared it.
func formatVars(vars map[string]string, dir string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	fm := &env.Formatter{
		Language: env.Preserve,
		Vars:     map[string]string{relativeRootName: platform.ForwardSlash(dir)},
	}
	out := make(map[string]string, len(vars))
	for name, value := range vars {
		formatted, err := fm.Format(value)
		if err != nil {
			return nil, err
		}
		out[name] = formatted
	}
	return out, nil
}

// formatterFor builds the delayed formatter for a source defined in
// dir: the reduced variables plus relative_root pointing at dir.
func (f *FlatConfig) formatterFor(dir string, vars map[string]string) *env.Formatter {
	merged := make(map[string]string, len(vars)+1)
	for name, value := range vars {
		merged[name] = value
	}
	merged[relativeRootName] = platform.ForwardSlash(dir)
	return &env.Formatter{Language: env.Preserve, Vars: merged}
}

// URI returns the URI this resolution was requested for. It may be
// deeper than the matched config's URI.
func (f *FlatConfig) URI() string { return f.uri }

// MatchedURI returns the URI of the config that satisfied the request.
func (f *FlatConfig) MatchedURI() string { return f.matched.URI() }

// Filename returns the file the matched config was loaded from. Empty
// for default-tree stand-ins reached through a placeholder.
func (f *FlatConfig) Filename() string { return f.matched.Filename }

// Name returns the matched config's name segment.
func (f *FlatConfig) Name() string { return f.matched.Name }

// Distros returns the reduced distro requirements, nil when no node in
// the chain declared any.
func (f *FlatConfig) Distros() *pep440.RequirementSet { return f.distros }

// Variables returns the reduced user variables with {relative_root}
// already resolved.
func (f *FlatConfig) Variables() map[string]string { return f.variables }

// MinVerbosity returns the reduced per-target verbosity floor.
func (f *FlatConfig) MinVerbosity() map[string]int { return f.minVerbosity }

// OptionalDistros returns the requirements a user may opt into.
func (f *FlatConfig) OptionalDistros() []forest.OptionalDistro { return f.optional }

// StubOverrides returns the reduced stub_distros adjustment, nil when
// undeclared.
func (f *FlatConfig) StubOverrides() *forest.StubOverrides { return f.stubs }

// Inherits reports the reduced inherits flag.
func (f *FlatConfig) Inherits() bool { return f.inherits != nil && *f.inherits }

// Sources returns the files that contributed fields, nearest first.
func (f *FlatConfig) Sources() []string { return f.sources }

// Versions returns the distro versions satisfying the reduced
// requirements, in solve order. Solved once and cached.
func (f *FlatConfig) Versions(ctx context.Context) ([]*forest.DistroVersion, error) {
	if f.versionsDone {
		return f.versions, nil
	}
	if f.distros != nil && f.distros.Len() > 0 {
		s, err := f.resolver.newSolver(ctx, f.distros, f.forced, f.stubs)
		if err != nil {
			return nil, err
		}
		reqs, err := s.Resolve()
		if err != nil {
			return nil, err
		}
		versions := make([]*forest.DistroVersion, 0, reqs.Len())
		for _, req := range reqs.All() {
			dv, err := s.FindDistro(req)
			if err != nil {
				return nil, err
			}
			versions = append(versions, dv)
		}
		f.versions = versions
	}
	f.versionsDone = true
	return f.versions, nil
}

// Environment returns the composed environment for the site's current
// platform. Values stay in delayed form, {NAME!e} references and the
// {;} separator intact, until a renderer targets a concrete shell.
func (f *FlatConfig) Environment(ctx context.Context) (map[string][]string, error) {
	return f.EnvironmentFor(ctx, f.resolver.Site.Platform().Name())
}

// EnvironmentFor composes the environment for one named platform.
func (f *FlatConfig) EnvironmentFor(ctx context.Context, platformName string) (map[string][]string, error) {
	comp, err := f.composerFor(ctx, platformName)
	if err != nil {
		return nil, err
	}
	return comp.Environment(), nil
}

func (f *FlatConfig) composerFor(ctx context.Context, platformName string) (*env.Composer, error) {
	if comp, ok := f.composers[platformName]; ok {
		return comp, nil
	}
	p, ok := platform.Get(platformName)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown platform %q", platformName)
	}

	comp := env.NewComposer(p)
	comp.Put(env.URIVar, f.uri)

	// The config's own operations apply first so it owns any variable
	// it sets; the distros then extend in solve order.
	if f.environment != nil {
		fm := f.formatterFor(f.envDir, f.variables)
		if err := comp.ApplyFormatted(f.environment.For(platformName), fm.Format); err != nil {
			return nil, err
		}
	}
	versions, err := f.Versions(ctx)
	if err != nil {
		return nil, err
	}
	for _, dv := range versions {
		if dv.Environment == nil {
			continue
		}
		fm, err := f.distroFormatter(dv)
		if err != nil {
			return nil, err
		}
		if err := comp.ApplyFormatted(dv.Environment.For(platformName), fm.Format); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
				"composing environment of %s", dv.FullName())
		}
	}

	f.composers[platformName] = comp
	return comp, nil
}

// distroFormatter builds the delayed formatter for values defined by a
// distro version: its own variables against its own directory.
func (f *FlatConfig) distroFormatter(dv *forest.DistroVersion) (*env.Formatter, error) {
	vars, err := formatVars(dv.Variables, dv.Dirname)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
			"formatting variables of %s", dv.FullName())
	}
	return f.formatterFor(dv.Dirname, vars), nil
}

// Aliases returns the launchable aliases for the site's current
// platform.
func (f *FlatConfig) Aliases(ctx context.Context) ([]*ComposedAlias, error) {
	return f.AliasesFor(ctx, f.resolver.Site.Platform().Name())
}

// AliasesFor composes the aliases declared for one platform. The first
// distro in solve order to declare a name provides it; later
// declarations are skipped. Aliases below the resolver's verbosity are
// dropped after deduplication so hiding one never promotes another.
func (f *FlatConfig) AliasesFor(ctx context.Context, platformName string) ([]*ComposedAlias, error) {
	if cached, ok := f.aliases[platformName]; ok {
		return cached, nil
	}
	p, ok := platform.Get(platformName)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown platform %q", platformName)
	}
	versions, err := f.Versions(ctx)
	if err != nil {
		return nil, err
	}

	providers := map[string]string{}
	out := []*ComposedAlias{}
	for _, dv := range versions {
		for _, alias := range dv.AliasesFor(platformName) {
			if prev, ok := providers[alias.Name]; ok {
				f.resolver.Logger.Debug("skipping duplicate alias",
					"alias", alias.Name, "distro", dv.FullName(), "provided_by", prev)
				continue
			}
			providers[alias.Name] = dv.FullName()
			if !f.resolver.verbosityAllows(alias.MinVerbosity) {
				continue
			}
			composed, err := f.composeAlias(p, alias, dv, versions)
			if err != nil {
				return nil, err
			}
			out = append(out, composed)
		}
	}

	f.aliases[platformName] = out
	return out, nil
}

// composeAlias formats one alias with its owner's variables and builds
// its scoped environment. The alias's own operations apply first, then
// each distro's alias_mods in solve order, then the config's, so a
// mod's prepend lands in front of the alias's own and the config's in
// front of everything.
func (f *FlatConfig) composeAlias(p platform.Platform, alias *forest.Alias, owner *forest.DistroVersion, versions []*forest.DistroVersion) (*ComposedAlias, error) {
	fm, err := f.distroFormatter(owner)
	if err != nil {
		return nil, err
	}
	args, err := fm.FormatList(alias.Cmd.Args)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
			"formatting alias %q of %s", alias.Name, owner.FullName())
	}

	out := &ComposedAlias{
		Name:         alias.Name,
		Cmd:          forest.Command{Args: args, List: alias.Cmd.List},
		Distro:       owner.FullName(),
		MinVerbosity: alias.MinVerbosity,
		Extra:        alias.Extra,
	}

	comp := env.NewComposer(p)
	if alias.Environment != nil {
		if err := comp.ApplyFormatted(alias.Environment.For(p.Name()), fm.Format); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
				"composing alias %q of %s", alias.Name, owner.FullName())
		}
	}
	for _, dv := range versions {
		mod, ok := dv.AliasMods[alias.Name]
		if !ok {
			continue
		}
		mfm, err := f.distroFormatter(dv)
		if err != nil {
			return nil, err
		}
		if err := comp.ApplyFormatted(mod.For(p.Name()), mfm.Format); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
				"applying alias_mods of %s to %q", dv.FullName(), alias.Name)
		}
	}
	if mod, ok := f.aliasMods[alias.Name]; ok {
		cfm := f.formatterFor(f.modsDir, f.variables)
		if err := comp.ApplyFormatted(mod.For(p.Name()), cfm.Format); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err,
				"applying config alias_mods to %q", alias.Name)
		}
	}
	if scoped := comp.Environment(); len(scoped) > 0 {
		out.Env = scoped
	}
	return out, nil
}

// Freeze captures the resolution for every platform the site supports.
// HAB_URI is dropped from the stored environments, unfreezing restores
// it from the frozen URI, and stub versions are not recorded.
func (f *FlatConfig) Freeze(ctx context.Context) (*freeze.Frozen, error) {
	frozen := &freeze.Frozen{
		Name:    f.matched.Name,
		Context: f.matched.Context,
		URI:     f.uri,
	}

	versions, err := f.Versions(ctx)
	if err != nil {
		return nil, err
	}
	for _, dv := range versions {
		if dv.Stub {
			continue
		}
		frozen.Versions = append(frozen.Versions, dv.FullName())
	}

	for _, name := range f.resolver.Site.Platforms() {
		composed, err := f.EnvironmentFor(ctx, name)
		if err != nil {
			return nil, err
		}
		delete(composed, env.URIVar)
		if len(composed) > 0 {
			if frozen.Environment == nil {
				frozen.Environment = map[string]map[string]any{}
			}
			frozen.Environment[name] = envDoc(composed)
		}

		aliases, err := f.AliasesFor(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(aliases) > 0 {
			if frozen.Aliases == nil {
				frozen.Aliases = map[string]map[string]any{}
			}
			entries := make(map[string]any, len(aliases))
			for _, alias := range aliases {
				entries[alias.Name] = aliasDoc(alias)
			}
			frozen.Aliases[name] = entries
		}
	}
	return frozen, nil
}

// FreezeString encodes the frozen resolution using the site's freeze
// version.
func (f *FlatConfig) FreezeString(ctx context.Context) (string, error) {
	frozen, err := f.Freeze(ctx)
	if err != nil {
		return "", err
	}
	return freeze.Encode(frozen, 0, f.resolver.Site)
}

func envDoc(composed map[string][]string) map[string]any {
	doc := make(map[string]any, len(composed))
	for key, value := range composed {
		doc[key] = value
	}
	return doc
}

// aliasDoc flattens a composed alias into its frozen form. Plugin keys
// come first so the engine's own fields win on collision.
func aliasDoc(alias *ComposedAlias) map[string]any {
	doc := map[string]any{}
	for key, value := range alias.Extra {
		doc[key] = value
	}
	if alias.Cmd.List || len(alias.Cmd.Args) > 1 {
		doc["cmd"] = alias.Cmd.Args
	} else if len(alias.Cmd.Args) == 1 {
		doc["cmd"] = alias.Cmd.Args[0]
	}
	doc["distro"] = alias.Distro
	if len(alias.Env) > 0 {
		scoped := make(map[string]any, len(alias.Env))
		for key, value := range alias.Env {
			scoped[key] = value
		}
		doc["environment"] = scoped
	}
	if len(alias.MinVerbosity) > 0 {
		doc["min_verbosity"] = alias.MinVerbosity
	}
	return doc
}
