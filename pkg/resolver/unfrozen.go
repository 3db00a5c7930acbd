package resolver

import (
	"context"
	"sort"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/freeze"
)

// UnfrozenConfig replays a frozen resolution. Versions, environments
// and aliases come straight from the freeze, no forests are consulted
// and nothing is solved, but the rendering surface matches a live
// FlatConfig so scripts come out the same either way.
type UnfrozenConfig struct {
	resolver *Resolver
	frozen   *freeze.Frozen
}

// Unfreeze wraps an already decoded freeze for rendering.
func (r *Resolver) Unfreeze(frozen *freeze.Frozen) *UnfrozenConfig {
	return &UnfrozenConfig{resolver: r, frozen: frozen}
}

// UnfreezeString decodes a versioned freeze string and wraps it for
// rendering. Raw .json freeze dumps are handled by the caller, the
// codec only takes the v<N>: form.
func (r *Resolver) UnfreezeString(txt string) (*UnfrozenConfig, error) {
	frozen, err := freeze.Decode(txt, r.Site)
	if err != nil {
		return nil, err
	}
	return r.Unfreeze(frozen), nil
}

// URI returns the URI the freeze was resolved for.
func (u *UnfrozenConfig) URI() string { return u.frozen.URI }

// Name returns the frozen config name.
func (u *UnfrozenConfig) Name() string { return u.frozen.Name }

// Frozen returns the underlying freeze document.
func (u *UnfrozenConfig) Frozen() *freeze.Frozen { return u.frozen }

// Versions returns the recorded distro full names. The freeze never
// stores stubs so every entry here was a real install at freeze time.
func (u *UnfrozenConfig) Versions() []string {
	return append([]string{}, u.frozen.Versions...)
}

// Environment returns the recorded environment for the site's current
// platform.
func (u *UnfrozenConfig) Environment(ctx context.Context) (map[string][]string, error) {
	return u.EnvironmentFor(ctx, u.resolver.Site.Platform().Name())
}

// EnvironmentFor returns the recorded environment for one platform,
// with HAB_URI restored from the frozen URI.
func (u *UnfrozenConfig) EnvironmentFor(_ context.Context, platformName string) (map[string][]string, error) {
	out := map[string][]string{env.URIVar: {u.frozen.URI}}
	for key, raw := range u.frozen.Environment[platformName] {
		value, err := valueList(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err,
				"environment variable %q for %s", key, platformName)
		}
		out[key] = value
	}
	return out, nil
}

// Aliases returns the recorded aliases for the site's current platform.
func (u *UnfrozenConfig) Aliases(ctx context.Context) ([]*ComposedAlias, error) {
	return u.AliasesFor(ctx, u.resolver.Site.Platform().Name())
}

// AliasesFor rebuilds the recorded aliases for one platform, sorted by
// name. Freeze documents store aliases as a mapping so the original
// declaration order is gone.
func (u *UnfrozenConfig) AliasesFor(_ context.Context, platformName string) ([]*ComposedAlias, error) {
	entries := u.frozen.Aliases[platformName]
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*ComposedAlias, 0, len(entries))
	for _, name := range names {
		alias, err := aliasFromDoc(name, entries[name])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err,
				"alias %q for %s", name, platformName)
		}
		out = append(out, alias)
	}
	return out, nil
}

// Freeze returns the freeze document unchanged.
func (u *UnfrozenConfig) Freeze(context.Context) (*freeze.Frozen, error) {
	return u.frozen, nil
}

// FreezeString re-encodes the freeze with the site's freeze version.
func (u *UnfrozenConfig) FreezeString(context.Context) (string, error) {
	return freeze.Encode(u.frozen, 0, u.resolver.Site)
}

// aliasFromDoc restores one frozen alias entry. Keys the engine does
// not model go back into Extra, mirroring how they were written.
func aliasFromDoc(name string, raw any) (*ComposedAlias, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeFreezeDecode, "alias entry must be a mapping, got %T", raw)
	}
	alias := &ComposedAlias{Name: name}
	for key, value := range doc {
		switch key {
		case "cmd":
			cmd, err := commandFromDoc(value)
			if err != nil {
				return nil, err
			}
			alias.Cmd = cmd
		case "distro":
			s, ok := value.(string)
			if !ok {
				return nil, errors.New(errors.ErrCodeFreezeDecode, "distro must be a string, got %T", value)
			}
			alias.Distro = s
		case "environment":
			scoped, err := environmentFromDoc(value)
			if err != nil {
				return nil, err
			}
			alias.Env = scoped
		case "min_verbosity":
			mv, err := verbosityFromDoc(value)
			if err != nil {
				return nil, err
			}
			alias.MinVerbosity = mv
		default:
			if alias.Extra == nil {
				alias.Extra = map[string]any{}
			}
			alias.Extra[key] = value
		}
	}
	return alias, nil
}

func commandFromDoc(raw any) (forest.Command, error) {
	switch v := raw.(type) {
	case string:
		return forest.Command{Args: []string{v}}, nil
	case []string:
		return forest.Command{Args: append([]string{}, v...), List: true}, nil
	case []any:
		args, err := stringList(v)
		if err != nil {
			return forest.Command{}, err
		}
		return forest.Command{Args: args, List: true}, nil
	}
	return forest.Command{}, errors.New(errors.ErrCodeFreezeDecode, "cmd must be a string or list, got %T", raw)
}

func environmentFromDoc(raw any) (map[string][]string, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeFreezeDecode, "environment must be a mapping, got %T", raw)
	}
	out := make(map[string][]string, len(doc))
	for key, value := range doc {
		list, err := valueList(value)
		if err != nil {
			return nil, err
		}
		out[key] = list
	}
	return out, nil
}

func verbosityFromDoc(raw any) (map[string]int, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		if typed, ok := raw.(map[string]int); ok {
			return typed, nil
		}
		return nil, errors.New(errors.ErrCodeFreezeDecode, "min_verbosity must be a mapping, got %T", raw)
	}
	out := make(map[string]int, len(doc))
	for key, value := range doc {
		switch v := value.(type) {
		case float64:
			out[key] = int(v)
		case int:
			out[key] = v
		default:
			return nil, errors.New(errors.ErrCodeFreezeDecode, "min_verbosity for %q must be a number, got %T", key, value)
		}
	}
	return out, nil
}

// valueList accepts the shapes a frozen environment value can take: a
// list built in process, a list round-tripped through JSON, or a bare
// string from hand-edited documents.
func valueList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		return stringList(v)
	case string:
		return []string{v}, nil
	case nil:
		return []string{}, nil
	}
	return nil, errors.New(errors.ErrCodeFreezeDecode, "value must be a string or list, got %T", raw)
}

func stringList(raw []any) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeFreezeDecode, "list items must be strings, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
