package forest

import (
	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
)

// Command is an alias target, either a single command string or an
// argv list. The declared form is preserved because renderers quote
// the two differently.
type Command struct {
	Args []string
	List bool // declared as a JSON list
}

// IsZero reports whether no command was declared.
func (c Command) IsZero() bool { return len(c.Args) == 0 }

// Clone returns an independent copy of the command.
func (c Command) Clone() Command {
	if c.Args == nil {
		return c
	}
	out := Command{Args: make([]string, len(c.Args)), List: c.List}
	copy(out.Args, c.Args)
	return out
}

func parseCommand(raw any, path string) (Command, error) {
	switch v := raw.(type) {
	case string:
		return Command{Args: []string{v}}, nil
	case []any:
		args := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return Command{}, errors.New(errors.ErrCodeInvalidInput, "alias command entries must be strings in %q", path)
			}
			args = append(args, s)
		}
		return Command{Args: args, List: true}, nil
	default:
		return Command{}, errors.New(errors.ErrCodeInvalidInput, "alias command must be a string or list in %q", path)
	}
}

// Alias is one launchable command contributed by a distro version.
// Simple entries carry just a command; complex entries add a scoped
// environment and visibility settings.
type Alias struct {
	Name         string
	Cmd          Command
	Environment  *env.Block     // scoped to the alias, nil for simple entries
	MinVerbosity map[string]int // target to minimum dump verbosity
	Distro       string         // providing distro, filled in at compose time
	Extra        map[string]any // plugin keys preserved as written
}

// Clone returns a deep enough copy for composition to mutate safely.
func (a *Alias) Clone() *Alias {
	out := *a
	out.Cmd = a.Cmd.Clone()
	if a.MinVerbosity != nil {
		out.MinVerbosity = make(map[string]int, len(a.MinVerbosity))
		for k, v := range a.MinVerbosity {
			out.MinVerbosity[k] = v
		}
	}
	if a.Extra != nil {
		out.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// parseAliases converts the `aliases` key of a distro document, a map
// of platform name to ordered [name, spec] pairs. Declared order is
// kept, it drives duplicate handling when configs compose aliases.
func parseAliases(raw any, path string) (map[string][]*Alias, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "aliases must be an object in %q", path)
	}
	out := make(map[string][]*Alias, len(m))
	for platformName, rawList := range m {
		list, ok := rawList.([]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "aliases for %q must be a list in %q", platformName, path)
		}
		aliases := make([]*Alias, 0, len(list))
		for _, rawPair := range list {
			pair, ok := rawPair.([]any)
			if !ok || len(pair) != 2 {
				return nil, errors.New(errors.ErrCodeInvalidInput, "alias entries must be [name, command] pairs in %q", path)
			}
			name, ok := pair[0].(string)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidInput, "alias names must be strings in %q", path)
			}
			if err := errors.ValidateAliasName(name); err != nil {
				return nil, err
			}
			alias, err := parseAliasSpec(name, pair[1], path)
			if err != nil {
				return nil, err
			}
			aliases = append(aliases, alias)
		}
		out[platformName] = aliases
	}
	return out, nil
}

func parseAliasSpec(name string, raw any, path string) (*Alias, error) {
	alias := &Alias{Name: name}
	spec, ok := raw.(map[string]any)
	if !ok {
		// Simple form, the value is the command itself.
		cmd, err := parseCommand(raw, path)
		if err != nil {
			return nil, err
		}
		alias.Cmd = cmd
		return alias, nil
	}

	rawCmd, ok := spec["cmd"]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "alias %q is missing its cmd in %q", name, path)
	}
	cmd, err := parseCommand(rawCmd, path)
	if err != nil {
		return nil, err
	}
	alias.Cmd = cmd

	if rawEnv, ok := spec["environment"]; ok {
		block, err := blockFromAny(rawEnv)
		if err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "invalid environment for alias %q in %q", name, path)
		}
		alias.Environment = block
	}
	if rawMV, ok := spec["min_verbosity"]; ok {
		mv, err := parseMinVerbosity(rawMV, path)
		if err != nil {
			return nil, err
		}
		alias.MinVerbosity = mv
	}
	for key, value := range spec {
		switch key {
		case "cmd", "environment", "min_verbosity":
			continue
		}
		if alias.Extra == nil {
			alias.Extra = map[string]any{}
		}
		alias.Extra[key] = value
	}
	return alias, nil
}
