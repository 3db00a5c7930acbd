// Package launch runs resolved aliases as child processes.
//
// Scripts cover the interactive flow; launch covers the direct one. It
// expands a composed environment against the live process environment,
// finds the requested alias, and spawns it with inherited stdio,
// forwarding the child's exit code. Scratch directories for generated
// scripts are allocated here too, with a naming strategy selectable
// through HAB_RANDOM.
package launch

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
	"github.com/talusfx/hab/pkg/render"
	"github.com/talusfx/hab/pkg/resolver"
)

// environMap is a process environment under edit. Windows hosts treat
// variable names case-insensitively, so edits there fold case to avoid
// leaving both PATH and Path in the child's environment.
type environMap struct {
	values map[string]string
	fold   map[string]string
	ci     bool
}

func newEnvironMap(base []string, ci bool) *environMap {
	m := &environMap{values: map[string]string{}, ci: ci}
	if ci {
		m.fold = map[string]string{}
	}
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		m.Set(key, value)
	}
	return m
}

func (m *environMap) key(name string) string {
	if !m.ci {
		return name
	}
	if stored, ok := m.fold[strings.ToUpper(name)]; ok {
		return stored
	}
	return name
}

// Get returns the stored value. Missing variables read as empty so
// composed references to them collapse instead of failing the launch.
func (m *environMap) Get(name string) (string, bool) {
	value, ok := m.values[m.key(name)]
	return value, ok
}

func (m *environMap) Set(name, value string) {
	if m.ci {
		upper := strings.ToUpper(name)
		if stored, ok := m.fold[upper]; ok && stored != name {
			delete(m.values, stored)
		}
		m.fold[upper] = name
	}
	m.values[name] = value
}

func (m *environMap) Delete(name string) {
	key := m.key(name)
	delete(m.values, key)
	if m.ci {
		delete(m.fold, strings.ToUpper(name))
	}
}

// Flatten returns the environment as sorted KEY=VALUE pairs.
func (m *environMap) Flatten() []string {
	out := make([]string, 0, len(m.values))
	for key, value := range m.values {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}

// formatterFor builds an expanding formatter whose references read
// from m. The language only decides what {;} becomes.
func formatterFor(p platform.Platform, m *environMap) (*env.Formatter, error) {
	lang, err := env.LanguageFromExt(p.DefaultExt(), p)
	if err != nil {
		return nil, err
	}
	return &env.Formatter{
		Language: lang,
		Expand:   true,
		Lookup: func(name string) (string, bool) {
			value, _ := m.Get(name)
			return value, true
		},
	}, nil
}

// applyOps writes composed environment values into m. An empty value
// list unsets the variable. Items referencing other variables see
// earlier writes from the same batch, the same way a shell running the
// generated set lines would.
func applyOps(m *environMap, ops map[string][]string, fmtr *env.Formatter, sep string) error {
	keys := make([]string, 0, len(ops))
	for key := range ops {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	// HAB_URI leads in scripts, keep the same ordering here.
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i] == env.URIVar {
			return keys[j] != env.URIVar
		}
		return false
	})

	for _, key := range keys {
		items := ops[key]
		if len(items) == 0 {
			m.Delete(key)
			continue
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			value, err := fmtr.Format(item)
			if err != nil {
				return err
			}
			// A reference to a variable the caller never set expands
			// to nothing; drop it so no dangling separator survives.
			if value == "" {
				continue
			}
			parts = append(parts, value)
		}
		if len(parts) == 0 {
			m.Delete(key)
			continue
		}
		m.Set(key, strings.Join(parts, sep))
	}
	return nil
}

// composedEnv expands cfg's environment over base and returns the
// resulting map plus the formatter bound to it.
func composedEnv(ctx context.Context, cfg render.Config, p platform.Platform, base []string) (*environMap, *env.Formatter, error) {
	m := newEnvironMap(base, p.Name() == "windows")
	fmtr, err := formatterFor(p, m)
	if err != nil {
		return nil, nil, err
	}

	composed, err := cfg.EnvironmentFor(ctx, p.Name())
	if err != nil {
		return nil, nil, err
	}
	if err := applyOps(m, composed, fmtr, p.ListSep()); err != nil {
		return nil, nil, err
	}

	// The freeze is a base64 blob, never formatted.
	frozen, err := cfg.FreezeString(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.Set(env.FreezeVar, frozen)
	return m, fmtr, nil
}

// Environ returns the full child environment for cfg on p, expanded
// against base. A nil base reads the current process environment.
func Environ(ctx context.Context, cfg render.Config, p platform.Platform, base []string) ([]string, error) {
	if p == nil {
		p = platform.Current()
	}
	if base == nil {
		base = os.Environ()
	}
	m, _, err := composedEnv(ctx, cfg, p, base)
	if err != nil {
		return nil, err
	}
	return m.Flatten(), nil
}

// lookPath resolves a bare command name against the composed PATH so
// aliases run with the environment they set up, not the caller's.
// Commands carrying a path separator run as written.
func lookPath(name, pathValue string, p platform.Platform) string {
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	exts := []string{""}
	windows := p.Name() == "windows"
	if windows {
		exts = []string{"", ".exe", ".bat", ".cmd"}
	}
	for _, dir := range strings.Split(pathValue, p.ListSep()) {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, name+ext)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if !windows && info.Mode()&0o111 == 0 {
				continue
			}
			return candidate
		}
	}
	return name
}

// Options adjust how Run spawns the alias.
type Options struct {
	// Platform defaults to the host.
	Platform platform.Platform

	// Args are appended to the alias's command line.
	Args []string

	// Dir is the child's working directory. Empty inherits ours.
	Dir string

	// Env is the base environment the composed values expand against.
	// Nil reads the current process environment.
	Env []string

	// Stdin, Stdout and Stderr default to the process's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives launch diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

func findAlias(aliases []*resolver.ComposedAlias, name string) *resolver.ComposedAlias {
	for _, alias := range aliases {
		if alias.Name == name {
			return alias
		}
	}
	return nil
}

// Run spawns the named alias with cfg's environment and blocks until
// it exits. The child's exit code is returned as-is; err is only set
// when the alias cannot be resolved or started at all.
func Run(ctx context.Context, cfg render.Config, aliasName string, opts Options) (int, error) {
	p := opts.Platform
	if p == nil {
		p = platform.Current()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	base := opts.Env
	if base == nil {
		base = os.Environ()
	}

	m, fmtr, err := composedEnv(ctx, cfg, p, base)
	if err != nil {
		return -1, err
	}

	aliases, err := cfg.AliasesFor(ctx, p.Name())
	if err != nil {
		return -1, err
	}
	alias := findAlias(aliases, aliasName)
	if alias == nil {
		return -1, errors.New(errors.ErrCodeInvalidInput, "%q is not an alias of %q", aliasName, cfg.URI())
	}

	// Scoped edits layer over the composed environment and can
	// reference it.
	if err := applyOps(m, alias.Env, fmtr, p.ListSep()); err != nil {
		return -1, err
	}

	argv := make([]string, 0, len(alias.Cmd.Args)+len(opts.Args))
	for _, arg := range alias.Cmd.Args {
		value, err := fmtr.Format(arg)
		if err != nil {
			return -1, err
		}
		argv = append(argv, value)
	}
	argv = append(argv, opts.Args...)
	if len(argv) == 0 || argv[0] == "" {
		return -1, errors.New(errors.ErrCodeInvalidInput, "alias %q of %q has no command", aliasName, cfg.URI())
	}

	pathValue, _ := m.Get("PATH")
	cmd := exec.CommandContext(ctx, lookPath(argv[0], pathValue, p))
	cmd.Args = argv
	cmd.Env = m.Flatten()
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	logger.Info("launching alias", "alias", aliasName, "uri", cfg.URI(), "cmd", strings.Join(argv, " "))
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.Wrap(errors.ErrCodeInvalidInput, err, "unable to launch %q", aliasName)
}
