package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
	"github.com/talusfx/hab/pkg/resolver"
)

// Script base names inside the scratch dir. The wrapper that invoked
// hab sources whichever exists, preferring the launch script.
const (
	ConfigBaseName = "hab_config"
	LaunchBaseName = "hab_launch"
)

// Config is the surface a resolution exposes for rendering. Both a
// live FlatConfig and a replayed UnfrozenConfig satisfy it.
type Config interface {
	URI() string
	EnvironmentFor(ctx context.Context, platformName string) (map[string][]string, error)
	AliasesFor(ctx context.Context, platformName string) ([]*resolver.ComposedAlias, error)
	FreezeString(ctx context.Context) (string, error)
}

var (
	_ Config = (*resolver.FlatConfig)(nil)
	_ Config = (*resolver.UnfrozenConfig)(nil)
)

// ScriptOptions controls what Build produces.
type ScriptOptions struct {
	// Dir is the scratch directory the script paths point into.
	Dir string

	// Ext selects the shell. Empty means the platform's default
	// extension.
	Ext string

	// Platform the scripts target. Defaults to the current platform.
	Platform platform.Platform

	// Launch names an alias to run at the end of the config script.
	Launch string

	// Args are forwarded to the launched alias.
	Args []string

	// Exit closes the launched shell once the alias returns. Only
	// honored together with LaunchScript, matching `hab launch`.
	Exit bool

	// LaunchScript also produces the hab_launch wrapper that opens a
	// new shell sourcing the config script.
	LaunchScript bool
}

// File is one generated script and where it belongs.
type File struct {
	Path string
	Body []byte
}

// Build renders the scripts for cfg without touching the filesystem.
func Build(ctx context.Context, cfg Config, opts ScriptOptions) ([]File, error) {
	p := opts.Platform
	if p == nil {
		p = platform.Current()
	}
	ext := opts.Ext
	if ext == "" {
		ext = p.DefaultExt()
	}
	shell, err := ForExt(ext)
	if err != nil {
		return nil, err
	}
	lang := shell.Language(p)
	fmtr := env.NewFormatter(lang)

	ops, err := EnvOps(ctx, cfg, p.Name(), fmtr)
	if err != nil {
		return nil, err
	}

	composed, err := cfg.AliasesFor(ctx, p.Name())
	if err != nil {
		return nil, err
	}
	aliases := make([]Alias, 0, len(composed))
	for _, alias := range composed {
		prepared, err := prepareAlias(alias, fmtr)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, prepared)
	}

	var run *Alias
	if opts.Launch != "" {
		for i := range aliases {
			if aliases[i].Name == opts.Launch {
				run = &aliases[i]
				break
			}
		}
		if run == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"%q is not an alias of %q", opts.Launch, cfg.URI())
		}
	}

	configPath := filepath.Join(opts.Dir, ConfigBaseName+ext)
	files := []File{{
		Path: configPath,
		Body: configScript(shell, cfg.URI(), ops, aliases, run, opts.Args, opts.Exit && opts.LaunchScript),
	}}
	if opts.LaunchScript {
		var buf bytes.Buffer
		shell.Launch(&buf, configPath)
		files = append(files, File{
			Path: filepath.Join(opts.Dir, LaunchBaseName+ext),
			Body: buf.Bytes(),
		})
	}
	return files, nil
}

// EnvOps returns the ordered environment edits for one platform.
// HAB_URI leads, HAB_FREEZE is computed and injected second, and the
// remaining variables follow sorted by name. A variable whose composed
// value is empty becomes an unset.
func EnvOps(ctx context.Context, cfg Config, platformName string, fmtr *env.Formatter) ([]EnvOp, error) {
	composed, err := cfg.EnvironmentFor(ctx, platformName)
	if err != nil {
		return nil, err
	}
	frozen, err := cfg.FreezeString(ctx)
	if err != nil {
		return nil, err
	}

	ops := make([]EnvOp, 0, len(composed)+1)
	if uri, ok := composed[env.URIVar]; ok {
		op, err := envOp(env.URIVar, uri, fmtr)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	ops = append(ops, EnvOp{Op: OpSet, Key: env.FreezeVar, Value: frozen})

	keys := make([]string, 0, len(composed))
	for key := range composed {
		if key == env.URIVar || key == env.FreezeVar {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		op, err := envOp(key, composed[key], fmtr)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func envOp(key string, items []string, fmtr *env.Formatter) (EnvOp, error) {
	if len(items) == 0 {
		return EnvOp{Op: OpUnset, Key: key}, nil
	}
	joined := strings.Join(items, valueSep(key, fmtr))
	formatted, err := fmtr.Format(joined)
	if err != nil {
		return EnvOp{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "formatting %s for the script", key)
	}
	return EnvOp{Op: OpSet, Key: key, Value: formatted}, nil
}

// valueSep picks the separator joining a value list. Bash on windows
// keeps `;` for everything except PATH, which cygwin rewrites to the
// `:` form on its own.
func valueSep(key string, fmtr *env.Formatter) string {
	if fmtr.Language == env.ShWin && key != "PATH" {
		return ";"
	}
	return fmtr.PathSep()
}

func prepareAlias(alias *resolver.ComposedAlias, fmtr *env.Formatter) (Alias, error) {
	argv, err := fmtr.FormatList(alias.Cmd.Args)
	if err != nil {
		return Alias{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "formatting alias %q for the script", alias.Name)
	}
	out := Alias{Name: alias.Name, Argv: argv}

	keys := make([]string, 0, len(alias.Env))
	for key := range alias.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		op, err := envOp(key, alias.Env[key], fmtr)
		if err != nil {
			return Alias{}, err
		}
		out.Env = append(out.Env, op)
	}
	return out, nil
}

func configScript(shell Shell, uri string, ops []EnvOp, aliases []Alias, run *Alias, args []string, exit bool) []byte {
	var buf bytes.Buffer
	shell.Prefix(&buf)

	shell.Comment(&buf, "Customizing the prompt")
	shell.Prompt(&buf, uri)
	buf.WriteString("\n")

	if len(ops) > 0 {
		shell.Comment(&buf, "Setting environment variables:")
		for _, op := range ops {
			if op.Op == OpUnset {
				shell.UnsetEnv(&buf, op.Key)
			} else {
				shell.SetEnv(&buf, op.Key, op.Value)
			}
		}
	}

	if len(aliases) > 0 {
		if len(ops) > 0 {
			buf.WriteString("\n")
		}
		shell.Comment(&buf, "Creating aliases to launch programs:")
		for _, a := range aliases {
			shell.Alias(&buf, a)
		}
	}

	if run != nil {
		buf.WriteString("\n")
		shell.Comment(&buf, "Run the requested command")
		shell.RunAlias(&buf, *run, args)
	}

	if exit {
		buf.WriteString("\n")
		shell.Exit(&buf)
	}

	shell.Postfix(&buf)
	return buf.Bytes()
}

// Write writes each script to disk.
func Write(files []File) error {
	for _, f := range files {
		if err := os.WriteFile(f.Path, f.Body, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "writing script %q", f.Path)
		}
	}
	return nil
}

// Dump prints each script annotated with its would-be path instead of
// writing it.
func Dump(w io.Writer, files []File) error {
	for i, f := range files {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, banner(f.Path)); err != nil {
			return err
		}
		if _, err := w.Write(f.Body); err != nil {
			return err
		}
	}
	return nil
}

func banner(path string) string {
	label := " " + path + " "
	if pad := 80 - len(label); pad > 1 {
		left := pad / 2
		return strings.Repeat("-", left) + label + strings.Repeat("-", pad-left)
	}
	return "--" + label + "--"
}
