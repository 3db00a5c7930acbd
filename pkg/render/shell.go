package render

import (
	"bytes"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// Env op kinds. Prepends and appends are already collapsed into a final
// string by the time a script is written, so only these two remain.
const (
	OpSet   = "set"
	OpUnset = "unset"
)

// EnvOp is one environment edit ready to write. Value is formatted for
// the target shell, with {NAME!e} references and {;} separators already
// expanded.
type EnvOp struct {
	Op    string
	Key   string
	Value string
}

// Alias is one alias prepared for a shell. Argv is formatted but not
// yet escaped, Env holds the scoped edits applied only while the alias
// runs.
type Alias struct {
	Name string
	Argv []string
	Env  []EnvOp
}

// Shell writes the script fragments for one target shell.
// Implementations control syntax only; the ordering of sections lives
// in [Build].
type Shell interface {
	// Name identifies the shell in logs and errors.
	Name() string
	// Language selects how {NAME!e} and {;} expand for this shell on
	// the given platform.
	Language(p platform.Platform) env.Language
	// Comment writes a single comment line.
	Comment(buf *bytes.Buffer, text string)
	// Prefix and Postfix wrap the whole script. Most shells need
	// neither; batch toggles echo.
	Prefix(buf *bytes.Buffer)
	Postfix(buf *bytes.Buffer)
	// Prompt marks the active URI in the shell prompt.
	Prompt(buf *bytes.Buffer, uri string)
	// SetEnv and UnsetEnv write one environment edit.
	SetEnv(buf *bytes.Buffer, key, value string)
	UnsetEnv(buf *bytes.Buffer, key string)
	// Alias defines one alias. When a.Env is non-empty the generated
	// wrapper saves, applies and restores each touched variable.
	Alias(buf *bytes.Buffer, a Alias)
	// RunAlias invokes an already defined alias with extra arguments.
	RunAlias(buf *bytes.Buffer, a Alias, args []string)
	// Launch writes the one line wrapper that opens a new shell
	// sourcing the config script.
	Launch(buf *bytes.Buffer, configScript string)
	// Exit closes the shell once the launched alias returns.
	Exit(buf *bytes.Buffer)
	// Escape makes one value safe to place in a command line.
	Escape(value string) string
	// JoinArgv escapes and joins a command line.
	JoinArgv(argv []string) string
}

// ForExt returns the shell for a script extension. The empty extension
// counts as a .sh file.
func ForExt(ext string) (Shell, error) {
	switch ext {
	case ".sh", "":
		return Sh{}, nil
	case ".ps1":
		return PS{}, nil
	case ".bat", ".cmd":
		return Batch{}, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "no renderer for script extension %q", ext)
}

var (
	_ Shell = Sh{}
	_ Shell = PS{}
	_ Shell = Batch{}
)
