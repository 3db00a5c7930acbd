package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/platform"
)

// Batch renders for the windows command prompt.
type Batch struct{}

func (Batch) Name() string { return "batch" }

func (Batch) Language(platform.Platform) env.Language { return env.Batch }

func (Batch) Comment(buf *bytes.Buffer, text string) {
	buf.WriteString("REM " + text + "\n")
}

func (Batch) Prefix(buf *bytes.Buffer) {
	buf.WriteString("@ECHO OFF\n")
}

func (Batch) Postfix(buf *bytes.Buffer) {
	buf.WriteString("@ECHO ON\n")
}

func (Batch) Prompt(buf *bytes.Buffer, uri string) {
	fmt.Fprintf(buf, "set \"PROMPT=[%s] $P$G\"\n", uri)
}

func (Batch) SetEnv(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "set \"%s=%s\"\n", key, value)
}

func (Batch) UnsetEnv(buf *bytes.Buffer, key string) {
	fmt.Fprintf(buf, "set \"%s=\"\n", key)
}

func (b Batch) Alias(buf *bytes.Buffer, a Alias) {
	fmt.Fprintf(buf, "C:\\Windows\\System32\\doskey.exe %s=%s $*\n", a.Name, b.command(a))
}

// command builds the macro body. Scoped edits run inside `cmd /s /c` so
// they die with the subshell; doskey has no way to restore variables in
// the outer prompt.
func (b Batch) command(a Alias) string {
	body := b.JoinArgv(a.Argv)
	if len(a.Env) == 0 {
		return body
	}
	var parts []string
	for _, op := range a.Env {
		if op.Op == OpUnset {
			parts = append(parts, fmt.Sprintf("set \"%s=\"", op.Key))
		} else {
			parts = append(parts, fmt.Sprintf("set \"%s=%s\"", op.Key, op.Value))
		}
	}
	parts = append(parts, body)
	return "cmd /s /c \"" + strings.Join(parts, " & ") + "\""
}

// RunAlias writes the command itself; a doskey macro cannot be called
// from inside a batch script.
func (b Batch) RunAlias(buf *bytes.Buffer, a Alias, args []string) {
	line := b.command(a)
	if len(args) > 0 {
		line += " " + b.JoinArgv(args)
	}
	buf.WriteString(line + "\n")
}

func (Batch) Launch(buf *bytes.Buffer, configScript string) {
	fmt.Fprintf(buf, "cmd.exe /k \"%s\"\n", configScript)
}

func (Batch) Exit(buf *bytes.Buffer) {
	buf.WriteString("exit\n")
}

// Escape quotes an argument the way CommandLineToArgvW expects,
// doubling trailing backslashes so a closing quote survives.
func (Batch) Escape(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"") {
		return value
	}
	var sb strings.Builder
	sb.WriteByte('"')
	slashes := 0
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case '\\':
			slashes++
			sb.WriteByte(c)
		case '"':
			sb.WriteString(strings.Repeat("\\", slashes+1))
			slashes = 0
			sb.WriteByte(c)
		default:
			slashes = 0
			sb.WriteByte(c)
		}
	}
	sb.WriteString(strings.Repeat("\\", slashes))
	sb.WriteByte('"')
	return sb.String()
}

func (b Batch) JoinArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = b.Escape(arg)
	}
	return strings.Join(quoted, " ")
}
