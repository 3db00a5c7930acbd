package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/platform"
)

// Sh renders for bash. On windows the shwin language is used so path
// lists keep the `:` separator bash expects there.
type Sh struct{}

func (Sh) Name() string { return "sh" }

func (Sh) Language(p platform.Platform) env.Language {
	if p.Name() == "windows" {
		return env.ShWin
	}
	return env.Sh
}

func (Sh) Comment(buf *bytes.Buffer, text string) {
	buf.WriteString("# " + text + "\n")
}

func (Sh) Prefix(buf *bytes.Buffer)  {}
func (Sh) Postfix(buf *bytes.Buffer) {}

func (Sh) Prompt(buf *bytes.Buffer, uri string) {
	fmt.Fprintf(buf, "export PS1=\"[%s] $PS1\"\n", uri)
}

func (Sh) SetEnv(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "export %s=\"%s\"\n", key, value)
}

func (Sh) UnsetEnv(buf *bytes.Buffer, key string) {
	fmt.Fprintf(buf, "unset %s\n", key)
}

func (s Sh) Alias(buf *bytes.Buffer, a Alias) {
	body := s.JoinArgv(a.Argv)
	if len(a.Env) == 0 {
		fmt.Fprintf(buf, "function %s() { %s \"$@\"; };export -f %s;\n", a.Name, body, a.Name)
		return
	}

	// Save each touched variable along with whether it existed, apply
	// the scoped edits, run the command, then restore. A variable that
	// was unset before goes back to unset, not empty.
	var parts []string
	for _, op := range a.Env {
		parts = append(parts,
			fmt.Sprintf("local _hab_o_%s=\"${%s-}\"", op.Key, op.Key),
			fmt.Sprintf("local _hab_x_%s=\"${%s+x}\"", op.Key, op.Key))
		if op.Op == OpUnset {
			parts = append(parts, "unset "+op.Key)
		} else {
			parts = append(parts, fmt.Sprintf("export %s=\"%s\"", op.Key, op.Value))
		}
	}
	parts = append(parts, body+" \"$@\"", "local _hab_r=$?")
	for _, op := range a.Env {
		parts = append(parts, fmt.Sprintf(
			"if [ -n \"${_hab_x_%s}\" ]; then export %s=\"${_hab_o_%s}\"; else unset %s; fi",
			op.Key, op.Key, op.Key, op.Key))
	}
	parts = append(parts, "return $_hab_r")
	fmt.Fprintf(buf, "function %s() { %s; };export -f %s;\n", a.Name, strings.Join(parts, "; "), a.Name)
}

func (s Sh) RunAlias(buf *bytes.Buffer, a Alias, args []string) {
	line := a.Name
	if len(args) > 0 {
		line += " " + s.JoinArgv(args)
	}
	buf.WriteString(line + "\n")
}

func (Sh) Launch(buf *bytes.Buffer, configScript string) {
	fmt.Fprintf(buf, "bash --init-file \"%s\"\n", configScript)
}

func (Sh) Exit(buf *bytes.Buffer) {
	buf.WriteString("exit\n")
}

func (Sh) Escape(value string) string {
	quoted, err := syntax.Quote(value, syntax.LangBash)
	if err != nil {
		// Only strings bash cannot represent at all end up here.
		return strconv.Quote(value)
	}
	return quoted
}

func (s Sh) JoinArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = s.Escape(arg)
	}
	return strings.Join(quoted, " ")
}
