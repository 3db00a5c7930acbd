package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/platform"
)

// PS renders for PowerShell.
type PS struct{}

func (PS) Name() string { return "ps" }

func (PS) Language(platform.Platform) env.Language { return env.PS }

func (PS) Comment(buf *bytes.Buffer, text string) {
	buf.WriteString("# " + text + "\n")
}

func (PS) Prefix(buf *bytes.Buffer)  {}
func (PS) Postfix(buf *bytes.Buffer) {}

func (PS) Prompt(buf *bytes.Buffer, uri string) {
	fmt.Fprintf(buf, "function PROMPT {'[%s] ' + $(Get-Location) + '>'}\n", uri)
}

func (PS) SetEnv(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "$env:%s = \"%s\"\n", key, value)
}

func (PS) UnsetEnv(buf *bytes.Buffer, key string) {
	fmt.Fprintf(buf, "Remove-Item Env:\\%s -ErrorAction SilentlyContinue\n", key)
}

func (p PS) Alias(buf *bytes.Buffer, a Alias) {
	body := p.JoinArgv(a.Argv)
	if len(a.Env) == 0 {
		fmt.Fprintf(buf, "function %s() { %s $args }\n", a.Name, body)
		return
	}

	// $env: reads $null for an unset variable, which is how the
	// restore knows to remove it again instead of writing "".
	var parts []string
	for _, op := range a.Env {
		parts = append(parts, fmt.Sprintf("$_habOld_%s = $env:%s", op.Key, op.Key))
		if op.Op == OpUnset {
			parts = append(parts, fmt.Sprintf("Remove-Item Env:\\%s -ErrorAction SilentlyContinue", op.Key))
		} else {
			parts = append(parts, fmt.Sprintf("$env:%s = \"%s\"", op.Key, op.Value))
		}
	}
	parts = append(parts, body+" $args")
	for _, op := range a.Env {
		parts = append(parts, fmt.Sprintf(
			"if ($null -ne $_habOld_%s) { $env:%s = $_habOld_%s } else { Remove-Item Env:\\%s -ErrorAction SilentlyContinue }",
			op.Key, op.Key, op.Key, op.Key))
	}
	fmt.Fprintf(buf, "function %s() { %s }\n", a.Name, strings.Join(parts, "; "))
}

func (p PS) RunAlias(buf *bytes.Buffer, a Alias, args []string) {
	line := a.Name
	if len(args) > 0 {
		line += " " + p.JoinArgv(args)
	}
	buf.WriteString(line + "\n")
}

func (PS) Launch(buf *bytes.Buffer, configScript string) {
	fmt.Fprintf(buf, "powershell.exe -NoExit -ExecutionPolicy Unrestricted . \"%s\"\n", configScript)
}

func (PS) Exit(buf *bytes.Buffer) {
	buf.WriteString("exit\n")
}

// Escape backtick-escapes spaces, which keeps paths callable without
// wrapping them in quotes that would suppress the call operator.
func (PS) Escape(value string) string {
	return strings.ReplaceAll(value, " ", "` ")
}

func (p PS) JoinArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = p.Escape(arg)
	}
	return strings.Join(quoted, " ")
}
