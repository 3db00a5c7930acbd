package env

import (
	"os"
	"sort"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// Language identifies the scripting language values are formatted for.
type Language string

const (
	// Batch is the windows command prompt (.bat, .cmd).
	Batch Language = "batch"
	// PS is PowerShell (.ps1).
	PS Language = "ps"
	// Sh is bash on linux and mac (.sh).
	Sh Language = "sh"
	// ShWin is bash on windows. Same reference syntax as Sh but paths
	// are cygpath-converted by the renderer.
	ShWin Language = "shwin"
	// Preserve keeps {NAME!e} and {;} tokens intact so a later format
	// call can target a concrete language. Values are composed and
	// frozen in this form.
	Preserve Language = "preserve"
)

// LanguageFromExt maps a script extension to its language. The empty
// extension counts as a .sh file.
func LanguageFromExt(ext string, p platform.Platform) (Language, error) {
	switch ext {
	case ".bat", ".cmd":
		return Batch, nil
	case ".ps1":
		return PS, nil
	case ".sh", "":
		if p.Name() == "windows" {
			return ShWin, nil
		}
		return Sh, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "no script language found for extension %q", ext)
}

// PreserveRef returns the delayed-format reference for an environment
// variable. A concrete language expands it to shell syntax.
func PreserveRef(name string) string {
	return "{" + name + "!e}"
}

// SepToken is the delayed-format list separator, expanded to `;` or `:`
// once a concrete language is chosen.
const SepToken = "{;}"

// IsReservedVariableName reports whether name is a format variable hab
// defines itself. User variables may not shadow these.
func IsReservedVariableName(name string) bool {
	return name == "relative_root" || name == ";"
}

// CheckVariables validates a user variables map from a config.
func CheckVariables(vars map[string]string) error {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if IsReservedVariableName(name) {
			return errors.New(errors.ErrCodeReservedVariable, "%q is a reserved variable name", name)
		}
	}
	return nil
}

// Formatter expands format tokens in config values.
//
// Tokens:
//
//	{;}        list separator for the target language
//	{NAME!e}   environment variable reference in the target language,
//	           or the variable's current value when Expand is set
//	{name}     user variable from Vars, falling back to Lookup
//	{{ and }}  literal braces
type Formatter struct {
	// Language selects the expansion for {;} and {NAME!e}.
	Language Language

	// Expand substitutes {NAME!e} with the variable's looked-up value
	// instead of emitting a shell reference.
	Expand bool

	// Vars are the user variables available to {name} tokens. They take
	// precedence over Lookup.
	Vars map[string]string

	// Lookup resolves environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// NewFormatter returns a formatter for the given language with no user
// variables.
func NewFormatter(lang Language) *Formatter {
	return &Formatter{Language: lang}
}

// EnvRef returns the reference syntax for an environment variable in
// the formatter's language.
func (f *Formatter) EnvRef(name string) string {
	switch f.Language {
	case Batch:
		return "%" + name + "%"
	case PS:
		return "$env:" + name
	case Sh, ShWin:
		return "$" + name
	}
	return PreserveRef(name)
}

// PathSep returns the env-var list separator for the formatter's
// language.
func (f *Formatter) PathSep() string {
	switch f.Language {
	case Batch, PS:
		return ";"
	case Sh, ShWin:
		return ":"
	}
	return SepToken
}

// Format expands all tokens in s.
func (f *Formatter) Format(s string) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}
	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", errors.New(errors.ErrCodeInvalidInput, "single '{' encountered in format string %q", s)
			}
			expanded, err := f.expandToken(s[i+1 : i+end])
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				out.WriteByte('}')
				i += 2
				continue
			}
			return "", errors.New(errors.ErrCodeInvalidInput, "single '}' encountered in format string %q", s)
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// FormatList expands all tokens in each element of values.
func (f *Formatter) FormatList(values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		formatted, err := f.Format(v)
		if err != nil {
			return nil, err
		}
		out[i] = formatted
	}
	return out, nil
}

func (f *Formatter) expandToken(token string) (string, error) {
	if token == ";" {
		return f.PathSep(), nil
	}
	if name, ok := strings.CutSuffix(token, "!e"); ok {
		if f.Expand {
			return f.lookupValue(name)
		}
		return f.EnvRef(name), nil
	}
	if strings.Contains(token, "!") {
		return "", errors.New(errors.ErrCodeInvalidInput, "unsupported conversion in format token %q", token)
	}
	if value, ok := f.Vars[token]; ok {
		return value, nil
	}
	return f.lookupValue(token)
}

func (f *Formatter) lookupValue(name string) (string, error) {
	lookup := f.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(name); ok {
		return value, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "undefined format variable %q", name)
}
