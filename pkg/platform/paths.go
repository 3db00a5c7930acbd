package platform

import (
	"strings"
)

// ForwardSlash converts a path to use forward slashes regardless of
// platform. Config values written into JSON and freezes always use this
// form so they stay comparable across hosts.
func ForwardSlash(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// Cygpath converts a windows path to a cygwin/git-bash compatible path,
// e.g. `C:\test` becomes `/C/test`. UNC paths only need their backslashes
// flipped. When escapeSpaces is set, a backslash is added before each
// space so the result can be embedded in a .sh script unquoted.
//
// This does not shell out to cygpath.exe so it works even when the
// current shell has no cygwin on PATH.
func Cygpath(path string, escapeSpaces bool) string {
	p := strings.ReplaceAll(path, `\`, "/")
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		p = "/" + string(p[0]) + p[2:]
	}
	if escapeSpaces {
		p = strings.ReplaceAll(p, " ", `\ `)
	}
	return p
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// NormalizePath applies platform normalization to a path. On windows the
// drive letter is resolved to uppercase so paths compare consistently;
// other platforms return the path unchanged. Relative and UNC paths are
// never modified.
func NormalizePath(p Platform, path string) string {
	if p.Name() != "windows" {
		return path
	}
	if len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0]) {
		return strings.ToUpper(path[:1]) + path[1:]
	}
	return path
}

// CollapsePaths joins a list of values into a single env-var string for
// the platform. ext and key apply the shwin special case: cygwin converts
// the PATH env var (and only PATH) to linux form, so windows values headed
// for a .sh script's PATH are cygpath-converted and joined with `:`.
func CollapsePaths(p Platform, values []string, ext, key string) string {
	if len(values) == 1 {
		return values[0]
	}
	sep := PathSepForExt(p, ext, key)
	if p.Name() == "windows" && shExt(ext) && key == "PATH" {
		converted := make([]string, len(values))
		for i, v := range values {
			converted[i] = Cygpath(v, false)
		}
		return strings.Join(converted, sep)
	}
	return strings.Join(values, sep)
}

// ExpandPaths splits an env-var string into its component paths using the
// platform list separator. A lone windows path on a `:` separated
// platform is returned whole so drive letters do not get split.
func ExpandPaths(p Platform, value string) []string {
	sep := p.ListSep()
	if sep == ":" && isWindowsSinglePath(value) {
		return []string{value}
	}
	return strings.Split(value, sep)
}

// PathSepForExt returns the list separator to use when writing the given
// env var into a script with the given extension. This only differs from
// ListSep for PATH in windows .sh scripts.
func PathSepForExt(p Platform, ext, key string) string {
	if p.Name() == "windows" && shExt(ext) && key == "PATH" {
		return ":"
	}
	return p.ListSep()
}

func shExt(ext string) bool {
	return ext == ".sh" || ext == ""
}

// isWindowsSinglePath reports whether value looks like exactly one windows
// file path (`C:\dir\file` or `C:/dir/file`).
func isWindowsSinglePath(value string) bool {
	if len(value) < 3 || value[1] != ':' || !isDriveLetter(value[0]) {
		return false
	}
	if value[2] != '\\' && value[2] != '/' {
		return false
	}
	return !strings.ContainsAny(value[2:], ":;")
}
