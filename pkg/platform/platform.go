// Package platform centralizes cross-platform behavior for hab.
//
// Every part of the engine that cares about separators, env-var reference
// syntax, or path normalization goes through a [Platform] value instead of
// touching runtime.GOOS directly. Tests inject a different Platform to
// exercise windows behavior on linux and vice versa, and the freeze codec
// runs the composer once per supported Platform.
package platform

import (
	"runtime"
	"strings"
)

// Platform is the interface hab uses to handle platform specific code.
//
// Implementations are stateless; the three concrete platforms are exposed
// as package-level singletons ([Windows], [Linux], [OSX]).
type Platform interface {
	// Name returns the hab name for this platform: "windows", "linux" or "osx".
	Name() string

	// PathSep returns the directory separator: `\` on windows, `/` elsewhere.
	PathSep() string

	// ListSep returns the separator used when joining env-var lists such as
	// PATH: `;` on windows, `:` elsewhere.
	ListSep() string

	// EnvRef returns the default shell syntax for referencing an environment
	// variable: `%NAME%` on windows, `$NAME` elsewhere.
	EnvRef(name string) string

	// Escape quotes a value for the platform's default shell.
	Escape(value string) string

	// DefaultExt returns the default script extension: ".bat" on windows,
	// ".sh" elsewhere.
	DefaultExt() string
}

type linuxPlatform struct{}

func (linuxPlatform) Name() string    { return "linux" }
func (linuxPlatform) PathSep() string { return "/" }
func (linuxPlatform) ListSep() string { return ":" }

func (linuxPlatform) EnvRef(name string) string {
	return "$" + name
}

func (linuxPlatform) Escape(value string) string {
	return posixEscape(value)
}

func (linuxPlatform) DefaultExt() string { return ".sh" }

type osxPlatform struct{}

func (osxPlatform) Name() string    { return "osx" }
func (osxPlatform) PathSep() string { return "/" }
func (osxPlatform) ListSep() string { return ":" }

func (osxPlatform) EnvRef(name string) string {
	return "$" + name
}

func (osxPlatform) Escape(value string) string {
	return posixEscape(value)
}

func (osxPlatform) DefaultExt() string { return ".sh" }

type winPlatform struct{}

func (winPlatform) Name() string    { return "windows" }
func (winPlatform) PathSep() string { return `\` }
func (winPlatform) ListSep() string { return ";" }

func (winPlatform) EnvRef(name string) string {
	return "%" + name + "%"
}

func (winPlatform) Escape(value string) string {
	// cmd.exe style: double quotes with embedded quotes doubled.
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func (winPlatform) DefaultExt() string { return ".bat" }

// The three platforms hab supports.
var (
	Windows Platform = winPlatform{}
	Linux   Platform = linuxPlatform{}
	OSX     Platform = osxPlatform{}
)

var byName = map[string]Platform{
	"windows": Windows,
	"win32":   Windows,
	"linux":   Linux,
	"osx":     OSX,
	"darwin":  OSX,
}

// Get returns the platform registered under name. Aliases used by other
// tools ("win32", "darwin") are accepted.
func Get(name string) (Platform, bool) {
	p, ok := byName[name]
	return p, ok
}

// Known reports whether name is a recognized platform name or alias.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// Wildcard is the section key that applies to every platform in an
// os_specific environment block.
const Wildcard = "*"

// Current returns the platform hab is running on.
func Current() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return OSX
	default:
		return Linux
	}
}

// Names returns the default supported platform names in site order.
func Names() []string {
	return []string{"windows", "osx", "linux"}
}

// posixEscape wraps value in single quotes, closing and reopening the
// quote around any embedded single quote.
func posixEscape(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
