package platform

import (
	"reflect"
	"testing"
)

var _ Platform = winPlatform{}
var _ Platform = linuxPlatform{}
var _ Platform = osxPlatform{}

func TestGet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{"windows", "windows", "windows", true},
		{"win32 alias", "win32", "windows", true},
		{"linux", "linux", "linux", true},
		{"osx", "osx", "osx", true},
		{"darwin alias", "darwin", "osx", true},
		{"unknown", "solaris", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Get(tt.input)
			if ok != tt.ok {
				t.Fatalf("Get(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && p.Name() != tt.expected {
				t.Errorf("Get(%q).Name() = %v, want %v", tt.input, p.Name(), tt.expected)
			}
		})
	}
}

func TestSeparators(t *testing.T) {
	if got := Windows.ListSep(); got != ";" {
		t.Errorf("Windows.ListSep() = %q, want %q", got, ";")
	}
	if got := Linux.ListSep(); got != ":" {
		t.Errorf("Linux.ListSep() = %q, want %q", got, ":")
	}
	if got := OSX.ListSep(); got != ":" {
		t.Errorf("OSX.ListSep() = %q, want %q", got, ":")
	}
	if got := Windows.PathSep(); got != `\` {
		t.Errorf("Windows.PathSep() = %q, want %q", got, `\`)
	}
	if got := Linux.PathSep(); got != "/" {
		t.Errorf("Linux.PathSep() = %q, want %q", got, "/")
	}
}

func TestEnvRef(t *testing.T) {
	if got := Windows.EnvRef("PATH"); got != "%PATH%" {
		t.Errorf("Windows.EnvRef() = %q, want %q", got, "%PATH%")
	}
	if got := Linux.EnvRef("PATH"); got != "$PATH" {
		t.Errorf("Linux.EnvRef() = %q, want %q", got, "$PATH")
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		input    string
		expected string
	}{
		{"posix plain", Linux, "hello", "'hello'"},
		{"posix single quote", Linux, "it's", `'it'\''s'`},
		{"windows plain", Windows, "hello", `"hello"`},
		{"windows embedded quote", Windows, `say "hi"`, `"say ""hi"""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.platform.Escape(tt.input); got != tt.expected {
				t.Errorf("Escape(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCygpath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		spaces   bool
		expected string
	}{
		{"drive letter", `C:\test`, false, "/C/test"},
		{"lowercase drive", `c:\test`, false, "/c/test"},
		{"nested", `C:\Program Files\app`, false, "/C/Program Files/app"},
		{"escaped spaces", `C:\Program Files\app`, true, `/C/Program\ Files/app`},
		{"unc path", `\\server\share\dir`, false, "//server/share/dir"},
		{"already posix", "/usr/local", false, "/usr/local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cygpath(tt.input, tt.spaces); got != tt.expected {
				t.Errorf("Cygpath(%q, %v) = %q, want %q", tt.input, tt.spaces, got, tt.expected)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		input    string
		expected string
	}{
		{"windows lowercase drive", Windows, `c:\apps\maya`, `C:\apps\maya`},
		{"windows already upper", Windows, `C:\apps\maya`, `C:\apps\maya`},
		{"windows relative untouched", Windows, `apps\maya`, `apps\maya`},
		{"windows unc untouched", Windows, `\\server\share`, `\\server\share`},
		{"linux untouched", Linux, "/usr/local", "/usr/local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.platform, tt.input); got != tt.expected {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCollapsePaths(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		values   []string
		ext      string
		key      string
		expected string
	}{
		{
			name:     "linux join",
			platform: Linux,
			values:   []string{"/a", "/b"},
			ext:      ".sh",
			key:      "PYTHONPATH",
			expected: "/a:/b",
		},
		{
			name:     "windows join",
			platform: Windows,
			values:   []string{`C:\a`, `C:\b`},
			ext:      ".bat",
			key:      "PATH",
			expected: `C:\a;C:\b`,
		},
		{
			name:     "shwin PATH uses cygpath",
			platform: Windows,
			values:   []string{`C:\a`, `C:\b`},
			ext:      ".sh",
			key:      "PATH",
			expected: "/C/a:/C/b",
		},
		{
			name:     "shwin non-PATH keeps windows form",
			platform: Windows,
			values:   []string{`C:\a`, `C:\b`},
			ext:      ".sh",
			key:      "PYTHONPATH",
			expected: `C:\a;C:\b`,
		},
		{
			name:     "single value unchanged",
			platform: Windows,
			values:   []string{`C:\only`},
			ext:      ".sh",
			key:      "PATH",
			expected: `C:\only`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollapsePaths(tt.platform, tt.values, tt.ext, tt.key)
			if got != tt.expected {
				t.Errorf("CollapsePaths() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExpandPaths(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		input    string
		expected []string
	}{
		{"linux split", Linux, "/a:/b", []string{"/a", "/b"}},
		{"windows split", Windows, `C:\a;C:\b`, []string{`C:\a`, `C:\b`}},
		{"single windows path on linux", Linux, `C:\a\b`, []string{`C:\a\b`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandPaths(tt.platform, tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExpandPaths(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
