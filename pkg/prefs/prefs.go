// Package prefs persists a user's last chosen URI between sessions.
//
// Prefs live in a small JSON file in the platform's config folder. A
// site opts in with the prefs_default setting and can expire saved
// URIs with prefs_uri_timeout. Commands accept "-" in place of a URI
// to reuse the saved value.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
	"github.com/talusfx/hab/pkg/site"
)

// FileName is the prefs file name inside the config folder.
const FileName = ".hab_user_prefs.json"

// Keys stored in the prefs file.
const (
	uriKey     = "uri"
	changedKey = "uri_last_changed"
)

// timeFormats are accepted when parsing uri_last_changed. Files
// written by older tooling carry isoformat stamps without a zone.
var timeFormats = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"}

// DefaultPath returns the prefs file location for a platform. Linux
// honors XDG_CONFIG_HOME, windows uses LOCALAPPDATA and mac keeps
// preferences under ~/Library.
func DefaultPath(p platform.Platform) (string, error) {
	if p == nil {
		p = platform.Current()
	}
	var dir string
	switch p.Name() {
	case "windows":
		dir = os.Getenv("LOCALAPPDATA")
	case "osx":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "cannot locate the home folder")
		}
		dir = filepath.Join(home, "Library", "Preferences")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", errors.Wrap(errors.ErrCodeInternal, err, "cannot locate the home folder")
			}
			dir = filepath.Join(home, ".config")
		}
	}
	if dir == "" {
		return "", errors.New(errors.ErrCodeInternal, "no config folder is defined for %s", p.Name())
	}
	return filepath.Join(dir, FileName), nil
}

// SavedURI is the result of checking the prefs file for a URI.
type SavedURI struct {
	// URI is the stored value, kept even when it has timed out so
	// error messages can name it.
	URI string

	// Saved is when the URI was last written. Zero when the file has
	// no readable timestamp.
	Saved time.Time

	// TimedOut is set when prefs_uri_timeout has elapsed since Saved.
	TimedOut bool
}

// Fresh reports whether the saved URI exists and has not expired.
func (s SavedURI) Fresh() bool {
	return s.URI != "" && !s.TimedOut
}

// Prefs reads and writes the user prefs file for one site.
type Prefs struct {
	// Site supplies prefs_default and prefs_uri_timeout.
	Site *site.Site

	// Logger receives load diagnostics. Defaults to log.Default().
	Logger *log.Logger

	// Path is the prefs file. Defaults to DefaultPath for the site's
	// platform.
	Path string

	override *bool
	now      func() time.Time
}

func (p *Prefs) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

// New builds prefs for a loaded site.
func New(s *site.Site, logger *log.Logger) *Prefs {
	if logger == nil {
		logger = log.Default()
	}
	p := &Prefs{Site: s, Logger: logger, now: time.Now}
	if path, err := DefaultPath(s.Platform()); err == nil {
		p.Path = path
	}
	return p
}

// mode is the site's stance on prefs.
type mode int

const (
	// modeDisabled hides the feature entirely. Flags cannot turn it
	// back on.
	modeDisabled mode = iota
	// modeOff defaults prefs off but lets --prefs enable them.
	modeOff
	// modeOn defaults prefs on but lets --no-prefs disable them.
	modeOn
)

func (p *Prefs) siteMode() mode {
	raw, ok := p.Site.Get("prefs_default")
	if !ok {
		return modeDisabled
	}
	// Sites that list every setting wrap the value in a one element
	// list.
	if list, isList := raw.([]any); isList {
		if len(list) == 0 {
			return modeDisabled
		}
		raw = list[0]
	}
	switch v := raw.(type) {
	case bool:
		if v {
			return modeOn
		}
		return modeOff
	case string:
		switch v {
		case "--prefs":
			return modeOn
		case "--no-prefs":
			return modeOff
		}
	}
	return modeDisabled
}

// Hidden reports whether the site turned prefs off outright. Hidden
// prefs ignore SetEnabled.
func (p *Prefs) Hidden() bool {
	return p.siteMode() == modeDisabled
}

// SetEnabled overrides the site default, normally from the --prefs
// and --no-prefs flags.
func (p *Prefs) SetEnabled(enabled bool) {
	p.override = &enabled
}

// Enabled reports whether prefs are read and written.
func (p *Prefs) Enabled() bool {
	m := p.siteMode()
	if m == modeDisabled {
		return false
	}
	if p.override != nil {
		return *p.override
	}
	return m == modeOn
}

// Timeout returns how long a saved URI stays fresh, or zero when the
// site never expires them.
func (p *Prefs) Timeout() time.Duration {
	seconds := p.Site.Int("prefs_uri_timeout", 0)
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Load reads the prefs file. A missing file is an empty doc and a
// corrupt one is ignored with a warning so a bad write cannot wedge
// every hab command.
func (p *Prefs) Load() map[string]any {
	doc := map[string]any{}
	if p.Path == "" {
		return doc
	}
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.Logger.Warn("unable to read user prefs", "path", p.Path, "error", err)
		}
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		p.Logger.Warn("ignoring corrupt user prefs", "path", p.Path, "error", err)
		return map[string]any{}
	}
	return doc
}

// Check reads the saved URI and whether it is still fresh. The zero
// value comes back when prefs are disabled or nothing is saved.
func (p *Prefs) Check() SavedURI {
	if !p.Enabled() {
		return SavedURI{}
	}
	doc := p.Load()
	uri, _ := doc[uriKey].(string)
	if uri == "" {
		return SavedURI{}
	}
	saved := SavedURI{URI: uri}
	if stamp, ok := doc[changedKey].(string); ok {
		saved.Saved = p.parseStamp(stamp)
	}
	if timeout := p.Timeout(); timeout > 0 && !saved.Saved.IsZero() {
		if p.clock().Sub(saved.Saved) > timeout {
			p.Logger.Info("saved URI has expired", "uri", uri, "path", p.Path)
			saved.TimedOut = true
		}
	}
	return saved
}

func (p *Prefs) parseStamp(stamp string) time.Time {
	for _, format := range timeFormats {
		if t, err := time.ParseInLocation(format, stamp, time.Local); err == nil {
			return t
		}
	}
	p.Logger.Warn("unreadable uri_last_changed in user prefs", "value", stamp, "path", p.Path)
	return time.Time{}
}

// SaveURI stores uri and restarts its timeout clock. Unrelated keys
// already in the file survive the write.
func (p *Prefs) SaveURI(uri string) error {
	if !p.Enabled() {
		return errors.New(errors.ErrCodeInvalidInput, "user prefs are disabled for this site")
	}
	if p.Path == "" {
		return errors.New(errors.ErrCodeInternal, "no user prefs file location for this platform")
	}
	doc := p.Load()
	doc[uriKey] = uri
	doc[changedKey] = p.clock().Format(time.RFC3339Nano)
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to encode user prefs")
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to create the prefs folder")
	}
	if err := os.WriteFile(p.Path, raw, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unable to write user prefs")
	}
	p.Logger.Info("saved URI to user prefs", "uri", uri, "path", p.Path)
	return nil
}

// Substitute resolves the "-" URI shorthand to the saved pref URI.
// Other values pass through untouched.
func (p *Prefs) Substitute(uri string) (string, error) {
	if uri != "-" {
		return uri, nil
	}
	if !p.Enabled() {
		return "", errors.New(errors.ErrCodeInvalidInput, `"-" needs user prefs, but they are disabled`)
	}
	saved := p.Check()
	if saved.URI == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "no URI is saved in user prefs, pass one or run hab set-uri")
	}
	if saved.TimedOut {
		return "", errors.New(errors.ErrCodeInvalidInput, "saved URI %q has expired, re-save it with hab set-uri", saved.URI)
	}
	p.Logger.Info("using saved URI", "uri", saved.URI)
	return saved.URI, nil
}
