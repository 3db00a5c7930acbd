package forest

import (
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	habio "github.com/talusfx/hab/pkg/io"
)

// Loader parses scanned documents into forest entries. Config problems
// are fatal. Distro problems drop the one version with a warning and
// the resolve continues without it.
type Loader struct {
	// Logger receives load diagnostics. Defaults to log.Default().
	Logger *log.Logger

	// Ignored lists directory names whose version lookup failures are
	// expected, such as "release" staging folders.
	Ignored []string
}

func (l *Loader) logger() *log.Logger {
	if l.Logger == nil {
		return log.Default()
	}
	return l.Logger
}

// readDoc fills doc.Data from disk unless a cache already provided it.
func (l *Loader) readDoc(doc *Doc) error {
	if doc.Data != nil {
		return nil
	}
	var data map[string]any
	if err := habio.DecodeJSON(doc.Path, &data); err != nil {
		return err
	}
	doc.Data = data
	return nil
}

// LoadConfig parses one config document.
func (l *Loader) LoadConfig(doc Doc) (*Config, error) {
	if err := l.readDoc(&doc); err != nil {
		return nil, errors.Wrap(errors.GetCode(err), err, "unable to load config %q", doc.Path)
	}
	cfg, err := ParseConfig(doc)
	if err != nil {
		return nil, err
	}
	l.logger().Debug("loaded config", "uri", cfg.URI(), "file", doc.Path)
	return cfg, nil
}

// LoadDistro parses one distro document. Returns (nil, nil) when the
// entry should be skipped, the reason is already logged.
func (l *Loader) LoadDistro(doc Doc) (*DistroVersion, error) {
	if err := l.readDoc(&doc); err != nil {
		l.logger().Warn("unable to load distro, skipping", "file", doc.Path, "err", err)
		return nil, nil
	}

	version, skip, err := ResolveVersion(doc.Path, doc.Data, l.Ignored)
	if skip {
		l.logger().Debug("skipping distro, its dirname is ignored", "file", doc.Path)
		return nil, nil
	}
	if err != nil {
		l.logger().Warn("unable to determine distro version, skipping", "file", doc.Path, "err", err)
		return nil, nil
	}

	dv := &DistroVersion{Version: version}
	dv.Filename = doc.Path
	dv.Dirname = filepath.Dir(doc.Path)
	if err := dv.parseNode(doc.Data, doc.Path); err != nil {
		l.logger().Warn("unable to parse distro, skipping", "file", doc.Path, "err", err)
		return nil, nil
	}
	if err := errors.ValidateDistroName(dv.Name); err != nil {
		l.logger().Warn("invalid distro name, skipping", "file", doc.Path, "err", err)
		return nil, nil
	}
	dv.DistroName = dv.Name

	if raw, ok := doc.Data["aliases"]; ok {
		aliases, err := parseAliases(raw, doc.Path)
		if err != nil {
			l.logger().Warn("invalid aliases, skipping distro", "file", doc.Path, "err", err)
			return nil, nil
		}
		dv.Aliases = aliases
	}

	if doc.Dir != "" {
		dv.rootDirs = map[string]bool{doc.Dir: true}
	}
	l.logger().Debug("loaded distro", "distro", dv.FullName(), "file", doc.Path)
	return dv, nil
}
