package forest

import (
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
)

// Config is one entry of the config tree. Placeholder configs hold a
// URI position no file has defined yet; they never satisfy a resolve
// but their children do.
type Config struct {
	Node

	// Context holds the parent URI segments declared by the file.
	// `{"name": "Sc001", "context": ["project_a"]}` lives at
	// "project_a/Sc001".
	Context []string

	// Inherits is nil until the file declares it, so an undecided value
	// keeps the reducer walking.
	Inherits *bool

	Placeholder bool
}

// URI returns the full URI this config occupies.
func (c *Config) URI() string {
	segs := make([]string, 0, len(c.Context)+1)
	segs = append(segs, c.Context...)
	segs = append(segs, c.Name)
	return JoinURI(segs...)
}

// ParseConfig builds a Config from a loaded document.
func ParseConfig(doc Doc) (*Config, error) {
	cfg := &Config{}
	cfg.Filename = doc.Path
	cfg.Dirname = filepath.Dir(doc.Path)
	if err := cfg.parseNode(doc.Data, doc.Path); err != nil {
		return nil, err
	}
	if raw, ok := doc.Data["context"]; ok {
		ctx, err := parseContext(raw, doc.Path)
		if err != nil {
			return nil, err
		}
		cfg.Context = ctx
	}
	if raw, ok := doc.Data["inherits"]; ok {
		b, ok := raw.(bool)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "inherits must be a boolean in %q", doc.Path)
		}
		cfg.Inherits = &b
	}
	if doc.Dir != "" {
		cfg.rootDirs = map[string]bool{doc.Dir: true}
	}
	return cfg, nil
}

func parseContext(raw any, path string) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "context must be a list in %q", path)
	}
	ctx := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "context entries must be non-empty strings in %q", path)
		}
		ctx = append(ctx, s)
	}
	return ctx, nil
}

// Configs is the config tree, addressed by URI. Inserting a deep config
// creates placeholder ancestors; a later real config replaces its
// placeholder and keeps the children accumulated under it.
type Configs struct {
	nodes    map[string]*Config
	children map[string][]string // parent URI to child URIs, "" holds roots
	logger   *log.Logger
}

// NewConfigs returns an empty config tree.
func NewConfigs(logger *log.Logger) *Configs {
	if logger == nil {
		logger = log.Default()
	}
	return &Configs{
		nodes:    map[string]*Config{},
		children: map[string][]string{},
		logger:   logger,
	}
}

// Insert adds cfg at its URI. A duplicate URI from the same glob dir is
// an error; from a different dir the first definition wins with a
// warning, matching how site path order layers config dirs.
func (t *Configs) Insert(cfg *Config) error {
	segs := make([]string, 0, len(cfg.Context)+1)
	segs = append(segs, cfg.Context...)
	segs = append(segs, cfg.Name)

	for i := 1; i < len(segs); i++ {
		prefix := JoinURI(segs[:i]...)
		if _, ok := t.nodes[prefix]; ok {
			continue
		}
		ph := &Config{Placeholder: true}
		ph.Name = segs[i-1]
		ph.Context = append([]string{}, segs[:i-1]...)
		t.link(prefix, ph)
		t.logger.Debug("created placeholder", "uri", prefix)
	}

	uri := JoinURI(segs...)
	existing, ok := t.nodes[uri]
	if !ok {
		t.link(uri, cfg)
		t.logger.Debug("added config", "uri", uri, "file", cfg.Filename)
		return nil
	}
	if existing.Placeholder {
		// The real config takes the placeholder's spot, the children
		// index is keyed by URI so nothing moves.
		t.nodes[uri] = cfg
		t.logger.Debug("replaced placeholder", "uri", uri, "file", cfg.Filename)
		return nil
	}
	if existing.sharesRoot(cfg.rootDirs) {
		return errors.New(errors.ErrCodeDuplicateJson,
			"Can not add %q, the context %q it is already set", cfg.Filename, uri)
	}
	// Defined again from another config dir, first definition wins.
	t.logger.Warn("Can not add config, the context is already set",
		"file", cfg.Filename, "uri", uri)
	existing.addRoots(cfg.rootDirs)
	return nil
}

func (t *Configs) link(uri string, cfg *Config) {
	t.nodes[uri] = cfg
	parent := ParentURI(uri)
	t.children[parent] = append(t.children[parent], uri)
}

// Get returns the config at uri, placeholders included.
func (t *Configs) Get(uri string) (*Config, bool) {
	cfg, ok := t.nodes[uri]
	return cfg, ok
}

// Roots returns the root URIs in natural sort order.
func (t *Configs) Roots() []string {
	return t.sortedChildren("")
}

// Children returns the child URIs of uri in natural sort order.
func (t *Configs) Children(uri string) []string {
	return t.sortedChildren(uri)
}

func (t *Configs) sortedChildren(uri string) []string {
	kids := t.children[uri]
	out := make([]string, len(kids))
	copy(out, kids)
	NaturalSort(out)
	return out
}

// URIs returns every non-placeholder URI in natural sort order.
func (t *Configs) URIs() []string {
	out := make([]string, 0, len(t.nodes))
	for uri, cfg := range t.nodes {
		if cfg.Placeholder {
			continue
		}
		out = append(out, uri)
	}
	NaturalSort(out)
	return out
}

// Len returns the number of tree entries, placeholders included.
func (t *Configs) Len() int { return len(t.nodes) }

// sortedStrings is a plain lexical sort used where natural ordering is
// not wanted.
func sortedStrings(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	sort.Strings(out)
	return out
}
