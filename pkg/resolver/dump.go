package resolver

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/talusfx/hab/pkg/cache"
	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/pep440"
)

const dumpWidth = 80

var (
	dumpGreen  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	dumpYellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// DumpOptions controls what a resolution dump includes. The zero value
// shows the quiet summary: aliases only, environment hidden until
// Verbosity reaches one.
type DumpOptions struct {
	// Verbosity adds rows as it grows: names, URI and versions at one,
	// per-platform environments and inherits at two, distros, sources
	// and full alias definitions at three.
	Verbosity int

	// Width is the wrap target. The output may exceed it but tries not
	// to. Zero means 80.
	Width int

	// Color styles labels and the title URI with lipgloss.
	Color bool

	// HideEnvironment drops the composed environment rows regardless of
	// verbosity.
	HideEnvironment bool

	// ShowOperations adds the reduced environment operations, the edits
	// as declared rather than their composed result.
	ShowOperations bool
}

// Dump renders the resolution as a labelled table wrapped in a title
// and rule lines.
func (f *FlatConfig) Dump(ctx context.Context, opts DumpOptions) (string, error) {
	width := opts.Width
	if width <= 0 {
		width = dumpWidth
	}
	v := opts.Verbosity
	var rows []string

	if v >= 1 {
		rows = append(rows, dumpObject(f.matched.Name, "name:  ", width, false, opts.Color))
		rows = append(rows, dumpObject(f.uri, "uri:  ", width, false, opts.Color))
	}

	aliases, err := f.Aliases(ctx)
	if err != nil {
		return "", err
	}
	rows = append(rows, dumpAliases(aliases, v, width, opts.Color))

	if v >= 3 {
		var reqs []string
		if f.distros != nil {
			reqs = f.distros.Strings()
		}
		rows = append(rows, dumpObject(reqs, "distros:  ", width, false, opts.Color))
	}

	if !opts.HideEnvironment && v >= 1 {
		if v >= 2 {
			perPlatform := map[string]any{}
			for _, name := range f.resolver.Site.Platforms() {
				composed, err := f.EnvironmentFor(ctx, name)
				if err != nil {
					return "", err
				}
				perPlatform[name] = envDoc(composed)
			}
			rows = append(rows, dumpObject(perPlatform, "environment:  ", width, false, opts.Color))
		} else {
			composed, err := f.Environment(ctx)
			if err != nil {
				return "", err
			}
			rows = append(rows, dumpObject(envDoc(composed), "environment:  ", width, false, opts.Color))
		}
	}

	if opts.ShowOperations && v >= 2 && f.environment != nil {
		ops := f.environment.For(f.resolver.Site.Platform().Name())
		rows = append(rows, dumpObject(opsDoc(ops), "environment_ops:  ", width, false, opts.Color))
	}

	if v >= 2 {
		rows = append(rows, dumpObject(f.Inherits(), "inherits:  ", width, false, opts.Color))
	}
	if v >= 3 && len(f.sources) > 0 {
		rows = append(rows, dumpObject(f.sources, "sources:  ", width, false, opts.Color))
	}

	if v >= 1 {
		versions, err := f.Versions(ctx)
		if err != nil {
			return "", err
		}
		rows = append(rows, dumpObject(versionRows(versions, v, opts.Color), "versions:  ", width, false, opts.Color))
	}

	title, plain := dumpHeader("FlatConfig", f.uri, opts.Color)
	return dumpTitle(title, plain, strings.Join(rows, "\n")), nil
}

// Dump renders the replayed freeze the way a live resolution dumps, so
// the two are easy to diff.
func (u *UnfrozenConfig) Dump(ctx context.Context, opts DumpOptions) (string, error) {
	width := opts.Width
	if width <= 0 {
		width = dumpWidth
	}
	v := opts.Verbosity
	var rows []string

	if v >= 1 {
		rows = append(rows, dumpObject(u.frozen.Name, "name:  ", width, false, opts.Color))
		rows = append(rows, dumpObject(u.frozen.URI, "uri:  ", width, false, opts.Color))
	}

	aliases, err := u.Aliases(ctx)
	if err != nil {
		return "", err
	}
	rows = append(rows, dumpAliases(aliases, v, width, opts.Color))

	if !opts.HideEnvironment && v >= 1 {
		if v >= 2 {
			perPlatform := map[string]any{}
			for name := range u.frozen.Environment {
				composed, err := u.EnvironmentFor(ctx, name)
				if err != nil {
					return "", err
				}
				perPlatform[name] = envDoc(composed)
			}
			rows = append(rows, dumpObject(perPlatform, "environment:  ", width, false, opts.Color))
		} else {
			composed, err := u.Environment(ctx)
			if err != nil {
				return "", err
			}
			rows = append(rows, dumpObject(envDoc(composed), "environment:  ", width, false, opts.Color))
		}
	}

	if v >= 2 {
		rows = append(rows, dumpObject(false, "inherits:  ", width, false, opts.Color))
	}

	if v >= 1 {
		names := u.Versions()
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
		rows = append(rows, dumpObject(names, "versions:  ", width, false, opts.Color))
	}

	title, plain := dumpHeader("UnfrozenConfig", u.frozen.URI, opts.Color)
	return dumpTitle(title, plain, strings.Join(rows, "\n")), nil
}

func dumpAliases(aliases []*ComposedAlias, verbosity, width int, color bool) string {
	if verbosity < 3 {
		names := make([]string, 0, len(aliases))
		for _, alias := range aliases {
			names = append(names, alias.Name)
		}
		return dumpObject(names, "aliases:  ", width, true, color)
	}
	entries := make(map[string]any, len(aliases))
	for _, alias := range aliases {
		entries[alias.Name] = aliasDoc(alias)
	}
	return dumpObject(entries, "aliases:  ", width, false, color)
}

// versionRows orders versions case-insensitively by full name, and
// attaches the defining file once verbosity asks for debug detail.
func versionRows(versions []*forest.DistroVersion, verbosity int, color bool) []string {
	ordered := append([]*forest.DistroVersion{}, versions...)
	sort.Slice(ordered, func(i, j int) bool {
		return strings.ToLower(ordered[i].FullName()) < strings.ToLower(ordered[j].FullName())
	})
	rows := make([]string, 0, len(ordered))
	for _, dv := range ordered {
		name := dv.FullName()
		if verbosity < 3 || dv.Filename == "" {
			rows = append(rows, name)
			continue
		}
		if color {
			name = dumpGreen.Render(name)
		}
		rows = append(rows, name+":  "+dv.Filename)
	}
	return rows
}

func opsDoc(ops *env.Operations) map[string]any {
	doc := map[string]any{}
	if ops.IsZero() {
		return doc
	}
	if len(ops.Unset) > 0 {
		doc["unset"] = append([]string{}, ops.Unset...)
	}
	for label, edits := range map[string]map[string]env.Value{
		"set":     ops.Set,
		"prepend": ops.Prepend,
		"append":  ops.Append,
	} {
		if len(edits) == 0 {
			continue
		}
		sub := make(map[string]any, len(edits))
		for key, value := range edits {
			sub[key] = []string(value)
		}
		doc[label] = sub
	}
	return doc
}

func dumpHeader(typeName, uri string, color bool) (title, plain string) {
	plain = "Dump of " + typeName + "('" + uri + "')"
	title = plain
	if color {
		title = "Dump of " + typeName + "(" + dumpGreen.Render("'"+uri+"'") + ")"
	}
	return title, plain
}

// dumpTitle wraps body in rule lines sized to the longest row.
func dumpTitle(title, plainTitle, body string) string {
	width := len(plainTitle)
	for _, line := range strings.Split(body, "\n") {
		if len(line) > width {
			width = len(line)
		}
	}
	bar := strings.Repeat("-", width)
	return title + "\n" + bar + "\n" + body + "\n" + bar
}

// dumpObject renders a value as rows prefixed by label, recursing into
// maps and lists. Continuation rows are padded to the label width so
// columns line up.
func dumpObject(obj any, label string, width int, flat, color bool) string {
	pad := strings.Repeat(" ", len(label))
	if label != "" {
		width -= len(label)
		if width < 10 {
			width = 10
		}
		if color {
			label = dumpGreen.Render(label)
		}
	}

	switch v := obj.(type) {
	case []string:
		return dumpList(v, label, pad, width, flat, color)
	case env.Value:
		return dumpList(v, label, pad, width, flat, color)
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = fmt.Sprint(item)
		}
		return dumpList(items, label, pad, width, flat, color)
	case map[string]any:
		return dumpMap(v, label, pad, width, flat, color)
	case map[string]string:
		doc := make(map[string]any, len(v))
		for key, value := range v {
			doc[key] = value
		}
		return dumpMap(doc, label, pad, width, flat, color)
	case map[string][]string:
		doc := make(map[string]any, len(v))
		for key, value := range v {
			doc[key] = value
		}
		return dumpMap(doc, label, pad, width, flat, color)
	case map[string]int:
		doc := make(map[string]any, len(v))
		for key, value := range v {
			doc[key] = value
		}
		return dumpMap(doc, label, pad, width, flat, color)
	}
	return label + fmt.Sprint(obj)
}

func dumpList(items []string, label, pad string, width int, flat, color bool) string {
	rendered := make([]string, len(items))
	for i, item := range items {
		rendered[i] = dumpObject(item, "", width, flat, color)
	}

	if flat {
		lines := packLines(rendered, width)
		if len(lines) == 0 {
			return label
		}
		rows := []string{label + lines[0]}
		for _, line := range lines[1:] {
			rows = append(rows, pad+line)
		}
		return strings.Join(rows, "\n")
	}

	oneRow := strings.Join(rendered, ", ")
	if len(oneRow) <= width {
		return label + oneRow
	}
	rows := []string{label + rendered[0]}
	for _, item := range rendered[1:] {
		rows = append(rows, pad+item)
	}
	return strings.Join(rows, "\n")
}

func dumpMap(m map[string]any, label, pad string, width int, flat, color bool) string {
	if len(m) == 0 {
		return label
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var rows []string
	lbl := label
	for _, key := range keys {
		rows = append(rows, dumpObject(m[key], lbl+key+":  ", width, flat, color))
		lbl = pad
	}
	return strings.Join(rows, "\n")
}

// packLines joins items with single spaces into lines no wider than
// width. Items are never split, an oversized item overflows alone.
func packLines(items []string, width int) []string {
	var lines []string
	cur := ""
	for _, item := range items {
		switch {
		case cur == "":
			cur = item
		case len(cur)+1+len(item) <= width:
			cur += " " + item
		default:
			lines = append(lines, cur)
			cur = item
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// ForestDumpOptions controls the tree listings. Children indent one
// step past their root and no further, the row text itself carries the
// depth.
type ForestDumpOptions struct {
	// Indent is the child prefix. Empty means two spaces.
	Indent string

	// Truncate caps how many rows one level shows. When a level has
	// more than twice this many children only the first and last
	// Truncate render, with an ellipsis row between. Zero disables.
	Truncate int

	// Filenames appends the defining file to each row that has one.
	Filenames bool
}

// DumpConfigs renders the config tree, one row per URI in natural
// order. Rows whose effective min_verbosity exceeds the resolver's
// verbosity are skipped.
func (r *Resolver) DumpConfigs(opts ForestDumpOptions) (string, error) {
	configs, err := r.Configs()
	if err != nil {
		return "", err
	}
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}

	var rows []string
	var walk func(uri string, depth int)
	walk = func(uri string, depth int) {
		cfg, ok := configs.Get(uri)
		if !ok {
			return
		}
		if r.verbosityAllows(r.effectiveMinVerbosity(configs, cfg)) {
			row := uri
			if opts.Filenames && cfg.Filename != "" {
				row += ":  " + cfg.Filename
			}
			if depth > 0 {
				row = indent + row
			}
			rows = append(rows, row)
		}
		children := configs.Children(uri)
		if opts.Truncate > 0 && len(children) > opts.Truncate*2 {
			for _, child := range children[:opts.Truncate] {
				walk(child, depth+1)
			}
			rows = append(rows, indent+"...")
			for _, child := range children[len(children)-opts.Truncate:] {
				walk(child, depth+1)
			}
			return
		}
		for _, child := range children {
			walk(child, depth+1)
		}
	}
	for _, root := range configs.Roots() {
		walk(root, 0)
	}
	return strings.Join(rows, "\n"), nil
}

// DumpDistros renders the distro forest, each name followed by its
// versions in ascending order.
func (r *Resolver) DumpDistros(ctx context.Context, opts ForestDumpOptions) (string, error) {
	distros, err := r.Distros(ctx)
	if err != nil {
		return "", err
	}
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}

	names := distros.Names()
	forest.NaturalSort(names)

	var rows []string
	for _, name := range names {
		d, ok := distros.Get(name)
		if !ok {
			continue
		}
		rows = append(rows, name)

		versions := d.Versions()
		if opts.Truncate > 0 && len(versions) > opts.Truncate*2 {
			head := versions[:opts.Truncate]
			tail := versions[len(versions)-opts.Truncate:]
			rows = append(rows, r.distroRows(d, head, indent, opts.Filenames)...)
			rows = append(rows, indent+"...")
			rows = append(rows, r.distroRows(d, tail, indent, opts.Filenames)...)
			continue
		}
		rows = append(rows, r.distroRows(d, versions, indent, opts.Filenames)...)
	}
	return strings.Join(rows, "\n"), nil
}

func (r *Resolver) distroRows(d *forest.Distro, versions []pep440.Version, indent string, filenames bool) []string {
	var rows []string
	for _, ver := range versions {
		dv, ok := d.Get(ver)
		if !ok {
			continue
		}
		if !r.verbosityAllows(dv.MinVerbosity) {
			continue
		}
		row := dv.FullName()
		if filenames && dv.Filename != "" {
			row += ":  " + dv.Filename
		}
		rows = append(rows, indent+row)
	}
	return rows
}

// effectiveMinVerbosity reduces just the min_verbosity field for one
// tree row, walking the same inheritance chain a full resolve would.
func (r *Resolver) effectiveMinVerbosity(configs *forest.Configs, cfg *forest.Config) map[string]int {
	inDefault := len(forest.SplitURI(cfg.URI())) > 0 && forest.SplitURI(cfg.URI())[0] == defaultRoot
	seen := map[string]bool{}
	uri := cfg.URI()
	for cfg != nil {
		cur := cfg.URI()
		if seen[cur] {
			break
		}
		seen[cur] = true
		if cfg.MinVerbosity != nil {
			return cfg.MinVerbosity
		}
		if cfg.Inherits == nil || !*cfg.Inherits {
			break
		}
		if parent := forest.ParentURI(cur); parent != "" {
			next, ok := configs.Get(parent)
			if !ok {
				break
			}
			cfg = next
			continue
		}
		if inDefault {
			break
		}
		inDefault = true
		cfg = defaultClosest(configs, uri)
	}
	return nil
}

// cachedMark appends a cache marker to a path row.
func cachedMark(path string, color bool) string {
	if color {
		return path + " " + dumpYellow.Render("(cached)")
	}
	return path + " (cached)"
}

// DumpSite renders the merged site settings. Verbosity marks which
// site files and search roots are served from habcaches and opens up
// mapping values; the quiet dump keeps those to a key count.
func (r *Resolver) DumpSite(opts DumpOptions) string {
	s := r.Site
	width := opts.Width
	if width <= 0 {
		width = dumpWidth
	}

	paths := make([]string, 0, len(s.Paths))
	for _, path := range s.Paths {
		row := path
		if opts.Verbosity >= 1 {
			if _, err := os.Stat(cache.Path(s.CacheFileTemplate(), path)); err == nil {
				row = cachedMark(path, opts.Color)
			}
		}
		paths = append(paths, row)
	}
	rows := []string{dumpObject(paths, "HAB_PATHS:  ", width, false, opts.Color)}

	for _, key := range s.Keys() {
		value, _ := s.Get(key)
		label := key + ":  "

		if opts.Verbosity >= 1 && (key == "config_paths" || key == "distro_paths") {
			roots := s.StringList(key)
			marked := make([]string, 0, len(roots))
			for _, root := range roots {
				row := root
				if r.rootIsCached(key, root) {
					row = cachedMark(root, opts.Color)
				}
				marked = append(marked, row)
			}
			rows = append(rows, dumpObject(marked, label, width, false, opts.Color))
			continue
		}

		if m, ok := value.(map[string]any); ok && opts.Verbosity < 1 {
			summary := fmt.Sprintf("Dictionary keys: %d", len(m))
			rows = append(rows, dumpObject(summary, label, width, false, opts.Color))
			continue
		}
		rows = append(rows, dumpObject(value, label, width, false, opts.Color))
	}

	title := "Dump of Site"
	return dumpTitle(title, title, strings.Join(rows, "\n"))
}

func (r *Resolver) rootIsCached(key, root string) bool {
	if key == "distro_paths" {
		_, ok := r.Cache().DistroDocs(root)
		return ok
	}
	_, ok := r.Cache().ConfigDocs(root)
	return ok
}
