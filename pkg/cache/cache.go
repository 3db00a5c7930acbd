// Package cache persists the scanned config and distro documents for a
// site so later runs skip the filesystem globs and per-file parsing.
//
// Each site file gets its own sidecar cache, named by the site's
// site_cache_file_template (studio.json -> studio.habcache by default).
// The cache is only written by the explicit cache command; loading
// falls back to a live scan whenever a cache file is missing, stale or
// from a newer format.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/finder"
	"github.com/talusfx/hab/pkg/forest"
	habio "github.com/talusfx/hab/pkg/io"
	"github.com/talusfx/hab/pkg/platform"
	"github.com/talusfx/hab/pkg/site"
)

// supportedVersion is the newest cache format this build can read.
const supportedVersion = 1

const (
	keyConfigs = "config_paths"
	keyDistros = "distro_paths"
)

// globs name the file layout under each scanned directory.
var globs = map[string]string{
	keyConfigs: "*.json",
	keyDistros: filepath.Join("*", finder.HabFilename),
}

// Cache loads and serves the sidecar caches for a site's files.
type Cache struct {
	// Enabled gates all cache reads. When false every lookup misses and
	// callers scan the filesystem.
	Enabled bool

	site   *site.Site
	logger *log.Logger

	loaded bool
	// docs are keyed by section, then forward-slash glob dir, then file
	// path, holding the raw decoded document.
	docs map[string]map[string]map[string]map[string]any
}

var _ finder.Lister = (*Cache)(nil)

// New returns a cache for the loaded site.
func New(s *site.Site, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{Enabled: true, site: s, logger: logger}
}

// Path returns the cache file that belongs to sitePath, built from the
// site_cache_file_template.
func Path(template, sitePath string) string {
	stem := strings.TrimSuffix(filepath.Base(sitePath), filepath.Ext(sitePath))
	name := strings.ReplaceAll(template, "{stem}", stem)
	return filepath.Join(filepath.Dir(sitePath), name)
}

// Clear drops the loaded contents, forcing a reload on next use.
func (c *Cache) Clear() {
	if c.loaded {
		c.logger.Debug("Site cache contents cleared")
	}
	c.loaded = false
	c.docs = nil
}

// ConfigDocs returns the cached config documents under root. ok is
// false when root has no usable cache.
func (c *Cache) ConfigDocs(root string) ([]forest.Doc, bool) {
	return c.lookup(keyConfigs, root)
}

// DistroDocs returns the cached distro documents under root. ok is
// false when root has no usable cache.
func (c *Cache) DistroDocs(root string) ([]forest.Doc, bool) {
	return c.lookup(keyDistros, root)
}

func (c *Cache) lookup(section, root string) ([]forest.Doc, bool) {
	if !c.Enabled {
		return nil, false
	}
	c.load()
	files, ok := c.docs[section][platform.ForwardSlash(root)]
	if !ok {
		return nil, false
	}
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	docs := make([]forest.Doc, 0, len(paths))
	for _, path := range paths {
		docs = append(docs, forest.Doc{Dir: root, Path: path, Data: files[path]})
	}
	return docs, true
}

// load reads every site file's cache once. Files are processed right to
// left so the leftmost site file wins when glob dirs repeat.
func (c *Cache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.docs = map[string]map[string]map[string]map[string]any{
		keyConfigs: {},
		keyDistros: {},
	}
	template := c.site.CacheFileTemplate()
	for i := len(c.site.Paths) - 1; i >= 0; i-- {
		cacheFile := Path(template, c.site.Paths[i])
		if _, err := os.Stat(cacheFile); err != nil {
			continue
		}
		c.logger.Debug("Site cache loading", "file", cacheFile)
		if err := c.loadFile(cacheFile); err != nil {
			c.logger.Warn("Site cache unusable, falling back to scanning",
				"file", cacheFile, "error", err)
		}
	}
}

// content is the on-disk shape of one cache file.
type content struct {
	Version int `json:"version"`
	// Mtimes records the modification time, in unix seconds, of the
	// site file and of every cached document, keyed by portable path.
	Mtimes  map[string]int64                     `json:"mtimes,omitempty"`
	Configs map[string]map[string]map[string]any `json:"config_paths,omitempty"`
	Distros map[string]map[string]map[string]any `json:"distro_paths,omitempty"`
}

func (c *Cache) loadFile(cacheFile string) error {
	var data content
	if err := habio.DecodeJSON(cacheFile, &data); err != nil {
		return err
	}
	if data.Version > supportedVersion {
		return errors.New(errors.ErrCodeCacheStale,
			"unsupported habcache version %d, this build reads versions up to %d",
			data.Version, supportedVersion)
	}
	pm := c.site.PathMaps()
	plat := c.site.Platform().Name()
	if err := c.checkMtimes(data.Mtimes, pm, plat); err != nil {
		return err
	}
	c.merge(keyConfigs, data.Configs, pm, plat)
	c.merge(keyDistros, data.Distros, pm, plat)
	return nil
}

// checkMtimes compares the recorded modification times against the
// files on disk. Any difference means the cache no longer reflects the
// filesystem.
func (c *Cache) checkMtimes(mtimes map[string]int64, pm *site.PathMaps, plat string) error {
	for key, recorded := range mtimes {
		path := pm.ExpandKey(key, plat)
		info, err := os.Stat(path)
		if err != nil {
			return errors.New(errors.ErrCodeCacheStale, "cached file is gone: %s", path)
		}
		if info.ModTime().Unix() != recorded {
			return errors.New(errors.ErrCodeCacheStale, "cached file changed: %s", path)
		}
	}
	return nil
}

// merge restores one section's portable paths to the current platform
// and replaces any previously loaded entry for the same glob dir.
func (c *Cache) merge(section string, entries map[string]map[string]map[string]any, pm *site.PathMaps, plat string) {
	for globDir, files := range entries {
		dir := platform.ForwardSlash(pm.ExpandKey(globDir, plat))
		restored := make(map[string]map[string]any, len(files))
		for path, doc := range files {
			restored[pm.ExpandKey(path, plat)] = doc
		}
		c.docs[section][dir] = restored
	}
}

// Write generates and saves the cache for one site file, returning the
// cache path. Only the paths that file itself defines are scanned, so
// each site file's cache stays self-contained.
func (c *Cache) Write(sitePath string) (string, error) {
	data, err := c.generate(sitePath)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to encode cache")
	}
	out = append(out, '\n')
	cacheFile := Path(c.site.CacheFileTemplate(), sitePath)
	if err := habio.WriteFileAtomic(cacheFile, out, 0o644); err != nil {
		return "", err
	}
	c.logger.Debug("Site cache saved", "file", cacheFile)
	return cacheFile, nil
}

func (c *Cache) generate(sitePath string) (*content, error) {
	temp, err := site.Load([]string{sitePath}, c.site.Platform(), c.logger)
	if err != nil {
		return nil, err
	}
	pm := c.site.PathMaps()
	plat := c.site.Platform().Name()

	out := &content{
		Version: supportedVersion,
		Mtimes:  map[string]int64{},
		Configs: map[string]map[string]map[string]any{},
		Distros: map[string]map[string]map[string]any{},
	}
	if info, err := os.Stat(sitePath); err == nil {
		out.Mtimes[keyPath(pm, sitePath, plat)] = info.ModTime().Unix()
	}

	if err := c.scan(temp, keyConfigs, out, pm, plat); err != nil {
		return nil, err
	}
	if err := c.scan(temp, keyDistros, out, pm, plat); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) scan(temp *site.Site, section string, out *content, pm *site.PathMaps, plat string) error {
	dirs, dest := temp.ConfigPaths(), out.Configs
	if section == keyDistros {
		dirs, dest = temp.DistroPaths(), out.Distros
	}
	for _, dir := range dirs {
		files := dest[keyPath(pm, dir, plat)]
		if files == nil {
			files = map[string]map[string]any{}
			dest[keyPath(pm, dir, plat)] = files
		}
		matches, err := filepath.Glob(filepath.Join(dir, globs[section]))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "scanning %q", dir)
		}
		sort.Strings(matches)
		for _, path := range matches {
			var data map[string]any
			if err := habio.DecodeJSON(path, &data); err != nil {
				c.logger.Debug("Skipping uncachable file", "file", path, "error", err)
				continue
			}
			if section == keyDistros {
				version, skip, err := forest.ResolveVersion(path, data, temp.IgnoredDistros())
				if err != nil {
					c.logger.Debug("Skipping distro with an invalid version", "file", path, "error", err)
					continue
				}
				if skip {
					c.logger.Debug("Skipping ignored distro", "file", path)
					continue
				}
				data["version"] = version.String()
			}
			files[keyPath(pm, path, plat)] = data
			if info, err := os.Stat(path); err == nil {
				out.Mtimes[keyPath(pm, path, plat)] = info.ModTime().Unix()
			}
		}
	}
	return nil
}

// keyPath converts a path to the portable forward-slash sigil form the
// cache stores.
func keyPath(pm *site.PathMaps, path, plat string) string {
	key, _ := pm.KeyPath(path, plat)
	return platform.ForwardSlash(key)
}
