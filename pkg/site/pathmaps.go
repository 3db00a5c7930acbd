package site

import (
	"sort"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// PathMaps translates absolute path prefixes between platforms. A site
// defines named mappings such as
//
//	"platform_path_maps": {
//	    "projects": {
//	        "windows": "P:\\projects",
//	        "linux": "/mnt/projects"
//	    }
//	}
//
// so a path written on one platform can be rewritten for another, and
// freezes can replace the prefix with the portable {projects} sigil.
type PathMaps struct {
	names []string
	maps  map[string]map[string]string
}

// PathMaps returns the site's platform_path_maps mappings. The result
// is rebuilt on each call so hook-modified settings are honored.
func (s *Site) PathMaps() *PathMaps {
	pm := &PathMaps{maps: map[string]map[string]string{}}
	raw, ok := s.data["platform_path_maps"].(map[string]any)
	if !ok {
		return pm
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, ok := raw[name].(map[string]any)
		if !ok {
			continue
		}
		mapping := map[string]string{}
		for plat, value := range entry {
			if path, ok := value.(string); ok {
				mapping[plat] = path
			}
		}
		if len(mapping) > 0 {
			pm.names = append(pm.names, name)
			pm.maps[name] = mapping
		}
	}
	return pm
}

// checkPathMaps validates the mapping shape after all site files merge.
func (s *Site) checkPathMaps() error {
	raw, ok := s.data["platform_path_maps"]
	if !ok {
		return nil
	}
	maps, ok := raw.(map[string]any)
	if !ok {
		return errors.New(errors.ErrCodeSiteLoad, "platform_path_maps must be an object")
	}
	for name, entry := range maps {
		mapping, ok := entry.(map[string]any)
		if !ok {
			return errors.New(errors.ErrCodeSiteLoad, "platform_path_maps entry %q must be an object", name)
		}
		for plat, value := range mapping {
			if !platform.Known(plat) {
				return errors.New(errors.ErrCodeSiteLoad, "platform_path_maps entry %q uses unknown platform %q", name, plat)
			}
			if _, ok := value.(string); !ok {
				return errors.New(errors.ErrCodeSiteLoad, "platform_path_maps entry %q must map platforms to paths", name)
			}
		}
	}
	return nil
}

// Names returns the mapping names in sorted order.
func (pm *PathMaps) Names() []string {
	return append([]string{}, pm.names...)
}

// Len returns the number of mappings.
func (pm *PathMaps) Len() int {
	return len(pm.names)
}

// Get returns the per-platform prefixes for one mapping name.
func (pm *PathMaps) Get(name string) (map[string]string, bool) {
	m, ok := pm.maps[name]
	return m, ok
}

// MapPath rewrites path from one platform's form to another's. Every
// mapping is applied in turn, so chained mappings compose. Paths that
// match no mapping return unchanged.
func (pm *PathMaps) MapPath(path, from, to string) string {
	if from == to {
		return path
	}
	for _, name := range pm.names {
		mapping := pm.maps[name]
		src, srcOK := mapping[from]
		dest, destOK := mapping[to]
		if !srcOK || !destOK {
			continue
		}
		tail, ok := pathRelativeTo(path, src, from == "windows")
		if !ok {
			continue
		}
		if tail == "" {
			path = dest
			continue
		}
		path = joinForPlatform(dest, tail, to)
	}
	return path
}

// KeyPath replaces a path's prefix with the {name} sigil of the first
// mapping whose prefix for plat contains it. The tail always uses
// forward slashes so sigil form is identical on every platform.
func (pm *PathMaps) KeyPath(path, plat string) (string, bool) {
	for _, name := range pm.names {
		src, ok := pm.maps[name][plat]
		if !ok {
			continue
		}
		tail, ok := pathRelativeTo(path, src, plat == "windows")
		if !ok || tail == "" {
			continue
		}
		return "{" + name + "}/" + tail, true
	}
	return path, false
}

// ExpandKey is the inverse of KeyPath: a {name}/tail sigil expands to
// the mapping's prefix for plat. Paths without a known sigil return
// unchanged.
func (pm *PathMaps) ExpandKey(path, plat string) string {
	if !strings.HasPrefix(path, "{") {
		return path
	}
	end := strings.IndexByte(path, '}')
	if end < 0 {
		return path
	}
	name := path[1:end]
	mapping, ok := pm.maps[name]
	if !ok {
		return path
	}
	prefix, ok := mapping[plat]
	if !ok {
		return path
	}
	tail := strings.TrimPrefix(path[end+1:], "/")
	if tail == "" {
		return prefix
	}
	return joinForPlatform(prefix, tail, plat)
}

// pathRelativeTo returns path's tail below prefix in forward-slash
// form. The match is segment aligned, so "/mnt/proj" does not contain
// "/mnt/projects/x". Windows comparisons fold case.
func pathRelativeTo(path, prefix string, foldCase bool) (string, bool) {
	p := strings.TrimRight(platform.ForwardSlash(path), "/")
	pre := strings.TrimRight(platform.ForwardSlash(prefix), "/")
	cmpP, cmpPre := p, pre
	if foldCase {
		cmpP = strings.ToLower(p)
		cmpPre = strings.ToLower(pre)
	}
	if cmpP == cmpPre {
		return "", true
	}
	if !strings.HasPrefix(cmpP, cmpPre+"/") {
		return "", false
	}
	return p[len(pre)+1:], true
}

func joinForPlatform(prefix, tail, plat string) string {
	if plat == "windows" {
		sep := `\`
		if strings.Contains(prefix, "/") && !strings.Contains(prefix, `\`) {
			sep = "/"
		}
		return strings.TrimRight(prefix, `\/`) + sep + strings.ReplaceAll(tail, "/", sep)
	}
	return strings.TrimRight(prefix, "/") + "/" + tail
}
