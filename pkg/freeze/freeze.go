// Package freeze encodes a fully resolved configuration as a compact
// string that fits in a single environment variable and can be
// restored later, on any platform the site maps paths for.
//
// Frozen strings carry a version prefix matching `v(\d+):(.+)`.
// Version 1 is base64 over json, version 2 compresses the json with
// zlib before the base64 step.
package freeze

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/site"
)

// DefaultVersion is used when neither the caller nor the site's
// freeze_version setting picks one.
const DefaultVersion = 2

// Frozen is the self-contained snapshot of a resolved configuration
// for every supported platform. HAB_URI is stripped from the
// environment on freeze and restored from URI on use, storing it per
// platform would only make the string longer.
type Frozen struct {
	Name        string                    `json:"name,omitempty"`
	Context     []string                  `json:"context,omitempty"`
	URI         string                    `json:"uri"`
	Versions    []string                  `json:"versions,omitempty"`
	Environment map[string]map[string]any `json:"environment,omitempty"`
	Aliases     map[string]map[string]any `json:"aliases,omitempty"`
}

// Encode serializes frozen into the versioned freeze format. A version
// of zero or less defers to the site's freeze_version setting, then to
// DefaultVersion. Paths under a platform_path_maps entry are written
// in portable sigil form so the string can roam between platforms.
func Encode(frozen *Frozen, version int, s *site.Site) (string, error) {
	if version <= 0 && s != nil {
		version = s.FreezeVersion()
	}
	if version <= 0 {
		version = DefaultVersion
	}

	doc, err := toDoc(frozen)
	if err != nil {
		return "", err
	}
	if s != nil {
		translate(doc, func(value, plat string) string {
			key, _ := s.PathMaps().KeyPath(value, plat)
			return key
		})
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to encode freeze")
	}

	switch version {
	case 1:
	case 2:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to compress freeze")
		}
		if err := w.Close(); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to compress freeze")
		}
		payload = buf.Bytes()
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "Unsupported freeze version %d", version)
	}
	return "v" + strconv.Itoa(version) + ":" + base64.StdEncoding.EncodeToString(payload), nil
}

// Decode restores a frozen configuration from its encoded form,
// expanding portable path sigils for each platform section.
func Decode(txt string, s *site.Site) (*Frozen, error) {
	prefix, rest, found := strings.Cut(txt, ":")
	if !found || prefix == "" || prefix[0] != 'v' {
		return nil, errors.New(errors.ErrCodeFreezeDecode,
			"Missing freeze version information in format `v0:...`")
	}
	version, err := strconv.Atoi(prefix[1:])
	if err != nil {
		return nil, errors.New(errors.ErrCodeFreezeDecode, "Version %s is not valid.", prefix[1:])
	}

	payload, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "invalid freeze encoding")
	}
	switch version {
	case 1:
	case 2:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "invalid freeze compression")
		}
		payload, err = io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "invalid freeze compression")
		}
		r.Close()
	default:
		return nil, errors.New(errors.ErrCodeFreezeDecode, "Unsupported freeze version %d", version)
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "invalid freeze payload")
	}
	if s != nil {
		translate(doc, func(value, plat string) string {
			return s.PathMaps().ExpandKey(value, plat)
		})
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "unable to decode freeze")
	}
	var frozen Frozen
	if err := json.Unmarshal(buf, &frozen); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "invalid freeze payload")
	}
	return &frozen, nil
}

// toDoc deep copies frozen into plain json types so sigil translation
// never mutates the caller's data.
func toDoc(frozen *Frozen) (map[string]any, error) {
	raw, err := json.Marshal(frozen)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "unable to encode freeze")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "unable to encode freeze")
	}
	return doc, nil
}

// translate rewrites every string in the per-platform environment and
// aliases sections with fn, using each section's own platform so paths
// are mapped against the right prefixes.
func translate(doc map[string]any, fn func(value, plat string) string) {
	for _, section := range []string{"environment", "aliases"} {
		plats, ok := doc[section].(map[string]any)
		if !ok {
			continue
		}
		for plat, values := range plats {
			plats[plat] = mapStrings(values, func(s string) string { return fn(s, plat) })
		}
	}
}

func mapStrings(v any, fn func(string) string) any {
	switch tv := v.(type) {
	case string:
		return fn(tv)
	case []any:
		for i := range tv {
			tv[i] = mapStrings(tv[i], fn)
		}
		return tv
	case map[string]any:
		for k := range tv {
			tv[k] = mapStrings(tv[k], fn)
		}
		return tv
	}
	return v
}
