// Package pkg provides the core libraries for hab environment resolution.
//
// # Overview
//
// Hab maps slash-separated URIs like "project/Sc001/Animation" to fully
// specified work environments: variables, aliases and pinned distro
// versions. The pkg directory is organized around that flow:
//
//  1. [site] - Merged site settings from HAB_PATHS
//  2. [forest] - Config and distro trees loaded from the site's globs
//  3. [solver] - Requirement solving over distro versions
//  4. [resolver] - URI resolution, inheritance and alias composition
//  5. [render] / [launch] - Shell scripts out, or a spawned alias
//
// # Architecture
//
// The typical data flow through hab:
//
//	Site files (HAB_PATHS)
//	         ↓
//	    [site] package (merge settings)
//	         ↓
//	    [forest] package (load config + distro trees, via [cache])
//	         ↓
//	    [resolver] package (URI → inherited config → [solver] → FlatConfig)
//	         ↓
//	    [render] or [launch] (scripts, or a running alias)
//
// # Quick Start
//
// Resolve a URI and write its activation scripts:
//
//	import (
//	    "context"
//	    "github.com/talusfx/hab/pkg/render"
//	    "github.com/talusfx/hab/pkg/resolver"
//	    "github.com/talusfx/hab/pkg/site"
//	)
//
//	// 1. Load the site
//	s, _ := site.Load(nil, nil, nil)
//
//	// 2. Resolve a URI
//	r := resolver.New(s, nil)
//	cfg, _ := r.Resolve(context.Background(), "project/Sc001")
//
//	// 3. Render the scripts
//	files, _ := render.Build(context.Background(), cfg, render.ScriptOptions{
//	    Dir: scratch, LaunchScript: true,
//	})
//	_ = render.Write(files)
//
// # Main Packages
//
// [site] - Site settings merged left-wins from the HAB_PATHS file list,
// with platform path mapping and the compiled-in entry point registry.
//
// [forest] - The config tree (by URI) and distro set (by name/version)
// parsed from .hab.json documents, with placeholder ancestors and
// natural sorting.
//
// [finder] - Distro discovery strategies: local directories, zip
// archives with or without sidecars, and gs:// buckets.
//
// [solver] - Turns the distros listed by a config into one pinned
// version per distro, honoring markers, optional distros and stubs.
//
// [resolver] - Longest-prefix URI matching against the user and
// default trees, inheritance reduction, alias composition, dump and
// unfreeze surfaces. Produces [resolver.FlatConfig].
//
// [env] - The {VAR!e} formatter and per-shell value languages shared
// by rendering and launching.
//
// [render] - sh, powershell and batch writers for hab_config and
// hab_launch scripts.
//
// [launch] - Direct alias spawning with the composed environment, plus
// scratch directory naming.
//
// [freeze] - The versioned, compressed, base64 encoding of a resolved
// environment carried in HAB_FREEZE.
//
// [cache] - habcache sidecars that skip forest filesystem scans.
//
// [prefs] - The saved URI behind "hab set-uri" and the "-" shorthand.
//
// [pep440] - Version, specifier and marker handling for distro
// requirements.
//
// [io] - Relaxed JSON reading (comments, trailing commas) and
// canonical JSON writing.
//
// [platform] - windows, linux and osx behavior switches.
//
// [errors] - Coded errors and their process exit statuses.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...            # All tests
//	go test ./pkg/resolver/...   # Specific package
//
// [site]: https://pkg.go.dev/github.com/talusfx/hab/pkg/site
// [forest]: https://pkg.go.dev/github.com/talusfx/hab/pkg/forest
// [finder]: https://pkg.go.dev/github.com/talusfx/hab/pkg/finder
// [solver]: https://pkg.go.dev/github.com/talusfx/hab/pkg/solver
// [resolver]: https://pkg.go.dev/github.com/talusfx/hab/pkg/resolver
// [env]: https://pkg.go.dev/github.com/talusfx/hab/pkg/env
// [render]: https://pkg.go.dev/github.com/talusfx/hab/pkg/render
// [launch]: https://pkg.go.dev/github.com/talusfx/hab/pkg/launch
// [freeze]: https://pkg.go.dev/github.com/talusfx/hab/pkg/freeze
// [cache]: https://pkg.go.dev/github.com/talusfx/hab/pkg/cache
// [prefs]: https://pkg.go.dev/github.com/talusfx/hab/pkg/prefs
// [pep440]: https://pkg.go.dev/github.com/talusfx/hab/pkg/pep440
// [io]: https://pkg.go.dev/github.com/talusfx/hab/pkg/io
// [platform]: https://pkg.go.dev/github.com/talusfx/hab/pkg/platform
// [errors]: https://pkg.go.dev/github.com/talusfx/hab/pkg/errors
package pkg
