// Package io provides JSON reading and writing for hab's config files.
//
// # Overview
//
// Every JSON document hab touches goes through this package:
//
//   - Site files, config files and distro files on the way in
//   - Freeze payloads and habcache files on the way out
//   - Atomic replacement of generated files other processes may read
//
// # Input Format
//
// Input files are human-maintained, so the reader accepts a relaxed
// superset of JSON (comments and trailing commas) and standardizes it
// before decoding:
//
//	{
//	  // The studio wide config.
//	  "name": "studio",
//	  "distros": ["maya2024", "houdini20",],
//	}
//
// Strict JSON documents pass through unchanged. Syntax errors report
// the file path and offset of the problem.
//
// # Output Format
//
// [DumpsJSON] produces canonical output: map keys sorted, no
// insignificant whitespace. Freeze strings are built from this form so
// the same resolution always encodes to the same bytes. [WriteJSON]
// writes indented JSON for files meant to be read by people.
//
// # Atomic Writes
//
// [WriteFileAtomic] stages content in a temporary file in the target
// directory and renames it into place. Readers of the target path never
// observe a partial file, which matters for habcache files shared
// between concurrent hab processes.
package io
