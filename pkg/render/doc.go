// Package render writes resolved configurations as shell scripts.
//
// # Overview
//
// A resolved configuration only becomes useful once a shell sources it.
// This package turns the composed environment and aliases into one or
// two short scripts:
//
//   - hab_config: sets the prompt, environment variables and alias
//     functions for the calling shell.
//   - hab_launch: a one line wrapper that opens a new shell sourcing
//     hab_config. Written for `env` and `launch` style invocations.
//
// # Shells
//
// Three shells are supported, selected by the script extension through
// [ForExt]:
//
//   - [Sh]: bash (.sh or no extension)
//   - [PS]: PowerShell (.ps1)
//   - [Batch]: command prompt (.bat, .cmd)
//
// Each implements [Shell], writing its fragments into a buffer. Alias
// functions with scoped environment edits save every touched variable,
// apply the edits, run the command, and restore the previous values on
// the way out, including variables that did not exist before.
//
// # Usage
//
//	files, err := render.Build(ctx, flat, render.ScriptOptions{
//	    Dir: scratch,
//	    Ext: ".sh",
//	})
//	err = render.Write(files)
//
// [Dump] prints the generated scripts annotated with their would-be
// paths instead of writing them, backing the --dump-scripts flag.
package render
