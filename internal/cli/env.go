package cli

import (
	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/launch"
	"github.com/talusfx/hab/pkg/render"
)

// =============================================================================
// Shared Script Flags
// =============================================================================

// scriptFlags are the script output options env, activate and launch
// share.
type scriptFlags struct {
	launch      string
	dumpScripts bool
	scriptDir   string
	scriptExt   string
}

// register binds the flags. The --launch flag is skipped for commands
// that take the alias as a positional argument.
func (f *scriptFlags) register(cmd *cobra.Command, withLaunch bool) {
	if withLaunch {
		cmd.Flags().StringVarP(&f.launch, "launch", "l", "",
			"Run this alias after activating. This leaves the new shell active.")
	}
	cmd.Flags().BoolVar(&f.dumpScripts, "dump-scripts", false,
		"Print the generated scripts instead of writing them.")
	cmd.Flags().StringVar(&f.scriptDir, "script-dir", "",
		"Write scripts into this directory instead of a scratch dir.")
	cmd.Flags().StringVar(&f.scriptExt, "script-ext", "",
		"Script extension selecting the target shell, like .sh or .ps1.")
}

// =============================================================================
// env Command
// =============================================================================

// envCommand creates the env command.
func (c *CLI) envCommand() *cobra.Command {
	var flags scriptFlags
	cmd := &cobra.Command{
		Use:   "env URI",
		Short: "Configure and launch a new shell with the resolved setup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.writeScripts(cmd, args[0], flags, true)
		},
	}
	flags.register(cmd, true)
	return cmd
}

// =============================================================================
// activate Command
// =============================================================================

// activateCommand creates the activate command.
func (c *CLI) activateCommand() *cobra.Command {
	var flags scriptFlags
	cmd := &cobra.Command{
		Use:   "activate URI",
		Short: "Resolve the setup and update the current shell",
		Long: `Resolve the setup and update the current shell.

In powershell and bash you must use the source dot: ". hab activate ..."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.writeScripts(cmd, args[0], flags, false)
		},
	}
	flags.register(cmd, true)
	return cmd
}

// =============================================================================
// Script Writing
// =============================================================================

// writeScripts resolves uri and renders its scripts. env opens a new
// shell so it also writes the launch wrapper; activate only writes the
// config script the caller sources in place.
func (c *CLI) writeScripts(cmd *cobra.Command, uri string, flags scriptFlags, launchScript bool) error {
	ctx := cmd.Context()
	cfg, err := c.resolveURI(ctx, uri)
	if err != nil {
		return err
	}

	opts := render.ScriptOptions{
		Dir:          flags.scriptDir,
		Ext:          flags.scriptExt,
		Launch:       flags.launch,
		LaunchScript: launchScript,
	}

	if flags.dumpScripts {
		files, err := render.Build(ctx, cfg, opts)
		if err != nil {
			return err
		}
		return render.Dump(cmd.OutOrStdout(), files)
	}

	if opts.Dir == "" {
		scratch := &launch.Scratch{Logger: c.Logger}
		dir, err := scratch.Dir(ctx)
		if err != nil {
			return err
		}
		opts.Dir = dir
	}

	files, err := render.Build(ctx, cfg, opts)
	if err != nil {
		return err
	}
	if err := render.Write(files); err != nil {
		return err
	}
	for _, f := range files {
		printFile(f.Path)
	}
	return nil
}
