package cli

import (
	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/launch"
	"github.com/talusfx/hab/pkg/render"
)

// launchCommand creates the launch command.
func (c *CLI) launchCommand() *cobra.Command {
	var flags scriptFlags
	cmd := &cobra.Command{
		Use:   "launch URI ALIAS [args...]",
		Short: "Run a single alias without modifying the current shell",
		Long: `Run a single alias without modifying the current shell.

The first argument is a URI, the second the ALIAS to launch. Any
additional arguments are passed to the alias. The alias runs inside
the fully resolved environment and its exit code becomes hab's.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uri, alias, rest := args[0], args[1], args[2:]

			cfg, err := c.resolveURI(ctx, uri)
			if err != nil {
				return err
			}

			if flags.dumpScripts {
				files, err := render.Build(ctx, cfg, render.ScriptOptions{
					Dir:          flags.scriptDir,
					Ext:          flags.scriptExt,
					Launch:       alias,
					Args:         rest,
					Exit:         true,
					LaunchScript: true,
				})
				if err != nil {
					return err
				}
				return render.Dump(cmd.OutOrStdout(), files)
			}

			code, err := launch.Run(ctx, cfg, alias, launch.Options{
				Args:   rest,
				Logger: c.Logger,
			})
			if err != nil {
				return err
			}
			c.ExitCode = code
			return nil
		},
	}
	// Flags after the alias belong to the alias, not to hab.
	cmd.Flags().SetInterspersed(false)
	flags.register(cmd, false)
	return cmd
}
