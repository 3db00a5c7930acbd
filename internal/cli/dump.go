package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/freeze"
	"github.com/talusfx/hab/pkg/resolver"
)

// Report types and output formats dump accepts. The single letter
// forms match the long names they abbreviate.
const (
	dumpTypeConfig  = "cfg"
	dumpTypeSite    = "site"
	dumpTypeFreeze  = "freeze"
	dumpTypeAllURIs = "all-uris"
	dumpTypeForest  = "forest"

	dumpFormatText   = "text"
	dumpFormatFreeze = "freeze"
	dumpFormatJSON   = "json"
)

// dumpFlags holds the dump command's flag state.
type dumpFlags struct {
	reportType string
	format     string
	unfreeze   string
	env        bool
	noEnv      bool
	envConfig  bool
}

// dumpCommand creates the dump command.
func (c *CLI) dumpCommand() *cobra.Command {
	var flags dumpFlags
	cmd := &cobra.Command{
		Use:   "dump [URI]",
		Short: "Resolve and print the requested setup",
		Long: `Resolve and print the requested setup.

The default report is the resolved config for a URI. Other report
types inspect the site, the loaded forests or every URI at once, and
--unfreeze decodes a freeze string or file instead of resolving.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := ""
			if len(args) > 0 {
				uri = args[0]
			}
			return c.runDump(cmd, uri, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.reportType, "type", "t", dumpTypeConfig,
		"Type of report: cfg, site, freeze, all-uris or forest.")
	cmd.Flags().StringVarP(&flags.format, "format", "f", dumpFormatText,
		"Output format: text, freeze or json.")
	cmd.Flags().StringVar(&flags.unfreeze, "unfreeze", "",
		"Decode this freeze string, or the freeze stored in this file, instead of resolving.")
	cmd.Flags().BoolVar(&flags.env, "env", true,
		"Show the composed environment variables.")
	cmd.Flags().BoolVar(&flags.noEnv, "no-env", false,
		"Hide the composed environment variables.")
	cmd.Flags().BoolVar(&flags.envConfig, "envc", false,
		"Show the environment edits as declared instead of just their result.")

	return cmd
}

// dumpOptions maps global and dump flags onto resolver dump options.
func (c *CLI) dumpOptions(flags dumpFlags) resolver.DumpOptions {
	return resolver.DumpOptions{
		Verbosity:       c.verbosity,
		Color:           c.colorize(),
		HideEnvironment: flags.noEnv || !flags.env,
		ShowOperations:  flags.envConfig,
	}
}

// runDump dispatches on the report type. --unfreeze wins over the
// type since the decoded snapshot replaces resolving entirely.
func (c *CLI) runDump(cmd *cobra.Command, uri string, flags dumpFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch flags.format {
	case dumpFormatText, dumpFormatFreeze, dumpFormatJSON:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown dump format %q", flags.format)
	}

	r, err := c.Resolver()
	if err != nil {
		return err
	}

	if flags.unfreeze != "" {
		cfg, err := unfreezeArg(r, flags.unfreeze)
		if err != nil {
			return err
		}
		return c.dumpUnfrozen(cmd, cfg, flags)
	}

	switch flags.reportType {
	case dumpTypeSite, "s":
		fmt.Fprintln(out, r.DumpSite(resolver.DumpOptions{
			Verbosity: c.verbosity,
			Color:     c.colorize(),
		}))
		return nil

	case dumpTypeForest, "f":
		opts := resolver.ForestDumpOptions{Filenames: c.verbosity >= 1}
		configs, err := r.DumpConfigs(opts)
		if err != nil {
			return err
		}
		distros, err := r.DumpDistros(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, sectionLine("Configs"))
		fmt.Fprintln(out, configs)
		fmt.Fprintln(out, sectionLine("Distros"))
		fmt.Fprintln(out, distros)
		return nil

	case dumpTypeAllURIs:
		return c.dumpAllURIs(cmd, flags)

	case dumpTypeConfig, "c", dumpTypeFreeze:
		if uri == "" {
			return errors.New(errors.ErrCodeInvalidInput, "a URI is required for a %q dump", flags.reportType)
		}
		cfg, err := c.resolveURI(ctx, uri)
		if err != nil {
			return err
		}
		if flags.reportType == dumpTypeFreeze {
			flags.format = dumpFormatFreeze
		}
		return c.dumpFlat(cmd, cfg, flags)

	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown dump type %q", flags.reportType)
	}
}

// dumpFlat prints one resolved config in the requested format.
func (c *CLI) dumpFlat(cmd *cobra.Command, cfg *resolver.FlatConfig, flags dumpFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch flags.format {
	case dumpFormatFreeze:
		frozen, err := cfg.FreezeString(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, frozen)
	case dumpFormatJSON:
		frozen, err := cfg.Freeze(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(frozen, "", "    ")
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encoding freeze of %q", cfg.URI())
		}
		fmt.Fprintln(out, string(data))
	default:
		text, err := cfg.Dump(ctx, c.dumpOptions(flags))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
	return nil
}

// dumpUnfrozen prints a decoded freeze in the requested format. A
// freeze format round-trips the snapshot back through the encoder.
func (c *CLI) dumpUnfrozen(cmd *cobra.Command, cfg *resolver.UnfrozenConfig, flags dumpFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch flags.format {
	case dumpFormatFreeze:
		frozen, err := cfg.FreezeString(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, frozen)
	case dumpFormatJSON:
		data, err := json.MarshalIndent(cfg.Frozen(), "", "    ")
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encoding freeze of %q", cfg.URI())
		}
		fmt.Fprintln(out, string(data))
	default:
		text, err := cfg.Dump(ctx, c.dumpOptions(flags))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
	return nil
}

// dumpAllURIs resolves every concrete URI. Errors for individual URIs
// print inline so one broken config does not hide the rest.
func (c *CLI) dumpAllURIs(cmd *cobra.Command, flags dumpFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	r, err := c.Resolver()
	if err != nil {
		return err
	}

	if flags.format == dumpFormatJSON {
		frozen, err := r.FreezeConfigs(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(frozen, "", "    ")
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encoding freeze map")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	configs, err := r.Configs()
	if err != nil {
		return err
	}
	for i, uri := range configs.URIs() {
		if i > 0 && flags.format != dumpFormatFreeze {
			fmt.Fprintln(out)
		}
		flat, err := r.Resolve(ctx, uri)
		if err != nil {
			fmt.Fprintf(out, "Error resolving %s: %s\n", uri, errors.UserMessage(err))
			continue
		}
		if flags.format == dumpFormatFreeze {
			frozen, err := flat.FreezeString(ctx)
			if err != nil {
				fmt.Fprintf(out, "Error resolving %s: %s\n", uri, errors.UserMessage(err))
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", uri, frozen)
			continue
		}
		text, err := flat.Dump(ctx, c.dumpOptions(flags))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
	return nil
}

// unfreezeArg resolves the --unfreeze value. An existing .json file
// holds the frozen document itself, any other existing file holds the
// encoded string, otherwise the value is the encoded string.
func unfreezeArg(r *resolver.Resolver, value string) (*resolver.UnfrozenConfig, error) {
	info, err := os.Stat(value)
	if err != nil || info.IsDir() {
		return r.UnfreezeString(value)
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "reading freeze file %q", value)
	}
	if strings.HasSuffix(strings.ToLower(value), ".json") {
		var frozen freeze.Frozen
		if err := json.Unmarshal(data, &frozen); err != nil {
			return nil, errors.Wrap(errors.ErrCodeFreezeDecode, err, "parsing freeze file %q", value)
		}
		return r.Unfreeze(&frozen), nil
	}
	return r.UnfreezeString(strings.TrimSpace(string(data)))
}
