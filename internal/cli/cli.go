package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/buildinfo"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/pep440"
	"github.com/talusfx/hab/pkg/prefs"
	"github.com/talusfx/hab/pkg/resolver"
	"github.com/talusfx/hab/pkg/site"
)

// =============================================================================
// Constants
// =============================================================================

// Log levels exported for use in main.go.
const (
	LogWarn  = log.WarnLevel
	LogInfo  = log.InfoLevel
	LogDebug = log.DebugLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands. The site, resolver and
// prefs build lazily on first use so flag parsing stays cheap and a
// bad site file only errors commands that need it.
type CLI struct {
	Logger *log.Logger

	// ExitCode carries a launched child's exit status out of Execute
	// when no error occurred.
	ExitCode int

	// Global flag state, bound by RootCommand.
	sitePaths     []string
	verbosity     int
	prefsOn       bool
	noPrefs       bool
	savePrefs     bool
	requirements  []string
	cached        bool
	noCached      bool
	pre           bool
	noPre         bool
	loggingConfig string

	site     *site.Site
	resolver *resolver.Resolver
	prefs    *prefs.Prefs
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands
// registered and the global flags bound.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hab",
		Short:         "Hab resolves URIs into launchable environments",
		Long:          `Hab maps slash-separated URIs like "project/Sc001/Animation" to fully specified environments: variables, aliases and pinned distro versions, emitted as shell scripts or launched directly.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.SetLogLevel(levelFor(c.verbosity))
			if c.loggingConfig != "" {
				if err := applyLoggingConfig(c.Logger, c.loggingConfig); err != nil {
					return err
				}
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringArrayVar(&c.sitePaths, "site", nil,
		"Site json file to load settings from. Repeatable, first file wins merges. Uses HAB_PATHS when not passed.")
	flags.CountVarP(&c.verbosity, "verbose", "v",
		"Increase output and logging verbosity. Can be used up to 3 times.")
	flags.BoolVar(&c.prefsOn, "prefs", false, "Enable user prefs for this run.")
	flags.BoolVar(&c.noPrefs, "no-prefs", false, "Disable user prefs for this run.")
	flags.BoolVar(&c.savePrefs, "save-prefs", false, "Save the resolved URI to user prefs.")
	flags.StringArrayVarP(&c.requirements, "requirement", "r", nil,
		"Force this distro requirement, overriding resolved requirements. Repeatable.")
	flags.BoolVar(&c.cached, "cached", false, "Allow habcache reads (the default).")
	flags.BoolVar(&c.noCached, "no-cached", false, "Skip habcache reads and scan the filesystem.")
	flags.BoolVar(&c.pre, "pre", false, "Let pre-release distro versions satisfy requirements.")
	flags.BoolVar(&c.noPre, "no-pre", false, "Exclude pre-release distro versions.")
	flags.StringVar(&c.loggingConfig, "logging-config", "",
		"TOML file overriding log level, time format and output file.")

	// Register all subcommands
	root.AddCommand(c.envCommand())
	root.AddCommand(c.activateCommand())
	root.AddCommand(c.launchCommand())
	root.AddCommand(c.dumpCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.setURICommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Lazy State
// =============================================================================

// Site loads the merged site on first use.
func (c *CLI) Site() (*site.Site, error) {
	if c.site != nil {
		return c.site, nil
	}
	s, err := site.Load(c.sitePaths, nil, c.Logger)
	if err != nil {
		return nil, err
	}
	c.site = s
	return s, nil
}

// Resolver builds the resolver over the loaded site on first use,
// applying the -r, --pre and --no-cached flags.
func (c *CLI) Resolver() (*resolver.Resolver, error) {
	if c.resolver != nil {
		return c.resolver, nil
	}
	s, err := c.Site()
	if err != nil {
		return nil, err
	}

	r := resolver.New(s, c.Logger)
	if len(c.requirements) > 0 {
		forced, err := pep440.ParseRequirements(c.requirements)
		if err != nil {
			return nil, err
		}
		r.Forced = forced
	}
	if c.pre {
		r.Prereleases = true
	} else if c.noPre {
		r.Prereleases = false
	}
	if c.noCached {
		r.Cache().Enabled = false
	}
	c.resolver = r.WithVerbosityTarget("hab", c.verbosity)
	return c.resolver, nil
}

// Prefs builds the user prefs handler on first use, applying the
// --prefs and --no-prefs flags.
func (c *CLI) Prefs() (*prefs.Prefs, error) {
	if c.prefs != nil {
		return c.prefs, nil
	}
	s, err := c.Site()
	if err != nil {
		return nil, err
	}
	p := prefs.New(s, c.Logger)
	if c.noPrefs {
		p.SetEnabled(false)
	} else if c.prefsOn || c.savePrefs {
		p.SetEnabled(true)
	}
	c.prefs = p
	return p, nil
}

// resolveURI substitutes the "-" shorthand, resolves the URI and
// handles --save-prefs.
func (c *CLI) resolveURI(ctx context.Context, uri string) (*resolver.FlatConfig, error) {
	p, err := c.Prefs()
	if err != nil {
		return nil, err
	}
	uri, err = p.Substitute(uri)
	if err != nil {
		return nil, err
	}

	r, err := c.Resolver()
	if err != nil {
		return nil, err
	}
	cfg, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, &errors.ResolveError{URI: uri, Cause: err}
	}

	if c.savePrefs {
		if err := p.SaveURI(cfg.URI()); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// colorize reports whether styled output is wanted: the site must
// allow it and stdout must be a terminal.
func (c *CLI) colorize() bool {
	s, err := c.Site()
	if err != nil || !s.Colorize() {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
