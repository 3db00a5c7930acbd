package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/errors"
)

// setURICommand creates the set-uri command.
func (c *CLI) setURICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-uri [URI]",
		Short: "Save a URI as the user's default",
		Long: `Save a URI as the user's default.

The saved URI stands in wherever a command accepts "-". Without an
argument the current saved state is reported instead. Saving again
refreshes the expiry when the site sets prefs_uri_timeout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.Prefs()
			if err != nil {
				return err
			}
			if p.Hidden() {
				return errors.New(errors.ErrCodeInvalidInput,
					"user prefs are disabled for this site")
			}
			if c.noPrefs {
				return errors.New(errors.ErrCodeInvalidInput,
					"cannot save a URI with --no-prefs")
			}
			// Saving is an explicit request, it works even when the
			// site leaves prefs off by default.
			p.SetEnabled(true)

			if len(args) == 0 {
				saved := p.Check()
				if saved.URI == "" {
					printInfo("No URI is saved")
					return nil
				}
				printKeyValue("URI", saved.URI)
				if !saved.Saved.IsZero() {
					printKeyValue("Saved", saved.Saved.Format(time.RFC1123))
				}
				if saved.TimedOut {
					printWarning("The saved URI has expired, re-save it with hab set-uri %s", saved.URI)
				}
				return nil
			}

			ctx := cmd.Context()
			uri, err := p.Substitute(args[0])
			if err != nil {
				return err
			}

			r, err := c.Resolver()
			if err != nil {
				return err
			}
			uri, err = r.URIValidate(ctx, uri)
			if err != nil {
				return err
			}
			// A full resolve is not needed, the URI just has to map
			// into the config forest.
			if _, err := r.ClosestConfig(uri); err != nil {
				return err
			}

			if err := p.SaveURI(uri); err != nil {
				return err
			}
			printSuccess("Saved %s", uri)
			printNextStep("Use it", "hab env -")
			return nil
		},
	}
}
