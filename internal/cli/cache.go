package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/talusfx/hab/pkg/cache"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/site"
)

// cacheCommand creates the habcache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "cache SITE_FILE",
		Short: "Write a habcache sidecar next to a site file",
		Long: `Write a habcache sidecar next to a site file.

The cache records every config and distro file the site's glob paths
currently match, with contents and mtimes, so later runs skip the
filesystem scan. Re-run after config or distro edits, or pass
--no-cache to remove the sidecar and return to live scans.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sitePath := args[0]
			s, err := site.Load([]string{sitePath}, nil, c.Logger)
			if err != nil {
				return err
			}

			if remove {
				target := cache.Path(s.CacheFileTemplate(), sitePath)
				if err := os.Remove(target); err != nil {
					if os.IsNotExist(err) {
						printInfo("No cache to remove for %s", sitePath)
						return nil
					}
					return errors.Wrap(errors.ErrCodeInternal, err, "unable to remove cache %q", target)
				}
				printSuccess("Removed cache")
				printFile(target)
				return nil
			}

			prog := newProgress(c.Logger)
			written, err := cache.New(s, c.Logger).Write(sitePath)
			if err != nil {
				return err
			}
			prog.done("Cached " + sitePath)
			printSuccess("Cached site")
			printFile(written)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "no-cache", false,
		"Remove the site's cache file instead of writing it.")

	return cmd
}
