package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/mixtape/mixtape/internal/registry"
)

// newListCmd creates the 'list' command.
func newListCmd() *cobra.Command {
	var filter registry.Filter

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List downloaded files in the active destination",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			dest, err := a.dests.Active()
			if err != nil {
				return err
			}
			entries, err := a.registry.ListAt(cmd.Context(), dest)
			if err != nil {
				return err
			}
			entries = filter.Apply(entries)

			fmt.Fprintf(out, "Destination: %s\n", dest)
			if len(entries) == 0 {
				if filter.Empty() {
					fmt.Fprintln(out, "No downloads yet.")
				} else {
					fmt.Fprintln(out, "No downloads match.")
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE")
			var total int64
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.DisplayName(), humanize.IBytes(uint64(e.SizeBytes)))
				total += e.SizeBytes
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s, %s\n", english.Plural(len(entries), "file", ""), humanize.IBytes(uint64(total)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&filter.Include, "include", nil, "Only names matching these globs")
	cmd.Flags().StringSliceVar(&filter.Exclude, "exclude", nil, "Skip names matching these globs")
	cmd.Flags().StringSliceVarP(&filter.Search, "search", "s", nil, "Only names containing all of these terms")

	return cmd
}

// newDeleteCmd creates the 'delete' command.
func newDeleteCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a downloaded file",
		Long: `Delete a downloaded file from the active destination. The name may be the
stored file name or the name shown by 'mixtape list'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p := newPrompter(cmd.InOrStdin(), out, assumeYes)

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			entry, err := a.registry.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ok, err := p.confirm(fmt.Sprintf("Are you sure you want to delete '%s'?", entry.DisplayName()))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Nothing deleted.")
				return nil
			}
			if err := a.registry.Delete(cmd.Context(), entry); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %s.\n", entry.FileName)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Delete without asking")

	return cmd
}

// newExportCmd creates the 'export' command.
func newExportCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "export <name> [path]",
		Short: "Copy a downloaded file out of the active destination",
		Long: `Copy a downloaded file to a local path, by default the current directory.
When the path is a directory the stored file name is kept. Files in a granted
cloud location are fetched through the grant.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			entry, err := a.registry.Find(ctx, args[0])
			if err != nil {
				return err
			}
			target := "."
			if len(args) == 2 {
				target = args[1]
			}
			if info, err := os.Stat(target); err == nil && info.IsDir() {
				target = filepath.Join(target, entry.FileName)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("%s already exists (use --overwrite to replace it)", target)
				}
			}

			rc, err := a.registry.Open(ctx, entry)
			if err != nil {
				alertIfRevoked(a, err)
				return err
			}
			defer rc.Close()
			n, err := copyToFile(target, rc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Exported %s (%s) to %s\n", entry.DisplayName(), humanize.IBytes(uint64(n)), target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file at the target path")

	return cmd
}

// copyToFile writes r next to path and renames it into place, so a failed
// copy leaves nothing at path.
func copyToFile(path string, r io.Reader) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to export to %s: %w", path, err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
		return 0, fmt.Errorf("failed to export to %s: %w", path, err)
	}
	return n, nil
}
