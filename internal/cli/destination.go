package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage/grant"
)

// newDestinationCmd creates the 'destination' command group.
func newDestinationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "destination",
		Aliases: []string{"dest"},
		Short:   "Choose where downloads are saved",
		Long: `Downloads go to the private download folder unless you grant access to
an external location and select it.

Commands:
  show     - Show the active destination and granted locations
  sandbox  - Save to the private download folder
  grant    - Grant access to a directory, S3 prefix or Azure container and use it
  use      - Switch to a location granted earlier
  revoke   - Forget a granted location

The destination cannot change while a download is running. A paused download
still finishes where it started.`,
	}

	cmd.AddCommand(newDestinationShowCmd())
	cmd.AddCommand(newDestinationSandboxCmd())
	cmd.AddCommand(newDestinationGrantCmd())
	cmd.AddCommand(newDestinationUseCmd())
	cmd.AddCommand(newDestinationRevokeCmd())

	return cmd
}

func newDestinationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active destination and granted locations",
		Args:  cobra.NoArgs,
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
			fmt.Fprintf(out, "Active:  %s\n", dest)
			fmt.Fprintf(out, "Sandbox: %s\n", a.dests.Sandbox().BasePath)

			grants, err := a.dests.Grants()
			if err != nil {
				return err
			}
			if len(grants) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tPROVIDER\tLOCATION\tGRANTED")
			for _, g := range grants {
				marker := ""
				if dest.IsGranted() && dest.GrantToken == g.Token {
					marker = " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\n", shortToken(g.Token), g.Provider, g.Label, marker, humanize.Time(g.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newDestinationSandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox",
		Short: "Save downloads to the private download folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.manager.Restore(); err != nil {
				return err
			}
			sandbox := a.dests.Sandbox()
			if err := a.manager.SetDestination(sandbox); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saving downloads to %s\n", sandbox.BasePath)
			return nil
		},
	}
}

func newDestinationGrantCmd() *cobra.Command {
	var (
		label     string
		assumeYes bool
		noUse     bool
	)

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant access to an external location",
		Long: `Grant mixtape access to a location outside the private download folder.
The location is checked with a test write before it is recorded, and then
becomes the active destination unless --no-use is given.`,
	}
	cmd.PersistentFlags().StringVar(&label, "label", "", "Name shown for the location")
	cmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the consent prompt")
	cmd.PersistentFlags().BoolVar(&noUse, "no-use", false, "Record the grant without switching to it")

	finish := func(cmd *cobra.Command, rec models.GrantRecord, err error) error {
		if err != nil {
			return err
		}
		return grantAndUse(cmd, rec, assumeYes, !noUse)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dir <path>",
		Short: "Grant access to a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := grant.NewDirectoryRecord(args[0], label)
			return finish(cmd, rec, err)
		},
	})

	var s3cfg models.S3Grant
	s3Cmd := &cobra.Command{
		Use:   "s3",
		Short: "Grant access to an S3 bucket prefix",
		Long: `Grant access to an S3 bucket prefix. Without --access-key the default AWS
credential chain is used (environment, shared config, instance role).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := grant.NewS3Record(s3cfg, label)
			return finish(cmd, rec, err)
		},
	}
	s3Cmd.Flags().StringVar(&s3cfg.Bucket, "bucket", "", "Bucket name (required)")
	s3Cmd.Flags().StringVar(&s3cfg.Prefix, "prefix", "", "Key prefix")
	s3Cmd.Flags().StringVar(&s3cfg.Region, "region", "", "Bucket region")
	s3Cmd.Flags().StringVar(&s3cfg.Endpoint, "endpoint", "", "Custom endpoint for S3-compatible stores")
	s3Cmd.Flags().StringVar(&s3cfg.AccessKeyID, "access-key", "", "Access key ID")
	s3Cmd.Flags().StringVar(&s3cfg.SecretKey, "secret-key", "", "Secret access key")
	s3Cmd.Flags().StringVar(&s3cfg.SessionToken, "session-token", "", "Session token")
	_ = s3Cmd.MarkFlagRequired("bucket")
	cmd.AddCommand(s3Cmd)

	var azcfg models.AzureGrant
	azCmd := &cobra.Command{
		Use:   "azure",
		Short: "Grant access to an Azure blob container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := grant.NewAzureRecord(azcfg, label)
			return finish(cmd, rec, err)
		},
	}
	azCmd.Flags().StringVar(&azcfg.ContainerSASURL, "sas-url", "", "Container SAS URL (required)")
	azCmd.Flags().StringVar(&azcfg.Prefix, "prefix", "", "Blob name prefix")
	_ = azCmd.MarkFlagRequired("sas-url")
	cmd.AddCommand(azCmd)

	return cmd
}

// grantAndUse asks for consent, records the grant and optionally makes it
// the active destination.
func grantAndUse(cmd *cobra.Command, rec models.GrantRecord, assumeYes, use bool) error {
	out := cmd.OutOrStdout()
	p := newPrompter(cmd.InOrStdin(), out, assumeYes)

	ok, err := p.confirm(fmt.Sprintf("Allow mixtape to save downloads to %s?", rec.Label))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Access not granted.")
		return nil
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dest, err := a.dests.Grant(cmd.Context(), rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Access granted to %s (token %s).\n", rec.Label, shortToken(rec.Token))
	if !use {
		return nil
	}

	if _, err := a.manager.Restore(); err != nil {
		return err
	}
	if err := a.manager.SetDestination(dest); err != nil {
		return fmt.Errorf("granted, but not selected: %w", err)
	}
	fmt.Fprintf(out, "Saving downloads to %s\n", rec.Label)
	return nil
}

func newDestinationUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <token|label>",
		Short: "Switch to a location granted earlier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := findGrant(a, args[0])
			if err != nil {
				return err
			}
			if _, err := a.manager.Restore(); err != nil {
				return err
			}
			if err := a.manager.SetDestination(models.GrantedTo(rec.Token, rec.Label)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saving downloads to %s\n", rec.Label)
			return nil
		},
	}
}

func newDestinationRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token|label>",
		Short: "Forget a granted location",
		Long: `Forget a granted location. If it is the active destination, downloads go
to the private download folder again. Files already saved there are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := findGrant(a, args[0])
			if err != nil {
				return err
			}
			active, err := a.dests.Active()
			if err != nil {
				return err
			}
			if active.IsGranted() && active.GrantToken == rec.Token {
				// Switching first is rejected while a download is running
				if _, err := a.manager.Restore(); err != nil {
					return err
				}
				if err := a.manager.SetDestination(a.dests.Sandbox()); err != nil {
					return err
				}
			}
			if err := a.dests.Revoke(rec.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked access to %s.\n", rec.Label)
			return nil
		},
	}
}

// findGrant matches a full token, a token prefix of at least eight
// characters, or a label.
func findGrant(a *app, ref string) (models.GrantRecord, error) {
	grants, err := a.dests.Grants()
	if err != nil {
		return models.GrantRecord{}, err
	}
	var matches []models.GrantRecord
	for _, g := range grants {
		switch {
		case g.Token == ref, g.Label == ref:
			return g, nil
		case len(ref) >= 8 && strings.HasPrefix(g.Token, ref):
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 0:
		return models.GrantRecord{}, fmt.Errorf("no granted location matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return models.GrantRecord{}, errors.New("token prefix is ambiguous, give more characters")
	}
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
