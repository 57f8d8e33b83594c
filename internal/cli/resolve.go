package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newResolveCmd creates the 'resolve' command.
func newResolveCmd() *cobra.Command {
	var (
		ping   bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [link]",
		Short: "Resolve a link to its audio stream without downloading",
		Long: `Ask the resolver proxy for the audio stream behind a link and print what
it returns. With --ping, only check that the proxy is reachable.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if ping {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			rc, err := a.resolver()
			if err != nil {
				return err
			}

			if ping {
				if err := rc.Ping(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(out, "Resolver at %s is up.\n", rc.BaseURL())
				return nil
			}

			desc, err := rc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(desc)
			}
			fmt.Fprintf(out, "Title:    %s\n", desc.Title)
			fmt.Fprintf(out, "Size:     %s\n", sizeMB(desc.SizeBytes))
			if desc.Duration > 0 {
				fmt.Fprintf(out, "Duration: %s\n", (time.Duration(desc.Duration * float64(time.Second))).Round(time.Second))
			}
			fmt.Fprintf(out, "Stream:   %s\n", desc.StreamURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Only check that the resolver proxy is up")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the descriptor as JSON")

	return cmd
}
