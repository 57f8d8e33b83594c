package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/progress"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/transfer"
	"github.com/mixtape/mixtape/internal/util/paths"
)

// newGetCmd creates the 'get' command.
func newGetCmd() *cobra.Command {
	var (
		name      string
		assumeYes bool
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "get <link>",
		Short: "Resolve a link and download its audio",
		Long: `Resolve a media link and download the audio into the active destination.

You are asked to confirm the file name (the title, with .mp3) and, if a file
of that name exists, whether to overwrite it. Press Ctrl+C to pause; the
download picks up where it left off with 'mixtape resume'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := newPrompter(cmd.InOrStdin(), out, assumeYes)

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if verbose || debug {
				a.logEvents(ctx)
			}

			if err := clearPending(a, p, out); err != nil {
				return err
			}

			rc, err := a.resolver()
			if err != nil {
				return err
			}
			desc, err := rc.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Title: %s\n", desc.Title)
			fmt.Fprintf(out, "Size:  %s\n", sizeMB(desc.SizeBytes))

			fileName := paths.SuggestFileName(desc.Title)
			if name != "" {
				fileName = paths.NormalizeFileName(name)
			} else if fileName, err = p.promptFileName(fileName); err != nil {
				return err
			}

			req := transfer.StartRequest{Descriptor: desc, FileName: fileName}
			if overwrite {
				req.Decision = paths.Overwrite
			}
			run, err := a.manager.Start(ctx, req)
			var conflict *paths.ConflictError
			if errors.As(err, &conflict) {
				decision, perr := p.promptOverwrite(conflict.FileName, string(conflict.Locator))
				if perr != nil {
					return perr
				}
				if decision == paths.Abort {
					fmt.Fprintln(out, "Download aborted.")
					return nil
				}
				req.Decision = decision
				run, err = a.manager.Start(ctx, req)
			}
			if err != nil {
				alertIfRevoked(a, err)
				return err
			}

			return followRun(a, run, fileName, out)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "File name to save as (skips the prompt)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Accept the suggested name and discard any paused download")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file of the same name")

	return cmd
}

// newResumeCmd creates the 'resume' command.
func newResumeCmd() *cobra.Command {
	var (
		assumeYes bool
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a paused or failed download",
		Long: `Continue the retained download from the last byte saved to disk.

If the remote file changed since the download started, the partial data is
discarded and the next resume starts over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := newPrompter(cmd.InOrStdin(), out, assumeYes)

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if verbose || debug {
				a.logEvents(ctx)
			}

			s, err := a.manager.Restore()
			if err != nil {
				return err
			}
			if s == nil {
				fmt.Fprintln(out, "No download to resume.")
				return nil
			}

			decision := paths.Undecided
			if overwrite {
				decision = paths.Overwrite
			}
			run, err := a.manager.Resume(ctx, decision)
			var conflict *paths.ConflictError
			if errors.As(err, &conflict) {
				if decision, err = p.promptOverwrite(conflict.FileName, string(conflict.Locator)); err != nil {
					return err
				}
				if decision == paths.Abort {
					fmt.Fprintln(out, "Resume aborted. Run 'mixtape cancel' to discard the partial download.")
					return nil
				}
				run, err = a.manager.Resume(ctx, decision)
			}
			if err != nil {
				if storage.IsPermissionError(err) {
					fmt.Fprintln(out, "The destination is no longer accessible. The partial download was discarded.")
				}
				alertIfRevoked(a, err)
				return err
			}

			return followRun(a, run, s.FileName, out)
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to prompts")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace a file that appeared under the same name")

	return cmd
}

// newCancelCmd creates the 'cancel' command.
func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Discard the paused or failed download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.manager.Restore()
			if err != nil {
				return err
			}
			if s == nil {
				fmt.Fprintln(out, "Nothing to cancel.")
				return nil
			}
			if err := a.manager.Cancel(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Cancelled download of %s.\n", s.FileName)
			return nil
		},
	}
}

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the retained download, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.manager.Restore()
			if err != nil {
				return err
			}
			dest, err := a.dests.Active()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Destination: %s\n", dest)
			if s == nil {
				fmt.Fprintln(out, "No download in progress.")
				return nil
			}
			printSession(out, s)
			return nil
		},
	}
}

func printSession(out io.Writer, s *transfer.Session) {
	status := string(s.Status)
	if s.HeldElsewhere() {
		status = fmt.Sprintf("%s (process %d)", models.StatusInProgress, s.OwnerPID)
	}
	fmt.Fprintf(out, "File:        %s\n", s.FileName)
	fmt.Fprintf(out, "Status:      %s\n", status)
	fmt.Fprintf(out, "Saving to:   %s\n", s.Destination)

	pr := s.Progress()
	if pr.Indeterminate {
		fmt.Fprintf(out, "Progress:    %s\n", humanize.IBytes(uint64(pr.BytesWritten)))
	} else {
		fmt.Fprintf(out, "Progress:    %s of %s (%.1f%%)\n",
			humanize.IBytes(uint64(pr.BytesWritten)), humanize.IBytes(uint64(pr.TotalBytes)), pr.Fraction*100)
	}
	fmt.Fprintf(out, "Updated:     %s\n", humanize.Time(s.UpdatedAt))
	if s.LastError != nil {
		fmt.Fprintf(out, "Last error:  %v\n", s.LastError)
	}
	if s.Resumable() {
		fmt.Fprintln(out, "Run 'mixtape resume' to continue or 'mixtape cancel' to discard.")
	}
}

// clearPending deals with a session left by an earlier run before a new one
// starts. Only one session is kept, so starting over means discarding it.
func clearPending(a *app, p *prompter, out io.Writer) error {
	s, err := a.manager.Restore()
	if err != nil || s == nil {
		return err
	}
	if s.HeldElsewhere() {
		return fmt.Errorf("%w: %s is downloading in process %d", transfer.ErrAlreadyInProgress, s.FileName, s.OwnerPID)
	}

	fmt.Fprintf(out, "A %s download of %s is waiting (%s saved).\n",
		s.Status, s.FileName, humanize.IBytes(uint64(s.BytesWritten)))
	ok, err := p.confirm("Discard it and start a new download?")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run 'mixtape resume' or 'mixtape cancel' first", transfer.ErrPendingSession)
	}
	return a.manager.Cancel()
}

// followRun shows progress for run until it ends and reports the outcome.
// The run stops by itself when the command context ends, so the outcome is
// always delivered.
func followRun(a *app, run *transfer.Run, fileName string, out io.Writer) error {
	var ui *progress.DownloadUI
	var r progress.Reporter
	switch {
	case quiet:
		r = progress.NewNoOpProgress()
	case plain:
		r = progress.NewCLIProgress(nil)
	default:
		ui = progress.NewDownloadUI(fileName)
		r = ui
	}

	followed := make(chan struct{})
	go func() {
		defer close(followed)
		progress.Follow(run.Feed, r, fileName)
	}()

	o := <-run.Feed.Done()
	<-followed
	if ui != nil {
		ui.Complete(o)
		ui.Wait()
	} else if o.Status == models.StatusCompleted {
		r.Finish()
	} else {
		r.Error(nil)
	}
	return reportOutcome(a, o, out)
}

func reportOutcome(a *app, o events.Outcome, out io.Writer) error {
	switch o.Status {
	case models.StatusCompleted:
		fmt.Fprintf(out, "File downloaded to: %s\n", o.Locator)
		return nil
	case models.StatusPaused:
		fmt.Fprintf(out, "Download paused at %s. Run 'mixtape resume' to continue.\n",
			humanize.IBytes(uint64(o.Durable)))
		return nil
	}

	if transfer.IsCancelled(o.Err) {
		fmt.Fprintln(out, "Download cancelled.")
		return nil
	}
	if paths.IsConflict(o.Err) {
		fmt.Fprintln(out, "The file was kept. Run 'mixtape resume' to decide whether to replace it, or 'mixtape cancel' to discard it.")
		return fmt.Errorf("download not saved: %w", o.Err)
	}
	alertIfRevoked(a, o.Err)
	if s := a.manager.Snapshot(); s != nil && s.Resumable() {
		fmt.Fprintln(out, "Run 'mixtape resume' to retry or 'mixtape cancel' to discard.")
	}
	return fmt.Errorf("download failed (%s): %w", transfer.Kind(o.Err), o.Err)
}

// alertIfRevoked raises a desktop alert when a granted destination can no
// longer be written.
func alertIfRevoked(a *app, err error) {
	if err != nil && storage.IsPermissionError(err) {
		a.notifier.Alert(fmt.Sprintf("Cannot write to the download destination: %v", err))
	}
}
