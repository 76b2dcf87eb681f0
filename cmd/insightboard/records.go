package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/tracker"
)

var (
	submitPersona string
	submitName    string
	submitContext string
	outputJSON    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a recording for analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Poll the backend once and print the job list",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the insight of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll continuously and print the list whenever it changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	submitCmd.Flags().StringVarP(&submitPersona, "persona", "p", string(jobs.DefaultPersona), "Analysis persona (FOUNDER, DESIGNER, FITTER, SALES)")
	submitCmd.Flags().StringVarP(&submitName, "name", "n", "", "Display name for the recording")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "Free-text hint passed to the analysis")
	for _, c := range []*cobra.Command{listCmd, showCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print JSON instead of text")
	}
	rootCmd.AddCommand(submitCmd, listCmd, showCmd, deleteCmd, watchCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	persona, err := jobs.ParsePersona(submitPersona)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	d, release, err := openDashboard(cmd.Context(), cfg, newCLILogger(cfg))
	if err != nil {
		return err
	}
	defer release()

	rec, err := d.Submit(cmd.Context(), tracker.SubmitRequest{
		File:        f,
		FileName:    filepath.Base(args[0]),
		Size:        info.Size(),
		Persona:     persona,
		Context:     submitContext,
		DisplayName: submitName,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "submitted %s as %s\n", rec.DisplayName, rec.ID)
	if rec.ExpectedID != "" {
		fmt.Fprintf(out, "backend id %s\n", rec.ExpectedID)
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, release, err := openDashboard(cmd.Context(), cfg, newCLILogger(cfg))
	if err != nil {
		return err
	}
	defer release()

	if err := d.Refresh(cmd.Context()); err != nil {
		return err
	}
	if outputJSON {
		return writeJSONTo(cmd.OutOrStdout(), d.Records())
	}
	return printRecords(cmd.OutOrStdout(), d.Records())
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, release, err := openDashboard(cmd.Context(), cfg, newCLILogger(cfg))
	if err != nil {
		return err
	}
	defer release()

	if err := d.Refresh(cmd.Context()); err != nil {
		return err
	}
	det, err := d.Detail(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSONTo(cmd.OutOrStdout(), det)
	}
	printDetail(cmd.OutOrStdout(), det)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, release, err := openDashboard(cmd.Context(), cfg, newCLILogger(cfg))
	if err != nil {
		return err
	}
	defer release()

	if _, ok := tracker.Find(d.Records(), args[0]); !ok {
		if err := d.Refresh(cmd.Context()); err != nil {
			return err
		}
	}
	if err := d.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, release, err := openDashboard(ctx, cfg, newCLILogger(cfg))
	if err != nil {
		return err
	}
	defer release()

	updates, unsubscribe := d.Board().Subscribe()
	defer unsubscribe()
	view, err := d.Open(ctx)
	if err != nil {
		return err
	}
	defer view.Close()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case recs := <-updates:
			fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
			if err := printRecords(out, recs); err != nil {
				return err
			}
		}
	}
}

func printRecords(w io.Writer, recs []jobs.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPERSONA\tCREATED")
	for _, r := range recs {
		status := string(r.Status)
		if r.Stale {
			status += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.DisplayName, status, r.Persona, r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printDetail(w io.Writer, det *tracker.Detail) {
	r := det.Record
	fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.DisplayName, r.Persona.Label())
	if in := r.Insight; in != nil {
		if in.Title != "" {
			fmt.Fprintf(w, "\n%s\n", in.Title)
		}
		fmt.Fprintf(w, "\n%s\n", in.Summary)
		if len(in.ActionItems) > 0 {
			fmt.Fprintln(w, "\nAction items:")
			for _, a := range in.ActionItems {
				fmt.Fprintf(w, "  - %s\n", a)
			}
		}
		if len(in.Transcript) > 0 {
			fmt.Fprintln(w, "\nTranscript:")
			for _, s := range in.Transcript {
				fmt.Fprintf(w, "  [%6.1fs] %s\n", s.Start, strings.TrimSpace(s.Text))
			}
		}
	}
	for _, warn := range det.Warnings {
		fmt.Fprintf(w, "\nwarning: %s\n", warn)
	}
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
