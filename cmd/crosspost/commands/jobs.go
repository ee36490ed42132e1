package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/publish"
	"github.com/teranos/crosspost/pulse/schedule"
)

// JobsCmd groups job administration
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and administer scheduled jobs",
	Long: `Inspect and administer scheduled publishing jobs.

Examples:
  crosspost jobs ls --status pending
  crosspost jobs show 3f6c...
  crosspost jobs schedule --draft d1 --user u1 --platform devto --platform hashnode --at 2026-11-01T09:00:00Z
  crosspost jobs cancel 3f6c...
  crosspost jobs reset 3f6c...          # partial/failed back to pending, due now
  crosspost jobs records d1             # publish history of a draft`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsLs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its draft's publish records",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a draft for publishing",
	Args:  cobra.NoArgs,
	RunE:  runJobsSchedule,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsResetCmd = &cobra.Command{
	Use:   "reset <job-id>",
	Short: "Return a partial or failed job to pending",
	Long: `Return a partial or failed job to pending with a fresh retry budget.

Platforms that already succeeded are not published again; the next pass
only publishes to the platforms without a success record.

A platform whose last answer was unconfirmed (it accepted the post but
returned no readable id) may already show the post. Reset refuses such
jobs unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsReset,
}

var jobsRecordsCmd = &cobra.Command{
	Use:   "records <draft-id>",
	Short: "Show the publish history of a draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRecords,
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Filter by status: pending, published, partial, failed, cancelled")
	jobsLsCmd.Flags().Int("limit", 50, "Maximum number of jobs")

	jobsScheduleCmd.Flags().String("draft", "", "Draft id (required)")
	jobsScheduleCmd.Flags().String("user", "", "Owning user id (required)")
	jobsScheduleCmd.Flags().StringSlice("platform", nil, "Target platform, repeatable (required)")
	jobsScheduleCmd.Flags().String("at", "", "Publish time, RFC 3339 (default now)")
	_ = jobsScheduleCmd.MarkFlagRequired("draft")
	_ = jobsScheduleCmd.MarkFlagRequired("user")
	_ = jobsScheduleCmd.MarkFlagRequired("platform")

	jobsResetCmd.Flags().String("at", "", "New publish time, RFC 3339 (default now)")
	jobsResetCmd.Flags().Bool("force", false, "Reset even if a platform may already have the post")

	for _, c := range []*cobra.Command{jobsLsCmd, jobsShowCmd, jobsScheduleCmd, jobsRecordsCmd} {
		c.Flags().BoolP("json", "j", false, "Output as JSON")
	}

	JobsCmd.AddCommand(jobsLsCmd, jobsShowCmd, jobsScheduleCmd, jobsCancelCmd, jobsResetCmd, jobsRecordsCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.jobs.ListJobs(cmd.Context(), status, limit)
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}

	table := pterm.TableData{{"ID", "Draft", "Platforms", "Status", "Scheduled", "Retries", "Error"}}
	for _, j := range jobs {
		table = append(table, []string{
			j.ID,
			j.DraftID,
			strings.Join(j.Platforms, ","),
			j.Status,
			j.ScheduledAt.Format(time.RFC3339),
			strconv.Itoa(j.RetryCount),
			truncate(j.ErrorMessage, 60),
		})
	}
	return renderTable(cmd.OutOrStdout(), table)
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	records, err := a.records.ListByDraft(cmd.Context(), job.DraftID)
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"job": job, "records": records})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:          %s\n", job.ID)
	fmt.Fprintf(out, "Draft:        %s\n", job.DraftID)
	fmt.Fprintf(out, "User:         %s\n", job.UserID)
	fmt.Fprintf(out, "Platforms:    %s\n", strings.Join(job.Platforms, ", "))
	fmt.Fprintf(out, "Status:       %s\n", job.Status)
	fmt.Fprintf(out, "Scheduled at: %s\n", job.ScheduledAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Retries:      %d\n", job.RetryCount)
	fmt.Fprintf(out, "Fingerprint:  %s\n", job.Fingerprint())
	if job.PublishedAt != nil {
		fmt.Fprintf(out, "Published at: %s\n", job.PublishedAt.Format(time.RFC3339))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:        %s\n", job.ErrorMessage)
	}
	fmt.Fprintln(out)
	return renderRecords(out, records)
}

func runJobsSchedule(cmd *cobra.Command, args []string) error {
	draftID, _ := cmd.Flags().GetString("draft")
	userID, _ := cmd.Flags().GetString("user")
	platforms, _ := cmd.Flags().GetStringSlice("platform")
	at, err := parseAt(cmd)
	if err != nil {
		return err
	}

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job := &schedule.Job{DraftID: draftID, UserID: userID, Platforms: platforms, ScheduledAt: at}
	if err := a.jobs.CreateJob(cmd.Context(), job); err != nil {
		return err
	}
	if asJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), job)
	}
	pterm.Success.Printfln("Scheduled job %s for %s", job.ID, job.ScheduledAt.Format(time.RFC3339))
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.jobs.CancelJob(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return errors.WithHint(err, "only pending jobs can be cancelled")
		}
		return err
	}
	pterm.Success.Printfln("Cancelled job %s", args[0])
	return nil
}

func runJobsReset(cmd *cobra.Command, args []string) error {
	at, err := parseAt(cmd)
	if err != nil {
		return err
	}

	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		job, err := a.jobs.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		unconfirmed, err := a.records.Unconfirmed(cmd.Context(), job.DraftID)
		if err != nil {
			return err
		}
		if len(unconfirmed) > 0 {
			err := errors.Wrapf(errors.ErrUnconfirmed, "draft %s may already be published to %s",
				job.DraftID, strings.Join(unconfirmed, ", "))
			return errors.WithHint(err, "check those platforms, then rerun with --force to publish again")
		}
	}

	if err := a.jobs.ResetJob(cmd.Context(), args[0], at); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return errors.WithHint(err, "only partial or failed jobs can be reset")
		}
		return err
	}
	pterm.Success.Printfln("Job %s is pending again, due %s", args[0], at.Format(time.RFC3339))
	return nil
}

func runJobsRecords(cmd *cobra.Command, args []string) error {
	a, err := openStores(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.records.ListByDraft(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), records)
	}
	return renderRecords(cmd.OutOrStdout(), records)
}

func renderRecords(w io.Writer, records []*publish.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No publish records")
		return nil
	}
	table := pterm.TableData{{"Platform", "Status", "Post", "URL", "Attempted", "Error"}}
	for _, r := range records {
		table = append(table, []string{
			r.Platform,
			r.Status,
			r.PlatformPostID,
			r.PlatformURL,
			r.AttemptedAt.Format(time.RFC3339),
			truncate(r.ErrorMessage, 60),
		})
	}
	return renderTable(w, table)
}

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	fmt.Fprintln(w, out)
	return nil
}

// parseAt reads --at, defaulting to now.
func parseAt(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("at")
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrInvalidRequest, "--at must be RFC 3339, e.g. 2026-11-01T09:00:00Z")
	}
	return t.UTC(), nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
