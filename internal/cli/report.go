package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/VasulenkoIllia/Google-ADS/internal/jobcache"
	"github.com/VasulenkoIllia/Google-ADS/internal/report"
)

// pollInterval is how often the report command re-reads the pending Job.
const pollInterval = 500 * time.Millisecond

func newReportCmd() *cobra.Command {
	var (
		startDate string
		endDate   string
		sources   []string
		asJSON    bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a per-source report for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			params := report.Params{StartDate: startDate, EndDate: endDate, SourceIDs: sources}
			if err := params.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			job := a.service.GetOrCreateReportJob(ctx, params)
			rep, err := waitForJob(ctx, job)
			if err != nil {
				return err
			}

			if notice, ok := a.exec.TakeRetryNotice(); ok {
				logger.Warn().
					Int("retries", notice.Retries).
					Dur("largestDelay", notice.LargestDelay).
					Msg("CRM API throttled during this build")
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(rep)
			return nil
		},
	}

	cmd.Flags().StringVar(&startDate, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Source IDs to include")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall build timeout")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	cmd.MarkFlagRequired("sources")

	return cmd
}

// waitForJob polls the Job until it reaches a terminal state, rendering a
// progress bar from the Job's typed progress while pending.
func waitForJob(ctx context.Context, job *jobcache.Job) (*report.Report, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("building report"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		snap := job.Snapshot()
		switch snap.Status {
		case jobcache.StatusReady:
			rep, ok := snap.Result.(*report.Report)
			if !ok {
				return nil, fmt.Errorf("unexpected result type %T", snap.Result)
			}
			return rep, nil
		case jobcache.StatusError:
			return nil, snap.Err
		}

		if msg := snap.Progress.String(); msg != "" {
			bar.Describe(msg)
		}
		bar.Add(1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printReport(rep *report.Report) {
	fmt.Printf("Report %s .. %s\n\n", rep.Params.StartDate, rep.Params.EndDate)
	fmt.Printf("%-12s %8s %8s %12s %12s %10s %8s\n",
		"SOURCE", "LEADS", "WON", "REVENUE", "SPEND", "CPL", "CONV")
	for _, row := range rep.Rows {
		fmt.Printf("%-12s %8d %8d %12.2f %12.2f %10.2f %7.1f%%\n",
			row.SourceID, row.Leads, row.WonLeads, row.Revenue, row.Spend,
			row.CostPerLead, row.ConversionRate*100)
	}
	t := rep.Totals
	fmt.Printf("\n%-12s %8d %8d %12.2f %12.2f %10.2f %7.1f%%\n",
		"TOTAL", t.Leads, t.WonLeads, t.Revenue, t.Spend,
		t.CostPerLead, t.ConversionRate*100)
}
