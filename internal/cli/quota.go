package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VasulenkoIllia/Google-ADS/internal/quota"
)

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the configured CRM quota windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			now := time.Now()
			printWindow("hourly", a.tracker.HourlyStats(now))
			printWindow("daily", a.tracker.DailyStats(now))
			fmt.Printf("\nscheduler: %d requests per %s, queue limit %d\n",
				a.cfg.Limits.MaxRequestsPerMinute, a.cfg.Interval(), a.cfg.Limits.QueueLimit)
			return nil
		},
	}
}

func printWindow(name string, s quota.Stats) {
	fmt.Printf("%-7s %d/%d used, %d remaining, resets in %s (at %s)\n",
		name, s.Used, s.Limit, s.Remaining,
		s.ResetIn.Round(time.Second), s.ResetAt.Format(time.RFC3339))
}
