package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VasulenkoIllia/Google-ADS/internal/crm"
	"github.com/VasulenkoIllia/Google-ADS/internal/executor"
)

func newLeadsCmd() *cobra.Command {
	var (
		startDate string
		endDate   string
		source    string
		wonOnly   bool
		perPage   int
	)

	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List CRM leads for one source over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-12s %-12s %10s  %s\n", "ID", "SOURCE", "STATUS", "AMOUNT", "CREATED")

			total := 0
			for page := 1; ; page++ {
				q := crm.LeadQuery{
					SourceID:  source,
					StartDate: startDate,
					EndDate:   endDate,
					WonOnly:   wonOnly,
					Page:      page,
					PerPage:   perPage,
				}
				p, err := executor.ExecuteValue(cmd.Context(), a.exec, func(ctx context.Context) (*crm.Page, error) {
					return a.crm.ListLeads(ctx, q)
				}, nil)
				if err != nil {
					return err
				}

				for _, lead := range p.Data {
					fmt.Printf("%-10d %-12s %-12s %10.2f  %s\n",
						lead.ID, lead.SourceID, lead.StatusID, lead.Amount, lead.CreatedAt)
					total++
				}
				if !p.Pagination.HasNext {
					break
				}
			}

			fmt.Printf("\n%d leads\n", total)
			if notice, ok := a.exec.TakeRetryNotice(); ok {
				logger.Warn().
					Int("retries", notice.Retries).
					Dur("largestDelay", notice.LargestDelay).
					Msg("CRM API throttled during this listing")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startDate, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&source, "source", "", "Source ID to list")
	cmd.Flags().BoolVar(&wonOnly, "won", false, "Only closed-won leads")
	cmd.Flags().IntVar(&perPage, "per-page", 100, "Page size")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	cmd.MarkFlagRequired("source")

	return cmd
}
