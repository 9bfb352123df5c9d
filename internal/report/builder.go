// Package report builds per-source business reports by joining CRM lead
// counts with advertising spend. A build is the expensive multi-call unit
// the job cache deduplicates.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/VasulenkoIllia/Google-ADS/internal/ads"
	"github.com/VasulenkoIllia/Google-ADS/internal/crm"
	"github.com/VasulenkoIllia/Google-ADS/internal/executor"
	"github.com/VasulenkoIllia/Google-ADS/internal/jobcache"
	"github.com/VasulenkoIllia/Google-ADS/internal/logging"
	"github.com/VasulenkoIllia/Google-ADS/internal/progress"
)

// crmCallsPerSource is how many scheduled CRM calls one source costs
// (all leads + won leads).
const crmCallsPerSource = 2

// Params identifies one report request.
type Params struct {
	StartDate string   `json:"startDate"` // YYYY-MM-DD
	EndDate   string   `json:"endDate"`   // YYYY-MM-DD
	SourceIDs []string `json:"sources"`
}

// Key returns the normalized cache key for p. Source order does not matter.
func (p Params) Key() string {
	return jobcache.Key(p.StartDate, p.EndDate, p.SourceIDs)
}

// Validate checks the date range and source list.
func (p Params) Validate() error {
	if _, err := time.Parse("2006-01-02", p.StartDate); err != nil {
		return fmt.Errorf("invalid start date %q: %w", p.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", p.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", p.EndDate, err)
	}
	start, _ := time.Parse("2006-01-02", p.StartDate)
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", p.EndDate, p.StartDate)
	}
	if len(p.SourceIDs) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	return nil
}

// Row is the per-source report line.
type Row struct {
	SourceID       string  `json:"sourceId"`
	Leads          int     `json:"leads"`
	WonLeads       int     `json:"wonLeads"`
	Revenue        float64 `json:"revenue"`
	Spend          float64 `json:"spend"`
	CostPerLead    float64 `json:"costPerLead"`
	ConversionRate float64 `json:"conversionRate"`
}

// Report is the finished aggregation.
type Report struct {
	Params  Params    `json:"params"`
	Rows    []Row     `json:"rows"`
	Totals  Row       `json:"totals"`
	BuiltAt time.Time `json:"builtAt"`
}

// Builder runs report aggregations. CRM calls go through the executor
// (scheduler admission + retry); ads calls go straight to the ads client.
type Builder struct {
	crm  *crm.Client
	ads  *ads.Client
	exec *executor.Executor
	log  *logging.Logger
}

// NewBuilder creates a Builder. The ads client may be nil, in which case
// spend columns stay zero.
func NewBuilder(crmClient *crm.Client, adsClient *ads.Client, exec *executor.Executor, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.Nop()
	}
	return &Builder{crm: crmClient, ads: adsClient, exec: exec, log: log}
}

// Build aggregates one report, emitting per-source progress to sink. Any
// error aborts the build; the caller (normally the job cache) captures it.
func (b *Builder) Build(ctx context.Context, params Params, sink progress.Sink) (*Report, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	total := len(params.SourceIDs)
	emit(sink, progress.Progress{
		Message:                fmt.Sprintf("building report for %d sources", total),
		EstimatedTotalRequests: progress.Int(total * crmCallsPerSource),
		RemainingSources:       progress.Int(total),
	})

	rep := &Report{Params: params, Rows: make([]Row, 0, total)}

	for i, sourceID := range params.SourceIDs {
		emit(sink, progress.Progress{
			Message:          fmt.Sprintf("processing source %d of %d", i+1, total),
			RemainingSources: progress.Int(total - i),
			SourceIdent:      progress.Str(sourceID),
		})

		row, err := b.buildRow(ctx, params, sourceID, sink)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sourceID, err)
		}
		rep.Rows = append(rep.Rows, row)

		rep.Totals.Leads += row.Leads
		rep.Totals.WonLeads += row.WonLeads
		rep.Totals.Revenue += row.Revenue
		rep.Totals.Spend += row.Spend
	}

	rep.Totals.CostPerLead = costPerLead(rep.Totals.Spend, rep.Totals.Leads)
	rep.Totals.ConversionRate = conversionRate(rep.Totals.WonLeads, rep.Totals.Leads)
	rep.BuiltAt = time.Now()

	emit(sink, progress.Progress{
		Message:          "report ready",
		RemainingSources: progress.Int(0),
	})
	b.log.Info().
		Int("sources", total).
		Int("leads", rep.Totals.Leads).
		Msg("report built")
	return rep, nil
}

func (b *Builder) buildRow(ctx context.Context, params Params, sourceID string, sink progress.Sink) (Row, error) {
	row := Row{SourceID: sourceID}

	baseQuery := crm.LeadQuery{
		SourceID:  sourceID,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
	}

	allTotals, err := executor.ExecuteValue(ctx, b.exec, func(ctx context.Context) (crm.Totals, error) {
		return b.crm.CountLeads(ctx, baseQuery)
	}, sink)
	if err != nil {
		return row, err
	}

	wonQuery := baseQuery
	wonQuery.WonOnly = true
	wonTotals, err := executor.ExecuteValue(ctx, b.exec, func(ctx context.Context) (crm.Totals, error) {
		return b.crm.CountLeads(ctx, wonQuery)
	}, sink)
	if err != nil {
		return row, err
	}

	row.Leads = allTotals.Count
	row.WonLeads = wonTotals.Count
	row.Revenue = wonTotals.Amount

	if b.ads != nil {
		spend, err := b.ads.SpendForSource(ctx, sourceID, params.StartDate, params.EndDate)
		if err != nil {
			return row, fmt.Errorf("ads spend: %w", err)
		}
		row.Spend = spend.Cost
	}

	row.CostPerLead = costPerLead(row.Spend, row.Leads)
	row.ConversionRate = conversionRate(row.WonLeads, row.Leads)
	return row, nil
}

func costPerLead(spend float64, leads int) float64 {
	if leads == 0 {
		return 0
	}
	return spend / float64(leads)
}

func conversionRate(won, leads int) float64 {
	if leads == 0 {
		return 0
	}
	return float64(won) / float64(leads)
}

func emit(sink progress.Sink, p progress.Progress) {
	if sink != nil {
		sink.UpdateProgress(p)
	}
}
