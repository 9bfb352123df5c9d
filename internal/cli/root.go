// Package cli provides the command-line interface for adsreport.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/VasulenkoIllia/Google-ADS/internal/ads"
	"github.com/VasulenkoIllia/Google-ADS/internal/config"
	"github.com/VasulenkoIllia/Google-ADS/internal/crm"
	"github.com/VasulenkoIllia/Google-ADS/internal/executor"
	"github.com/VasulenkoIllia/Google-ADS/internal/jobcache"
	"github.com/VasulenkoIllia/Google-ADS/internal/logging"
	"github.com/VasulenkoIllia/Google-ADS/internal/quota"
	"github.com/VasulenkoIllia/Google-ADS/internal/report"
	"github.com/VasulenkoIllia/Google-ADS/internal/schedule"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger *logging.Logger
)

// Version is set by the main package at build time.
var Version = "v0.3.0-dev"

// app bundles the wired service graph for one command invocation.
type app struct {
	cfg     *config.Config
	sched   *schedule.Scheduler
	tracker *quota.Tracker
	exec    *executor.Executor
	crm     *crm.Client
	service *report.Service
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adsreport",
		Short: "CRM + advertising report aggregator",
		Long: `adsreport ` + Version + `
Builds per-source business reports by joining CRM lead data with
advertising spend, pacing all CRM calls inside the provider's quota.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logger = logger.Verbose()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.Version = Version

	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newLeadsCmd())
	rootCmd.AddCommand(newQuotaCmd())

	return rootCmd
}

// buildApp loads the config and wires the scheduler, quota tracker, executor,
// API clients, job cache and report service.
func buildApp() (*app, error) {
	path := cfgFile
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sched := schedule.New(schedule.Config{
		MaxRequests: cfg.Limits.MaxRequestsPerMinute,
		Interval:    cfg.Interval(),
		QueueLimit:  cfg.Limits.QueueLimit,
		OnDelay: func(wait time.Duration, queueLen int) {
			logger.Debug().
				Dur("wait", wait).
				Int("queued", queueLen).
				Msg("scheduler cooling down")
		},
	})
	tracker := quota.New(cfg.Limits.HourlyLimit, cfg.Limits.DailyLimit, time.UTC)
	exec := executor.New(sched, tracker, executor.Options{
		MaxAttempts: cfg.Limits.MaxRetryAttempts,
		BaseDelay:   cfg.BaseRetryDelay(),
		MaxDelay:    cfg.Interval(),
	}, logger)

	crmClient := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey)
	var adsClient *ads.Client
	if cfg.Ads.BaseURL != "" && cfg.Ads.DeveloperToken != "" {
		adsClient = ads.NewClient(cfg.Ads.BaseURL, cfg.Ads.DeveloperToken, cfg.Ads.CustomerID, logger)
	}

	builder := report.NewBuilder(crmClient, adsClient, exec, logger)
	cache := jobcache.New(cfg.SuccessTTL(), cfg.ErrorTTL(), logger)

	return &app{
		cfg:     cfg,
		sched:   sched,
		tracker: tracker,
		exec:    exec,
		crm:     crmClient,
		service: report.NewService(cache, builder),
	}, nil
}
