package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/app"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/utils"
)

const historyYears = 5

// pregenCompanies is the set refreshed ahead of demand.
var pregenCompanies = []models.CompanyRef{
	{Name: "Tesla", Ticker: "TSLA"},
	{Name: "Apple", Ticker: "AAPL"},
	{Name: "Microsoft", Ticker: "MSFT"},
	{Name: "Nvidia", Ticker: "NVDA"},
	{Name: "Samsung", Ticker: "005930.KS"},
	{Name: "Raytheon", Ticker: "RTX"},
	{Name: "Hyundai", Ticker: "005380.KS"},
	{Name: "Alibaba", Ticker: "BABA"},
}

type pregenOptions struct {
	reports   bool
	overviews bool
	history   bool
	warmup    bool
	all       bool
	companies []string
}

func (o *pregenOptions) normalize() error {
	if o.all {
		o.reports, o.overviews, o.history, o.warmup = true, true, true, true
	}
	if !o.reports && !o.overviews && !o.history && !o.warmup {
		return fmt.Errorf("nothing to do: pass --reports, --overviews, --history, --warmup or --all")
	}
	return nil
}

// jobs expands the selected stages into one job per company and stage.
func (o *pregenOptions) jobs(companies []models.CompanyRef) []pregenJob {
	stages := []struct {
		on   bool
		name string
	}{
		{o.warmup, stageWarmup},
		{o.history, stageHistory},
		{o.reports, stageReport},
		{o.overviews, stageOverview},
	}
	var out []pregenJob
	for _, st := range stages {
		if !st.on {
			continue
		}
		for _, c := range companies {
			out = append(out, pregenJob{stage: st.name, company: c})
		}
	}
	return out
}

const (
	stageWarmup   = "warmup"
	stageHistory  = "history"
	stageReport   = "report"
	stageOverview = "overview"
)

type pregenJob struct {
	stage   string
	company models.CompanyRef
}

type pregenResult struct {
	job     pregenJob
	err     error
	elapsed time.Duration
}

// selectCompanies filters the fixed set by name or ticker, case-insensitively.
func selectCompanies(all []models.CompanyRef, names []string) ([]models.CompanyRef, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []models.CompanyRef
	for _, n := range names {
		n = strings.TrimSpace(n)
		found := false
		for _, c := range all {
			if strings.EqualFold(c.Name, n) || strings.EqualFold(c.Ticker, n) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown company %q", n)
		}
	}
	return out, nil
}

func newPregenerateCmd(opts *rootOptions) *cobra.Command {
	po := pregenOptions{}
	cmd := &cobra.Command{
		Use:   "pregenerate",
		Short: "Refresh reports, overviews, price history and caches for the tracked companies",
		Example: `  stella pregenerate --all
  stella pregenerate --reports --companies Tesla Apple`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := po.normalize(); err != nil {
				return err
			}
			companies, err := selectCompanies(pregenCompanies, po.companies)
			if err != nil {
				return err
			}
			e, err := app.BuildEngine(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			results := runPregenerate(cmd.Context(), e, po.jobs(companies), opts.cfg.Pool.BatchConcurrency)
			displayPregenSummary(cmd.OutOrStdout(), results)
			for _, r := range results {
				if r.err != nil {
					return fmt.Errorf("pregeneration finished with errors")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&po.reports, "reports", false, "Generate today's reports")
	cmd.Flags().BoolVar(&po.overviews, "overviews", false, "Generate today's overviews")
	cmd.Flags().BoolVar(&po.history, "history", false, "Write five years of daily prices as CSV")
	cmd.Flags().BoolVar(&po.warmup, "warmup", false, "Fill the metrics, highlights and news caches")
	cmd.Flags().BoolVar(&po.all, "all", false, "Run every stage")
	cmd.Flags().StringSliceVar(&po.companies, "companies", nil, "Restrict to these companies (names or tickers)")
	return cmd
}

// runPregenerate runs stages in order; jobs within a stage run concurrently
// up to limit. Results keep job order.
func runPregenerate(ctx context.Context, e *app.Engine, jobs []pregenJob, limit int) []pregenResult {
	results := make([]pregenResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(limit)

	stage := ""
	for i, job := range jobs {
		if job.stage != stage {
			_ = g.Wait()
			stage = job.stage
			log.Info().Str("stage", stage).Msg("pregenerate stage started")
		}
		g.Go(func() error {
			start := time.Now()
			err := runPregenJob(ctx, e, job)
			results[i] = pregenResult{job: job, err: err, elapsed: time.Since(start)}
			if err != nil {
				log.Error().Err(err).Str("stage", job.stage).Str("ticker", job.company.Ticker).Msg("pregenerate failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runPregenJob(ctx context.Context, e *app.Engine, job pregenJob) error {
	c := job.company
	switch job.stage {
	case stageWarmup:
		var (
			wg      sync.WaitGroup
			metrics *models.Metrics
			snap    models.HighlightsSnapshot
		)
		wg.Add(3)
		go func() { defer wg.Done(); metrics = e.Market.GetMetrics(ctx, c.Ticker) }()
		go func() { defer wg.Done(); snap = e.Market.GetStockHighlights(ctx, c.Ticker) }()
		go func() { defer wg.Done(); e.News.RecentNews(ctx, c.Ticker, c.Name) }()
		wg.Wait()
		return warmupError(c.Ticker, metrics, snap)
	case stageHistory:
		since := time.Now().AddDate(-historyYears, 0, 0)
		bars, err := e.Market.History(ctx, c.Ticker, since)
		if err != nil {
			return err
		}
		path, err := utils.WriteHistoryCSV(e.Config.HistoryDir, c.Ticker, bars)
		if err != nil {
			return err
		}
		log.Info().Str("ticker", c.Ticker).Int("rows", len(bars)).Str("path", path).Msg("history written")
		return nil
	case stageReport:
		s := &models.AgentState{Mode: models.Interactive, TaskType: models.TaskReport, Company: &c}
		if _, err := e.Executors.Report(ctx, s); err != nil {
			return err
		}
		if s.Response == consts.MsgReportError {
			return fmt.Errorf("report generation failed for %s", c.Ticker)
		}
		path := e.Executors.ReportPath(c.Ticker)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("report for %s was not stored: %w", c.Ticker, err)
		}
		log.Info().Str("ticker", c.Ticker).Str("path", path).Msg("report ready")
		return nil
	case stageOverview:
		s := &models.AgentState{Mode: models.Interactive, TaskType: models.TaskOverview, Company: &c}
		if _, err := e.Executors.Overview(ctx, s); err != nil {
			return err
		}
		if s.Response == consts.MsgOverviewError {
			return fmt.Errorf("overview generation failed for %s", c.Ticker)
		}
		return nil
	default:
		return fmt.Errorf("unknown stage %q", job.stage)
	}
}

// warmupError reports which caches could not be filled. An empty value
// means every provider tier failed.
func warmupError(ticker string, m *models.Metrics, snap models.HighlightsSnapshot) error {
	var missing []string
	if m.IsEmpty() {
		missing = append(missing, "metrics")
	}
	if snap.IsEmpty() {
		missing = append(missing, "highlights")
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("no %s for %s", strings.Join(missing, " or "), ticker)
}

func displayPregenSummary(w io.Writer, results []pregenResult) {
	var b strings.Builder
	failed := 0
	for _, r := range results {
		mark := successStyle.Render("✓")
		detail := r.elapsed.Round(time.Millisecond).String()
		if r.err != nil {
			failed++
			mark = errorStyle.Render("✗")
			detail = truncate(r.err.Error(), 50)
		}
		fmt.Fprintf(&b, "%s %-9s %-10s %s\n", mark, r.job.stage, r.job.company.Ticker, labelStyle.Render(detail))
	}
	fmt.Fprintf(&b, "\n%d jobs, %d failed", len(results), failed)
	fmt.Fprintln(w, summaryStyle.Render(b.String()))
}
