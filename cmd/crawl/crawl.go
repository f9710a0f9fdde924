// Package crawl implements the crawl subcommand: one full harvest run
// with diffing, checkpointing, and a closing CSV export.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/estatewatch/crawler/cmd/common"
	"github.com/estatewatch/crawler/internal/crawler"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/export"
	"github.com/estatewatch/crawler/internal/logger"
)

type flags struct {
	forceRefresh bool
	skipRefresh  bool
	noDiff       bool
	exportDir    string
	workers      int
	categories   []string
}

// Command builds the crawl command.
func Command() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one harvest: discover listings, diff, and scrape details",
		RunE: func(*cobra.Command, []string) error {
			return run(f)
		},
	}

	cmd.Flags().BoolVar(&f.forceRefresh, "force-refresh", false,
		"re-discover links even when a fresh snapshot exists")
	cmd.Flags().BoolVar(&f.skipRefresh, "skip-refresh", false,
		"reuse the stored link snapshot regardless of age")
	cmd.Flags().BoolVar(&f.noDiff, "no-diff", false,
		"scrape every discovered listing instead of only new ones")
	cmd.Flags().StringVar(&f.exportDir, "export-dir", "output",
		"directory for the closing CSV export (empty disables)")
	cmd.Flags().IntVar(&f.workers, "workers", 0,
		"override the configured worker count")
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil,
		"restrict the run to these category codes")
	cmd.MarkFlagsMutuallyExclusive("force-refresh", "skip-refresh")

	return cmd
}

func run(f flags) error {
	app, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := common.SignalContext()
	defer stop()

	runID := uuid.NewString()
	log := app.Log.With(logger.String("run_id", runID))
	log.Info("starting crawl",
		logger.String("base_url", app.Cfg.Crawler.BaseURL),
		logger.Int("workers", app.Cfg.Crawler.Workers))

	crawlerCfg := app.Cfg.Crawler
	if f.workers > 0 {
		crawlerCfg.Workers = f.workers
	}
	cats, err := selectCategories(app.Cfg.Categories(), f.categories)
	if err != nil {
		return err
	}

	c := crawler.New(crawlerCfg, cats, app.Store, log)

	metricsSrv := startMetrics(app, c, log)
	if metricsSrv != nil {
		defer stopMetrics(metricsSrv, log)
	}

	sum, err := c.Run(ctx, crawler.Options{
		ForceRefresh: f.forceRefresh,
		SkipRefresh:  f.skipRefresh,
		NoDiff:       f.noDiff,
	})
	if err != nil {
		return fmt.Errorf("crawl run: %w", err)
	}

	printSummary(sum)

	if f.exportDir != "" {
		exporter := export.New(app.Store, cats, log)
		if _, expErr := exporter.Export(ctx, f.exportDir); expErr != nil {
			// Export failure never fails a completed harvest.
			log.Error("csv export failed", logger.Error(expErr))
		}
	}
	return nil
}

// selectCategories restricts the category table to the requested codes.
// An empty request keeps the full table.
func selectCategories(all []domain.Category, codes []string) ([]domain.Category, error) {
	if len(codes) == 0 {
		return all, nil
	}
	byCode := make(map[string]domain.Category, len(all))
	for _, c := range all {
		byCode[c.Code] = c
	}
	out := make([]domain.Category, 0, len(codes))
	for _, code := range codes {
		c, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("unknown category code %q", code)
		}
		out = append(out, c)
	}
	return out, nil
}

func printSummary(sum *crawler.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Harvest Summary")
	t.AppendRows([]table.Row{
		{"Categories", sum.Categories},
		{"Total links", sum.TotalLinks},
		{"New listings", sum.NewListings},
		{"Sold listings", sum.SoldListings},
		{"Scraped", sum.Scraped},
		{"Errors", sum.Errors},
		{"Corrective runs", sum.CorrectiveRuns},
		{"Elapsed", sum.Elapsed.Round(time.Second)},
	})
	t.Render()
}

func startMetrics(app *common.App, c *crawler.Crawler, log logger.Interface) *http.Server {
	addr := app.Cfg.Crawler.MetricsAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Metrics().Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Error(err))
		}
	}()
	log.Info("metrics listening", logger.String("addr", addr))
	return srv
}

func stopMetrics(srv *http.Server, log logger.Interface) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("metrics shutdown failed", logger.Error(err))
	}
}
