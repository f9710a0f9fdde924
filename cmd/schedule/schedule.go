// Package schedule implements the schedule subcommand: recurring crawls
// on a cron expression until interrupted.
package schedule

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/estatewatch/crawler/cmd/common"
	"github.com/estatewatch/crawler/internal/crawler"
	"github.com/estatewatch/crawler/internal/export"
	"github.com/estatewatch/crawler/internal/logger"
)

type flags struct {
	cronExpr  string
	exportDir string
	runNow    bool
}

// Command builds the schedule command.
func Command() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run crawls on a cron schedule until interrupted",
		RunE: func(*cobra.Command, []string) error {
			return run(f)
		},
	}

	cmd.Flags().StringVar(&f.cronExpr, "cron", "0 3 * * *",
		"cron expression for crawl starts")
	cmd.Flags().StringVar(&f.exportDir, "export-dir", "output",
		"directory for the per-run CSV export (empty disables)")
	cmd.Flags().BoolVar(&f.runNow, "run-now", false,
		"run one crawl immediately before waiting for the schedule")
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

	c := crawler.New(app.Cfg.Crawler, app.Cfg.Categories(), app.Store, app.Log)

	harvest := func() {
		sum, runErr := c.Run(ctx, crawler.Options{})
		if runErr != nil {
			app.Log.Error("scheduled crawl failed", logger.Error(runErr))
			return
		}
		app.Log.Info("scheduled crawl finished",
			logger.Int("scraped", sum.Scraped),
			logger.Int("new", sum.NewListings),
			logger.Int("sold", sum.SoldListings),
			logger.Int("errors", sum.Errors))

		if f.exportDir != "" {
			if _, expErr := export.New(app.Store, app.Cfg.Categories(), app.Log).Export(ctx, f.exportDir); expErr != nil {
				app.Log.Error("scheduled export failed", logger.Error(expErr))
			}
		}
	}

	sched := cron.New()
	if _, err := sched.AddFunc(f.cronExpr, harvest); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", f.cronExpr, err)
	}

	if f.runNow {
		harvest()
		if ctx.Err() != nil {
			return nil
		}
	}

	app.Log.Info("scheduler started", logger.String("cron", f.cronExpr))
	sched.Start()
	<-ctx.Done()

	// Let an in-flight run finish before exiting.
	stopCtx := sched.Stop()
	<-stopCtx.Done()
	app.Log.Info("scheduler stopped")
	return nil
}
