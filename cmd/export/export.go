// Package export implements the export subcommand: CSV dumps of the
// stored listings, one file per category.
package export

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatewatch/crawler/cmd/common"
	"github.com/estatewatch/crawler/internal/export"
	"github.com/estatewatch/crawler/internal/logger"
)

// Command builds the export command.
func Command() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored listings to per-category CSV files",
		RunE: func(*cobra.Command, []string) error {
			return run(dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "output", "destination directory for CSV files")
	return cmd
}

func run(dir string) error {
	app, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := common.SignalContext()
	defer stop()

	files, err := export.New(app.Store, app.Cfg.Categories(), app.Log).Export(ctx, dir)
	if err != nil {
		return fmt.Errorf("export listings: %w", err)
	}

	app.Log.Info("export finished", logger.Int("files", len(files)))
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}
