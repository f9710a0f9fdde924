// Package serve implements the serve subcommand: the read-only query API.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatewatch/crawler/cmd/common"
	"github.com/estatewatch/crawler/internal/api"
	"github.com/estatewatch/crawler/internal/logger"
)

// Command builds the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the collected listings over HTTP",
		RunE: func(*cobra.Command, []string) error {
			return run()
		},
	}
}

func run() error {
	app, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := common.SignalContext()
	defer stop()

	app.Log.Info("starting query api",
		logger.String("host", app.Cfg.API.Host),
		logger.Int("port", app.Cfg.API.Port))

	srv := api.NewServer(app.Cfg.API, app.Store, app.Log)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
