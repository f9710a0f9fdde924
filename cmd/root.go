// Package cmd implements the estatecrawl command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcrawl "github.com/estatewatch/crawler/cmd/crawl"
	cmdexport "github.com/estatewatch/crawler/cmd/export"
	cmdschedule "github.com/estatewatch/crawler/cmd/schedule"
	cmdserve "github.com/estatewatch/crawler/cmd/serve"
	"github.com/estatewatch/crawler/internal/config"
)

var version = "1.0.0"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "estatecrawl",
		Short: "Real-estate listing harvester",
		Long: `estatecrawl discovers property listings, tracks day-over-day market
movement, and serves the collected data over a query API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	if err := initConfig(); err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("estatecrawl version %s\n", version)
		},
	})
	rootCmd.AddCommand(cmdcrawl.Command())
	rootCmd.AddCommand(cmdserve.Command())
	rootCmd.AddCommand(cmdexport.Command())
	rootCmd.AddCommand(cmdschedule.Command())
}

// initConfig wires viper: .env, environment variables, defaults, and an
// optional config file, in increasing order of precedence.
func initConfig() error {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.SetEnvPrefix("ESTATECRAWL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}
