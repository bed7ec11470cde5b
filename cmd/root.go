// Package cmd holds the pdf-batch-bot command line: the bot itself plus
// offline tools for converting images and maintaining the catalog.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/BatmanBruc/pdf-batch-bot/internal/config"
	"github.com/BatmanBruc/pdf-batch-bot/internal/logging"
)

type globalFlags struct {
	envFile    string
	configFile string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "pdf-batch-bot",
		Short: "Telegram bot that collects images per chat and returns them as one PDF",
		Long: `pdf-batch-bot gathers the photos and image files a chat sends, then builds a
single PDF from them on /convert. Delivered PDFs are kept in a catalog and can be
found and re-sent later by their slug.

Settings come from config.env, an optional YAML file and the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.configFile != "" {
				return os.Setenv("CONFIG_FILE", flags.configFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "config.env", "dotenv file loaded before the environment")
	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newConvertCmd(flags))
	cmd.AddCommand(newCatalogCmd(flags))

	return cmd
}

func (f *globalFlags) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, logger, nil
}
