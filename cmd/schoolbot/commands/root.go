// Package commands implements the schoolbot command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schoolbot/schoolbot/config"
	"github.com/schoolbot/schoolbot/internal/app"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "schoolbot",
	Short: "School chatbot answer resolution service",
	Long: `schoolbot answers parents' and students' questions from a curated QA
corpus, falling back to semantic search and crawled school web pages.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.schoolbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg, cmd.ErrOrStderr())
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}
