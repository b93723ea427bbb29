package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/porticus-lab/go-screenshot/internal/config"
)

const version = "1.2.0"

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "webshot",
	Short: "Web page screenshots for vision models",
	Long: `webshot captures web pages with headless Chrome: single frames, full
pages, or overlapping tile grids sized for vision models, with DOM
element extraction for ground-truth checks.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file is optional; the real environment wins either way.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		// Stdout stays free for command output; the mcp command needs it
		// for the protocol.
		logger = cfg.Log.Logger(os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}
