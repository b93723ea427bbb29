package main

import (
	"fmt"

	"github.com/spf13/cobra"

	screenshot "github.com/porticus-lab/go-screenshot"
	"github.com/porticus-lab/go-screenshot/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve capture tools over the Model Context Protocol on stdio",
	Long: `Serve the screenshot, screenshot_to_file and screenshot_tiled tools over
MCP on stdin/stdout, for use as an agent tool server. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := screenshot.NewService(cfg.ServiceOptions(logger)...)
	if err != nil {
		return fmt.Errorf("start capture service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("close capture service")
		}
	}()

	logger.Info().Str("version", version).Msg("mcp server on stdio")
	return mcpserver.New(svc, logger, version).ServeStdio()
}
