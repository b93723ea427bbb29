// webshot captures web pages with headless Chrome: single frames, full
// pages, or overlapping tile grids sized for vision models, with DOM element
// extraction so model output can be checked against ground truth.
//
// Usage:
//
//	webshot serve                 run the HTTP capture API
//	webshot mcp                   serve capture tools over MCP on stdio
//	webshot capture <url>         capture a page to a file or tile directory
//	webshot hints                 compute vision-model hints for dimensions
//	webshot models                list the configured vision models
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
