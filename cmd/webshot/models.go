package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	screenshot "github.com/porticus-lab/go-screenshot"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the configured vision models and their limits",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	engine := screenshot.NewHintEngine(cfg.Vision.HintConfig())

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			DefaultModel string                `json:"default_model"`
			Models       screenshot.ModelTable `json:"models"`
		}{engine.DefaultModel(), engine.Table()})
	}

	table := engine.Table()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tMAX DIM\tMAX PIXELS\tMAX ASPECT\tTILE\tOVERLAP")
	for _, name := range engine.ModelNames() {
		ml := table[name]
		marker := ""
		if name == engine.DefaultModel() {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%d\t%d\t%.1f\t%dx%d\t%d\n",
			name, marker, ml.MaxDimension, ml.MaxPixels, ml.MaxAspectRatio,
			ml.TileWidth, ml.TileHeight, ml.Overlap)
	}
	return w.Flush()
}
