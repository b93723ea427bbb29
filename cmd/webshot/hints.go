package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	screenshot "github.com/porticus-lab/go-screenshot"
)

var hintsFlags struct {
	width     int
	height    int
	sizeBytes int
	docWidth  int
	docHeight int
	model     string
}

var hintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "Compute vision-model hints for image dimensions",
	Long: `Evaluate image dimensions against the configured vision models and print
the hints as JSON. Pure computation, no browser. Pass the source document
dimensions to get a tiling recommendation for oversized pages.

Examples:
  webshot hints --width 1920 --height 6000
  webshot hints --width 1920 --height 6000 --doc-width 1920 --doc-height 6000 --model claude`,
	Args: cobra.NoArgs,
	RunE: runHints,
}

func init() {
	rootCmd.AddCommand(hintsCmd)
	f := hintsCmd.Flags()
	f.IntVar(&hintsFlags.width, "width", 0, "image width in pixels")
	f.IntVar(&hintsFlags.height, "height", 0, "image height in pixels")
	f.IntVar(&hintsFlags.sizeBytes, "size-bytes", 0, "image file size, echoed into the hints")
	f.IntVar(&hintsFlags.docWidth, "doc-width", 0, "source document width, enables tiling recommendations")
	f.IntVar(&hintsFlags.docHeight, "doc-height", 0, "source document height")
	f.StringVar(&hintsFlags.model, "model", "", "target vision model (default from config)")
	_ = hintsCmd.MarkFlagRequired("width")
	_ = hintsCmd.MarkFlagRequired("height")
}

func runHints(cmd *cobra.Command, args []string) error {
	engine := screenshot.NewHintEngine(cfg.Vision.HintConfig())
	hints, err := engine.Hints(screenshot.HintRequest{
		ImageWidth:     hintsFlags.width,
		ImageHeight:    hintsFlags.height,
		ImageSizeBytes: hintsFlags.sizeBytes,
		DocumentWidth:  hintsFlags.docWidth,
		DocumentHeight: hintsFlags.docHeight,
		TargetModel:    hintsFlags.model,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(hints)
}
