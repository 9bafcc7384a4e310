package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/config"
	"github.com/kozaktomas/image-query/internal/constants"
	"github.com/kozaktomas/image-query/internal/dataset"
)

var datasetHistogramsCmd = &cobra.Command{
	Use:   "histograms <image-dir>",
	Short: "Compute the histogram table for a directory of images",
	Long: `Compute the color histogram of every image in a directory and write the
histogram table. The image ID is the file name without its extension.

Examples:
  image-query dataset histograms static/Photos --out static/Bovw/img_hist.json
  image-query dataset histograms static/Photos --bins 16 --concurrency 8 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetHistograms,
}

func init() {
	datasetCmd.AddCommand(datasetHistogramsCmd)

	datasetHistogramsCmd.Flags().String("out", "img_hist.json", "Output file")
	datasetHistogramsCmd.Flags().Int("bins", 0, "Bins per color channel (0 = RETRIEVAL_BINS)")
	datasetHistogramsCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel workers")
	datasetHistogramsCmd.Flags().Bool("force", false, "Overwrite the output file")
	datasetHistogramsCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// HistogramsResult is the summary of a histogram extraction run
type HistogramsResult struct {
	Images     int      `json:"images"`
	Written    int      `json:"written"`
	Failed     []string `json:"failed,omitempty"`
	Bins       int      `json:"bins"`
	Output     string   `json:"output"`
	DurationMs int64    `json:"duration_ms"`
}

func runDatasetHistograms(cmd *cobra.Command, args []string) error {
	out := mustGetString(cmd, "out")
	bins := mustGetInt(cmd, "bins")
	concurrency := mustGetInt(cmd, "concurrency")
	force := mustGetBool(cmd, "force")
	jsonOutput := mustGetBool(cmd, "json")

	if bins <= 0 {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		bins = cfg.Retrieval.Bins
	}

	startTime := time.Now()
	files, err := dataset.ImageFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", args[0])
	}

	f, err := createOutput(out, force)
	if err != nil {
		return err
	}
	defer f.Close()

	pool, err := ants.NewPool(max(1, concurrency))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var onDone func()
	if !jsonOutput {
		fmt.Printf("Computing %d-bin histograms for %d images\n\n", bins, len(files))
		bar := newProgressBar(len(files), "Computing histograms", "images")
		onDone = func() { bar.Add(1) }
	}

	records, failed := dataset.Extract(context.Background(), pool, files, bins, onDone)
	if !jsonOutput {
		fmt.Println()
	}

	if err := dataset.WriteHistograms(f, records); err != nil {
		return err
	}

	result := HistogramsResult{
		Images:     len(files),
		Written:    len(records),
		Bins:       bins,
		Output:     out,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	for _, e := range failed {
		result.Failed = append(result.Failed, e.Error())
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("\nWrote %d histograms to %s in %s\n", result.Written, out, formatDuration(time.Since(startTime)))
	if len(failed) > 0 {
		fmt.Printf("Skipped %d images:\n", len(failed))
		for _, e := range result.Failed {
			fmt.Printf("  %s\n", e)
		}
	}
	return nil
}
