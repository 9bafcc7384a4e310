package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/config"
	"github.com/kozaktomas/image-query/internal/retrieval"
)

var queryCmd = &cobra.Command{
	Use:   "query <image>",
	Short: "Find dataset images similar to an image",
	Long: `Run a single retrieval from the command line.

Examples:
  # Print the ranked image IDs
  image-query query photo.jpg

  # Top 10 results as JSON
  image-query query photo.jpg --limit 10 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Int("limit", 0, "Maximum number of results (0 = RETRIEVAL_MAX_RESULTS)")
	queryCmd.Flags().Bool("json", false, "Output as JSON")
}

// QueryErrorResult is the JSON output of a failed query
type QueryErrorResult struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if limit > 0 {
		cfg.Retrieval.MaxResults = limit
	}
	logger := newLogger()
	ctx := context.Background()

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ds, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	store, err := openGraphStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	det, err := newDetector(ctx, cfg, ds)
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, ds, det, store.graph, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Close()

	start := time.Now()
	result, err := pipeline.Retrieve(ctx, imageData)
	if err != nil {
		if jsonOutput {
			if jerr := outputJSON(QueryErrorResult{Error: err.Error(), Kind: retrieval.Kind(err)}); jerr != nil {
				return jerr
			}
		}
		return fmt.Errorf("query failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Detected classes: %s\n", strings.Join(result.DetectedClasses, ", "))
	if len(result.EliminatedClasses) > 0 {
		fmt.Printf("Relaxed query:    %s (dropped %s)\n",
			strings.Join(result.QueryClasses, ", "), strings.Join(result.EliminatedClasses, ", "))
	}
	fmt.Printf("Found %d images in %s\n\n", len(result.ImageIDs), time.Since(start).Round(time.Millisecond))
	for i, s := range result.Scores {
		fmt.Printf("%4d. %-20s %.4f\n", i+1, s.ImageID, s.Similarity)
	}
	if len(result.Dropped) > 0 {
		fmt.Printf("\nSkipped %d images with an undefined similarity\n", len(result.Dropped))
	}
	return nil
}
