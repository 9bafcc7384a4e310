package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/config"
	"github.com/kozaktomas/image-query/internal/database"
	"github.com/kozaktomas/image-query/internal/dataset"
)

var datasetImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the class graph (and histograms) into the configured store",
	Long: `Write the image-to-class links of a class graph export into the store
selected by GRAPH_BACKEND. With the postgres backend the dataset histograms are
imported too, enabling SIMILAR_BACKEND=postgres.

Re-importing an image replaces its classes.

Examples:
  GRAPH_BACKEND=badger image-query dataset import --graph image_classes.json
  image-query dataset import --graph image_classes.json --skip-histograms`,
	RunE: runDatasetImport,
}

func init() {
	datasetCmd.AddCommand(datasetImportCmd)

	datasetImportCmd.Flags().String("graph", "image_classes.json", "Class graph export")
	datasetImportCmd.Flags().Bool("skip-histograms", false, "Do not import histograms (postgres backend)")
	datasetImportCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// ImportResult is the summary of an import run
type ImportResult struct {
	Backend       string              `json:"backend"`
	Images        int                 `json:"images"`
	Histograms    int                 `json:"histograms"`
	Errors        int                 `json:"errors"`
	Graph         database.GraphStats `json:"graph"`
	DurationMs    int64               `json:"duration_ms"`
	DurationHuman string              `json:"duration,omitempty"`
}

func importGraph(ctx context.Context, w database.ClassGraphWriter, graph []dataset.ImageClasses, showProgress bool) (int, int) {
	var onDone func()
	if showProgress {
		bar := newProgressBar(len(graph), "Importing class graph", "images")
		onDone = func() { bar.Add(1) }
		defer fmt.Println()
	}

	imported, errorCount := 0, 0
	for _, img := range graph {
		if err := w.SaveImageClasses(ctx, img.ID, database.UniqueClasses(img.Classes)); err != nil {
			errorCount++
			if showProgress {
				fmt.Printf("\nWarning: image %s: %v\n", img.ID, err)
			}
		} else {
			imported++
		}
		if onDone != nil {
			onDone()
		}
	}
	return imported, errorCount
}

func importHistograms(ctx context.Context, w database.HistogramWriter, records []dataset.Record, showProgress bool) (int, int) {
	var onDone func()
	if showProgress {
		bar := newProgressBar(len(records), "Importing histograms", "images")
		onDone = func() { bar.Add(1) }
		defer fmt.Println()
	}

	imported, errorCount := 0, 0
	for _, rec := range records {
		err := w.SaveHistogram(ctx, database.HistogramRecord{
			ImageID:   rec.ID,
			Histogram: rec.Histogram,
			Bins:      rec.Histogram.Bins(),
		})
		if err != nil {
			errorCount++
		} else {
			imported++
		}
		if onDone != nil {
			onDone()
		}
	}
	return imported, errorCount
}

func runDatasetImport(cmd *cobra.Command, args []string) error {
	graphPath := mustGetString(cmd, "graph")
	skipHistograms := mustGetBool(cmd, "skip-histograms")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	startTime := time.Now()

	graph, err := readGraphFile(graphPath)
	if err != nil {
		return err
	}

	store, err := openGraphStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	if !jsonOutput {
		fmt.Printf("Importing %d images into %s\n\n", len(graph), cfg.Graph.Backend)
	}
	result := ImportResult{Backend: cfg.Graph.Backend}
	var errorCount int
	result.Images, errorCount = importGraph(ctx, store.graph, graph, !jsonOutput)
	result.Errors += errorCount

	if store.histograms != nil && !skipHistograms {
		ds, err := loadDataset(cfg)
		if err != nil {
			return err
		}
		result.Histograms, errorCount = importHistograms(ctx, store.histograms, ds.Records(), !jsonOutput)
		result.Errors += errorCount
	}

	result.Graph, err = store.graph.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read graph stats: %w", err)
	}
	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}

	result.DurationHuman = formatDuration(duration)
	fmt.Println("\nImport complete!")
	fmt.Printf("  Images imported:     %d\n", result.Images)
	if result.Histograms > 0 {
		fmt.Printf("  Histograms imported: %d\n", result.Histograms)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:              %d\n", result.Errors)
	}
	fmt.Printf("  Graph: %d images, %d classes, %d links\n", result.Graph.Images, result.Graph.Classes, result.Graph.Links)
	fmt.Printf("  Duration:            %s\n", result.DurationHuman)
	return nil
}
