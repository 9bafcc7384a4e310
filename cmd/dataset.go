package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Prepare and import the retrieval dataset",
	Long: `Commands that build the dataset files (histogram table, class frequency
table) and load the class graph into the configured store.`,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
}

// readGraphFile reads a class graph export ([{"ID": id, "Classes": [...]}]).
func readGraphFile(path string) ([]dataset.ImageClasses, error) {
	f, err := os.Open(path) //nolint:gosec // path is from a CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to open class graph: %w", err)
	}
	defer f.Close()
	return dataset.ReadGraph(f)
}

// createOutput creates path for writing, refusing to overwrite unless forced.
func createOutput(path string, force bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644) //nolint:gosec // path is from a CLI flag
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// newProgressBar creates the progress bar shared by the dataset commands.
func newProgressBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
