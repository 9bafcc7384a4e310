package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/image-query/internal/dataset"
)

var datasetFrequenciesCmd = &cobra.Command{
	Use:   "frequencies",
	Short: "Derive the class frequency table from a class graph export",
	Long: `Count, for every class, the images linked to it and write the frequency
table used to rank detected classes (rarest first).

Example:
  image-query dataset frequencies --graph image_classes.json --out static/Bovw/class_frequencies.json`,
	RunE: runDatasetFrequencies,
}

func init() {
	datasetCmd.AddCommand(datasetFrequenciesCmd)

	datasetFrequenciesCmd.Flags().String("graph", "image_classes.json", "Class graph export")
	datasetFrequenciesCmd.Flags().String("out", "class_frequencies.json", "Output file")
	datasetFrequenciesCmd.Flags().Bool("force", false, "Overwrite the output file")
}

func runDatasetFrequencies(cmd *cobra.Command, args []string) error {
	graphPath := mustGetString(cmd, "graph")
	out := mustGetString(cmd, "out")
	force := mustGetBool(cmd, "force")

	graph, err := readGraphFile(graphPath)
	if err != nil {
		return err
	}
	freqs := dataset.ComputeFrequencies(graph)

	f, err := createOutput(out, force)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := dataset.WriteFrequencies(f, freqs); err != nil {
		return err
	}
	fmt.Printf("Wrote %d class frequencies for %d images to %s\n", len(freqs), len(graph), out)
	return nil
}
