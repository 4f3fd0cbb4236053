package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/trainset/pkg/dataset"
)

// inspectCommand creates the inspect command for photographed cell datasets.
func (c *CLI) inspectCommand() *cobra.Command {
	var (
		resolution int
		legacy     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Summarize a photographed cell dataset by class",
		Long: `Summarize a photographed cell dataset by class.

The directory is expected to hold one subdirectory per photographed grid,
each with a labels.json manifest and 81 box_<i>.png cell images. The
command loads every grid and prints per-class sample counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(args[0], resolution, legacy)
		},
	}

	cmd.Flags().IntVar(&resolution, "resolution", 28, "resolution cells are loaded at")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "interpret manifests with the legacy class scheme")

	return cmd
}

func (c *CLI) runInspect(dir string, resolution int, legacy bool) error {
	spinner := newSpinner("Loading grids...")
	spinner.Start()

	ds, err := dataset.LoadRealValidation(dataset.RealOptions{
		Path:         dir,
		Resolution:   resolution,
		LegacyScheme: legacy,
		Dataset:      dataset.Options{Logger: c.Logger},
	})
	if err != nil {
		spinner.StopWithError("Load failed")
		return fmt.Errorf("inspect: %w", err)
	}
	spinner.Stop()

	total := len(ds.TestY)
	printSuccess("Loaded %d cells from %d grids", total, total/dataset.CellsPerGrid)
	printNewline()
	fmt.Println(classTable(ds))
	return nil
}

// classTable renders per-class sample counts with share of the total.
// Validation datasets keep every sample in the test split, so counts come
// from the test labels.
func classTable(ds *dataset.Dataset) string {
	total := len(ds.TestY)
	counts := map[int]int{}
	for _, y := range ds.TestY {
		counts[y]++
	}
	classes := make([]int, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	var rows [][]string
	for _, class := range classes {
		count := counts[class]
		share := fmt.Sprintf("%.1f%%", 100*float64(count)/float64(total))
		rows = append(rows, []string{className(class), strconv.Itoa(count), share})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleTitle
			}
			if col > 0 {
				return StyleNumber
			}
			return StyleValue
		}).
		Headers("CLASS", "SAMPLES", "SHARE").
		Rows(rows...).
		Render()
}

// className renders a class identifier as a short human-readable label.
func className(class int) string {
	switch {
	case class == dataset.ClassEmpty:
		return "empty"
	case class == dataset.ClassOut:
		return "out"
	case class > dataset.HandwrittenOffset && class < dataset.NumClasses:
		return fmt.Sprintf("hand %d", class-dataset.HandwrittenOffset)
	default:
		return fmt.Sprintf("digit %d", class)
	}
}
