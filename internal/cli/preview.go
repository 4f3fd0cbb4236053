package cli

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/trainset/pkg/dataset"
	snapshot "github.com/matzehuels/trainset/pkg/io"
	"github.com/matzehuels/trainset/pkg/pixmap"
)

// Preview styles
var (
	previewTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	previewDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

// previewCommand creates the preview command for browsing snapshot samples.
func (c *CLI) previewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <snapshot>",
		Short: "Browse snapshot samples interactively in the terminal",
		Long: `Browse snapshot samples interactively in the terminal.

Images render as terminal half-blocks, two pixel rows per text line.
Navigate classes with the left and right arrows and samples with up and
down; q quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := snapshot.Import(args[0], dataset.Options{})
			if err != nil {
				return fmt.Errorf("preview: %w", err)
			}
			model, err := newPreviewModel(ds)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}
}

// =============================================================================
// PreviewModel - Interactive per-class sample browser
// =============================================================================

// PreviewModel is the bubbletea model for browsing snapshot samples by
// class. Validation snapshots hold every sample in the test split, so the
// model indexes whichever split has samples.
type PreviewModel struct {
	Images  []*pixmap.Image
	Labels  []int
	Classes []int
	byClass map[int][]int

	ClassIdx  int
	SampleIdx int
}

// newPreviewModel indexes the dataset's populated split by class.
func newPreviewModel(ds *dataset.Dataset) (PreviewModel, error) {
	images, labels := ds.Train()
	if len(images) == 0 {
		images, labels = ds.Test()
	}
	if len(images) == 0 {
		return PreviewModel{}, fmt.Errorf("snapshot holds no samples")
	}

	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	return PreviewModel{
		Images:  images,
		Labels:  labels,
		Classes: classes,
		byClass: byClass,
	}, nil
}

func (m PreviewModel) Init() tea.Cmd {
	return nil
}

func (m PreviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left", "h":
			if m.ClassIdx > 0 {
				m.ClassIdx--
				m.SampleIdx = 0
			}
		case "right", "l":
			if m.ClassIdx < len(m.Classes)-1 {
				m.ClassIdx++
				m.SampleIdx = 0
			}
		case "up", "k":
			if m.SampleIdx > 0 {
				m.SampleIdx--
			}
		case "down", "j":
			if m.SampleIdx < m.classLen()-1 {
				m.SampleIdx++
			}
		}
	}
	return m, nil
}

func (m PreviewModel) View() string {
	class := m.Classes[m.ClassIdx]
	img := m.Images[m.byClass[class][m.SampleIdx]]

	var b strings.Builder
	b.WriteString(previewTitleStyle.Render(fmt.Sprintf("Class %s", className(class))))
	b.WriteString(previewDimStyle.Render(fmt.Sprintf("  sample %d/%d  (%d/%d classes)",
		m.SampleIdx+1, m.classLen(), m.ClassIdx+1, len(m.Classes))))
	b.WriteString("\n")
	b.WriteString(previewDimStyle.Render("←/→ class  ↑/↓ sample  q quit"))
	b.WriteString("\n\n")
	b.WriteString(renderImage(img))
	return b.String()
}

func (m PreviewModel) classLen() int {
	return len(m.byClass[m.Classes[m.ClassIdx]])
}

// renderImage draws a grayscale image with half-block characters, packing
// two pixel rows into each text line through foreground and background
// colors.
func renderImage(img *pixmap.Image) string {
	var b strings.Builder
	for y := 0; y < img.Res; y += 2 {
		for x := 0; x < img.Res; x++ {
			upper := grayHex(img.At(x, y, 0))
			lower := grayHex(0)
			if y+1 < img.Res {
				lower = grayHex(img.At(x, y+1, 0))
			}
			b.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(upper)).
				Background(lipgloss.Color(lower)).
				Render("▀"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func grayHex(v uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", v, v, v)
}
