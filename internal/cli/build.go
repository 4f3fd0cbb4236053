package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/trainset/pkg/dataset"
	snapshot "github.com/matzehuels/trainset/pkg/io"
	"github.com/matzehuels/trainset/pkg/pipeline"
)

// buildCommand creates the build command for composing a dataset.
func (c *CLI) buildCommand() *cobra.Command {
	var (
		configPath string
		output     string
		noCache    bool
		redisAddr  string
	)
	opts := pipeline.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose a balanced training dataset from the configured sources",
		Long: `Compose a balanced training dataset from the configured sources.

The build command loads machine-rendered digits, handwritten digits, and
out-of-vocabulary samples, augments the machine digits through seeded
perspective warps, and composes everything into a balanced minibatch
generator. Source datasets are cached locally for faster subsequent runs.

Flags override values from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				mergeFlagOverrides(cmd, &loaded, &opts)
				opts = loaded
			}
			return c.runBuild(cmd.Context(), opts, output, noCache, redisAddr)
		},
	}

	// Common flags
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "base path for dataset snapshot exports")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().StringVar(&redisAddr, "cache-redis", "", "redis address for a shared cache (host:port)")

	// Source flags
	cmd.Flags().StringVar(&opts.PrerenderedPath, "prerendered", opts.PrerenderedPath, "machine-rendered digit directory or archive")
	cmd.Flags().StringVar(&opts.CuratedPath, "curated", opts.CuratedPath, "curated character directory or archive")
	cmd.Flags().StringVar(&opts.RealPath, "real", opts.RealPath, "photographed cell directory for validation")
	cmd.Flags().BoolVar(&opts.MNIST, "mnist", opts.MNIST, "include MNIST handwritten digits")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", opts.Refresh, "reload sources, bypassing cached snapshots")

	// Compose flags
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "minibatch size")
	cmd.Flags().IntVar(&opts.OutputResolution, "resolution", opts.OutputResolution, "output image resolution")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().BoolVar(&opts.Flatten, "flatten", opts.Flatten, "flatten batch images to vectors")
	cmd.Flags().BoolVar(&opts.KeepOriginals, "keep-originals", opts.KeepOriginals, "keep unaugmented machine digits alongside the warped copies")

	return cmd
}

// mergeFlagOverrides copies explicitly set flag values over config values,
// so the precedence is flags > config file > defaults.
func mergeFlagOverrides(cmd *cobra.Command, dst, flags *pipeline.Options) {
	overrides := map[string]func(){
		"prerendered":    func() { dst.PrerenderedPath = flags.PrerenderedPath },
		"curated":        func() { dst.CuratedPath = flags.CuratedPath },
		"real":           func() { dst.RealPath = flags.RealPath },
		"mnist":          func() { dst.MNIST = flags.MNIST },
		"refresh":        func() { dst.Refresh = flags.Refresh },
		"batch-size":     func() { dst.BatchSize = flags.BatchSize },
		"resolution":     func() { dst.OutputResolution = flags.OutputResolution },
		"seed":           func() { dst.Seed = flags.Seed },
		"flatten":        func() { dst.Flatten = flags.Flatten },
		"keep-originals": func() { dst.KeepOriginals = flags.KeepOriginals },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

// runBuild executes the pipeline and reports the composition.
func (c *CLI) runBuild(ctx context.Context, opts pipeline.Options, output string, noCache bool, redisAddr string) error {
	runner, err := c.newRunner(ctx, noCache, redisAddr)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts.Logger = c.Logger

	spinner := newSpinnerWithContext(ctx, "Composing dataset...")
	spinner.Start()

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.StopWithError("Build failed")
		return fmt.Errorf("build: %w", err)
	}
	spinner.Stop()

	printSuccess("Composed %d batches of %d samples", result.Stats.BatchCount, opts.BatchSize)
	printDetail("Run: %s", result.RunID)
	printNewline()
	fmt.Println(sourceTable(result))

	if result.Validation != nil {
		printInfo("Validation: %d photographed cells", len(result.Validation.TestX))
	}

	if output != "" {
		if err := exportSnapshots(result, output); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return nil
}

// sourceTable renders the per-source composition summary.
func sourceTable(result *pipeline.Result) string {
	rows := [][]string{
		{pipeline.SourceMachine, strconv.Itoa(result.Stats.MachineCount), cacheStatus(result.CacheInfo.MachineHit)},
		{pipeline.SourceHandwritten, strconv.Itoa(result.Stats.HandwrittenCount), cacheStatus(result.CacheInfo.HandwrittenHit)},
		{pipeline.SourceOut, strconv.Itoa(result.Stats.OutCount), cacheStatus(result.CacheInfo.OutHit)},
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleTitle
			}
			if col == 1 {
				return StyleNumber
			}
			return StyleValue
		}).
		Headers("SOURCE", "TRAIN SAMPLES", "CACHE").
		Rows(rows...).
		Render()
}

func cacheStatus(hit bool) string {
	if hit {
		return iconCached
	}
	return iconFresh
}

// exportSnapshots writes one snapshot file per composed source.
func exportSnapshots(result *pipeline.Result, base string) error {
	exports := []struct {
		suffix string
		ds     *dataset.Dataset
	}{
		{pipeline.SourceMachine, result.Machine},
		{pipeline.SourceHandwritten, result.Handwritten},
		{pipeline.SourceOut, result.Out},
		{pipeline.SourceValidation, result.Validation},
	}
	for _, e := range exports {
		if e.ds == nil {
			continue
		}
		path := fmt.Sprintf("%s.%s.tsd", base, e.suffix)
		if err := snapshot.Export(e.ds, path); err != nil {
			return err
		}
		printFile(path)
	}
	return nil
}
