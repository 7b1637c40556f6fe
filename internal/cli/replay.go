package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vytor/gazetest/internal/samples"
)

type replayOptions struct {
	cols int
	rows int
}

var replayOpts replayOptions

// shades goes from empty to the densest cell.
const shades = " .:-=+*#%@"

var replayCmd = &cobra.Command{
	Use:   "replay <samples.csv>",
	Short: "Render a text heatmap of a stored round",
	Long: `Read an "x,y,t" sample file written at finalization and print a density
grid over the container.

Examples:
  gazetest replay data/blobs/eye-tracking-csvs/<session>/round_1.csv
  gazetest replay round_2.csv --cols 40 --rows 20`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntVar(&replayOpts.cols, "cols", 30, "grid columns")
	replayCmd.Flags().IntVar(&replayOpts.rows, "rows", 12, "grid rows")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open samples: %w", err)
	}
	defer f.Close()

	batch, err := samples.DecodeCSV(f)
	if err != nil {
		return fmt.Errorf("failed to read samples: %w", err)
	}
	grid := samples.NewGrid(batch, replayOpts.cols, replayOpts.rows)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "samples=%d plotted=%d max=%d\n", len(batch), grid.Total, grid.Max)
	if len(batch) > 0 {
		span := batch[len(batch)-1].T.Sub(batch[0].T)
		fmt.Fprintf(out, "span=%s\n", span)
	}
	renderGrid(out, grid)
	return nil
}

func renderGrid(out io.Writer, g *samples.Grid) {
	border := "+" + strings.Repeat("-", g.Cols) + "+"
	fmt.Fprintln(out, border)
	for _, row := range g.Cells {
		var sb strings.Builder
		sb.WriteString("|")
		for _, n := range row {
			sb.WriteByte(shade(n, g.Max))
		}
		sb.WriteString("|")
		fmt.Fprintln(out, sb.String())
	}
	fmt.Fprintln(out, border)
}

func shade(n, max int) byte {
	if n <= 0 || max <= 0 {
		return shades[0]
	}
	i := 1 + (n-1)*(len(shades)-2)/max
	if n == max {
		i = len(shades) - 1
	}
	return shades[i]
}
