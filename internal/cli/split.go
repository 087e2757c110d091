package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvsplit/internal/core"
)

type splitOptions struct {
	rows       int
	outDir     string
	jsonOut    bool
	noProgress bool
}

// splitOutcome is one file's entry in --json output.
type splitOutcome struct {
	Path   string            `json:"path"`
	Result *core.SplitResult `json:"result,omitempty"`
	Error  *core.UserMessage `json:"error,omitempty"`
}

func newSplitCmd(d *deps) *cobra.Command {
	opts := &splitOptions{}

	cmd := &cobra.Command{
		Use:   "split <file.csv>...",
		Short: "Split CSV files into parts of at most N rows",
		Long: `Split each file into {name}_part1.csv, {name}_part2.csv, ... in a new
directory {name}_split_{timestamp} next to the source. Every part starts
with the source header and is written in the source encoding.

Without --rows the size comes from SPLIT_DEFAULT_ROWS, or is suggested
from the row count (a tenth of the rows, between 1000 and 10000).`,
		Example: `  csvsplit split orders.csv --rows 5000
  csvsplit split a.csv b.csv --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rows") && opts.rows <= 0 {
				return fmt.Errorf("%w: got %d", core.ErrInvalidChunkSize, opts.rows)
			}
			if opts.outDir != "" && len(args) > 1 {
				return errors.New("--out can only be used with a single file")
			}
			return runSplit(cmd, d, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.rows, "rows", "n", 0, "data rows per output file")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "output directory (single file only)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func runSplit(cmd *cobra.Command, d *deps, opts *splitOptions, paths []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	showProgress := !opts.noProgress && !opts.jsonOut && isTerminal(cmd.ErrOrStderr())

	outcomes := make([]splitOutcome, 0, len(paths))
	failed := 0

	for _, path := range paths {
		var onProgress core.ProgressFunc
		var bar *progressPrinter
		if showProgress {
			bar = newProgressPrinter(cmd.ErrOrStderr(), path)
			onProgress = bar.Update
		}

		res, err := d.svc.SplitNow(ctx, core.SplitRequest{
			Path:      path,
			ChunkSize: opts.rows,
			OutputDir: opts.outDir,
			Source:    "cli",
		}, onProgress)
		if bar != nil {
			bar.Done()
		}

		outcome := splitOutcome{Path: path, Result: res}
		if err != nil {
			failed++
			msg := core.MapError(err)
			outcome.Error = &msg
		}
		outcomes = append(outcomes, outcome)

		if !opts.jsonOut {
			printSplitOutcome(out, cmd.ErrOrStderr(), outcome, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func printSplitOutcome(out, errOut io.Writer, o splitOutcome, err error) {
	res := o.Result
	if res != nil && res.Chunks > 0 && len(res.Files) > 0 {
		fmt.Fprintf(out, "%s: %d rows (%s) -> %d files of up to %d rows in %s\n",
			o.Path, res.Rows, res.Encoding.Label(), len(res.Files), res.ChunkSize, res.OutputDir)
	}
	if err == nil {
		return
	}
	if res != nil {
		for _, f := range res.Failed {
			fmt.Fprintf(errOut, "%s: not written: %s: %s\n", o.Path, f.Name, f.Error)
		}
	}
	fmt.Fprintf(errOut, "%s: %s\n", o.Path, userError(err))
}
