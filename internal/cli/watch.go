package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/watch"
)

func newWatchCmd(d *deps) *cobra.Command {
	var (
		rows     int
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Split every CSV file dropped into a directory",
		Long: `Watch a directory and split each .csv file written into it. Output
goes to a {name}_split_{timestamp} directory beside the file. The
directory defaults to WATCH_DIR. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := d.cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no directory to watch: pass one or set WATCH_DIR")
			}

			if !cmd.Flags().Changed("rows") {
				rows = d.cfg.Watch.Rows
			} else if rows <= 0 {
				return fmt.Errorf("%w: got %d", core.ErrInvalidChunkSize, rows)
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = d.cfg.Watch.Debounce
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			w := watch.New(d.svc, watch.Options{
				Dir:      dir,
				Rows:     rows,
				Debounce: debounce,
				OnResult: func(path string, res *core.SplitResult, err error) {
					printSplitOutcome(out, errOut, splitOutcome{Path: path, Result: res}, err)
				},
			})

			cmd.Printf("Watching %s for CSV files (Ctrl-C to stop)\n", dir)
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "data rows per output file (default WATCH_ROWS)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is split")
	return cmd
}
