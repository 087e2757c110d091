package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvsplit/internal/core"
)

func newInspectCmd(d *deps) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "inspect <file.csv>...",
		Short: "Show the detected encoding and row count of CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]core.FileInfo, 0, len(args))
			for _, path := range args {
				info, err := d.svc.InspectPath(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("%s: %s", path, userError(err))
				}
				infos = append(infos, info)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			for _, info := range infos {
				printFileInfo(cmd.OutOrStdout(), info)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	return cmd
}

func printFileInfo(w io.Writer, info core.FileInfo) {
	det := info.Detection
	bom := "no"
	if det.BOM {
		bom = "yes"
	}

	fmt.Fprintf(w, "%s\n", info.Name)
	fmt.Fprintf(w, "  size:       %s\n", info.SizeLabel)
	fmt.Fprintf(w, "  encoding:   %s (%s)\n", det.Tag.Label(), det.Confidence)
	fmt.Fprintf(w, "  bom:        %s\n", bom)
	if det.Reason != "" {
		fmt.Fprintf(w, "  reason:     %s\n", det.Reason)
	}
	fmt.Fprintf(w, "  rows:       %d data rows (%d lines)\n", info.DataRows, info.TotalLines)
	fmt.Fprintf(w, "  suggested:  %d rows per file\n", info.SuggestedChunkSize)
}
