package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/export"
)

func inspectCmd() *cobra.Command {
	var exerciseName, csvPath string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print how many rows each class has in an exercise's export",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := exercise.Parse(exerciseName)
			if err != nil {
				return err
			}
			if csvPath == "" {
				if csvPath, err = export.NewCSVRecorder(cfg.Export.Dir).Path(id); err != nil {
					return err
				}
			}
			rows, err := export.ReadRows(csvPath)
			if err != nil {
				return err
			}

			counts := map[string]int{}
			for _, r := range rows {
				counts[r.Class]++
			}
			classes := make([]string, 0, len(counts))
			for c := range counts {
				classes = append(classes, c)
			}
			sort.Strings(classes)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "CLASS\tROWS\n")
			for _, c := range classes {
				fmt.Fprintf(tw, "%s\t%d\n", c, counts[c])
			}
			fmt.Fprintf(tw, "total\t%d\n", len(rows))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&exerciseName, "exercise", "", "exercise id")
	cmd.Flags().StringVar(&csvPath, "csv", "", "landmark CSV (default: the exercise's export file)")
	_ = cmd.MarkFlagRequired("exercise")
	return cmd
}
