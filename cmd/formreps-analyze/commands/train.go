package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/claude/formreps/internal/analysis"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/export"
)

func trainCmd() *cobra.Command {
	var (
		exerciseName string
		csvPath      string
		outPath      string
		htmlPath     string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier for one exercise and print its evaluation",
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
			if outPath == "" {
				name, err := analysis.ModelFileName(id)
				if err != nil {
					return err
				}
				outPath = filepath.Join(cfg.Analysis.ModelDir, name)
			}

			res, err := analysis.NewRunner(log).Run(cmd.Context(), analysis.Options{
				CSVPath:   csvPath,
				ModelPath: outPath,
				Seed:      cfg.Analysis.Seed,
				TestRatio: cfg.Analysis.TestRatio,
			})
			if err != nil {
				return err
			}

			if htmlPath != "" {
				page, err := analysis.Charts(res)
				if err != nil {
					return err
				}
				if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
					return fmt.Errorf("writing charts: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&exerciseName, "exercise", "", "exercise id (squats, pushups, deadlift, shoulder_press)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "landmark CSV (default: the exercise's export file)")
	cmd.Flags().StringVar(&outPath, "out", "", "where to save the model (default: the model directory)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "also write the evaluation charts to this HTML file")
	_ = cmd.MarkFlagRequired("exercise")
	return cmd
}
