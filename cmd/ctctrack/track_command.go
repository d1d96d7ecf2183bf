package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/LdDl/ctc-tracker-go/ctcio"
	"github.com/LdDl/ctc-tracker-go/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var inputDir string
	var outputDir string
	var configPath string
	var dbPath string
	var firstFrame int
	var workers int

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track a directory of segmentation masks",
		Long: "Track reads mask*.tif (or seg*.tif) files of the input directory, links instances\n" +
			"into tracks and writes relabeled masks plus res_track.txt into the output directory.\n" +
			"Nothing is written unless the whole sequence is resolved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := celltrack.DefaultConfig()
			if strings.TrimSpace(configPath) != "" {
				loaded, err := celltrack.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("workers") {
				cfg.Runtime.Workers = workers
			}

			src, err := ctcio.OpenDir(inputDir)
			if err != nil {
				return err
			}
			if !src.Contiguous() {
				return errors.Errorf("frame numbers in %s have gaps", inputDir)
			}
			switch {
			case cmd.Flags().Changed("first-frame"):
				cfg.Runtime.FirstFrame = firstFrame
			case cfg.Runtime.FirstFrame == 0:
				// Keep output names aligned with input names
				cfg.Runtime.FirstFrame = src.FirstIndex()
			}

			tracker, err := celltrack.NewTracker(cfg, ctx.logger)
			if err != nil {
				return err
			}
			ctx.logger.Info("tracking", "input", inputDir, "frames", src.Len(), "matching", string(cfg.Solver.Matching))
			result, err := tracker.Run(cmd.Context(), src)
			if err != nil {
				return err
			}
			if err := ctcio.WriteResult(outputDir, result); err != nil {
				return err
			}
			ctx.logger.Info("result written", "output", outputDir, "run_id", result.RunID.String())

			if strings.TrimSpace(dbPath) != "" {
				archive, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer archive.Close()
				if err := archive.SaveRun(cmd.Context(), result); err != nil {
					return err
				}
				ctx.logger.Info("run archived", "db", dbPath, "run_id", result.RunID.String())
			}

			printSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Directory with segmentation masks")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Result directory")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Tracking configuration file (TOML)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to archive the run in")
	cmd.Flags().IntVar(&firstFrame, "first-frame", 0, "Index of the first frame (defaults to the number of the first mask file)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Workers per frame (0 means one per CPU)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func printSummary(w io.Writer, result *celltrack.Result) {
	summary := result.Summary
	rows := [][]string{
		{"Run", result.RunID.String()},
		{"Frames", strconv.Itoa(summary.Frames)},
		{"Tracks", strconv.Itoa(summary.Tracks)},
		{"Divisions", strconv.Itoa(summary.Divisions)},
		{"Merge artifacts", fmt.Sprintf("%d (%d recovered)", summary.Merges, summary.RecoveredMerges)},
		{"Appearances", strconv.Itoa(summary.Events[celltrack.Appearance])},
		{"Disappearances", strconv.Itoa(summary.Events[celltrack.Disappearance])},
		{"Warnings", strconv.Itoa(summary.Warnings)},
		{"Track length", fmt.Sprintf("%.2f ± %.2f (max %d)", summary.MeanTrackLength, summary.StdTrackLength, summary.MaxTrackLength)},
		{"Elapsed", result.Elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, 1))
}
