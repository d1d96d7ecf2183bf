package main

import (
	"fmt"
	"strconv"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/LdDl/ctc-tracker-go/ctcio"
	"github.com/LdDl/ctc-tracker-go/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLineageCommand() *cobra.Command {
	var dbPath string
	var runID string

	cmd := &cobra.Command{
		Use:   "lineage [FILE]",
		Short: "Show lineage table of res_track.txt or of an archived run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []celltrack.LineageRow
			switch {
			case len(args) == 1:
				var err error
				rows, err = ctcio.ReadLineageFile(args[0])
				if err != nil {
					return err
				}
			case dbPath != "" && runID != "":
				id, err := uuid.Parse(runID)
				if err != nil {
					return errors.Wrapf(err, "run id %q", runID)
				}
				archive, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer archive.Close()
				rows, err = archive.Lineage(cmd.Context(), id)
				if err != nil {
					return err
				}
			default:
				return errors.New("either FILE or both --db and --run are required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderLineage(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run archive")
	cmd.Flags().StringVar(&runID, "run", "", "Archived run id")
	return cmd
}

func renderLineage(rows []celltrack.LineageRow) string {
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		parent := "-"
		if row.Parent != 0 {
			parent = strconv.Itoa(row.Parent)
		}
		table = append(table, []string{
			strconv.Itoa(row.TrackID),
			strconv.Itoa(row.Start),
			strconv.Itoa(row.End),
			strconv.Itoa(row.End - row.Start + 1),
			parent,
		})
	}
	return renderTable(
		[]string{"Track", "Start", "End", "Length", "Parent"},
		table,
		0,
	)
}

func newRunsCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs archived in a SQLite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer archive.Close()
			runs, err := archive.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived runs")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.RunID.String(),
					run.CreatedAt.Format("2006-01-02 15:04:05"),
					strconv.Itoa(run.Frames),
					strconv.Itoa(run.Tracks),
					strconv.Itoa(run.Divisions),
					strconv.Itoa(run.Merges),
					strconv.Itoa(run.Warnings),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Created", "Frames", "Tracks", "Divisions", "Merges", "Warnings"},
				rows,
				2,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run archive")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
