package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Veraticus/rfm-flow/internal/cli"
	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/Veraticus/rfm-flow/internal/segment"
	"github.com/Veraticus/rfm-flow/internal/storage"
	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	var preview int
	var runs int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show what the customer database holds",
		Long: `List the tables of the customer database with row counts, the stage the
customer table has reached, a preview of its rows, and recent stage runs.`,
		Example: `  rfm inspect
  rfm inspect --preview 20 --runs 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle("Customer database "+store.Path()))

			if err := printTables(cmd, store, out); err != nil {
				return err
			}
			if err := printCustomers(cmd, store, out, preview); err != nil {
				return err
			}
			if runs > 0 {
				return printRuns(cmd, store, out, runs)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&preview, "preview", "n", 5, "Number of customer rows to show")
	cmd.Flags().IntVar(&runs, "runs", 10, "Number of recent stage runs to show (0 to hide)")

	return cmd
}

func printTables(cmd *cobra.Command, store *storage.SQLiteStorage, out io.Writer) error {
	tables, err := store.ListTables(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []string{t.Name, strconv.Itoa(t.Rows)})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Table", "Rows"}, rows))
	fmt.Fprintln(out)
	return nil
}

func printCustomers(cmd *cobra.Command, store *storage.SQLiteStorage, out io.Writer, preview int) error {
	customers, stage, err := store.LoadCustomers(cmd.Context(), model.StageRFM)
	if errors.Is(err, common.ErrSchemaMismatch) {
		fmt.Fprintln(out, cli.FormatInfo("No customer table yet; run 'rfm etl' first"))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatStage(storage.CustomerTable,
		fmt.Sprintf("%d customers at the %s stage", len(customers), stage)))

	if preview > 0 {
		rows := make([][]string, 0, preview)
		for i := 0; i < len(customers) && i < preview; i++ {
			rows = append(rows, customers[i].Values(stage))
		}
		fmt.Fprintln(out, cli.RenderTable(stage.Columns(), rows))
		fmt.Fprintln(out)
	}

	if stage >= model.StageSegmented {
		fmt.Fprintln(out, cli.SegmentTable(segment.Summarize(customers)))
		fmt.Fprintln(out)
	}
	return nil
}

func printRuns(cmd *cobra.Command, store *storage.SQLiteStorage, out io.Writer, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, cli.SubtleStyle.Render("No stage runs recorded."))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		status := string(r.Status)
		switch r.Status {
		case model.RunStatusSucceeded:
			status = cli.SuccessStyle.Render(status)
		case model.RunStatusFailed:
			status = cli.ErrorStyle.Render(status)
		}
		rows = append(rows, []string{
			r.Stage,
			status,
			strconv.Itoa(r.Rows),
			formatRelativeTime(r.StartedAt),
			took,
			r.Message,
		})
	}
	fmt.Fprintln(out, cli.RenderTable(
		[]string{"Stage", "Status", "Rows", "Started", "Took", "Message"}, rows))
	return nil
}
