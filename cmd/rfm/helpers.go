package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Veraticus/rfm-flow/internal/cli"
	"github.com/Veraticus/rfm-flow/internal/config"
	"github.com/Veraticus/rfm-flow/internal/extract"
	"github.com/Veraticus/rfm-flow/internal/pipeline"
	"github.com/Veraticus/rfm-flow/internal/sheets"
	"github.com/Veraticus/rfm-flow/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initStorage loads the configuration and opens the migrated customer store.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, config.Config{}, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, config.Config{}, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, config.Config{}, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, cfg, nil
}

// closeStore logs instead of failing; the stage result is already committed.
func closeStore(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Warn("failed to close database", "path", store.Path(), "error", err)
	}
}

// newPipeline wires a pipeline with terminal progress and the optional
// checkpoint and sheets integrations.
func newPipeline(cmd *cobra.Command, store *storage.SQLiteStorage, cfg config.Config) (*pipeline.Pipeline, error) {
	out := cmd.OutOrStdout()
	opts := []pipeline.Option{
		pipeline.WithStageHook(func(stage string) {
			interrupts.SetStage(stage)
			fmt.Fprintln(out, cli.FormatStage(stage, stageDetail(stage, cfg)))
		}),
		pipeline.WithRestartProgress(cli.NewProgress(out, "Clustering").Update),
		pipeline.WithRoundProgress(cli.NewProgress(out, "Boosting").Update),
	}

	if cfg.Pipeline.AutoCheckpoint {
		manager, err := store.NewCheckpointManager()
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
		}
		opts = append(opts, pipeline.WithCheckpointer(manager))
	}

	if cfg.Export.Sheets {
		writer, err := newSheetsWriter(cmd.Context())
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithPublisher(writer))
	}

	source := extract.NewReader(cfg.Input.Path, cfg.Input.Sheet)
	return pipeline.New(store, source, cfg, opts...)
}

func newSheetsWriter(ctx context.Context) (*sheets.Writer, error) {
	sheetsCfg, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load sheets configuration: %w", err)
	}
	writer, err := sheets.NewWriter(ctx, *sheetsCfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}
	return writer, nil
}

func stageDetail(stage string, cfg config.Config) string {
	switch stage {
	case pipeline.StageETL:
		return cfg.Input.Path
	case pipeline.StageCluster:
		return fmt.Sprintf("k=%d, seed=%d", cfg.Segment.Clusters, cfg.Segment.Seed)
	case pipeline.StagePredict:
		return fmt.Sprintf("%d rounds, seed=%d", cfg.CLV.Estimators, cfg.CLV.Seed)
	case pipeline.StageExport:
		return cfg.Export.Path
	default:
		return ""
	}
}

func printETL(w io.Writer, r pipeline.ETLReport) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf(
		"Built RFM rows for %d customers from %d transactions (%d without a customer)",
		r.Customers, r.Transactions, r.Dropped)))
	fmt.Fprintln(w, cli.SubtleStyle.Render("  Reference date: "+r.ReferenceDate.Format(time.DateOnly)))
}

func printCluster(w io.Writer, r pipeline.ClusterReport) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Segmented %d customers", r.Customers)))
	fmt.Fprintln(w, cli.SegmentTable(r.Summaries))
}

func printPredict(w io.Writer, r pipeline.PredictReport) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Predicted lifetime value for %d customers", r.Customers)))
	fmt.Fprintln(w, cli.SubtleStyle.Render(fmt.Sprintf(
		"  Held-out MSE: %.4f (%d train / %d test rows)", r.MSE, r.TrainRows, r.TestRows)))
}

func printExport(w io.Writer, r pipeline.ExportReport) {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Exported %d %s rows to %s", r.Rows, r.Stage, r.Path)))
	if r.ManifestPath != "" {
		fmt.Fprintln(w, cli.SubtleStyle.Render("  Manifest: "+r.ManifestPath))
	}
	if r.Spreadsheet != "" {
		fmt.Fprintln(w, cli.SubtleStyle.Render("  Spreadsheet: "+r.Spreadsheet))
	}
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
