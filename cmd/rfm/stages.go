package main

import (
	"fmt"

	"github.com/Veraticus/rfm-flow/internal/cli"
	"github.com/Veraticus/rfm-flow/internal/pipeline"
	"github.com/spf13/cobra"
)

// stageFunc runs one pipeline operation and prints its report.
type stageFunc func(cmd *cobra.Command, p *pipeline.Pipeline) error

// runStage opens the store, builds the pipeline, and runs fn against it.
func runStage(fn stageFunc) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		store, cfg, err := initStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(store)

		p, err := newPipeline(cmd, store, cfg)
		if err != nil {
			return err
		}
		return fn(cmd, p)
	}
}

func etlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "etl",
		Short: "Build RFM rows from the raw transaction extract",
		Long: `Read the raw transaction extract, drop lines without a customer, and
compute recency, frequency and monetary value per customer. The result
replaces the customer table.`,
		Example: `  rfm etl
  rfm etl --input data/raw/Online_Retail.xlsx`,
		RunE: runStage(func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			report, err := p.RunETL(cmd.Context())
			if err != nil {
				return err
			}
			printETL(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func clusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Segment customers by RFM behavior",
		Long: `Standardize the stored RFM metrics, cluster them with k-means, and name
each cluster by its behavior. Requires a prior etl run.`,
		RunE: runStage(func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			report, err := p.RunCluster(cmd.Context())
			if err != nil {
				return err
			}
			printCluster(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Predict customer lifetime value",
		Long: `Train a gradient-boosted regressor on recency, frequency and segment and
predict every customer's lifetime value. Requires a prior cluster run.`,
		RunE: runStage(func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			report, err := p.RunPredict(cmd.Context())
			if err != nil {
				return err
			}
			printPredict(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the customer table to CSV",
		Long: `Write every column of the customer table to the export CSV, plus a YAML
manifest and, when export.sheets is enabled, a Google Sheets copy.`,
		Example: `  rfm export --output segments.csv
  RFM_EXPORT_SHEETS=true rfm export`,
		RunE: runStage(func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			report, err := p.RunExport(cmd.Context())
			if err != nil {
				return err
			}
			printExport(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Long:  `Run etl, cluster, predict and export in sequence, stopping at the first failure.`,
		RunE: runStage(func(cmd *cobra.Command, p *pipeline.Pipeline) error {
			out := cmd.OutOrStdout()
			report, err := p.RunAll(cmd.Context())
			if err != nil {
				return err
			}

			printETL(out, report.ETL)
			printCluster(out, report.Cluster)
			printPredict(out, report.Predict)
			printExport(out, report.Export)
			interrupts.SetStage("")
			fmt.Fprintln(out, cli.FormatSuccess("Pipeline complete"))
			return nil
		}),
	}
}
