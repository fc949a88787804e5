// Package pipeline chains the extract, RFM, segmentation, CLV and export
// stages around the shared store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Veraticus/rfm-flow/internal/clv"
	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/config"
	"github.com/Veraticus/rfm-flow/internal/export"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/Veraticus/rfm-flow/internal/rfm"
	"github.com/Veraticus/rfm-flow/internal/segment"
	"github.com/Veraticus/rfm-flow/internal/service"
)

// Stage names as recorded in the run log.
const (
	StageETL     = "etl"
	StageCluster = "cluster"
	StagePredict = "predict"
	StageExport  = "export"
)

// Pipeline runs stages against one store. Each stage reads the whole customer
// table, transforms it, and replaces it.
type Pipeline struct {
	store        service.Storage
	source       service.Source
	publisher    service.Publisher
	checkpointer service.Checkpointer
	segmenter    *segment.Segmenter
	estimator    *clv.Estimator
	exporter     *export.CSVWriter
	onStage      func(stage string)
	segmentCfg   segment.Config
	clvCfg       clv.Config
	manifest     bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher mirrors every export to p.
func WithPublisher(p service.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithCheckpointer snapshots the store before each stage overwrites it.
func WithCheckpointer(c service.Checkpointer) Option {
	return func(pl *Pipeline) { pl.checkpointer = c }
}

// WithRestartProgress reports clustering restarts.
func WithRestartProgress(fn func(done, total int)) Option {
	return func(pl *Pipeline) { pl.segmentCfg.OnRestart = fn }
}

// WithRoundProgress reports boosting rounds.
func WithRoundProgress(fn func(done, total int)) Option {
	return func(pl *Pipeline) { pl.clvCfg.OnRound = fn }
}

// WithStageHook is called as each stage starts.
func WithStageHook(fn func(stage string)) Option {
	return func(pl *Pipeline) { pl.onStage = fn }
}

// New wires a pipeline from configuration.
func New(store service.Storage, source service.Source, cfg config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		store:    store,
		source:   source,
		exporter: export.NewCSVWriter(cfg.Export.Path),
		manifest: cfg.Export.Manifest,
		segmentCfg: segment.Config{
			Clusters:      cfg.Segment.Clusters,
			Restarts:      cfg.Segment.Restarts,
			MaxIterations: cfg.Segment.MaxIterations,
			Tolerance:     cfg.Segment.Tolerance,
			Seed:          cfg.Segment.Seed,
		},
		clvCfg: clv.Config{
			Seed:           cfg.CLV.Seed,
			TestSize:       cfg.CLV.TestSize,
			Estimators:     cfg.CLV.Estimators,
			MaxDepth:       cfg.CLV.MaxDepth,
			LearningRate:   cfg.CLV.LearningRate,
			MinSamplesLeaf: cfg.CLV.MinSamplesLeaf,
			Lambda:         cfg.CLV.Lambda,
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	if p.segmenter, err = segment.New(p.segmentCfg); err != nil {
		return nil, err
	}
	if p.estimator, err = clv.New(p.clvCfg); err != nil {
		return nil, err
	}
	return p, nil
}

// ETLReport summarizes an extract and transform run.
type ETLReport struct {
	ReferenceDate time.Time
	Transactions  int
	Dropped       int
	Customers     int
}

// ClusterReport summarizes a segmentation run.
type ClusterReport struct {
	Summaries []model.SegmentSummary
	Customers int
	Inertia   float64
}

// PredictReport summarizes a CLV run.
type PredictReport struct {
	Customers int
	MSE       float64
	TrainRows int
	TestRows  int
}

// ExportReport summarizes an export run.
type ExportReport struct {
	Path         string
	ManifestPath string
	Spreadsheet  string
	Rows         int
	Stage        model.Stage
}

// Report collects the reports of a full run.
type Report struct {
	ETL     ETLReport
	Cluster ClusterReport
	Predict PredictReport
	Export  ExportReport
}

// track records stage in the run log around fn. A failed or interrupted
// stage is still marked as failed.
func (p *Pipeline) track(ctx context.Context, stage string, fn func(run *model.Run) (int, error)) error {
	if p.onStage != nil {
		p.onStage(stage)
	}

	run, err := p.store.StartRun(ctx, stage)
	if err != nil {
		return err
	}

	rows, runErr := fn(run)
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run, rows, runErr); err != nil {
		slog.Warn("failed to record run result", "stage", stage, "run_id", run.ID, "error", err)
	}

	fields := common.Fields{
		"stage":   stage,
		"run_id":  run.ID,
		"elapsed": time.Since(run.StartedAt).Round(time.Millisecond),
	}
	if runErr != nil {
		common.LogError(runErr, "stage failed", fields)
		return fmt.Errorf("%s: %w", stage, runErr)
	}
	fields["rows"] = rows
	common.LogInfo("stage complete", fields)
	return nil
}

// replace snapshots the store when configured, then replaces the customer
// table with the stage's rows.
func (p *Pipeline) replace(ctx context.Context, label string, stage model.Stage, customers []model.Customer) error {
	if p.checkpointer != nil {
		if err := p.checkpointer.AutoCheckpoint(ctx, label); err != nil {
			return err
		}
	}
	common.LogDebug("replacing customer table", common.Fields{
		"stage": stage.String(),
		"rows":  len(customers),
	})
	return p.store.ReplaceCustomers(ctx, stage, customers)
}

// RunETL extracts the raw transactions, builds RFM rows, and replaces the
// customer table with them.
func (p *Pipeline) RunETL(ctx context.Context) (ETLReport, error) {
	report, _, err := p.etl(ctx)
	return report, err
}

func (p *Pipeline) etl(ctx context.Context) (ETLReport, []model.Customer, error) {
	var (
		report    ETLReport
		customers []model.Customer
	)
	err := p.track(ctx, StageETL, func(*model.Run) (int, error) {
		txns, err := p.source.Read(ctx)
		if err != nil {
			return 0, err
		}

		result, err := rfm.Transform(txns)
		if err != nil {
			return 0, err
		}

		if err := p.replace(ctx, StageETL, model.StageRFM, result.Customers); err != nil {
			return 0, err
		}

		report = ETLReport{
			ReferenceDate: result.ReferenceDate,
			Transactions:  result.InputRows,
			Dropped:       result.DroppedRows,
			Customers:     len(result.Customers),
		}
		customers = result.Customers
		slog.Info("ETL complete",
			"transactions", report.Transactions,
			"dropped", report.Dropped,
			"customers", report.Customers,
			"reference_date", report.ReferenceDate.Format(time.DateOnly))
		return len(customers), nil
	})
	return report, customers, err
}

// RunCluster segments the stored RFM rows and writes them back with segment
// columns.
func (p *Pipeline) RunCluster(ctx context.Context) (ClusterReport, error) {
	report, _, err := p.cluster(ctx, nil)
	return report, err
}

// cluster segments customers, loading them from the store when nil.
func (p *Pipeline) cluster(ctx context.Context, customers []model.Customer) (ClusterReport, []model.Customer, error) {
	var report ClusterReport
	err := p.track(ctx, StageCluster, func(*model.Run) (int, error) {
		if customers == nil {
			loaded, _, err := p.store.LoadCustomers(ctx, model.StageRFM)
			if err != nil {
				return 0, err
			}
			customers = loaded
		}

		result, err := p.segmenter.Segment(ctx, customers)
		if err != nil {
			return 0, err
		}

		if err := p.replace(ctx, StageCluster, model.StageSegmented, result.Customers); err != nil {
			return 0, err
		}

		report = ClusterReport{
			Summaries: result.Summaries,
			Customers: len(result.Customers),
			Inertia:   result.Inertia,
		}
		customers = result.Customers
		return len(customers), nil
	})
	return report, customers, err
}

// RunPredict scores the stored segmented rows and writes them back with the
// predicted lifetime value.
func (p *Pipeline) RunPredict(ctx context.Context) (PredictReport, error) {
	report, _, err := p.predict(ctx, nil)
	return report, err
}

func (p *Pipeline) predict(ctx context.Context, customers []model.Customer) (PredictReport, []model.Customer, error) {
	var report PredictReport
	err := p.track(ctx, StagePredict, func(*model.Run) (int, error) {
		if customers == nil {
			loaded, _, err := p.store.LoadCustomers(ctx, model.StageSegmented)
			if err != nil {
				return 0, err
			}
			customers = loaded
		}

		result, err := p.estimator.Estimate(ctx, customers)
		if err != nil {
			return 0, err
		}

		if err := p.replace(ctx, StagePredict, model.StageScored, result.Customers); err != nil {
			return 0, err
		}

		report = PredictReport{
			Customers: len(result.Customers),
			MSE:       result.MSE,
			TrainRows: result.TrainRows,
			TestRows:  result.TestRows,
		}
		customers = result.Customers
		return len(customers), nil
	})
	return report, customers, err
}

// RunExport writes the stored customer table to the export file with every
// column it holds, plus the manifest and the optional sheet.
func (p *Pipeline) RunExport(ctx context.Context) (ExportReport, error) {
	var report ExportReport
	err := p.track(ctx, StageExport, func(run *model.Run) (int, error) {
		customers, stage, err := p.store.LoadCustomers(ctx, model.StageRFM)
		if err != nil {
			return 0, err
		}

		report = ExportReport{Path: p.exporter.Path(), Rows: len(customers), Stage: stage}
		if err := p.exporter.Write(ctx, stage, customers); err != nil {
			return 0, err
		}

		if p.manifest {
			report.ManifestPath = export.ManifestPath(p.exporter.Path())
			m := export.NewManifest(run.ID, filepath.Base(p.exporter.Path()), stage, customers)
			if err := export.WriteManifest(report.ManifestPath, m); err != nil {
				return 0, err
			}
		}

		if p.publisher != nil {
			id, err := p.publisher.Publish(ctx, stage, customers)
			if err != nil {
				return 0, fmt.Errorf("failed to publish to sheets: %w", err)
			}
			report.Spreadsheet = id
		}

		return len(customers), nil
	})
	return report, err
}

// RunAll runs every stage in order, handing each stage's rows directly to the
// next. The store is still replaced at every stage boundary.
func (p *Pipeline) RunAll(ctx context.Context) (Report, error) {
	var report Report

	etl, customers, err := p.etl(ctx)
	if err != nil {
		return report, err
	}
	report.ETL = etl

	cluster, customers, err := p.cluster(ctx, customers)
	if err != nil {
		return report, err
	}
	report.Cluster = cluster

	predict, _, err := p.predict(ctx, customers)
	if err != nil {
		return report, err
	}
	report.Predict = predict

	if report.Export, err = p.RunExport(ctx); err != nil {
		return report, err
	}
	return report, nil
}
