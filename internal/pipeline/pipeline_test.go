package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/config"
	"github.com/Veraticus/rfm-flow/internal/export"
	"github.com/Veraticus/rfm-flow/internal/extract"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/Veraticus/rfm-flow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioCSV = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
A,1,Mug,2,2024-01-01 00:00:00,10,1,United Kingdom
A,2,Plate,1,2024-01-01 00:00:00,5,1,United Kingdom
B,3,Lamp,1,2024-01-05 00:00:00,100,2,United Kingdom
`

type fixture struct {
	store *storage.SQLiteStorage
	cfg   config.Config
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Input.Path = filepath.Join(dir, "raw", "retail.csv")
	cfg.Database.Path = filepath.Join(dir, "customer_data.db")
	cfg.Export.Path = filepath.Join(dir, "processed", "customer_segments_clv.csv")
	cfg.Segment.Clusters = 2

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Input.Path), 0750))
	require.NoError(t, os.WriteFile(cfg.Input.Path, []byte(scenarioCSV), 0600))

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return &fixture{store: store, cfg: cfg, dir: dir}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(f.store, extract.NewReader(f.cfg.Input.Path, ""), f.cfg, opts...)
	require.NoError(t, err)
	return p
}

type recordingPublisher struct {
	stage     model.Stage
	customers []model.Customer
	calls     int
}

func (r *recordingPublisher) Publish(_ context.Context, stage model.Stage, customers []model.Customer) (string, error) {
	r.calls++
	r.stage = stage
	r.customers = customers
	return "sheet-123", nil
}

type recordingCheckpointer struct {
	prefixes []string
}

func (r *recordingCheckpointer) AutoCheckpoint(_ context.Context, prefix string) error {
	r.prefixes = append(r.prefixes, prefix)
	return nil
}

func statuses(t *testing.T, store *storage.SQLiteStorage) map[string]model.RunStatus {
	t.Helper()
	runs, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	out := make(map[string]model.RunStatus, len(runs))
	for _, r := range runs {
		out[r.Stage] = r.Status
	}
	return out
}

func TestRunETL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.pipeline(t).RunETL(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Transactions)
	assert.Equal(t, 2, report.Customers)
	assert.Equal(t, "2024-01-06", report.ReferenceDate.Format("2006-01-02"))

	customers, stage, err := f.store.LoadCustomers(ctx, model.StageRFM)
	require.NoError(t, err)
	assert.Equal(t, model.StageRFM, stage)
	assert.Equal(t, []model.Customer{
		{ID: "1", Recency: 5, Frequency: 1, Monetary: 25},
		{ID: "2", Recency: 1, Frequency: 1, Monetary: 100},
	}, customers)

	assert.Equal(t, model.RunStatusSucceeded, statuses(t, f.store)[StageETL])
}

func TestRunETL_MissingInput(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.cfg.Input.Path))

	_, err := f.pipeline(t).RunETL(context.Background())
	require.ErrorIs(t, err, common.ErrMissingInput)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, f.cfg.Input.Path)
	assert.Equal(t, model.RunStatusFailed, statuses(t, f.store)[StageETL])

	tables, err := f.store.ListTables(context.Background())
	require.NoError(t, err)
	for _, table := range tables {
		assert.NotEqual(t, storage.CustomerTable, table.Name)
	}
}

func TestStagesInSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pipeline(t)

	_, err := p.RunETL(ctx)
	require.NoError(t, err)

	cluster, err := p.RunCluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cluster.Customers)
	require.Len(t, cluster.Summaries, 2)

	customers, stage, err := f.store.LoadCustomers(ctx, model.StageSegmented)
	require.NoError(t, err)
	assert.Equal(t, model.StageSegmented, stage)
	for _, c := range customers {
		assert.Equal(t, model.SegmentLabel(c.Segment), c.SegmentLabel)
	}

	predict, err := p.RunPredict(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, predict.TrainRows)
	assert.Equal(t, 1, predict.TestRows)

	_, stage, err = f.store.LoadCustomers(ctx, model.StageScored)
	require.NoError(t, err)
	assert.Equal(t, model.StageScored, stage)

	exported, err := p.RunExport(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageScored, exported.Stage)
	assert.Equal(t, 2, exported.Rows)
}

func TestRunCluster_BeforeETL(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline(t).RunCluster(context.Background())
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "run etl first")
	assert.Equal(t, model.RunStatusFailed, statuses(t, f.store)[StageCluster])
}

func TestRunPredict_RequiresSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pipeline(t)

	_, err := p.RunETL(ctx)
	require.NoError(t, err)

	_, err = p.RunPredict(ctx)
	require.ErrorIs(t, err, common.ErrSchemaMismatch)

	// The failed stage leaves the RFM table in place.
	_, stage, err := f.store.LoadCustomers(ctx, model.StageRFM)
	require.NoError(t, err)
	assert.Equal(t, model.StageRFM, stage)
}

func TestRunCluster_TooFewCustomers(t *testing.T) {
	f := newFixture(t)
	f.cfg.Segment.Clusters = 4
	ctx := context.Background()
	p := f.pipeline(t)

	_, err := p.RunETL(ctx)
	require.NoError(t, err)

	_, err = p.RunCluster(ctx)
	assert.ErrorIs(t, err, common.ErrInsufficientRows)
}

func TestRunExport_RFMOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pipeline(t)

	_, err := p.RunETL(ctx)
	require.NoError(t, err)

	report, err := p.RunExport(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StageRFM, report.Stage)

	stage, customers, err := export.ReadCSV(report.Path)
	require.NoError(t, err)
	assert.Equal(t, model.StageRFM, stage)
	assert.Len(t, customers, 2)

	manifest, err := export.ReadManifest(report.ManifestPath)
	require.NoError(t, err)
	assert.Empty(t, manifest.Segments)
	assert.Equal(t, 2, manifest.Rows)
}

func TestRunAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	publisher := &recordingPublisher{}
	checkpoints := &recordingCheckpointer{}
	var stages []string
	var rounds int
	p := f.pipeline(t,
		WithPublisher(publisher),
		WithCheckpointer(checkpoints),
		WithStageHook(func(stage string) { stages = append(stages, stage) }),
		WithRoundProgress(func(int, int) { rounds++ }),
	)

	report, err := p.RunAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{StageETL, StageCluster, StagePredict, StageExport}, stages)
	assert.Equal(t, []string{StageETL, StageCluster, StagePredict}, checkpoints.prefixes)
	assert.Equal(t, f.cfg.CLV.Estimators, rounds)

	assert.Equal(t, 2, report.ETL.Customers)
	assert.Equal(t, 2, report.Cluster.Customers)
	assert.Equal(t, 2, report.Predict.Customers)
	assert.Equal(t, model.StageScored, report.Export.Stage)
	assert.Equal(t, "sheet-123", report.Export.Spreadsheet)

	stage, exported, err := export.ReadCSV(f.cfg.Export.Path)
	require.NoError(t, err)
	assert.Equal(t, model.StageScored, stage)
	require.Len(t, exported, 2)
	assert.Equal(t, "1", exported[0].ID)
	assert.Equal(t, 25.0, exported[0].Monetary)
	assert.Equal(t, "2", exported[1].ID)

	assert.Equal(t, 1, publisher.calls)
	assert.Equal(t, model.StageScored, publisher.stage)
	assert.Equal(t, exported, publisher.customers)

	manifest, err := export.ReadManifest(export.ManifestPath(f.cfg.Export.Path))
	require.NoError(t, err)
	assert.Equal(t, "customer_segments_clv.csv", manifest.File)
	assert.Equal(t, model.StageScored.Columns(), manifest.Columns)

	for _, stage := range []string{StageETL, StageCluster, StagePredict, StageExport} {
		assert.Equal(t, model.RunStatusSucceeded, statuses(t, f.store)[stage], stage)
	}
}

func TestRunAll_Deterministic(t *testing.T) {
	run := func() []byte {
		f := newFixture(t)
		_, err := f.pipeline(t).RunAll(context.Background())
		require.NoError(t, err)
		data, err := os.ReadFile(f.cfg.Export.Path)
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, string(run()), string(run()))
}

func TestRunAll_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(t).RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.CLV.TestSize = 1.5

	_, err := New(f.store, extract.NewReader(f.cfg.Input.Path, ""), f.cfg)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
