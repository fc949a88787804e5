package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/Veraticus/rfm-flow/internal/segment"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer publishes customer rows to a spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// tab is one worksheet's worth of output.
type tab struct {
	title    string
	values   [][]any
	currency []int64
}

// NewWriter authenticates against Google Sheets.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := newService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		config:  config,
		service: service,
		logger:  logger,
	}, nil
}

// Publish replaces the customer tab with the given rows and, once customers
// carry segments, the summary tab with per-segment means. It returns the
// spreadsheet id.
func (w *Writer) Publish(ctx context.Context, stage model.Stage, customers []model.Customer) (string, error) {
	w.logger.Info("publishing customers to sheets",
		"customers", len(customers),
		"stage", stage.String())

	spreadsheetID, err := w.spreadsheet(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, t := range w.tabs(stage, customers) {
		if err := w.publishTab(ctx, spreadsheetID, t); err != nil {
			return "", fmt.Errorf("tab %q: %w", t.title, err)
		}
	}

	w.logger.Info("sheets publish completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(customers))

	return spreadsheetID, nil
}

func (w *Writer) tabs(stage model.Stage, customers []model.Customer) []tab {
	tabs := []tab{{
		title:    w.config.SheetTitle,
		values:   customerValues(stage, customers),
		currency: currencyColumns(stage),
	}}
	if stage >= model.StageSegmented && w.config.SummaryTitle != "" {
		tabs = append(tabs, tab{
			title:    w.config.SummaryTitle,
			values:   summaryValues(segment.Summarize(customers)),
			currency: []int64{5},
		})
	}
	return tabs
}

func (w *Writer) publishTab(ctx context.Context, spreadsheetID string, t tab) error {
	sheetID, err := w.ensureSheet(ctx, spreadsheetID, t.title)
	if err != nil {
		return err
	}

	if _, err := w.service.Spreadsheets.Values.
		Clear(spreadsheetID, quoteTitle(t.title), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	if err := w.writeRows(ctx, spreadsheetID, t); err != nil {
		return err
	}

	if w.config.EnableFormatting {
		req := formatRequests(sheetID, len(t.values[0]), t.currency)
		if _, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
			// The data is already in place.
			w.logger.Warn("failed to apply formatting", "sheet", t.title, "error", err)
		}
	}
	return nil
}

func newService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		key, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwt, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwt.TokenSource(ctx)
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		tokenSource = oauthConfig.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	return sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
}

// spreadsheet returns the configured spreadsheet id, creating the spreadsheet
// when none is configured.
func (w *Writer) spreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		return w.config.SpreadsheetID, nil
	}

	created, err := w.service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	// Later publishes from this writer reuse it.
	w.config.SpreadsheetID = created.SpreadsheetId
	return created.SpreadsheetId, nil
}

// ensureSheet returns the id of the tab named title, adding the tab if the
// spreadsheet lacks it.
func (w *Writer) ensureSheet(ctx context.Context, spreadsheetID, title string) (int64, error) {
	ss, err := w.service.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to add sheet: %w", err)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (w *Writer) writeRows(ctx context.Context, spreadsheetID string, t tab) error {
	for start := 0; start < len(t.values); start += w.config.BatchSize {
		end := min(start+w.config.BatchSize, len(t.values))

		_, err := w.service.Spreadsheets.Values.
			Update(spreadsheetID, fmt.Sprintf("%s!A%d", quoteTitle(t.title), start+1), &sheets.ValueRange{Values: t.values[start:end]}).
			ValueInputOption("RAW").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to write rows %d-%d: %w", start+1, end, err)
		}

		w.logger.Debug("wrote batch", "sheet", t.title, "start_row", start+1, "rows", end-start)
	}
	return nil
}

// customerValues lays the table out as a header row followed by one row per
// customer. Numeric columns stay numeric so the sheet can aggregate them.
func customerValues(stage model.Stage, customers []model.Customer) [][]any {
	values := make([][]any, 0, len(customers)+1)
	values = append(values, header(stage.Columns()...))

	for _, c := range customers {
		row := []any{c.ID, c.Recency, c.Frequency, c.Monetary}
		if stage >= model.StageSegmented {
			row = append(row, c.Segment, c.SegmentLabel)
		}
		if stage >= model.StageScored {
			row = append(row, c.CLVPredicted)
		}
		values = append(values, row)
	}
	return values
}

// summaryValues renders one row per segment with its size and mean metrics.
func summaryValues(summaries []model.SegmentSummary) [][]any {
	values := make([][]any, 0, len(summaries)+1)
	values = append(values, header("segment", "segment_label", "customers",
		"mean_recency", "mean_frequency", "mean_monetary"))
	for _, s := range summaries {
		values = append(values, []any{
			s.Segment, s.Label, s.Customers, s.MeanRecency, s.MeanFrequency, s.MeanMonetary,
		})
	}
	return values
}

// quoteTitle makes a tab title safe for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func header(columns ...string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

// currencyColumns returns the zero-based indexes of money columns for the stage.
func currencyColumns(stage model.Stage) []int64 {
	cols := []int64{3}
	if stage >= model.StageScored {
		cols = append(cols, 6)
	}
	return cols
}

// formatRequests bolds and freezes the header, sizes the columns, and gives
// money columns a currency format.
func formatRequests(sheetID int64, columns int, currency []int64) *sheets.BatchUpdateSpreadsheetRequest {
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}

	for _, col := range currency {
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    1,
					StartColumnIndex: col,
					EndColumnIndex:   col + 1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						NumberFormat: &sheets.NumberFormat{Type: "CURRENCY", Pattern: "#,##0.00"},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		})
	}

	return &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
}
