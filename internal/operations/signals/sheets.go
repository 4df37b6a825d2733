package signals

import (
	"SheetTradeBot/internal/services/strategy"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valuesClient is the part of the Sheets values API the source uses
type valuesClient interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, cells map[string]string) error
}

type googleValues struct {
	service *sheets.Service
	sheetID string
}

func (g *googleValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := g.service.Spreadsheets.Values.Get(g.sheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleValues) BatchUpdate(ctx context.Context, cells map[string]string) error {
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for rng, value := range cells {
		req.Data = append(req.Data, &sheets.ValueRange{
			Range:  rng,
			Values: [][]interface{}{{value}},
		})
	}
	_, err := g.service.Spreadsheets.Values.BatchUpdate(g.sheetID, req).Context(ctx).Do()
	return err
}

// SheetSource reads signals from a Google Sheets worksheet and writes trade status back to it
type SheetSource struct {
	values    valuesClient
	worksheet string
	parser    *Parser

	mu      sync.RWMutex
	columns map[string]int
}

// NewSheetSource authenticates with a service-account credentials file
func NewSheetSource(ctx context.Context, sheetID, credentialsFile, worksheet string, parser *Parser) (*SheetSource, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return newSheetSource(&googleValues{service: service, sheetID: sheetID}, worksheet, parser), nil
}

func newSheetSource(values valuesClient, worksheet string, parser *Parser) *SheetSource {
	return &SheetSource{
		values:    values,
		worksheet: worksheet,
		parser:    parser,
		columns:   make(map[string]int),
	}
}

// FetchSignals reads the whole worksheet; row 1 holds the headers
func (s *SheetSource) FetchSignals(ctx context.Context) (*Batch, error) {
	grid, err := s.values.Get(ctx, s.worksheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %s: %w", s.worksheet, err)
	}
	if len(grid) == 0 {
		log.Printf("Worksheet %s is empty", s.worksheet)
		return &Batch{}, nil
	}

	header := cellStrings(grid[0])
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	s.mu.Lock()
	s.columns = columns
	s.mu.Unlock()

	lines := make([][]string, 0, len(grid)-1)
	for _, row := range grid[1:] {
		lines = append(lines, cellStrings(row))
	}

	batch := buildBatch(s.parser, header, lines, 2)
	log.Printf("Found %d signal rows in %s (%d rejected)", len(batch.Entries), s.worksheet, len(batch.Rejected))
	return batch, nil
}

// ReportStatus writes an update into the row's status columns. Columns missing
// from the sheet are skipped.
func (s *SheetSource) ReportStatus(ctx context.Context, row int, update StatusUpdate) error {
	if row < 2 {
		return fmt.Errorf("invalid sheet row %d", row)
	}

	values := map[string]string{}
	if update.Status != "" {
		values[ColumnStatus] = update.Status
	}
	if update.DisableTrading {
		values[ColumnTradable] = "NO"
	}
	if update.OrderID != "" {
		values[ColumnOrderID] = update.OrderID
	}
	if update.ResetSignal {
		values[ColumnSignal] = string(strategy.SignalWait)
		values[ColumnStopLoss] = ""
		values[ColumnTakeProfit] = ""
	}
	numbers := map[string]float64{
		ColumnPurchasePrice: update.PurchasePrice,
		ColumnQuantity:      update.Quantity,
		ColumnStopLoss:      update.StopLoss,
		ColumnTakeProfit:    update.TakeProfit,
		ColumnSoldPrice:     update.SoldPrice,
	}
	for column, v := range numbers {
		if v > 0 {
			values[column] = FormatNumber(v)
		}
	}

	s.mu.RLock()
	cells := make(map[string]string, len(values))
	for column, value := range values {
		idx, ok := s.columns[column]
		if !ok {
			log.Printf("Column %q not found in %s, skipping", column, s.worksheet)
			continue
		}
		cells[fmt.Sprintf("%s!%s%d", s.worksheet, ColumnLetter(idx), row)] = value
	}
	s.mu.RUnlock()

	if len(cells) == 0 {
		return nil
	}
	if err := s.values.BatchUpdate(ctx, cells); err != nil {
		return fmt.Errorf("failed to update row %d: %w", row, err)
	}
	return nil
}

// ColumnLetter converts a zero-based column index to A1 notation (0 -> A, 26 -> AA)
func ColumnLetter(idx int) string {
	letters := ""
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		letters = string(rune('A'+(n-1)%26)) + letters
	}
	return letters
}

// FormatNumber prints a price or quantity without scientific notation, at most 8 decimals
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func cellStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell == nil {
			continue
		}
		out[i] = fmt.Sprint(cell)
	}
	return out
}
