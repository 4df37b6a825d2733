package signals

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type fileAsset struct {
	Coin           string `yaml:"coin"`
	Trade          string `yaml:"trade"`
	Tradable       string `yaml:"tradable"`
	Signal         string `yaml:"signal"`
	TakeProfit     string `yaml:"take_profit"`
	StopLoss       string `yaml:"stop_loss"`
	ResistanceUp   string `yaml:"resistance_up"`
	ResistanceDown string `yaml:"resistance_down"`
	Short          string `yaml:"short"`
}

type fileDocument struct {
	Assets []fileAsset `yaml:"assets"`
}

// FileSource reads signals from a local YAML file. It is re-read on every poll.
// Row numbers are the 1-based position in the assets list.
type FileSource struct {
	path   string
	parser *Parser
}

func NewFileSource(path string, parser *Parser) *FileSource {
	return &FileSource{path: path, parser: parser}
}

func (f *FileSource) FetchSignals(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal file: %w", err)
	}
	return ParseFile(data, f.parser)
}

// ParseFile decodes a YAML signal document
func ParseFile(data []byte, parser *Parser) (*Batch, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode signal file: %w", err)
	}

	header := []string{
		ColumnCoin, ColumnTrade, ColumnTradable, ColumnSignal, ColumnTakeProfit,
		ColumnStopLoss, ColumnResistanceUp, ColumnResistanceDown, ColumnShort,
	}
	lines := make([][]string, 0, len(doc.Assets))
	for _, a := range doc.Assets {
		lines = append(lines, []string{
			a.Coin, a.Trade, a.Tradable, a.Signal, a.TakeProfit,
			a.StopLoss, a.ResistanceUp, a.ResistanceDown, a.Short,
		})
	}
	return buildBatch(parser, header, lines, 1), nil
}

// LogReporter writes status updates to the log. Used with file sources.
type LogReporter struct{}

func (LogReporter) ReportStatus(ctx context.Context, row int, update StatusUpdate) error {
	log.Printf("Signal row %d: %s (price %s, qty %s, SL %s, TP %s, sold %s, order %s, disable=%v, reset=%v)",
		row, update.Status,
		FormatNumber(update.PurchasePrice), FormatNumber(update.Quantity),
		FormatNumber(update.StopLoss), FormatNumber(update.TakeProfit),
		FormatNumber(update.SoldPrice), update.OrderID, update.DisableTrading, update.ResetSignal)
	return nil
}
