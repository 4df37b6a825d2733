package signals

import (
	"errors"
	"strings"
)

// buildBatch parses a header line plus data lines. firstRow is the sheet row
// number of the first data line.
func buildBatch(parser *Parser, header []string, lines [][]string, firstRow int) *Batch {
	batch := &Batch{}
	for i, line := range lines {
		row := firstRow + i
		raw := make(RawRow, len(header))
		blank := true
		for col, name := range header {
			if col < len(line) {
				raw[strings.TrimSpace(name)] = line[col]
				if strings.TrimSpace(line[col]) != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}

		entry, err := parser.Parse(row, raw)
		if err != nil {
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				rowErr = &RowError{Row: row, Err: err}
			}
			batch.Rejected = append(batch.Rejected, rowErr)
		}
		// conflicting flags still yield a disabled entry so open positions stay visible
		if entry != nil {
			batch.Entries = append(batch.Entries, *entry)
		}
	}
	return batch
}
