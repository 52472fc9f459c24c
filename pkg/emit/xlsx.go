package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/queuebridge/sqlblocks/pkg/events"
)

// XLSX collects row-bearing events into an Excel workbook, one sheet per
// block. Non-row events go to an "events" log sheet. The file is written on
// Close, so an interrupted run leaves no partial workbook behind.
type XLSX struct {
	path string
	file *excelize.File

	// per-sheet state
	nextRow map[string]int
	columns map[string][]string
	logRow  int
}

// NewXLSX creates an XLSX emitter writing to cfg.Path.
func NewXLSX(cfg Config) (*XLSX, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path is required for xlsx")
	}
	return &XLSX{
		path:    cfg.Path,
		nextRow: make(map[string]int),
		columns: make(map[string][]string),
	}, nil
}

func (x *XLSX) Connect(context.Context) error {
	x.file = excelize.NewFile()
	if err := x.file.SetSheetName("Sheet1", "events"); err != nil {
		return fmt.Errorf("failed to init log sheet: %w", err)
	}
	for col, header := range []string{"timestamp", "id", "kind", "block", "payload"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		x.file.SetCellValue("events", cell, header)
	}
	x.logRow = 2
	return nil
}

func (x *XLSX) Emit(_ context.Context, ev *events.Event) error {
	if x.file == nil {
		return fmt.Errorf("xlsx emitter not connected")
	}

	switch ev.Kind {
	case events.KindRows:
		var p events.RowsPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode rows payload: %w", err)
		}
		var cols []string
		for _, c := range p.Columns {
			cols = append(cols, c.Name)
		}
		return x.appendRows(ev.Block, cols, p.Rows)

	case events.KindBatch:
		var p events.BatchPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode batch payload: %w", err)
		}
		rows, err := events.DecodeRows(&p)
		if err != nil {
			return err
		}
		return x.appendRows(ev.Block, nil, rows)

	default:
		return x.appendLog(ev)
	}
}

// appendRows writes data rows to the block's sheet, creating it with a
// header row on first use. When cols is nil the header is derived from the
// first row's keys, sorted for a stable layout.
func (x *XLSX) appendRows(block string, cols []string, rows []map[string]any) error {
	sheet := sheetName(block)

	if _, ok := x.nextRow[sheet]; !ok {
		if _, err := x.file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if len(cols) == 0 && len(rows) > 0 {
			for name := range rows[0] {
				cols = append(cols, name)
			}
			sort.Strings(cols)
		}
		for i, name := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			x.file.SetCellValue(sheet, cell, name)
			colName, _ := excelize.ColumnNumberToName(i + 1)
			x.file.SetColWidth(sheet, colName, colName, 15)
		}
		x.columns[sheet] = cols
		x.nextRow[sheet] = 2
	}

	cols = x.columns[sheet]
	row := x.nextRow[sheet]
	for _, values := range rows {
		for i, name := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			v := values[name]
			if v == nil {
				continue
			}
			x.file.SetCellValue(sheet, cell, v)
		}
		row++
	}
	x.nextRow[sheet] = row
	return nil
}

func (x *XLSX) appendLog(ev *events.Event) error {
	values := []any{
		ev.Timestamp.Format("2006-01-02 15:04:05"),
		ev.ID,
		string(ev.Kind),
		ev.Block,
		string(ev.Payload),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, x.logRow)
		x.file.SetCellValue("events", cell, v)
	}
	x.logRow++
	return nil
}

func (x *XLSX) Ping(context.Context) error {
	if x.file == nil {
		return fmt.Errorf("xlsx emitter not connected")
	}
	return nil
}

func (x *XLSX) Close() error {
	if x.file == nil {
		return nil
	}
	defer x.file.Close()
	if err := x.file.SaveAs(x.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", x.path, err)
	}
	return nil
}

func (x *XLSX) Type() string { return "xlsx" }

// sheetName keeps Excel's 31-char sheet name limit.
func sheetName(block string) string {
	if block == "" {
		block = "data"
	}
	if len(block) > 31 {
		block = block[:31]
	}
	return block
}
