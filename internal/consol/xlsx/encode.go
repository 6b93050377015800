package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/asreported/internal/consol"
)

const (
	sheetTable = "table"
	sheetItems = "items"
	sheetLog   = "log"
)

// EncodeResult implements consol.Codec.
func (Codec) EncodeResult(w io.Writer, res *consol.Result) error { return EncodeResult(w, res) }

// EncodeResult writes the consolidated table, the item registry and the
// journal to w.
func EncodeResult(w io.Writer, res *consol.Result) error {
	if res == nil {
		return fmt.Errorf("xlsx: nil result")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetTable); err != nil {
		return err
	}

	header := []interface{}{"source", "row_num", "item", "raw_item"}
	for _, p := range res.Periods {
		header = append(header, p)
	}
	rows := [][]interface{}{header}
	for _, r := range res.Rows {
		line := []interface{}{r.Source, r.RowNum, r.Key.Label(), r.RawItem}
		for _, p := range res.Periods {
			line = append(line, r.Values[p].InexactFloat64())
		}
		rows = append(rows, line)
	}
	if err := writeRows(f, sheetTable, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetItems); err != nil {
		return err
	}
	items := [][]interface{}{{"raw_name", "source", "name"}}
	for _, e := range res.Registry {
		items = append(items, []interface{}{e.RawName, e.Source, e.Key().Label()})
	}
	if err := writeRows(f, sheetItems, items); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetLog); err != nil {
		return err
	}
	journal := make([][]interface{}, 0, len(res.Journal))
	for _, j := range res.Journal {
		journal = append(journal, []interface{}{j.Source, j.Message})
	}
	if err := writeRows(f, sheetLog, journal); err != nil {
		return err
	}
	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, addr, &values); err != nil {
			return fmt.Errorf("xlsx: write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
