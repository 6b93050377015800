package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/asreported/internal/consol"
)

const (
	fillUnmatched = "F3F549"
	fillDisjoint  = "E0DDDC"
	numberFormat  = `_-* #,##0_-;-* #,##0_-;_-* "-"??_-;_-@_-`
)

// EncodeDebug writes the working table of the latest iteration as base, comp
// and side-by-side diff sheets. Unmatched rows are yellow and disjoint rows grey.
func EncodeDebug(w io.Writer, view consol.DebugView) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", "base"); err != nil {
		return err
	}
	if _, err := f.NewSheet("comp"); err != nil {
		return err
	}
	if _, err := f.NewSheet("diff"); err != nil {
		return err
	}
	styles, err := newDebugStyles(f)
	if err != nil {
		return err
	}

	header := []interface{}{"source", "row_num", "item", "raw_item"}
	for _, p := range view.Periods {
		header = append(header, p)
	}
	header = append(header, "matched", "disjoint", "init_row_num", "init_comp_row_num")
	width := len(header)
	// diff drops source and row_num, and puts comp to the right of base.
	diffOffset := width - 2

	for _, side := range []struct {
		sheet string
		rows  []consol.DebugRow
		col   int
	}{
		{"base", view.Base, 1},
		{"comp", view.Comp, 1 + diffOffset},
	} {
		if err := writeDebugRow(f, side.sheet, 1, 1, header, nil); err != nil {
			return err
		}
		if err := writeDebugRow(f, "diff", side.col, 1, header[2:], nil); err != nil {
			return err
		}
		for i, r := range side.rows {
			line := debugLine(r, view.Periods)
			style := styles.pick(r)
			if err := writeDebugRow(f, side.sheet, 1, i+2, line, style); err != nil {
				return err
			}
			if err := writeDebugRow(f, "diff", side.col, i+2, line[2:], style); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func debugLine(r consol.DebugRow, periods []string) []interface{} {
	line := []interface{}{r.Source, r.RowNum, r.Item, r.RawItem}
	for _, p := range periods {
		if v, ok := r.Values[p]; ok {
			line = append(line, v.InexactFloat64())
		} else {
			line = append(line, nil)
		}
	}
	disjoint := string(r.Disjoint)
	if disjoint == "" {
		disjoint = "NA"
	}
	return append(line, r.Matched, disjoint, r.InitRowNum, r.InitCompRowNum)
}

type debugStyles struct {
	plain     int
	unmatched int
	disjoint  int
}

func newDebugStyles(f *excelize.File) (*debugStyles, error) {
	plain, err := f.NewStyle(&excelize.Style{CustomNumFmt: stringPtr(numberFormat)})
	if err != nil {
		return nil, fmt.Errorf("xlsx: style: %w", err)
	}
	unmatched, err := f.NewStyle(&excelize.Style{
		Fill:         excelize.Fill{Type: "pattern", Color: []string{fillUnmatched}, Pattern: 1},
		CustomNumFmt: stringPtr(numberFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx: style: %w", err)
	}
	disjoint, err := f.NewStyle(&excelize.Style{
		Fill:         excelize.Fill{Type: "pattern", Color: []string{fillDisjoint}, Pattern: 1},
		CustomNumFmt: stringPtr(numberFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx: style: %w", err)
	}
	return &debugStyles{plain: plain, unmatched: unmatched, disjoint: disjoint}, nil
}

func (s *debugStyles) pick(r consol.DebugRow) *int {
	switch {
	case r.Disjoint != consol.DisjointNone:
		return &s.disjoint
	case !r.Matched:
		return &s.unmatched
	default:
		return &s.plain
	}
}

func writeDebugRow(f *excelize.File, sheet string, col, row int, values []interface{}, style *int) error {
	start, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("xlsx: write %s row %d: %w", sheet, row, err)
	}
	if style == nil {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(col+len(values)-1, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, *style)
}

func stringPtr(s string) *string { return &s }
