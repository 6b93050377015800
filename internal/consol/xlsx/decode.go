// Package xlsx reads consolidation workbooks and writes results and debug
// snapshots as Excel files.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/asreported/internal/statement"
)

const (
	sheetMetadata       = "metadata"
	sheetCompLike       = "comp_like"
	sheetManualMappings = "item_manual_mappings"
)

var (
	// ErrOpen indicates the upload is not a readable workbook.
	ErrOpen = errors.New("xlsx: cannot open workbook")
	// ErrMetadataMissing indicates the workbook has no metadata sheet.
	ErrMetadataMissing = errors.New("xlsx: the input workbook must contain a metadata sheet")
	// ErrMissingColumns indicates a control sheet lacks required columns.
	ErrMissingColumns = errors.New("xlsx: missing columns")
	// ErrSheetMissing indicates a source listed in metadata has no sheet.
	ErrSheetMissing = errors.New("xlsx: source sheet not found")
	// ErrInvalidValue indicates a cell that is not a number.
	ErrInvalidValue = errors.New("xlsx: invalid value")
)

// Codec adapts the package functions to consol.Codec.
type Codec struct{}

// Decode implements consol.Codec.
func (Codec) Decode(r io.Reader) (statement.Input, error) { return Decode(r) }

// Decode reads the metadata, control and source sheets of a workbook.
func Decode(r io.Reader) (statement.Input, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return statement.Input{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if !slices.Contains(sheets, sheetMetadata) {
		return statement.Input{}, ErrMetadataMissing
	}
	in := statement.Input{Registry: statement.NewRegistry()}

	meta, err := readTable(f, sheetMetadata, "tab", "name")
	if err != nil {
		return statement.Input{}, err
	}
	for _, row := range meta {
		in.Sources = append(in.Sources, statement.Source{Tab: row[0], Name: row[1]})
	}
	if slices.Contains(sheets, sheetCompLike) {
		rows, err := readTable(f, sheetCompLike, "source", "raw_item")
		if err != nil {
			return statement.Input{}, err
		}
		for _, row := range rows {
			in.CompLike = append(in.CompLike, statement.CompLikeItem{Source: row[0], RawItem: row[1]})
		}
	}
	if slices.Contains(sheets, sheetManualMappings) {
		rows, err := readTable(f, sheetManualMappings, "raw_item_from", "raw_item_to")
		if err != nil {
			return statement.Input{}, err
		}
		for _, row := range rows {
			in.ManualMappings = append(in.ManualMappings, statement.NewManualMapping(row[0], row[1]))
		}
	}

	for _, src := range in.Sources {
		if !slices.Contains(sheets, src.Tab) {
			return statement.Input{}, fmt.Errorf("%w: %s", ErrSheetMissing, src.Tab)
		}
		records, err := readSource(f, src.Tab, in.Registry)
		if err != nil {
			return statement.Input{}, err
		}
		in.Records = append(in.Records, records...)
	}
	if err := in.Validate(); err != nil {
		return statement.Input{}, err
	}
	return in, nil
}

// readTable returns the named columns of every non-blank data row of sheet.
func readTable(f *excelize.File, sheet string, columns ...string) ([][]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is missing %v", ErrMissingColumns, sheet, columns)
	}
	index := make([]int, len(columns))
	missing := make([]string, 0)
	for i, col := range columns {
		index[i] = slices.IndexFunc(rows[0], func(h string) bool {
			return strings.EqualFold(strings.TrimSpace(h), col)
		})
		if index[i] < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing %v", ErrMissingColumns, sheet, missing)
	}
	out := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		values := make([]string, len(columns))
		blank := true
		for i, idx := range index {
			values[i] = strings.TrimSpace(cell(row, idx))
			if values[i] != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, values)
		}
	}
	return out, nil
}

// readSource turns a statement sheet into original records. The first column
// holds item labels and every other non-blank header is a period.
func readSource(f *excelize.File, sheet string, registry *statement.Registry) ([]statement.Record, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: read %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	type column struct {
		index  int
		period string
	}
	periods := make([]column, 0, len(rows[0]))
	for i, h := range rows[0] {
		if i == 0 {
			continue
		}
		if p := strings.TrimSpace(h); p != "" {
			periods = append(periods, column{index: i, period: p})
		}
	}
	out := make([]statement.Record, 0)
	seen := make(map[string]struct{})
	rowNum := 0
	for n, row := range rows[1:] {
		raw := strings.TrimSpace(cell(row, 0))
		if raw == "" {
			if blankRow(row) {
				continue
			}
			return nil, fmt.Errorf("%w: %s row %d has values but no item", ErrInvalidValue, sheet, n+2)
		}
		name := registry.Register(sheet, raw)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s/%s", statement.ErrDuplicateItem, sheet, name)
		}
		seen[name] = struct{}{}
		for _, col := range periods {
			rawValue := strings.TrimSpace(cell(row, col.index))
			value, err := parseValue(rawValue)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %s/%s: %q", ErrInvalidValue, sheet, raw, col.period, rawValue)
			}
			out = append(out, statement.Record{
				Source:   sheet,
				Type:     statement.TypeOriginal,
				Period:   col.period,
				RowNum:   rowNum,
				Item:     name,
				RawItem:  raw,
				Value:    value,
				RawValue: rawValue,
			})
		}
		rowNum++
	}
	return out, nil
}

func parseValue(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	cleaned := strings.ReplaceAll(raw, ",", "")
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}
	return decimal.NewFromString(cleaned)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
