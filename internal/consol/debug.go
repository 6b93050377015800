package consol

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// DebugRow is a wide-table row prepared for inspection.
type DebugRow struct {
	Source         string
	RowNum         int
	InitRowNum     int
	InitCompRowNum int
	Item           string
	RawItem        string
	Values         map[string]decimal.Decimal
	Matched        bool
	Disjoint       Disjoint
}

// DebugView exposes the working table of the latest iteration, restricted to
// the periods the comparison source reports.
type DebugView struct {
	Source  string
	Periods []string
	Base    []DebugRow
	Comp    []DebugRow
}

// DebugView returns the working table of the latest iteration. It reports false
// when no source was consolidated yet.
func (e *Engine) DebugView() (DebugView, bool) {
	t := e.table
	if t == nil {
		return DebugView{}, false
	}
	periods := append(append([]string(nil), t.overlapping...), t.compOnly...)
	sort.Strings(periods)
	view := DebugView{Source: t.source, Periods: periods}
	for _, r := range t.rows {
		row := DebugRow{
			Source:         r.Source,
			RowNum:         r.RowNum,
			InitRowNum:     r.InitRowNum,
			InitCompRowNum: r.InitCompRowNum,
			Item:           r.Key.Label(),
			RawItem:        r.RawItem,
			Values:         make(map[string]decimal.Decimal, len(periods)),
			Matched:        r.Matched,
			Disjoint:       r.Disjoint,
		}
		for _, p := range periods {
			if r.Has(p) {
				row.Values[p] = r.Value(p)
			}
		}
		if r.Type == statement.TypeBase {
			view.Base = append(view.Base, row)
		} else {
			view.Comp = append(view.Comp, row)
		}
	}
	return view, true
}
