package consol

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// finalize verifies every row is matched and melts the base rows back into the
// long-form base, renumbered densely.
func (e *Engine) finalize(context.Context) error {
	t := e.table
	if open := t.filter(func(r *Row) bool { return !r.Matched }); len(open) > 0 {
		return fmt.Errorf("%w: %v", ErrUnmatchedRows, labelsOf(keysOf(open)))
	}
	periods := t.periods()
	bases := t.ofType(statement.TypeBase)
	sort.SliceStable(bases, func(i, j int) bool { return bases[i].RowNum < bases[j].RowNum })
	next := make([]statement.Record, 0, len(bases)*len(periods))
	for i, r := range bases {
		for _, p := range periods {
			v := r.Value(p)
			next = append(next, statement.Record{
				Source:   r.Source,
				Type:     statement.TypeBase,
				Period:   p,
				RowNum:   i,
				Item:     r.Key.Name,
				Combo:    r.Key.Combo,
				RawItem:  r.RawItem,
				Value:    v,
				RawValue: v.String(),
			})
		}
	}
	e.base = next
	return nil
}

// ResultRow is one line item of the consolidated statement.
type ResultRow struct {
	Source  string
	RowNum  int
	Key     statement.ItemKey
	RawItem string
	Values  map[string]decimal.Decimal
}

// Result is the consolidated statement with the supporting tables.
type Result struct {
	Sources  []string
	Periods  []string
	Rows     []ResultRow
	Registry []statement.RegistryEntry
	Rules    []CombinationRule
	Journal  []JournalEntry
}

// Result pivots the current base into a wide statement.
func (e *Engine) Result() *Result {
	periodSet := make(map[string]struct{})
	index := make(map[int]int)
	res := &Result{
		Sources:  make([]string, 0, len(e.sources)),
		Registry: e.registry.Entries(),
		Rules:    e.Rules(),
		Journal:  e.Journal(),
	}
	for _, src := range e.sources {
		res.Sources = append(res.Sources, src.Tab)
	}
	for _, rec := range e.base {
		periodSet[rec.Period] = struct{}{}
		pos, ok := index[rec.RowNum]
		if !ok {
			pos = len(res.Rows)
			index[rec.RowNum] = pos
			res.Rows = append(res.Rows, ResultRow{
				Source:  rec.Source,
				RowNum:  rec.RowNum,
				Key:     rec.Key(),
				RawItem: rec.RawItem,
				Values:  make(map[string]decimal.Decimal),
			})
		}
		res.Rows[pos].Values[rec.Period] = rec.Value
	}
	sort.SliceStable(res.Rows, func(i, j int) bool { return res.Rows[i].RowNum < res.Rows[j].RowNum })
	for p := range periodSet {
		res.Periods = append(res.Periods, p)
	}
	sort.Strings(res.Periods)
	return res
}

// Base returns a copy of the long-form base records.
func (e *Engine) Base() []statement.Record {
	out := make([]statement.Record, len(e.base))
	copy(out, e.base)
	return out
}
