package consol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// designateDisjoint flags open rows that are zero on every overlapping period,
// then flags every declared comp-like item of the current source.
func (e *Engine) designateDisjoint(context.Context) error {
	t := e.table
	for _, r := range t.rows {
		if r.Matched || !r.allZero(t.overlapping) {
			continue
		}
		switch r.Type {
		case statement.TypeBase:
			r.Disjoint = DisjointBase
		case statement.TypeComp:
			r.Disjoint = DisjointComp
		}
	}
	for _, r := range t.rows {
		if e.declaredCompLike(r) {
			r.Disjoint = DisjointCompLike
		}
	}
	n := t.count(func(r *Row) bool { return r.Disjoint != DisjointNone })
	e.metrics.observeMatches("disjoint", n)
	return nil
}

// declaredCompLike reports whether r is a comp row listed as comp-like for the
// current source.
func (e *Engine) declaredCompLike(r *Row) bool {
	if r.Type != statement.TypeComp {
		return false
	}
	_, ok := e.compLike[e.table.source][r.RawItem]
	return ok
}

// insertDisjoint accepts disjoint base rows as they are and inserts every
// disjoint comp row into the base right after the base row matched to its
// nearest preceding comp row. A comp row with no such anchor goes to position 0.
func (e *Engine) insertDisjoint(context.Context) error {
	t := e.table
	for _, r := range t.rows {
		if r.Type == statement.TypeBase && r.Disjoint == DisjointBase {
			r.Matched = true
		}
	}
	comps := t.filter(func(r *Row) bool {
		return r.Type == statement.TypeComp && (r.Disjoint == DisjointComp || r.Disjoint == DisjointCompLike)
	})
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].InitRowNum < comps[j].InitRowNum })
	for _, comp := range comps {
		at := e.anchor(comp.InitRowNum)
		for _, r := range t.rows {
			if r.Type == statement.TypeBase && r.RowNum > at {
				r.RowNum++
			}
		}
		inserted := comp.clone()
		inserted.Type = statement.TypeBase
		inserted.RowNum = at + 1
		inserted.InitCompRowNum = comp.InitRowNum
		inserted.Matched = true
		comp.Matched = true
		t.rows = append(t.rows, inserted)
		e.log().Debug("disjoint item inserted",
			slog.String("source", t.source),
			slog.String("item", comp.Key.Label()),
			slog.Int("row_num", inserted.RowNum))
	}
	t.sort()
	if n := t.count(func(r *Row) bool { return !r.Matched && r.Disjoint != DisjointNone }); n > 0 {
		return fmt.Errorf("%w: %d rows", ErrDisjointLeft, n)
	}
	e.metrics.observeMatches("inserted", len(comps))
	return nil
}

// anchor returns the row number of the base row whose comp counterpart is the
// closest at or before position, or -1 when no such row exists. Comp row 0 is a
// valid anchor. Ties go to the later base row.
func (e *Engine) anchor(position int) int {
	at := -1
	best := -1
	for _, r := range e.table.rows {
		if r.Type != statement.TypeBase || r.InitCompRowNum < 0 || r.InitCompRowNum > position {
			continue
		}
		if r.InitCompRowNum > best || (r.InitCompRowNum == best && r.RowNum > at) {
			best = r.InitCompRowNum
			at = r.RowNum
		}
	}
	return at
}
