package consol

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// matchSameItems pairs base and comp rows sharing an item key when their
// overlapping values agree, or when the comp row is entirely zero. Declared
// comp-like rows never pair.
func (e *Engine) matchSameItems(context.Context) error {
	t := e.table
	keys, groups := t.groupByKey()
	zeroPeriods := append(append([]string(nil), t.overlapping...), t.compOnly...)
	matched := 0
	for _, key := range keys {
		rows := groups[key]
		if len(rows) > 2 {
			return &StructuralError{Source: t.source, Item: key.Label(), Rows: len(rows)}
		}
		if len(rows) != 2 || rows[0].Type == rows[1].Type {
			continue
		}
		base, comp := rows[0], rows[1]
		if base.Type != statement.TypeBase {
			base, comp = comp, base
		}
		if e.declaredCompLike(comp) {
			continue
		}
		switch {
		case equalValues(base, comp, t.overlapping):
			link(base, comp)
		case comp.allZero(zeroPeriods):
			link(base, comp)
			for _, p := range zeroPeriods {
				comp.Cells[p] = base.Value(p)
			}
		default:
			continue
		}
		matched++
	}
	e.metrics.observeMatches("same_items", matched)
	return nil
}

// matchSameValues pairs one open base row with one open comp row whose
// overlapping values are identical and not all zero, renaming the comp item.
func (e *Engine) matchSameValues(context.Context) error {
	t := e.table
	if len(t.overlapping) == 0 {
		return nil
	}
	order := make([]string, 0)
	groups := make(map[string][]*Row)
	for _, r := range t.rows {
		if r.Matched || e.declaredCompLike(r) {
			continue
		}
		sig := signature(r, t.overlapping)
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], r)
	}
	matched := 0
	for _, sig := range order {
		rows := groups[sig]
		if len(rows) != 2 || rows[0].Type == rows[1].Type {
			continue
		}
		base, comp := rows[0], rows[1]
		if base.Type != statement.TypeBase {
			base, comp = comp, base
		}
		if base.allZero(t.overlapping) {
			continue
		}
		e.note(fmt.Sprintf(" item updated with fuzzy ratio of %d (row num:%3d->%3d): %s--> %s",
			similarity(comp.Key.Name, base.Key.Name), comp.RowNum, base.RowNum, comp.Key.Label(), base.Key.Label()))
		e.registry.Rename(t.source, comp.Key, base.Key)
		comp.Key = base.Key
		link(base, comp)
		matched++
	}
	e.metrics.observeMatches("same_values", matched)
	return nil
}

func signature(r *Row, periods []string) string {
	parts := make([]string, 0, len(periods))
	for _, p := range periods {
		parts = append(parts, r.Value(p).String())
	}
	return strings.Join(parts, "|")
}

// similarity is a 0-100 edit-distance ratio between two labels.
func similarity(a, b string) int {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(float64(total-dist) / float64(total) * 100))
}
