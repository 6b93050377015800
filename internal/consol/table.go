package consol

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// Disjoint classifies rows that have no counterpart on the other side.
type Disjoint string

const (
	// DisjointNone marks rows still eligible for matching.
	DisjointNone Disjoint = ""
	// DisjointBase marks base rows absent from the comparison source.
	DisjointBase Disjoint = "base"
	// DisjointComp marks comparison rows absent from the base.
	DisjointComp Disjoint = "comp"
	// DisjointCompLike marks comparison rows to be inserted like disjoint ones.
	DisjointCompLike Disjoint = "comp_like"
)

// Row is one item of the wide table, holding a value per period. A period
// missing from Cells is not available for the row.
type Row struct {
	Source         string
	Type           statement.RecordType
	RowNum         int
	InitRowNum     int
	InitCompRowNum int
	Key            statement.ItemKey
	RawItem        string
	Cells          map[string]decimal.Decimal
	Matched        bool
	Disjoint       Disjoint
}

// Value returns the value of period, zero when missing.
func (r *Row) Value(period string) decimal.Decimal {
	return r.Cells[period]
}

// Has reports whether the row carries a value for period.
func (r *Row) Has(period string) bool {
	_, ok := r.Cells[period]
	return ok
}

func (r *Row) open() bool { return !r.Matched && r.Disjoint == DisjointNone }

func (r *Row) allZero(periods []string) bool {
	for _, p := range periods {
		if !r.Value(p).IsZero() {
			return false
		}
	}
	return true
}

func (r *Row) clone() *Row {
	cp := *r
	cp.Cells = make(map[string]decimal.Decimal, len(r.Cells))
	for p, v := range r.Cells {
		cp.Cells[p] = v
	}
	return &cp
}

// table is the wide working view of one iteration: the running base plus the
// comparison source being folded in.
type table struct {
	source      string
	rows        []*Row
	overlapping []string
	compOnly    []string
	baseOnly    []string
}

type rowID struct {
	source string
	typ    statement.RecordType
	rowNum int
}

func newTable(source string, base, comp []statement.Record) *table {
	t := &table{source: source}
	index := make(map[rowID]*Row)
	basePeriods := make(map[string]struct{})
	compPeriods := make(map[string]struct{})
	add := func(rec statement.Record, typ statement.RecordType, periods map[string]struct{}) {
		periods[rec.Period] = struct{}{}
		id := rowID{source: rec.Source, typ: typ, rowNum: rec.RowNum}
		row, ok := index[id]
		if !ok {
			row = &Row{
				Source:         rec.Source,
				Type:           typ,
				RowNum:         rec.RowNum,
				InitRowNum:     rec.RowNum,
				InitCompRowNum: -1,
				Key:            rec.Key(),
				RawItem:        rec.RawItem,
				Cells:          make(map[string]decimal.Decimal),
			}
			index[id] = row
			t.rows = append(t.rows, row)
		}
		row.Cells[rec.Period] = rec.Value
	}
	for _, rec := range base {
		add(rec, statement.TypeBase, basePeriods)
	}
	for _, rec := range comp {
		add(rec, statement.TypeComp, compPeriods)
	}
	for p := range basePeriods {
		if _, ok := compPeriods[p]; ok {
			t.overlapping = append(t.overlapping, p)
		} else {
			t.baseOnly = append(t.baseOnly, p)
		}
	}
	for p := range compPeriods {
		if _, ok := basePeriods[p]; !ok {
			t.compOnly = append(t.compOnly, p)
		}
	}
	sort.Strings(t.overlapping)
	sort.Strings(t.compOnly)
	sort.Strings(t.baseOnly)
	t.sort()
	return t
}

// sort orders base rows before comp rows, each by row number.
func (t *table) sort() {
	sort.SliceStable(t.rows, func(i, j int) bool {
		a, b := t.rows[i], t.rows[j]
		if a.Type != b.Type {
			return a.Type == statement.TypeBase
		}
		return a.RowNum < b.RowNum
	})
}

func (t *table) periods() []string {
	out := make([]string, 0, len(t.overlapping)+len(t.compOnly)+len(t.baseOnly))
	out = append(out, t.overlapping...)
	out = append(out, t.compOnly...)
	out = append(out, t.baseOnly...)
	sort.Strings(out)
	return out
}

func (t *table) filter(keep func(*Row) bool) []*Row {
	out := make([]*Row, 0)
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (t *table) ofType(typ statement.RecordType) []*Row {
	return t.filter(func(r *Row) bool { return r.Type == typ })
}

func (t *table) withKey(typ statement.RecordType, key statement.ItemKey) []*Row {
	return t.filter(func(r *Row) bool { return r.Type == typ && r.Key == key })
}

func (t *table) open(typ statement.RecordType) []*Row {
	return t.filter(func(r *Row) bool { return r.Type == typ && r.open() })
}

// groupByKey returns the rows per item key in order of first appearance.
func (t *table) groupByKey() ([]statement.ItemKey, map[statement.ItemKey][]*Row) {
	keys := make([]statement.ItemKey, 0)
	groups := make(map[statement.ItemKey][]*Row)
	for _, r := range t.rows {
		if _, ok := groups[r.Key]; !ok {
			keys = append(keys, r.Key)
		}
		groups[r.Key] = append(groups[r.Key], r)
	}
	return keys, groups
}

func (t *table) count(keep func(*Row) bool) int {
	n := 0
	for _, r := range t.rows {
		if keep(r) {
			n++
		}
	}
	return n
}

// link pairs a base row with its comparison counterpart. Each side takes the
// other's values for the periods it lacks.
func link(base, comp *Row) {
	base.InitCompRowNum = comp.InitRowNum
	base.Matched = true
	comp.Matched = true
	fillMissing(comp, base)
	fillMissing(base, comp)
}

func fillMissing(dst, src *Row) {
	for p, v := range src.Cells {
		if _, ok := dst.Cells[p]; !ok {
			dst.Cells[p] = v
		}
	}
}

func sumCells(rows []*Row, periods []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(periods))
	for _, p := range periods {
		total := decimal.Zero
		for _, r := range rows {
			total = total.Add(r.Value(p))
		}
		out[p] = total
	}
	return out
}

func equalSums(a, b []*Row, periods []string) bool {
	sa, sb := sumCells(a, periods), sumCells(b, periods)
	for _, p := range periods {
		if !sa[p].Equal(sb[p]) {
			return false
		}
	}
	return true
}

func equalValues(a, b *Row, periods []string) bool {
	for _, p := range periods {
		if !a.Value(p).Equal(b.Value(p)) {
			return false
		}
	}
	return true
}

func setCells(rows []*Row, values map[string]decimal.Decimal) {
	for _, r := range rows {
		for p, v := range values {
			r.Cells[p] = v
		}
	}
}

func minInitRowNum(rows []*Row) int {
	m := -1
	for _, r := range rows {
		if m < 0 || r.InitRowNum < m {
			m = r.InitRowNum
		}
	}
	return m
}

func keysOf(rows []*Row) []statement.ItemKey {
	out := make([]statement.ItemKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Key)
	}
	return out
}

func labelsOf(keys []statement.ItemKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Label())
	}
	return out
}
