package consol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// matchCombinations resolves the remaining open rows by subset-sum search:
// first each base item against subsets of comp items, then each remaining comp
// item against subsets of base items.
func (e *Engine) matchCombinations(ctx context.Context) error {
	t := e.table
	bases := t.open(statement.TypeBase)
	comps := t.open(statement.TypeComp)
	if len(bases) > 0 && !equalSums(bases, comps, t.overlapping) {
		return e.recoverMismatch(bases, comps)
	}

	used := make(map[*Row]bool)
	for _, base := range bases {
		pool := unused(comps, used)
		matches, err := e.searchSubsets(ctx, pool, base)
		if err != nil {
			return err
		}
		if len(matches) > 1 {
			return fmt.Errorf("%w: %s", ErrAmbiguousCombination, base.Key.Label())
		}
		if len(matches) == 0 {
			e.warn(fmt.Sprintf(" there is unmatched base item: %s", base.Key.Label()))
			continue
		}
		for _, r := range matches[0] {
			used[r] = true
		}
		e.splitBase(base, matches[0])
	}

	checkLeak := len(t.open(statement.TypeBase)) > 0
	bases = t.open(statement.TypeBase)
	comps = t.open(statement.TypeComp)
	used = make(map[*Row]bool)
	for _, comp := range comps {
		pool := unused(bases, used)
		matches, err := e.searchSubsets(ctx, pool, comp)
		if err != nil {
			return err
		}
		if len(matches) > 1 {
			return fmt.Errorf("%w: %s", ErrAmbiguousCombination, comp.Key.Label())
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %s", ErrUnresolvableComp, comp.Key.Label())
		}
		for _, r := range matches[0] {
			used[r] = true
		}
		e.mergeBases(comp, matches[0])
	}

	if checkLeak && !equalSums(t.open(statement.TypeBase), t.open(statement.TypeComp), t.overlapping) {
		return fmt.Errorf("%w: source %s", ErrLeak, t.source)
	}
	return nil
}

// splitBase records that comp items sum to base. The comp items are tagged as
// components and inserted later as comp-like rows.
func (e *Engine) splitBase(base *Row, parts []*Row) {
	t := e.table
	tag := statement.ComboTag{Kind: statement.ComboComponent, Group: e.nextGroup()}
	for _, r := range parts {
		key := statement.ItemKey{Name: r.Key.Name, Combo: tag}
		e.registry.Rename(t.source, r.Key, key)
		r.Key = key
		r.Disjoint = DisjointCompLike
	}
	setCells([]*Row{base}, sumCells(parts, t.compOnly))
	base.InitCompRowNum = minInitRowNum(parts)
	base.Matched = true
	rule := &CombinationRule{BaseTuple: []statement.ItemKey{base.Key}, CompTuple: keysOf(parts), Sources: []string{t.source}}
	e.rules = append(e.rules, rule)
	e.note(fmt.Sprintf(" new rule created: base %s -> comps %v", base.Key.Label(), labelsOf(rule.CompTuple)))
	e.metrics.observeRule("created")
}

// mergeBases records that base items sum to comp. The comp item is tagged as an
// aggregate and inserted later as a comp-like row.
func (e *Engine) mergeBases(comp *Row, parts []*Row) {
	t := e.table
	key := statement.ItemKey{Name: comp.Key.Name, Combo: statement.ComboTag{Kind: statement.ComboAggregate, Group: e.nextGroup()}}
	e.registry.Rename(t.source, comp.Key, key)
	comp.Key = key
	comp.Disjoint = DisjointCompLike
	setCells([]*Row{comp}, sumCells(parts, t.baseOnly))
	for _, r := range parts {
		r.InitCompRowNum = comp.InitRowNum
		r.Matched = true
	}
	rule := &CombinationRule{BaseTuple: keysOf(parts), CompTuple: []statement.ItemKey{comp.Key}, Sources: []string{t.source}}
	e.rules = append(e.rules, rule)
	e.note(fmt.Sprintf(" new rule created: comp %s -> bases %v", comp.Key.Label(), labelsOf(rule.BaseTuple)))
	e.metrics.observeRule("created")
}

// recoverMismatch handles unequal open sums. In irreconcilable mode, matching
// item sets are reconciled by name and vanished base items become disjoint.
func (e *Engine) recoverMismatch(bases, comps []*Row) error {
	t := e.table
	baseNames := sortedLabels(bases)
	compNames := sortedLabels(comps)
	onlyBase := difference(baseNames, compNames)
	onlyComp := difference(compNames, baseNames)
	mismatch := &SumMismatchError{Source: t.source, Base: baseNames, Comp: compNames}
	switch {
	case len(onlyBase) == 0 && len(onlyComp) == 0:
		e.warn(fmt.Sprintf(" inconsistent data for items: %v", baseNames))
		if !e.cfg.Irreconcilable {
			return mismatch
		}
		e.reconcileByName(keysOf(bases))
		return nil
	case len(onlyComp) == 0:
		e.warn(fmt.Sprintf(" items disappeared from base: %v", onlyBase))
		if !e.cfg.Irreconcilable {
			mismatch.OnlyBase = onlyBase
			return mismatch
		}
		gone := make(map[string]struct{}, len(onlyBase))
		for _, name := range onlyBase {
			gone[name] = struct{}{}
		}
		for _, r := range bases {
			if _, ok := gone[r.Key.Label()]; ok {
				r.Disjoint = DisjointBase
			}
		}
		e.reconcileByName(keysOf(comps))
		return nil
	default:
		mismatch.OnlyBase = onlyBase
		mismatch.OnlyComp = onlyComp
		return mismatch
	}
}

// reconcileByName accepts base and comp rows sharing a key despite differing
// values. Base rows take the comp-only values of their comp counterparts.
func (e *Engine) reconcileByName(keys []statement.ItemKey) {
	t := e.table
	for _, key := range keys {
		bases := t.withKey(statement.TypeBase, key)
		comps := t.withKey(statement.TypeComp, key)
		if len(comps) > 0 {
			setCells(bases, sumCells(comps, t.compOnly))
			first := minInitRowNum(comps)
			for _, r := range bases {
				r.InitCompRowNum = first
			}
		}
		markMatched(bases)
		markMatched(comps)
		e.note(fmt.Sprintf(" manually reconciled item: %s", key.Label()))
	}
}

// searchSubsets enumerates subsets of pool with at least two members, smallest
// first and in row order, and returns the first whose overlapping sums equal
// target.
func (e *Engine) searchSubsets(ctx context.Context, pool []*Row, target *Row) ([][]*Row, error) {
	t := e.table
	n := len(pool)
	if n < 2 {
		return nil, nil
	}
	if n > e.cfg.SearchWarnItems {
		e.log().Warn("large combination search",
			slog.String("source", t.source),
			slog.String("item", target.Key.Label()),
			slog.Int("pool", n))
	}
	want := make([]decimal.Decimal, len(t.overlapping))
	vectors := make([][]decimal.Decimal, n)
	for i, p := range t.overlapping {
		want[i] = target.Value(p)
	}
	for j, r := range pool {
		vectors[j] = make([]decimal.Decimal, len(t.overlapping))
		for i, p := range t.overlapping {
			vectors[j][i] = r.Value(p)
		}
	}
	steps := 0
	for k := 2; k <= n; k++ {
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			steps++
			if steps%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if subsetEquals(vectors, idx, want) {
				subset := make([]*Row, k)
				for i, j := range idx {
					subset[i] = pool[j]
				}
				return [][]*Row{subset}, nil
			}
			if !nextCombination(idx, n) {
				break
			}
		}
	}
	return nil, nil
}

func subsetEquals(vectors [][]decimal.Decimal, idx []int, want []decimal.Decimal) bool {
	for i := range want {
		total := decimal.Zero
		for _, j := range idx {
			total = total.Add(vectors[j][i])
		}
		if !total.Equal(want[i]) {
			return false
		}
	}
	return true
}

// nextCombination advances idx to the next k-combination of n in lexicographic
// order and reports false after the last one.
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	i := k - 1
	for i >= 0 && idx[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < k; j++ {
		idx[j] = idx[j-1] + 1
	}
	return true
}

func unused(rows []*Row, used map[*Row]bool) []*Row {
	out := make([]*Row, 0, len(rows))
	for _, r := range rows {
		if !used[r] {
			out = append(out, r)
		}
	}
	return out
}

func sortedLabels(rows []*Row) []string {
	out := labelsOf(keysOf(rows))
	sort.Strings(out)
	return out
}

func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0)
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
