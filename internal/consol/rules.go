package consol

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// CombinationRule records that the base-side items equal the comp-side items in
// sum. Sources lists where the rule held, InvalidSources where the sums differed.
type CombinationRule struct {
	BaseTuple      []statement.ItemKey
	CompTuple      []statement.ItemKey
	Sources        []string
	InvalidSources []string
}

func (r *CombinationRule) clone() CombinationRule {
	return CombinationRule{
		BaseTuple:      append([]statement.ItemKey(nil), r.BaseTuple...),
		CompTuple:      append([]statement.ItemKey(nil), r.CompTuple...),
		Sources:        append([]string(nil), r.Sources...),
		InvalidSources: append([]string(nil), r.InvalidSources...),
	}
}

func (r *CombinationRule) String() string {
	return fmt.Sprintf("%v -> %v", labelsOf(r.BaseTuple), labelsOf(r.CompTuple))
}

// applyManualMappings redirects comp items onto base items in irreconcilable mode.
func (e *Engine) applyManualMappings(context.Context) error {
	if !e.cfg.Irreconcilable {
		return nil
	}
	t := e.table
	for _, m := range e.mappings {
		from := t.withKey(statement.TypeComp, statement.Key(m.From))
		to := t.withKey(statement.TypeBase, statement.Key(m.To))
		if len(from) == 0 || len(to) == 0 {
			continue
		}
		e.registry.Rename(t.source, statement.Key(m.From), statement.Key(m.To))
		setCells(to, sumCells(from, t.compOnly))
		first := minInitRowNum(from)
		for _, r := range to {
			r.InitCompRowNum = first
		}
		for _, r := range from {
			r.Key = to[0].Key
		}
		e.note(fmt.Sprintf(" manually map inconsistent items applied: %s --> %s", m.From, m.To))
	}
	return nil
}

// replayRules applies the combination rules learned from earlier sources.
func (e *Engine) replayRules(context.Context) error {
	for _, rule := range e.rules {
		bases := e.baseRowsIn(rule.BaseTuple)
		comps := e.baseRowsIn(rule.CompTuple)
		if len(bases) == 0 || len(comps) == 0 {
			e.note(fmt.Sprintf(" rule irrelevant: %s", rule))
			e.metrics.observeRule("irrelevant")
			continue
		}
		basesDone, compsDone := allMatched(bases), allMatched(comps)
		if basesDone && compsDone {
			return fmt.Errorf("%w: %s", ErrRuleDoubleApplied, rule)
		}
		switch {
		case len(bases) == 1 && compsDone:
			e.settleRule(rule, comps, bases)
		case len(bases) == 1 && basesDone:
			markMatched(comps)
			e.acceptRule(rule, false)
		case len(comps) == 1 && compsDone:
			markMatched(bases)
			e.acceptRule(rule, false)
		case len(comps) == 1 && basesDone:
			e.settleRule(rule, bases, comps)
		case len(bases) > 1 && len(comps) > 1:
			return fmt.Errorf("%w: %s", ErrManyToManyRule, rule)
		default:
			e.note(fmt.Sprintf(" rule irrelevant: %s", rule))
			e.metrics.observeRule("irrelevant")
		}
	}
	return nil
}

// settleRule validates that the matched side sums to the single open item on
// the overlapping periods and, if so, copies the comp-only sum onto it.
func (e *Engine) settleRule(rule *CombinationRule, done, single []*Row) {
	t := e.table
	if !equalSums(done, single, t.overlapping) {
		rule.InvalidSources = append(rule.InvalidSources, t.source)
		e.warn(fmt.Sprintf(" rule invalid: %s", rule))
		e.metrics.observeRule("invalid")
		return
	}
	setCells(single, sumCells(done, t.compOnly))
	markMatched(single)
	e.acceptRule(rule, true)
}

func (e *Engine) acceptRule(rule *CombinationRule, copied bool) {
	rule.Sources = append(rule.Sources, e.table.source)
	if copied {
		e.note(fmt.Sprintf(" rule applied and values copied: %s", rule))
	} else {
		e.note(fmt.Sprintf(" rule applied: %s", rule))
	}
	e.metrics.observeRule("applied")
}

func (e *Engine) baseRowsIn(keys []statement.ItemKey) []*Row {
	set := make(map[statement.ItemKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return e.table.filter(func(r *Row) bool {
		_, ok := set[r.Key]
		return ok && r.Type == statement.TypeBase
	})
}

func allMatched(rows []*Row) bool {
	for _, r := range rows {
		if !r.Matched {
			return false
		}
	}
	return true
}

func markMatched(rows []*Row) {
	for _, r := range rows {
		r.Matched = true
	}
}
