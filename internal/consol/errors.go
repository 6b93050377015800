package consol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQueueExhausted indicates no comparison source is left to consolidate.
	ErrQueueExhausted = errors.New("consol: no more sources to consolidate")
	// ErrManualMappingsStrict indicates manual mappings were supplied without irreconcilable mode.
	ErrManualMappingsStrict = errors.New("consol: manual mappings only apply in irreconcilable mode")
	// ErrStructuralViolation indicates three or more rows share one item within a base/comp pair.
	ErrStructuralViolation = errors.New("consol: item appears more than once per record type")
	// ErrSumMismatch indicates unmatched base and comp rows do not sum to the same values.
	ErrSumMismatch = errors.New("consol: inconsistent data")
	// ErrUnresolvableComp indicates no subset of base items sums to a comp item.
	ErrUnresolvableComp = errors.New("consol: unmatched comp item")
	// ErrAmbiguousCombination indicates more than one candidate subset was accepted.
	ErrAmbiguousCombination = errors.New("consol: multiple possible matchings")
	// ErrRuleDoubleApplied indicates both sides of a combination rule were matched before replay.
	ErrRuleDoubleApplied = errors.New("consol: combination rule already satisfied on both sides")
	// ErrManyToManyRule indicates a combination rule with several items on both sides.
	ErrManyToManyRule = errors.New("consol: many-to-many combination rules are not supported")
	// ErrLeak indicates unmatched sums diverged after the combination search.
	ErrLeak = errors.New("consol: unmatched sums diverged after combination search")
	// ErrDisjointLeft indicates disjoint rows were left unmatched after insertion.
	ErrDisjointLeft = errors.New("consol: disjoint items left unmatched")
	// ErrUnmatchedRows indicates rows are still unmatched at the end of an iteration.
	ErrUnmatchedRows = errors.New("consol: unmatched rows remain")
	// ErrRunExists indicates a run with the same digest was already stored.
	ErrRunExists = errors.New("consol: run already recorded")
)

// StructuralError reports the item violating the one-row-per-record-type invariant.
type StructuralError struct {
	Source string
	Item   string
	Rows   int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("consol: source %s: can't have %d rows for item %q in combined base and comp", e.Source, e.Rows, e.Item)
}

func (e *StructuralError) Unwrap() error { return ErrStructuralViolation }

// SumMismatchError describes unmatched item sets whose sums disagree.
type SumMismatchError struct {
	Source   string
	Base     []string
	Comp     []string
	OnlyBase []string
	OnlyComp []string
}

func (e *SumMismatchError) Error() string {
	if len(e.OnlyBase) > 0 || len(e.OnlyComp) > 0 {
		return fmt.Sprintf("consol: source %s: inconsistent data: only in unmatched base: [%s], only in unmatched comp: [%s]",
			e.Source, strings.Join(e.OnlyBase, ", "), strings.Join(e.OnlyComp, ", "))
	}
	return fmt.Sprintf("consol: source %s: inconsistent data: unmatched base: [%s], unmatched comp: [%s]",
		e.Source, strings.Join(e.Base, ", "), strings.Join(e.Comp, ", "))
}

func (e *SumMismatchError) Unwrap() error { return ErrSumMismatch }

// IsDataError reports whether err stems from the consolidated data rather than
// from the environment.
func IsDataError(err error) bool {
	for _, target := range []error{
		ErrStructuralViolation,
		ErrSumMismatch,
		ErrUnresolvableComp,
		ErrAmbiguousCombination,
		ErrRuleDoubleApplied,
		ErrManyToManyRule,
		ErrLeak,
		ErrDisjointLeft,
		ErrUnmatchedRows,
		ErrManualMappingsStrict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
