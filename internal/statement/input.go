package statement

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoSources indicates the input lists no source to consolidate.
	ErrNoSources = errors.New("statement: at least one source is required")
	// ErrDuplicateItem indicates two labels of one source normalize to the same item.
	ErrDuplicateItem = errors.New("statement: duplicate item in source")
	// ErrInvalidInput wraps field validation failures.
	ErrInvalidInput = errors.New("statement: invalid input")
)

// Source describes one reported statement (a sheet) in consolidation order.
type Source struct {
	Tab  string `validate:"required"`
	Name string `validate:"required"`
}

// ManualMapping redirects a comparison item to a base item when naming is
// irreconcilable.
type ManualMapping struct {
	RawFrom string `validate:"required"`
	RawTo   string `validate:"required"`
	From    string
	To      string
}

// NewManualMapping normalizes both labels.
func NewManualMapping(rawFrom, rawTo string) ManualMapping {
	return ManualMapping{RawFrom: rawFrom, RawTo: rawTo, From: Normalize(rawFrom), To: Normalize(rawTo)}
}

// CompLikeItem pre-declares a raw label of a source as having no counterpart.
type CompLikeItem struct {
	Source  string `validate:"required"`
	RawItem string `validate:"required"`
}

// Input is everything the consolidation engine consumes from the readers.
type Input struct {
	Sources        []Source        `validate:"dive"`
	Records        []Record
	Registry       *Registry
	ManualMappings []ManualMapping `validate:"dive"`
	CompLike       []CompLikeItem  `validate:"dive"`
}

var validate = validator.New()

// Validate checks required fields and the one-item-per-source invariant.
func (in Input) Validate() error {
	if len(in.Sources) == 0 {
		return ErrNoSources
	}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(parts, ", "))
		}
		return err
	}
	type slot struct {
		source, period, item string
	}
	seen := make(map[slot]int)
	for _, r := range in.Records {
		if r.Type != TypeOriginal {
			continue
		}
		seen[slot{r.Source, r.Period, r.Item}]++
	}
	dups := make([]string, 0)
	for k, n := range seen {
		if n > 1 {
			dups = append(dups, fmt.Sprintf("%s/%s", k.source, k.item))
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return fmt.Errorf("%w: %s", ErrDuplicateItem, strings.Join(dedupe(dups), ", "))
	}
	return nil
}

// RecordsOf returns the original records of one source.
func (in Input) RecordsOf(source string) []Record {
	out := make([]Record, 0)
	for _, r := range in.Records {
		if r.Source == source && r.Type == TypeOriginal {
			out = append(out, r)
		}
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
