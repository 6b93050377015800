// Package statement holds the long-form record model shared by the readers, the
// consolidation engine and the exporters.
package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RecordType classifies a record relative to the iteration being processed.
type RecordType string

const (
	// TypeOriginal marks records as read from their source sheet.
	TypeOriginal RecordType = "original"
	// TypeBase marks records of the running consolidated table.
	TypeBase RecordType = "base"
	// TypeComp marks records of the comparison source currently folded in.
	TypeComp RecordType = "comp"
)

// ComboKind tags items produced by a combination match.
type ComboKind int

const (
	// ComboNone is an ordinary item.
	ComboNone ComboKind = iota
	// ComboComponent is one of several comparison items summing to a single base item.
	ComboComponent
	// ComboAggregate is a comparison item equal to the sum of several base items.
	ComboAggregate
)

// ComboTag identifies the combination group an item was split into or merged from.
type ComboTag struct {
	Kind  ComboKind
	Group int
}

// IsZero reports whether the tag is unset.
func (t ComboTag) IsZero() bool { return t.Kind == ComboNone }

// ItemKey is the identity used to pair line items across sources.
type ItemKey struct {
	Name  string
	Combo ComboTag
}

// Key builds an untagged item key.
func Key(name string) ItemKey { return ItemKey{Name: name} }

// Label renders the key for exports and logs.
func (k ItemKey) Label() string {
	switch k.Combo.Kind {
	case ComboComponent:
		return fmt.Sprintf("%s <<%d>>", k.Name, k.Combo.Group)
	case ComboAggregate:
		return fmt.Sprintf("%s [[%d]]", k.Name, k.Combo.Group)
	default:
		return k.Name
	}
}

func (k ItemKey) String() string { return k.Label() }

// Record is one immutable fact: the value of an item for a period in a source.
type Record struct {
	Source   string
	Type     RecordType
	Period   string
	RowNum   int
	Item     string
	Combo    ComboTag
	RawItem  string
	Value    decimal.Decimal
	RawValue string
}

// Key returns the item identity of the record.
func (r Record) Key() ItemKey { return ItemKey{Name: r.Item, Combo: r.Combo} }

// Normalize turns a reported label into the item key used for matching.
func Normalize(raw string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(raw))
}
