package consol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/asreported/internal/statement"
)

// DefaultSearchWarnItems is the pool size above which the combination search
// logs a warning.
const DefaultSearchWarnItems = 20

// Config tunes the engine behaviour.
type Config struct {
	// Irreconcilable enables manual mappings and tolerant recovery of sum mismatches.
	Irreconcilable bool
	// SearchWarnItems overrides DefaultSearchWarnItems when positive.
	SearchWarnItems int
	// Rules seeds the combination rules replayed from the first comparison source.
	Rules []CombinationRule
}

// JournalEntry is one line of the human-readable consolidation log.
type JournalEntry struct {
	Source  string
	Message string
	Warning bool
}

// Engine folds comparison sources one at a time into the running base. An
// Engine is not safe for concurrent use.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	sources  []statement.Source
	queue    []statement.Source
	base     []statement.Record
	records  []statement.Record
	registry *statement.Registry
	mappings []statement.ManualMapping
	compLike map[string]map[string]struct{}
	rules    []*CombinationRule
	journal  []JournalEntry
	table    *table
	groupSeq int
}

// NewEngine validates the input and seeds the base with the first source.
func NewEngine(in statement.Input, cfg Config, logger *slog.Logger, metrics *Metrics) (*Engine, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(in.ManualMappings) > 0 && !cfg.Irreconcilable {
		return nil, ErrManualMappingsStrict
	}
	if cfg.SearchWarnItems <= 0 {
		cfg.SearchWarnItems = DefaultSearchWarnItems
	}
	registry := in.Registry.Clone()
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		sources:  append([]statement.Source(nil), in.Sources...),
		queue:    append([]statement.Source(nil), in.Sources[1:]...),
		records:  in.Records,
		registry: registry,
		mappings: append([]statement.ManualMapping(nil), in.ManualMappings...),
		compLike: make(map[string]map[string]struct{}),
	}
	for i := range cfg.Rules {
		rule := cfg.Rules[i].clone()
		e.rules = append(e.rules, &rule)
		for _, k := range append(append([]statement.ItemKey(nil), rule.BaseTuple...), rule.CompTuple...) {
			if k.Combo.Group > e.groupSeq {
				e.groupSeq = k.Combo.Group
			}
		}
	}
	for _, item := range in.CompLike {
		set, ok := e.compLike[item.Source]
		if !ok {
			set = make(map[string]struct{})
			e.compLike[item.Source] = set
		}
		set[item.RawItem] = struct{}{}
	}
	for _, rec := range in.RecordsOf(in.Sources[0].Tab) {
		rec.Type = statement.TypeBase
		e.base = append(e.base, rec)
	}
	return e, nil
}

// Remaining reports how many comparison sources are still queued.
func (e *Engine) Remaining() int { return len(e.queue) }

// Journal returns a copy of the consolidation log.
func (e *Engine) Journal() []JournalEntry {
	out := make([]JournalEntry, len(e.journal))
	copy(out, e.journal)
	return out
}

// Rules returns copies of the combination rules discovered so far.
func (e *Engine) Rules() []CombinationRule {
	out := make([]CombinationRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.clone())
	}
	return out
}

// Registry returns a copy of the item registry.
func (e *Engine) Registry() *statement.Registry { return e.registry.Clone() }

// Run consolidates every queued source and returns the final result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	for len(e.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.ConsolidateNext(ctx); err != nil {
			return nil, err
		}
	}
	return e.Result(), nil
}

// ConsolidateNext folds the next queued source into the base.
func (e *Engine) ConsolidateNext(ctx context.Context) error {
	start := time.Now()
	source, err := e.prepareNext()
	if err != nil {
		return err
	}
	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"same_items", e.matchSameItems},
		{"same_values", e.matchSameValues},
		{"manual_mappings", e.applyManualMappings},
		{"rules", e.replayRules},
		{"disjoint", e.designateDisjoint},
		{"combinations", e.matchCombinations},
		{"insert_disjoint", e.insertDisjoint},
		{"finalize", e.finalize},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage.run(ctx); err != nil {
			e.metrics.observeSource("error", time.Since(start))
			e.log().Error("consolidation stage failed", slog.String("source", source.Tab), slog.String("stage", stage.name), slog.Any("error", err))
			return err
		}
		e.status(stage.name)
	}
	e.metrics.observeSource("ok", time.Since(start))
	return nil
}

func (e *Engine) prepareNext() (statement.Source, error) {
	if len(e.queue) == 0 {
		return statement.Source{}, ErrQueueExhausted
	}
	source := e.queue[0]
	e.queue = e.queue[1:]
	comp := make([]statement.Record, 0)
	for _, rec := range e.records {
		if rec.Source == source.Tab && rec.Type == statement.TypeOriginal {
			rec.Type = statement.TypeComp
			comp = append(comp, rec)
		}
	}
	e.table = newTable(source.Tab, e.base, comp)
	e.note(fmt.Sprintf("start consolidating source=%s:", source.Tab))
	e.note(fmt.Sprintf(" overlapping_periods: %v, comp_only_periods: %v, base_only_periods: %v",
		e.table.overlapping, e.table.compOnly, e.table.baseOnly))
	return source, nil
}

func (e *Engine) note(message string) {
	source := ""
	if e.table != nil {
		source = e.table.source
	}
	e.journal = append(e.journal, JournalEntry{Source: source, Message: message})
	e.log().Info(message, slog.String("source", source))
}

func (e *Engine) warn(message string) {
	source := ""
	if e.table != nil {
		source = e.table.source
	}
	e.journal = append(e.journal, JournalEntry{Source: source, Message: message, Warning: true})
	e.log().Warn(message, slog.String("source", source))
}

func (e *Engine) status(stage string) {
	if e.table == nil {
		return
	}
	t := e.table
	e.log().Debug("stage completed",
		slog.String("source", t.source),
		slog.String("stage", stage),
		slog.Int("open_base", len(t.open(statement.TypeBase))),
		slog.Int("open_comp", len(t.open(statement.TypeComp))),
	)
}

func (e *Engine) nextGroup() int {
	e.groupSeq++
	return e.groupSeq
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.logger != nil {
		return e.logger.With(slog.String("component", "consol_engine"))
	}
	return slog.Default().With(slog.String("component", "consol_engine"))
}
