package statement

// RegistryEntry maps a raw label reported by a source to its canonical name.
type RegistryEntry struct {
	RawName string
	Source  string
	Name    string
	Combo   ComboTag
}

// Key returns the canonical item key of the entry.
func (e RegistryEntry) Key() ItemKey { return ItemKey{Name: e.Name, Combo: e.Combo} }

// Registry is the append-only item registry. Renames change the canonical name of
// existing entries and never drop them.
type Registry struct {
	entries []RegistryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register records raw under source and returns its normalized name. A label
// whose normalized name is already registered for the source is not added twice.
func (r *Registry) Register(source, raw string) string {
	name := Normalize(raw)
	for _, e := range r.entries {
		if e.Source == source && e.Name == name && e.Combo.IsZero() {
			return name
		}
	}
	r.entries = append(r.entries, RegistryEntry{RawName: raw, Source: source, Name: name})
	return name
}

// Rename points every entry of source currently named from at to and returns the
// number of entries touched.
func (r *Registry) Rename(source string, from, to ItemKey) int {
	n := 0
	for i := range r.entries {
		e := &r.entries[i]
		if e.Source != source || e.Key() != from {
			continue
		}
		e.Name = to.Name
		e.Combo = to.Combo
		n++
	}
	return n
}

// Lookup returns the canonical key registered for a raw label of source.
func (r *Registry) Lookup(source, raw string) (ItemKey, bool) {
	for _, e := range r.entries {
		if e.Source == source && e.RawName == raw {
			return e.Key(), true
		}
	}
	return ItemKey{}, false
}

// Entries returns a copy of the registry rows in insertion order.
func (r *Registry) Entries() []RegistryEntry {
	out := make([]RegistryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return NewRegistry()
	}
	return &Registry{entries: r.Entries()}
}
